package shared

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type person struct {
	Name string `json:"name" validate:"required"`
	Age  int    `json:"age"  validate:"min=0,max=150"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name        string
		requestBody string
		wantErr     bool
		errContains string
	}{
		{
			name:        "valid json",
			requestBody: `{"name": "test", "age": 30}`,
		},
		{
			name:        "invalid json",
			requestBody: `{"name": "test", "age": 30,}`,
			wantErr:     true,
			errContains: "invalid character",
		},
		{
			name:        "empty body",
			requestBody: "",
			wantErr:     true,
			errContains: "EOF",
		},
		{
			name:        "unknown field",
			requestBody: `{"name": "test", "nickname": "t"}`,
			wantErr:     true,
			errContains: "unknown field",
		},
		{
			name:        "trailing data",
			requestBody: `{"name": "test"} {"name": "again"}`,
			wantErr:     true,
			errContains: "unexpected data",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tc.requestBody))
			w := httptest.NewRecorder()

			var target person
			err := DecodeJSON(w, req, &target)

			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, person{Name: "test", Age: 30}, target)
		})
	}
}

func TestDecodeJSON_BodyTooLarge(t *testing.T) {
	body := `{"name": "` + strings.Repeat("a", MaxRequestBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	w := httptest.NewRecorder()

	var target person
	err := DecodeJSON(w, req, &target)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

type selfValidating struct{ ok bool }

func (s selfValidating) Validate() error {
	if !s.ok {
		return errors.New("not ok")
	}
	return nil
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(person{Name: "test", Age: 30}))

	err := ValidateRequest(person{Age: 200})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 2)
	assert.Equal(t, "name", verrs[0].Field())
	assert.Equal(t, "required", verrs[0].Tag())
	assert.Equal(t, "age", verrs[1].Field())
	assert.Equal(t, "max", verrs[1].Tag())

	assert.NoError(t, ValidateRequest(selfValidating{ok: true}))
	assert.EqualError(t, ValidateRequest(selfValidating{}), "not ok")
}
