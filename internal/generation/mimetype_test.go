package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestDetectMIMEType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		declared string
		data     []byte
		want     string
	}{
		{"declared type wins", "image/webp", pngHeader, "image/webp"},
		{"declared parameters dropped", "image/jpeg; charset=binary", nil, "image/jpeg"},
		{"sniffed when undeclared", "", pngHeader, "image/png"},
		{"sniffed when generic", "application/octet-stream", []byte("GIF89a......"), "image/gif"},
		{"default when nothing known", "", nil, DefaultMIMEType},
		{"default for unknown binary", "application/octet-stream", []byte{0x00, 0x01}, DefaultMIMEType},
		{"default for malformed header and text", "not a / type ;;", []byte("plain words"), DefaultMIMEType},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectMIMEType(tc.declared, tc.data))
		})
	}
}
