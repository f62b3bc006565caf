package gcs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/mediagen/internal/config"
	"github.com/phrazzld/mediagen/internal/generation"
)

type upload struct {
	Bucket      string
	Name        string
	ContentType string
	Data        []byte
}

// fakeGCS accepts multipart uploads on the JSON API upload endpoint.
func fakeGCS(t *testing.T, status int) (*httptest.Server, func() []upload) {
	t.Helper()

	var (
		mu      sync.Mutex
		uploads []upload
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, "/upload/storage/v1/b/") {
			http.NotFound(w, r)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"forbidden"}}`))
			return
		}

		bucket := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/upload/storage/v1/b/"), "/o")
		u := upload{Bucket: bucket}

		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err == nil && params["boundary"] != "" {
			mr := multipart.NewReader(r.Body, params["boundary"])
			meta, err := mr.NextPart()
			if err == nil {
				var attrs struct {
					Name        string `json:"name"`
					ContentType string `json:"contentType"`
				}
				_ = json.NewDecoder(meta).Decode(&attrs)
				u.Name = attrs.Name
				u.ContentType = attrs.ContentType
			}
			if media, err := mr.NextPart(); err == nil {
				u.Data, _ = io.ReadAll(media)
			}
		}

		mu.Lock()
		uploads = append(uploads, u)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"bucket":      u.Bucket,
			"name":        u.Name,
			"contentType": u.ContentType,
			"size":        len(u.Data),
		})
	}))
	t.Cleanup(srv.Close)

	return srv, func() []upload {
		mu.Lock()
		defer mu.Unlock()
		return append([]upload(nil), uploads...)
	}
}

func newEmulatedPublisher(t *testing.T, srv *httptest.Server) *Publisher {
	t.Helper()

	t.Setenv("STORAGE_EMULATOR_HOST", strings.TrimPrefix(srv.URL, "http://"))

	client, err := storage.NewClient(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	p, err := NewPublisher(client, config.StorageConfig{
		Bucket:        "media-bucket",
		PublicBaseURL: "https://storage.googleapis.com/",
		DefaultFolder: "generations",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return p
}

func TestPublisher_Publish(t *testing.T) {
	srv, uploads := fakeGCS(t, http.StatusOK)
	p := newEmulatedPublisher(t, srv)

	url, err := p.Publish(context.Background(), []byte("png-bytes"), "image/png", "canvas-1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, "https://storage.googleapis.com/media-bucket/canvas-1/"), url)
	assert.True(t, strings.HasSuffix(url, ".png"), url)

	got := uploads()
	require.Len(t, got, 1)
	assert.Equal(t, "media-bucket", got[0].Bucket)
	assert.Equal(t, "image/png", got[0].ContentType)
	assert.Equal(t, []byte("png-bytes"), got[0].Data)
	assert.True(t, strings.HasSuffix(url, got[0].Name))
}

func TestPublisher_PublishFailure(t *testing.T) {
	srv, _ := fakeGCS(t, http.StatusForbidden)
	p := newEmulatedPublisher(t, srv)

	_, err := p.Publish(context.Background(), []byte("png-bytes"), "image/png", "")
	assert.ErrorIs(t, err, generation.ErrPublishFailed)
}

func TestPublisher_PublishCancelled(t *testing.T) {
	t.Run("already cancelled", func(t *testing.T) {
		srv, uploads := fakeGCS(t, http.StatusOK)
		p := newEmulatedPublisher(t, srv)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := p.Publish(ctx, []byte("png-bytes"), "image/png", "")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, uploads())
	})

	t.Run("cancelled during upload", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cancel()
			<-r.Context().Done()
		}))
		t.Cleanup(srv.Close)
		p := newEmulatedPublisher(t, srv)

		_, err := p.Publish(ctx, []byte("png-bytes"), "image/png", "")
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, generation.ErrPublishFailed)
	})
}

func TestNewPublisher_Validation(t *testing.T) {
	_, err := NewPublisher(nil, config.StorageConfig{Bucket: "b"}, nil)
	assert.Error(t, err)

	_, err = NewPublisher(&storage.Client{}, config.StorageConfig{}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}
