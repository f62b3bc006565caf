package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/mediagen/internal/config"
	"github.com/phrazzld/mediagen/internal/mocks"
	"github.com/phrazzld/mediagen/internal/platform/localfs"
	"github.com/phrazzld/mediagen/internal/platform/memory"
	"github.com/phrazzld/mediagen/internal/platform/metrics"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:                8080,
			LogLevel:            "debug",
			PollTimeout:         time.Minute,
			SubmitRatePerSecond: 100,
			SubmitBurst:         100,
		},
		Store: config.StoreConfig{Backend: storeBackendMemory, ClaimLease: 10 * time.Minute},
		Auth:  config.AuthConfig{JWTSecret: testSecret},
		Provider: config.ProviderConfig{
			Project:       "test-project",
			Location:      "us-central1",
			DefaultModel:  "default-model",
			ExpectedMedia: []string{"image/"},
		},
		Storage: config.StorageConfig{
			Backend:       "local",
			PublicBaseURL: "http://localhost:8080/media",
			DefaultFolder: "generations",
			LocalDir:      "/srv/media",
		},
	}
}

type testServer struct {
	handler  http.Handler
	provider *mocks.MockProvider
	fs       afero.Fs
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fs := afero.NewMemMapFs()
	publisher, err := localfs.NewPublisher(fs, cfg.Storage, logger)
	require.NoError(t, err)

	provider := mocks.NewMockProviderWithImage(pngBytes, "image/png")
	app, err := assemble(cfg, logger, metrics.NewCollector(metricsNamespace), components{
		store:     memory.NewTaskStore(),
		provider:  provider,
		inputs:    &mocks.MockFetcher{},
		outputs:   &mocks.MockFetcher{},
		publisher: publisher,
		media:     publisher.Handler(),
	})
	require.NoError(t, err)

	return &testServer{handler: app.setupRouter(), provider: provider, fs: fs}
}

func bearer(t *testing.T) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  "user-1",
		"type": "access",
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func (s *testServer) do(t *testing.T, method, path string, body any, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if auth {
		req.Header.Set("Authorization", bearer(t))
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := s.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Trace-ID"))
}

func TestRouter_RequiresAuth(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := s.do(t, http.MethodPost, "/api/generations", map[string]string{"prompt": "p"}, false)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, s.provider.CallCount())
}

func TestRouter_GenerationLifecycle(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := s.do(t, http.MethodPost, "/api/generations", map[string]string{
		"prompt":     "a red cube",
		"model":      "m1",
		"ownerRef":   "canvas-1",
		"folderHint": "canvas-1/images",
	}, true)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var submitted struct {
		TaskID string `json:"taskId"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &submitted))

	rr = s.do(t, http.MethodGet, "/api/generations/"+submitted.TaskID, nil, true)
	require.Equal(t, http.StatusOK, rr.Code)

	var polled struct {
		Status    string `json:"status"`
		ResultURL string `json:"resultUrl"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &polled))
	assert.Equal(t, "succeeded", polled.Status)
	require.True(t, strings.HasPrefix(polled.ResultURL, "http://localhost:8080/media/canvas-1/images/"), polled.ResultURL)

	// The published file is served under /media.
	mediaPath := strings.TrimPrefix(polled.ResultURL, "http://localhost:8080")
	rr = s.do(t, http.MethodGet, mediaPath, nil, false)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, pngBytes, rr.Body.Bytes())

	rr = s.do(t, http.MethodGet, "/api/canvases/canvas-1/generations", nil, true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), submitted.TaskID)

	rr = s.do(t, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "mediagen_tasks_submitted_total 1")
	assert.Contains(t, rr.Body.String(), `mediagen_http_requests_total{method="POST",route="/api/generations",status="202"} 1`)

	assert.Equal(t, 1, s.provider.CallCount())
}

func TestRouter_SubmitRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.SubmitRatePerSecond = 0.01
	cfg.Server.SubmitBurst = 1
	s := newTestServer(t, cfg)

	rr := s.do(t, http.MethodPost, "/api/generations", map[string]string{"prompt": "p"}, true)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/generations", map[string]string{"prompt": "p"}, true)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// Polls are not limited.
	rr = s.do(t, http.MethodGet, "/api/canvases/c/generations", nil, true)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAssemble_InvalidSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "short"

	_, err := assemble(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, components{
		store:     memory.NewTaskStore(),
		provider:  &mocks.MockProvider{},
		inputs:    &mocks.MockFetcher{},
		outputs:   &mocks.MockFetcher{},
		publisher: &mocks.MockPublisher{},
	})
	assert.Error(t, err)
}

func TestNewTaskStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, closeFn, err := newTaskStore(context.Background(), config.StoreConfig{Backend: storeBackendMemory}, logger)
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.NoError(t, closeFn())

	_, _, err = newTaskStore(context.Background(), config.StoreConfig{Backend: "etcd"}, logger)
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestRunMigrations_RequiresPostgres(t *testing.T) {
	cfg := testConfig()
	err := runMigrations(context.Background(), cfg, "up", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "postgres")
}

func TestServeListener_GracefulShutdown(t *testing.T) {
	cfg := testConfig()
	app := &application{config: cfg, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.serveListener(ctx, ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
