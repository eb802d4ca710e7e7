package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigachat-relay/internal/handlers"
	"gigachat-relay/internal/middleware"
	"gigachat-relay/internal/services"
)

type recordingCompleter struct {
	reply    string
	calls    int
	messages []json.RawMessage
}

func (c *recordingCompleter) Name() string { return "stub" }

func (c *recordingCompleter) Complete(ctx context.Context, messages []json.RawMessage) (string, error) {
	c.calls++
	c.messages = messages
	return c.reply, nil
}

func newTestRouter(t *testing.T, staticDir string) (http.Handler, *recordingCompleter) {
	t.Helper()
	upstream := &recordingCompleter{reply: "Hello!"}
	relay := services.NewRelayService(upstream, 0)
	auth := middleware.NewBasicAuth("demo", "s3cret", "gigachat-relay")
	return New(auth, handlers.NewRelayHandler(relay), []string{"*"}, staticDir), upstream
}

func TestPredict_Success(t *testing.T) {
	r, upstream := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	req.SetBasicAuth("demo", "s3cret")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"role":"assistant","content":"Hello!"}`, rr.Body.String())
	assert.Equal(t, 1, upstream.calls)
	require.Len(t, upstream.messages, 1)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(upstream.messages[0]))
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
}

func TestPredict_Unauthenticated(t *testing.T) {
	tests := []struct {
		name string
		user string
		pass string
		set  bool
	}{
		{"missing credentials", "", "", false},
		{"wrong password", "demo", "wrong", true},
		{"wrong username", "admin", "s3cret", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, upstream := newTestRouter(t, "")

			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
			if tc.set {
				req.SetBasicAuth(tc.user, tc.pass)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "Basic")
			assert.Zero(t, upstream.calls)
		})
	}
}

func TestPredict_MissingMessages(t *testing.T) {
	for _, body := range []string{`{}`, `{"messages":null}`, `{"messages":[]}`, `{"prompt":"hi"}`, `not json`} {
		t.Run(body, func(t *testing.T) {
			r, upstream := newTestRouter(t, "")

			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
			req.SetBasicAuth("demo", "s3cret")
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Zero(t, upstream.calls)
		})
	}
}

func TestAuthEndpoint(t *testing.T) {
	r, upstream := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/auth", nil)
	req.SetBasicAuth("demo", "s3cret")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/auth", nil)
	req.SetBasicAuth("demo", "nope")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, upstream.calls)
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, "")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>relay</h1>"), 0o644))
	r, _ := newTestRouter(t, dir)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/index.html", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "relay")

	r, _ = newTestRouter(t, filepath.Join(dir, "missing"))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/index.html", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "https://demo.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://demo.example", rr.Header().Get("Access-Control-Allow-Origin"))
}
