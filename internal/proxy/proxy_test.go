package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUpstream(t *testing.T, handler http.HandlerFunc) *IPQS {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewIPQS(srv.URL+"/api/json/url", "test-key", srv.Client())
}

func TestCheckURLPassesThrough(t *testing.T) {
	const payload = `{"success":true,"unsafe":false,"suspicious":true,"risk_score":75,"extra":{"nested":[1,2]}}`
	var gotPath, gotURL, gotFast string
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotURL = r.URL.Query().Get("url")
		gotFast = r.URL.Query().Get("fast")
		w.Write([]byte(payload))
	})
	h := &Handler{Upstream: upstream, Log: zerolog.Nop()}

	req := httptest.NewRequest("GET", "/check-url?url=http%3A%2F%2Fexample.com%2Fx%3Fy%3D1&fast=true", nil)
	rr := httptest.NewRecorder()
	h.CheckURL(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, payload, rr.Body.String())
	assert.Equal(t, "/api/json/url/test-key", gotPath)
	assert.Equal(t, "http://example.com/x?y=1", gotURL)
	assert.Equal(t, "true", gotFast)
}

func TestCheckURLUpstreamFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded for key test-key", http.StatusTooManyRequests)
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>maintenance</html>"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Handler{Upstream: newUpstream(t, tt.handler), Log: zerolog.Nop()}
			rr := httptest.NewRecorder()
			h.CheckURL(rr, httptest.NewRequest("GET", "/check-url?url=http://a.com", nil))

			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			var body map[string]any
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, map[string]any{"success": false, "message": "Failed to check the URL."}, body)
		})
	}
}

func TestCheckURLUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	h := &Handler{Upstream: NewIPQS(srv.URL, "k", nil), Log: zerolog.Nop()}

	rr := httptest.NewRecorder()
	h.CheckURL(rr, httptest.NewRequest("GET", "/check-url?url=http://a.com", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestCheckURLMissingParam(t *testing.T) {
	h := &Handler{Upstream: NewIPQS("http://unused", "k", nil), Log: zerolog.Nop()}
	rr := httptest.NewRecorder()
	h.CheckURL(rr, httptest.NewRequest("GET", "/check-url", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := CORS("https://chat.example")(next)

	req := httptest.NewRequest("GET", "/check-url?url=a.com", nil)
	req.Header.Set("Origin", "https://chat.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "https://chat.example", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/check-url?url=a.com", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
