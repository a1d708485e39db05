package httputil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/contextkeys"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestOriginFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		wantAddr   string
		proxied    bool
		local      bool
	}{
		{name: "loopback", remoteAddr: "127.0.0.1:5555", wantAddr: "127.0.0.1", local: true},
		{name: "ipv6 loopback", remoteAddr: "[::1]:5555", wantAddr: "::1", local: true},
		{name: "mapped private", remoteAddr: "[::ffff:192.168.0.7]:80", wantAddr: "192.168.0.7", local: true},
		{name: "public", remoteAddr: "198.51.100.3:1234", wantAddr: "198.51.100.3"},
		{
			name:       "forwarded loopback",
			remoteAddr: "127.0.0.1:5555",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1"},
			wantAddr:   "127.0.0.1",
			proxied:    true,
		},
		{
			name:       "cloudflare header lower case",
			remoteAddr: "10.0.0.2:5555",
			headers:    map[string]string{"cf-connecting-ip": "203.0.113.1"},
			wantAddr:   "10.0.0.2",
			proxied:    true,
		},
		{name: "garbage", remoteAddr: "not-an-address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			origin := OriginFromRequest(r)
			if tt.wantAddr == "" {
				assert.False(t, origin.RemoteAddr.IsValid())
			} else {
				assert.Equal(t, tt.wantAddr, origin.RemoteAddr.String())
			}
			assert.Equal(t, tt.proxied, origin.Proxied)
			assert.Equal(t, tt.local, origin.IsLocal())
		})
	}
}

func TestIsProxied_EveryHeader(t *testing.T) {
	for _, h := range ProxyHeaders {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(h, "x")
		assert.True(t, IsProxied(r), h)
	}
	assert.False(t, IsProxied(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestIsProxied_EmptyHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header["X-Forwarded-For"] = []string{""}
	assert.True(t, IsProxied(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("x-real-ip", "")
	assert.True(t, IsProxied(r))
}

func TestParsePathString(t *testing.T) {
	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/auth/discord/me", nil), map[string]string{"provider": "discord"})

	v, err := ParsePathString(r, "provider")
	assert.NoError(t, err)
	assert.Equal(t, "discord", v)

	_, err = ParsePathString(r, "missing")
	assert.Error(t, err)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	incoming := uuid.NewString()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, incoming)
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, incoming, seen)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "<script>")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.NotEqual(t, "<script>", seen)
}

func TestLoggingAndRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	var hasLogger bool
	h := Chain(
		RequestIDMiddleware,
		LoggingMiddleware(logger),
		RecoveryMiddleware(logger),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasLogger = r.Context().Value(contextkeys.LoggerKey).(logrus.FieldLogger)
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/status", nil))

	assert.True(t, hasLogger)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "PANIC recovered")
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestCORSMiddleware(t *testing.T) {
	h := CORSMiddleware([]string{"https://facts.example.org"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))

	r := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	r.Header.Set("Origin", "https://facts.example.org")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "https://facts.example.org", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "ok", w.Body.String())

	r = httptest.NewRequest(http.MethodOptions, "/auth/status", nil)
	r.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
