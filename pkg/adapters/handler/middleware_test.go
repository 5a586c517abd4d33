package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/logging"
	"github.com/wadjakorntonsri/engsite/pkg/ratelimit"
)

func newTestMiddleware(store ratelimit.Store) *Middleware {
	logger := logging.Discard()
	if store == nil {
		store = ratelimit.NewMemoryStore()
	}
	return NewMiddleware(testConfig(), ratelimit.NewLimiter(store, logger), apperr.NewClassifier(logger, false), logger)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMiddleware(t *testing.T) {
	mw := newTestMiddleware(nil)

	noneToken := func() string {
		tok, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "x@example.com"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		return tok
	}()

	tests := []struct {
		name           string
		path           string
		cookieName     string
		cookieValue    string
		expectedStatus int
	}{
		{
			name:           "No Cookie - API",
			path:           "/api/v1/dashboard",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "No Cookie - Browser",
			path:           "/dashboard",
			expectedStatus: http.StatusTemporaryRedirect,
		},
		{
			name:           "Invalid Cookie - API",
			path:           "/api/v1/dashboard",
			cookieName:     authCookie,
			cookieValue:    "invalid",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Wrong Secret - API",
			path:           "/api/v1/dashboard",
			cookieName:     authCookie,
			cookieValue:    generateTestToken(t, "another-secret"),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Unsigned Token - API",
			path:           "/api/v1/dashboard",
			cookieName:     authCookie,
			cookieValue:    noneToken,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Valid Cookie - API",
			path:           "/api/v1/dashboard",
			cookieName:     authCookie,
			cookieValue:    generateTestToken(t, testSecret),
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.cookieName != "" {
				req.AddCookie(&http.Cookie{Name: tt.cookieName, Value: tt.cookieValue})
			}

			var gotEmail string
			rr := httptest.NewRecorder()
			mw.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotEmail = UserEmail(r.Context())
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, "test@example.com", gotEmail)
			}
			if tt.expectedStatus == http.StatusUnauthorized {
				assert.Contains(t, rr.Body.String(), string(apperr.CodeUnauthorized))
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	mw := newTestMiddleware(nil)
	policy := ratelimit.Policy{Name: "test", Max: 2, Window: time.Minute, FailOpen: true}
	h := mw.RateLimit(policy, apperr.ShapeError)(okHandler)

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/quotes", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	first := send("203.0.113.7:5000")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, first.Header().Get("X-RateLimit-Reset"))

	assert.Equal(t, http.StatusOK, send("203.0.113.7:5001").Code)

	blocked := send("203.0.113.7:5002")
	require.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(blocked.Body.Bytes(), &body))
	assert.Equal(t, string(apperr.CodeRateLimited), body["code"])
	assert.Contains(t, body, "error")
	assert.NotContains(t, body, "message")
	assert.Greater(t, body["retryAfter"], float64(0))

	// another client has its own window
	assert.Equal(t, http.StatusOK, send("198.51.100.1:5000").Code)
}

func TestRateLimit_StoreFailure(t *testing.T) {
	mw := newTestMiddleware(brokenStore{})

	for _, tt := range []struct {
		name     string
		failOpen bool
		want     int
	}{
		{"fail open admits", true, http.StatusOK},
		{"fail closed rejects", false, http.StatusTooManyRequests},
	} {
		t.Run(tt.name, func(t *testing.T) {
			p := ratelimit.Policy{Name: tt.name, Max: 1, Window: time.Minute, FailOpen: tt.failOpen}
			rr := httptest.NewRecorder()
			mw.RateLimit(p, apperr.ShapeMessage)(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestRequireJSON(t *testing.T) {
	mw := newTestMiddleware(nil)
	var read error
	h := mw.RequireJSON(apperr.ShapeMessage)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, read = readBody(r)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("rejects other content types", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("name=x"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("accepts charset parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NoError(t, read)
	})

	t.Run("caps body size", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(bytes.Repeat([]byte("a"), 5000)))
		req.Header.Set("Content-Type", "application/json")
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.Error(t, read)
		assert.Equal(t, "request body is too large", apperr.DetailOf(read))
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	mw := newTestMiddleware(nil)
	var seen string
	h := mw.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rr.Header().Get("X-Request-ID"))

	const incoming = "6f1c5a52-5d1e-4c1f-9a57-3c2b1d0e4f10"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", incoming)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, incoming, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "<script>")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "<script>", seen)
}

func TestRecover(t *testing.T) {
	mw := newTestMiddleware(nil)
	h := mw.Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("db password is hunter2")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.NotContains(t, string(body), "hunter2")
	assert.Contains(t, string(body), string(apperr.CodeInternal))
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestMiddleware(nil).SecurityHeaders(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}
