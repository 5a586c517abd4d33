package handler

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/config"
	"github.com/wadjakorntonsri/engsite/pkg/logging"
	"github.com/wadjakorntonsri/engsite/pkg/ratelimit"
)

type ctxKey int

const (
	userEmailKey ctxKey = iota
	requestIDKey
)

const authCookie = "auth_token"

// UserEmail returns the authenticated subject, if any.
func UserEmail(ctx context.Context) string {
	v, _ := ctx.Value(userEmailKey).(string)
	return v
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

type Middleware struct {
	jwtSecret  []byte
	limiter    *ratelimit.Limiter
	classifier *apperr.Classifier
	logger     logging.Logger
	trustProxy bool
	maxBody    int64
}

func NewMiddleware(cfg *config.Config, limiter *ratelimit.Limiter, classifier *apperr.Classifier, logger logging.Logger) *Middleware {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 << 10
	}
	return &Middleware{
		jwtSecret:  []byte(cfg.JWTSecret),
		limiter:    limiter,
		classifier: classifier,
		logger:     logger,
		trustProxy: cfg.TrustProxy,
		maxBody:    maxBody,
	}
}

// AuthMiddleware verifies the JWT token from the cookie
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := m.subject(r)
		if err != nil {
			if isAPIRequest(r) {
				m.classifier.Respond(w, r, apperr.Unauthorized(err), apperr.ShapeMessage)
			} else {
				http.Redirect(w, r, "/auth/google/login", http.StatusTemporaryRedirect)
			}
			return
		}

		ctx := context.WithValue(r.Context(), userEmailKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) subject(r *http.Request) (string, error) {
	cookie, err := r.Cookie(authCookie)
	if err != nil {
		return "", err
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(token *jwt.Token) (interface{}, error) {
		return m.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}

func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// RateLimit counts every request against p. Signed-in admins are keyed by
// subject, everyone else by pseudonymized address.
func (m *Middleware) RateLimit(p ratelimit.Policy, shape apperr.Shape) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, _ := m.subject(r)
			client := ratelimit.ClientKey(r, subject, m.trustProxy)
			res := m.limiter.Enforce(r.Context(), p, client)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.ResetTime.IsZero() {
				h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
			}

			if !res.Allowed {
				m.logger.Warn(r.Context(), "rate limit exceeded", "policy", p.Name, "client", client, "retry_after", res.RetryAfter)
				m.classifier.Respond(w, r, apperr.RateLimited(res.RetryAfter), shape)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSON rejects bodies that are not declared as JSON and caps their size.
func (m *Middleware) RequireJSON(shape apperr.Shape) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mt != "application/json" {
				m.classifier.Respond(w, r, apperr.Validation("", "Content-Type must be application/json"), shape)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, m.maxBody)
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDMiddleware tags the request with an id, reusing a sane incoming one.
func (m *Middleware) RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (m *Middleware) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apperr.SetSecurityHeaders(w)
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Recover turns a panic into a generic 500 so nothing internal reaches the client.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				m.classifier.Respond(w, r, fmt.Errorf("panic: %v", v), apperr.ShapeMessage)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// chain applies mws so the first one is outermost.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
