package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/config"
	"github.com/wadjakorntonsri/engsite/pkg/core/content"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/core/services"
	"github.com/wadjakorntonsri/engsite/pkg/core/validation"
	"github.com/wadjakorntonsri/engsite/pkg/logging"
	"github.com/wadjakorntonsri/engsite/pkg/ratelimit"
)

const testSecret = "testservlet"

type fakeLeads struct {
	mu    sync.Mutex
	calls []domain.LeadRequest
	res   *domain.SubmissionResult
	err   error
}

func (f *fakeLeads) Submit(_ context.Context, req domain.LeadRequest) (*domain.SubmissionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.res != nil {
		return f.res, nil
	}
	prefix := "CN-"
	if req.Kind == domain.LeadQuotation {
		prefix = "QT-"
	}
	return &domain.SubmissionResult{Reference: prefix + "0000ABCD", Kind: req.Kind}, nil
}

func (f *fakeLeads) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSigner struct {
	keys []string
}

func (f *fakeSigner) PresignUpload(_ context.Context, meta domain.FileMeta) (*domain.UploadTicket, error) {
	key := "quotes/2026/10/16/0000/" + meta.Name
	f.keys = append(f.keys, key)
	return &domain.UploadTicket{
		Key:       key,
		URL:       "https://bucket.example/" + key + "?sig=1",
		Method:    http.MethodPut,
		Headers:   map[string]string{"Content-Type": meta.ContentType},
		ExpiresAt: time.Now().Add(time.Minute),
	}, nil
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *recordingAuditor) Event(_ context.Context, ev domain.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingAuditor) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Event)
	}
	return out
}

type fakeDashboard struct{}

func (fakeDashboard) GetDashboard(_ context.Context, days int) (*domain.Dashboard, error) {
	return &domain.Dashboard{
		Since:       time.Now().AddDate(0, 0, -days),
		Submissions: &domain.SubmissionStats{Total: 3},
		Analytics:   &domain.AnalyticsSummary{},
	}, nil
}

func (fakeDashboard) ListSubmissions(_ context.Context, page, limit int, kind, audience string) ([]domain.Submission, int64, error) {
	return []domain.Submission{{Reference: "QT-1", Kind: domain.LeadQuotation, Audience: domain.AudienceStartup}}, 1, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type brokenStore struct{}

func (brokenStore) Increment(context.Context, string, time.Time) (int, error) {
	return 0, errors.New("store down")
}

func (brokenStore) Sweep(context.Context, time.Time) (int, error) { return 0, nil }

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:           "local",
		JWTSecret:        testSecret,
		DashboardURL:     "/api/v1/dashboard",
		MaxBodyBytes:     4096,
		LeadRateLimit:    3,
		LeadRateWindow:   time.Minute,
		UploadRateLimit:  2,
		UploadRateWindow: time.Minute,
	}
}

type testEnv struct {
	handler http.Handler
	leads   *fakeLeads
	signer  *fakeSigner
	auditor *recordingAuditor
}

func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()
	logger := logging.Discard()
	env := &testEnv{leads: &fakeLeads{}, signer: &fakeSigner{}, auditor: &recordingAuditor{}}

	d := Deps{
		Config:     testConfig(),
		Logger:     logger,
		Auditor:    env.auditor,
		Classifier: apperr.NewClassifier(logger, false),
		Limiter:    ratelimit.NewLimiter(ratelimit.NewMemoryStore(), logger),
		Validator:  validation.MustNew(),
		Renderer:   content.NewRenderer(content.DefaultPolicy(), nil),
		Leads:      env.leads,
		Catalog:    services.NewCatalogService(),
		Dashboard:  fakeDashboard{},
		Uploads:    env.signer,
		DB:         pinger{},
	}
	for _, m := range mutate {
		m(&d)
	}

	h, err := NewRouter(d)
	require.NoError(t, err)
	env.handler = h
	return env
}

func (e *testEnv) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func generateTestToken(t *testing.T, secret string) string {
	t.Helper()
	claims := &jwt.RegisteredClaims{
		Subject:   "test@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tokenString
}

func cookieNamed(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
