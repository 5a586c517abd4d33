package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/config"
	"github.com/wadjakorntonsri/engsite/pkg/core/content"
	"github.com/wadjakorntonsri/engsite/pkg/core/validation"
	"github.com/wadjakorntonsri/engsite/pkg/logging"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
	"github.com/wadjakorntonsri/engsite/pkg/ratelimit"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything the router needs. Tracker and DB may be nil.
type Deps struct {
	Config     *config.Config
	Logger     logging.Logger
	Auditor    ports.Auditor
	Tracker    ports.AnalyticsTracker
	Classifier *apperr.Classifier
	Limiter    *ratelimit.Limiter
	Validator  *validation.Validator
	Renderer   *content.Renderer
	Leads      ports.LeadService
	Catalog    ports.CatalogService
	Dashboard  ports.DashboardService
	Uploads    ports.UploadSigner
	DB         Pinger
}

// Policies returns the rate limits for the public write endpoints. Lead
// forms fail open so a counter outage never loses a lead; uploads fail closed.
func Policies(cfg *config.Config) (leads, uploads ratelimit.Policy) {
	leads = ratelimit.Policy{Name: "leads", Max: cfg.LeadRateLimit, Window: cfg.LeadRateWindow, FailOpen: true}
	uploads = ratelimit.Policy{Name: "uploads", Max: cfg.UploadRateLimit, Window: cfg.UploadRateWindow, FailOpen: false}
	return leads, uploads
}

// NewRouter creates and configures the main application router
func NewRouter(d Deps) (http.Handler, error) {
	cfg := d.Config
	secure := cfg.IsProduction()

	mw := NewMiddleware(cfg, d.Limiter, d.Classifier, d.Logger)
	authHandler := NewAuthHandler(cfg, d.Auditor, d.Classifier)
	leads := NewLeadHandler(d.Leads, d.Classifier, cfg.TrustProxy)
	aud := NewAudienceHandler(d.Renderer, d.Tracker, d.Logger, d.Classifier, secure)
	uploadHandler := NewUploadHandler(d.Validator, d.Uploads, d.Auditor, d.Classifier, cfg.TrustProxy)
	dash := NewDashboardHandler(d.Dashboard, d.Classifier)
	catalog := NewCatalogHandler(d.Catalog, d.Classifier)
	pages, err := NewPageHandler(aud, d.Renderer, d.Catalog, d.Logger)
	if err != nil {
		return nil, err
	}

	leadPolicy, uploadPolicy := Policies(cfg)

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.DB.Ping(ctx); err != nil {
				d.Logger.Warn(r.Context(), "readiness check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "ready"})
	})

	// Pages
	mux.Handle("GET /static/", StaticFiles())
	mux.HandleFunc("GET /{$}", pages.Home)
	mux.HandleFunc("GET /services", pages.Services)
	mux.HandleFunc("GET /services/{slug}", pages.Service)
	mux.HandleFunc("GET /contact", pages.Contact)
	mux.HandleFunc("GET /quote", pages.Quote)
	mux.HandleFunc("POST /audience", aud.SelectForm)
	mux.HandleFunc("GET /", pages.NotFound)

	// Public API
	mux.Handle("POST /api/consultation", chain(http.HandlerFunc(leads.Consultation),
		mw.RateLimit(leadPolicy, apperr.ShapeMessage), mw.RequireJSON(apperr.ShapeMessage)))
	mux.Handle("POST /api/quotes", chain(http.HandlerFunc(leads.Quote),
		mw.RateLimit(leadPolicy, apperr.ShapeError), mw.RequireJSON(apperr.ShapeError)))
	mux.Handle("POST /api/uploads", chain(http.HandlerFunc(uploadHandler.Create),
		mw.RateLimit(uploadPolicy, apperr.ShapeMessage), mw.RequireJSON(apperr.ShapeMessage)))
	mux.HandleFunc("GET /api/audience", aud.Get)
	mux.Handle("POST /api/audience", mw.RequireJSON(apperr.ShapeMessage)(http.HandlerFunc(aud.Select)))
	mux.HandleFunc("DELETE /api/audience", aud.Clear)
	mux.HandleFunc("GET /api/services", catalog.List)
	mux.HandleFunc("GET /api/services/{slug}", catalog.Get)

	// Admin login
	mux.HandleFunc("GET /auth/google/login", authHandler.Login)
	mux.HandleFunc("GET /auth/google/callback", authHandler.Callback)
	mux.HandleFunc("GET /auth/logout", authHandler.Logout)

	// Protected Routes (admin API)
	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("GET /api/v1/dashboard", dash.Dashboard)
	protectedMux.HandleFunc("GET /api/v1/submissions", dash.Submissions)
	protectedMux.HandleFunc("GET /api/v1/me", dash.Me)
	mux.Handle("GET /api/v1/", mw.AuthMiddleware(protectedMux))

	return chain(mux, mw.Recover, mw.RequestIDMiddleware, mw.SecurityHeaders), nil
}
