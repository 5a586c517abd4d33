// Package app wires configuration, storage, services and transport into a
// runnable site.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/adapters/crm"
	"github.com/wadjakorntonsri/engsite/pkg/adapters/handler"
	"github.com/wadjakorntonsri/engsite/pkg/adapters/repository/sqlstore"
	"github.com/wadjakorntonsri/engsite/pkg/adapters/uploads"
	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/audit"
	"github.com/wadjakorntonsri/engsite/pkg/config"
	"github.com/wadjakorntonsri/engsite/pkg/core/content"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/core/services"
	"github.com/wadjakorntonsri/engsite/pkg/core/validation"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
	"github.com/wadjakorntonsri/engsite/pkg/ratelimit"
)

type App struct {
	Config    *config.Config
	Logger    *audit.Logger
	Store     *sqlstore.Store
	Limiter   *ratelimit.Limiter
	Analytics *services.AnalyticsService
	Leads     *services.LeadService
	Dashboard *services.DashboardService
	Handler   http.Handler
}

type options struct {
	logOutput io.Writer
	crm       ports.CRM
	uploads   ports.UploadSigner
}

type Option func(*options)

func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithCRM replaces the CRM built from configuration.
func WithCRM(c ports.CRM) Option {
	return func(o *options) { o.crm = c }
}

func WithUploadSigner(s ports.UploadSigner) Option {
	return func(o *options) { o.uploads = s }
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logOutput: os.Stdout}
	for _, fn := range opts {
		fn(&o)
	}

	prod := cfg.IsProduction()
	var forwarder audit.Forwarder
	if cfg.LogSinkURL != "" {
		forwarder = audit.NewHTTPForwarder(cfg.LogSinkURL, 5*time.Second)
	}
	logger := audit.New(audit.NewHandler(o.logOutput, prod, cfg.LogLevel), prod, forwarder)

	store, err := sqlstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	var counters ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RateLimitStore == "database" {
		counters = store.RateLimits()
	}
	limiter := ratelimit.NewLimiter(counters, logger)

	validator, err := validation.New()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("compile schemas: %w", err)
	}

	if o.crm == nil {
		if cfg.CRMBaseURL == "" {
			logger.Warn(ctx, "CRM_BASE_URL not set, leads are only logged")
			o.crm = crm.NewDryRun(logger)
		} else {
			o.crm = crm.NewHTTPClient(ctx, crm.Config{
				BaseURL:      cfg.CRMBaseURL,
				APIKey:       cfg.CRMAPIKey,
				ClientID:     cfg.CRMClientID,
				ClientSecret: cfg.CRMClientSecret,
				TokenURL:     cfg.CRMTokenURL,
				Timeout:      cfg.CRMTimeout,
			})
		}
	}

	if o.uploads == nil {
		if cfg.S3Bucket == "" {
			o.uploads = uploads.Disabled{}
		} else {
			signer, err := uploads.NewS3Signer(ctx, uploads.Config{
				Bucket:    cfg.S3Bucket,
				Region:    cfg.S3Region,
				Endpoint:  cfg.S3Endpoint,
				AccessKey: cfg.S3AccessKey,
				SecretKey: cfg.S3SecretKey,
				Expiry:    cfg.UploadURLExpiry,
			})
			if err != nil {
				store.Close()
				return nil, err
			}
			o.uploads = signer
		}
	}

	analytics := services.NewAnalyticsService(store, logger, 1024, 100, 2*time.Second)
	leads := services.NewLeadService(validator, store, o.crm, logger, analytics, logger, services.LeadServiceConfig{
		CRMTimeout:     cfg.CRMTimeout,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})
	dashboard := services.NewDashboardService(store, store)

	fallback, ok := domain.ParseAudience(cfg.DefaultAudience)
	if !ok || !fallback.IsSegment() {
		fallback = domain.AudienceStartup
	}
	renderer := content.NewRenderer(content.Policy{FallbackAudience: fallback, ShowNotice: cfg.ShowDefaultNotice}, analytics)

	h, err := handler.NewRouter(handler.Deps{
		Config:     cfg,
		Logger:     logger,
		Auditor:    logger,
		Tracker:    analytics,
		Classifier: apperr.NewClassifier(logger, !prod),
		Limiter:    limiter,
		Validator:  validator,
		Renderer:   renderer,
		Leads:      leads,
		Catalog:    services.NewCatalogService(),
		Dashboard:  dashboard,
		Uploads:    o.uploads,
		DB:         store,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build router: %w", err)
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Limiter:   limiter,
		Analytics: analytics,
		Leads:     leads,
		Dashboard: dashboard,
		Handler:   h,
	}, nil
}

// Sweep drops expired rate-limit counters and frees expired idempotency keys.
func (a *App) Sweep(ctx context.Context) (counters, keys int, err error) {
	counters, err = a.Limiter.Sweep(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("sweep rate limits: %w", err)
	}
	keys, err = a.Store.PurgeExpired(ctx, time.Now())
	if err != nil {
		return counters, 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return counters, keys, nil
}

// StartBackground runs the analytics writer, the rate-limit sweeper, the
// idempotency key purge and the log forwarder until ctx is done. The returned
// function blocks until all of them have stopped; the log forwarder stops
// last so it flushes what the others logged on their way out.
func (a *App) StartBackground(ctx context.Context) (wait func()) {
	interval := a.Config.RateLimitSweepInterval
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		a.Analytics.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.Limiter.Run(ctx, interval)
	}()
	go func() {
		defer wg.Done()
		a.purgeLoop(ctx, interval)
	}()

	logCtx, stopLog := context.WithCancel(context.WithoutCancel(ctx))
	logDone := make(chan struct{})
	go func() {
		defer close(logDone)
		a.Logger.Run(logCtx)
	}()

	return func() {
		wg.Wait()
		stopLog()
		<-logDone
	}
}

func (a *App) purgeLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := a.Store.PurgeExpired(ctx, now)
			if err != nil {
				a.Logger.Warn(ctx, "idempotency key purge failed", "error", err)
				continue
			}
			if n > 0 {
				a.Logger.Debug(ctx, "idempotency keys purged", "removed", n)
			}
		}
	}
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
// before stopping the background workers so their last events are flushed.
func (a *App) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           a.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      a.Config.CRMTimeout + 10*time.Second,
	}

	bgCtx, stopBG := context.WithCancel(context.WithoutCancel(ctx))
	wait := a.StartBackground(bgCtx)
	defer func() {
		stopBG()
		wait()
	}()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info(ctx, "server starting", "port", a.Config.Port, "env", a.Config.AppEnv)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.Logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
