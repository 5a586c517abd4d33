package ports

import (
	"context"
	"errors"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// SubmissionRepository stores the non-PII trace of each lead. The
// idempotency key is unique while the record has not expired.
type SubmissionRepository interface {
	// Reserve inserts sub as pending. If an unexpired record already holds the
	// key it is returned together with ErrDuplicate, unless that record is
	// still pending past its LeaseUntil: then it is marked failed and sub
	// takes the key over.
	Reserve(ctx context.Context, sub *domain.Submission) (*domain.Submission, error)
	Complete(ctx context.Context, key, crmID string, at time.Time) error
	// Release marks a pending reservation failed and frees its key so the
	// visitor can resubmit.
	Release(ctx context.Context, key string) error
	GetByKey(ctx context.Context, key string) (*domain.Submission, error)
	List(ctx context.Context, limit, offset int, filters map[string]interface{}) ([]domain.Submission, error)
	Count(ctx context.Context, filters map[string]interface{}) (int64, error)
	Stats(ctx context.Context, since time.Time) (*domain.SubmissionStats, error)
	Dump(ctx context.Context) ([]domain.Submission, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// AnalyticsRepository keeps anonymous interaction events.
type AnalyticsRepository interface {
	RecordEvents(ctx context.Context, evs []domain.AnalyticsEvent) (int, error)
	Summary(ctx context.Context, since time.Time) (*domain.AnalyticsSummary, error)
}

// AnalyticsTracker accepts events fire-and-forget.
type AnalyticsTracker interface {
	Track(ctx context.Context, ev domain.AnalyticsEvent)
}

// Auditor writes security-relevant events to the audit sink.
type Auditor interface {
	Event(ctx context.Context, ev domain.AuditEvent)
}

// CRM receives validated leads and returns its own record id.
type CRM interface {
	CreateLead(ctx context.Context, lead domain.Lead, idempotencyKey string) (string, error)
}

// UploadSigner hands out short-lived upload URLs for quote attachments. The
// signer owns object naming; meta.Name is only a hint for the key's suffix.
type UploadSigner interface {
	PresignUpload(ctx context.Context, meta domain.FileMeta) (*domain.UploadTicket, error)
}

// LeadService runs validation, deduplication, the CRM call and auditing.
type LeadService interface {
	Submit(ctx context.Context, req domain.LeadRequest) (*domain.SubmissionResult, error)
}

type CatalogService interface {
	List(ctx context.Context) []domain.Service
	Get(ctx context.Context, slug string) (*domain.Service, error)
}

// DashboardService backs the admin API.
type DashboardService interface {
	GetDashboard(ctx context.Context, days int) (*domain.Dashboard, error)
	ListSubmissions(ctx context.Context, page, limit int, kind, audience string) ([]domain.Submission, int64, error)
}
