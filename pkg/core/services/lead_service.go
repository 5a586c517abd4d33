package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/core/validation"
	"github.com/wadjakorntonsri/engsite/pkg/logging"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

var errInFlight = errors.New("an identical submission is still being processed")

type LeadService struct {
	validator  *validation.Validator
	repo       ports.SubmissionRepository
	crm        ports.CRM
	auditor    ports.Auditor
	tracker    ports.AnalyticsTracker
	logger     logging.Logger
	crmTimeout time.Duration
	ttl        time.Duration
	now        func() time.Time
}

// pendingLeaseMargin is added to the CRM timeout to cover the store writes
// around the call.
const pendingLeaseMargin = 30 * time.Second

type LeadServiceConfig struct {
	CRMTimeout     time.Duration
	IdempotencyTTL time.Duration
}

// NewLeadService wires the pipeline. tracker may be nil.
func NewLeadService(
	validator *validation.Validator,
	repo ports.SubmissionRepository,
	crm ports.CRM,
	auditor ports.Auditor,
	tracker ports.AnalyticsTracker,
	logger logging.Logger,
	cfg LeadServiceConfig,
) *LeadService {
	if cfg.CRMTimeout <= 0 {
		cfg.CRMTimeout = 10 * time.Second
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &LeadService{
		validator:  validator,
		repo:       repo,
		crm:        crm,
		auditor:    auditor,
		tracker:    tracker,
		logger:     logger,
		crmTimeout: cfg.CRMTimeout,
		ttl:        cfg.IdempotencyTTL,
		now:        time.Now,
	}
}

// Submit validates the payload, deduplicates it, forwards it to the CRM and
// records the outcome. Rate limiting happens before this, at the transport.
func (s *LeadService) Submit(ctx context.Context, req domain.LeadRequest) (*domain.SubmissionResult, error) {
	lead, err := s.validator.Validate(req.Kind, req.Body)
	if err != nil {
		s.audit(ctx, req, "lead_rejected", map[string]any{"kind": req.Kind, "field": apperr.FieldOf(err)})
		return nil, err
	}

	key, err := IdempotencyKey(req.Kind, req.Body, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("derive idempotency key: %w", err)
	}

	now := s.now().UTC()
	sub := &domain.Submission{
		IdempotencyKey: key,
		Reference:      NewReference(req.Kind),
		Kind:           req.Kind,
		Audience:       leadAudience(lead),
		Service:        lead.Service,
		Status:         domain.SubmissionPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
		LeaseUntil:     now.Add(s.crmTimeout + pendingLeaseMargin),
	}

	existing, err := s.repo.Reserve(ctx, sub)
	if errors.Is(err, ports.ErrDuplicate) && existing != nil {
		if existing.Status == domain.SubmissionCompleted {
			s.logger.Info(ctx, "replaying duplicate submission", "reference", existing.Reference)
			return &domain.SubmissionResult{Reference: existing.Reference, Kind: existing.Kind, Replayed: true}, nil
		}
		return nil, apperr.Conflict(errInFlight)
	}
	if err != nil {
		return nil, fmt.Errorf("reserve submission: %w", err)
	}

	crmCtx, cancel := context.WithTimeout(ctx, s.crmTimeout)
	crmID, err := s.crm.CreateLead(crmCtx, lead, key)
	cancel()
	if err != nil {
		// the reservation must not outlive a failed attempt, even if the
		// caller went away
		if rerr := s.repo.Release(context.WithoutCancel(ctx), key); rerr != nil {
			s.logger.Error(ctx, "release submission", "reference", sub.Reference, "error", rerr)
		}
		s.logger.Error(ctx, "crm call failed", "kind", req.Kind, "reference", sub.Reference, "error", err)
		s.audit(ctx, req, "lead_failed", map[string]any{"kind": req.Kind, "reference": sub.Reference})
		return nil, fmt.Errorf("forward lead to crm: %w", err)
	}

	if err := s.repo.Complete(context.WithoutCancel(ctx), key, crmID, s.now().UTC()); err != nil {
		s.logger.Warn(ctx, "mark submission completed", "reference", sub.Reference, "error", err)
	}

	s.audit(ctx, req, domain.EventLeadSubmitted, map[string]any{
		"kind":        req.Kind,
		"reference":   sub.Reference,
		"audience":    sub.Audience,
		"service":     sub.Service,
		"attachments": len(lead.Attachments),
	})
	if s.tracker != nil {
		s.tracker.Track(ctx, domain.AnalyticsEvent{
			Name:      domain.EventLeadSubmitted,
			Audience:  sub.Audience,
			Section:   string(req.Kind),
			Timestamp: now,
		})
	}

	return &domain.SubmissionResult{Reference: sub.Reference, Kind: req.Kind}, nil
}

func (s *LeadService) audit(ctx context.Context, req domain.LeadRequest, event string, data map[string]any) {
	if req.RequestID != "" {
		data["requestId"] = req.RequestID
	}
	s.auditor.Event(ctx, domain.AuditEvent{
		Timestamp: s.now().UTC(),
		Event:     event,
		UserID:    req.UserID,
		IPAddress: req.ClientIP,
		Data:      data,
	})
}

// IdempotencyKey prefers a client supplied key; otherwise it digests the
// canonical (RFC 8785) form of the body, so key order and whitespace do not
// matter.
func IdempotencyKey(kind domain.LeadKind, body []byte, header string) (string, error) {
	if h := strings.TrimSpace(header); h != "" {
		sum := sha256.Sum256([]byte(string(kind) + "|" + h))
		return "hdr:" + hex.EncodeToString(sum[:]), nil
	}
	canonical, err := jcs.Transform(body)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append([]byte(string(kind)+"|"), canonical...))
	return "sum:" + hex.EncodeToString(sum[:]), nil
}

// NewReference returns QT-XXXXXXXX for quotes and CN-XXXXXXXX otherwise.
func NewReference(kind domain.LeadKind) string {
	prefix := "CN-"
	if kind == domain.LeadQuotation {
		prefix = "QT-"
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + strings.ToUpper(id[:8])
}

func leadAudience(l domain.Lead) domain.Audience {
	if l.Audience.IsSegment() {
		return l.Audience
	}
	switch l.ClientType {
	case "startup":
		return domain.AudienceStartup
	case "enterprise":
		return domain.AudienceEnterprise
	}
	return domain.AudienceNone
}

var _ ports.LeadService = (*LeadService)(nil)
