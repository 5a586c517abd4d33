package services

import (
	"context"
	"sync"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

type memSubmissions struct {
	mu   sync.Mutex
	rows map[string]domain.Submission
	now  func() time.Time
}

func newMemSubmissions() *memSubmissions {
	return &memSubmissions{rows: map[string]domain.Submission{}, now: time.Now}
}

func (m *memSubmissions) Reserve(_ context.Context, sub *domain.Submission) (*domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rows[sub.IdempotencyKey]; ok && cur.ExpiresAt.After(m.now()) {
		abandoned := cur.Status == domain.SubmissionPending && !cur.LeaseUntil.After(m.now())
		if !abandoned {
			return &cur, ports.ErrDuplicate
		}
	}
	m.rows[sub.IdempotencyKey] = *sub
	return sub, nil
}

func (m *memSubmissions) Complete(_ context.Context, key, crmID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[key]
	if !ok {
		return ports.ErrNotFound
	}
	cur.Status = domain.SubmissionCompleted
	cur.CRMID = crmID
	cur.UpdatedAt = at
	m.rows[key] = cur
	return nil
}

func (m *memSubmissions) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, key)
	return nil
}

func (m *memSubmissions) GetByKey(_ context.Context, key string) (*domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[key]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &cur, nil
}

func (m *memSubmissions) List(_ context.Context, limit, offset int, filters map[string]interface{}) ([]domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Submission
	for _, r := range m.rows {
		if k, ok := filters["kind"].(string); ok && string(r.Kind) != k {
			continue
		}
		out = append(out, r)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSubmissions) Count(ctx context.Context, filters map[string]interface{}) (int64, error) {
	all, _ := m.List(ctx, 1<<30, 0, filters)
	return int64(len(all)), nil
}

func (m *memSubmissions) Stats(_ context.Context, _ time.Time) (*domain.SubmissionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &domain.SubmissionStats{Total: int64(len(m.rows))}, nil
}

func (m *memSubmissions) Dump(ctx context.Context) ([]domain.Submission, error) {
	return m.List(ctx, 1<<30, 0, nil)
}

func (m *memSubmissions) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	return 0, nil
}

type fakeCRM struct {
	mu    sync.Mutex
	calls int
	leads []domain.Lead
	err   error
	block chan struct{} // when set, CreateLead waits on it or ctx
}

func (f *fakeCRM) CreateLead(ctx context.Context, lead domain.Lead, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.leads = append(f.leads, lead)
	block, err := f.block, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return "crm-123", nil
}

func (f *fakeCRM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
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

func (r *recordingAuditor) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Event)
	}
	return out
}

type memAnalytics struct {
	mu     sync.Mutex
	events []domain.AnalyticsEvent
}

func (m *memAnalytics) RecordEvents(_ context.Context, evs []domain.AnalyticsEvent) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evs...)
	return len(evs), nil
}

func (m *memAnalytics) Summary(_ context.Context, _ time.Time) (*domain.AnalyticsSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &domain.AnalyticsSummary{ByEvent: map[string]int64{}, ByAudience: map[string]int64{}}
	for _, e := range m.events {
		s.ByEvent[e.Name]++
		s.ByAudience[string(e.Audience)]++
	}
	return s, nil
}

func (m *memAnalytics) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
