package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

var dbSeq atomic.Int64

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	url := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	s, err := Open(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func pending(key, ref string, kind domain.LeadKind, created time.Time) *domain.Submission {
	return &domain.Submission{
		IdempotencyKey: key,
		Reference:      ref,
		Kind:           kind,
		Audience:       domain.AudienceStartup,
		Status:         domain.SubmissionPending,
		CreatedAt:      created,
		UpdatedAt:      created,
		ExpiresAt:      created.Add(time.Hour),
		LeaseUntil:     created.Add(time.Minute),
	}
}

func TestDriverFor(t *testing.T) {
	tests := []struct {
		url, driver, dialect string
	}{
		{"file:db.sqlite", "sqlite", "sqlite3"},
		{"libsql://engsite.turso.io?authToken=x", "libsql", "turso"},
		{"wss://engsite.turso.io", "libsql", "turso"},
		{"postgres://u:p@localhost:5432/engsite", "pgx", "postgres"},
		{"postgresql://localhost/engsite", "pgx", "postgres"},
	}
	for _, tt := range tests {
		d, dia := driverFor(tt.url)
		if d != tt.driver || dia != tt.dialect {
			t.Errorf("driverFor(%q) = %s/%s, want %s/%s", tt.url, d, dia, tt.driver, tt.dialect)
		}
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{postgres: true}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &Store{}
	assert.Equal(t, "WHERE x = ?", lite.rebind("WHERE x = ?"))
}

func TestReserveCompleteAndReplay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := s.Reserve(ctx, pending("k1", "QT-00000001", domain.LeadQuotation, now))
	require.NoError(t, err)

	existing, err := s.Reserve(ctx, pending("k1", "QT-00000002", domain.LeadQuotation, now))
	assert.ErrorIs(t, err, ports.ErrDuplicate)
	require.NotNil(t, existing)
	assert.Equal(t, "QT-00000001", existing.Reference)
	assert.Equal(t, domain.SubmissionPending, existing.Status)

	require.NoError(t, s.Complete(ctx, "k1", "crm-9", now))

	got, err := s.GetByKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionCompleted, got.Status)
	assert.Equal(t, "crm-9", got.CRMID)
	assert.True(t, now.Equal(got.CreatedAt))
}

func TestReserveAfterExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	then := time.Now().Add(-2 * time.Hour).UTC()

	_, err := s.Reserve(ctx, pending("k1", "CN-00000001", domain.LeadConsultation, then))
	require.NoError(t, err)

	_, err = s.Reserve(ctx, pending("k1", "CN-00000002", domain.LeadConsultation, time.Now().UTC()))
	require.NoError(t, err)

	got, err := s.GetByKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "CN-00000002", got.Reference)

	n, err := s.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "expired row kept for reporting")
}

func TestReserveTakesOverAbandonedPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	then := time.Now().Add(-5 * time.Minute).UTC().Truncate(time.Second)

	// reserved, never completed or released
	_, err := s.Reserve(ctx, pending("k1", "QT-00000001", domain.LeadQuotation, then))
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	got, err := s.Reserve(ctx, pending("k1", "QT-00000002", domain.LeadQuotation, now))
	require.NoError(t, err)
	assert.Equal(t, "QT-00000002", got.Reference)

	cur, err := s.GetByKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "QT-00000002", cur.Reference)
	assert.True(t, now.Add(time.Minute).Equal(cur.LeaseUntil))

	failed, err := s.List(ctx, 10, 0, map[string]interface{}{"status": "failed"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "QT-00000001", failed[0].Reference)
}

func TestReserveKeepsCompletedPastLease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	then := time.Now().Add(-5 * time.Minute).UTC()

	_, err := s.Reserve(ctx, pending("k1", "QT-00000001", domain.LeadQuotation, then))
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "k1", "crm-1", then))

	existing, err := s.Reserve(ctx, pending("k1", "QT-00000002", domain.LeadQuotation, time.Now().UTC()))
	assert.ErrorIs(t, err, ports.ErrDuplicate)
	require.NotNil(t, existing)
	assert.Equal(t, "QT-00000001", existing.Reference)
	assert.Equal(t, domain.SubmissionCompleted, existing.Status)
}

func TestReleaseFreesKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.Reserve(ctx, pending("k1", "QT-00000001", domain.LeadQuotation, now))
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "k1"))

	_, err = s.GetByKey(ctx, "k1")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	_, err = s.Reserve(ctx, pending("k1", "QT-00000002", domain.LeadQuotation, now))
	require.NoError(t, err)

	failed, err := s.List(ctx, 10, 0, map[string]interface{}{"status": "failed"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "QT-00000001", failed[0].Reference)
}

func TestCompleteUnknownKey(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.Complete(context.Background(), "nope", "", time.Now()), ports.ErrNotFound)
}

func TestListCountStatsDump(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

	_, _ = s.Reserve(ctx, pending("a", "QT-A", domain.LeadQuotation, base))
	_, _ = s.Reserve(ctx, pending("b", "QT-B", domain.LeadQuotation, base.Add(24*time.Hour)))
	c := pending("c", "CN-C", domain.LeadConsultation, base.Add(25*time.Hour))
	c.Audience = domain.AudienceEnterprise
	_, _ = s.Reserve(ctx, c)

	list, err := s.List(ctx, 2, 0, nil)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "CN-C", list[0].Reference)

	quotes, err := s.Count(ctx, map[string]interface{}{"kind": "quote"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), quotes)

	stats, err := s.Stats(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByAudience["enterprise"])
	assert.Equal(t, []domain.DailyCount{{Date: "2026-10-15", Count: 2}}, stats.Daily)

	all, err := s.Dump(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "QT-A", all[0].Reference)
}

func TestPurgeExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-3 * time.Hour).UTC()

	_, _ = s.Reserve(ctx, pending("old", "QT-OLD", domain.LeadQuotation, old))
	_, _ = s.Reserve(ctx, pending("new", "QT-NEW", domain.LeadQuotation, time.Now().UTC()))

	n, err := s.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetByKey(ctx, "old")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	_, err = s.GetByKey(ctx, "new")
	assert.NoError(t, err)
}

func TestAnalyticsEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	n, err := s.RecordEvents(ctx, []domain.AnalyticsEvent{
		{Name: domain.EventContentView, Audience: domain.AudienceStartup, Section: "hero", Timestamp: now},
		{Name: domain.EventContentView, Timestamp: now},
		{Name: domain.EventAudienceSelected, Audience: domain.AudienceStartup, Method: domain.MethodExplicit, Timestamp: now},
		{Name: domain.EventContentView, Audience: domain.AudienceStartup, Timestamp: now.Add(-48 * time.Hour)},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	sum, err := s.Summary(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.ByEvent[domain.EventContentView])
	assert.Equal(t, int64(1), sum.ByEvent[domain.EventAudienceSelected])
	assert.Equal(t, int64(2), sum.ByAudience["startup"])
	assert.Equal(t, int64(1), sum.ByAudience["none"])

	n, err = s.RecordEvents(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRateLimitStore(t *testing.T) {
	s := newTestStore(t)
	rl := s.RateLimits()
	ctx := context.Background()
	reset := time.Now().Add(time.Minute)

	for want := 1; want <= 3; want++ {
		got, err := rl.Increment(ctx, "quotes|ip:1.2.3.xxx|42", reset)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := rl.Increment(ctx, "quotes|ip:1.2.3.xxx|43", reset.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	removed, err := rl.Sweep(ctx, reset)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
