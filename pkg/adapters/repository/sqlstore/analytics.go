package sqlstore

import (
	"context"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

func (s *Store) RecordEvents(ctx context.Context, evs []domain.AnalyticsEvent) (int, error) {
	if len(evs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO analytics_events (name, audience, method, section, path, created_at) VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, ev := range evs {
		audience := ev.Audience
		if audience == "" {
			audience = domain.AudienceNone
		}
		if _, err := stmt.ExecContext(ctx, ev.Name, string(audience), string(ev.Method), ev.Section, ev.Path, ev.Timestamp.Unix()); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(evs), nil
}

func (s *Store) Summary(ctx context.Context, since time.Time) (*domain.AnalyticsSummary, error) {
	summary := &domain.AnalyticsSummary{
		ByEvent:    map[string]int64{},
		ByAudience: map[string]int64{},
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT name, audience, COUNT(*) FROM analytics_events WHERE created_at >= ? GROUP BY name, audience`), since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, audience string
		var count int64
		if err := rows.Scan(&name, &audience, &count); err != nil {
			return nil, err
		}
		summary.ByEvent[name] += count
		summary.ByAudience[audience] += count
	}
	return summary, rows.Err()
}

var _ ports.AnalyticsRepository = (*Store)(nil)
