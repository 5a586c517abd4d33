package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

const submissionColumns = `reference, COALESCE(idempotency_key, ''), kind, audience, service, status, crm_id, created_at, updated_at, expires_at, lease_until`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (domain.Submission, error) {
	var (
		s                           domain.Submission
		kind, audience, status             string
		created, updated, expiresAt, lease int64
	)
	err := row.Scan(&s.Reference, &s.IdempotencyKey, &kind, &audience, &s.Service, &status, &s.CRMID, &created, &updated, &expiresAt, &lease)
	if err != nil {
		return s, err
	}
	s.Kind = domain.LeadKind(kind)
	s.Audience = domain.Audience(audience)
	s.Status = domain.SubmissionStatus(status)
	s.CreatedAt = time.Unix(created, 0).UTC()
	s.UpdatedAt = time.Unix(updated, 0).UTC()
	s.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	s.LeaseUntil = time.Unix(lease, 0).UTC()
	return s, nil
}

func (s *Store) Reserve(ctx context.Context, sub *domain.Submission) (*domain.Submission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, s.rebind(`SELECT `+submissionColumns+` FROM submissions WHERE idempotency_key = ?`), sub.IdempotencyKey)
	existing, err := scanSubmission(row)
	switch {
	case err == nil && existing.Status == domain.SubmissionPending && !existing.LeaseUntil.After(sub.CreatedAt):
		// the holder died between Reserve and Complete/Release
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE submissions SET status = ?, idempotency_key = NULL, updated_at = ? WHERE reference = ?`),
			string(domain.SubmissionFailed), sub.CreatedAt.Unix(), existing.Reference); err != nil {
			return nil, err
		}
	case err == nil && existing.ExpiresAt.After(sub.CreatedAt):
		return &existing, ports.ErrDuplicate
	case err == nil:
		// expired: keep the row for the dashboard, free the key
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE submissions SET idempotency_key = NULL WHERE reference = ?`), existing.Reference); err != nil {
			return nil, err
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	audience := sub.Audience
	if audience == "" {
		audience = domain.AudienceNone
	}
	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO submissions
		(reference, idempotency_key, kind, audience, service, status, crm_id, created_at, updated_at, expires_at, lease_until)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		sub.Reference, sub.IdempotencyKey, string(sub.Kind), string(audience), sub.Service, string(sub.Status), sub.CRMID,
		sub.CreatedAt.Unix(), sub.UpdatedAt.Unix(), sub.ExpiresAt.Unix(), leaseUnix(sub),
	)
	if err != nil {
		// lost a race on the unique key; the failed statement poisons the
		// transaction, so look the winner up outside it
		_ = tx.Rollback()
		if cur, getErr := s.GetByKey(ctx, sub.IdempotencyKey); getErr == nil {
			return cur, ports.ErrDuplicate
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sub, nil
}

// leaseUnix defaults a missing lease to the key's TTL.
func leaseUnix(sub *domain.Submission) int64 {
	if sub.LeaseUntil.IsZero() {
		return sub.ExpiresAt.Unix()
	}
	return sub.LeaseUntil.Unix()
}

func (s *Store) Complete(ctx context.Context, key, crmID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE submissions SET status = ?, crm_id = ?, updated_at = ? WHERE idempotency_key = ?`),
		string(domain.SubmissionCompleted), crmID, at.Unix(), key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// Release marks a pending reservation failed and frees its key.
func (s *Store) Release(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`UPDATE submissions SET status = ?, idempotency_key = NULL, updated_at = ?
		WHERE idempotency_key = ? AND status = ?`),
		string(domain.SubmissionFailed), time.Now().Unix(), key, string(domain.SubmissionPending))
	return err
}

func (s *Store) GetByKey(ctx context.Context, key string) (*domain.Submission, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+submissionColumns+` FROM submissions WHERE idempotency_key = ?`), key)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func submissionFilters(filters map[string]interface{}) (string, []interface{}) {
	where := ""
	args := []interface{}{}
	for _, col := range []string{"kind", "audience", "status"} {
		if v, ok := filters[col].(string); ok && v != "" {
			where += " AND " + col + " = ?"
			args = append(args, v)
		}
	}
	return where, args
}

func (s *Store) List(ctx context.Context, limit, offset int, filters map[string]interface{}) ([]domain.Submission, error) {
	where, args := submissionFilters(filters)
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE 1=1` + where + ` ORDER BY created_at DESC, reference LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) Count(ctx context.Context, filters map[string]interface{}) (int64, error) {
	where, args := submissionFilters(filters)
	var count int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM submissions WHERE 1=1`+where), args...).Scan(&count)
	return count, err
}

func (s *Store) Stats(ctx context.Context, since time.Time) (*domain.SubmissionStats, error) {
	stats := &domain.SubmissionStats{
		ByKind:     map[string]int64{},
		ByAudience: map[string]int64{},
		ByStatus:   map[string]int64{},
		Daily:      []domain.DailyCount{},
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT kind, audience, status, created_at FROM submissions WHERE created_at >= ?`), since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	daily := map[string]int64{}
	for rows.Next() {
		var kind, audience, status string
		var created int64
		if err := rows.Scan(&kind, &audience, &status, &created); err != nil {
			return nil, err
		}
		stats.Total++
		stats.ByKind[kind]++
		stats.ByAudience[audience]++
		stats.ByStatus[status]++
		daily[time.Unix(created, 0).UTC().Format("2006-01-02")]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for date, count := range daily {
		stats.Daily = append(stats.Daily, domain.DailyCount{Date: date, Count: count})
	}
	sort.Slice(stats.Daily, func(i, j int) bool { return stats.Daily[i].Date > stats.Daily[j].Date })
	return stats, nil
}

func (s *Store) Dump(ctx context.Context) ([]domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+submissionColumns+` FROM submissions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// PurgeExpired frees idempotency keys past their TTL. The rows stay for
// reporting.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE submissions SET idempotency_key = NULL WHERE idempotency_key IS NOT NULL AND expires_at <= ?`), now.Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var _ ports.SubmissionRepository = (*Store)(nil)
