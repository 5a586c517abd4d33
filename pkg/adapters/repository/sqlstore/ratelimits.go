package sqlstore

import (
	"context"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/ratelimit"
)

// RateLimitStore shares fixed-window counters between instances pointed at
// the same database.
type RateLimitStore struct {
	s *Store
}

func (s *Store) RateLimits() *RateLimitStore {
	return &RateLimitStore{s: s}
}

func (r *RateLimitStore) Increment(ctx context.Context, key string, resetAt time.Time) (int, error) {
	var count int
	err := r.s.db.QueryRowContext(ctx, r.s.rebind(`INSERT INTO rate_limits (bucket_key, count, reset_at) VALUES (?, 1, ?)
		ON CONFLICT (bucket_key) DO UPDATE SET count = rate_limits.count + 1
		RETURNING count`), key, resetAt.Unix()).Scan(&count)
	return count, err
}

func (r *RateLimitStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := r.s.db.ExecContext(ctx, r.s.rebind(`DELETE FROM rate_limits WHERE reset_at <= ?`), now.Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var _ ratelimit.Store = (*RateLimitStore)(nil)
