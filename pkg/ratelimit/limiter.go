// Package ratelimit implements fixed-window request limiting keyed by client
// and endpoint.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/logging"
)

// Result is the outcome of a single limit check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetTime  time.Time `json:"resetTime"`
	RetryAfter int       `json:"retryAfter,omitempty"` // seconds, only when rejected
}

// Store holds per-window counters. Implementations must make Increment atomic
// for a given key.
type Store interface {
	// Increment bumps the counter for key and returns the new count. resetAt
	// is the end of the window the key belongs to.
	Increment(ctx context.Context, key string, resetAt time.Time) (int, error)
	// Sweep removes every counter whose window ended at or before now.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Policy is the limit applied to one endpoint.
type Policy struct {
	Name     string
	Max      int
	Window   time.Duration
	FailOpen bool // admit requests when the store is unavailable
}

type Limiter struct {
	store  Store
	logger logging.Logger
	now    func() time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(store Store, logger logging.Logger, opts ...Option) *Limiter {
	l := &Limiter{store: store, logger: logger, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// CheckLimit counts one request for key in the current window. The window
// index is floor(now / window); the (max+1)-th request in a window is
// rejected with RetryAfter set to the seconds left until the window ends.
func (l *Limiter) CheckLimit(ctx context.Context, key string, max int, window time.Duration) (Result, error) {
	if max <= 0 || window <= 0 {
		return Result{Allowed: true, Limit: max}, nil
	}

	now := l.now()
	index := now.UnixNano() / int64(window)
	resetAt := time.Unix(0, (index+1)*int64(window)).UTC()
	counterKey := fmt.Sprintf("%s|%d", key, index)

	count, err := l.store.Increment(ctx, counterKey, resetAt)
	if err != nil {
		return Result{Limit: max, ResetTime: resetAt}, fmt.Errorf("increment %q: %w", key, err)
	}

	res := Result{
		Allowed:   count <= max,
		Limit:     max,
		Remaining: max - count,
		ResetTime: resetAt,
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = retryAfter(resetAt.Sub(now))
	}
	return res, nil
}

// Enforce applies p to client. It never fails: a store error is logged and
// resolved by the policy's FailOpen setting.
func (l *Limiter) Enforce(ctx context.Context, p Policy, client string) Result {
	res, err := l.CheckLimit(ctx, p.Name+"|"+client, p.Max, p.Window)
	if err == nil {
		return res
	}

	l.logger.Error(ctx, "rate limit store failure", "policy", p.Name, "fail_open", p.FailOpen, "error", err)
	if p.FailOpen {
		res.Allowed = true
		res.Remaining = p.Max
		return res
	}
	res.Allowed = false
	res.RetryAfter = retryAfter(p.Window)
	return res
}

// Sweep drops expired counters once.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	return l.store.Sweep(ctx, l.now())
}

// Run sweeps expired counters every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.Sweep(ctx)
			if err != nil {
				l.logger.Warn(ctx, "rate limit sweep failed", "error", err)
				continue
			}
			if n > 0 {
				l.logger.Debug(ctx, "rate limit sweep", "removed", n)
			}
		}
	}
}

func retryAfter(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
