// Package audience holds the per-session audience selection and notifies
// subscribers when it changes.
package audience

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/logging"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

// Listener receives the new state after every mutation.
type Listener func(domain.AudienceSelection)

type Store struct {
	mu      sync.Mutex
	state   domain.AudienceSelection
	storage Storage
	tracker ports.AnalyticsTracker
	logger  logging.Logger
	now     func() time.Time

	listeners map[int]Listener
	nextID    int
}

type Option func(*Store)

// WithTracker enables analytics events. Without it nothing is tracked.
func WithTracker(t ports.AnalyticsTracker) Option {
	return func(s *Store) { s.tracker = t }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore hydrates from storage. A missing or unreadable entry leaves the
// store empty.
func NewStore(storage Storage, logger logging.Logger, opts ...Option) *Store {
	s := &Store{
		state:     domain.NoSelection(),
		storage:   storage,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	for _, o := range opts {
		o(s)
	}
	s.load()
	return s
}

func (s *Store) load() {
	raw, ok := s.storage.Get(StorageKey)
	if !ok || raw == "" {
		return
	}
	var sel domain.AudienceSelection
	if err := json.Unmarshal([]byte(raw), &sel); err != nil || !sel.Valid() {
		s.logger.Warn(context.Background(), "ignoring stored audience selection", "error", err)
		return
	}
	s.state = sel
}

// State returns a copy of the current selection.
func (s *Store) State() domain.AudienceSelection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) IsSelected() bool {
	return s.State().Audience.IsSegment()
}

// Select records a segment. Selecting none is the same as Clear.
func (s *Store) Select(ctx context.Context, a domain.Audience, m domain.SelectionMethod) error {
	if a == domain.AudienceNone {
		s.Clear(ctx)
		return nil
	}
	if !a.IsSegment() {
		return apperr.Validation("audience", "must be startup or enterprise")
	}
	if m != domain.MethodExplicit && m != domain.MethodInferred {
		return apperr.Validation("method", "must be explicit or inferred")
	}

	next := domain.AudienceSelection{Audience: a, Method: m, Timestamp: s.now().UTC()}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	if raw, err := json.Marshal(next); err == nil {
		if err := s.storage.Set(StorageKey, string(raw)); err != nil {
			s.logger.Warn(ctx, "persist audience selection", "error", err)
		}
	}

	s.notify(next)
	s.track(ctx, domain.AnalyticsEvent{
		Name:      domain.EventAudienceSelected,
		Audience:  a,
		Method:    m,
		Timestamp: next.Timestamp,
	})
	return nil
}

// Infer applies a from context (campaign links, query parameters) unless the
// visitor already chose. It reports whether the selection changed.
func (s *Store) Infer(ctx context.Context, a domain.Audience) bool {
	if !a.IsSegment() || s.IsSelected() {
		return false
	}
	return s.Select(ctx, a, domain.MethodInferred) == nil
}

// Clear resets to no selection and removes the stored entry.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	prev := s.state
	s.state = domain.NoSelection()
	s.mu.Unlock()

	if err := s.storage.Remove(StorageKey); err != nil {
		s.logger.Warn(ctx, "remove audience selection", "error", err)
	}

	s.notify(domain.NoSelection())
	if prev.Audience.IsSegment() {
		s.track(ctx, domain.AnalyticsEvent{
			Name:      domain.EventAudienceCleared,
			Audience:  prev.Audience,
			Timestamp: s.now().UTC(),
		})
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify(state domain.AudienceSelection) {
	s.mu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func (s *Store) track(ctx context.Context, ev domain.AnalyticsEvent) {
	if s.tracker == nil {
		return
	}
	s.tracker.Track(ctx, ev)
}
