package services

import (
	"context"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/logging"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

// AnalyticsService queues interaction events and writes them in batches.
// Track never blocks; when the queue is full the event is dropped.
type AnalyticsService struct {
	queue        chan domain.AnalyticsEvent
	repo         ports.AnalyticsRepository
	logger       logging.Logger
	batchMaxSize int
	batchMaxWait time.Duration
}

func NewAnalyticsService(repo ports.AnalyticsRepository, logger logging.Logger, queueSize, batchMaxSize int, batchMaxWait time.Duration) *AnalyticsService {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if batchMaxSize <= 0 {
		batchMaxSize = 100
	}
	if batchMaxWait <= 0 {
		batchMaxWait = 2 * time.Second
	}
	return &AnalyticsService{
		queue:        make(chan domain.AnalyticsEvent, queueSize),
		repo:         repo,
		logger:       logger,
		batchMaxSize: batchMaxSize,
		batchMaxWait: batchMaxWait,
	}
}

func (s *AnalyticsService) Track(ctx context.Context, ev domain.AnalyticsEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case s.queue <- ev:
	default:
		s.logger.Warn(ctx, "analytics queue full, dropping event", "event", ev.Name)
	}
}

// Run drains the queue until ctx is done, then flushes what is left.
func (s *AnalyticsService) Run(ctx context.Context) {
	batch := make([]domain.AnalyticsEvent, 0, s.batchMaxSize)
	t := time.NewTimer(s.batchMaxWait)
	defer t.Stop()

	resetTimer := func() {
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		t.Reset(s.batchMaxWait)
	}

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			resetTimer()
			return
		}
		n, err := s.repo.RecordEvents(ctx, batch)
		if err != nil {
			s.logger.Error(ctx, "analytics batch insert failed", "dropped", len(batch), "error", err)
		} else {
			s.logger.Debug(ctx, "analytics batch stored", "inserted", n)
		}
		batch = batch[:0]
		resetTimer()
	}

	for {
		select {
		case <-ctx.Done():
			// pick up anything queued before shutdown
		drain:
			for {
				select {
				case ev := <-s.queue:
					batch = append(batch, ev)
				default:
					break drain
				}
			}
			flush(context.WithoutCancel(ctx))
			return
		case ev := <-s.queue:
			batch = append(batch, ev)
			if len(batch) >= s.batchMaxSize {
				flush(ctx)
			}
		case <-t.C:
			flush(ctx)
		}
	}
}

var _ ports.AnalyticsTracker = (*AnalyticsService)(nil)
