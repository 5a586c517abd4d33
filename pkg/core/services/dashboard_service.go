package services

import (
	"context"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

type DashboardService struct {
	submissions ports.SubmissionRepository
	analytics   ports.AnalyticsRepository
	now         func() time.Time
}

func NewDashboardService(submissions ports.SubmissionRepository, analytics ports.AnalyticsRepository) *DashboardService {
	return &DashboardService{submissions: submissions, analytics: analytics, now: time.Now}
}

func (s *DashboardService) GetDashboard(ctx context.Context, days int) (*domain.Dashboard, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	since := s.now().UTC().AddDate(0, 0, -days)

	stats, err := s.submissions.Stats(ctx, since)
	if err != nil {
		return nil, err
	}
	summary, err := s.analytics.Summary(ctx, since)
	if err != nil {
		return nil, err
	}
	recent, err := s.submissions.List(ctx, 10, 0, nil)
	if err != nil {
		return nil, err
	}

	return &domain.Dashboard{
		Since:       since,
		Submissions: stats,
		Analytics:   summary,
		Recent:      recent,
	}, nil
}

// maxPage keeps (page-1)*limit far from int overflow.
const maxPage = 10000

func (s *DashboardService) ListSubmissions(ctx context.Context, page, limit int, kind, audience string) ([]domain.Submission, int64, error) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	filters := map[string]interface{}{}
	if kind != "" {
		filters["kind"] = kind
	}
	if audience != "" {
		filters["audience"] = audience
	}

	subs, err := s.submissions.List(ctx, limit, offset, filters)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.submissions.Count(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	return subs, count, nil
}

var _ ports.DashboardService = (*DashboardService)(nil)
