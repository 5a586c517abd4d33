package domain

import "time"

const (
	EventAudienceSelected = "audience_selected"
	EventAudienceCleared  = "audience_cleared"
	EventContentView      = "content_view"
	EventLeadSubmitted    = "lead_submitted"
)

// AnalyticsEvent is a first-party, anonymous interaction record.
type AnalyticsEvent struct {
	Name      string          `json:"name"`
	Audience  Audience        `json:"audience"`
	Method    SelectionMethod `json:"method,omitempty"`
	Section   string          `json:"section,omitempty"`
	Path      string          `json:"path,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type AnalyticsSummary struct {
	ByEvent    map[string]int64 `json:"by_event"`
	ByAudience map[string]int64 `json:"by_audience"`
}
