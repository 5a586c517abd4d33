package domain

import "time"

type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionCompleted SubmissionStatus = "completed"
	SubmissionFailed    SubmissionStatus = "failed"
)

// Submission is the non-PII trace of a lead: enough to deduplicate retries
// and count conversions, never contact details.
type Submission struct {
	IdempotencyKey string           `json:"-"`
	Reference      string           `json:"reference"`
	Kind           LeadKind         `json:"kind"`
	Audience       Audience         `json:"audience"`
	Service        string           `json:"service,omitempty"`
	Status         SubmissionStatus `json:"status"`
	CRMID          string           `json:"crm_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
	// LeaseUntil bounds how long a pending row holds its key. A pending
	// row past its lease was abandoned mid-flight and can be taken over.
	LeaseUntil time.Time `json:"-"`
}

// SubmissionResult is what the submitter gets back.
type SubmissionResult struct {
	Reference string   `json:"reference"`
	Kind      LeadKind `json:"kind"`
	Replayed  bool     `json:"replayed,omitempty"`
}

type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// SubmissionStats feeds the admin dashboard.
type SubmissionStats struct {
	Total      int64            `json:"total"`
	ByKind     map[string]int64 `json:"by_kind"`
	ByAudience map[string]int64 `json:"by_audience"`
	ByStatus   map[string]int64 `json:"by_status"`
	Daily      []DailyCount     `json:"daily"`
}

// Dashboard is the admin overview.
type Dashboard struct {
	Since       time.Time         `json:"since"`
	Submissions *SubmissionStats  `json:"submissions"`
	Analytics   *AnalyticsSummary `json:"analytics"`
	Recent      []Submission      `json:"recent"`
}
