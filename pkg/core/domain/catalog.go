package domain

// Service is one engineering offering with audience-specific copy.
type Service struct {
	Slug         string   `json:"slug"`
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	Startup      string   `json:"startup"`
	Enterprise   string   `json:"enterprise"`
	Default      string   `json:"default,omitempty"`
	Deliverables []string `json:"deliverables"`
}
