package domain

import "time"

// LeadKind distinguishes the two lead forms.
type LeadKind string

const (
	LeadConsultation LeadKind = "consultation"
	LeadQuotation    LeadKind = "quote"
)

// FileMeta describes an attachment uploaded alongside a quote request.
type FileMeta struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	Key         string `json:"key,omitempty"`
}

// Lead is a validated consultation or quotation request. It only lives for
// the duration of the request that carries it.
type Lead struct {
	Kind        LeadKind   `json:"-"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Message     string     `json:"message"`
	Phone       string     `json:"phone,omitempty"`
	Company     string     `json:"company,omitempty"`
	Audience    Audience   `json:"audience,omitempty"`
	Consent     bool       `json:"consent,omitempty"`
	Service     string     `json:"service,omitempty"`
	Budget      string     `json:"budget,omitempty"`
	Timeline    string     `json:"timeline,omitempty"`
	ClientType  string     `json:"clientType,omitempty"`
	Attachments []FileMeta `json:"attachments,omitempty"`
}

// LeadRequest is a raw submission as it arrives at the service boundary.
type LeadRequest struct {
	Kind           LeadKind
	Body           []byte
	IdempotencyKey string // optional, from the Idempotency-Key header
	ClientIP       string
	UserID         string
	RequestID      string
}

// UploadTicket lets a browser PUT an attachment directly to object storage.
type UploadTicket struct {
	Key       string            `json:"key"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt"`
}
