package domain

import "time"

// AuditEvent is constructed at the point of a loggable action and written to
// the audit sink straight away.
type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	UserID    string    `json:"userId,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
	Data      any       `json:"data,omitempty"`
}
