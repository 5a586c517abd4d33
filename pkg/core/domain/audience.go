package domain

import (
	"strings"
	"time"
)

// Audience is the visitor segment a session is tagged with.
type Audience string

const (
	AudienceNone       Audience = "none"
	AudienceStartup    Audience = "startup"
	AudienceEnterprise Audience = "enterprise"
)

// ParseAudience accepts "startup", "enterprise", "none" and the empty string
// (none), case-insensitively.
func ParseAudience(s string) (Audience, bool) {
	switch Audience(strings.ToLower(strings.TrimSpace(s))) {
	case AudienceStartup:
		return AudienceStartup, true
	case AudienceEnterprise:
		return AudienceEnterprise, true
	case AudienceNone, "":
		return AudienceNone, true
	}
	return AudienceNone, false
}

// IsSegment reports whether a is a concrete segment (startup or enterprise).
func (a Audience) IsSegment() bool {
	return a == AudienceStartup || a == AudienceEnterprise
}

// SelectionMethod records how an audience was chosen.
type SelectionMethod string

const (
	MethodNone     SelectionMethod = "none"
	MethodExplicit SelectionMethod = "explicit"
	MethodInferred SelectionMethod = "inferred"
)

func ParseSelectionMethod(s string) (SelectionMethod, bool) {
	switch SelectionMethod(strings.ToLower(strings.TrimSpace(s))) {
	case MethodExplicit, "":
		return MethodExplicit, true
	case MethodInferred:
		return MethodInferred, true
	}
	return MethodNone, false
}

// AudienceSelection is the per-session audience state. Audience none always
// pairs with method none.
type AudienceSelection struct {
	Audience  Audience        `json:"audience"`
	Method    SelectionMethod `json:"method"`
	Timestamp time.Time       `json:"timestamp"`
}

func NoSelection() AudienceSelection {
	return AudienceSelection{Audience: AudienceNone, Method: MethodNone}
}

func (s AudienceSelection) Valid() bool {
	if s.Audience == AudienceNone {
		return s.Method == MethodNone
	}
	return s.Audience.IsSegment() && (s.Method == MethodExplicit || s.Method == MethodInferred)
}
