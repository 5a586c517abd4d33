package apperr

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestWrapRoundTrip(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, KindConflict)
	if err == nil {
		t.Fatal("expected wrapped error")
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("unexpected kind: %s", KindOf(err))
	}
	if !stderrors.Is(err, base) {
		t.Fatal("expected wrapped error to preserve cause")
	}
}

func TestKindSurvivesFmtWrapping(t *testing.T) {
	err := fmt.Errorf("submit lead: %w", Validation("email", "must be a valid email address"))
	if KindOf(err) != KindValidation {
		t.Fatalf("unexpected kind: %s", KindOf(err))
	}
	if FieldOf(err) != "email" {
		t.Fatalf("unexpected field: %s", FieldOf(err))
	}
}

func TestUnknownErrorDefaults(t *testing.T) {
	err := stderrors.New("plain")
	if KindOf(err) != "" || FieldOf(err) != "" || DetailOf(err) != "" || RetryAfterOf(err) != 0 {
		t.Fatalf("expected zero values for unclassified error")
	}
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	if got := Wrap(nil, KindNotFound); got != nil {
		t.Fatalf("expected nil wrapped error, got=%v", got)
	}
}
