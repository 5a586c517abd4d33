// Package apperr carries the site's error taxonomy. Errors are classified by
// kind, never by message, so internal detail can not leak to clients.
package apperr

import "errors"

// Kind names an error class. Values mirror the exception names the
// classifier recognises.
type Kind string

const (
	KindValidation   Kind = "ValidationError"
	KindUnauthorized Kind = "UnauthorizedError"
	KindForbidden    Kind = "ForbiddenError"
	KindNotFound     Kind = "NotFoundError"
	KindConflict     Kind = "ConflictError"
	KindRateLimit    Kind = "RateLimitError"
)

type classifiedError struct {
	kind       Kind
	field      string
	detail     string
	retryAfter int
	cause      error
}

func (e *classifiedError) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	if e.field != "" {
		return e.field + ": " + e.detail
	}
	if e.detail != "" {
		return e.detail
	}
	return string(e.kind)
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

// Wrap tags cause with kind. The cause message stays server side.
func Wrap(cause error, kind Kind) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{kind: kind, cause: cause}
}

// Validation reports the first violated constraint. field and detail are
// written by our own validators and are safe to show to the client.
func Validation(field, detail string) error {
	return &classifiedError{kind: KindValidation, field: field, detail: detail}
}

// RateLimited reports a rejected request; retryAfter is in seconds.
func RateLimited(retryAfter int) error {
	return &classifiedError{kind: KindRateLimit, retryAfter: retryAfter}
}

func Unauthorized(cause error) error { return wrapOrNew(cause, KindUnauthorized) }
func Forbidden(cause error) error    { return wrapOrNew(cause, KindForbidden) }
func NotFound(cause error) error     { return wrapOrNew(cause, KindNotFound) }
func Conflict(cause error) error     { return wrapOrNew(cause, KindConflict) }

func wrapOrNew(cause error, kind Kind) error {
	if cause == nil {
		return &classifiedError{kind: kind}
	}
	return &classifiedError{kind: kind, cause: cause}
}

func KindOf(err error) Kind {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.kind
	}
	return ""
}

func FieldOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.field
	}
	return ""
}

func DetailOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.detail
	}
	return ""
}

func RetryAfterOf(err error) int {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryAfter
	}
	return 0
}
