package apperr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/logging"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// Classified is the client-safe view of an error.
type Classified struct {
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Field      string `json:"field,omitempty"`
	Detail     string `json:"detail,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

var taxonomy = map[Kind]Classified{
	KindValidation:   {Code: CodeValidation, Message: "Invalid request data", StatusCode: http.StatusBadRequest},
	KindUnauthorized: {Code: CodeUnauthorized, Message: "Authentication required", StatusCode: http.StatusUnauthorized},
	KindForbidden:    {Code: CodeForbidden, Message: "Access denied", StatusCode: http.StatusForbidden},
	KindNotFound:     {Code: CodeNotFound, Message: "Resource not found", StatusCode: http.StatusNotFound},
	KindConflict:     {Code: CodeConflict, Message: "Request conflicts with an existing submission", StatusCode: http.StatusConflict},
	KindRateLimit:    {Code: CodeRateLimited, Message: "Too many requests, please try again later", StatusCode: http.StatusTooManyRequests},
}

var internal = Classified{Code: CodeInternal, Message: "An unexpected error occurred", StatusCode: http.StatusInternalServerError}

// Classify maps err onto the taxonomy. Only validator-authored field/detail
// and the retry delay are copied; the error message never is.
func Classify(err error) Classified {
	c, ok := taxonomy[KindOf(err)]
	if !ok {
		return internal
	}
	switch c.Code {
	case CodeValidation:
		c.Field = FieldOf(err)
		c.Detail = DetailOf(err)
	case CodeRateLimited:
		c.RetryAfter = RetryAfterOf(err)
	}
	return c
}

// Shape selects the JSON key the failure message is reported under.
type Shape int

const (
	ShapeMessage Shape = iota // {"message": ...}
	ShapeError                // {"error": ...}
)

const maxStack = 2048

// Classifier classifies errors and writes HTTP error responses. In
// development it also logs the internal detail of each error.
type Classifier struct {
	logger      logging.Logger
	development bool
	now         func() time.Time
}

func NewClassifier(logger logging.Logger, development bool) *Classifier {
	return &Classifier{logger: logger, development: development, now: time.Now}
}

func (c *Classifier) Classify(ctx context.Context, err error) Classified {
	cl := Classify(err)
	if cl.Code == CodeInternal {
		c.logger.Error(ctx, "request failed", "code", cl.Code, "error", err)
	}
	if c.development {
		stack := debug.Stack()
		if len(stack) > maxStack {
			stack = stack[:maxStack]
		}
		c.logger.Debug(ctx, "error detail",
			"type", fmt.Sprintf("%T", err),
			"kind", KindOf(err),
			"error", err,
			"stack", string(stack),
		)
	}
	return cl
}

// Respond classifies err and writes it with security headers.
func (c *Classifier) Respond(w http.ResponseWriter, r *http.Request, err error, shape Shape) {
	WriteJSON(w, c.Classify(r.Context(), err), shape, c.now())
}

// SetSecurityHeaders adds the headers every API response carries.
func SetSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
}

func WriteJSON(w http.ResponseWriter, cl Classified, shape Shape, now time.Time) {
	body := map[string]any{
		"code":      cl.Code,
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if shape == ShapeError {
		body["error"] = cl.Message
	} else {
		body["message"] = cl.Message
	}
	if cl.Field != "" {
		body["field"] = cl.Field
	}
	if cl.Detail != "" {
		body["detail"] = cl.Detail
	}
	if cl.RetryAfter > 0 {
		body["retryAfter"] = cl.RetryAfter
		w.Header().Set("Retry-After", strconv.Itoa(cl.RetryAfter))
	}

	SetSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(cl.StatusCode)
	_ = json.NewEncoder(w).Encode(body)
}
