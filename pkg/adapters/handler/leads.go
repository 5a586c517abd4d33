package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
	"github.com/wadjakorntonsri/engsite/pkg/ratelimit"
)

const consultationThanks = "Thank you. We received your consultation request and will be in touch shortly."

type LeadHandler struct {
	service    ports.LeadService
	classifier *apperr.Classifier
	trustProxy bool
}

func NewLeadHandler(service ports.LeadService, classifier *apperr.Classifier, trustProxy bool) *LeadHandler {
	return &LeadHandler{service: service, classifier: classifier, trustProxy: trustProxy}
}

// Consultation answers with {message, reference} or {message} on failure.
func (h *LeadHandler) Consultation(w http.ResponseWriter, r *http.Request) {
	res, ok := h.submit(w, r, domain.LeadConsultation, apperr.ShapeMessage)
	if !ok {
		return
	}
	writeJSON(w, resultStatus(res), map[string]string{
		"message":   consultationThanks,
		"reference": res.Reference,
	})
}

// Quote answers with {quoteReference} or {error} on failure.
func (h *LeadHandler) Quote(w http.ResponseWriter, r *http.Request) {
	res, ok := h.submit(w, r, domain.LeadQuotation, apperr.ShapeError)
	if !ok {
		return
	}
	writeJSON(w, resultStatus(res), map[string]string{"quoteReference": res.Reference})
}

func (h *LeadHandler) submit(w http.ResponseWriter, r *http.Request, kind domain.LeadKind, shape apperr.Shape) (*domain.SubmissionResult, bool) {
	body, err := readBody(r)
	if err != nil {
		h.classifier.Respond(w, r, err, shape)
		return nil, false
	}

	res, err := h.service.Submit(r.Context(), domain.LeadRequest{
		Kind:           kind,
		Body:           body,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		ClientIP:       ratelimit.ClientIP(r, h.trustProxy),
		UserID:         UserEmail(r.Context()),
		RequestID:      RequestID(r.Context()),
	})
	if err != nil {
		h.classifier.Respond(w, r, err, shape)
		return nil, false
	}
	if res.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	return res, true
}

func resultStatus(res *domain.SubmissionResult) int {
	if res.Replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}

// readBody drains a body already capped by RequireJSON.
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation("", "request body is too large")
		}
		return nil, apperr.Validation("", "request body could not be read")
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
