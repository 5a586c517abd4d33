package handler

import (
	"net/http"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/core/validation"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
	"github.com/wadjakorntonsri/engsite/pkg/ratelimit"
)

type UploadHandler struct {
	validator  *validation.Validator
	signer     ports.UploadSigner
	auditor    ports.Auditor
	classifier *apperr.Classifier
	trustProxy bool
	now        func() time.Time
}

func NewUploadHandler(validator *validation.Validator, signer ports.UploadSigner, auditor ports.Auditor, classifier *apperr.Classifier, trustProxy bool) *UploadHandler {
	return &UploadHandler{validator: validator, signer: signer, auditor: auditor, classifier: classifier, trustProxy: trustProxy, now: time.Now}
}

// Create validates attachment metadata and returns a presigned PUT ticket.
func (h *UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.classifier.Respond(w, r, err, apperr.ShapeMessage)
		return
	}
	meta, err := h.validator.ValidateFile(body)
	if err != nil {
		h.classifier.Respond(w, r, err, apperr.ShapeMessage)
		return
	}

	ticket, err := h.signer.PresignUpload(r.Context(), meta)
	if err != nil {
		h.classifier.Respond(w, r, err, apperr.ShapeMessage)
		return
	}

	h.auditor.Event(r.Context(), domain.AuditEvent{
		Timestamp: h.now().UTC(),
		Event:     "upload_presigned",
		IPAddress: ratelimit.ClientIP(r, h.trustProxy),
		Data: map[string]any{
			"object":      ticket.Key,
			"size":        meta.Size,
			"contentType": meta.ContentType,
			"requestId":   RequestID(r.Context()),
		},
	})
	writeJSON(w, http.StatusCreated, ticket)
}
