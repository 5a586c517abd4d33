package handler

import (
	"net/http"
	"strconv"

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

// DashboardHandler serves the admin API. Everything it returns is free of
// contact details.
type DashboardHandler struct {
	service    ports.DashboardService
	classifier *apperr.Classifier
}

func NewDashboardHandler(service ports.DashboardService, classifier *apperr.Classifier) *DashboardHandler {
	return &DashboardHandler{service: service, classifier: classifier}
}

// Get Dashboard
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	dash, err := h.service.GetDashboard(r.Context(), days)
	if err != nil {
		h.classifier.Respond(w, r, err, apperr.ShapeMessage)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// List Submissions
func (h *DashboardHandler) Submissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	kind := q.Get("kind")
	if kind != "" && kind != string(domain.LeadConsultation) && kind != string(domain.LeadQuotation) {
		h.classifier.Respond(w, r, apperr.Validation("kind", "must be consultation or quote"), apperr.ShapeMessage)
		return
	}
	aud := q.Get("audience")
	if _, ok := domain.ParseAudience(aud); !ok {
		h.classifier.Respond(w, r, apperr.Validation("audience", "must be startup, enterprise or none"), apperr.ShapeMessage)
		return
	}

	subs, count, err := h.service.ListSubmissions(r.Context(), page, limit, kind, aud)
	if err != nil {
		h.classifier.Respond(w, r, err, apperr.ShapeMessage)
		return
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if subs == nil {
		subs = []domain.Submission{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  subs,
		"total": count,
		"page":  max(page, 1),
		"limit": limit,
	})
}

// Me reports who is signed in.
func (h *DashboardHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"email": UserEmail(r.Context())})
}

type CatalogHandler struct {
	service    ports.CatalogService
	classifier *apperr.Classifier
}

func NewCatalogHandler(service ports.CatalogService, classifier *apperr.Classifier) *CatalogHandler {
	return &CatalogHandler{service: service, classifier: classifier}
}

func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"data": h.service.List(r.Context())})
}

func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service.Get(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.classifier.Respond(w, r, err, apperr.ShapeMessage)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}
