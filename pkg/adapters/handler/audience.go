package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/core/audience"
	"github.com/wadjakorntonsri/engsite/pkg/core/content"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/logging"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

// CookieStorage keeps audience state in session cookies, so a selection lasts
// until the browser is closed. Writes are visible to later reads in the same
// request.
type CookieStorage struct {
	r       *http.Request
	w       http.ResponseWriter
	secure  bool
	pending map[string]*string
}

func NewCookieStorage(w http.ResponseWriter, r *http.Request, secure bool) *CookieStorage {
	return &CookieStorage{r: r, w: w, secure: secure, pending: make(map[string]*string)}
}

func cookieName(key string) string {
	return strings.ReplaceAll(key, ".", "_")
}

func (c *CookieStorage) Get(key string) (string, bool) {
	if v, ok := c.pending[key]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}
	ck, err := c.r.Cookie(cookieName(key))
	if err != nil {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(ck.Value)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func (c *CookieStorage) Set(key, value string) error {
	c.pending[key] = &value
	http.SetCookie(c.w, &http.Cookie{
		Name:     cookieName(key),
		Value:    base64.RawURLEncoding.EncodeToString([]byte(value)),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (c *CookieStorage) Remove(key string) error {
	c.pending[key] = nil
	http.SetCookie(c.w, &http.Cookie{
		Name:     cookieName(key),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

var _ audience.Storage = (*CookieStorage)(nil)

// AudienceHandler exposes the per-session audience store over HTTP.
type AudienceHandler struct {
	renderer   *content.Renderer
	tracker    ports.AnalyticsTracker
	logger     logging.Logger
	classifier *apperr.Classifier
	secure     bool
}

func NewAudienceHandler(renderer *content.Renderer, tracker ports.AnalyticsTracker, logger logging.Logger, classifier *apperr.Classifier, secure bool) *AudienceHandler {
	return &AudienceHandler{renderer: renderer, tracker: tracker, logger: logger, classifier: classifier, secure: secure}
}

// storeFor hydrates the visitor's store from their cookies.
func (h *AudienceHandler) storeFor(w http.ResponseWriter, r *http.Request) *audience.Store {
	opts := []audience.Option{}
	if h.tracker != nil {
		opts = append(opts, audience.WithTracker(h.tracker))
	}
	return audience.NewStore(NewCookieStorage(w, r, h.secure), h.logger, opts...)
}

type audienceResponse struct {
	Selection  domain.AudienceSelection `json:"selection"`
	IsSelected bool                     `json:"isSelected"`
	Branch     content.Branch           `json:"branch"`
	Transition []content.Step           `json:"transition,omitempty"`
}

type selectAudienceRequest struct {
	Audience string `json:"audience"`
	Method   string `json:"method"`
}

func (h *AudienceHandler) Get(w http.ResponseWriter, r *http.Request) {
	state := h.storeFor(w, r).State()
	writeJSON(w, http.StatusOK, audienceResponse{
		Selection:  state,
		IsSelected: state.Audience.IsSegment(),
		Branch:     h.renderer.BranchFor(state),
	})
}

func (h *AudienceHandler) Select(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.classifier.Respond(w, r, err, apperr.ShapeMessage)
		return
	}
	var req selectAudienceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.classifier.Respond(w, r, apperr.Validation("", "request body must be a JSON object"), apperr.ShapeMessage)
		return
	}
	a, ok := domain.ParseAudience(req.Audience)
	if !ok {
		h.classifier.Respond(w, r, apperr.Validation("audience", "must be startup, enterprise or none"), apperr.ShapeMessage)
		return
	}
	m, ok := domain.ParseSelectionMethod(req.Method)
	if !ok {
		h.classifier.Respond(w, r, apperr.Validation("method", "must be explicit or inferred"), apperr.ShapeMessage)
		return
	}

	store := h.storeFor(w, r)
	from := h.renderer.BranchFor(store.State())
	if err := store.Select(r.Context(), a, m); err != nil {
		h.classifier.Respond(w, r, err, apperr.ShapeMessage)
		return
	}
	h.respondWithTransition(w, store, from)
}

func (h *AudienceHandler) Clear(w http.ResponseWriter, r *http.Request) {
	store := h.storeFor(w, r)
	from := h.renderer.BranchFor(store.State())
	store.Clear(r.Context())
	h.respondWithTransition(w, store, from)
}

func (h *AudienceHandler) respondWithTransition(w http.ResponseWriter, store *audience.Store, from content.Branch) {
	state := store.State()
	to := h.renderer.BranchFor(state)
	writeJSON(w, http.StatusOK, audienceResponse{
		Selection:  state,
		IsSelected: state.Audience.IsSegment(),
		Branch:     to,
		Transition: content.Transition(from, to),
	})
}

// SelectForm handles the no-JS selector on every page and sends the visitor
// back where they came from.
func (h *AudienceHandler) SelectForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	a, ok := domain.ParseAudience(r.PostForm.Get("audience"))
	if !ok {
		http.Error(w, "unknown audience", http.StatusBadRequest)
		return
	}
	if err := h.storeFor(w, r).Select(r.Context(), a, domain.MethodExplicit); err != nil {
		http.Error(w, "unknown audience", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, localRedirect(r.PostForm.Get("next")), http.StatusSeeOther)
}

// localRedirect only allows same-site paths.
func localRedirect(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
