package handler

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/core/content"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/logging"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// StaticFiles serves the embedded assets under /static/.
func StaticFiles() http.Handler {
	sub, _ := fs.Sub(staticFS, "static")
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}

type section struct {
	id       string
	variants content.Variants
}

var homeSections = []section{
	{
		id: "hero",
		variants: content.Variants{
			Startup:    "From napkin sketch to manufacturable prototype in weeks, with engineers who have shipped hardware on a seed budget.",
			Enterprise: "Senior engineering capacity for programmes that cannot slip, with documented processes and audit-ready deliverables.",
		},
	},
	{
		id: "how-we-work",
		variants: content.Variants{
			Startup:    "Fixed-scope sprints, weekly demos and design files you own outright.",
			Enterprise: "Dedicated teams that plug into your PLM, quality system and supplier base.",
			Default:    "We scope the work with you, deliver in short iterations and hand over everything we make.",
		},
	},
	{
		id: "proof",
		variants: content.Variants{
			Startup:    "Forty venture-backed teams took their first product to pilot production with us.",
			Enterprise: "Trusted by tier-one suppliers for simulation, DFM reviews and embedded firmware.",
		},
	},
}

type pageData struct {
	Title           string
	Path            string
	Selection       domain.AudienceSelection
	IsSelected      bool
	Notice          *content.Notice
	Sections        []content.Rendered
	Services        []domain.Service
	Service         *domain.Service
	SelectedService string
}

// PageHandler renders the marketing pages for the visitor's audience.
type PageHandler struct {
	audience *AudienceHandler
	renderer *content.Renderer
	catalog  ports.CatalogService
	logger   logging.Logger
	pages    map[string]*template.Template
}

func NewPageHandler(audience *AudienceHandler, renderer *content.Renderer, catalog ports.CatalogService, logger logging.Logger) (*PageHandler, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"home", "services", "service", "contact", "quote", "notfound"} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		pages[name] = t
	}
	return &PageHandler{audience: audience, renderer: renderer, catalog: catalog, logger: logger, pages: pages}, nil
}

// base resolves the visitor's selection. A campaign link such as
// /?audience=enterprise is applied as an inferred choice unless they already
// picked one.
func (h *PageHandler) base(w http.ResponseWriter, r *http.Request, title string) pageData {
	store := h.audience.storeFor(w, r)
	if a, ok := domain.ParseAudience(r.URL.Query().Get("audience")); ok && a.IsSegment() {
		store.Infer(r.Context(), a)
	}
	sel := store.State()
	return pageData{
		Title:      title,
		Path:       r.URL.Path,
		Selection:  sel,
		IsSelected: sel.Audience.IsSegment(),
	}
}

func (h *PageHandler) renderSections(r *http.Request, data *pageData, sections []section) {
	for _, s := range sections {
		out := h.renderer.Render(r.Context(), content.Request{
			Section:   s.id,
			Selection: data.Selection,
			Variants:  s.variants,
		})
		if out.Notice != nil && data.Notice == nil {
			data.Notice = out.Notice
		}
		data.Sections = append(data.Sections, out)
	}
}

func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		h.NotFound(w, r)
		return
	}
	data := h.base(w, r, "Engineering for startups and enterprises")
	h.renderSections(r, &data, homeSections)
	data.Services = h.catalog.List(r.Context())
	h.render(w, r, http.StatusOK, "home", data)
}

func (h *PageHandler) Services(w http.ResponseWriter, r *http.Request) {
	data := h.base(w, r, "Services")
	data.Services = h.catalog.List(r.Context())
	h.render(w, r, http.StatusOK, "services", data)
}

func (h *PageHandler) Service(w http.ResponseWriter, r *http.Request) {
	svc, err := h.catalog.Get(r.Context(), r.PathValue("slug"))
	if err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			h.logger.Error(r.Context(), "load service", "error", err)
		}
		h.NotFound(w, r)
		return
	}
	data := h.base(w, r, svc.Title)
	data.Service = svc
	h.renderSections(r, &data, []section{{
		id:       content.SectionID(svc.Slug),
		variants: content.Variants{Startup: svc.Startup, Enterprise: svc.Enterprise, Default: svc.Default},
	}})
	h.render(w, r, http.StatusOK, "service", data)
}

func (h *PageHandler) Contact(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "contact", h.base(w, r, "Book a consultation"))
}

func (h *PageHandler) Quote(w http.ResponseWriter, r *http.Request) {
	data := h.base(w, r, "Request a quote")
	data.Services = h.catalog.List(r.Context())
	data.SelectedService = r.URL.Query().Get("service")
	h.render(w, r, http.StatusOK, "quote", data)
}

func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, "notfound", h.base(w, r, "Not found"))
}

// render executes into a buffer so a template error never sends half a page.
func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := h.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		h.logger.Error(r.Context(), "render page", "page", name, "error", err)
		http.Error(w, "An unexpected error occurred", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
