package services

import (
	"context"

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

// catalog is the fixed list of offerings. Slugs must match the service enum
// in the quote schema.
var catalog = []domain.Service{
	{
		Slug:       "cad-design",
		Title:      "CAD Design & Drafting",
		Summary:    "Parametric 3D models and manufacturing drawings.",
		Startup:    "Turn a napkin sketch into a manufacturable model in weeks, not months.",
		Enterprise: "Drawing packages to your CAD standards, with PDM check-in and revision control.",
		Default:    "Precise 3D models and drawings, ready for the shop floor.",
		Deliverables: []string{
			"Native CAD files (SolidWorks, Fusion 360, STEP)",
			"2D drawings with GD&T",
			"Bill of materials",
		},
	},
	{
		Slug:       "product-engineering",
		Title:      "Product Engineering",
		Summary:    "End to end mechanical design from concept to launch.",
		Startup:    "A fractional engineering team that gets your first product out the door.",
		Enterprise: "Extra capacity for your programme without the hiring cycle.",
		Deliverables: []string{
			"Concept studies and trade-offs",
			"Design for manufacture review",
			"Supplier hand-off package",
		},
	},
	{
		Slug:       "rapid-prototyping",
		Title:      "Rapid Prototyping",
		Summary:    "3D printed, machined and cast prototypes.",
		Startup:    "Put a working prototype in front of investors and early customers.",
		Enterprise: "Validation builds for design reviews and pilot runs.",
		Default:    "Physical prototypes to test form, fit and function.",
		Deliverables: []string{
			"FDM, SLA and SLS prints",
			"CNC machined parts",
			"Prototype test report",
		},
	},
	{
		Slug:       "simulation-analysis",
		Title:      "Simulation & Analysis",
		Summary:    "FEA and CFD to de-risk designs before tooling.",
		Startup:    "Catch failures on screen before they cost you a tooling round.",
		Enterprise: "Certification-grade analysis reports that stand up to audit.",
		Deliverables: []string{
			"Static and fatigue FEA",
			"Thermal and flow CFD",
			"Analysis report",
		},
	},
	{
		Slug:       "manufacturing-support",
		Title:      "Manufacturing Support",
		Summary:    "Supplier selection, tooling reviews and first article inspection.",
		Startup:    "Find the right manufacturer and avoid expensive first-run surprises.",
		Enterprise: "Resident engineering support for line transfers and cost-down.",
		Deliverables: []string{
			"Supplier shortlist",
			"Tooling and DFM review",
			"First article inspection report",
		},
	},
	{
		Slug:       "embedded-systems",
		Title:      "Embedded Systems",
		Summary:    "Electronics integration and firmware for connected products.",
		Startup:    "From dev-kit demo to a board you can certify and ship.",
		Enterprise: "Firmware maintenance and integration for existing product lines.",
		Default:    "Electronics and firmware that fit the mechanical design.",
		Deliverables: []string{
			"Schematic and PCB review",
			"Firmware",
			"Integration test plan",
		},
	},
}

type CatalogService struct {
	bySlug map[string]int
}

func NewCatalogService() *CatalogService {
	idx := make(map[string]int, len(catalog))
	for i, s := range catalog {
		idx[s.Slug] = i
	}
	return &CatalogService{bySlug: idx}
}

func (s *CatalogService) List(ctx context.Context) []domain.Service {
	out := make([]domain.Service, len(catalog))
	copy(out, catalog)
	return out
}

func (s *CatalogService) Get(ctx context.Context, slug string) (*domain.Service, error) {
	i, ok := s.bySlug[slug]
	if !ok {
		return nil, apperr.NotFound(nil)
	}
	svc := catalog[i]
	return &svc, nil
}

var _ ports.CatalogService = (*CatalogService)(nil)
