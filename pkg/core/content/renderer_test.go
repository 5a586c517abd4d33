package content

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/engsite/pkg/core/audience"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/logging"
)

type recordingTracker struct {
	mu     sync.Mutex
	events []domain.AnalyticsEvent
}

func (r *recordingTracker) Track(_ context.Context, ev domain.AnalyticsEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

var full = Variants{Startup: "ship your MVP", Enterprise: "scale your programme", Default: "engineering for everyone"}

func selection(a domain.Audience) domain.AudienceSelection {
	if a == domain.AudienceNone {
		return domain.NoSelection()
	}
	return domain.AudienceSelection{Audience: a, Method: domain.MethodExplicit}
}

func TestRender_Branches(t *testing.T) {
	r := NewRenderer(DefaultPolicy(), nil)
	ctx := context.Background()

	tests := []struct {
		name        string
		selected    domain.Audience
		override    domain.Audience
		variants    Variants
		wantBranch  Branch
		wantContent string
		wantNotice  bool
	}{
		{"startup selected", domain.AudienceStartup, "", full, BranchStartup, "ship your MVP", false},
		{"enterprise selected", domain.AudienceEnterprise, "", full, BranchEnterprise, "scale your programme", false},
		{"nothing selected uses default", domain.AudienceNone, "", full, BranchDefault, "engineering for everyone", false},
		{"nothing selected no default falls back", domain.AudienceNone, "", Variants{Startup: "s", Enterprise: "e"}, BranchStartup, "s", true},
		{"override beats selection", domain.AudienceStartup, domain.AudienceEnterprise, full, BranchEnterprise, "scale your programme", false},
		{"none override ignored", domain.AudienceEnterprise, domain.AudienceNone, full, BranchEnterprise, "scale your programme", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Render(ctx, Request{Section: "hero", Selection: selection(tt.selected), Override: tt.override, Variants: tt.variants})
			assert.Equal(t, tt.wantBranch, out.Branch)
			assert.Equal(t, tt.wantContent, out.Content)
			if tt.wantNotice {
				require.NotNil(t, out.Notice)
				assert.Equal(t, "Showing startup-focused content by default", out.Notice.Text)
				assert.Equal(t, "#audience-selection", out.Notice.Href)
			} else {
				assert.Nil(t, out.Notice)
			}
		})
	}
}

func TestRender_ExactlyOneBranch(t *testing.T) {
	policies := []Policy{
		DefaultPolicy(),
		{FallbackAudience: domain.AudienceEnterprise},
		{FallbackAudience: domain.AudienceNone, ShowNotice: true},
	}
	audiences := []domain.Audience{domain.AudienceNone, domain.AudienceStartup, domain.AudienceEnterprise}
	variants := []Variants{full, {Startup: "s", Enterprise: "e"}, {}}
	valid := map[Branch]bool{BranchStartup: true, BranchEnterprise: true, BranchDefault: true}

	for _, p := range policies {
		r := NewRenderer(p, nil)
		for _, sel := range audiences {
			for _, ov := range audiences {
				for _, v := range variants {
					out := r.Render(context.Background(), Request{Selection: selection(sel), Override: ov, Variants: v})
					assert.True(t, valid[out.Branch], "policy=%v sel=%s override=%s: branch %q", p, sel, ov, out.Branch)
				}
			}
		}
	}
}

func TestRender_ConfigurableFallback(t *testing.T) {
	r := NewRenderer(Policy{FallbackAudience: domain.AudienceEnterprise, ShowNotice: false}, nil)
	out := r.Render(context.Background(), Request{Selection: domain.NoSelection(), Variants: Variants{Startup: "s", Enterprise: "e"}})
	assert.Equal(t, BranchEnterprise, out.Branch)
	assert.Nil(t, out.Notice)
}

func TestRender_TracksContentView(t *testing.T) {
	tracker := &recordingTracker{}
	r := NewRenderer(DefaultPolicy(), tracker)

	r.Render(context.Background(), Request{Section: "services-intro", Selection: selection(domain.AudienceEnterprise), Variants: full})

	require.Len(t, tracker.events, 1)
	assert.Equal(t, domain.EventContentView, tracker.events[0].Name)
	assert.Equal(t, domain.AudienceEnterprise, tracker.events[0].Audience)
	assert.Equal(t, "services-intro", tracker.events[0].Section)
}

func TestTransition(t *testing.T) {
	assert.Nil(t, Transition(BranchStartup, BranchStartup))
	assert.Equal(t, []Step{{StepEnter, BranchDefault}}, Transition("", BranchDefault))
	assert.Equal(t, []Step{{StepExit, BranchStartup}, {StepEnter, BranchEnterprise}}, Transition(BranchStartup, BranchEnterprise))
}

func TestBind_FollowsStore(t *testing.T) {
	store := audience.NewStore(audience.NewMemoryStorage(), logging.Discard())
	r := NewRenderer(DefaultPolicy(), nil)
	ctx := context.Background()

	var branches []Branch
	var transitions [][]Step
	stop := r.Bind(ctx, store, Request{Section: "hero", Variants: full}, func(out Rendered, steps []Step) {
		branches = append(branches, out.Branch)
		transitions = append(transitions, steps)
	})

	require.NoError(t, store.Select(ctx, domain.AudienceEnterprise, domain.MethodExplicit))
	store.Clear(ctx)
	stop()
	require.NoError(t, store.Select(ctx, domain.AudienceStartup, domain.MethodExplicit))

	assert.Equal(t, []Branch{BranchDefault, BranchEnterprise, BranchDefault}, branches)
	assert.Equal(t, []Step{{StepExit, BranchDefault}, {StepEnter, BranchEnterprise}}, transitions[1])

	// at no point are two branches entered without an exit in between
	visible := 0
	for _, steps := range transitions {
		for _, s := range steps {
			if s.Kind == StepEnter {
				visible++
			} else {
				visible--
			}
			assert.LessOrEqual(t, visible, 1)
		}
	}
}

func TestSectionID(t *testing.T) {
	assert.Equal(t, "why-work-with-us", SectionID("  Why work with us? "))
	assert.Equal(t, "cad-3d-modelling", SectionID("CAD & 3D Modelling"))
}

func TestBranchFor_DoesNotTrack(t *testing.T) {
	tracker := &recordingTracker{}
	r := NewRenderer(Policy{FallbackAudience: domain.AudienceEnterprise}, tracker)

	assert.Equal(t, BranchEnterprise, r.BranchFor(domain.NoSelection()))
	assert.Equal(t, BranchStartup, r.BranchFor(selection(domain.AudienceStartup)))
	assert.Empty(t, tracker.events)
}
