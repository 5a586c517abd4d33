// Package content picks which audience variant of a page section to show.
package content

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/core/audience"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

type Branch string

const (
	BranchStartup    Branch = "startup"
	BranchEnterprise Branch = "enterprise"
	BranchDefault    Branch = "default"
)

// NoticeAnchor is where the fallback notice sends visitors to choose.
const NoticeAnchor = "#audience-selection"

// Policy decides what an undecided visitor sees when a section has no
// neutral variant.
type Policy struct {
	FallbackAudience domain.Audience
	ShowNotice       bool
}

func DefaultPolicy() Policy {
	return Policy{FallbackAudience: domain.AudienceStartup, ShowNotice: true}
}

// Variants are the mutually exclusive versions of one section. Default is
// optional.
type Variants struct {
	Startup    string
	Enterprise string
	Default    string
}

type Request struct {
	Section   string
	Selection domain.AudienceSelection
	Override  domain.Audience // forces a branch when set to a segment
	Variants  Variants
}

type Notice struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Rendered is always exactly one branch.
type Rendered struct {
	Section  string          `json:"section"`
	Branch   Branch          `json:"branch"`
	Audience domain.Audience `json:"audience"`
	Content  string          `json:"content"`
	Notice   *Notice         `json:"notice,omitempty"`
}

type Renderer struct {
	policy  Policy
	tracker ports.AnalyticsTracker
	now     func() time.Time
}

// NewRenderer builds a renderer. tracker may be nil.
func NewRenderer(policy Policy, tracker ports.AnalyticsTracker) *Renderer {
	if !policy.FallbackAudience.IsSegment() {
		policy.FallbackAudience = domain.AudienceStartup
	}
	return &Renderer{policy: policy, tracker: tracker, now: time.Now}
}

func (r *Renderer) Policy() Policy { return r.policy }

// Render resolves the branch: override, then the selected audience, then the
// section's default variant, then the policy fallback with a notice.
func (r *Renderer) Render(ctx context.Context, req Request) Rendered {
	out := r.resolve(req)
	if r.tracker != nil {
		r.tracker.Track(ctx, domain.AnalyticsEvent{
			Name:      domain.EventContentView,
			Audience:  out.Audience,
			Section:   req.Section,
			Timestamp: r.now().UTC(),
		})
	}
	return out
}

func (r *Renderer) resolve(req Request) Rendered {
	out := Rendered{Section: req.Section}

	a := req.Selection.Audience
	if req.Override.IsSegment() {
		a = req.Override
	}

	switch {
	case a.IsSegment():
		out.Audience = a
	case req.Variants.Default != "":
		out.Branch = BranchDefault
		out.Audience = domain.AudienceNone
		out.Content = req.Variants.Default
		return out
	default:
		out.Audience = r.policy.FallbackAudience
		if r.policy.ShowNotice {
			out.Notice = &Notice{
				Text: "Showing " + string(out.Audience) + "-focused content by default",
				Href: NoticeAnchor,
			}
		}
	}

	if out.Audience == domain.AudienceEnterprise {
		out.Branch = BranchEnterprise
		out.Content = req.Variants.Enterprise
	} else {
		out.Branch = BranchStartup
		out.Content = req.Variants.Startup
	}
	return out
}

// BranchFor is the branch a section without a neutral variant shows for sel.
// Nothing is tracked.
func (r *Renderer) BranchFor(sel domain.AudienceSelection) Branch {
	return r.resolve(Request{Selection: sel}).Branch
}

type StepKind string

const (
	StepExit  StepKind = "exit"
	StepEnter StepKind = "enter"
)

type Step struct {
	Kind   StepKind `json:"kind"`
	Branch Branch   `json:"branch"`
}

// Transition lists the animation steps between two branches. The outgoing
// branch always finishes exiting before the next one enters.
func Transition(from, to Branch) []Step {
	if from == to {
		return nil
	}
	var steps []Step
	if from != "" {
		steps = append(steps, Step{Kind: StepExit, Branch: from})
	}
	if to != "" {
		steps = append(steps, Step{Kind: StepEnter, Branch: to})
	}
	return steps
}

// Bind re-renders req whenever store changes and reports the new output
// along with the transition from the previous branch. The returned function
// stops watching.
func (r *Renderer) Bind(ctx context.Context, store *audience.Store, req Request, fn func(Rendered, []Step)) func() {
	var mu sync.Mutex
	req.Selection = store.State()
	current := r.Render(ctx, req)
	fn(current, Transition("", current.Branch))

	return store.Subscribe(func(sel domain.AudienceSelection) {
		mu.Lock()
		defer mu.Unlock()
		req.Selection = sel
		next := r.Render(ctx, req)
		steps := Transition(current.Branch, next.Branch)
		current = next
		fn(next, steps)
	})
}

// SectionID normalises a heading into the identifier used in analytics.
func SectionID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), "-")
}
