package plan

import (
	"slices"
	"time"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/mastery"
	"github.com/abhisek/masterypath/internal/priority"
	"github.com/abhisek/masterypath/internal/spacedrep"
)

// Action is what a plan item asks of the student.
type Action string

const (
	ActionTeach   Action = "teach"
	ActionGapFill Action = "gap_fill"
	ActionReview  Action = "review"
)

// Item is one entry in a StudentPlan.
type Item struct {
	AtomID        string  `json:"atom_id"`
	Action        Action  `json:"action"`
	PriorityScore float64 `json:"priority_score"`
	// Probe marks a review item that is a single-atom targeted probe.
	Probe bool `json:"probe,omitempty"`
}

// StudentPlan is the ordered work list for one student.
type StudentPlan struct {
	Items       []Item    `json:"items"`
	Blocked     []string  `json:"blocked,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Inputs is everything Recompute reads.
type Inputs struct {
	Graph   *graph.Graph
	Tracker *mastery.Tracker
	Flow    Flow
	Now     time.Time
}

// Recompute derives the plan from scratch. It does not modify its inputs.
// Items are ordered gap fills (innermost frame first), then reviews
// (probes first, then most overdue), then teach items in priority order.
func Recompute(in Inputs) StudentPlan {
	p := StudentPlan{Items: []Item{}, GeneratedAt: in.Now}
	listed := make(map[string]bool)
	score := func(id string) float64 { return priority.Score(in.Graph, id) }
	add := func(id string, a Action, probe bool) {
		p.Items = append(p.Items, Item{AtomID: id, Action: a, PriorityScore: score(id), Probe: probe})
	}

	for i := len(in.Flow.Frames) - 1; i >= 0; i-- {
		for _, gap := range in.Flow.Frames[i].Gaps {
			am := in.Tracker.Get(gap)
			if listed[gap] || am.State == mastery.StateMastered || am.Blocked {
				continue
			}
			listed[gap] = true
			add(gap, ActionGapFill, false)
		}
	}

	reviewed := make(map[string]bool)
	for _, id := range spacedrep.Probes(in.Tracker) {
		reviewed[id] = true
		add(id, ActionReview, true)
	}
	for _, d := range spacedrep.Due(in.Tracker, in.Now) {
		if reviewed[d.AtomID] {
			continue
		}
		reviewed[d.AtomID] = true
		add(d.AtomID, ActionReview, false)
	}

	held := heldAtoms(in.Flow.Frames, in.Tracker)
	var teach []string
	if in.Flow.AtomID != "" && (in.Flow.Phase == PhaseTeach || in.Flow.Phase == PhaseAssess) {
		teach = append(teach, in.Flow.AtomID)
	}
	for i := len(in.Flow.Frames) - 1; i >= 0; i-- {
		teach = append(teach, in.Flow.Frames[i].FailedAtomID)
	}
	for _, r := range priority.Rank(in.Graph, priority.Candidates(in.Graph, in.Tracker, held...)) {
		teach = append(teach, r.AtomID)
	}
	for _, id := range teach {
		am := in.Tracker.Get(id)
		if listed[id] || am.State == mastery.StateMastered || am.Blocked {
			continue
		}
		// A frozen atom waits for its gaps; the gap_fill items stand for it.
		if am.State == mastery.StateFrozen && slices.Contains(held, id) {
			continue
		}
		listed[id] = true
		add(id, ActionTeach, false)
	}

	for _, am := range in.Tracker.All() {
		if am.Blocked {
			p.Blocked = append(p.Blocked, am.AtomID)
		}
	}
	slices.Sort(p.Blocked)
	return p
}

// Plan recomputes the plan from the orchestrator's current state.
func (o *Orchestrator) Plan(now time.Time) StudentPlan {
	return Recompute(Inputs{Graph: o.g, Tracker: o.tr, Flow: o.flow, Now: now})
}
