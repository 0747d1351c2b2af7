package plan

import (
	"slices"
	"testing"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/mastery"
)

func TestRecompute_Ordering(t *testing.T) {
	g := course(t, []graph.Atom{
		{ID: "a"},
		{ID: "b"},
		{ID: "c"},
		{ID: "d", Prerequisites: []string{"c"}},
		{ID: "e"},
	}, map[string]int{"e": 1})
	tr := newTracker(g)
	for _, id := range []string{"a", "b"} {
		if _, err := tr.Seed(id, t0.AddDate(0, 0, -10)); err != nil {
			t.Fatalf("Seed: %v", err)
		}
	}
	if err := tr.Reschedule("a", 3, t0.AddDate(0, 0, -2)); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if err := tr.Reschedule("b", 3, t0.AddDate(0, 0, 5)); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	tr.SetProbe("b", true)

	p := Recompute(Inputs{Graph: g, Tracker: tr, Now: t0})

	want := []struct {
		id     string
		action Action
		probe  bool
	}{
		{"b", ActionReview, true},
		{"a", ActionReview, false},
		{"c", ActionTeach, false},
		{"e", ActionTeach, false},
	}
	if len(p.Items) != len(want) {
		t.Fatalf("items = %+v, want %d", p.Items, len(want))
	}
	for i, w := range want {
		it := p.Items[i]
		if it.AtomID != w.id || it.Action != w.action || it.Probe != w.probe {
			t.Errorf("item %d = %+v, want %s %s probe=%v", i, it, w.id, w.action, w.probe)
		}
	}
	// c scores 12 + 0.5*12 = 18.
	if p.Items[2].PriorityScore != 18 {
		t.Errorf("c score = %v, want 18", p.Items[2].PriorityScore)
	}
	if !p.GeneratedAt.Equal(t0) {
		t.Errorf("generated at = %v", p.GeneratedAt)
	}
}

func TestRecompute_NestedFramesInnermostFirst(t *testing.T) {
	g := course(t, []graph.Atom{
		{ID: "p"},
		{ID: "q", Prerequisites: []string{"p"}},
		{ID: "r", Prerequisites: []string{"q"}},
		{ID: "s", Prerequisites: []string{"r"}},
	}, nil)
	tr := newTracker(g)
	flow := Flow{
		Phase:  PhaseTeach,
		AtomID: "p",
		Frames: []Frame{
			{FailedAtomID: "s", Gaps: []string{"p", "q", "r"}},
			{FailedAtomID: "q", Gaps: []string{"p"}},
		},
	}
	p := Recompute(Inputs{Graph: g, Tracker: tr, Flow: flow, Now: t0})

	var got []string
	for _, it := range p.Items {
		got = append(got, string(it.Action)+":"+it.AtomID)
	}
	want := []string{"gap_fill:p", "gap_fill:q", "gap_fill:r", "teach:s"}
	if len(got) != len(want) {
		t.Fatalf("items = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("items = %v, want %v", got, want)
			break
		}
	}
}

func TestRecompute_DoesNotMutateTracker(t *testing.T) {
	g := chain(t)
	tr := newTracker(g)
	before := tr.All()
	Recompute(Inputs{Graph: g, Tracker: tr, Now: t0})
	after := tr.All()
	if len(before) != len(after) {
		t.Fatal("tracker size changed")
	}
	for i := range before {
		if before[i].State != after[i].State || before[i].AttemptNumber != after[i].AttemptNumber {
			t.Errorf("record %s changed", before[i].AtomID)
		}
	}
}

func TestRecompute_FrozenAtomWaitsForDiagnosedGaps(t *testing.T) {
	// c's direct prerequisite b was seeded, but diagnosis found the deeper
	// gap a. c must not come back as teach until a is mastered.
	g := course(t, []graph.Atom{
		{ID: "a"},
		{ID: "b", Prerequisites: []string{"a"}},
		{ID: "c", Prerequisites: []string{"b"}},
	}, nil)
	tr := newTracker(g)
	if _, err := tr.Seed("b", t0); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if _, err := tr.BeginAttempt("c", t0); err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}
	if _, err := tr.RecordFailed("c", t0); err != nil {
		t.Fatalf("RecordFailed: %v", err)
	}
	flow := Flow{Frames: []Frame{{FailedAtomID: "c", Gaps: []string{"a"}}}}

	actions := func(p StudentPlan) []string {
		var out []string
		for _, it := range p.Items {
			if it.Action != ActionReview {
				out = append(out, string(it.Action)+":"+it.AtomID)
			}
		}
		return out
	}

	p := Recompute(Inputs{Graph: g, Tracker: tr, Flow: flow, Now: t0})
	if got := actions(p); !slices.Equal(got, []string{"gap_fill:a"}) {
		t.Fatalf("with gap open = %v, want [gap_fill:a]", got)
	}

	if _, err := tr.Seed("a", t0); err != nil {
		t.Fatalf("Seed a: %v", err)
	}
	p = Recompute(Inputs{Graph: g, Tracker: tr, Flow: flow, Now: t0})
	if got := actions(p); !slices.Equal(got, []string{"teach:c"}) {
		t.Fatalf("with gap closed = %v, want [teach:c]", got)
	}
	if tr.State("c") != mastery.StateFrozen {
		t.Errorf("Recompute changed c to %s", tr.State("c"))
	}
}
