package diagnosis

import (
	"errors"
	"slices"
	"testing"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/mastery"
)

// mapSource is a lookup that, unlike graph.New, accepts cycles.
type mapSource map[string][]string

func (m mapSource) Atom(id string) (graph.Atom, error) {
	p, ok := m[id]
	if !ok {
		return graph.Atom{}, graph.ErrAtomNotFound
	}
	return graph.Atom{ID: id, Prerequisites: p}, nil
}

//	a
//	|\
//	b c
//	|/ \
//	d   e
//	|
//	f (failed)
func fixture() mapSource {
	return mapSource{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
		"e": {"c"},
		"f": {"d", "e"},
	}
}

func TestDiagnose_PostOrderDeepestFirst(t *testing.T) {
	got, err := Diagnose(fixture(), "f", nil)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	want := []string{"a", "b", "c", "d", "e"}
	if !slices.Equal(got, want) {
		t.Errorf("gaps = %v, want %v", got, want)
	}
}

func TestDiagnose_SkipsMasteredButTraversesThrough(t *testing.T) {
	states := map[string]mastery.State{
		"d": mastery.StateMastered,
		"c": mastery.StateMastered,
	}
	got, err := Diagnose(fixture(), "f", states)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	want := []string{"a", "b", "e"}
	if !slices.Equal(got, want) {
		t.Errorf("gaps = %v, want %v", got, want)
	}
}

func TestDiagnose_ExcludesFailedAtom(t *testing.T) {
	got, err := Diagnose(fixture(), "f", map[string]mastery.State{"f": mastery.StateFrozen})
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if slices.Contains(got, "f") {
		t.Errorf("gaps %v contain the failed atom", got)
	}
}

func TestDiagnose_RootHasNoGaps(t *testing.T) {
	got, err := Diagnose(fixture(), "a", nil)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("gaps = %v, want none", got)
	}
}

func TestDiagnose_Idempotent(t *testing.T) {
	states := map[string]mastery.State{"b": mastery.StateMastered, "e": mastery.StateFrozen}
	first, err := Diagnose(fixture(), "f", states)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := Diagnose(fixture(), "f", states)
		if err != nil {
			t.Fatalf("Diagnose #%d: %v", i, err)
		}
		if !slices.Equal(first, again) {
			t.Fatalf("call %d returned %v, first returned %v", i, again, first)
		}
	}
}

func TestDiagnose_CycleDetected(t *testing.T) {
	src := mapSource{
		"x": {"y"},
		"y": {"z"},
		"z": {"x"},
	}
	_, err := Diagnose(src, "x", nil)
	var gce *GraphCycleError
	if !errors.As(err, &gce) {
		t.Fatalf("err = %v, want GraphCycleError", err)
	}
	want := []string{"x", "y", "z", "x"}
	if !slices.Equal(gce.Path, want) {
		t.Errorf("cycle path = %v, want %v", gce.Path, want)
	}
}

func TestDiagnose_DiamondIsNotACycle(t *testing.T) {
	src := mapSource{"a": nil, "b": {"a"}, "c": {"a"}, "d": {"b", "c"}}
	got, err := Diagnose(src, "d", nil)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if want := []string{"a", "b", "c"}; !slices.Equal(got, want) {
		t.Errorf("gaps = %v, want %v", got, want)
	}
}

func TestDiagnose_UnknownAtom(t *testing.T) {
	if _, err := Diagnose(fixture(), "nope", nil); !errors.Is(err, graph.ErrAtomNotFound) {
		t.Fatalf("err = %v, want ErrAtomNotFound", err)
	}
	broken := mapSource{"x": {"missing"}}
	if _, err := Diagnose(broken, "x", nil); !errors.Is(err, graph.ErrAtomNotFound) {
		t.Fatalf("dangling prerequisite err = %v, want ErrAtomNotFound", err)
	}
}

func TestDiagnose_WorksWithGraph(t *testing.T) {
	g, err := graph.New("t", []graph.Atom{
		{ID: "p"},
		{ID: "q", Prerequisites: []string{"p"}},
	}, nil)
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	got, err := Diagnose(g, "q", nil)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !slices.Equal(got, []string{"p"}) {
		t.Errorf("gaps = %v, want [p]", got)
	}
}
