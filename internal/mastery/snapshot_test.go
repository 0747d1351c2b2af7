package mastery

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/store"
)

func TestSnapshot_PreservesLiveAttempt(t *testing.T) {
	g := chain(t)
	tr := NewTracker(g)
	tr.Seed("a", t0)
	tr.Reschedule("a", 3, t0.AddDate(0, 0, 3))
	tr.BeginAttempt("b", t0)
	tr.RecordAnswer("b", "b1", true, Progress{Difficulty: graph.Easy, ConsecutiveCorrect: 1})
	tr.RecordAnswer("b", "b2", false, Progress{Difficulty: graph.Easy, ConsecutiveIncorrect: 1})

	raw, err := json.Marshal(tr.SnapshotData())
	if err != nil {
		t.Fatal(err)
	}
	var data store.MasterySnapshotData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatal(err)
	}
	restored := NewTrackerFromSnapshot(g, &data)

	a := restored.Get("a")
	if a.State != StateMastered || a.Source != SourceDiagnostic || a.IntervalDays != 3 {
		t.Errorf("a = %+v", a)
	}
	if a.NextReviewAt == nil || !a.NextReviewAt.Equal(t0.AddDate(0, 0, 3)) {
		t.Errorf("a.NextReviewAt = %v", a.NextReviewAt)
	}

	b := restored.Get("b")
	if b.State != StateInProgress || b.AttemptNumber != 1 || b.ConsecutiveIncorrect != 1 {
		t.Errorf("b = %+v", b)
	}
	if len(b.SeenQuestionIDs) != 2 || b.Misses["b2"] != 1 {
		t.Errorf("b seen=%v misses=%v", b.SeenQuestionIDs, b.Misses)
	}
	if got := b.LastAttempt(); got == nil || !got.StartedAt.Equal(t0) || got.EndedAt != nil {
		t.Errorf("b attempt = %+v", got)
	}
}

func TestSnapshot_NilAndDefaults(t *testing.T) {
	tr := NewTrackerFromSnapshot(chain(t), nil)
	if len(tr.States()) != 0 {
		t.Error("nil snapshot should give empty tracker")
	}
	tr = NewTrackerFromSnapshot(chain(t), &store.MasterySnapshotData{
		Atoms: map[string]*store.AtomMasteryData{"a": {AtomID: "a"}},
	})
	if tr.State("a") != StateNotStarted {
		t.Errorf("empty state should default to not_started, got %s", tr.State("a"))
	}
	if tr.Get("a").CurrentDifficulty != graph.Easy {
		t.Error("difficulty should default to easy")
	}
}

func TestFormatParseTime(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	got := parseTime(formatTime(&ts))
	if got == nil || !got.Equal(ts) {
		t.Errorf("round trip = %v", got)
	}
	bad := "not-a-time"
	if parseTime(&bad) != nil {
		t.Error("bad timestamp should parse to nil")
	}
}
