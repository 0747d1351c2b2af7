package mastery

import (
	"errors"
	"testing"
	"time"

	"github.com/abhisek/masterypath/internal/graph"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// chain builds a -> b -> c (c requires b requires a).
func chain(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New("chain", []graph.Atom{
		{ID: "a"},
		{ID: "b", Prerequisites: []string{"a"}},
		{ID: "c", Prerequisites: []string{"b"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestTracker_InitCreatesNotStarted(t *testing.T) {
	tr := NewTracker(chain(t))
	tr.Init([]string{"a", "b", "c"})
	for id, st := range tr.States() {
		if st != StateNotStarted {
			t.Errorf("%s state = %s, want not_started", id, st)
		}
	}
	if len(tr.States()) != 3 {
		t.Errorf("States() has %d entries, want 3", len(tr.States()))
	}
}

func TestTracker_InProgressRequiresMasteredPrerequisites(t *testing.T) {
	tr := NewTracker(chain(t))
	tr.Init([]string{"a", "b", "c"})

	_, err := tr.BeginAttempt("b", t0)
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("BeginAttempt(b) err = %v, want InvalidTransitionError", err)
	}
	if tr.State("b") != StateNotStarted {
		t.Errorf("b moved to %s despite the rejection", tr.State("b"))
	}

	if _, err := tr.BeginAttempt("a", t0); err != nil {
		t.Fatalf("BeginAttempt(a): %v", err)
	}
	if _, err := tr.RecordMastered("a", t0); err != nil {
		t.Fatal(err)
	}
	tr2, err := tr.BeginAttempt("b", t0)
	if err != nil {
		t.Fatalf("BeginAttempt(b) after a mastered: %v", err)
	}
	if tr2.To != StateInProgress || tr2.Trigger != "attempt-started" {
		t.Errorf("transition = %+v", tr2)
	}
}

func TestTracker_MasteredRecordsSourceAndTime(t *testing.T) {
	tr := NewTracker(chain(t))
	tr.BeginAttempt("a", t0)
	tr.RecordAnswer("a", "q1", true, Progress{Difficulty: graph.Easy, ConsecutiveCorrect: 1})
	now := t0.Add(time.Hour)
	if _, err := tr.RecordMastered("a", now); err != nil {
		t.Fatal(err)
	}
	am := tr.Get("a")
	if am.State != StateMastered || am.Source != SourcePP100 {
		t.Errorf("state/source = %s/%s", am.State, am.Source)
	}
	if am.LastDemonstratedAt == nil || !am.LastDemonstratedAt.Equal(now) {
		t.Errorf("LastDemonstratedAt = %v, want %v", am.LastDemonstratedAt, now)
	}
	last := am.LastAttempt()
	if last.Outcome != OutcomeMastered || last.QuestionsAnswered != 1 || last.Correct != 1 {
		t.Errorf("attempt = %+v", last)
	}
}

func TestTracker_FailFreezesAndUnfreezeNeedsGapsClosed(t *testing.T) {
	tr := NewTracker(chain(t))
	tr.Seed("a", t0)
	tr.BeginAttempt("b", t0)
	tr.RecordAnswer("b", "b1", false, Progress{})
	if _, err := tr.RecordFailed("b", t0); err != nil {
		t.Fatal(err)
	}
	if tr.State("b") != StateFrozen {
		t.Fatalf("b state = %s, want frozen", tr.State("b"))
	}
	if tr.Get("b").Blocked {
		t.Fatal("first failure must not block")
	}

	tr2, err := tr.BeginAttempt("b", t0)
	if err != nil {
		t.Fatalf("auto-unfreeze: %v", err)
	}
	if tr2.From != StateFrozen || tr2.Trigger != "auto-unfreeze" {
		t.Errorf("transition = %+v", tr2)
	}
	if got := tr.Get("b").AttemptNumber; got != 2 {
		t.Errorf("AttemptNumber = %d, want 2", got)
	}
	if used := tr.UsedQuestionIDs("b"); len(used) != 1 || used[0] != "b1" {
		t.Errorf("UsedQuestionIDs = %v, want [b1]", used)
	}
}

func TestTracker_FrozenWithUnresolvedGapRejected(t *testing.T) {
	g, _ := graph.New("x", []graph.Atom{{ID: "a"}, {ID: "b"}, {ID: "c", Prerequisites: []string{"a", "b"}}}, nil)
	tr := NewTracker(g)
	tr.Seed("a", t0)
	// c failed earlier and diagnosis found b unmastered.
	tr.records["c"] = &AtomMastery{AtomID: "c", State: StateFrozen, AttemptNumber: 1}
	_, err := tr.BeginAttempt("c", t0)
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	if ite.From != StateFrozen || ite.Action != "assess" {
		t.Errorf("error = %+v", ite)
	}
}

func TestTracker_SecondFailureBlocks(t *testing.T) {
	tr := NewTracker(chain(t))
	for i := 0; i < 2; i++ {
		if _, err := tr.BeginAttempt("a", t0); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		tr.RecordFailed("a", t0)
	}
	am := tr.Get("a")
	if !am.Blocked || am.AttemptsRemaining() != 0 {
		t.Fatalf("Blocked=%v remaining=%d", am.Blocked, am.AttemptsRemaining())
	}
	if _, err := tr.BeginAttempt("a", t0); err == nil {
		t.Fatal("third attempt must be rejected")
	}
}

func TestTracker_SeedOnlyFromNotStarted(t *testing.T) {
	tr := NewTracker(chain(t))
	st, err := tr.Seed("c", t0)
	if err != nil {
		t.Fatal(err)
	}
	if st.Trigger != "diagnostic-seed" || tr.Get("c").Source != SourceDiagnostic {
		t.Errorf("seed transition = %+v", st)
	}
	if st, err := tr.Seed("c", t0); err != nil || st != nil {
		t.Errorf("re-seeding mastered atom: st=%v err=%v", st, err)
	}
	if _, err := tr.Seed("nope", t0); err == nil {
		t.Error("seeding unknown atom should fail")
	}

	tr.Seed("a", t0)
	tr.BeginAttempt("b", t0)
	if _, err := tr.Seed("b", t0); err == nil {
		t.Error("seeding an in_progress atom should fail")
	}
}

func TestTracker_ReviewMutationsRequireMastered(t *testing.T) {
	tr := NewTracker(chain(t))
	if err := tr.Reschedule("a", 3, t0); err == nil {
		t.Error("Reschedule on not_started should fail")
	}
	if err := tr.Demonstrate("a", t0); err == nil {
		t.Error("Demonstrate on not_started should fail")
	}
	tr.Seed("a", t0)
	if err := tr.Reschedule("a", 5, t0.AddDate(0, 0, 5)); err != nil {
		t.Fatal(err)
	}
	am := tr.Get("a")
	if am.IntervalDays != 5 || !am.NextReviewAt.Equal(t0.AddDate(0, 0, 5)) {
		t.Errorf("interval=%d next=%v", am.IntervalDays, am.NextReviewAt)
	}
}

func TestTracker_GetReturnsCopy(t *testing.T) {
	tr := NewTracker(chain(t))
	tr.BeginAttempt("a", t0)
	tr.RecordAnswer("a", "q1", false, Progress{})
	am := tr.Get("a")
	am.Misses["q1"] = 99
	am.SeenQuestionIDs[0] = "zzz"
	again := tr.Get("a")
	if again.Misses["q1"] != 1 || again.SeenQuestionIDs[0] != "q1" {
		t.Errorf("tracker mutated through copy: %+v", again)
	}
}

func TestTracker_CloneIsIndependent(t *testing.T) {
	tr := NewTracker(chain(t))
	tr.Seed("a", t0)
	c := tr.Clone()
	c.BeginAttempt("b", t0)
	if tr.State("b") != StateNotStarted {
		t.Errorf("original changed: b = %s", tr.State("b"))
	}
}
