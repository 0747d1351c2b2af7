package tutor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/lessons"
	"github.com/abhisek/masterypath/internal/mastery"
	"github.com/abhisek/masterypath/internal/metrics"
	"github.com/abhisek/masterypath/internal/plan"
	"github.com/abhisek/masterypath/internal/pp100"
	"github.com/abhisek/masterypath/internal/spacedrep"
	"github.com/abhisek/masterypath/internal/store"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

type fakeLessons struct {
	mu         sync.Mutex
	calls      []string
	prefetched []string
}

func (f *fakeLessons) Lesson(_ context.Context, atom graph.Atom) (*lessons.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, atom.ID)
	return &lessons.Lesson{AtomID: atom.ID, Title: "About " + atom.ID, Source: lessons.SourceBlob}, nil
}

func (f *fakeLessons) Prefetch(_ context.Context, atom graph.Atom) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetched = append(f.prefetched, atom.ID)
}

// chain is a <- b with four questions per difficulty on each atom.
func chain(t *testing.T) *graph.Graph {
	t.Helper()
	atoms := []graph.Atom{{ID: "a"}, {ID: "b", Prerequisites: []string{"a"}}}
	var qs []graph.Question
	for _, a := range atoms {
		for _, d := range graph.AllDifficulties() {
			for i := 1; i <= 4; i++ {
				qs = append(qs, graph.Question{ID: fmt.Sprintf("%s-%s-%d", a.ID, d, i), AtomID: a.ID, Difficulty: d})
			}
		}
	}
	g, err := graph.New("chain", atoms, qs)
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	return g
}

type fixture struct {
	svc     *Service
	store   *store.Store
	clock   *fakeClock
	lessons *fakeLessons
	metrics *metrics.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "tutor.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	f := &fixture{store: st, clock: &fakeClock{cur: t0}, lessons: &fakeLessons{}, metrics: metrics.New()}
	f.svc, err = New(Deps{
		Graph:     chain(t),
		States:    st.StateRepo(),
		Snapshots: st.SnapshotRepo(),
		Events:    st.EventRepo(),
		Lessons:   f.lessons,
		Metrics:   f.metrics,
		Review:    spacedrep.DefaultOptions(),
		Clock:     f.clock.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

// startAttempt takes a new student through the lesson for the first atom.
func (f *fixture) startAttempt(t *testing.T, student string) plan.Step {
	t.Helper()
	ctx := context.Background()
	turn, err := f.svc.GetNextQuestion(ctx, student)
	if err != nil {
		t.Fatalf("GetNextQuestion: %v", err)
	}
	if turn.Step.Phase != plan.PhaseTeach || turn.Question != nil {
		t.Fatalf("turn = %+v, want a teach step", turn)
	}
	step, err := f.svc.CompleteLesson(ctx, student)
	if err != nil {
		t.Fatalf("CompleteLesson: %v", err)
	}
	if step.Phase != plan.PhaseAssess {
		t.Fatalf("step = %+v, want assess", step)
	}
	return step
}

// answerUntilOutcome answers every question with correct until the
// attempt ends.
func (f *fixture) answerUntilOutcome(t *testing.T, student string, correct bool) plan.Feedback {
	t.Helper()
	ctx := context.Background()
	for range pp100.MaxQuestions {
		turn, err := f.svc.GetNextQuestion(ctx, student)
		if err != nil {
			t.Fatalf("GetNextQuestion: %v", err)
		}
		if turn.Question == nil {
			t.Fatalf("no question in step %+v", turn.Step)
		}
		fb, err := f.svc.SubmitAnswer(ctx, student, turn.Question.ID, correct)
		if err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
		if fb.Outcome != pp100.OutcomeNone {
			return fb
		}
	}
	t.Fatal("attempt did not end within the question cap")
	return plan.Feedback{}
}

func eventKinds(t *testing.T, st *store.Store, student string) map[string]int {
	t.Helper()
	evs, err := st.EventRepo().List(context.Background(), student, store.QueryOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	out := map[string]int{}
	for _, e := range evs {
		out[e.Kind]++
	}
	return out
}

func TestGetNextQuestion_TeachThenAssess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	step := f.startAttempt(t, "s1")
	if step.AtomID != "a" || step.Attempt != 1 {
		t.Fatalf("step = %+v", step)
	}
	if len(f.lessons.prefetched) != 1 || f.lessons.prefetched[0] != "a" {
		t.Errorf("prefetched = %v, want [a]", f.lessons.prefetched)
	}

	first, err := f.svc.GetNextQuestion(ctx, "s1")
	if err != nil {
		t.Fatalf("GetNextQuestion: %v", err)
	}
	again, err := f.svc.GetNextQuestion(ctx, "s1")
	if err != nil {
		t.Fatalf("GetNextQuestion: %v", err)
	}
	if first.Question == nil || again.Question == nil || first.Question.ID != again.Question.ID {
		t.Fatalf("pending question not stable: %+v vs %+v", first.Question, again.Question)
	}
	if first.Question.Difficulty != graph.Easy {
		t.Errorf("first difficulty = %v, want easy", first.Question.Difficulty)
	}
}

func TestGetLesson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lesson, err := f.svc.GetLesson(ctx, "s1")
	if err != nil {
		t.Fatalf("GetLesson: %v", err)
	}
	if lesson.AtomID != "a" {
		t.Errorf("lesson atom = %q, want a", lesson.AtomID)
	}

	if _, err := f.svc.CompleteLesson(ctx, "s1"); err != nil {
		t.Fatalf("CompleteLesson: %v", err)
	}
	if _, err := f.svc.GetLesson(ctx, "s1"); !errors.Is(err, plan.ErrWrongPhase) {
		t.Fatalf("GetLesson while assessing: got %v, want ErrWrongPhase", err)
	}
	if _, err := f.svc.CompleteLesson(ctx, "s1"); !errors.Is(err, plan.ErrWrongPhase) {
		t.Fatalf("CompleteLesson twice: got %v, want ErrWrongPhase", err)
	}
}

func TestGetLesson_NoProvider(t *testing.T) {
	f := newFixture(t)
	f.svc.lessons = nil
	if _, err := f.svc.GetLesson(context.Background(), "s1"); !errors.Is(err, lessons.ErrNoLesson) {
		t.Fatalf("got %v, want ErrNoLesson", err)
	}
}

func TestSubmitAnswer_MasteryPersistsAndAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.startAttempt(t, "s1")

	fb := f.answerUntilOutcome(t, "s1", true)
	if fb.Outcome != pp100.OutcomeMastered || fb.Answered != 6 {
		t.Fatalf("feedback = %+v, want mastered after 6", fb)
	}
	if fb.Next.Phase != plan.PhaseTeach || fb.Next.AtomID != "b" {
		t.Errorf("next = %+v, want teach b", fb.Next)
	}

	st, err := f.store.StateRepo().Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tr := mastery.NewTrackerFromSnapshot(f.svc.Graph(), st.Data.Mastery)
	am := tr.Get("a")
	if am.State != mastery.StateMastered || am.IntervalDays != spacedrep.HighIntervalDays {
		t.Errorf("a = %+v, want mastered at the high interval", am)
	}

	kinds := eventKinds(t, f.store, "s1")
	if kinds[store.KindAnswer] != 6 || kinds[store.KindMastery] != 2 {
		t.Errorf("events = %v, want 6 answers and 2 transitions", kinds)
	}
	snap, err := f.store.SnapshotRepo().Latest(ctx, "s1")
	if err != nil || snap == nil {
		t.Fatalf("Latest snapshot = %v, %v", snap, err)
	}

	p, err := f.svc.GetPlan(ctx, "s1")
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if len(p.Items) != 1 || p.Items[0].AtomID != "b" || p.Items[0].Action != plan.ActionTeach {
		t.Errorf("plan = %+v, want [teach b]", p.Items)
	}
}

func TestSubmitAnswer_FailureDiagnosesAndRetries(t *testing.T) {
	f := newFixture(t)
	f.startAttempt(t, "s1")

	fb := f.answerUntilOutcome(t, "s1", false)
	if fb.Outcome != pp100.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", fb.Outcome)
	}
	if len(fb.Gaps) != 0 {
		t.Errorf("gaps of a root atom = %v, want none", fb.Gaps)
	}
	if fb.Next.Phase != plan.PhaseTeach || fb.Next.AtomID != "a" || fb.Next.Attempt != 2 {
		t.Errorf("next = %+v, want teach a for attempt 2", fb.Next)
	}
	if kinds := eventKinds(t, f.store, "s1"); kinds[store.KindDiagnosis] != 1 {
		t.Errorf("events = %v, want one diagnosis", kinds)
	}
}

func TestSubmitAnswer_WrongQuestion(t *testing.T) {
	f := newFixture(t)
	f.startAttempt(t, "s1")
	if _, err := f.svc.GetNextQuestion(context.Background(), "s1"); err != nil {
		t.Fatalf("GetNextQuestion: %v", err)
	}
	_, err := f.svc.SubmitAnswer(context.Background(), "s1", "b-hard-1", true)
	if !errors.Is(err, pp100.ErrNotPending) {
		t.Fatalf("got %v, want ErrNotPending", err)
	}
	if kinds := eventKinds(t, f.store, "s1"); kinds[store.KindAnswer] != 0 {
		t.Errorf("rejected answer was logged: %v", kinds)
	}
}

func TestSeedDiagnostic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seeded, err := f.svc.SeedDiagnostic(ctx, "s1", []string{"b", "a"})
	if err != nil {
		t.Fatalf("SeedDiagnostic: %v", err)
	}
	if fmt.Sprint(seeded) != "[a b]" {
		t.Errorf("seeded = %v, want [a b] in course order", seeded)
	}
	again, err := f.svc.SeedDiagnostic(ctx, "s1", []string{"a"})
	if err != nil || len(again) != 0 {
		t.Errorf("reseed = %v, %v, want no-op", again, err)
	}

	turn, err := f.svc.GetNextQuestion(ctx, "s1")
	if err != nil {
		t.Fatalf("GetNextQuestion: %v", err)
	}
	if turn.Step.Phase != plan.PhaseDone {
		t.Errorf("step = %+v, want done", turn.Step)
	}

	if _, err := f.svc.SeedDiagnostic(ctx, "s2", []string{"a", "zz"}); !errors.Is(err, graph.ErrAtomNotFound) {
		t.Fatalf("unknown atom: got %v", err)
	}
	if _, err := f.store.StateRepo().Load(ctx, "s2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("failed seed persisted state: %v", err)
	}
}

func TestSeedDiagnostic_RejectsAssessedAtom(t *testing.T) {
	f := newFixture(t)
	f.startAttempt(t, "s1")
	_, err := f.svc.SeedDiagnostic(context.Background(), "s1", []string{"a"})
	var ite *mastery.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("got %v, want InvalidTransitionError", err)
	}
}

func TestReviewLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SeedDiagnostic(ctx, "s1", []string{"a", "b"}); err != nil {
		t.Fatalf("SeedDiagnostic: %v", err)
	}
	if _, err := f.svc.GetReviewSession(ctx, "s1"); !errors.Is(err, spacedrep.ErrNothingDue) {
		t.Fatalf("before due: got %v, want ErrNothingDue", err)
	}
	if _, err := f.svc.CompleteReview(ctx, "s1"); !errors.Is(err, ErrNoActiveReview) {
		t.Fatalf("complete without session: got %v", err)
	}

	f.clock.Advance(4 * 24 * time.Hour)
	rs, err := f.svc.GetReviewSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetReviewSession: %v", err)
	}
	if len(rs.AtomIDs) != 2 || len(rs.Items) != 4 {
		t.Fatalf("session = %+v", rs)
	}
	same, err := f.svc.GetReviewSession(ctx, "s1")
	if err != nil || same.ID != rs.ID {
		t.Fatalf("open session not resumed: %v, %v", same, err)
	}

	for {
		cur, err := f.svc.GetReviewSession(ctx, "s1")
		if err != nil {
			t.Fatalf("GetReviewSession: %v", err)
		}
		item, ok := cur.Next()
		if !ok {
			break
		}
		if _, err := f.svc.SubmitReviewAnswer(ctx, "s1", item.Question.ID, true); err != nil {
			t.Fatalf("SubmitReviewAnswer: %v", err)
		}
	}

	results, err := f.svc.CompleteReview(ctx, "s1")
	if err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	for _, r := range results {
		if !r.Passed || r.IntervalDays != 8 {
			t.Errorf("result = %+v, want passed at 8 days", r)
		}
	}
	kinds := eventKinds(t, f.store, "s1")
	if kinds[store.KindReview] != 2 || kinds[store.KindAnswer] != 4 {
		t.Errorf("events = %v", kinds)
	}
	if _, err := f.svc.SubmitReviewAnswer(ctx, "s1", "a-easy-1", true); !errors.Is(err, ErrNoActiveReview) {
		t.Fatalf("answer after completion: got %v", err)
	}
}

// answerOpenReview answers every open item, correctly unless the item's
// atom is listed in wrong.
func answerOpenReview(t *testing.T, f *fixture, student string, wrong ...string) {
	t.Helper()
	ctx := context.Background()
	for {
		cur, err := f.svc.GetReviewSession(ctx, student)
		if err != nil {
			t.Fatalf("GetReviewSession: %v", err)
		}
		item, ok := cur.Next()
		if !ok {
			return
		}
		correct := !slices.Contains(wrong, item.AtomID)
		if _, err := f.svc.SubmitReviewAnswer(ctx, student, item.Question.ID, correct); err != nil {
			t.Fatalf("SubmitReviewAnswer: %v", err)
		}
	}
}

func TestFailedReviewServesProbeFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.SeedDiagnostic(ctx, "s1", []string{"a", "b"}); err != nil {
		t.Fatalf("SeedDiagnostic: %v", err)
	}
	f.clock.Advance(4 * 24 * time.Hour)

	answerOpenReview(t, f, "s1", "a")
	results, err := f.svc.CompleteReview(ctx, "s1")
	if err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}
	byAtom := map[string]spacedrep.Result{}
	for _, r := range results {
		byAtom[r.AtomID] = r
	}
	if r := byAtom["a"]; r.Passed || !r.Probe || r.IntervalDays != spacedrep.LowIntervalDays {
		t.Fatalf("a = %+v, want failed with probe at the low interval", r)
	}
	if r := byAtom["b"]; !r.Passed || r.Probe {
		t.Fatalf("b = %+v, want passed", r)
	}

	// The probe is served at once, before a is due again.
	probe, err := f.svc.GetReviewSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetReviewSession: %v", err)
	}
	if !probe.Probe || len(probe.AtomIDs) != 1 || probe.AtomIDs[0] != "a" {
		t.Fatalf("session = probe %v atoms %v, want a probe of [a]", probe.Probe, probe.AtomIDs)
	}
	if len(probe.Items) != spacedrep.DefaultOptions().ProbeQuestions {
		t.Errorf("probe items = %d, want %d", len(probe.Items), spacedrep.DefaultOptions().ProbeQuestions)
	}
	for _, it := range probe.Items {
		if it.AtomID != "a" {
			t.Errorf("probe item %s belongs to %s", it.Question.ID, it.AtomID)
		}
	}

	answerOpenReview(t, f, "s1")
	results, err = f.svc.CompleteReview(ctx, "s1")
	if err != nil {
		t.Fatalf("CompleteReview probe: %v", err)
	}
	if len(results) != 1 || !results[0].Passed {
		t.Fatalf("probe results = %+v, want a single pass", results)
	}
	if _, err := f.svc.GetReviewSession(ctx, "s1"); !errors.Is(err, spacedrep.ErrNothingDue) {
		t.Fatalf("after probe: got %v, want ErrNothingDue", err)
	}

	f.clock.Advance(9 * 24 * time.Hour)
	general, err := f.svc.GetReviewSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetReviewSession: %v", err)
	}
	if general.Probe || len(general.AtomIDs) != 2 {
		t.Fatalf("session = probe %v atoms %v, want a general review of both atoms", general.Probe, general.AtomIDs)
	}
}

func TestSubmitReviewAnswer_UnknownQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.SeedDiagnostic(ctx, "s1", []string{"a", "b"}); err != nil {
		t.Fatalf("SeedDiagnostic: %v", err)
	}
	f.clock.Advance(4 * 24 * time.Hour)
	if _, err := f.svc.GetReviewSession(ctx, "s1"); err != nil {
		t.Fatalf("GetReviewSession: %v", err)
	}
	if _, err := f.svc.SubmitReviewAnswer(ctx, "s1", "nope", true); !errors.Is(err, spacedrep.ErrNotInSession) {
		t.Fatalf("got %v, want ErrNotInSession", err)
	}
}

func TestGetPlan_DoesNotPersist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.GetPlan(ctx, "new")
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if len(p.Items) != 1 || p.Items[0].AtomID != "a" {
		t.Errorf("plan = %+v, want [teach a]", p.Items)
	}
	ids, err := f.store.StateRepo().Students(ctx)
	if err != nil || len(ids) != 0 {
		t.Errorf("students = %v, %v, want none", ids, err)
	}
}

func TestEmptyStudentID(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.GetNextQuestion(context.Background(), ""); !errors.Is(err, ErrStudentRequired) {
		t.Fatalf("got %v", err)
	}
}

func TestSweepAndPrune(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"s1", "s2"} {
		if _, err := f.svc.SeedDiagnostic(ctx, id, []string{"a"}); err != nil {
			t.Fatalf("SeedDiagnostic: %v", err)
		}
	}
	f.startAttempt(t, "s3")

	rep, err := f.svc.Sweep(ctx, 2)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if rep.Students != 3 || rep.Due != 0 {
		t.Errorf("report = %+v", rep)
	}

	f.clock.Advance(4 * 24 * time.Hour)
	rep, err = f.svc.Sweep(ctx, 2)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if rep.Due != 2 {
		t.Errorf("due = %d, want 2", rep.Due)
	}

	if _, err := f.svc.SeedDiagnostic(ctx, "s1", []string{"b"}); err != nil {
		t.Fatalf("SeedDiagnostic: %v", err)
	}
	pr, err := f.svc.PruneSnapshots(ctx, 2, 1)
	if err != nil {
		t.Fatalf("PruneSnapshots: %v", err)
	}
	if pr.Pruned != 1 {
		t.Errorf("pruned = %d, want 1", pr.Pruned)
	}
}

func TestConcurrentStudents(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			student := fmt.Sprintf("c%d", i)
			if _, err := f.svc.GetNextQuestion(context.Background(), student); err != nil {
				errs <- err
				return
			}
			if _, err := f.svc.CompleteLesson(context.Background(), student); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	ids, err := f.store.StateRepo().Students(context.Background())
	if err != nil || len(ids) != 8 {
		t.Fatalf("students = %v, %v", ids, err)
	}
}
