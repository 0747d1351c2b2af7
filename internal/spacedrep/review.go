package spacedrep

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/mastery"
)

// ErrNothingDue is returned when no review session can be built.
var ErrNothingDue = errors.New("no reviews due")

// ErrNotInSession is returned when an answer does not match an open item.
var ErrNotInSession = errors.New("question is not open in this review")

// Options controls review session construction.
type Options struct {
	MinAtoms         int
	MaxAtoms         int
	QuestionsPerAtom int
	ProbeQuestions   int
}

// DefaultOptions returns the standard review sizing.
func DefaultOptions() Options {
	return Options{MinAtoms: 2, MaxAtoms: 5, QuestionsPerAtom: 2, ProbeQuestions: 3}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinAtoms <= 0 {
		o.MinAtoms = d.MinAtoms
	}
	if o.MaxAtoms < o.MinAtoms {
		o.MaxAtoms = max(d.MaxAtoms, o.MinAtoms)
	}
	if o.QuestionsPerAtom <= 0 {
		o.QuestionsPerAtom = d.QuestionsPerAtom
	}
	if o.ProbeQuestions <= 0 {
		o.ProbeQuestions = d.ProbeQuestions
	}
	return o
}

// DueAtom is a mastered atom whose review date has passed.
type DueAtom struct {
	AtomID       string    `json:"atom_id"`
	NextReviewAt time.Time `json:"next_review_at"`
	OverdueDays  float64   `json:"overdue_days"`
}

// Due returns mastered atoms due at now, most overdue first, then by id.
func Due(tr *mastery.Tracker, now time.Time) []DueAtom {
	var out []DueAtom
	for _, am := range tr.All() {
		if !IsDue(am, now) {
			continue
		}
		out = append(out, DueAtom{
			AtomID:       am.AtomID,
			NextReviewAt: *am.NextReviewAt,
			OverdueDays:  OverdueDays(am, now),
		})
	}
	slices.SortFunc(out, func(a, b DueAtom) int {
		if c := a.NextReviewAt.Compare(b.NextReviewAt); c != 0 {
			return c
		}
		return cmp.Compare(a.AtomID, b.AtomID)
	})
	return out
}

// Probes returns mastered atoms with a pending targeted probe, sorted by id.
func Probes(tr *mastery.Tracker) []string {
	var out []string
	for _, am := range tr.All() {
		if am.State == mastery.StateMastered && am.ProbePending {
			out = append(out, am.AtomID)
		}
	}
	return out
}

// Item is one question slot in a review session.
type Item struct {
	AtomID   string         `json:"atom_id"`
	Question graph.Question `json:"question"`
	Answered bool           `json:"answered"`
	Correct  bool           `json:"correct"`
}

// Tally counts one atom's answers within a session.
type Tally struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// ReviewSession is an interleaved set of review questions.
type ReviewSession struct {
	ID        string           `json:"id"`
	Probe     bool             `json:"probe"`
	AtomIDs   []string         `json:"atom_ids"`
	Items     []Item           `json:"items"`
	Tallies   map[string]Tally `json:"tallies"`
	CreatedAt time.Time        `json:"created_at"`
}

// Next returns the first unanswered item.
func (rs *ReviewSession) Next() (Item, bool) {
	for _, it := range rs.Items {
		if !it.Answered {
			return it, true
		}
	}
	return Item{}, false
}

// Done reports whether every item is answered.
func (rs *ReviewSession) Done() bool {
	_, ok := rs.Next()
	return !ok
}

// Record tallies an answer to the first open item for questionID.
func (rs *ReviewSession) Record(questionID string, correct bool) error {
	for i := range rs.Items {
		it := &rs.Items[i]
		if it.Answered || it.Question.ID != questionID {
			continue
		}
		it.Answered = true
		it.Correct = correct
		if rs.Tallies == nil {
			rs.Tallies = make(map[string]Tally)
		}
		t := rs.Tallies[it.AtomID]
		t.Total++
		if correct {
			t.Correct++
		}
		rs.Tallies[it.AtomID] = t
		return nil
	}
	return fmt.Errorf("record %q: %w", questionID, ErrNotInSession)
}

// BuildReviewSession takes up to MaxAtoms of the most overdue atoms. A
// single due atom is padded with the mastered atom whose review is soonest.
// Fewer than MinAtoms reviewable atoms yields ErrNothingDue.
func BuildReviewSession(cat graph.Catalog, tr *mastery.Tracker, due []DueAtom, opts Options, now time.Time) (ReviewSession, error) {
	opts = opts.withDefaults()
	if len(due) == 0 {
		return ReviewSession{}, ErrNothingDue
	}

	ids := make([]string, 0, opts.MaxAtoms)
	for _, d := range due {
		if len(ids) == opts.MaxAtoms {
			break
		}
		ids = append(ids, d.AtomID)
	}
	if len(ids) < opts.MinAtoms {
		ids = pad(tr, ids, opts.MinAtoms)
	}

	perAtom := make([][]Item, 0, len(ids))
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		items, err := pickItems(cat, tr.Get(id), opts.QuestionsPerAtom)
		if err != nil {
			return ReviewSession{}, err
		}
		if len(items) == 0 {
			continue
		}
		perAtom = append(perAtom, items)
		kept = append(kept, id)
	}
	if len(kept) < opts.MinAtoms {
		return ReviewSession{}, ErrNothingDue
	}

	return ReviewSession{
		ID:        uuid.NewString(),
		AtomIDs:   kept,
		Items:     interleave(perAtom),
		Tallies:   make(map[string]Tally),
		CreatedAt: now,
	}, nil
}

// BuildProbe builds the single-atom targeted probe for atomID.
func BuildProbe(cat graph.Catalog, tr *mastery.Tracker, atomID string, opts Options, now time.Time) (ReviewSession, error) {
	opts = opts.withDefaults()
	am := tr.Get(atomID)
	if am.State != mastery.StateMastered || !am.ProbePending {
		return ReviewSession{}, fmt.Errorf("probe %q: %w", atomID, ErrNothingDue)
	}
	items, err := pickItems(cat, am, opts.ProbeQuestions)
	if err != nil {
		return ReviewSession{}, err
	}
	if len(items) == 0 {
		return ReviewSession{}, fmt.Errorf("probe %q has no questions: %w", atomID, ErrNothingDue)
	}
	return ReviewSession{
		ID:        uuid.NewString(),
		Probe:     true,
		AtomIDs:   []string{atomID},
		Items:     items,
		Tallies:   make(map[string]Tally),
		CreatedAt: now,
	}, nil
}

// pad fills ids up to n with other mastered atoms, soonest review first.
func pad(tr *mastery.Tracker, ids []string, n int) []string {
	var pool []mastery.AtomMastery
	for _, am := range tr.All() {
		if am.State == mastery.StateMastered && !slices.Contains(ids, am.AtomID) {
			pool = append(pool, am)
		}
	}
	slices.SortFunc(pool, func(a, b mastery.AtomMastery) int {
		switch {
		case a.NextReviewAt == nil && b.NextReviewAt != nil:
			return 1
		case a.NextReviewAt != nil && b.NextReviewAt == nil:
			return -1
		case a.NextReviewAt != nil && b.NextReviewAt != nil:
			if c := a.NextReviewAt.Compare(*b.NextReviewAt); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.AtomID, b.AtomID)
	})
	for _, am := range pool {
		if len(ids) >= n {
			break
		}
		ids = append(ids, am.AtomID)
	}
	return ids
}

// pickItems chooses n questions for an atom, favouring questions the student
// missed, then difficulties they missed most, then the least seen.
func pickItems(cat graph.Catalog, am mastery.AtomMastery, n int) ([]Item, error) {
	var all []graph.Question
	for _, d := range graph.AllDifficulties() {
		qs, err := cat.QuestionsByDifficulty(am.AtomID, d)
		if err != nil {
			return nil, fmt.Errorf("review pool for %q: %w", am.AtomID, err)
		}
		all = append(all, qs...)
	}

	seen := make(map[string]int)
	for _, a := range am.Attempts {
		for _, id := range a.QuestionIDs {
			seen[id]++
		}
	}
	diffMisses := make(map[graph.Difficulty]int)
	for _, q := range all {
		diffMisses[q.Difficulty] += am.Misses[q.ID]
	}

	slices.SortFunc(all, func(a, b graph.Question) int {
		if c := cmp.Compare(am.Misses[b.ID], am.Misses[a.ID]); c != 0 {
			return c
		}
		if c := cmp.Compare(diffMisses[b.Difficulty], diffMisses[a.Difficulty]); c != 0 {
			return c
		}
		if c := cmp.Compare(seen[a.ID], seen[b.ID]); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if len(all) > n {
		all = all[:n]
	}
	items := make([]Item, len(all))
	for i, q := range all {
		items[i] = Item{AtomID: am.AtomID, Question: q}
	}
	return items, nil
}

// interleave deals items round-robin across atoms.
func interleave(perAtom [][]Item) []Item {
	var out []Item
	for round := 0; ; round++ {
		added := false
		for _, items := range perAtom {
			if round < len(items) {
				out = append(out, items[round])
				added = true
			}
		}
		if !added {
			return out
		}
	}
}
