// Package priority ranks unlocked atoms by how much assessable content
// teaching them unlocks.
package priority

import (
	"cmp"
	"math"
	"slices"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/mastery"
)

// Decay is the weight multiplier per level of separation.
const Decay = 0.5

// Ranked is one scored candidate.
type Ranked struct {
	AtomID string  `json:"atom_id"`
	Score  float64 `json:"score"`
}

// Candidates returns the atoms that may be taught next, in topological
// order: every prerequisite is mastered and the atom is either not_started
// or frozen-resolved. A frozen atom is resolved when it has attempts left,
// is not blocked and is not listed in held, the atoms whose diagnosed gaps
// are still open.
func Candidates(g *graph.Graph, tr *mastery.Tracker, held ...string) []string {
	var out []string
	for _, id := range g.IDs() {
		am := tr.Get(id)
		switch am.State {
		case mastery.StateNotStarted:
		case mastery.StateFrozen:
			if am.Blocked || am.AttemptsRemaining() == 0 || slices.Contains(held, id) {
				continue
			}
		default:
			continue
		}
		if tr.PrerequisitesMastered(id) {
			out = append(out, id)
		}
	}
	return out
}

// Score returns the direct question count of id plus the question count of
// every descendant weighted by Decay^depth, where depth is the shortest
// distance in prerequisite edges.
func Score(g *graph.Graph, id string) float64 {
	score := float64(g.DirectQuestionCount(id))
	for desc, depth := range g.Descendants(id) {
		score += math.Pow(Decay, float64(depth)) * float64(g.DirectQuestionCount(desc))
	}
	return score
}

// Rank scores candidates and sorts them by score descending. Ties go to the
// lowest atom id.
func Rank(g *graph.Graph, candidates []string) []Ranked {
	out := make([]Ranked, 0, len(candidates))
	for _, id := range candidates {
		out = append(out, Ranked{AtomID: id, Score: Score(g, id)})
	}
	slices.SortFunc(out, func(a, b Ranked) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.AtomID, b.AtomID)
	})
	return out
}

// Next returns the highest ranked candidate, or "" when nothing is teachable.
func Next(g *graph.Graph, tr *mastery.Tracker, held ...string) string {
	ranked := Rank(g, Candidates(g, tr, held...))
	if len(ranked) == 0 {
		return ""
	}
	return ranked[0].AtomID
}
