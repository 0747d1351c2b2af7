package spacedrep

import (
	"fmt"
	"math"
	"time"

	"github.com/abhisek/masterypath/internal/mastery"
)

// PassAccuracy is the review accuracy that extends an interval.
const PassAccuracy = 0.8

// Factor bounds for a passed review.
const (
	MinFactor = 1.5
	MaxFactor = 2.5
)

// Result is the outcome of one atom in a completed review.
type Result struct {
	AtomID       string    `json:"atom_id"`
	Correct      int       `json:"correct"`
	Total        int       `json:"total"`
	Passed       bool      `json:"passed"`
	IntervalDays int       `json:"interval_days"`
	NextReviewAt time.Time `json:"next_review_at"`
	Probe        bool      `json:"probe"`
}

// Factor maps a passing accuracy in [0.8, 1] linearly onto [1.5, 2.5].
func Factor(acc float64) float64 {
	f := MinFactor + (acc-PassAccuracy)/(1-PassAccuracy)
	return math.Min(math.Max(f, MinFactor), MaxFactor)
}

// ApplyReviewOutcome updates every atom in rs that received answers.
// Passing atoms get their interval multiplied by Factor and a fresh
// LastDemonstratedAt. Failing atoms reset to the Low interval and get a
// pending probe. Missed questions feed future question choice.
func ApplyReviewOutcome(tr *mastery.Tracker, rs *ReviewSession, now time.Time) ([]Result, error) {
	for _, it := range rs.Items {
		if it.Answered && !it.Correct {
			tr.RecordMiss(it.AtomID, it.Question.ID)
		}
	}

	var results []Result
	for _, id := range rs.AtomIDs {
		t := rs.Tallies[id]
		if t.Total == 0 {
			continue
		}
		acc := float64(t.Correct) / float64(t.Total)
		res := Result{AtomID: id, Correct: t.Correct, Total: t.Total}

		if t.Correct*10 >= t.Total*8 {
			base := tr.Get(id).IntervalDays
			if base <= 0 {
				base = LowIntervalDays
			}
			res.Passed = true
			res.IntervalDays = int(math.Round(float64(base) * Factor(acc)))
			if err := tr.Demonstrate(id, now); err != nil {
				return results, fmt.Errorf("apply review: %w", err)
			}
			tr.SetProbe(id, false)
		} else {
			res.IntervalDays = LowIntervalDays
			res.Probe = true
			tr.SetProbe(id, true)
		}

		next, err := schedule(tr, id, res.IntervalDays, now)
		if err != nil {
			return results, fmt.Errorf("apply review: %w", err)
		}
		res.NextReviewAt = next
		results = append(results, res)
	}
	return results, nil
}
