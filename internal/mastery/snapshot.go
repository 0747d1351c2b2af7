package mastery

import (
	"slices"
	"time"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/store"
)

// NewTrackerFromSnapshot rebuilds a tracker from persisted data. A nil
// snapshot yields an empty tracker.
func NewTrackerFromSnapshot(atoms AtomLookup, data *store.MasterySnapshotData) *Tracker {
	t := NewTracker(atoms)
	if data == nil {
		return t
	}
	for id, d := range data.Atoms {
		if d == nil {
			continue
		}
		am := &AtomMastery{
			AtomID:               id,
			State:                State(d.State),
			Source:               Source(d.Source),
			LastDemonstratedAt:   parseTime(d.LastDemonstratedAt),
			ConsecutiveCorrect:   d.ConsecutiveCorrect,
			ConsecutiveIncorrect: d.ConsecutiveIncorrect,
			AttemptNumber:        d.AttemptNumber,
			SeenQuestionIDs:      slices.Clone(d.SeenQuestionIDs),
			IntervalDays:         d.IntervalDays,
			NextReviewAt:         parseTime(d.NextReviewAt),
			ProbePending:         d.ProbePending,
			Blocked:              d.Blocked,
		}
		if diff, err := graph.ParseDifficulty(d.CurrentDifficulty); err == nil {
			am.CurrentDifficulty = diff
		}
		if am.State == "" {
			am.State = StateNotStarted
		}
		for _, ad := range d.Attempts {
			a := Attempt{
				Number:            ad.Number,
				QuestionIDs:       slices.Clone(ad.QuestionIDs),
				Outcome:           AttemptOutcome(ad.Outcome),
				QuestionsAnswered: ad.QuestionsAnswered,
				Correct:           ad.Correct,
				EndedAt:           parseTime(ad.EndedAt),
			}
			if st := parseTime(&ad.StartedAt); st != nil {
				a.StartedAt = *st
			}
			am.Attempts = append(am.Attempts, a)
		}
		if len(d.Misses) > 0 {
			am.Misses = make(map[string]int, len(d.Misses))
			for k, v := range d.Misses {
				am.Misses[k] = v
			}
		}
		t.records[id] = am
	}
	return t
}

// SnapshotData exports the tracker for persistence.
func (t *Tracker) SnapshotData() *store.MasterySnapshotData {
	data := &store.MasterySnapshotData{Atoms: make(map[string]*store.AtomMasteryData, len(t.records))}
	for id, am := range t.records {
		d := &store.AtomMasteryData{
			AtomID:               id,
			State:                string(am.State),
			Source:               string(am.Source),
			LastDemonstratedAt:   formatTime(am.LastDemonstratedAt),
			CurrentDifficulty:    am.CurrentDifficulty.String(),
			ConsecutiveCorrect:   am.ConsecutiveCorrect,
			ConsecutiveIncorrect: am.ConsecutiveIncorrect,
			AttemptNumber:        am.AttemptNumber,
			SeenQuestionIDs:      slices.Clone(am.SeenQuestionIDs),
			IntervalDays:         am.IntervalDays,
			NextReviewAt:         formatTime(am.NextReviewAt),
			ProbePending:         am.ProbePending,
			Blocked:              am.Blocked,
		}
		for _, a := range am.Attempts {
			d.Attempts = append(d.Attempts, store.AttemptData{
				Number:            a.Number,
				QuestionIDs:       slices.Clone(a.QuestionIDs),
				Outcome:           string(a.Outcome),
				QuestionsAnswered: a.QuestionsAnswered,
				Correct:           a.Correct,
				StartedAt:         a.StartedAt.UTC().Format(time.RFC3339),
				EndedAt:           formatTime(a.EndedAt),
			})
		}
		if len(am.Misses) > 0 {
			d.Misses = make(map[string]int, len(am.Misses))
			for k, v := range am.Misses {
				d.Misses[k] = v
			}
		}
		data.Atoms[id] = d
	}
	return data
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func parseTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}
