// Package spacedrep schedules reviews of mastered atoms and builds
// interleaved review sessions.
package spacedrep

import (
	"fmt"
	"time"

	"github.com/abhisek/masterypath/internal/mastery"
)

// Sturdiness classifies how convincingly an atom was mastered.
type Sturdiness string

const (
	SturdinessHigh   Sturdiness = "high"
	SturdinessMedium Sturdiness = "medium"
	SturdinessLow    Sturdiness = "low"
)

// Initial intervals in days per sturdiness.
const (
	HighIntervalDays   = 7
	MediumIntervalDays = 5
	LowIntervalDays    = 3
)

// Band edges.
const (
	highMaxQuestions   = 13
	mediumMaxQuestions = 17
	highMinAccuracy    = 0.85 // exclusive
	mediumMinAccuracy  = 0.70 // inclusive
)

// IntervalDays returns the initial review interval for s.
func (s Sturdiness) IntervalDays() int {
	switch s {
	case SturdinessHigh:
		return HighIntervalDays
	case SturdinessMedium:
		return MediumIntervalDays
	default:
		return LowIntervalDays
	}
}

// Metrics describe the PP100 attempt that reached mastery.
type Metrics struct {
	QuestionsAnswered int
	Accuracy          float64
}

// MetricsFromCounts builds Metrics from answer counts.
func MetricsFromCounts(answered, correct int) Metrics {
	m := Metrics{QuestionsAnswered: answered}
	if answered > 0 {
		m.Accuracy = float64(correct) / float64(answered)
	}
	return m
}

func countBand(n int) Sturdiness {
	switch {
	case n <= highMaxQuestions:
		return SturdinessHigh
	case n <= mediumMaxQuestions:
		return SturdinessMedium
	default:
		return SturdinessLow
	}
}

func accuracyBand(acc float64) Sturdiness {
	switch {
	case acc > highMinAccuracy:
		return SturdinessHigh
	case acc >= mediumMinAccuracy:
		return SturdinessMedium
	default:
		return SturdinessLow
	}
}

// Classify returns the lower of the question-count band and the accuracy band.
func Classify(m Metrics) Sturdiness {
	c, a := countBand(m.QuestionsAnswered), accuracyBand(m.Accuracy)
	if c.IntervalDays() < a.IntervalDays() {
		return c
	}
	return a
}

// InitialInterval returns the first review interval in days for m.
func InitialInterval(m Metrics) int {
	return Classify(m).IntervalDays()
}

// ScheduleReview sets the first review of a freshly mastered atom and
// returns its due time.
func ScheduleReview(tr *mastery.Tracker, atomID string, m Metrics, now time.Time) (time.Time, error) {
	return schedule(tr, atomID, InitialInterval(m), now)
}

// ScheduleSeed schedules an atom mastered by diagnostic placement at the Low
// interval, since no PP100 evidence exists for it.
func ScheduleSeed(tr *mastery.Tracker, atomID string, now time.Time) (time.Time, error) {
	return schedule(tr, atomID, LowIntervalDays, now)
}

func schedule(tr *mastery.Tracker, atomID string, days int, now time.Time) (time.Time, error) {
	next := now.AddDate(0, 0, days)
	if err := tr.Reschedule(atomID, days, next); err != nil {
		return time.Time{}, fmt.Errorf("schedule review: %w", err)
	}
	return next, nil
}

// IsDue reports whether am has a review at or before now.
func IsDue(am mastery.AtomMastery, now time.Time) bool {
	return am.State == mastery.StateMastered && am.NextReviewAt != nil && !now.Before(*am.NextReviewAt)
}

// OverdueDays returns how many days past due am is. Returns 0 if not yet due.
func OverdueDays(am mastery.AtomMastery, now time.Time) float64 {
	if !IsDue(am, now) {
		return 0
	}
	return now.Sub(*am.NextReviewAt).Hours() / 24.0
}
