package tutor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/masterypath/internal/spacedrep"
)

// GetReviewSession returns the student's open review session, building one
// when none is open. Pending probes are served before regular reviews.
// spacedrep.ErrNothingDue means there is nothing to review.
func (s *Service) GetReviewSession(ctx context.Context, studentID string) (*spacedrep.ReviewSession, error) {
	var out *spacedrep.ReviewSession
	err := s.run(ctx, "GetReviewSession", studentID, readWrite, func(ctx context.Context, t *turn) error {
		if t.review != nil {
			out = t.review
			return nil
		}
		rs, err := s.buildReview(t, s.now())
		if err != nil {
			return err
		}
		t.review = &rs
		out = t.review
		s.log.Info("review session opened",
			zap.String("student", studentID),
			zap.String("session", rs.ID),
			zap.Bool("probe", rs.Probe),
			zap.Strings("atoms", rs.AtomIDs))
		return nil
	})
	return out, err
}

func (s *Service) buildReview(t *turn, now time.Time) (spacedrep.ReviewSession, error) {
	for _, id := range spacedrep.Probes(t.tracker) {
		rs, err := spacedrep.BuildProbe(s.graph, t.tracker, id, s.review, now)
		if errors.Is(err, spacedrep.ErrNothingDue) {
			s.log.Warn("probe skipped: no questions", zap.String("student", t.studentID), zap.String("atom", id))
			continue
		}
		return rs, err
	}
	return spacedrep.BuildReviewSession(s.graph, t.tracker, spacedrep.Due(t.tracker, now), s.review, now)
}

// SubmitReviewAnswer records an answer in the open review session and
// returns the updated session.
func (s *Service) SubmitReviewAnswer(ctx context.Context, studentID, questionID string, correct bool) (*spacedrep.ReviewSession, error) {
	var out *spacedrep.ReviewSession
	err := s.run(ctx, "SubmitReviewAnswer", studentID, readWrite, func(ctx context.Context, t *turn) error {
		rs := t.review
		if rs == nil {
			return ErrNoActiveReview
		}
		item, ok := openItem(rs, questionID)
		if err := rs.Record(questionID, correct); err != nil {
			return err
		}
		if ok {
			t.rec.reviewAnswer(rs, item, correct)
		}
		s.metrics.Answer("review", correct)
		out = rs
		return nil
	})
	return out, err
}

func openItem(rs *spacedrep.ReviewSession, questionID string) (spacedrep.Item, bool) {
	for _, it := range rs.Items {
		if !it.Answered && it.Question.ID == questionID {
			return it, true
		}
	}
	return spacedrep.Item{}, false
}

// CompleteReview applies the open session's outcome to every atom that
// received answers and closes the session. Unanswered atoms keep their
// schedule.
func (s *Service) CompleteReview(ctx context.Context, studentID string) ([]spacedrep.Result, error) {
	var results []spacedrep.Result
	err := s.run(ctx, "CompleteReview", studentID, readWrite, func(ctx context.Context, t *turn) error {
		rs := t.review
		if rs == nil {
			return ErrNoActiveReview
		}
		var err error
		results, err = spacedrep.ApplyReviewOutcome(t.tracker, rs, s.now())
		if err != nil {
			return err
		}
		passed := 0
		for _, res := range results {
			t.rec.reviewResult(rs.ID, res)
			s.metrics.Review(res.Passed)
			if res.Passed {
				passed++
			}
		}
		t.review = nil
		t.snapshot = true
		s.log.Info("review session completed",
			zap.String("student", studentID),
			zap.String("session", rs.ID),
			zap.Int("atoms", len(results)),
			zap.Int("passed", passed))
		return nil
	})
	return results, err
}
