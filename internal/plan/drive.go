package plan

import (
	"context"
	"fmt"

	"github.com/abhisek/masterypath/internal/pp100"
)

// Drive runs the loop unattended: lessons complete immediately and r
// answers every question. It stops at PhaseDone, after maxQuestions answers
// (0 means no limit), or on the first error. It returns the number of
// questions answered.
func (o *Orchestrator) Drive(ctx context.Context, r pp100.Responder, maxQuestions int) (int, error) {
	answered := 0
	for {
		if err := ctx.Err(); err != nil {
			return answered, err
		}
		if maxQuestions > 0 && answered >= maxQuestions {
			return answered, nil
		}

		step := o.Advance()
		switch step.Phase {
		case PhaseDone:
			return answered, nil
		case PhaseTeach:
			if _, err := o.CompleteTeach(); err != nil {
				return answered, err
			}
		case PhaseAssess:
			q, err := o.NextQuestion()
			if err != nil {
				return answered, err
			}
			correct, err := r.Respond(ctx, q)
			if err != nil {
				return answered, fmt.Errorf("respond to %q: %w", q.ID, err)
			}
			if _, err := o.SubmitAnswer(q.ID, correct); err != nil {
				return answered, err
			}
			answered++
		default:
			return answered, fmt.Errorf("drive in phase %q: %w", step.Phase, ErrWrongPhase)
		}
	}
}
