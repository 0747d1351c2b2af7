package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/mastery"
	"github.com/abhisek/masterypath/internal/plan"
	"github.com/abhisek/masterypath/internal/pp100"
	"github.com/abhisek/masterypath/internal/spacedrep"
	"github.com/abhisek/masterypath/internal/store"
	"github.com/abhisek/masterypath/internal/tutor"
)

const simStudent = "sim"

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted student through the course",
	Long: `Simulate a student who answers correctly with the given probability.

The run uses an in-memory database and a simulated clock that advances
--step per answer, so spaced reviews come due along the way. The event
trail is printed at the end. With --engine-only the orchestrator is driven
directly with no storage and only the final state is printed.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().Float64("accuracy", 0.85, "Probability of answering correctly")
	simulateCmd.Flags().Uint64("seed", 1, "Random seed")
	simulateCmd.Flags().Int("max-questions", 500, "Stop after this many answers")
	simulateCmd.Flags().Duration("step", 6*time.Hour, "Simulated time per answer")
	simulateCmd.Flags().Bool("engine-only", false, "Drive the orchestrator without storage or events")
}

// simClock is a manually advanced clock shared with the tutor service.
type simClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func scriptedStudent(accuracy float64, seed uint64) pp100.Responder {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return pp100.ResponderFunc(func(_ context.Context, _ graph.Question) (bool, error) {
		return rng.Float64() < accuracy, nil
	})
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	accuracy, _ := cmd.Flags().GetFloat64("accuracy")
	seed, _ := cmd.Flags().GetUint64("seed")
	maxQuestions, _ := cmd.Flags().GetInt("max-questions")
	step, _ := cmd.Flags().GetDuration("step")
	engineOnly, _ := cmd.Flags().GetBool("engine-only")

	if accuracy < 0 || accuracy > 1 {
		return fmt.Errorf("accuracy must be in [0, 1], got %v", accuracy)
	}

	g, err := loadGraph(ctx, cfg)
	if err != nil {
		return err
	}
	student := scriptedStudent(accuracy, seed)
	clock := &simClock{now: time.Now().UTC().Truncate(time.Hour)}

	if engineOnly {
		return simulateEngine(ctx, g, student, clock, maxQuestions)
	}

	st, err := store.Open(ctx, store.DriverSQLite, ":memory:")
	if err != nil {
		return fmt.Errorf("open in-memory store: %w", err)
	}
	defer st.Close()

	svc, err := tutor.New(tutor.Deps{
		Graph:     g,
		States:    st.StateRepo(),
		Snapshots: st.SnapshotRepo(),
		Events:    st.EventRepo(),
		Log:       log,
		Review:    cfg.Review.Options(),
		Clock:     clock.Now,
	})
	if err != nil {
		return err
	}

	answered, reviews, err := simulateTutor(ctx, svc, student, clock, step, maxQuestions)
	if err != nil {
		log.Warn("simulation stopped early", zap.Error(err))
	}

	events, qerr := st.EventRepo().List(ctx, simStudent, store.QueryOpts{})
	if qerr != nil {
		return fmt.Errorf("query events: %w", qerr)
	}
	printEvents(events)

	p, perr := svc.GetPlan(ctx, simStudent)
	if perr != nil {
		return perr
	}
	fmt.Printf("\n%d questions answered, %d reviews completed\n\n", answered, reviews)
	printPlan(p)
	return err
}

// simulateTutor plays the full loop through the tutor service. Reviews are
// taken as soon as the plan lists one.
func simulateTutor(ctx context.Context, svc *tutor.Service, student pp100.Responder, clock *simClock, step time.Duration, maxQuestions int) (answered, reviews int, err error) {
	for maxQuestions <= 0 || answered < maxQuestions {
		p, err := svc.GetPlan(ctx, simStudent)
		if err != nil {
			return answered, reviews, err
		}
		if hasReview(p) {
			done, err := simulateReview(ctx, svc, student)
			if err != nil {
				return answered, reviews, err
			}
			if done {
				reviews++
				continue
			}
		}

		turn, err := svc.GetNextQuestion(ctx, simStudent)
		if err != nil {
			return answered, reviews, err
		}
		switch turn.Step.Phase {
		case plan.PhaseDone:
			return answered, reviews, nil
		case plan.PhaseTeach:
			if _, err := svc.CompleteLesson(ctx, simStudent); err != nil {
				return answered, reviews, err
			}
		case plan.PhaseAssess:
			correct, err := student.Respond(ctx, *turn.Question)
			if err != nil {
				return answered, reviews, err
			}
			if _, err := svc.SubmitAnswer(ctx, simStudent, turn.Question.ID, correct); err != nil {
				return answered, reviews, err
			}
			answered++
			clock.Advance(step)
		}
	}
	return answered, reviews, nil
}

func hasReview(p plan.StudentPlan) bool {
	for _, it := range p.Items {
		if it.Action == plan.ActionReview {
			return true
		}
	}
	return false
}

// simulateReview answers every item of a review session and completes it.
// It reports false when no session could be built.
func simulateReview(ctx context.Context, svc *tutor.Service, student pp100.Responder) (bool, error) {
	rs, err := svc.GetReviewSession(ctx, simStudent)
	if errors.Is(err, spacedrep.ErrNothingDue) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for {
		it, ok := rs.Next()
		if !ok {
			break
		}
		correct, err := student.Respond(ctx, it.Question)
		if err != nil {
			return false, err
		}
		if rs, err = svc.SubmitReviewAnswer(ctx, simStudent, it.Question.ID, correct); err != nil {
			return false, err
		}
	}
	_, err = svc.CompleteReview(ctx, simStudent)
	return err == nil, err
}

func simulateEngine(ctx context.Context, g *graph.Graph, student pp100.Responder, clock *simClock, maxQuestions int) error {
	tr := mastery.NewTracker(g)
	tr.Init(g.IDs())
	o := plan.NewOrchestrator(g, tr, plan.Flow{},
		plan.WithLogger(log.With(zap.String("student", simStudent))),
		plan.WithClock(clock.Now))

	answered, err := o.Drive(ctx, student, maxQuestions)
	if err != nil {
		log.Warn("simulation stopped early", zap.Error(err))
	}

	fmt.Printf("%-24s  %-12s  %8s  %8s\n", "Atom", "State", "Attempts", "Interval")
	fmt.Println(strings.Repeat("─", 60))
	for _, am := range tr.All() {
		fmt.Printf("%-24s  %-12s  %8d  %8d\n", am.AtomID, am.State, len(am.Attempts), am.IntervalDays)
	}
	fmt.Printf("\n%d questions answered\n\n", answered)
	printPlan(o.Plan(clock.Now()))
	return err
}
