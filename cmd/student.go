package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/masterypath/internal/plan"
	"github.com/abhisek/masterypath/internal/spacedrep"
)

var planCmd = &cobra.Command{
	Use:   "plan <student>",
	Short: "Show a student's current plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		p, err := a.tutor.GetPlan(ctx, args[0])
		if err != nil {
			return err
		}
		printPlan(p)
		return nil
	},
}

func printPlan(p plan.StudentPlan) {
	if len(p.Items) == 0 {
		fmt.Println("Nothing to do.")
	} else {
		fmt.Printf("%-3s  %-10s  %-24s  %8s\n", "#", "Action", "Atom", "Priority")
		fmt.Println(strings.Repeat("─", 52))
		for i, it := range p.Items {
			action := string(it.Action)
			if it.Probe {
				action += "*"
			}
			fmt.Printf("%-3d  %-10s  %-24s  %8.2f\n", i+1, action, it.AtomID, it.PriorityScore)
		}
	}
	if len(p.Blocked) > 0 {
		fmt.Printf("\nBlocked: %s\n", strings.Join(p.Blocked, ", "))
	}
}

var seedCmd = &cobra.Command{
	Use:   "seed <student> <atom>...",
	Short: "Mark atoms as mastered from a diagnostic placement",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, appOptions{sharedLock: true})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		seeded, err := a.tutor.SeedDiagnostic(ctx, args[0], args[1:])
		if err != nil {
			return err
		}
		if len(seeded) == 0 {
			fmt.Println("All atoms were already mastered.")
			return nil
		}
		fmt.Printf("Seeded %d atoms: %s\n", len(seeded), strings.Join(seeded, ", "))
		return nil
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review <student>",
	Short: "List due reviews, or open a review session with --start",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		start, _ := cmd.Flags().GetBool("start")

		a, err := openApp(ctx, appOptions{sharedLock: true})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if !start {
			p, err := a.tutor.GetPlan(ctx, args[0])
			if err != nil {
				return err
			}
			n := 0
			for _, it := range p.Items {
				if it.Action != plan.ActionReview {
					continue
				}
				n++
				kind := "review"
				if it.Probe {
					kind = "probe"
				}
				fmt.Printf("%-24s  %s\n", it.AtomID, kind)
			}
			if n == 0 {
				fmt.Println("No reviews due.")
			}
			return nil
		}

		rs, err := a.tutor.GetReviewSession(ctx, args[0])
		if errors.Is(err, spacedrep.ErrNothingDue) {
			fmt.Println("No reviews due.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Session %s (probe=%v) over %s\n\n", rs.ID, rs.Probe, strings.Join(rs.AtomIDs, ", "))
		for i, it := range rs.Items {
			fmt.Printf("%2d. %-24s  %-16s  %s\n", i+1, it.AtomID, it.Question.ID, it.Question.Difficulty)
		}
		return nil
	},
}

func init() {
	reviewCmd.Flags().Bool("start", false, "Open (or resume) a review session and list its questions")
}
