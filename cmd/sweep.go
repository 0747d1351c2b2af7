package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Count due reviews across all students, optionally pruning snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		prune, _ := cmd.Flags().GetBool("prune")
		keep, _ := cmd.Flags().GetInt("keep")
		if keep <= 0 {
			keep = cfg.Review.SnapshotKeep
		}

		a, err := openApp(ctx, appOptions{sharedLock: true})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		rep, err := a.tutor.Sweep(ctx, cfg.Review.Concurrency)
		if err != nil {
			return err
		}
		fmt.Printf("Students:        %d\n", rep.Students)
		fmt.Printf("Due reviews:     %d\n", rep.Due)
		fmt.Printf("Pending probes:  %d\n", rep.Probes)

		if !prune {
			return nil
		}
		pr, err := a.tutor.PruneSnapshots(ctx, cfg.Review.Concurrency, keep)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned:          %d snapshots (keep %d)\n", pr.Pruned, keep)
		return nil
	},
}

func init() {
	sweepCmd.Flags().Bool("prune", false, "Also prune old snapshots")
	sweepCmd.Flags().Int("keep", 0, "Snapshots to keep per student (default review.snapshot_keep)")
}
