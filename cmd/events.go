package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/masterypath/internal/store"
)

var eventsCmd = &cobra.Command{
	Use:   "events [student]",
	Short: "Show a student's event log",
	Long: `Print the append-only event log of one student in sequence order.

Without a student, print events that belong to no student (LLM requests).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")
		after, _ := cmd.Flags().GetInt64("after")

		student := ""
		if len(args) == 1 {
			student = args[0]
		}

		st, err := store.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()

		events, err := st.EventRepo().List(cmd.Context(), student, store.QueryOpts{Kind: kind, Limit: limit, After: after})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		printEvents(events)
		return nil
	},
}

func printEvents(events []store.Event) {
	if len(events) == 0 {
		fmt.Println("No events found.")
		return
	}
	fmt.Printf("%-6s  %-19s  %-11s  %-20s  %s\n", "Seq", "Timestamp", "Kind", "Atom", "Payload")
	fmt.Println(strings.Repeat("─", 110))
	for _, e := range events {
		payload := string(e.Payload)
		if len(payload) > 60 {
			payload = payload[:57] + "..."
		}
		fmt.Printf("%-6d  %-19s  %-11s  %-20s  %s\n",
			e.Sequence,
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Kind,
			e.AtomID,
			payload,
		)
	}
}

func init() {
	eventsCmd.Flags().String("kind", "", "Only show one kind: answer, mastery, diagnosis, review, llm_request")
	eventsCmd.Flags().Int("limit", 50, "Maximum number of events")
	eventsCmd.Flags().Int64("after", 0, "Only show events with a sequence greater than this")
}
