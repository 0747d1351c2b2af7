package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/masterypath/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and show their status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		// Open applies every pending migration.
		st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()

		status, err := st.Migrations(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Database: %s\n\n", st.Driver())
		fmt.Printf("%-8s  %-40s  %s\n", "Version", "Source", "Applied")
		fmt.Println(strings.Repeat("─", 60))
		for _, m := range status {
			applied := "✓"
			if !m.Applied {
				applied = "✗"
			}
			fmt.Printf("%-8d  %-40s  %s\n", m.Version, m.Source, applied)
		}
		return nil
	},
}
