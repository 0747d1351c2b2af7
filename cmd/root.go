package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/masterypath/internal/config"
	"github.com/abhisek/masterypath/internal/logging"
	"github.com/abhisek/masterypath/internal/store"
)

var (
	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "masterypath",
	Short: "Adaptive mastery tracking and review scheduling",
	Long: `masterypath walks students through a prerequisite graph of atoms.

Each atom is assessed with a PP100 session, failed atoms are diagnosed for
prerequisite gaps, and mastered atoms are brought back for spaced review.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["config"] == "skip" {
			return nil
		}
		return setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to masterypath.yaml (default: ./masterypath.yaml or ./config/masterypath.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides database.dsn)")
	rootCmd.PersistentFlags().String("course", "", "Path to a course YAML file (implies course.source=file)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(lessonCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads configuration, applies flag overrides and builds the logger.
func setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	l, err := logging.New(c.Log)
	if err != nil {
		return err
	}
	cfg, log = c, l.With(zap.String("cmd", cmd.Name()))
	return nil
}

// applyFlags layers command-line overrides on top of the loaded config.
// --db wins over database.dsn, which wins over the per-user default path.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		c.Log.Level = lvl
	}
	if p, _ := cmd.Flags().GetString("course"); p != "" {
		c.Course.Source, c.Course.Path = config.CourseFile, p
	}

	if c.Database.Driver != store.DriverSQLite {
		return nil
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		c.Database.DSN = p
		return store.EnsureDir(p)
	}
	if c.Database.DSN == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve database path: %w", err)
		}
		c.Database.DSN = p
	}
	return nil
}
