package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/priority"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Validate, browse and publish the course graph",
}

var graphValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a course file and report every structural problem",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Course.Path
		if len(args) == 1 {
			path = args[0]
		}
		g, err := graph.FileSource{Path: path}.Load(cmd.Context())
		if err != nil {
			return err
		}
		questions := 0
		for _, id := range g.IDs() {
			questions += g.DirectQuestionCount(id)
		}
		fmt.Printf("%s: ok (%q, %d atoms, %d questions)\n", path, g.Name(), g.Len(), questions)
		return nil
	},
}

var graphListCmd = &cobra.Command{
	Use:   "list",
	Short: "List atoms in topological order with question pools and priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		fmt.Printf("%-24s  %-30s  %4s  %4s  %4s  %8s  %s\n",
			"ID", "Name", "E", "M", "H", "Priority", "Prerequisites")
		fmt.Println(strings.Repeat("─", 110))
		for _, a := range g.Atoms() {
			name := a.Name
			if len(name) > 30 {
				name = name[:27] + "..."
			}
			var pools [3]int
			for i, d := range graph.AllDifficulties() {
				qs, _ := g.QuestionsByDifficulty(a.ID, d)
				pools[i] = len(qs)
			}
			fmt.Printf("%-24s  %-30s  %4d  %4d  %4d  %8.2f  %s\n",
				a.ID, name, pools[0], pools[1], pools[2], priority.Score(g, a.ID),
				strings.Join(a.Prerequisites, ", "))
		}
		fmt.Printf("\n%d atoms in %q\n", g.Len(), g.Name())
		return nil
	},
}

var graphPushCmd = &cobra.Command{
	Use:   "push [file]",
	Short: "Upload a course file into Neo4j",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := cfg.Course.Path
		if len(args) == 1 {
			path = args[0]
		}
		g, err := graph.FileSource{Path: path}.Load(ctx)
		if err != nil {
			return err
		}

		name := cfg.Course.Name
		if name == "" {
			name = g.Name()
		}
		src, err := graph.NewNeo4jSource(ctx, cfg.Neo4j, name)
		if err != nil {
			return err
		}
		defer src.Close(ctx)

		if err := src.Push(ctx, g); err != nil {
			return fmt.Errorf("push course: %w", err)
		}
		log.Info("course pushed", zap.String("course", name), zap.Int("atoms", g.Len()))
		fmt.Printf("Pushed %q (%d atoms) to %s\n", name, g.Len(), cfg.Neo4j.URI)
		return nil
	},
}

var graphExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the configured course as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		data, err := graph.MarshalCourse(g)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		if out == "" || out == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		return os.WriteFile(out, data, 0o644)
	},
}

func init() {
	graphExportCmd.Flags().StringP("out", "o", "", "Output file (default stdout)")

	graphCmd.AddCommand(graphValidateCmd)
	graphCmd.AddCommand(graphListCmd)
	graphCmd.AddCommand(graphPushCmd)
	graphCmd.AddCommand(graphExportCmd)
}
