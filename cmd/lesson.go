package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/masterypath/internal/lessons"
)

var lessonCmd = &cobra.Command{
	Use:   "lesson <atom>",
	Short: "Show the lesson for an atom, generating and caching it if needed",
	Long: `Fetch an atom's lesson from blob storage.

When none is stored and an LLM provider is configured, the lesson is
generated and written back so later requests are served from storage.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp(ctx, appOptions{withLessons: true})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		atom, err := a.graph.Atom(args[0])
		if err != nil {
			return err
		}
		l, err := a.lessons.Lesson(ctx, atom)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(l)
		}
		printLesson(l)
		return nil
	},
}

func printLesson(l *lessons.Lesson) {
	sep := strings.Repeat("─", 60)
	fmt.Printf("%s  (%s, %s)\n", l.Title, l.AtomID, l.Source)
	fmt.Println(sep)
	fmt.Println(l.Explanation)
	if l.WorkedExample != "" {
		fmt.Println()
		fmt.Println("Worked example:")
		fmt.Println(l.WorkedExample)
	}
	if l.Practice.Text != "" {
		fmt.Println(sep)
		fmt.Println("Try it: " + l.Practice.Text)
		fmt.Println("Answer: " + l.Practice.Answer)
	}
}

func init() {
	lessonCmd.Flags().Bool("json", false, "Print the lesson as JSON")
}
