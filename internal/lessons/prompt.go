package lessons

import (
	"fmt"
	"strings"

	"github.com/abhisek/masterypath/internal/graph"
)

const lessonSystemPrompt = `You are a patient tutor writing the first lesson a student sees on a new concept. The student has already mastered the prerequisites listed. Keep the lesson short and concrete.`

func buildLessonUserMessage(atom graph.Atom, prereqs []graph.Atom) string {
	var b strings.Builder

	name := atom.Name
	if name == "" {
		name = atom.ID
	}
	fmt.Fprintf(&b, "Concept: %s\n", name)
	fmt.Fprintf(&b, "Concept id: %s\n", atom.ID)

	b.WriteString("\nAlready mastered:\n")
	if len(prereqs) == 0 {
		b.WriteString("Nothing yet. This is an entry concept.\n")
	}
	for _, p := range prereqs {
		if p.Name != "" {
			fmt.Fprintf(&b, "- %s (%s)\n", p.Name, p.ID)
		} else {
			fmt.Fprintf(&b, "- %s\n", p.ID)
		}
	}

	b.WriteString(`
Instructions:
1. Explain the concept in 3-6 sentences. Build on the mastered concepts above and name them where they help.
2. Give one worked example with numbered steps. Show every step.
3. Write one warm-up question that is easier than a typical practice question, with a single correct answer and a short explanation.
4. Use plain ASCII text for all math. Use / for fractions and * for multiplication.`)

	return b.String()
}
