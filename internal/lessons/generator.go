package lessons

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/llm"
)

// Generator writes lessons with an LLM.
type Generator struct {
	provider llm.Provider
	catalog  graph.Catalog
	cfg      Config
	now      func() time.Time
}

// NewGenerator creates a generator. catalog resolves prerequisite names
// for the prompt and may be nil.
func NewGenerator(provider llm.Provider, catalog graph.Catalog, cfg Config) *Generator {
	return &Generator{provider: provider, catalog: catalog, cfg: cfg, now: time.Now}
}

type lessonOutput struct {
	Title         string           `json:"title"`
	Explanation   string           `json:"explanation"`
	WorkedExample string           `json:"worked_example"`
	Practice      PracticeQuestion `json:"practice"`
}

func (g *Generator) Lesson(ctx context.Context, atom graph.Atom) (*Lesson, error) {
	ctx = llm.WithPurpose(ctx, "lesson")

	req := llm.Request{
		System: lessonSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildLessonUserMessage(atom, g.prerequisites(atom))},
		},
		Schema:      LessonSchema,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}

	resp, err := g.provider.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lesson generation for %s: %w", atom.ID, err)
	}

	var out lessonOutput
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return nil, fmt.Errorf("parse lesson response: %w", err)
	}

	return &Lesson{
		AtomID:        atom.ID,
		Title:         out.Title,
		Explanation:   out.Explanation,
		WorkedExample: out.WorkedExample,
		Practice:      out.Practice,
		Source:        SourceGenerated,
		GeneratedAt:   g.now().UTC(),
	}, nil
}

func (g *Generator) prerequisites(atom graph.Atom) []graph.Atom {
	out := make([]graph.Atom, 0, len(atom.Prerequisites))
	for _, id := range atom.Prerequisites {
		if g.catalog != nil {
			if p, err := g.catalog.Atom(id); err == nil {
				out = append(out, p)
				continue
			}
		}
		out = append(out, graph.Atom{ID: id})
	}
	return out
}
