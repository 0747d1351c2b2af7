package lessons

import "github.com/abhisek/masterypath/internal/llm"

// LessonSchema constrains generated lessons.
var LessonSchema = &llm.Schema{
	Name:        "atom-lesson",
	Description: "A short lesson for one knowledge atom with a worked example and a warm-up question",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Short title for the lesson (3-8 words)",
			},
			"explanation": map[string]any{
				"type":        "string",
				"description": "Plain explanation of the concept (3-6 sentences)",
			},
			"worked_example": map[string]any{
				"type":        "string",
				"description": "A fully worked example with numbered steps",
			},
			"practice": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{
						"type":        "string",
						"description": "A warm-up question easier than the practice set",
					},
					"answer": map[string]any{
						"type":        "string",
						"description": "The single correct answer",
					},
					"explanation": map[string]any{
						"type":        "string",
						"description": "One or two sentences explaining the answer",
					},
				},
				"required":             []any{"text", "answer", "explanation"},
				"additionalProperties": false,
			},
		},
		"required":             []any{"title", "explanation", "worked_example", "practice"},
		"additionalProperties": false,
	},
}
