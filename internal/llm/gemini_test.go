package llm

import (
	"context"
	"testing"

	"google.golang.org/genai"
)

func TestGeminiModelMapping(t *testing.T) {
	tests := []struct{ in, want string }{
		{"gemini-flash", "gemini-2.0-flash"},
		{"gemini-pro", "gemini-2.5-pro"},
		{"gemini-2.0-flash-lite", "gemini-2.0-flash-lite"},
	}
	for _, tt := range tests {
		if got := resolveModel(tt.in, geminiModels); got != tt.want {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGeminiSchema(t *testing.T) {
	s := geminiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":   map[string]any{"type": "string", "description": "Lesson title"},
			"level":   map[string]any{"type": "string", "enum": []any{"easy", "medium", "hard"}},
			"minutes": map[string]any{"type": "integer"},
			"steps": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required":             []any{"title", "steps"},
		"additionalProperties": false,
	})

	if s.Type != genai.TypeObject {
		t.Fatalf("type = %s, want OBJECT", s.Type)
	}
	if len(s.Properties) != 4 || len(s.Required) != 2 {
		t.Fatalf("properties = %d, required = %v", len(s.Properties), s.Required)
	}
	if s.Properties["title"].Description != "Lesson title" {
		t.Errorf("description = %q", s.Properties["title"].Description)
	}
	if got := s.Properties["level"].Enum; len(got) != 3 || got[0] != "easy" {
		t.Errorf("enum = %v", got)
	}
	if s.Properties["minutes"].Type != genai.TypeInteger {
		t.Errorf("minutes type = %s", s.Properties["minutes"].Type)
	}
	if steps := s.Properties["steps"]; steps.Type != genai.TypeArray || steps.Items.Type != genai.TypeString {
		t.Errorf("steps = %+v", steps)
	}
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	if _, err := NewGeminiProvider(context.Background(), GeminiConfig{}); err == nil {
		t.Fatal("expected error")
	}
}
