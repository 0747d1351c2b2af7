package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMockProvider_ReplaysScriptInOrder(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"title":"one"}`), Usage: Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}},
		MockResponse{Content: json.RawMessage(`{"title":"two"}`)},
	)

	first, err := mock.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "first"}}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(first.Content) != `{"title":"one"}` || first.Usage.InputTokens != 10 || first.StopReason != "end" {
		t.Fatalf("first = %+v", first)
	}
	second, err := mock.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(second.Content) != `{"title":"two"}` {
		t.Fatalf("second content = %s", second.Content)
	}
	if mock.CallCount() != 2 || mock.Calls[0].Messages[0].Content != "first" {
		t.Fatalf("calls = %+v", mock.Calls)
	}
}

func TestMockProvider_EmptyScriptUnavailable(t *testing.T) {
	_, err := NewMockProvider().Generate(context.Background(), Request{})
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("got %T (%v), want ErrProviderUnavailable", err, err)
	}
}

func TestMockProvider_ScriptedError(t *testing.T) {
	mock := NewMockProvider(MockResponse{Err: &ErrRateLimit{}})
	_, err := mock.Generate(context.Background(), Request{})
	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("got %T, want ErrRateLimit", err)
	}
}

func TestMockProvider_ValidatesScriptedContent(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{"name":"x"}`)})
	_, err := mock.Generate(context.Background(), Request{Schema: testSchema()})
	var inv *ErrInvalidResponse
	if !errors.As(err, &inv) {
		t.Fatalf("got %v, want ErrInvalidResponse", err)
	}
}

func TestStubProvider_SatisfiesSchema(t *testing.T) {
	stub := NewStubProvider()
	resp, err := stub.Generate(context.Background(), Request{Schema: testSchema()})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(resp.Content, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["grade"] != "A" {
		t.Errorf("enum stub = %v, want first enum value", got["grade"])
	}
	if s, _ := got["name"].(string); !strings.HasPrefix(s, "stub") {
		t.Errorf("string stub = %q", s)
	}

	plain, err := stub.Generate(context.Background(), Request{})
	if err != nil || string(plain.Content) != `"stub"` {
		t.Errorf("schemaless stub = %s, %v", plain.Content, err)
	}
}

func TestPurposeContext(t *testing.T) {
	ctx := context.Background()
	if p := PurposeFrom(ctx); p != "unknown" {
		t.Fatalf("got %q, want unknown", p)
	}
	if p := PurposeFrom(WithPurpose(ctx, "lesson")); p != "lesson" {
		t.Fatalf("got %q, want lesson", p)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled", cfg: Config{}},
		{name: "none", cfg: Config{Provider: "none"}},
		{name: "anthropic without key", cfg: Config{Provider: "anthropic", Retry: RetryConfig{MaxAttempts: 1}}, wantErr: true},
		{name: "anthropic with key", cfg: Config{Provider: "anthropic", Anthropic: AnthropicConfig{APIKey: "sk"}, Retry: RetryConfig{MaxAttempts: 1}}},
		{name: "openrouter without key", cfg: Config{Provider: "openrouter", Retry: RetryConfig{MaxAttempts: 1}}, wantErr: true},
		{name: "mock needs no key", cfg: Config{Provider: "mock", Retry: RetryConfig{MaxAttempts: 1}}},
		{name: "mock with zero attempts", cfg: Config{Provider: "mock"}, wantErr: true},
		{name: "unknown provider", cfg: Config{Provider: "llama"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_FillKeysFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", "o-key")
	cfg := DefaultConfig()
	cfg.OpenAI.APIKey = "configured"
	cfg.FillKeysFromEnv()
	if cfg.Gemini.APIKey != "g-key" {
		t.Errorf("gemini key = %q", cfg.Gemini.APIKey)
	}
	if cfg.OpenAI.APIKey != "configured" {
		t.Errorf("openai key overwritten: %q", cfg.OpenAI.APIKey)
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{}, Deps{})
	if err != nil || p != nil {
		t.Fatalf("disabled: got %v, %v", p, err)
	}

	cfg := DefaultConfig()
	cfg.Provider = "mock"
	cfg.Timeout = time.Second
	p, err = NewProvider(context.Background(), cfg, Deps{})
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	if p.ModelID() != "mock" {
		t.Errorf("model = %q", p.ModelID())
	}
	if _, err := p.Generate(context.Background(), Request{Schema: testSchema()}); err != nil {
		t.Errorf("Generate through middleware: %v", err)
	}

	cfg.Provider = "anthropic"
	if _, err := NewProvider(context.Background(), cfg, Deps{}); err == nil {
		t.Error("expected error for anthropic without key")
	}
}
