package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		InitialWait: time.Millisecond,
		MaxWait:     4 * time.Millisecond,
		Multiplier:  2,
	}
}

var (
	okReply   = MockResponse{Content: json.RawMessage(`{"ok":true}`)}
	downReply = MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("502 bad gateway")}}
)

func TestWithRetry_Policy(t *testing.T) {
	invalid := MockResponse{Err: &ErrInvalidResponse{Content: json.RawMessage(`{`), Err: errors.New("eof")}}
	tests := []struct {
		name      string
		attempts  int
		script    []MockResponse
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", attempts: 3, script: []MockResponse{okReply}, wantCalls: 1},
		{name: "unavailable then ok", attempts: 3, script: []MockResponse{downReply, downReply, okReply}, wantCalls: 3},
		{name: "unavailable exhausts attempts", attempts: 2, script: []MockResponse{downReply, downReply, okReply}, wantCalls: 2, wantErr: true},
		{name: "rate limit then ok", attempts: 3, script: []MockResponse{{Err: &ErrRateLimit{Err: errors.New("429")}}, okReply}, wantCalls: 2},
		{name: "invalid retried once", attempts: 5, script: []MockResponse{invalid, okReply}, wantCalls: 2},
		{name: "second invalid stops", attempts: 5, script: []MockResponse{invalid, invalid, okReply}, wantCalls: 2, wantErr: true},
		{name: "truncation not retried", attempts: 3, script: []MockResponse{{Err: &ErrMaxTokensExceeded{}}, okReply}, wantCalls: 1, wantErr: true},
		{name: "4xx not retried", attempts: 3, script: []MockResponse{{Err: classifyStatus(422, errors.New("unprocessable"))}, okReply}, wantCalls: 1, wantErr: true},
		{name: "zero attempts means one", attempts: 0, script: []MockResponse{downReply, okReply}, wantCalls: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider(tt.script...)
			_, err := WithRetry(mock, fastRetry(tt.attempts), nil).Generate(context.Background(), Request{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := mock.CallCount(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestWithRetry_ReturnsLastError(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrRateLimit{Err: errors.New("429")}},
		downReply,
	)
	_, err := WithRetry(mock, fastRetry(2), nil).Generate(context.Background(), Request{})
	var un *ErrProviderUnavailable
	if !errors.As(err, &un) {
		t.Fatalf("err = %v, want the final ErrProviderUnavailable", err)
	}
}

func TestWithRetry_LogsEachRetry(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mock := NewMockProvider(downReply, downReply, okReply)

	if _, err := WithRetry(mock, fastRetry(3), zap.New(core)).Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	entries := logs.FilterMessage("retrying llm request").AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("got %d retry log lines, want 2", len(entries))
	}
	for i, e := range entries {
		fields := e.ContextMap()
		if fields["attempt"] != int64(i+1) {
			t.Errorf("entry %d attempt = %v, want %d", i, fields["attempt"], i+1)
		}
		if _, ok := fields["wait"]; !ok {
			t.Errorf("entry %d has no wait field", i)
		}
		if fields["error"] == nil {
			t.Errorf("entry %d has no error field", i)
		}
	}
}

func TestWithRetry_StopsWhenContextDone(t *testing.T) {
	mock := NewMockProvider(downReply, okReply)
	cfg := RetryConfig{MaxAttempts: 3, InitialWait: time.Hour, MaxWait: time.Hour, Multiplier: 1}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := WithRetry(mock, cfg, nil).Generate(ctx, Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("calls = %d, want 1", mock.CallCount())
	}
}

func TestBackoff(t *testing.T) {
	r := &retrying{cfg: RetryConfig{InitialWait: 100 * time.Millisecond, MaxWait: time.Second, Multiplier: 2}}
	down := &ErrProviderUnavailable{}

	for attempt, base := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second} {
		lo, hi := base*8/10, base*12/10
		for range 20 {
			if got := r.backoff(attempt, down); got < lo || got > hi {
				t.Fatalf("attempt %d: backoff %v outside [%v, %v]", attempt, got, lo, hi)
			}
		}
	}

	rl := &ErrRateLimit{RetryAfter: 3 * time.Second}
	if got := r.backoff(0, rl); got != 3*time.Second {
		t.Errorf("backoff with Retry-After = %v, want 3s", got)
	}
}

func TestClassifyStatus(t *testing.T) {
	base := errors.New("sdk")
	var rl *ErrRateLimit
	if !errors.As(classifyStatus(429, base), &rl) {
		t.Error("429 should be ErrRateLimit")
	}
	var un *ErrProviderUnavailable
	for _, code := range []int{0, 500, 503} {
		if !errors.As(classifyStatus(code, base), &un) {
			t.Errorf("%d should be ErrProviderUnavailable", code)
		}
	}
	err := classifyStatus(401, base)
	if errors.As(err, &un) || errors.As(err, &rl) || !errors.Is(err, base) {
		t.Errorf("401 = %v, want plain wrapped error", err)
	}
}

func TestRetryingModelID(t *testing.T) {
	if got := WithRetry(NewMockProvider(), fastRetry(1), nil).ModelID(); got != "mock" {
		t.Errorf("ModelID = %q, want mock", got)
	}
}
