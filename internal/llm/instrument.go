package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/abhisek/masterypath/internal/store"
)

// Observer receives one callback per provider call. *metrics.Registry
// implements it.
type Observer interface {
	LLMRequest(model, purpose string, took time.Duration, inputTokens, outputTokens int, err error)
}

// instrumented records every call as a span, a log line, an observer
// callback and an llm_request event.
type instrumented struct {
	inner    Provider
	provider string
	log      *zap.Logger
	events   store.EventRepo
	obs      Observer
}

// Instrument wraps p. Any of log, events and obs may be nil.
func Instrument(p Provider, provider string, log *zap.Logger, events store.EventRepo, obs Observer) Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &instrumented{inner: p, provider: provider, log: log, events: events, obs: obs}
}

func (p *instrumented) Generate(ctx context.Context, req Request) (*Response, error) {
	purpose := PurposeFrom(ctx)
	ctx, span := otel.Tracer("github.com/abhisek/masterypath/internal/llm").Start(ctx, "llm.Generate")
	span.SetAttributes(
		attribute.String("llm.provider", p.provider),
		attribute.String("llm.model", p.inner.ModelID()),
		attribute.String("llm.purpose", purpose),
	)
	defer span.End()

	start := time.Now()
	resp, err := p.inner.Generate(ctx, req)
	took := time.Since(start)

	data := store.LLMRequestEventData{
		Provider:  p.provider,
		Model:     p.inner.ModelID(),
		Purpose:   purpose,
		LatencyMs: took.Milliseconds(),
		Success:   err == nil,
	}
	if resp != nil {
		data.InputTokens = resp.Usage.InputTokens
		data.OutputTokens = resp.Usage.OutputTokens
		if resp.Model != "" {
			data.Model = resp.Model
		}
	}
	fields := []zap.Field{
		zap.String("provider", p.provider),
		zap.String("model", data.Model),
		zap.String("purpose", purpose),
		zap.Duration("took", took),
		zap.Int("input_tokens", data.InputTokens),
		zap.Int("output_tokens", data.OutputTokens),
	}
	if err != nil {
		data.ErrorMessage = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.log.Warn("llm request failed", append(fields, zap.Error(err))...)
	} else {
		span.SetAttributes(
			attribute.Int("llm.input_tokens", data.InputTokens),
			attribute.Int("llm.output_tokens", data.OutputTokens),
		)
		p.log.Info("llm request", fields...)
	}

	if p.obs != nil {
		p.obs.LLMRequest(data.Model, purpose, took, data.InputTokens, data.OutputTokens, err)
	}
	if p.events != nil {
		// The caller's request must not fail because the audit write did.
		if logErr := p.events.AppendLLMRequest(context.WithoutCancel(ctx), data); logErr != nil {
			p.log.Warn("append llm_request event", zap.Error(logErr))
		}
	}
	return resp, err
}

func (p *instrumented) ModelID() string { return p.inner.ModelID() }
