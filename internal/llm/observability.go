package llm

import (
	"context"
	"encoding/json"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"noema/internal/observability"
)

var (
	tokenOnce         sync.Once
	promptCounter     otelmetric.Int64Counter
	completionCounter otelmetric.Int64Counter
)

func ensureTokenInstruments() {
	tokenOnce.Do(func() {
		m := otel.Meter("internal/llm")
		promptCounter, _ = m.Int64Counter("llm.prompt_tokens", otelmetric.WithDescription("cumulative prompt tokens by model"))
		completionCounter, _ = m.Int64Counter("llm.completion_tokens", otelmetric.WithDescription("cumulative completion tokens by model"))
	})
}

// RecordTokenMetrics records prompt/completion token usage against the
// service's OTel meter, tagged by model.
func RecordTokenMetrics(ctx context.Context, model string, promptTokens, completionTokens int) {
	if model == "" || (promptTokens == 0 && completionTokens == 0) {
		return
	}
	ensureTokenInstruments()
	attrs := otelmetric.WithAttributes(attribute.String("llm.model", model))
	if promptCounter != nil && promptTokens > 0 {
		promptCounter.Add(ctx, int64(promptTokens), attrs)
	}
	if completionCounter != nil && completionTokens > 0 {
		completionCounter.Add(ctx, int64(completionTokens), attrs)
	}
}

// StartRequestSpan starts a tracer span for an outbound LLM call.
func StartRequestSpan(ctx context.Context, operation, model string, messages int) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("internal/llm").Start(ctx, operation)
	span.SetAttributes(attribute.String("llm.model", model), attribute.Int("llm.messages", messages))
	return ctx, span
}

// RecordTokenAttributes sets token-count attributes on an in-flight span.
func RecordTokenAttributes(span trace.Span, promptTokens, completionTokens, totalTokens int) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", promptTokens),
		attribute.Int("llm.completion_tokens", completionTokens),
		attribute.Int("llm.total_tokens", totalTokens),
	)
}

// LogRedactedPrompt logs a secret-redacted copy of the outgoing messages at
// debug level, for correlation with the matching response log line.
func LogRedactedPrompt(ctx context.Context, msgs []Message) {
	log := observability.LoggerWithTrace(ctx)
	b, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	log.Debug().RawJSON("prompt", observability.RedactJSON(b)).Msg("llm_request")
}

// LogRedactedResponse logs a secret-redacted copy of a provider response.
func LogRedactedResponse(ctx context.Context, resp any) {
	log := observability.LoggerWithTrace(ctx)
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	log.Debug().RawJSON("response", observability.RedactJSON(b)).Msg("llm_response")
}
