// Package tracing is the optional span emitter wrapping OpenTelemetry. A nil
// *Tracer is valid everywhere in this package — tracing is an opt-in
// diagnostic layer, never a dependency of correctness.
package tracing

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/corelane/agentrun/internal/tracing"

// Tracer emits the agent/llm_call/tool_call span hierarchy for one reply
// loop turn (§4.9).
type Tracer struct {
	tracer  trace.Tracer
	verbose bool
}

// NewStdout builds a Tracer exporting to stdout — documentation-weight
// tracing, not a production OTLP pipeline (otlptrace exporters are
// deliberately not wired here). Call the returned shutdown func on exit to
// flush pending spans.
func NewStdout(verbose bool) (*Tracer, func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return &Tracer{tracer: tp.Tracer(instrumentationName), verbose: verbose}, tp.Shutdown, nil
}

func (t *Tracer) previewLimit() int {
	if t != nil && t.verbose {
		return 100000
	}
	return 500
}

func truncate(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}

// StartAgentSpan opens the root span parenting every LLM/tool span emitted
// during one turn.
func (t *Tracer) StartAgentSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, sessionID, trace.WithAttributes(attribute.String("agentrun.session_id", sessionID)))
}

// EndAgentSpan closes an agent span, recording success or error.
func (t *Tracer) EndAgentSpan(span trace.Span, outputPreview string, err error) {
	if t == nil || span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("agentrun.output_preview", truncate(outputPreview, t.previewLimit())))
	}
	span.End()
}

// EmitLLMSpan records one provider call as a child span of ctx's active
// span.
func (t *Tracer) EmitLLMSpan(ctx context.Context, providerName, model string, iteration int, inputTokens, outputTokens int64, outputPreview string, callErr error) {
	if t == nil {
		return
	}
	_, span := t.tracer.Start(ctx, providerName+"/"+model)
	span.SetAttributes(
		attribute.String("agentrun.provider", providerName),
		attribute.String("agentrun.model", model),
		attribute.Int("agentrun.iteration", iteration),
		attribute.Int64("agentrun.input_tokens", inputTokens),
		attribute.Int64("agentrun.output_tokens", outputTokens),
	)
	if callErr != nil {
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
	} else {
		span.SetAttributes(attribute.String("agentrun.output_preview", truncate(outputPreview, t.previewLimit())))
	}
	span.End()
}

// EmitToolSpan records one tool dispatch as a child span of ctx's active
// span.
func (t *Tracer) EmitToolSpan(ctx context.Context, toolName, toolCallID, input, output string, isError bool) {
	if t == nil {
		return
	}
	_, span := t.tracer.Start(ctx, toolName)
	limit := t.previewLimit()
	span.SetAttributes(
		attribute.String("agentrun.tool_name", toolName),
		attribute.String("agentrun.tool_call_id", toolCallID),
		attribute.String("agentrun.input_preview", truncate(input, limit)),
		attribute.String("agentrun.output_preview", truncate(output, limit)),
	)
	if isError {
		span.SetStatus(codes.Error, truncate(output, 200))
	}
	span.End()
}
