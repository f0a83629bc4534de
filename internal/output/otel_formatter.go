package output

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/vmdisplay-receiver/internal/attributes"
	"github.com/mrzor/vmdisplay-receiver/internal/config"
	"github.com/mrzor/vmdisplay-receiver/internal/outputmeta"
)

// OTELFormatter formats frames as OpenTelemetry spans.
//
// Each frame becomes a span from the previous frame of its output to its own
// arrival, so span duration is the output's frame interval. Frames hang off
// a session span unless a trace-id expression places them in another trace.
type OTELFormatter struct {
	tracer            trace.Tracer
	metadataManager   *outputmeta.Manager
	evaluator         *attributes.Evaluator
	traceIDEvaluator  *attributes.TraceIDEvaluator
	parentIDEvaluator *attributes.ParentIDEvaluator
	logger            *slog.Logger

	sessionCtx  context.Context
	sessionSpan trace.Span
}

// NewOTELFormatter creates a new OTELFormatter and starts its session span.
// environ is exposed to expressions as env.
func NewOTELFormatter(
	tracer trace.Tracer,
	metadataManager *outputmeta.Manager,
	customAttrs []config.CustomAttribute,
	traceIDExpr string,
	parentIDExpr string,
	environ map[string]string,
	logger *slog.Logger,
) (*OTELFormatter, error) {
	evaluator, err := attributes.NewEvaluator(customAttrs, environ)
	if err != nil {
		return nil, err
	}
	traceIDEvaluator, err := attributes.NewTraceIDEvaluator(traceIDExpr, environ)
	if err != nil {
		return nil, err
	}
	parentIDEvaluator, err := attributes.NewParentIDEvaluator(parentIDExpr, environ)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	sessionCtx, sessionSpan := tracer.Start(context.Background(), "vmdisplay.session",
		trace.WithSpanKind(trace.SpanKindConsumer),
	)

	return &OTELFormatter{
		tracer:            tracer,
		metadataManager:   metadataManager,
		evaluator:         evaluator,
		traceIDEvaluator:  traceIDEvaluator,
		parentIDEvaluator: parentIDEvaluator,
		logger:            logger,
		sessionCtx:        sessionCtx,
		sessionSpan:       sessionSpan,
	}, nil
}

// HandleFrame emits one span for frame.
func (f *OTELFormatter) HandleFrame(frame, previous *outputmeta.FrameInfo) error {
	ctx, idWarnings := f.parentContext(frame)

	startTime := frame.ReceivedAt
	if previous != nil {
		startTime = previous.ReceivedAt
	}

	_, span := f.tracer.Start(ctx, "vmdisplay.frame",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithTimestamp(startTime),
	)

	bufferIDs := frame.BufferIDs()
	ids := make([]string, len(bufferIDs))
	for i, id := range bufferIDs {
		ids[i] = id.String()
	}

	span.SetAttributes(
		attribute.Int("vmdisplay.domain", frame.Domain),
		attribute.Int("vmdisplay.output", frame.Output),
		attribute.Int("vmdisplay.frame.counter", int(frame.Header.Counter)),
		attribute.Int("vmdisplay.frame.version", int(frame.Header.Version)),
		attribute.Int("vmdisplay.frame.buffers", len(ids)),
		attribute.StringSlice("vmdisplay.frame.buffer_ids", ids),
		attribute.Int("vmdisplay.display.width", int(frame.Header.DisplayWidth)),
		attribute.Int("vmdisplay.display.height", int(frame.Header.DisplayHeight)),
		//nolint:gosec // frame counts stay far below MaxInt64
		attribute.Int64("vmdisplay.output.frames", int64(f.metadataManager.Frames(frame.Output))),
	)
	if previous != nil {
		span.SetAttributes(
			attribute.Int64("vmdisplay.frame.interval_ns", frame.Interval(previous).Nanoseconds()),
			attribute.Int("vmdisplay.frame.previous_counter", int(previous.Header.Counter)),
		)
	}
	if len(idWarnings) > 0 {
		span.SetAttributes(idWarnings...)
	}

	customAttrs, err := f.evaluator.EvaluateCustomAttributes(frame)
	if len(customAttrs) > 0 {
		span.SetAttributes(customAttrs...)
	}
	if err != nil {
		f.logger.Warn("evaluating custom attributes", "output", frame.Output, "error", err)
		span.SetAttributes(attribute.String("_tracing_error_0", err.Error()))
	}

	issues := f.metadataManager.TakeIssues(frame.Output)
	for i, issue := range issues {
		span.SetAttributes(attribute.String(fmt.Sprintf("_receiver_warning_%d", i), issue))
	}
	if len(issues) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d frame anomalies", len(issues)))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End(trace.WithTimestamp(frame.ReceivedAt))
	return nil
}

// parentContext returns the context frame spans start from. Without a
// trace-id expression that is the session span. With one, the frame joins
// the evaluated trace under the evaluated parent, or under the session
// span's id when no parent is configured.
func (f *OTELFormatter) parentContext(frame *outputmeta.FrameInfo) (context.Context, []attribute.KeyValue) {
	var warnings []attribute.KeyValue

	traceID, w, err := f.traceIDEvaluator.EvaluateAndValidate(frame)
	if err != nil {
		f.logger.Warn("evaluating trace id", "output", frame.Output, "error", err)
		warnings = append(warnings, attribute.String("_trace_id_error", err.Error()))
	}
	warnings = append(warnings, w...)

	parentID, w, err := f.parentIDEvaluator.EvaluateAndValidate(frame)
	if err != nil {
		f.logger.Warn("evaluating parent id", "output", frame.Output, "error", err)
		warnings = append(warnings, attribute.String("_parent_id_error", err.Error()))
	}
	warnings = append(warnings, w...)

	session := f.sessionSpan.SpanContext()
	if !traceID.IsValid() {
		if !parentID.IsValid() {
			return f.sessionCtx, warnings
		}
		traceID = session.TraceID()
	}
	if !parentID.IsValid() {
		parentID = session.SpanID()
	}

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     parentID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(context.Background(), parent), warnings
}

// Close ends the session span, recording how many frames each output produced.
func (f *OTELFormatter) Close() error {
	for _, output := range f.metadataManager.Outputs() {
		//nolint:gosec // frame counts stay far below MaxInt64
		f.sessionSpan.SetAttributes(attribute.Int64(
			fmt.Sprintf("vmdisplay.output.%d.frames", output),
			int64(f.metadataManager.Frames(output)),
		))
	}
	f.sessionSpan.End()
	return nil
}
