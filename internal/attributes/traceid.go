package attributes

import (
	"crypto/sha256"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/vmdisplay-receiver/internal/outputmeta"
)

// TraceIDEvaluator handles evaluation and validation of trace ID expressions.
type TraceIDEvaluator struct {
	program *vm.Program
	environ map[string]string
}

// NewTraceIDEvaluator creates a new trace ID evaluator.
// If exprStr is empty, the evaluator returns zero trace IDs.
func NewTraceIDEvaluator(exprStr string, environ map[string]string) (*TraceIDEvaluator, error) {
	if exprStr == "" {
		return &TraceIDEvaluator{}, nil
	}

	program, err := expr.Compile(exprStr, expr.Env(typeEnv()))
	if err != nil {
		return nil, fmt.Errorf("failed to compile trace-id expression: %w", err)
	}

	return &TraceIDEvaluator{program: program, environ: environ}, nil
}

// EvaluateAndValidate evaluates the trace-id expression for a frame.
// A result that is not 32 hex characters is hashed with SHA-256, and the
// returned warnings say so. Without an expression the trace ID is zero.
func (e *TraceIDEvaluator) EvaluateAndValidate(frame *outputmeta.FrameInfo) (trace.TraceID, []attribute.KeyValue, error) {
	if e.program == nil {
		return trace.TraceID{}, nil, nil
	}
	if frame == nil {
		return trace.TraceID{}, nil, fmt.Errorf("no frame available")
	}

	output, err := expr.Run(e.program, frameEnv(e.environ, frame))
	if err != nil {
		return trace.TraceID{}, nil, fmt.Errorf("failed to evaluate trace-id expression: %w", err)
	}

	resultStr := fmt.Sprint(output)
	if len(resultStr) == 32 {
		if traceID, err := trace.TraceIDFromHex(resultStr); err == nil {
			return traceID, nil, nil
		}
	}

	hash := sha256.Sum256([]byte(resultStr))
	var traceID trace.TraceID
	copy(traceID[:], hash[:16])

	warnings := []attribute.KeyValue{
		attribute.String("_trace_id_expr_result", resultStr),
		attribute.String("_trace_id_invalid_warning", fmt.Sprintf("Expression result %q is not a valid 32-char hex trace ID, used SHA-256 hash instead", resultStr)),
	}
	return traceID, warnings, nil
}

// ParentIDEvaluator handles evaluation and validation of parent span ID expressions.
type ParentIDEvaluator struct {
	program *vm.Program
	environ map[string]string
}

// NewParentIDEvaluator creates a new parent ID evaluator.
// If exprStr is empty, the evaluator returns zero span IDs (no parent).
func NewParentIDEvaluator(exprStr string, environ map[string]string) (*ParentIDEvaluator, error) {
	if exprStr == "" {
		return &ParentIDEvaluator{}, nil
	}

	program, err := expr.Compile(exprStr, expr.Env(typeEnv()))
	if err != nil {
		return nil, fmt.Errorf("failed to compile parent-id expression: %w", err)
	}

	return &ParentIDEvaluator{program: program, environ: environ}, nil
}

// EvaluateAndValidate evaluates the parent-id expression for a frame.
// A result that is not 16 hex characters yields a zero span ID and warnings.
func (e *ParentIDEvaluator) EvaluateAndValidate(frame *outputmeta.FrameInfo) (trace.SpanID, []attribute.KeyValue, error) {
	if e.program == nil {
		return trace.SpanID{}, nil, nil
	}
	if frame == nil {
		return trace.SpanID{}, nil, fmt.Errorf("no frame available")
	}

	output, err := expr.Run(e.program, frameEnv(e.environ, frame))
	if err != nil {
		return trace.SpanID{}, nil, fmt.Errorf("failed to evaluate parent-id expression: %w", err)
	}

	resultStr := fmt.Sprint(output)
	if len(resultStr) == 16 {
		if spanID, err := trace.SpanIDFromHex(resultStr); err == nil {
			return spanID, nil, nil
		}
	}

	warnings := []attribute.KeyValue{
		attribute.String("_parent_id_expr_result", resultStr),
		attribute.String("_parent_id_invalid_warning", fmt.Sprintf("Expression result %q is not a valid 16-char hex span ID, using null parent ID instead", resultStr)),
	}
	return trace.SpanID{}, warnings, nil
}
