// Package attributes provides expression evaluation and validation for custom
// span attributes, trace IDs, and parent span IDs of frame spans.
//
// Expressions are evaluated with the expr language against one completed
// frame:
//
//	env      map[string]string  receiver environment
//	domain   int                sending domain
//	output   int                display output index
//	counter  int                frame sequence number
//	version  int                frame header version
//	width    int                display width
//	height   int                display height
//	buffers  int                number of buffers in the frame
//	ids      []string           buffer ids, "key:rng" form
//	keys     []int              buffer id keys
//
// Three evaluators:
//   - Evaluator: Evaluates custom attribute expressions
//   - TraceIDEvaluator: Evaluates and validates trace ID expressions (32 hex chars)
//   - ParentIDEvaluator: Evaluates and validates parent span ID expressions (16 hex chars)
//
// Invalid trace IDs are hashed with SHA-256 to produce valid IDs.
// Invalid parent IDs result in a null parent (zero span ID).
package attributes
