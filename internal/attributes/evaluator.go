package attributes

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mrzor/vmdisplay-receiver/internal/config"
	"github.com/mrzor/vmdisplay-receiver/internal/outputmeta"
)

// Evaluator handles compilation and evaluation of custom attribute expressions.
type Evaluator struct {
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
	environ       map[string]string
}

// NewEvaluator creates a new attribute evaluator.
// It pre-compiles all custom attribute expressions. environ is exposed to
// expressions as env.
func NewEvaluator(customAttrs []config.CustomAttribute, environ map[string]string) (*Evaluator, error) {
	compiledExprs := make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		program, err := expr.Compile(attr.Expression, expr.Env(typeEnv()))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for attribute %q: %w", attr.Name, err)
		}
		compiledExprs[i] = program
	}

	return &Evaluator{
		customAttrs:   customAttrs,
		compiledExprs: compiledExprs,
		environ:       environ,
	}, nil
}

// EvaluateCustomAttributes evaluates custom attribute expressions for a frame.
// Attributes whose expression fails at runtime are skipped and reported in
// the returned error; the others are still returned.
func (e *Evaluator) EvaluateCustomAttributes(frame *outputmeta.FrameInfo) ([]attribute.KeyValue, error) {
	if len(e.customAttrs) == 0 || frame == nil {
		return nil, nil
	}

	env := frameEnv(e.environ, frame)

	var attrs []attribute.KeyValue
	var errs []error
	for i, customAttr := range e.customAttrs {
		output, err := expr.Run(e.compiledExprs[i], env)
		if err != nil {
			errs = append(errs, fmt.Errorf("evaluating attribute %q: %w", customAttr.Name, err))
			continue
		}
		attrs = append(attrs, toAttributes(customAttr.Name, output)...)
	}

	return attrs, errors.Join(errs...)
}

// toAttributes converts an expression result. Maps expand into one
// attribute per key, with the key appended to name.
func toAttributes(name string, output any) []attribute.KeyValue {
	outputValue := reflect.ValueOf(output)
	if outputValue.Kind() != reflect.Map {
		return []attribute.KeyValue{attribute.String(name, fmt.Sprint(output))}
	}

	attrs := make([]attribute.KeyValue, 0, outputValue.Len())
	for _, key := range outputValue.MapKeys() {
		attrName := name + "." + sanitizeAttributeName(fmt.Sprint(key.Interface()))
		attrs = append(attrs, attribute.String(attrName, fmt.Sprint(outputValue.MapIndex(key).Interface())))
	}
	return attrs
}

// sanitizeAttributeName replaces non-alphanumeric characters with underscores.
func sanitizeAttributeName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}
