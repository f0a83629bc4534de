package attributes

import (
	"github.com/mrzor/vmdisplay-receiver/internal/outputmeta"
)

// typeEnv declares the variables expressions may use, for compile-time checks.
func typeEnv() map[string]any {
	return map[string]any{
		"env":     map[string]string{},
		"domain":  0,
		"output":  0,
		"counter": 0,
		"version": 0,
		"width":   0,
		"height":  0,
		"buffers": 0,
		"ids":     []string{},
		"keys":    []int{},
	}
}

// frameEnv builds the evaluation environment for one frame. environ is the
// receiver's own environment.
func frameEnv(environ map[string]string, frame *outputmeta.FrameInfo) map[string]any {
	bufferIDs := frame.BufferIDs()
	ids := make([]string, len(bufferIDs))
	keys := make([]int, len(bufferIDs))
	for i, id := range bufferIDs {
		ids[i] = id.String()
		keys[i] = int(id.Key)
	}

	if environ == nil {
		environ = map[string]string{}
	}

	return map[string]any{
		"env":     environ,
		"domain":  frame.Domain,
		"output":  frame.Output,
		"counter": int(frame.Header.Counter),
		"version": int(frame.Header.Version),
		"width":   int(frame.Header.DisplayWidth),
		"height":  int(frame.Header.DisplayHeight),
		"buffers": len(bufferIDs),
		"ids":     ids,
		"keys":    keys,
	}
}
