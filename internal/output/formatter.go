package output

import (
	"errors"

	"github.com/mrzor/vmdisplay-receiver/internal/outputmeta"
)

// FrameHandler is the interface for frame sinks. previous is the prior
// frame of the same output, or nil for its first frame.
type FrameHandler interface {
	HandleFrame(frame, previous *outputmeta.FrameInfo) error
}

// Multi hands each frame to every handler in order. All handlers run even
// if some fail; their errors are joined.
type Multi []FrameHandler

// HandleFrame implements FrameHandler.
func (m Multi) HandleFrame(frame, previous *outputmeta.FrameInfo) error {
	var errs []error
	for _, h := range m {
		if err := h.HandleFrame(frame, previous); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
