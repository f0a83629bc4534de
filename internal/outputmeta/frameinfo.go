package outputmeta

import (
	"time"

	"github.com/mrzor/vmdisplay-receiver/internal/record"
)

// FrameInfo is one completed frame as seen by the sinks.
type FrameInfo struct {
	Domain     int
	Output     int
	Header     record.FrameHeader
	Buffers    []record.BufferDescriptor
	ReceivedAt time.Time
}

// NewFrameInfo builds a FrameInfo from a frame decoded out of output's region.
func NewFrameInfo(domain, output int, frame *record.Frame, receivedAt time.Time) *FrameInfo {
	return &FrameInfo{
		Domain:     domain,
		Output:     output,
		Header:     frame.Header,
		Buffers:    frame.Buffers,
		ReceivedAt: receivedAt,
	}
}

// BufferIDs returns the hyper_dmabuf ids of the frame's buffers.
func (f *FrameInfo) BufferIDs() []record.BufferID {
	ids := make([]record.BufferID, len(f.Buffers))
	for i := range f.Buffers {
		ids[i] = f.Buffers[i].ID()
	}
	return ids
}

// Interval returns the time since prev was received, or zero without prev.
func (f *FrameInfo) Interval(prev *FrameInfo) time.Duration {
	if prev == nil {
		return 0
	}
	return f.ReceivedAt.Sub(prev.ReceivedAt)
}
