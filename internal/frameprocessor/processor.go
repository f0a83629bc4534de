package frameprocessor

import (
	"fmt"
	"time"

	"github.com/mrzor/vmdisplay-receiver/internal/outputmeta"
	"github.com/mrzor/vmdisplay-receiver/internal/record"
)

// FrameEventHandler handles processed frames. previous is the prior frame of
// the same output, or nil.
type FrameEventHandler interface {
	HandleFrame(frame, previous *outputmeta.FrameInfo) error
}

// Processor turns frames decoded from destination regions into FrameInfo
// records, keeps per-output history, and hands them to a FrameEventHandler.
type Processor struct {
	domain          int
	metadataManager *outputmeta.Manager
	handler         FrameEventHandler
	now             func() time.Time
}

// NewProcessor creates a processor for frames sent by domain.
func NewProcessor(domain int, metadataManager *outputmeta.Manager, handler FrameEventHandler) *Processor {
	return &Processor{
		domain:          domain,
		metadataManager: metadataManager,
		handler:         handler,
		now:             time.Now,
	}
}

// HandleRegion records a frame received on output and forwards it.
func (p *Processor) HandleRegion(output int, frame *record.Frame) error {
	info := outputmeta.NewFrameInfo(p.domain, output, frame, p.now())
	previous := p.metadataManager.Record(info)

	if issues := inspect(info, previous); len(issues) > 0 {
		p.metadataManager.AddIssues(output, issues)
	}

	return p.handler.HandleFrame(info, previous)
}

// inspect reports anomalies of a frame relative to its output's previous frame.
func inspect(frame, previous *outputmeta.FrameInfo) []string {
	var issues []string

	if int(frame.Header.Output) != frame.Output {
		issues = append(issues, fmt.Sprintf("header names output %d but frame arrived on output %d",
			frame.Header.Output, frame.Output))
	}
	if previous != nil && frame.Header.Counter <= previous.Header.Counter {
		issues = append(issues, fmt.Sprintf("sequence number %d does not advance past %d",
			frame.Header.Counter, previous.Header.Counter))
	}
	for i, id := range frame.BufferIDs() {
		if id.IsZero() {
			issues = append(issues, fmt.Sprintf("buffer %d has no hyper_dmabuf id", i))
		}
	}

	return issues
}
