// Package framestream runs the blocking receive loop on its own goroutine and
// dispatches each completed frame to a handler.
package framestream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mrzor/vmdisplay-receiver/internal/channel"
	"github.com/mrzor/vmdisplay-receiver/internal/framereassembler"
	"github.com/mrzor/vmdisplay-receiver/internal/record"
)

// Receiver assembles the next frame into dst and returns its output index.
type Receiver interface {
	RecvMetadata(ctx context.Context, dst [][]byte) (int, error)
}

// Handler receives frames decoded from destination regions.
type Handler interface {
	HandleRegion(output int, frame *record.Frame) error
}

// Stream reads frames from a Receiver and dispatches them to a handler.
type Stream struct {
	receiver Receiver
	dst      [][]byte
	handler  Handler
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	started bool
}

// New creates a Stream that assembles frames into dst.
func New(receiver Receiver, dst [][]byte, handler Handler, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		receiver: receiver,
		dst:      dst,
		handler:  handler,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins receiving frames in a goroutine.
// It returns immediately and processes frames in the background until the
// context is cancelled, Stop is called, or the channel fails.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("stream already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	go s.processFrames(ctx)
	return nil
}

// Stop cancels the receive loop and waits for it to exit.
func (s *Stream) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	<-s.done
	return nil
}

// Done is closed when the receive loop has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the loop, or nil if it was stopped.
// It is only meaningful after Done is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// processFrames is the main loop that receives and dispatches frames.
func (s *Stream) processFrames(ctx context.Context) {
	defer close(s.done)

	for {
		output, err := s.receiver.RecvMetadata(ctx, s.dst)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, channel.ErrClosed) {
				return
			}
			if errors.Is(err, framereassembler.ErrDestinationFull) {
				s.logger.Warn("dropping buffer that does not fit its destination", "error", err)
				continue
			}
			s.fail(fmt.Errorf("receiving frame: %w", err))
			return
		}

		frame, err := record.DecodeFrame(s.dst[output])
		if err != nil {
			s.logger.Warn("decoding frame", "output", output, "error", err)
			continue
		}

		if err := s.handler.HandleRegion(output, &frame); err != nil {
			s.logger.Warn("handling frame", "output", output, "counter", frame.Header.Counter, "error", err)
		}
	}
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
