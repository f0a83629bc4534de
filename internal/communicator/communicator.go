// Package communicator exposes the hyper_dmabuf channel to the display
// pipeline as a receive-only data and metadata communicator.
//
// For returns the variant matching a direction: Receiver is implemented,
// while the send direction is represented by a variant whose every
// operation fails with ErrUnsupportedDirection.
package communicator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrzor/vmdisplay-receiver/internal/channel"
	"github.com/mrzor/vmdisplay-receiver/internal/framereassembler"
	"github.com/mrzor/vmdisplay-receiver/internal/record"
)

// Direction is the data direction requested at Init.
type Direction = channel.Direction

// Directions accepted by Init.
const (
	Send    = channel.Send
	Receive = channel.Receive
)

var (
	// ErrUnsupportedDirection is returned for send-direction use.
	ErrUnsupportedDirection = channel.ErrUnsupportedDirection
	// ErrNotInitialized is returned by receive calls before a successful Init.
	ErrNotInitialized = errors.New("communicator not initialized")
	// ErrAlreadyInitialized is returned by Init when the channel is already open.
	ErrAlreadyInitialized = errors.New("communicator already initialized")
)

// Communicator is the contract the display pipeline depends on.
type Communicator interface {
	// Init opens the channel for domainID in the given direction.
	Init(domainID int, dir Direction, args string) error
	// Cleanup releases the channel. It is safe to call repeatedly.
	Cleanup() error
	// RecvData blocks until raw bytes are available and reads them into p.
	RecvData(ctx context.Context, p []byte) (int, error)
	// SendData transmits p to the other domain.
	SendData(p []byte) (int, error)
	// RecvMetadata blocks until one output's frame is assembled in dst and
	// returns that output's index.
	RecvMetadata(ctx context.Context, dst [][]byte) (int, error)
}

type options struct {
	devicePaths  []string
	pollInterval time.Duration
	maxOutputs   int
	boundaryMode framereassembler.BoundaryMode
	logger       *slog.Logger
}

// Option configures a Receiver.
type Option func(*options)

// WithDevicePaths overrides the device paths tried at Init.
func WithDevicePaths(paths ...string) Option {
	return func(o *options) {
		o.devicePaths = paths
	}
}

// WithPollInterval sets how often a blocked receive checks its context.
func WithPollInterval(interval time.Duration) Option {
	return func(o *options) {
		o.pollInterval = interval
	}
}

// WithMaxOutputs sets the number of display outputs.
func WithMaxOutputs(n int) Option {
	return func(o *options) {
		o.maxOutputs = n
	}
}

// WithBoundaryMode selects how frame boundaries are tracked across outputs.
func WithBoundaryMode(mode framereassembler.BoundaryMode) Option {
	return func(o *options) {
		o.boundaryMode = mode
	}
}

// WithLogger sets the logger passed down to the channel and reassembler.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// For returns the communicator variant for dir.
func For(dir Direction, opts ...Option) Communicator {
	if dir == Receive {
		return NewReceiver(opts...)
	}
	return sender{}
}

var (
	_ Communicator = (*Receiver)(nil)
	_ Communicator = sender{}
)

// Receiver receives frame metadata from another domain over hyper_dmabuf.
// It must not be used from more than one goroutine at a time.
type Receiver struct {
	opts        options
	domainID    int
	dev         *channel.Device
	reader      *record.Reader
	reassembler *framereassembler.Reassembler
}

// NewReceiver creates an uninitialized Receiver.
func NewReceiver(opts ...Option) *Receiver {
	o := options{
		devicePaths:  channel.DefaultPaths,
		pollInterval: channel.DefaultPollInterval,
		maxOutputs:   record.MaxOutputs,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Receiver{opts: o, domainID: -1}
}

// Init opens the channel. Only the receive direction is accepted; any other
// direction fails before anything is opened. args is accepted and ignored.
func (r *Receiver) Init(domainID int, dir Direction, _ string) error {
	if dir != Receive {
		return fmt.Errorf("initializing domain %d for %s: %w", domainID, dir, ErrUnsupportedDirection)
	}
	if r.dev != nil {
		return ErrAlreadyInitialized
	}

	dev, err := channel.Open(channel.Receive,
		channel.WithPaths(r.opts.devicePaths...),
		channel.WithPollInterval(r.opts.pollInterval),
		channel.WithLogger(r.opts.logger),
	)
	if err != nil {
		return fmt.Errorf("initializing domain %d: %w", domainID, err)
	}

	r.dev = dev
	r.domainID = domainID
	r.reader = record.NewReader(dev, r.opts.logger)
	r.reassembler = framereassembler.New(r.reader,
		framereassembler.WithMaxOutputs(r.opts.maxOutputs),
		framereassembler.WithBoundaryMode(r.opts.boundaryMode),
		framereassembler.WithLogger(r.opts.logger),
	)

	r.opts.logger.Info("hyper_dmabuf receiver ready",
		"domain", domainID,
		"device", dev.Path(),
		"outputs", r.reassembler.MaxOutputs(),
		"boundaries", r.opts.boundaryMode.String())
	return nil
}

// Cleanup closes the channel and drops reassembly state. It is a no-op when
// nothing is open, including after a failed Init.
func (r *Receiver) Cleanup() error {
	if r.dev == nil {
		return nil
	}

	err := r.dev.Close()
	r.dev = nil
	r.reader = nil
	r.reassembler = nil
	r.domainID = -1
	return err
}

// RecvData blocks until the channel is readable and performs one read into p.
func (r *Receiver) RecvData(ctx context.Context, p []byte) (int, error) {
	if r.dev == nil {
		return -1, ErrNotInitialized
	}
	return r.dev.Read(ctx, p)
}

// SendData always fails: hyper_dmabuf is receive-only here.
func (r *Receiver) SendData(_ []byte) (int, error) {
	return -1, fmt.Errorf("sending data: %w", ErrUnsupportedDirection)
}

// RecvMetadata blocks until a frame is complete for some output, writes it
// into dst[output] and returns the output index. dst needs one region per output.
func (r *Receiver) RecvMetadata(ctx context.Context, dst [][]byte) (int, error) {
	if r.reassembler == nil {
		return -1, ErrNotInitialized
	}
	return r.reassembler.Next(ctx, dst)
}

// DomainID returns the domain passed to Init, or -1 when not initialized.
func (r *Receiver) DomainID() int {
	return r.domainID
}

// MaxOutputs returns the number of outputs RecvMetadata expects regions for.
func (r *Receiver) MaxOutputs() int {
	if r.reassembler != nil {
		return r.reassembler.MaxOutputs()
	}
	return max(r.opts.maxOutputs, 1)
}

// Stats returns reassembly counters and the number of discarded short reads.
func (r *Receiver) Stats() (framereassembler.Stats, uint64) {
	if r.reassembler == nil {
		return framereassembler.Stats{}, 0
	}
	return r.reassembler.Stats(), r.reader.ShortReads()
}

// sender is the send-direction variant.
type sender struct{}

func (sender) Init(domainID int, dir Direction, _ string) error {
	return fmt.Errorf("initializing domain %d for %s: %w", domainID, dir, ErrUnsupportedDirection)
}

func (sender) Cleanup() error { return nil }

func (sender) RecvData(context.Context, []byte) (int, error) {
	return -1, ErrUnsupportedDirection
}

func (sender) SendData([]byte) (int, error) {
	return -1, ErrUnsupportedDirection
}

func (sender) RecvMetadata(context.Context, [][]byte) (int, error) {
	return -1, ErrUnsupportedDirection
}
