package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// Direction selects which way data flows through the channel.
type Direction int

// Channel directions. Only Receive is implemented.
const (
	Send Direction = iota
	Receive
)

// String returns the lowercase direction name.
func (d Direction) String() string {
	switch d {
	case Send:
		return "send"
	case Receive:
		return "receive"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// DefaultPaths are the device nodes tried by Open, in order.
var DefaultPaths = []string{"/dev/hyper_dmabuf", "/dev/xen/hyper_dmabuf"}

// DefaultPollInterval bounds each poll(2) wait when the read context is cancellable.
const DefaultPollInterval = 100 * time.Millisecond

var (
	// ErrUnsupportedDirection is returned for any attempt to send through the channel.
	ErrUnsupportedDirection = errors.New("unsupported channel direction")
	// ErrChannelUnavailable is returned when no device path could be opened.
	ErrChannelUnavailable = errors.New("hyper_dmabuf device unavailable")
	// ErrChannelError is returned when the transport reports a fatal readiness condition.
	ErrChannelError = errors.New("hyper_dmabuf channel error")
	// ErrClosed is returned when reading from a closed device.
	ErrClosed = errors.New("hyper_dmabuf channel closed")
)

type options struct {
	paths        []string
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option configures Open.
type Option func(*options)

// WithPaths overrides the device paths tried by Open.
func WithPaths(paths ...string) Option {
	return func(o *options) {
		o.paths = paths
	}
}

// WithPollInterval sets how often a cancellable Read wakes up to check its context.
func WithPollInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.pollInterval = interval
		}
	}
}

// WithLogger sets the logger used for device lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Device is an open hyper_dmabuf character device.
// It is not safe for concurrent use.
type Device struct {
	fd           int
	path         string
	pollInterval time.Duration
	logger       *slog.Logger
}

// Open opens the channel for the given direction. Only Receive is supported;
// the configured paths are tried in order and the first that opens read-write wins.
func Open(dir Direction, opts ...Option) (*Device, error) {
	if dir != Receive {
		return nil, fmt.Errorf("opening %s channel: %w", dir, ErrUnsupportedDirection)
	}

	o := options{
		paths:        DefaultPaths,
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if len(o.paths) == 0 {
		return nil, fmt.Errorf("%w: no device paths configured", ErrChannelUnavailable)
	}

	var errs []error
	for _, path := range o.paths {
		fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err != nil {
			errs = append(errs, fmt.Errorf("opening %s: %w", path, err))
			continue
		}
		o.logger.Debug("opened hyper_dmabuf device", "path", path)
		return &Device{
			fd:           fd,
			path:         path,
			pollInterval: o.pollInterval,
			logger:       o.logger,
		}, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrChannelUnavailable, errors.Join(errs...))
}

// Path returns the device path that was opened.
func (d *Device) Path() string {
	return d.path
}

// Read blocks until the device is readable, then issues a single read(2) into p
// and returns its length. Short reads are returned as-is.
//
// Interrupted or transiently unavailable waits are retried. POLLERR, POLLNVAL and
// a hangup with no pending data are returned as ErrChannelError. If ctx can be
// cancelled, the wait wakes up every poll interval and returns ctx.Err() once the
// context is done; otherwise it blocks indefinitely.
func (d *Device) Read(ctx context.Context, p []byte) (int, error) {
	if d.fd < 0 {
		return 0, ErrClosed
	}

	timeout := -1
	if ctx.Done() != nil {
		timeout = max(int(d.pollInterval/time.Millisecond), 1)
	}

	//nolint:gosec // fd comes from open(2) and fits in int32
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		fds[0].Revents = 0
		ready, err := unix.Poll(fds, timeout)
		if err != nil {
			if isTransient(err) {
				continue
			}
			return 0, fmt.Errorf("%w: poll: %w", ErrChannelError, err)
		}
		if ready == 0 {
			continue // timeout, check ctx
		}

		if err := reventsError(fds[0].Revents); err != nil {
			return 0, err
		}

		n, err := unix.Read(d.fd, p)
		if err != nil {
			if isTransient(err) {
				d.logger.Debug("transient read failure, waiting again", "error", err)
				continue
			}
			return 0, fmt.Errorf("%w: read: %w", ErrChannelError, err)
		}
		return n, nil
	}
}

// Write always fails: the channel is receive-only.
func (d *Device) Write(_ []byte) (int, error) {
	return 0, fmt.Errorf("writing to hyper_dmabuf channel: %w", ErrUnsupportedDirection)
}

// Close releases the device handle. Calling Close more than once is a no-op.
// Closing while a Read is blocked is not supported; cancel the Read's context first.
func (d *Device) Close() error {
	if d == nil || d.fd < 0 {
		return nil
	}

	fd := d.fd
	d.fd = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("closing %s: %w", d.path, err)
	}
	d.logger.Debug("closed hyper_dmabuf device", "path", d.path)
	return nil
}

func isTransient(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)
}

// reventsError maps fatal poll(2) revents to ErrChannelError.
func reventsError(revents int16) error {
	switch {
	case revents&unix.POLLNVAL != 0:
		return fmt.Errorf("%w: device invalidated (POLLNVAL)", ErrChannelError)
	case revents&unix.POLLERR != 0:
		return fmt.Errorf("%w: device error (POLLERR)", ErrChannelError)
	case revents&unix.POLLHUP != 0 && revents&unix.POLLIN == 0:
		return fmt.Errorf("%w: device hung up (POLLHUP)", ErrChannelError)
	}
	return nil
}
