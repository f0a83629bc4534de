package framereassembler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mrzor/vmdisplay-receiver/internal/record"
)

// Source yields decoded records, blocking until one is available.
type Source interface {
	Next(ctx context.Context) (record.Record, error)
}

// BoundaryMode selects how frame boundaries are tracked across outputs.
type BoundaryMode int

const (
	// BoundaryGlobal keeps a single in-progress frame and sequence number for
	// all outputs. A record with a different sequence number or output closes it.
	BoundaryGlobal BoundaryMode = iota
	// BoundaryPerOutput keeps one in-progress frame per output, so interleaved
	// outputs do not close each other's frames.
	BoundaryPerOutput
)

// String returns the flag spelling of the mode.
func (m BoundaryMode) String() string {
	switch m {
	case BoundaryGlobal:
		return "global"
	case BoundaryPerOutput:
		return "per-output"
	default:
		return fmt.Sprintf("BoundaryMode(%d)", int(m))
	}
}

// ParseBoundaryMode parses "global" or "per-output".
func ParseBoundaryMode(s string) (BoundaryMode, error) {
	switch s {
	case "", "global":
		return BoundaryGlobal, nil
	case "per-output":
		return BoundaryPerOutput, nil
	default:
		return 0, fmt.Errorf("unknown boundary mode %q (want global or per-output)", s)
	}
}

var (
	// ErrTooFewOutputs is returned when fewer destination buffers than outputs are passed.
	ErrTooFewOutputs = errors.New("fewer destination buffers than outputs")
	// ErrDestinationFull is returned when an output's destination cannot hold another buffer.
	ErrDestinationFull = errors.New("destination buffer full")
)

// Stats counts reassembler activity since creation or the last Reset.
type Stats struct {
	Records     uint64 // records read from the source
	Dropped     uint64 // records with an out-of-range output
	Frames      uint64 // frames emitted
	EarlyFrames uint64 // frames closed by a boundary before reaching their declared count
}

// frame is an in-progress frame. All folded records share header.Counter.
type frame struct {
	header record.FrameHeader // from the first folded record
	count  int32
	active bool
}

// Reassembler folds a record stream into complete per-output frames written
// into caller-owned destination buffers. It is not safe for concurrent use.
type Reassembler struct {
	src        Source
	mode       BoundaryMode
	maxOutputs int
	logger     *slog.Logger

	offsets    []int   // write cursor per output
	frames     []frame // one slot (global) or one per output
	pending    record.Record
	hasPending bool
	stats      Stats
}

// Option configures a Reassembler.
type Option func(*Reassembler)

// WithMaxOutputs sets the number of valid outputs. Records for other outputs are dropped.
func WithMaxOutputs(n int) Option {
	return func(r *Reassembler) {
		if n > 0 {
			r.maxOutputs = n
		}
	}
}

// WithBoundaryMode selects global or per-output boundary tracking.
func WithBoundaryMode(mode BoundaryMode) Option {
	return func(r *Reassembler) {
		r.mode = mode
	}
}

// WithLogger sets the logger for dropped records and emitted frames.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reassembler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Reassembler reading from src.
func New(src Source, opts ...Option) *Reassembler {
	r := &Reassembler{
		src:        src,
		mode:       BoundaryGlobal,
		maxOutputs: record.MaxOutputs,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Reset()
	return r
}

// MaxOutputs returns the number of valid outputs.
func (r *Reassembler) MaxOutputs() int {
	return r.maxOutputs
}

// Reset discards any in-progress frame and carried-over record and rewinds
// every write cursor. Stats are cleared.
func (r *Reassembler) Reset() {
	r.offsets = make([]int, r.maxOutputs)
	for i := range r.offsets {
		r.offsets[i] = record.HeaderSize
	}
	slots := 1
	if r.mode == BoundaryPerOutput {
		slots = r.maxOutputs
	}
	r.frames = make([]frame, slots)
	r.pending = record.Record{}
	r.hasPending = false
	r.stats = Stats{}
}

// Offset returns the current write cursor of output o.
func (r *Reassembler) Offset(o int) int {
	return r.offsets[o]
}

// Stats returns a snapshot of the counters.
func (r *Reassembler) Stats() Stats {
	return r.stats
}

// Next blocks until one output's frame is complete, writes its finalized
// header at offset 0 of dst[output], and returns the output index.
//
// dst must hold one region per output. A frame completes when a record
// arrives that belongs to another frame (that record is kept for the next
// call) or when the running count reaches the declared buffer count.
// Source errors are returned unchanged and leave in-progress state intact.
func (r *Reassembler) Next(ctx context.Context, dst [][]byte) (int, error) {
	if len(dst) < r.maxOutputs {
		return -1, fmt.Errorf("%w: got %d, want %d", ErrTooFewOutputs, len(dst), r.maxOutputs)
	}

	for {
		rec, err := r.next(ctx)
		if err != nil {
			return -1, err
		}

		out := int(rec.Header.Output)
		if out < 0 || out >= r.maxOutputs {
			r.stats.Dropped++
			r.logger.Debug("dropping record for unknown output",
				"output", rec.Header.Output,
				"counter", rec.Header.Counter,
				"max_outputs", r.maxOutputs)
			continue
		}

		f := r.frameFor(out)
		if f.active && (f.header.Counter != rec.Header.Counter || int(f.header.Output) != out) {
			r.pending = rec
			r.hasPending = true
			r.stats.EarlyFrames++
			return r.emit(f, dst)
		}

		if err := r.fold(f, rec, dst[out]); err != nil {
			return -1, err
		}

		if f.count >= rec.Header.BufferCount {
			return r.emit(f, dst)
		}
	}
}

// next returns the carried-over record if there is one, otherwise reads.
func (r *Reassembler) next(ctx context.Context) (record.Record, error) {
	if r.hasPending {
		r.hasPending = false
		return r.pending, nil
	}

	rec, err := r.src.Next(ctx)
	if err != nil {
		return record.Record{}, err
	}
	r.stats.Records++
	return rec, nil
}

func (r *Reassembler) frameFor(out int) *frame {
	if r.mode == BoundaryPerOutput {
		return &r.frames[out]
	}
	return &r.frames[0]
}

// fold appends rec's descriptor at its output's cursor.
func (r *Reassembler) fold(f *frame, rec record.Record, region []byte) error {
	out := int(rec.Header.Output)
	off := r.offsets[out]
	end := off + record.DescriptorSize
	if end > len(region) {
		return fmt.Errorf("%w: output %d has %d bytes, buffer %d of frame %d needs %d",
			ErrDestinationFull, out, len(region), f.count+1, rec.Header.Counter, end)
	}

	copy(region[off:end], rec.Buffer[:])
	r.offsets[out] = end

	if !f.active {
		f.header = rec.Header
		f.active = true
	}
	f.count++
	return nil
}

// emit finalizes f into its output's header slot and clears it.
func (r *Reassembler) emit(f *frame, dst [][]byte) (int, error) {
	out := int(f.header.Output)
	header := f.header
	header.BufferCount = f.count

	*f = frame{}
	r.offsets[out] = record.HeaderSize

	if err := header.Encode(dst[out]); err != nil {
		return -1, fmt.Errorf("finalizing frame for output %d: %w", out, err)
	}

	r.stats.Frames++
	r.logger.Debug("frame complete",
		"output", out,
		"counter", header.Counter,
		"buffers", header.BufferCount)
	return out, nil
}
