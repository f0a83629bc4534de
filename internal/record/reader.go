package record

import (
	"context"
	"log/slog"
)

// RawReader is the blocking read primitive of a channel.
type RawReader interface {
	Read(ctx context.Context, p []byte) (int, error)
}

// Reader pulls whole records from a RawReader through a single scratch buffer.
type Reader struct {
	src        RawReader
	scratch    []byte
	logger     *slog.Logger
	shortReads uint64
}

// NewReader creates a Reader over src. A nil logger uses slog.Default.
func NewReader(src RawReader, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		src:     src,
		scratch: make([]byte, Size),
		logger:  logger,
	}
}

// Next blocks until a complete record is read. Short blocks are discarded and
// the read is retried; errors from the underlying reader are returned as-is.
func (r *Reader) Next(ctx context.Context) (Record, error) {
	for {
		n, err := r.src.Read(ctx, r.scratch)
		if err != nil {
			return Record{}, err
		}

		rec, err := Decode(r.scratch[:n])
		if err != nil {
			r.shortReads++
			r.logger.Debug("discarding short record", "bytes", n, "want", Size)
			continue
		}
		return rec, nil
	}
}

// ShortReads returns how many short blocks have been discarded.
func (r *Reader) ShortReads() uint64 {
	return r.shortReads
}
