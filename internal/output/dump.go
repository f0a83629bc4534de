package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/mrzor/vmdisplay-receiver/internal/outputmeta"
)

// FrameDump is the CBOR record DumpWriter writes for each frame.
type FrameDump struct {
	Domain     int          `cbor:"domain"`
	Output     int          `cbor:"output"`
	Version    int32        `cbor:"version"`
	Counter    int32        `cbor:"counter"`
	Width      int32        `cbor:"width"`
	Height     int32        `cbor:"height"`
	ReceivedAt time.Time    `cbor:"received_at"`
	IntervalNS int64        `cbor:"interval_ns,omitempty"`
	Buffers    []BufferDump `cbor:"buffers"`
}

// BufferDump is one buffer of a FrameDump. Descriptor is the raw descriptor.
type BufferDump struct {
	ID         string `cbor:"id"`
	Descriptor []byte `cbor:"descriptor"`
}

// DumpWriter writes every frame as a CBOR data item, one after another.
type DumpWriter struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

// NewDumpWriter creates a DumpWriter on w using Core Deterministic Encoding,
// with timestamps as RFC 3339 strings.
func NewDumpWriter(w io.Writer) (*DumpWriter, error) {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err := encOptions.EncMode()
	if err != nil {
		return nil, fmt.Errorf("creating CBOR encoder: %w", err)
	}
	return &DumpWriter{enc: encMode.NewEncoder(w)}, nil
}

// HandleFrame implements FrameHandler.
func (d *DumpWriter) HandleFrame(frame, previous *outputmeta.FrameInfo) error {
	dump := FrameDump{
		Domain:     frame.Domain,
		Output:     frame.Output,
		Version:    frame.Header.Version,
		Counter:    frame.Header.Counter,
		Width:      frame.Header.DisplayWidth,
		Height:     frame.Header.DisplayHeight,
		ReceivedAt: frame.ReceivedAt,
		IntervalNS: frame.Interval(previous).Nanoseconds(),
		Buffers:    make([]BufferDump, len(frame.Buffers)),
	}
	for i := range frame.Buffers {
		dump.Buffers[i] = BufferDump{
			ID:         frame.Buffers[i].ID().String(),
			Descriptor: frame.Buffers[i][:],
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enc.Encode(dump); err != nil {
		return fmt.Errorf("writing frame dump for output %d: %w", frame.Output, err)
	}
	return nil
}
