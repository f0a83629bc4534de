// Package record decodes the fixed-size event records delivered by the
// hyper_dmabuf channel and the frame regions assembled from them.
package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire sizes, in bytes. All fields are little-endian and packed.
const (
	EventHeaderSize = 24
	HeaderSize      = 24
	DescriptorSize  = 160
	Size            = EventHeaderSize + HeaderSize + DescriptorSize

	// descriptorIDOffset is where the hyper_dmabuf id lives inside a descriptor.
	descriptorIDOffset = 56
	bufferIDSize       = 16
)

// MaxOutputs is the default number of display outputs.
const MaxOutputs = 4

var (
	// ErrShortRecord is returned when a block is smaller than one record.
	ErrShortRecord = errors.New("short record")
	// ErrShortFrame is returned when a frame region cannot hold its declared buffers.
	ErrShortFrame = errors.New("short frame region")
)

// BufferID is the transport-assigned identifier of a shared buffer.
type BufferID struct {
	Key    int32
	RngKey [3]int32
}

// String formats the id as key:rng0rng1rng2 in hex.
func (id BufferID) String() string {
	//nolint:gosec // reinterpreting key bits for display
	return fmt.Sprintf("%d:%08x%08x%08x", id.Key, uint32(id.RngKey[0]), uint32(id.RngKey[1]), uint32(id.RngKey[2]))
}

// IsZero reports whether the id is unset.
func (id BufferID) IsZero() bool {
	return id == BufferID{}
}

// EventHeader prefixes every record and identifies the shared buffer it refers to.
type EventHeader struct {
	Type int32
	ID   BufferID
	Size int32
}

// FrameHeader describes the frame a record belongs to. The same layout is
// written at the start of each output's destination region.
type FrameHeader struct {
	Version       int32
	Output        int32
	Counter       int32 // frame sequence number, per transport
	BufferCount   int32 // declared number of buffers in the frame
	DisplayWidth  int32
	DisplayHeight int32
}

// Encode writes the header into the first HeaderSize bytes of b.
func (h FrameHeader) Encode(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("encoding frame header: %w: have %d bytes, need %d", ErrShortFrame, len(b), HeaderSize)
	}
	if _, err := binary.Encode(b[:HeaderSize], binary.LittleEndian, h); err != nil {
		return fmt.Errorf("encoding frame header: %w", err)
	}
	return nil
}

// BufferDescriptor is the opaque metadata of one shared buffer. Only the
// identifier field is interpreted.
type BufferDescriptor [DescriptorSize]byte

// ID returns the buffer identifier stored in the descriptor.
func (d *BufferDescriptor) ID() BufferID {
	raw := d[descriptorIDOffset : descriptorIDOffset+bufferIDSize]
	//nolint:gosec // reinterpreting wire bits as signed C ints
	return BufferID{
		Key: int32(binary.LittleEndian.Uint32(raw[0:4])),
		RngKey: [3]int32{
			int32(binary.LittleEndian.Uint32(raw[4:8])),
			int32(binary.LittleEndian.Uint32(raw[8:12])),
			int32(binary.LittleEndian.Uint32(raw[12:16])),
		},
	}
}

// SetID overwrites the buffer identifier stored in the descriptor.
func (d *BufferDescriptor) SetID(id BufferID) {
	raw := d[descriptorIDOffset : descriptorIDOffset+bufferIDSize]
	//nolint:gosec // reinterpreting signed C ints as wire bits
	binary.LittleEndian.PutUint32(raw[0:4], uint32(id.Key))
	for i, k := range id.RngKey {
		//nolint:gosec // reinterpreting signed C ints as wire bits
		binary.LittleEndian.PutUint32(raw[4+4*i:8+4*i], uint32(k))
	}
}

// Record is one decoded event record. It is an owned copy and stays valid
// after further reads.
type Record struct {
	Event  EventHeader
	Header FrameHeader
	Buffer BufferDescriptor
}

// Decode interprets the first Size bytes of b as a record and stamps the
// descriptor's identifier with the event's buffer id.
func Decode(b []byte) (Record, error) {
	if len(b) < Size {
		return Record{}, fmt.Errorf("%w: got %d bytes, want %d", ErrShortRecord, len(b), Size)
	}

	var rec Record
	if err := binary.Read(bytes.NewReader(b[:Size]), binary.LittleEndian, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding record: %w", err)
	}
	rec.Buffer.SetID(rec.Event.ID)
	return rec, nil
}

// MarshalBinary encodes the record in wire layout.
func (r Record) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, Size))
	if err := binary.Write(buf, binary.LittleEndian, r); err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return buf.Bytes(), nil
}

// Frame is a decoded destination region: the finalized header followed by
// exactly Header.BufferCount descriptors.
type Frame struct {
	Header  FrameHeader
	Buffers []BufferDescriptor
}

// BufferIDs returns the identifiers of the frame's buffers in order.
func (f Frame) BufferIDs() []BufferID {
	ids := make([]BufferID, len(f.Buffers))
	for i := range f.Buffers {
		ids[i] = f.Buffers[i].ID()
	}
	return ids
}

// FrameRegionSize returns the destination size needed for frames of up to maxBuffers buffers.
func FrameRegionSize(maxBuffers int) int {
	return HeaderSize + maxBuffers*DescriptorSize
}

// DecodeFrame reads a frame back out of a destination region. The returned
// frame copies the region, so the region may be reused afterwards.
func DecodeFrame(region []byte) (Frame, error) {
	if len(region) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: have %d bytes, need %d for header", ErrShortFrame, len(region), HeaderSize)
	}

	var frame Frame
	if _, err := binary.Decode(region[:HeaderSize], binary.LittleEndian, &frame.Header); err != nil {
		return Frame{}, fmt.Errorf("decoding frame header: %w", err)
	}

	count := int(frame.Header.BufferCount)
	if count < 0 {
		return Frame{}, fmt.Errorf("%w: negative buffer count %d", ErrShortFrame, count)
	}
	if need := FrameRegionSize(count); need > len(region) {
		return Frame{}, fmt.Errorf("%w: %d buffers need %d bytes, have %d", ErrShortFrame, count, need, len(region))
	}

	frame.Buffers = make([]BufferDescriptor, count)
	for i := range frame.Buffers {
		off := HeaderSize + i*DescriptorSize
		copy(frame.Buffers[i][:], region[off:off+DescriptorSize])
	}
	return frame, nil
}
