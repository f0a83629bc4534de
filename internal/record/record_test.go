package record

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() Record {
	rec := Record{
		Event: EventHeader{
			Type: 2,
			ID:   BufferID{Key: 42, RngKey: [3]int32{7, -1, 9}},
			Size: 184,
		},
		Header: FrameHeader{
			Version:       1,
			Output:        1,
			Counter:       17,
			BufferCount:   3,
			DisplayWidth:  1280,
			DisplayHeight: 720,
		},
	}
	for i := range rec.Buffer {
		rec.Buffer[i] = byte(i)
	}
	return rec
}

func TestLayoutSizes(t *testing.T) {
	assert.Equal(t, EventHeaderSize, binary.Size(EventHeader{}))
	assert.Equal(t, HeaderSize, binary.Size(FrameHeader{}))
	assert.Equal(t, DescriptorSize, binary.Size(BufferDescriptor{}))
	assert.Equal(t, Size, binary.Size(Record{}))
	assert.Equal(t, 208, Size)
}

func TestDecode_FieldOffsets(t *testing.T) {
	b := make([]byte, Size)
	binary.LittleEndian.PutUint32(b[0:], 5)                     // event type
	binary.LittleEndian.PutUint32(b[4:], 99)                    // buffer id key
	binary.LittleEndian.PutUint32(b[EventHeaderSize+4:], 2)     // output
	binary.LittleEndian.PutUint32(b[EventHeaderSize+8:], 1234)  // counter
	binary.LittleEndian.PutUint32(b[EventHeaderSize+12:], 4)    // buffer count
	binary.LittleEndian.PutUint32(b[EventHeaderSize+16:], 3840) // width

	rec, err := Decode(b)
	require.NoError(t, err)

	assert.Equal(t, int32(5), rec.Event.Type)
	assert.Equal(t, int32(99), rec.Event.ID.Key)
	assert.Equal(t, int32(2), rec.Header.Output)
	assert.Equal(t, int32(1234), rec.Header.Counter)
	assert.Equal(t, int32(4), rec.Header.BufferCount)
	assert.Equal(t, int32(3840), rec.Header.DisplayWidth)
}

func TestDecode_StampsBufferID(t *testing.T) {
	rec := testRecord()
	rec.Buffer.SetID(BufferID{Key: 1}) // stale id from the sender

	b, err := rec.MarshalBinary()
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, rec.Event.ID, got.Buffer.ID())
}

func TestDecode_PreservesOpaquePayload(t *testing.T) {
	rec := testRecord()
	b, err := rec.MarshalBinary()
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)

	// Everything outside the identifier field is untouched.
	assert.Equal(t, rec.Buffer[:descriptorIDOffset], got.Buffer[:descriptorIDOffset])
	assert.Equal(t, rec.Buffer[descriptorIDOffset+bufferIDSize:], got.Buffer[descriptorIDOffset+bufferIDSize:])
}

func TestDecode_ShortBlock(t *testing.T) {
	for _, n := range []int{0, 1, EventHeaderSize, Size - 1} {
		_, err := Decode(make([]byte, n))
		assert.ErrorIs(t, err, ErrShortRecord, "len %d", n)
	}
}

func TestDecode_ReturnsOwnedCopy(t *testing.T) {
	b, err := testRecord().MarshalBinary()
	require.NoError(t, err)

	rec, err := Decode(b)
	require.NoError(t, err)

	for i := range b {
		b[i] = 0xff
	}
	assert.Equal(t, int32(17), rec.Header.Counter, "decoded record must not alias the input")
}

func TestBufferDescriptor_SetID(t *testing.T) {
	var d BufferDescriptor
	id := BufferID{Key: -5, RngKey: [3]int32{1, 2, 3}}
	d.SetID(id)

	assert.Equal(t, id, d.ID())
	assert.Equal(t, uint32(0xfffffffb), binary.LittleEndian.Uint32(d[descriptorIDOffset:]))
	assert.Zero(t, d[descriptorIDOffset-1])
	assert.Zero(t, d[descriptorIDOffset+bufferIDSize])
}

func TestBufferID_String(t *testing.T) {
	id := BufferID{Key: 3, RngKey: [3]int32{0x10, -1, 0}}
	assert.Equal(t, "3:00000010ffffffff00000000", id.String())
	assert.True(t, BufferID{}.IsZero())
	assert.False(t, id.IsZero())
}

func TestDecodeFrame(t *testing.T) {
	region := make([]byte, FrameRegionSize(4))
	header := FrameHeader{Output: 2, Counter: 8, BufferCount: 2}
	require.NoError(t, header.Encode(region))

	var a, b BufferDescriptor
	a.SetID(BufferID{Key: 10})
	b.SetID(BufferID{Key: 11})
	copy(region[HeaderSize:], a[:])
	copy(region[HeaderSize+DescriptorSize:], b[:])

	frame, err := DecodeFrame(region)
	require.NoError(t, err)
	assert.Equal(t, header, frame.Header)
	require.Len(t, frame.Buffers, 2)
	assert.Equal(t, []BufferID{{Key: 10}, {Key: 11}}, frame.BufferIDs())
}

func TestDecodeFrame_Errors(t *testing.T) {
	tests := []struct {
		name   string
		region func() []byte
	}{
		{
			name:   "smaller than header",
			region: func() []byte { return make([]byte, HeaderSize-1) },
		},
		{
			name: "declared buffers exceed region",
			region: func() []byte {
				b := make([]byte, FrameRegionSize(1))
				_ = FrameHeader{BufferCount: 2}.Encode(b)
				return b
			},
		},
		{
			name: "negative count",
			region: func() []byte {
				b := make([]byte, FrameRegionSize(1))
				_ = FrameHeader{BufferCount: -1}.Encode(b)
				return b
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.region())
			assert.ErrorIs(t, err, ErrShortFrame)
		})
	}
}

func TestFrameHeader_EncodeShortBuffer(t *testing.T) {
	err := FrameHeader{}.Encode(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrShortFrame)
}

// scriptedReader returns its blocks in order, then err.
type scriptedReader struct {
	blocks [][]byte
	err    error
}

func (s *scriptedReader) Read(_ context.Context, p []byte) (int, error) {
	if len(s.blocks) == 0 {
		return 0, s.err
	}
	n := copy(p, s.blocks[0])
	s.blocks = s.blocks[1:]
	return n, nil
}

func TestReader_SkipsShortBlocks(t *testing.T) {
	full, err := testRecord().MarshalBinary()
	require.NoError(t, err)

	src := &scriptedReader{
		blocks: [][]byte{{1, 2, 3}, {}, full},
		err:    errors.New("exhausted"),
	}
	r := NewReader(src, nil)

	rec, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(17), rec.Header.Counter)
	assert.Equal(t, uint64(2), r.ShortReads())
}

func TestReader_PropagatesErrors(t *testing.T) {
	sentinel := errors.New("channel gone")
	r := NewReader(&scriptedReader{err: sentinel}, nil)

	_, err := r.Next(context.Background())
	assert.ErrorIs(t, err, sentinel)
}

func TestReader_RecordsSurviveNextRead(t *testing.T) {
	first := testRecord()
	second := testRecord()
	second.Header.Counter = 18

	b1, err := first.MarshalBinary()
	require.NoError(t, err)
	b2, err := second.MarshalBinary()
	require.NoError(t, err)

	r := NewReader(&scriptedReader{blocks: [][]byte{b1, b2}, err: errors.New("exhausted")}, nil)

	got1, err := r.Next(context.Background())
	require.NoError(t, err)
	got2, err := r.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(17), got1.Header.Counter)
	assert.Equal(t, int32(18), got2.Header.Counter)
}
