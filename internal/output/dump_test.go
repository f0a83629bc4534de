package output

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/vmdisplay-receiver/internal/outputmeta"
	"github.com/mrzor/vmdisplay-receiver/internal/record"
)

func TestDumpWriter_WritesOneItemPerFrame(t *testing.T) {
	var buf bytes.Buffer
	d, err := NewDumpWriter(&buf)
	require.NoError(t, err)

	first := makeFrame(0, 1, 0, 5, 6)
	second := makeFrame(0, 2, 20*time.Millisecond, 7)
	require.NoError(t, d.HandleFrame(first, nil))
	require.NoError(t, d.HandleFrame(second, first))

	dec := cbor.NewDecoder(&buf)
	var got []FrameDump
	for {
		var item FrameDump
		err := dec.Decode(&item)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, item)
	}
	require.Len(t, got, 2)

	assert.Equal(t, 3, got[0].Domain)
	assert.Equal(t, int32(1), got[0].Counter)
	assert.Equal(t, int32(1280), got[0].Width)
	assert.Zero(t, got[0].IntervalNS)
	assert.True(t, first.ReceivedAt.Equal(got[0].ReceivedAt))
	require.Len(t, got[0].Buffers, 2)
	assert.Equal(t, record.BufferID{Key: 6}.String(), got[0].Buffers[1].ID)
	assert.Len(t, got[0].Buffers[1].Descriptor, record.DescriptorSize)

	assert.Equal(t, (20 * time.Millisecond).Nanoseconds(), got[1].IntervalNS)
	require.Len(t, got[1].Buffers, 1)
	assert.Equal(t, second.Buffers[0][:], got[1].Buffers[0].Descriptor)
}

func TestDumpWriter_IsDeterministic(t *testing.T) {
	frame := makeFrame(2, 11, time.Second, 1, 2, 3)

	var a, b bytes.Buffer
	da, err := NewDumpWriter(&a)
	require.NoError(t, err)
	db, err := NewDumpWriter(&b)
	require.NoError(t, err)

	require.NoError(t, da.HandleFrame(frame, nil))
	require.NoError(t, db.HandleFrame(frame, nil))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestDumpWriter_WriteError(t *testing.T) {
	d, err := NewDumpWriter(failingWriter{})
	require.NoError(t, err)
	assert.ErrorContains(t, d.HandleFrame(makeFrame(1, 1, 0, 1), nil), "output 1")
}

type countingHandler struct {
	frames []*outputmeta.FrameInfo
	err    error
}

func (h *countingHandler) HandleFrame(frame, _ *outputmeta.FrameInfo) error {
	h.frames = append(h.frames, frame)
	return h.err
}

func TestMulti_RunsEveryHandler(t *testing.T) {
	errA := errors.New("a failed")
	a := &countingHandler{err: errA}
	b := &countingHandler{}

	frame := makeFrame(0, 1, 0, 1)
	err := Multi{a, b}.HandleFrame(frame, nil)

	assert.ErrorIs(t, err, errA)
	assert.Len(t, a.frames, 1)
	assert.Len(t, b.frames, 1, "later handlers still run after a failure")
	assert.NoError(t, Multi{}.HandleFrame(frame, nil))
}
