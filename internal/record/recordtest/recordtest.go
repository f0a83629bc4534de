// Package recordtest builds hyper_dmabuf records for tests.
package recordtest

import (
	"testing"

	"github.com/mrzor/vmdisplay-receiver/internal/record"
)

// Make returns a record for output/counter declaring count buffers. The
// event's buffer id uses key, and the descriptor payload is filled with key's
// low byte so descriptors are distinguishable after reassembly.
func Make(output, counter, count, key int32) record.Record {
	rec := record.Record{
		Event: record.EventHeader{
			Type: 1,
			ID:   record.BufferID{Key: key, RngKey: [3]int32{key * 3, key * 5, key * 7}},
			Size: record.HeaderSize + record.DescriptorSize,
		},
		Header: record.FrameHeader{
			Version:       1,
			Output:        output,
			Counter:       counter,
			BufferCount:   count,
			DisplayWidth:  1920,
			DisplayHeight: 1080,
		},
	}
	for i := range rec.Buffer {
		rec.Buffer[i] = byte(key)
	}
	rec.Buffer.SetID(rec.Event.ID)
	return rec
}

// Encode marshals rec, failing the test on error.
func Encode(t testing.TB, rec record.Record) []byte {
	t.Helper()
	b, err := rec.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	return b
}

// Destinations allocates outputs regions of room for maxBuffers descriptors each.
func Destinations(outputs, maxBuffers int) [][]byte {
	dst := make([][]byte, outputs)
	for i := range dst {
		dst[i] = make([]byte, record.FrameRegionSize(maxBuffers))
	}
	return dst
}
