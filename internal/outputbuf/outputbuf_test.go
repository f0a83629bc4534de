package outputbuf

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/vmdisplay-receiver/internal/record"
)

func TestOpen_CreatesOneFilePerOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	size := record.FrameRegionSize(4)

	regions, err := Open(dir, "vmdisplay", 3, size)
	require.NoError(t, err)
	t.Cleanup(func() { _ = regions.Close() })

	assert.Equal(t, 3, regions.Len())
	assert.Equal(t, size, regions.Size())

	slices := regions.Slices()
	require.Len(t, slices, 3)
	for i, s := range slices {
		assert.Len(t, s, size)
		info, err := os.Stat(filepath.Join(dir, fmt.Sprintf("vmdisplay-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, int64(size), info.Size())
		assert.Equal(t, info.Name(), filepath.Base(regions.Path(i)))
	}
}

func TestOpen_WritesReachBackingFile(t *testing.T) {
	dir := t.TempDir()
	size := record.FrameRegionSize(1)

	regions, err := Open(dir, "out", 2, size)
	require.NoError(t, err)

	header := record.FrameHeader{Output: 1, Counter: 42, BufferCount: 1, DisplayWidth: 1920, DisplayHeight: 1080}
	require.NoError(t, header.Encode(regions.Slices()[1]))
	require.NoError(t, regions.Sync())
	require.NoError(t, regions.Close())

	data, err := os.ReadFile(filepath.Join(dir, "out-1"))
	require.NoError(t, err)

	frame, err := record.DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, header, frame.Header)
}

func TestOpen_ResizesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out-0")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))

	regions, err := Open(dir, "out", 1, 512)
	require.NoError(t, err)
	require.NoError(t, regions.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(512), info.Size())
}

func TestOpen_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		n    int
		size int
	}{
		{name: "no outputs", n: 0, size: 64},
		{name: "negative outputs", n: -1, size: 64},
		{name: "zero size", n: 1, size: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(t.TempDir(), "out", tt.n, tt.size)
			assert.Error(t, err)
		})
	}
}

func TestOpen_UnwritableDirectory(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := Open(filepath.Join(blocker, "sub"), "out", 1, 64)
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	regions, err := Open(t.TempDir(), "out", 2, 64)
	require.NoError(t, err)

	assert.NoError(t, regions.Close())
	assert.NoError(t, regions.Close())
	assert.Zero(t, regions.Len())
	assert.Empty(t, regions.Slices())
}
