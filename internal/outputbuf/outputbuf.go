// Package outputbuf provides per-output destination regions backed by
// memory-mapped files, so other processes can map the same frames.
//
// Output n lives in <dir>/<prefix>-<n>. Each file is truncated to the region
// size and mapped shared and writable.
package outputbuf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// region is one mapped output file.
type region struct {
	path string
	fd   int
	data []byte
}

// Regions holds one mapped region per output.
type Regions struct {
	regions []region
	size    int
}

// Open creates (or reuses) n files of size bytes under dir and maps them.
// Existing files are resized to exactly size. On failure everything mapped
// so far is released.
func Open(dir, prefix string, n, size int) (*Regions, error) {
	if n <= 0 {
		return nil, fmt.Errorf("output count must be positive, got %d", n)
	}
	if size <= 0 {
		return nil, fmt.Errorf("region size must be positive, got %d", size)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating buffer directory: %w", err)
	}

	r := &Regions{size: size}
	for i := range n {
		reg, err := mapRegion(filepath.Join(dir, fmt.Sprintf("%s-%d", prefix, i)), size)
		if err != nil {
			return nil, errors.Join(err, r.Close())
		}
		r.regions = append(r.regions, reg)
	}
	return r, nil
}

func mapRegion(path string, size int) (region, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return region{}, fmt.Errorf("opening %s: %w", path, err)
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return region{}, fmt.Errorf("sizing %s to %d bytes: %w", path, size, err)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return region{}, fmt.Errorf("mapping %s: %w", path, err)
	}

	return region{path: path, fd: fd, data: data}, nil
}

// Slices returns the mapped regions indexed by output. The slices are only
// valid until Close.
func (r *Regions) Slices() [][]byte {
	out := make([][]byte, len(r.regions))
	for i := range r.regions {
		out[i] = r.regions[i].data
	}
	return out
}

// Len returns the number of outputs.
func (r *Regions) Len() int {
	return len(r.regions)
}

// Size returns the size of each region in bytes.
func (r *Regions) Size() int {
	return r.size
}

// Path returns the backing file of output o.
func (r *Regions) Path(o int) string {
	return r.regions[o].path
}

// Sync flushes every region to its backing file.
func (r *Regions) Sync() error {
	var errs []error
	for _, reg := range r.regions {
		if err := unix.Msync(reg.data, unix.MS_SYNC); err != nil {
			errs = append(errs, fmt.Errorf("syncing %s: %w", reg.path, err))
		}
	}
	return errors.Join(errs...)
}

// Close unmaps every region and closes the files. The files stay on disk.
// Calling Close again is a no-op.
func (r *Regions) Close() error {
	var errs []error
	for _, reg := range r.regions {
		if err := unix.Munmap(reg.data); err != nil {
			errs = append(errs, fmt.Errorf("unmapping %s: %w", reg.path, err))
		}
		if err := unix.Close(reg.fd); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", reg.path, err))
		}
	}
	r.regions = nil
	return errors.Join(errs...)
}
