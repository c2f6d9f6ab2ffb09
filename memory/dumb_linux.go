package memory

import (
	"fmt"

	"golang.org/x/sys/unix"
	"launchpad.net/gommap"

	drm "github.com/NeowayLabs/drmcore"
)

// MemfdBuffer is a buffer object backed by an anonymous memfd. The fd
// doubles as the OS descriptor for the device mmap path and as the thing
// a PRIME export hands to another process.
type MemfdBuffer struct {
	drm.BufferBase
	fd   int
	size uint64
	data gommap.MMap
}

// NewMemfdBuffer creates and maps a memfd of the given size.
func NewMemfdBuffer(size uint64) (*MemfdBuffer, error) {
	fd, err := unix.MemfdCreate("drm-dumb", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}
	data, err := gommap.MapAt(0, uintptr(fd), 0, int64(size),
		gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &MemfdBuffer{fd: fd, size: size, data: data}, nil
}

func (b *MemfdBuffer) Size() uint64 { return b.size }

func (b *MemfdBuffer) Memory() (drm.Descriptor, uint64) {
	return drm.Descriptor(b.fd), 0
}

// Bytes exposes the mapped storage for direct pixel access.
func (b *MemfdBuffer) Bytes() []byte { return b.data }

// Close unmaps and closes the backing memfd. Other processes holding the
// fd keep their mappings.
func (b *MemfdBuffer) Close() error {
	if err := b.data.UnsafeUnmap(); err != nil {
		return err
	}
	b.data = nil
	return unix.Close(b.fd)
}

// MemfdAllocator hands out memfd-backed buffers.
type MemfdAllocator struct{}

func (MemfdAllocator) CreateDumb(width, height, bpp uint32) (drm.BufferObject, uint32, error) {
	pitch, size, err := dumbGeometry(width, height, bpp)
	if err != nil {
		return nil, 0, err
	}
	bo, err := NewMemfdBuffer(size)
	if err != nil {
		return nil, 0, err
	}
	return bo, pitch, nil
}
