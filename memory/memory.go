// Package memory provides buffer-object allocators for the device core:
// a portable heap-backed allocator used in tests and a linux memfd
// allocator whose buffers can be mapped and shared across processes.
package memory

import (
	"fmt"

	drm "github.com/NeowayLabs/drmcore"
)

// pitchAlign keeps rows 16-byte aligned so Copy16 can blit whole rows.
const pitchAlign = 16

// Buffer is a heap-backed buffer object. It has no OS descriptor, so it
// cannot be mapped through the mmap path, but handle tables, framebuffer
// attachment and PRIME export all work on it.
type Buffer struct {
	drm.BufferBase
	data []byte
}

func NewBuffer(size uint64) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

func (b *Buffer) Memory() (drm.Descriptor, uint64) {
	return drm.NoDescriptor, 0
}

// Bytes exposes the backing storage for direct pixel access.
func (b *Buffer) Bytes() []byte { return b.data }

// Allocator hands out heap-backed buffers.
type Allocator struct{}

func (Allocator) CreateDumb(width, height, bpp uint32) (drm.BufferObject, uint32, error) {
	pitch, size, err := dumbGeometry(width, height, bpp)
	if err != nil {
		return nil, 0, err
	}
	return NewBuffer(size), pitch, nil
}

func dumbGeometry(width, height, bpp uint32) (uint32, uint64, error) {
	if width == 0 || height == 0 || bpp == 0 || bpp%8 != 0 {
		return 0, 0, fmt.Errorf("dumb buffer %dx%d bpp %d: %w",
			width, height, bpp, drm.ErrNotSupported)
	}
	pitch := align(width*(bpp/8), pitchAlign)
	return pitch, uint64(pitch) * uint64(height), nil
}

func align(v, boundary uint32) uint32 {
	return (v + boundary - 1) &^ (boundary - 1)
}

// Copy16 copies n bytes from src to dst, rounded up to a multiple of 16
// bytes. Both slices must be at least the rounded length; pitchAlign
// guarantees that for whole rows.
func Copy16(dst, src []byte, n uint64) {
	n = (n + 15) &^ 15
	copy(dst[:n], src[:n])
}
