// Package alloc provides the small allocators backing DRM object ids,
// per-file buffer handles and fake mmap offset ranges.
package alloc

import (
	"fmt"
	"sort"
)

// IDAllocator hands out unique uint32 ids starting at 1. Freed ids are
// reused lowest-first so tables stay dense.
type IDAllocator struct {
	next uint32
	max  uint32
	free []uint32
}

// NewIDAllocator returns an allocator handing out ids in [1, max].
// A max of zero means the full uint32 range.
func NewIDAllocator(max uint32) *IDAllocator {
	if max == 0 {
		max = ^uint32(0)
	}
	return &IDAllocator{next: 1, max: max}
}

func (a *IDAllocator) Allocate() (uint32, error) {
	if len(a.free) > 0 {
		id := a.free[0]
		a.free = a.free[1:]
		return id, nil
	}
	if a.next > a.max {
		return 0, fmt.Errorf("id space [1, %d] exhausted", a.max)
	}
	id := a.next
	a.next++
	return id, nil
}

// Free returns an id to the allocator. Freeing an id that was never
// allocated is a caller bug; the allocator does not check for it.
func (a *IDAllocator) Free(id uint32) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i] >= id })
	a.free = append(a.free, 0)
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = id
}

// RangeAllocator hands out chunk-aligned, non-overlapping offset ranges.
// Offsets start at one chunk so that zero never names a valid range.
type RangeAllocator struct {
	chunkShift uint
	next       uint64
	free       []span
}

type span struct {
	offset uint64
	size   uint64
}

// NewRangeAllocator returns an allocator whose ranges are aligned to
// 1<<chunkShift bytes.
func NewRangeAllocator(chunkShift uint) *RangeAllocator {
	return &RangeAllocator{
		chunkShift: chunkShift,
		next:       1 << chunkShift,
	}
}

// Allocate reserves a range of at least size bytes and returns its offset.
func (a *RangeAllocator) Allocate(size uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("zero-sized range")
	}
	chunk := uint64(1) << a.chunkShift
	size = (size + chunk - 1) &^ (chunk - 1)

	for i, s := range a.free {
		if s.size >= size {
			offset := s.offset
			if s.size == size {
				a.free = append(a.free[:i], a.free[i+1:]...)
			} else {
				a.free[i] = span{offset: s.offset + size, size: s.size - size}
			}
			return offset, nil
		}
	}

	offset := a.next
	if offset+size < offset {
		return 0, fmt.Errorf("range space exhausted")
	}
	a.next += size
	return offset, nil
}

// Free returns a range previously obtained from Allocate.
func (a *RangeAllocator) Free(offset, size uint64) {
	chunk := uint64(1) << a.chunkShift
	size = (size + chunk - 1) &^ (chunk - 1)
	a.free = append(a.free, span{offset: offset, size: size})
}
