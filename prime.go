package drmcore

import (
	"fmt"
)

// PrimeFile is the standalone file-like view over a single exported
// buffer: a descriptor, a size and a seek cursor, nothing else.
type PrimeFile struct {
	memory Descriptor
	base   uint64

	size   int64
	offset int64
}

// NewPrimeFile wraps a buffer object for use as an exported descriptor.
func NewPrimeFile(bo BufferObject) *PrimeFile {
	desc, base := bo.Memory()
	return &PrimeFile{
		memory: desc,
		base:   base,
		size:   int64(bo.Size()),
	}
}

// AccessMemory returns the descriptor/offset pair backing the buffer.
func (p *PrimeFile) AccessMemory() (Descriptor, uint64) {
	return p.memory, p.base
}

// Size returns the buffer length in bytes.
func (p *PrimeFile) Size() int64 { return p.size }

// SeekAbs positions the cursor at offset.
func (p *PrimeFile) SeekAbs(offset int64) (int64, error) {
	return p.seek(offset)
}

// SeekRel moves the cursor relative to its current position.
func (p *PrimeFile) SeekRel(offset int64) (int64, error) {
	return p.seek(p.offset + offset)
}

// SeekEof positions the cursor relative to the end of the buffer.
func (p *PrimeFile) SeekEof(offset int64) (int64, error) {
	return p.seek(p.size + offset)
}

func (p *PrimeFile) seek(target int64) (int64, error) {
	if target < 0 || target > p.size {
		return p.offset, fmt.Errorf("drm: seek to %d outside [0, %d]", target, p.size)
	}
	p.offset = target
	return p.offset, nil
}
