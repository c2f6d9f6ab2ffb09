package drmcore

// Descriptor is an opaque handle to mappable memory. The OS mmap path
// consumes it together with an offset; on linux it is a file descriptor.
type Descriptor int

// NoDescriptor marks buffers without OS-mappable backing, such as the
// in-memory buffers used by tests.
const NoDescriptor = Descriptor(-1)

// BufferObject abstracts a chunk of GPU memory. It is shared by the
// device that allocated it, any file handle table referencing it and any
// framebuffer using it as backing storage.
type BufferObject interface {
	Size() uint64

	// Memory returns the descriptor/offset pair the mmap facility needs
	// to map the buffer.
	Memory() (Descriptor, uint64)

	// Mapping returns the fake mmap offset assigned to the buffer, or
	// false while none has been assigned yet.
	Mapping() (uint64, bool)

	// SetupMapping assigns the fake mmap offset. The device registry
	// calls it once, lazily, from the first handle creation.
	SetupMapping(offset uint64)
}

// BufferBase carries the lazily assigned fake mmap offset. Concrete
// BufferObject implementations embed it.
type BufferBase struct {
	mapping    uint64
	hasMapping bool
}

func (b *BufferBase) Mapping() (uint64, bool) {
	return b.mapping, b.hasMapping
}

func (b *BufferBase) SetupMapping(offset uint64) {
	b.mapping = offset
	b.hasMapping = true
}
