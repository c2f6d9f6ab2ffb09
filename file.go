package drmcore

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/NeowayLabs/drmcore/alloc"
)

// Poll readiness bits.
const PollIn = 1 << 0

// File tracks core state per open connection: the buffer handle
// namespace, framebuffers created through the connection, client
// capability flags and the pending event queue.
type File struct {
	dev *Device
	log *logrus.Entry

	mu sync.Mutex

	buffers map[uint32]BufferObject
	handles *alloc.IDAllocator

	frameBuffers []*FrameBuffer

	blocking bool
	pending  []Event
	sequence uint64
	// bell is closed and replaced on every post, waking all waiters.
	bell chan struct{}

	universalPlanes bool
	atomicCap       bool
}

// NewFile opens a fresh namespace against dev. Files start in blocking
// mode.
func NewFile(dev *Device) *File {
	return &File{
		dev:      dev,
		log:      dev.log.WithField("component", "file"),
		buffers:  make(map[uint32]BufferObject),
		handles:  alloc.NewIDAllocator(0),
		blocking: true,
		bell:     make(chan struct{}),
	}
}

// Device returns the registry this file was opened against.
func (f *File) Device() *Device { return f.dev }

// SetBlocking switches between blocking and non-blocking reads.
func (f *File) SetBlocking(blocking bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocking = blocking
}

// --- buffer handle table ---------------------------------------------

// CreateHandle registers a buffer object in this file's handle table and
// returns its local handle. Registering the same buffer again returns
// the existing handle. The buffer's fake mmap offset is assigned lazily
// here, from the device's range allocator.
func (f *File) CreateHandle(bo BufferObject) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for handle, existing := range f.buffers {
		if existing == bo {
			return handle, nil
		}
	}
	if _, err := f.dev.allocateMapping(bo); err != nil {
		return 0, err
	}
	handle, err := f.handles.Allocate()
	if err != nil {
		return 0, fmt.Errorf("%w: buffer handles", ErrExhausted)
	}
	f.buffers[handle] = bo
	return handle, nil
}

// ResolveHandle looks a local handle up.
func (f *File) ResolveHandle(handle uint32) (BufferObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bo, ok := f.buffers[handle]
	if !ok {
		return nil, fmt.Errorf("handle %d: %w", handle, ErrNotFound)
	}
	return bo, nil
}

// GetHandle is the inverse lookup of CreateHandle.
func (f *File) GetHandle(bo BufferObject) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for handle, existing := range f.buffers {
		if existing == bo {
			return handle, nil
		}
	}
	return 0, fmt.Errorf("buffer: %w", ErrNotFound)
}

// ReleaseHandle drops a handle from the table. The buffer itself stays
// alive for every other holder.
func (f *File) ReleaseHandle(handle uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buffers[handle]; !ok {
		return fmt.Errorf("handle %d: %w", handle, ErrNotFound)
	}
	delete(f.buffers, handle)
	f.handles.Free(handle)
	return nil
}

// MappingOffset returns the fake mmap offset of a registered handle,
// stable for the handle's lifetime.
func (f *File) MappingOffset(handle uint32) (uint64, error) {
	bo, err := f.ResolveHandle(handle)
	if err != nil {
		return 0, err
	}
	offset, ok := bo.Mapping()
	if !ok {
		return 0, fmt.Errorf("handle %d has no mapping: %w", handle, ErrNotFound)
	}
	return offset, nil
}

// AccessMemory returns the descriptor/offset pair the mmap path needs to
// map the buffer behind handle; a thin pass-through to the buffer's own
// accessor.
func (f *File) AccessMemory(handle uint32) (Descriptor, uint64, error) {
	bo, err := f.ResolveHandle(handle)
	if err != nil {
		return NoDescriptor, 0, err
	}
	desc, offset := bo.Memory()
	return desc, offset, nil
}

// --- framebuffer ownership -------------------------------------------

// AttachFrameBuffer records a framebuffer created through this file, for
// enumeration and cleanup. The device registry keeps the canonical
// object as long as any state references it.
func (f *File) AttachFrameBuffer(fb *FrameBuffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frameBuffers = append(f.frameBuffers, fb)
}

// DetachFrameBuffer forgets a framebuffer without touching its pipeline
// linkage.
func (f *File) DetachFrameBuffer(fb *FrameBuffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.frameBuffers {
		if existing == fb {
			f.frameBuffers = append(f.frameBuffers[:i], f.frameBuffers[i+1:]...)
			return
		}
	}
}

// FrameBuffers lists the framebuffers created through this file.
func (f *File) FrameBuffers() []*FrameBuffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FrameBuffer(nil), f.frameBuffers...)
}

// --- PRIME sharing ---------------------------------------------------

// ExportBufferObject binds an opaque credential to a locally held
// handle, allowing any file presenting the same credential to import the
// underlying buffer.
func (f *File) ExportBufferObject(handle uint32, cred Credential) error {
	bo, err := f.ResolveHandle(handle)
	if err != nil {
		return err
	}
	f.dev.registerExport(cred, bo)
	return nil
}

// ImportBufferObject resolves a credential exported by some file and
// installs the shared buffer into this file's own handle table. The
// returned handle is numbered independently of the exporter's.
func (f *File) ImportBufferObject(cred Credential) (BufferObject, uint32, error) {
	bo, err := f.dev.importCredential(cred)
	if err != nil {
		return nil, 0, err
	}
	handle, err := f.CreateHandle(bo)
	if err != nil {
		return nil, 0, err
	}
	return bo, handle, nil
}

// --- event queue -----------------------------------------------------

// PostEvent appends an event to the pending queue and wakes all waiters.
func (f *File) PostEvent(event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if depth := f.dev.limits.EventQueueDepth; depth > 0 && len(f.pending) >= depth {
		f.log.WithField("depth", depth).Warn("event queue full, dropping oldest event")
		f.pending = f.pending[1:]
	}
	f.pending = append(f.pending, event)
	close(f.bell)
	f.bell = make(chan struct{})
}

// Read drains pending events in arrival order, serialized as 32-byte
// flip-complete records. With an empty queue it suspends in blocking
// mode until an event or cancellation arrives, and fails with
// ErrWouldBlock otherwise. A cancelled read consumes nothing.
func (f *File) Read(ctx context.Context, buf []byte) (int, error) {
	if len(buf) < EventRecordSize {
		return 0, fmt.Errorf("drm: read buffer of %d bytes below event record size", len(buf))
	}
	for {
		f.mu.Lock()
		if len(f.pending) > 0 {
			n := 0
			for len(f.pending) > 0 && n+EventRecordSize <= len(buf) {
				ev := f.pending[0]
				f.pending = f.pending[1:]
				ev.encode(uint32(f.sequence), buf[n:])
				n += EventRecordSize
			}
			f.sequence++
			f.mu.Unlock()
			return n, nil
		}
		if !f.blocking {
			f.mu.Unlock()
			return 0, ErrWouldBlock
		}
		bell := f.bell
		f.mu.Unlock()

		select {
		case <-bell:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// PollWait suspends until the file becomes ready relative to the
// caller's last observed sequence: it returns as soon as events are
// pending, or the sequence advanced past the given one. A sequence of
// zero reports the current status immediately.
func (f *File) PollWait(ctx context.Context, sequence uint64, mask int) (uint64, int, error) {
	for {
		f.mu.Lock()
		current, ready := f.statusLocked()
		bell := f.bell
		f.mu.Unlock()

		if sequence == 0 || current > sequence || ready&mask != 0 {
			return current, ready & mask, nil
		}
		select {
		case <-bell:
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		}
	}
}

// PollStatus reports the current sequence and readiness without
// blocking.
func (f *File) PollStatus() (uint64, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusLocked()
}

func (f *File) statusLocked() (uint64, int) {
	ready := 0
	if len(f.pending) > 0 {
		ready |= PollIn
	}
	return f.sequence, ready
}

// --- client capabilities ---------------------------------------------

func (f *File) setClientCap(cap, value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch cap {
	case ClientCapUniversalPlanes:
		f.universalPlanes = value != 0
	case ClientCapAtomic:
		f.atomicCap = value != 0
		// Atomic implies universal planes.
		if f.atomicCap {
			f.universalPlanes = true
		}
	case ClientCapStereo3D:
		// Accepted and ignored: the core exposes no stereo modes.
	default:
		return fmt.Errorf("client capability %d: %w", cap, ErrNotSupported)
	}
	return nil
}

// UniversalPlanes reports whether the client asked to see non-overlay
// planes in enumerations.
func (f *File) UniversalPlanes() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.universalPlanes
}

// AtomicCapable reports whether the client negotiated the atomic ioctl.
func (f *File) AtomicCapable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.atomicCap
}

// Close releases the file's resources: framebuffers created here are
// removed from the registry, and the handle table is dropped. Shared
// buffers survive through their other holders.
func (f *File) Close() {
	f.mu.Lock()
	fbs := f.frameBuffers
	f.frameBuffers = nil
	f.buffers = make(map[uint32]BufferObject)
	f.mu.Unlock()

	for _, fb := range fbs {
		f.dev.RemoveFrameBuffer(fb)
	}
	f.log.WithField("framebuffers", len(fbs)).Debug("file closed")
}
