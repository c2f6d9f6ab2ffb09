package drmcore

// FrameBuffer describes a displayable pixel buffer: geometry, format and
// the buffer object backing it.
type FrameBuffer struct {
	Object

	width  uint32
	height uint32
	format uint32 // fourcc
	pitch  uint32

	bo BufferObject

	// dirty is the driver hook invoked by NotifyDirty; nil when the
	// driver does not track damage.
	dirty func(fb *FrameBuffer)
}

func (fb *FrameBuffer) Width() uint32  { return fb.width }
func (fb *FrameBuffer) Height() uint32 { return fb.height }

// Format returns the fourcc pixel format code.
func (fb *FrameBuffer) Format() uint32 { return fb.format }

// Pitch returns the stride in bytes.
func (fb *FrameBuffer) Pitch() uint32 { return fb.pitch }

// Buffer returns the backing buffer object.
func (fb *FrameBuffer) Buffer() BufferObject { return fb.bo }

// SetDirtyHandler installs the driver callback behind NotifyDirty.
func (fb *FrameBuffer) SetDirtyHandler(fn func(fb *FrameBuffer)) { fb.dirty = fn }

// NotifyDirty signals pending damage to whoever is scanning the buffer
// out.
func (fb *FrameBuffer) NotifyDirty() {
	if fb.dirty != nil {
		fb.dirty(fb)
	}
}

func (fb *FrameBuffer) Assignments(dev *Device) []Assignment { return nil }
