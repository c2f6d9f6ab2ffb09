package drmcore

// CrtcState is the immutable snapshot of one crtc's configuration.
// Reconfiguration clones it, mutates the clone and swaps the pointer on a
// successful commit; concurrent readers never observe a partial update.
type CrtcState struct {
	Crtc   *Crtc
	Active bool

	// Dirty flags from the last capture. They are set conservatively:
	// true whenever the matching aspect may have changed. Drivers use
	// them to skip reprogramming unaffected hardware blocks.
	PlanesChanged     bool
	ModeChanged       bool
	ActiveChanged     bool
	ConnectorsChanged bool

	// Bitsets over object indexes, not object ids.
	PlaneMask     uint32
	ConnectorMask uint32
	EncoderMask   uint32

	Mode *Blob
}

// clone copies the snapshot with all dirty flags cleared.
func (s *CrtcState) clone() *CrtcState {
	c := *s
	c.PlanesChanged = false
	c.ModeChanged = false
	c.ActiveChanged = false
	c.ConnectorsChanged = false
	return &c
}

// Crtc is the pipeline stage that scans out a plane composition and
// drives the timing of one output.
type Crtc struct {
	Object

	// Index is the crtc's position in the device's crtc list, used as
	// the bit position in routing masks.
	Index int

	primary *Plane
	cursor  *Plane

	state *CrtcState
}

// PrimaryPlane returns the plane that carries the crtc's base image.
func (c *Crtc) PrimaryPlane() *Plane { return c.primary }

// CursorPlane returns the cursor plane, or nil when the hardware has
// none.
func (c *Crtc) CursorPlane() *Plane { return c.cursor }

// DrmState returns the current committed snapshot.
func (c *Crtc) DrmState() *CrtcState { return c.state }

func (c *Crtc) setDrmState(s *CrtcState) { c.state = s }

func (c *Crtc) Assignments(dev *Device) []Assignment {
	st := c.state
	active := uint64(0)
	if st.Active {
		active = 1
	}
	return []Assignment{
		AssignInt(c, dev.props.active, active),
		AssignBlob(c, dev.props.modeID, st.Mode),
	}
}
