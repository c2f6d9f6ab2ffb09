package drmcore

// PlaneType distinguishes the compositing role of a plane.
type PlaneType int

const (
	PlaneOverlay PlaneType = 0
	PlanePrimary PlaneType = 1
	PlaneCursor  PlaneType = 2
)

func (t PlaneType) String() string {
	switch t {
	case PlaneOverlay:
		return "overlay"
	case PlanePrimary:
		return "primary"
	case PlaneCursor:
		return "cursor"
	}
	return "unknown"
}

// PlaneState snapshots which framebuffer a plane scans out and where the
// source rectangle lands within the crtc's output.
type PlaneState struct {
	Plane *Plane
	Crtc  *Crtc
	Fb    *FrameBuffer

	CrtcX, CrtcY int32
	CrtcW, CrtcH uint32
	SrcX, SrcY   uint32
	SrcW, SrcH   uint32
}

func (s *PlaneState) clone() *PlaneState {
	c := *s
	return &c
}

// Plane is one compositing layer scanned out by a crtc.
type Plane struct {
	Object

	Index int

	planeType     PlaneType
	possibleCrtcs []*Crtc

	state *PlaneState
}

func (p *Plane) PlaneType() PlaneType { return p.planeType }

// SetupPossibleCrtcs fixes the crtcs this plane may be assigned to.
func (p *Plane) SetupPossibleCrtcs(crtcs []*Crtc) { p.possibleCrtcs = crtcs }

func (p *Plane) PossibleCrtcs() []*Crtc { return p.possibleCrtcs }

// CurrentFrameBuffer returns the framebuffer the plane currently scans
// out, or nil.
func (p *Plane) CurrentFrameBuffer() *FrameBuffer { return p.state.Fb }

// DrmState returns the current committed snapshot.
func (p *Plane) DrmState() *PlaneState { return p.state }

func (p *Plane) setDrmState(s *PlaneState) { p.state = s }

func (p *Plane) Assignments(dev *Device) []Assignment {
	st := p.state
	var crtc, fb ModeObject
	if st.Crtc != nil {
		crtc = st.Crtc
	}
	if st.Fb != nil {
		fb = st.Fb
	}
	return []Assignment{
		AssignObject(p, dev.props.crtcID, crtc),
		AssignObject(p, dev.props.fbID, fb),
		AssignInt(p, dev.props.crtcX, uint64(uint32(st.CrtcX))),
		AssignInt(p, dev.props.crtcY, uint64(uint32(st.CrtcY))),
		AssignInt(p, dev.props.crtcW, uint64(st.CrtcW)),
		AssignInt(p, dev.props.crtcH, uint64(st.CrtcH)),
		AssignInt(p, dev.props.srcX, uint64(st.SrcX)),
		AssignInt(p, dev.props.srcY, uint64(st.SrcY)),
		AssignInt(p, dev.props.srcW, uint64(st.SrcW)),
		AssignInt(p, dev.props.srcH, uint64(st.SrcH)),
	}
}

func (p *Plane) canUseCrtc(crtc *Crtc) bool {
	for _, c := range p.possibleCrtcs {
		if c == crtc {
			return true
		}
	}
	return false
}
