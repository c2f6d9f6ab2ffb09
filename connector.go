package drmcore

import (
	"github.com/NeowayLabs/drmcore/mode"
)

// ConnectorState snapshots a connector's routing and power state.
type ConnectorState struct {
	Connector *Connector
	Crtc      *Crtc
	Encoder   *Encoder
	DPMS      uint32
}

func (s *ConnectorState) clone() *ConnectorState {
	c := *s
	return &c
}

// Connector is a physical or logical output port. It exposes the display
// modes the sink supports, connection status and physical dimensions.
type Connector struct {
	Object

	Index int

	modes            []mode.Info
	currentEncoder   *Encoder
	currentStatus    uint32
	possibleEncoders []*Encoder
	physicalWidth    uint32
	physicalHeight   uint32
	subpixel         uint32
	connectorType    uint32

	state *ConnectorState
}

func (c *Connector) ModeList() []mode.Info { return c.modes }

// SetModeList replaces the supported mode list, typically after probing.
func (c *Connector) SetModeList(modes []mode.Info) { c.modes = modes }

func (c *Connector) CurrentEncoder() *Encoder { return c.currentEncoder }

func (c *Connector) setCurrentEncoder(e *Encoder) { c.currentEncoder = e }

func (c *Connector) SetCurrentStatus(status uint32) { c.currentStatus = status }

func (c *Connector) CurrentStatus() uint32 { return c.currentStatus }

// SetupPossibleEncoders fixes the encoders this connector may use.
func (c *Connector) SetupPossibleEncoders(encoders []*Encoder) { c.possibleEncoders = encoders }

func (c *Connector) PossibleEncoders() []*Encoder { return c.possibleEncoders }

// SetupPhysicalDimensions records the sink size in millimeters.
func (c *Connector) SetupPhysicalDimensions(width, height uint32) {
	c.physicalWidth = width
	c.physicalHeight = height
}

func (c *Connector) PhysicalWidth() uint32 { return c.physicalWidth }

func (c *Connector) PhysicalHeight() uint32 { return c.physicalHeight }

func (c *Connector) SetupSubpixel(subpixel uint32) { c.subpixel = subpixel }

func (c *Connector) Subpixel() uint32 { return c.subpixel }

func (c *Connector) SetConnectorType(typ uint32) { c.connectorType = typ }

func (c *Connector) ConnectorType() uint32 { return c.connectorType }

// DrmState returns the current committed snapshot.
func (c *Connector) DrmState() *ConnectorState { return c.state }

func (c *Connector) setDrmState(s *ConnectorState) { c.state = s }

func (c *Connector) Assignments(dev *Device) []Assignment {
	st := c.state
	var crtc ModeObject
	if st.Crtc != nil {
		crtc = st.Crtc
	}
	return []Assignment{
		AssignInt(c, dev.props.dpms, uint64(st.DPMS)),
		AssignObject(c, dev.props.crtcID, crtc),
	}
}

func (c *Connector) canUseEncoder(e *Encoder) bool {
	for _, pe := range c.possibleEncoders {
		if pe == e {
			return true
		}
	}
	return false
}
