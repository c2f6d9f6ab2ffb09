package drmcore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/NeowayLabs/drmcore/mode"
)

// AtomicState is a candidate full-pipeline configuration: clones of every
// state snapshot touched by a capture. It never aliases live state; the
// commit publishes the clones wholesale.
type AtomicState struct {
	dev *Device

	crtcs      map[uint32]*CrtcState
	connectors map[uint32]*ConnectorState
	planes     map[uint32]*PlaneState
}

func newAtomicState(dev *Device) *AtomicState {
	return &AtomicState{
		dev:        dev,
		crtcs:      make(map[uint32]*CrtcState),
		connectors: make(map[uint32]*ConnectorState),
		planes:     make(map[uint32]*PlaneState),
	}
}

// Crtc returns the candidate state for a crtc, cloning the live snapshot
// on first touch.
func (s *AtomicState) Crtc(c *Crtc) *CrtcState {
	if cs, ok := s.crtcs[c.ID()]; ok {
		return cs
	}
	cs := c.state.clone()
	s.crtcs[c.ID()] = cs
	return cs
}

// Connector returns the candidate state for a connector.
func (s *AtomicState) Connector(c *Connector) *ConnectorState {
	if cs, ok := s.connectors[c.ID()]; ok {
		return cs
	}
	cs := c.state.clone()
	s.connectors[c.ID()] = cs
	return cs
}

// Plane returns the candidate state for a plane.
func (s *AtomicState) Plane(p *Plane) *PlaneState {
	if ps, ok := s.planes[p.ID()]; ok {
		return ps
	}
	ps := p.state.clone()
	s.planes[p.ID()] = ps
	return ps
}

// CrtcStates lists the touched crtc states; drivers walk it when
// programming hardware.
func (s *AtomicState) CrtcStates() map[uint32]*CrtcState { return s.crtcs }

// ConnectorStates lists the touched connector states.
func (s *AtomicState) ConnectorStates() map[uint32]*ConnectorState { return s.connectors }

// PlaneStates lists the touched plane states.
func (s *AtomicState) PlaneStates() map[uint32]*PlaneState { return s.planes }

type configPhase int

const (
	configInitial configPhase = iota
	configCaptured
	configCommitted
	configDisposed
)

// Configuration drives one atomic reconfiguration through the
// Initial -> Captured -> {Committed, Disposed} protocol. Capture is
// side-effect free on the live graph; Commit publishes every touched
// snapshot atomically and completes asynchronously.
type Configuration struct {
	dev   *Device
	phase configPhase

	captured *AtomicState

	notifyFile *File
	cookie     uint64

	done      chan struct{}
	timestamp uint64

	log *logrus.Entry
}

// NewConfiguration starts a configuration against dev in the Initial
// phase.
func NewConfiguration(dev *Device) *Configuration {
	return &Configuration{
		dev:  dev,
		done: make(chan struct{}),
		log:  dev.log.WithField("component", "atomic"),
	}
}

// PostCompletionTo requests a page-flip event carrying cookie on file for
// every crtc touched by the commit.
func (c *Configuration) PostCompletionTo(file *File, cookie uint64) {
	c.notifyFile = file
	c.cookie = cookie
}

// Capture clones current state for every object transitively affected by
// the assignments, applies the requested values onto the clones and
// validates the result as a whole. On any violation the candidate is
// discarded and no live state has been touched.
func (c *Configuration) Capture(assignments []Assignment) (*AtomicState, error) {
	if c.phase != configInitial {
		return nil, ErrInvalidState
	}
	if c.dev.closed() {
		return nil, fmt.Errorf("device closed: %w", ErrNotFound)
	}

	// Single mutation domain: captures and commits are serialized
	// relative to each other.
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()

	state := newAtomicState(c.dev)
	for _, a := range assignments {
		if err := c.apply(state, a); err != nil {
			return nil, err
		}
	}
	if err := c.validate(state); err != nil {
		return nil, err
	}

	c.captured = state
	c.phase = configCaptured
	return state, nil
}

// Dispose abandons a captured configuration without publishing anything.
func (c *Configuration) Dispose() error {
	if c.phase != configCaptured {
		return ErrInvalidState
	}
	c.captured = nil
	c.phase = configDisposed
	return nil
}

// Commit publishes the captured state as the new live state of every
// touched object and programs hardware asynchronously. Completion raises
// the one-shot observed by WaitForCompletion and posts page-flip events
// to the file registered via PostCompletionTo.
func (c *Configuration) Commit(state *AtomicState) error {
	if c.phase != configCaptured || state == nil || state != c.captured {
		return ErrInvalidState
	}

	c.dev.mu.Lock()
	for _, cs := range state.crtcs {
		cs.Crtc.setDrmState(cs)
	}
	for _, ps := range state.planes {
		ps.Plane.setDrmState(ps)
	}
	// Encoders released by a rebind stop reporting a crtc. Clearing runs
	// before the new bindings land so an encoder swapped between two
	// connectors in one commit keeps its new crtc.
	for _, cns := range state.connectors {
		if prev := cns.Connector.CurrentEncoder(); prev != nil && prev != cns.Encoder {
			prev.setCurrentCrtc(nil)
		}
	}
	for _, cns := range state.connectors {
		cns.Connector.setDrmState(cns)
		cns.Connector.setCurrentEncoder(cns.Encoder)
		if cns.Encoder != nil {
			cns.Encoder.setCurrentCrtc(cns.Crtc)
		}
	}
	flips := make([]uint32, 0, len(state.crtcs))
	for id := range state.crtcs {
		flips = append(flips, id)
	}
	c.dev.mu.Unlock()

	c.phase = configCommitted
	c.log.WithFields(logrus.Fields{
		"crtcs":      len(state.crtcs),
		"planes":     len(state.planes),
		"connectors": len(state.connectors),
	}).Debug("committed atomic state")

	go c.retire(state, flips)
	return nil
}

// retire runs the hardware half of the commit. It is fire-and-forget:
// cancellation of a completion wait does not reach it.
func (c *Configuration) retire(state *AtomicState, flips []uint32) {
	ts := monotonic()
	if c.dev.prog != nil {
		programmed, err := c.dev.prog.Program(context.Background(), state)
		if err != nil {
			// The state is already published; hardware refusal is a
			// driver defect, not a capture failure.
			c.log.WithError(err).Error("hardware programming failed")
		} else {
			ts = programmed
		}
	}

	c.timestamp = ts
	close(c.done)

	if c.notifyFile != nil {
		for _, crtcID := range flips {
			c.notifyFile.PostEvent(Event{
				Cookie:    c.cookie,
				CrtcID:    crtcID,
				Timestamp: ts,
			})
		}
	}
}

// WaitForCompletion suspends until the commit resolves or ctx is
// cancelled. It never fires more than once per configuration; cancelling
// the wait does not abort the commit.
func (c *Configuration) WaitForCompletion(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Timestamp returns the completion timestamp once the commit resolved.
func (c *Configuration) Timestamp() (uint64, bool) {
	select {
	case <-c.done:
		return c.timestamp, true
	default:
		return 0, false
	}
}

// --- assignment application ------------------------------------------

func (c *Configuration) apply(state *AtomicState, a Assignment) error {
	if a.Object == nil || a.Property == nil {
		return validationErr(0, "incomplete assignment")
	}
	if err := a.Property.validate(a.Value); err != nil {
		return err
	}

	switch obj := a.Object.(type) {
	case *Crtc:
		return c.applyCrtc(state, obj, a)
	case *Connector:
		return c.applyConnector(state, obj, a)
	case *Plane:
		return c.applyPlane(state, obj, a)
	default:
		return validationErr(a.Object.ID(), "object type %s has no writable properties",
			a.Object.Type())
	}
}

func (c *Configuration) applyCrtc(state *AtomicState, crtc *Crtc, a Assignment) error {
	cs := state.Crtc(crtc)
	switch a.Property {
	case c.dev.props.active:
		active := a.Value != 0
		if active != cs.Active {
			cs.ActiveChanged = true
		}
		cs.Active = active
	case c.dev.props.modeID:
		// Conservative: any mode assignment marks the timing block
		// dirty, even when the blob is unchanged.
		cs.ModeChanged = true
		cs.Mode = a.BlobValue
	default:
		return validationErr(crtc.ID(), "property %q does not apply to a crtc", a.Property.Name())
	}
	return nil
}

func (c *Configuration) applyConnector(state *AtomicState, conn *Connector, a Assignment) error {
	cns := state.Connector(conn)
	switch a.Property {
	case c.dev.props.dpms:
		cns.DPMS = uint32(a.Value)
	case c.dev.props.crtcID:
		var target *Crtc
		if a.ObjectValue != nil {
			crtc, ok := AsCrtc(a.ObjectValue)
			if !ok {
				return validationErr(conn.ID(), "CRTC_ID must name a crtc, got %s",
					a.ObjectValue.Type())
			}
			target = crtc
		}
		return c.routeConnector(state, conn, cns, target)
	default:
		return validationErr(conn.ID(), "property %q does not apply to a connector", a.Property.Name())
	}
	return nil
}

// routeConnector rebinds a connector to a crtc, keeping the crtc
// connector/encoder masks and dirty flags of both the old and the new
// crtc consistent.
func (c *Configuration) routeConnector(state *AtomicState, conn *Connector, cns *ConnectorState, target *Crtc) error {
	if cns.Crtc == target {
		// Membership may still have been intended to change; flag the
		// crtc conservatively.
		if target != nil {
			state.Crtc(target).ConnectorsChanged = true
		}
		return nil
	}

	if old := cns.Crtc; old != nil {
		ocs := state.Crtc(old)
		ocs.ConnectorsChanged = true
		ocs.ConnectorMask &^= 1 << uint(conn.Index)
		if cns.Encoder != nil {
			ocs.EncoderMask &^= 1 << uint(cns.Encoder.Index)
		}
	}
	cns.Crtc = nil
	cns.Encoder = nil

	if target == nil {
		return nil
	}

	ncs := state.Crtc(target)
	encoder, err := c.pickEncoder(state, conn, target, ncs)
	if err != nil {
		return err
	}
	cns.Crtc = target
	cns.Encoder = encoder
	ncs.ConnectorsChanged = true
	ncs.ConnectorMask |= 1 << uint(conn.Index)
	ncs.EncoderMask |= 1 << uint(encoder.Index)
	return nil
}

// pickEncoder finds an encoder that may drive target for conn and that
// is not claimed by another connector in the candidate state.
func (c *Configuration) pickEncoder(state *AtomicState, conn *Connector, target *Crtc, ncs *CrtcState) (*Encoder, error) {
	for _, enc := range conn.possibleEncoders {
		if !enc.canDriveCrtc(target) {
			continue
		}
		if ncs.EncoderMask&(1<<uint(enc.Index)) != 0 {
			continue
		}
		if c.encoderClaimed(state, enc, conn) {
			continue
		}
		return enc, nil
	}
	return nil, validationErr(conn.ID(), "no usable encoder routes connector to crtc %d", target.ID())
}

func (c *Configuration) encoderClaimed(state *AtomicState, enc *Encoder, except *Connector) bool {
	for _, other := range c.dev.connectors {
		if other == except {
			continue
		}
		st := other.state
		if cand, ok := state.connectors[other.ID()]; ok {
			st = cand
		}
		if st.Encoder == enc {
			return true
		}
	}
	return false
}

func (c *Configuration) applyPlane(state *AtomicState, plane *Plane, a Assignment) error {
	ps := state.Plane(plane)
	switch a.Property {
	case c.dev.props.crtcID:
		var target *Crtc
		if a.ObjectValue != nil {
			crtc, ok := AsCrtc(a.ObjectValue)
			if !ok {
				return validationErr(plane.ID(), "CRTC_ID must name a crtc, got %s",
					a.ObjectValue.Type())
			}
			if !plane.canUseCrtc(crtc) {
				return validationErr(plane.ID(), "plane cannot be assigned to crtc %d", crtc.ID())
			}
			target = crtc
		}
		if old := ps.Crtc; old != nil && old != target {
			ocs := state.Crtc(old)
			ocs.PlanesChanged = true
			ocs.PlaneMask &^= 1 << uint(plane.Index)
		}
		if target != nil {
			ncs := state.Crtc(target)
			ncs.PlanesChanged = true
			ncs.PlaneMask |= 1 << uint(plane.Index)
		}
		ps.Crtc = target
	case c.dev.props.fbID:
		var fb *FrameBuffer
		if a.ObjectValue != nil {
			f, ok := AsFrameBuffer(a.ObjectValue)
			if !ok {
				return validationErr(plane.ID(), "FB_ID must name a framebuffer, got %s",
					a.ObjectValue.Type())
			}
			fb = f
		}
		ps.Fb = fb
		// A framebuffer swap is a page flip on the bound crtc.
		if ps.Crtc != nil {
			state.Crtc(ps.Crtc).PlanesChanged = true
		}
	case c.dev.props.crtcX:
		ps.CrtcX = int32(uint32(a.Value))
	case c.dev.props.crtcY:
		ps.CrtcY = int32(uint32(a.Value))
	case c.dev.props.crtcW:
		ps.CrtcW = uint32(a.Value)
	case c.dev.props.crtcH:
		ps.CrtcH = uint32(a.Value)
	case c.dev.props.srcX:
		ps.SrcX = uint32(a.Value)
	case c.dev.props.srcY:
		ps.SrcY = uint32(a.Value)
	case c.dev.props.srcW:
		ps.SrcW = uint32(a.Value)
	case c.dev.props.srcH:
		ps.SrcH = uint32(a.Value)
	default:
		return validationErr(plane.ID(), "property %q does not apply to a plane", a.Property.Name())
	}
	return nil
}

// --- whole-state validation ------------------------------------------

func (c *Configuration) validate(state *AtomicState) error {
	for id, cs := range state.crtcs {
		if err := c.validateCrtc(id, cs); err != nil {
			return err
		}
	}
	// A mode change re-bounds every plane on the crtc, touched or not.
	for _, cs := range state.crtcs {
		if !cs.ModeChanged {
			continue
		}
		for _, p := range c.dev.planes {
			if cs.PlaneMask&(1<<uint(p.Index)) != 0 {
				state.Plane(p)
			}
		}
	}
	for id, cns := range state.connectors {
		if err := c.validateConnector(state, id, cns); err != nil {
			return err
		}
	}
	for id, ps := range state.planes {
		if err := c.validatePlane(state, id, ps); err != nil {
			return err
		}
	}
	return nil
}

func (c *Configuration) validateCrtc(id uint32, cs *CrtcState) error {
	if cs.Active && cs.Mode == nil {
		return validationErr(id, "active crtc has no mode")
	}
	if cs.Mode == nil {
		return nil
	}
	info, err := mode.Unmarshal(cs.Mode.Data())
	if err != nil {
		return validationErr(id, "bad mode blob: %v", err)
	}
	limits := c.dev.limits
	w, h := uint32(info.Hdisplay), uint32(info.Vdisplay)
	if w < limits.MinWidth || h < limits.MinHeight {
		return validationErr(id, "mode %dx%d below device minimum %dx%d",
			w, h, limits.MinWidth, limits.MinHeight)
	}
	if limits.MaxWidth != 0 && (w > limits.MaxWidth || h > limits.MaxHeight) {
		return validationErr(id, "mode %dx%d exceeds device limit %dx%d",
			w, h, limits.MaxWidth, limits.MaxHeight)
	}
	return nil
}

func (c *Configuration) validateConnector(state *AtomicState, id uint32, cns *ConnectorState) error {
	if cns.Crtc == nil {
		return nil
	}
	enc := cns.Encoder
	if enc == nil {
		return validationErr(id, "connector routed to crtc %d without an encoder", cns.Crtc.ID())
	}
	if !cns.Connector.canUseEncoder(enc) {
		return validationErr(id, "encoder %d not usable by connector", enc.ID())
	}
	if !enc.canDriveCrtc(cns.Crtc) {
		return validationErr(id, "encoder %d cannot drive crtc %d", enc.ID(), cns.Crtc.ID())
	}

	// Every encoder sharing the crtc must be a legal clone of the
	// others.
	ccs := crtcStateFor(state, cns.Crtc)
	for _, other := range c.dev.encoders {
		if ccs.EncoderMask&(1<<uint(other.Index)) == 0 || other == enc {
			continue
		}
		if !enc.canCloneWith(other) || !other.canCloneWith(enc) {
			return validationErr(id, "encoders %d and %d cannot clone one crtc",
				enc.ID(), other.ID())
		}
	}
	return nil
}

func (c *Configuration) validatePlane(state *AtomicState, id uint32, ps *PlaneState) error {
	if (ps.Crtc == nil) != (ps.Fb == nil) {
		return validationErr(id, "plane needs both a crtc and a framebuffer, or neither")
	}
	if ps.Fb == nil {
		return nil
	}
	fb := ps.Fb
	if uint64(ps.SrcX)+uint64(ps.SrcW) > uint64(fb.Width()) ||
		uint64(ps.SrcY)+uint64(ps.SrcH) > uint64(fb.Height()) {
		return validationErr(id, "source rect %d,%d %dx%d outside framebuffer %dx%d",
			ps.SrcX, ps.SrcY, ps.SrcW, ps.SrcH, fb.Width(), fb.Height())
	}
	if _, ok := mode.GetFormatInfo(fb.Format()); !ok {
		return validationErr(id, "framebuffer %d has unknown format %#x", fb.ID(), fb.Format())
	}

	// When the bound crtc carries a mode, the cursor and primary planes
	// must land inside the visible area.
	if ps.Plane.planeType == PlanePrimary {
		ccs := crtcStateFor(state, ps.Crtc)
		if ccs.Mode != nil {
			info, err := mode.Unmarshal(ccs.Mode.Data())
			if err != nil {
				return validationErr(ps.Crtc.ID(), "bad mode blob: %v", err)
			}
			if ps.CrtcX < 0 || ps.CrtcY < 0 ||
				uint64(uint32(ps.CrtcX))+uint64(ps.CrtcW) > uint64(info.Hdisplay) ||
				uint64(uint32(ps.CrtcY))+uint64(ps.CrtcH) > uint64(info.Vdisplay) {
				return validationErr(id, "primary plane %d,%d %dx%d outside mode %dx%d",
					ps.CrtcX, ps.CrtcY, ps.CrtcW, ps.CrtcH, info.Hdisplay, info.Vdisplay)
			}
		}
	}
	return nil
}

// crtcStateFor prefers the candidate snapshot over the live one.
func crtcStateFor(state *AtomicState, crtc *Crtc) *CrtcState {
	if cs, ok := state.crtcs[crtc.ID()]; ok {
		return cs
	}
	return crtc.state
}
