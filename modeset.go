package drmcore

import (
	"fmt"

	"github.com/NeowayLabs/drmcore/mode"
)

// Modeset records one connector brought up during the initial modeset.
type Modeset struct {
	Width, Height uint16

	Connector *Connector
	Crtc      *Crtc
	Encoder   *Encoder
}

// InitialModeset lights up every connected connector on a free crtc,
// preferring each connector's first (highest priority) mode. Connectors
// that cannot be routed are skipped; the rest are committed in a single
// configuration.
func InitialModeset(dev *Device) ([]Modeset, error) {
	var (
		modesets    []Modeset
		assignments []Assignment
	)

	for _, conn := range dev.Connectors() {
		if conn.CurrentStatus() != mode.Connected {
			continue
		}
		modes := conn.ModeList()
		if len(modes) == 0 {
			return nil, fmt.Errorf("connector %d: no valid mode", conn.ID())
		}

		crtc, enc := findCrtc(dev, conn, modesets)
		if crtc == nil {
			dev.log.WithField("connector", conn.ID()).
				Warn("no free crtc for connector, skipping")
			continue
		}

		info := modes[0]
		blob, err := dev.CreateBlob(info.Marshal())
		if err != nil {
			return nil, err
		}
		assignments = append(assignments,
			AssignInt(crtc, dev.props.active, 1),
			AssignBlob(crtc, dev.props.modeID, blob),
			AssignObject(conn, dev.props.crtcID, crtc),
		)

		modesets = append(modesets, Modeset{
			Width:     info.Hdisplay,
			Height:    info.Vdisplay,
			Connector: conn,
			Crtc:      crtc,
			Encoder:   enc,
		})
	}

	if len(assignments) == 0 {
		return nil, nil
	}

	cfg := NewConfiguration(dev)
	state, err := cfg.Capture(assignments)
	if err != nil {
		return nil, err
	}
	if err := cfg.Commit(state); err != nil {
		return nil, err
	}
	return modesets, nil
}

// findCrtc picks a crtc for the connector, preferring whatever its
// current encoder already drives. Crtcs claimed by an earlier modeset
// entry are off limits.
func findCrtc(dev *Device, conn *Connector, taken []Modeset) (*Crtc, *Encoder) {
	isTaken := func(crtc *Crtc) bool {
		for i := range taken {
			if taken[i].Crtc == crtc {
				return true
			}
		}
		return false
	}

	if enc := conn.CurrentEncoder(); enc != nil {
		if crtc := enc.CurrentCrtc(); crtc != nil && !isTaken(crtc) {
			return crtc, enc
		}
	}

	// The connector is not bound yet, or its encoder's crtc is already
	// claimed by another connector. Walk the alternatives.
	for _, enc := range conn.PossibleEncoders() {
		for _, crtc := range enc.PossibleCrtcs() {
			if !isTaken(crtc) {
				return crtc, enc
			}
		}
	}
	return nil, nil
}
