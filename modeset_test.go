package drmcore_test

import (
	"testing"

	drm "github.com/NeowayLabs/drmcore"
	"github.com/NeowayLabs/drmcore/mode"
)

func TestInitialModesetLightsConnectedOutputs(t *testing.T) {
	card := newTestCard(t, nil)

	modesets, err := drm.InitialModeset(card.dev)
	if err != nil {
		t.Fatal(err)
	}
	if len(modesets) != 2 {
		t.Fatalf("%d modesets, want 2", len(modesets))
	}
	if modesets[0].Crtc == modesets[1].Crtc {
		t.Fatal("both connectors landed on one crtc")
	}
	for _, ms := range modesets {
		if !ms.Crtc.DrmState().Active {
			t.Fatalf("crtc %d not active", ms.Crtc.ID())
		}
		if ms.Connector.DrmState().Crtc != ms.Crtc {
			t.Fatalf("connector %d not routed", ms.Connector.ID())
		}
		if ms.Width == 0 || ms.Height == 0 {
			t.Fatalf("degenerate mode %dx%d", ms.Width, ms.Height)
		}
	}
}

func TestInitialModesetSkipsDisconnected(t *testing.T) {
	card := newTestCard(t, nil)
	card.conn1.SetCurrentStatus(mode.Disconnected)

	modesets, err := drm.InitialModeset(card.dev)
	if err != nil {
		t.Fatal(err)
	}
	if len(modesets) != 1 {
		t.Fatalf("%d modesets, want 1", len(modesets))
	}
	if modesets[0].Connector != card.conn0 {
		t.Fatal("wrong connector lit")
	}
	if card.crtc1.DrmState().Active {
		t.Fatal("crtc for disconnected output activated")
	}
}

func TestInitialModesetNothingConnected(t *testing.T) {
	card := newTestCard(t, nil)
	card.conn0.SetCurrentStatus(mode.Disconnected)
	card.conn1.SetCurrentStatus(mode.Disconnected)

	modesets, err := drm.InitialModeset(card.dev)
	if err != nil {
		t.Fatal(err)
	}
	if len(modesets) != 0 {
		t.Fatalf("%d modesets on a dark device", len(modesets))
	}
}
