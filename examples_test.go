package drmcore_test

import (
	"fmt"

	drm "github.com/NeowayLabs/drmcore"
	"github.com/NeowayLabs/drmcore/config"
	"github.com/NeowayLabs/drmcore/memory"
	"github.com/NeowayLabs/drmcore/mode"
)

func ExampleInitialModeset() {
	// Build a single-head device: one primary plane, one crtc, one
	// encoder and one connected HDMI port.
	dev := drm.NewDevice(drm.DeviceInfo{Name: "example"},
		config.Default().Device, nil, memory.Allocator{})

	primary, _ := dev.AddPlane(drm.PlanePrimary)
	crtc, _ := dev.AddCrtc(primary, nil)
	primary.SetupPossibleCrtcs([]*drm.Crtc{crtc})

	enc, _ := dev.AddEncoder(mode.EncoderTMDS)
	enc.SetupPossibleCrtcs([]*drm.Crtc{crtc})

	conn, _ := dev.AddConnector(mode.ConnectorHDMIA)
	conn.SetupPossibleEncoders([]*drm.Encoder{enc})
	conn.SetModeList(mode.AddDMTModes(nil, 1024, 768))
	conn.SetCurrentStatus(mode.Connected)

	// Light up every connected output on its preferred mode.
	modesets, err := drm.InitialModeset(dev)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, ms := range modesets {
		fmt.Printf("%dx%d on crtc %d\n", ms.Width, ms.Height, ms.Crtc.Index)
	}

	// Output: 640x480 on crtc 0
}
