package drmcore_test

import (
	"context"
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	drm "github.com/NeowayLabs/drmcore"
	"github.com/NeowayLabs/drmcore/config"
	"github.com/NeowayLabs/drmcore/memory"
	"github.com/NeowayLabs/drmcore/mode"
)

// testCard is a two-head pipeline: two crtcs with primary and cursor
// planes, one shared overlay, two encoders and two connectors. The
// first encoder reaches both crtcs; the second only the second crtc.
type testCard struct {
	dev *drm.Device

	crtc0, crtc1       *drm.Crtc
	primary0, primary1 *drm.Plane
	cursor0, cursor1   *drm.Plane
	overlay            *drm.Plane
	enc0, enc1         *drm.Encoder
	conn0, conn1       *drm.Connector
}

func newTestCard(t *testing.T, prog drm.Programmer) *testCard {
	t.Helper()

	limits := config.Default().Device
	limits.EventQueueDepth = 8
	dev := drm.NewDevice(drm.DeviceInfo{
		Name:  "testcard",
		Desc:  "synthetic test device",
		Date:  "20260826",
		Major: 1,
	}, limits, prog, memory.Allocator{})

	card := &testCard{dev: dev}
	var err error
	fatal := func() {
		if err != nil {
			t.Fatal(err)
		}
	}

	card.primary0, err = dev.AddPlane(drm.PlanePrimary)
	fatal()
	card.cursor0, err = dev.AddPlane(drm.PlaneCursor)
	fatal()
	card.primary1, err = dev.AddPlane(drm.PlanePrimary)
	fatal()
	card.cursor1, err = dev.AddPlane(drm.PlaneCursor)
	fatal()
	card.overlay, err = dev.AddPlane(drm.PlaneOverlay)
	fatal()

	card.crtc0, err = dev.AddCrtc(card.primary0, card.cursor0)
	fatal()
	card.crtc1, err = dev.AddCrtc(card.primary1, card.cursor1)
	fatal()

	card.primary0.SetupPossibleCrtcs([]*drm.Crtc{card.crtc0})
	card.cursor0.SetupPossibleCrtcs([]*drm.Crtc{card.crtc0})
	card.primary1.SetupPossibleCrtcs([]*drm.Crtc{card.crtc1})
	card.cursor1.SetupPossibleCrtcs([]*drm.Crtc{card.crtc1})
	card.overlay.SetupPossibleCrtcs([]*drm.Crtc{card.crtc0, card.crtc1})

	card.enc0, err = dev.AddEncoder(mode.EncoderTMDS)
	fatal()
	card.enc1, err = dev.AddEncoder(mode.EncoderTMDS)
	fatal()
	card.enc0.SetupPossibleCrtcs([]*drm.Crtc{card.crtc0, card.crtc1})
	card.enc1.SetupPossibleCrtcs([]*drm.Crtc{card.crtc1})

	card.conn0, err = dev.AddConnector(mode.ConnectorHDMIA)
	fatal()
	card.conn1, err = dev.AddConnector(mode.ConnectorDisplayPort)
	fatal()
	card.conn0.SetupPossibleEncoders([]*drm.Encoder{card.enc0})
	card.conn1.SetupPossibleEncoders([]*drm.Encoder{card.enc0, card.enc1})

	modes := mode.AddDMTModes(nil, limits.MaxWidth, limits.MaxHeight)
	for _, conn := range []*drm.Connector{card.conn0, card.conn1} {
		conn.SetModeList(modes)
		conn.SetCurrentStatus(mode.Connected)
		conn.SetupPhysicalDimensions(520, 290)
		conn.SetupSubpixel(mode.SubpixelHorizontalRGB)
	}

	return card
}

// addFramebuffer creates a heap-backed framebuffer of the given size.
func (card *testCard) addFramebuffer(t *testing.T, width, height uint32) *drm.FrameBuffer {
	t.Helper()
	pitch := width * 4
	bo := memory.NewBuffer(uint64(pitch) * uint64(height))
	fb, err := card.dev.AddFrameBuffer(bo, width, height, mode.FormatXRGB8888, pitch)
	if err != nil {
		t.Fatal(err)
	}
	return fb
}

// modeBlob wraps a mode descriptor in a property blob.
func (card *testCard) modeBlob(t *testing.T, info mode.Info) *drm.Blob {
	t.Helper()
	blob, err := card.dev.CreateBlob(info.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	return blob
}

// lightUp activates crtc0 with the given mode, routes conn0 to it and
// puts fb on the primary plane.
func (card *testCard) lightUp(t *testing.T, info mode.Info, fb *drm.FrameBuffer) {
	t.Helper()
	dev := card.dev
	cfg := drm.NewConfiguration(dev)
	state, err := cfg.Capture([]drm.Assignment{
		drm.AssignInt(card.crtc0, dev.ActiveProperty(), 1),
		drm.AssignBlob(card.crtc0, dev.ModeIDProperty(), card.modeBlob(t, info)),
		drm.AssignObject(card.conn0, dev.CrtcIDProperty(), card.crtc0),
		drm.AssignObject(card.primary0, dev.CrtcIDProperty(), card.crtc0),
		drm.AssignObject(card.primary0, dev.FbIDProperty(), fb),
		drm.AssignInt(card.primary0, dev.CrtcWProperty(), uint64(info.Hdisplay)),
		drm.AssignInt(card.primary0, dev.CrtcHProperty(), uint64(info.Vdisplay)),
		drm.AssignInt(card.primary0, dev.SrcWProperty(), uint64(info.Hdisplay)),
		drm.AssignInt(card.primary0, dev.SrcHProperty(), uint64(info.Vdisplay)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Commit(state); err != nil {
		t.Fatal(err)
	}
	if err := cfg.WaitForCompletion(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func testMode() mode.Info {
	return mode.New("1024x768", mode.TypeDriver, 65000,
		1024, 1048, 1184, 1344, 0, 768, 771, 777, 806, 0,
		mode.FlagNHSync|mode.FlagNVSync)
}

func TestMain(m *testing.M) {
	logrus.SetLevel(logrus.PanicLevel)
	os.Exit(m.Run())
}
