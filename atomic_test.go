package drmcore_test

import (
	"context"
	"errors"
	"testing"

	drm "github.com/NeowayLabs/drmcore"
	"github.com/NeowayLabs/drmcore/mode"
)

func TestCaptureRejectsActiveCrtcWithoutMode(t *testing.T) {
	card := newTestCard(t, nil)
	dev := card.dev

	cfg := drm.NewConfiguration(dev)
	_, err := cfg.Capture([]drm.Assignment{
		drm.AssignInt(card.crtc0, dev.ActiveProperty(), 1),
	})
	if err == nil {
		t.Fatal("expected capture to fail")
	}
	var verr *drm.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if card.crtc0.DrmState().Active {
		t.Fatal("failed capture leaked into live state")
	}
}

func TestFailedCaptureLeavesStateUntouched(t *testing.T) {
	card := newTestCard(t, nil)
	dev := card.dev

	fb := card.addFramebuffer(t, 1024, 768)
	card.lightUp(t, testMode(), fb)
	before := card.conn0.Assignments(dev)

	// The mode blob is valid, the framebuffer binding on the primary
	// plane is not: plane validation rejects a crtc with no fb.
	cfg := drm.NewConfiguration(dev)
	_, err := cfg.Capture([]drm.Assignment{
		drm.AssignObject(card.conn0, dev.CrtcIDProperty(), nil),
		drm.AssignObject(card.primary0, dev.FbIDProperty(), nil),
		drm.AssignInt(card.crtc0, dev.ActiveProperty(), 0),
		drm.AssignBlob(card.crtc0, dev.ModeIDProperty(), nil),
		// Still bound to crtc0 while the fb is gone.
		drm.AssignObject(card.overlay, dev.CrtcIDProperty(), card.crtc0),
	})
	if err == nil {
		t.Fatal("expected capture to fail")
	}

	after := card.conn0.Assignments(dev)
	if len(before) != len(after) {
		t.Fatalf("assignment count changed: %d != %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("assignment %d changed after failed capture", i)
		}
	}
	if !card.crtc0.DrmState().Active {
		t.Fatal("crtc deactivated by failed capture")
	}
	if card.primary0.CurrentFrameBuffer() != fb {
		t.Fatal("primary plane lost its framebuffer")
	}
}

func TestCommitPublishesWholePipeline(t *testing.T) {
	card := newTestCard(t, nil)

	fb := card.addFramebuffer(t, 1024, 768)
	card.lightUp(t, testMode(), fb)

	if !card.crtc0.DrmState().Active {
		t.Fatal("crtc not active after commit")
	}
	if card.crtc0.DrmState().Mode == nil {
		t.Fatal("crtc has no mode after commit")
	}
	if card.conn0.DrmState().Crtc != card.crtc0 {
		t.Fatal("connector not routed to crtc")
	}
	if card.conn0.CurrentEncoder() != card.enc0 {
		t.Fatalf("connector encoder not published: %v", card.conn0.CurrentEncoder())
	}
	if card.enc0.CurrentCrtc() != card.crtc0 {
		t.Fatal("encoder crtc not published")
	}
	if card.primary0.CurrentFrameBuffer() != fb {
		t.Fatal("plane framebuffer not published")
	}
}

func TestConfigurationProtocol(t *testing.T) {
	card := newTestCard(t, nil)
	dev := card.dev

	cfg := drm.NewConfiguration(dev)
	state, err := cfg.Capture(nil)
	if err != nil {
		t.Fatal(err)
	}

	// A second capture on the same configuration is a protocol error.
	if _, err := cfg.Capture(nil); !errors.Is(err, drm.ErrInvalidState) {
		t.Fatalf("second capture: expected ErrInvalidState, got %v", err)
	}

	// Committing a foreign state is a protocol error.
	other := drm.NewConfiguration(dev)
	otherState, err := other.Capture(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Commit(otherState); !errors.Is(err, drm.ErrInvalidState) {
		t.Fatalf("foreign state commit: expected ErrInvalidState, got %v", err)
	}
	if err := other.Dispose(); err != nil {
		t.Fatal(err)
	}

	if err := cfg.Commit(state); err != nil {
		t.Fatal(err)
	}
	// Neither commit nor dispose may follow a commit.
	if err := cfg.Commit(state); !errors.Is(err, drm.ErrInvalidState) {
		t.Fatalf("double commit: expected ErrInvalidState, got %v", err)
	}
	if err := cfg.Dispose(); !errors.Is(err, drm.ErrInvalidState) {
		t.Fatalf("dispose after commit: expected ErrInvalidState, got %v", err)
	}
}

func TestDisposeDropsCandidate(t *testing.T) {
	card := newTestCard(t, nil)
	dev := card.dev

	fb := card.addFramebuffer(t, 1024, 768)
	cfg := drm.NewConfiguration(dev)
	_, err := cfg.Capture([]drm.Assignment{
		drm.AssignInt(card.crtc0, dev.ActiveProperty(), 1),
		drm.AssignBlob(card.crtc0, dev.ModeIDProperty(), card.modeBlob(t, testMode())),
		drm.AssignObject(card.conn0, dev.CrtcIDProperty(), card.crtc0),
		drm.AssignObject(card.primary0, dev.CrtcIDProperty(), card.crtc0),
		drm.AssignObject(card.primary0, dev.FbIDProperty(), fb),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Dispose(); err != nil {
		t.Fatal(err)
	}
	if card.crtc0.DrmState().Active {
		t.Fatal("disposed capture leaked into live state")
	}
	if card.conn0.DrmState().Crtc != nil {
		t.Fatal("disposed capture routed a connector")
	}
}

func TestIdempotentReconfiguration(t *testing.T) {
	card := newTestCard(t, nil)
	dev := card.dev

	fb := card.addFramebuffer(t, 1024, 768)
	card.lightUp(t, testMode(), fb)
	blob := card.crtc0.DrmState().Mode

	// Re-assert the exact same pipeline. The capture must succeed and
	// the crtc must not report a mode or active change.
	cfg := drm.NewConfiguration(dev)
	state, err := cfg.Capture([]drm.Assignment{
		drm.AssignInt(card.crtc0, dev.ActiveProperty(), 1),
		drm.AssignObject(card.conn0, dev.CrtcIDProperty(), card.crtc0),
		drm.AssignObject(card.primary0, dev.FbIDProperty(), fb),
	})
	if err != nil {
		t.Fatal(err)
	}
	cs := state.Crtc(card.crtc0)
	if cs.ActiveChanged {
		t.Fatal("re-asserting ACTIVE=1 flagged an active change")
	}
	if cs.ModeChanged {
		t.Fatal("untouched mode flagged a mode change")
	}
	if err := cfg.Commit(state); err != nil {
		t.Fatal(err)
	}
	if card.crtc0.DrmState().Mode != blob {
		t.Fatal("mode blob replaced by idempotent commit")
	}
}

func TestEncoderRouting(t *testing.T) {
	card := newTestCard(t, nil)
	dev := card.dev

	fb := card.addFramebuffer(t, 1024, 768)

	// Both connectors lit on separate crtcs in one commit: conn0 can
	// only use enc0, so conn1 on crtc1 must pick enc1.
	cfg := drm.NewConfiguration(dev)
	state, err := cfg.Capture([]drm.Assignment{
		drm.AssignInt(card.crtc0, dev.ActiveProperty(), 1),
		drm.AssignBlob(card.crtc0, dev.ModeIDProperty(), card.modeBlob(t, testMode())),
		drm.AssignInt(card.crtc1, dev.ActiveProperty(), 1),
		drm.AssignBlob(card.crtc1, dev.ModeIDProperty(), card.modeBlob(t, testMode())),
		drm.AssignObject(card.conn0, dev.CrtcIDProperty(), card.crtc0),
		drm.AssignObject(card.conn1, dev.CrtcIDProperty(), card.crtc1),
		drm.AssignObject(card.primary0, dev.CrtcIDProperty(), card.crtc0),
		drm.AssignObject(card.primary0, dev.FbIDProperty(), fb),
		drm.AssignObject(card.primary1, dev.CrtcIDProperty(), card.crtc1),
		drm.AssignObject(card.primary1, dev.FbIDProperty(), fb),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Commit(state); err != nil {
		t.Fatal(err)
	}
	if card.conn0.CurrentEncoder() != card.enc0 {
		t.Fatal("conn0 did not get enc0")
	}
	if card.conn1.CurrentEncoder() == nil {
		t.Fatal("conn1 got no encoder")
	}
}

func TestCloningRequiresMutualClones(t *testing.T) {
	card := newTestCard(t, nil)
	dev := card.dev

	fb := card.addFramebuffer(t, 1024, 768)

	capture := func() error {
		cfg := drm.NewConfiguration(dev)
		state, err := cfg.Capture([]drm.Assignment{
			drm.AssignInt(card.crtc1, dev.ActiveProperty(), 1),
			drm.AssignBlob(card.crtc1, dev.ModeIDProperty(), card.modeBlob(t, testMode())),
			drm.AssignObject(card.conn0, dev.CrtcIDProperty(), card.crtc1),
			drm.AssignObject(card.conn1, dev.CrtcIDProperty(), card.crtc1),
			drm.AssignObject(card.primary1, dev.CrtcIDProperty(), card.crtc1),
			drm.AssignObject(card.primary1, dev.FbIDProperty(), fb),
		})
		if err != nil {
			return err
		}
		return cfg.Commit(state)
	}

	// Without clone lists the two encoders may not share crtc1.
	if err := capture(); err == nil {
		t.Fatal("expected clone validation to fail")
	}

	card.enc0.SetupPossibleClones([]*drm.Encoder{card.enc1})
	card.enc1.SetupPossibleClones([]*drm.Encoder{card.enc0})
	if err := capture(); err != nil {
		t.Fatalf("mutual clones rejected: %v", err)
	}
}

func TestModeShrinkRevalidatesBoundPlanes(t *testing.T) {
	card := newTestCard(t, nil)
	dev := card.dev

	fb := card.addFramebuffer(t, 1024, 768)
	card.lightUp(t, testMode(), fb)

	small := mode.New("640x480", mode.TypeDriver, 25175,
		640, 656, 752, 800, 0, 480, 490, 492, 525, 0,
		mode.FlagNHSync|mode.FlagNVSync)

	// Only the mode is touched; the primary plane still covers
	// 1024x768 and must be re-checked against the smaller mode.
	cfg := drm.NewConfiguration(dev)
	_, err := cfg.Capture([]drm.Assignment{
		drm.AssignBlob(card.crtc0, dev.ModeIDProperty(), card.modeBlob(t, small)),
	})
	if err == nil {
		t.Fatal("mode shrink accepted with primary plane outside the visible area")
	}
	var verr *drm.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Shrinking the plane in the same capture makes the mode legal.
	cfg = drm.NewConfiguration(dev)
	state, err := cfg.Capture([]drm.Assignment{
		drm.AssignBlob(card.crtc0, dev.ModeIDProperty(), card.modeBlob(t, small)),
		drm.AssignInt(card.primary0, dev.CrtcWProperty(), 640),
		drm.AssignInt(card.primary0, dev.CrtcHProperty(), 480),
		drm.AssignInt(card.primary0, dev.SrcWProperty(), 640),
		drm.AssignInt(card.primary0, dev.SrcHProperty(), 480),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Commit(state); err != nil {
		t.Fatal(err)
	}
}

func TestUnroutingClearsEncoderCrtc(t *testing.T) {
	card := newTestCard(t, nil)
	dev := card.dev

	fb := card.addFramebuffer(t, 1024, 768)
	card.lightUp(t, testMode(), fb)
	if card.enc0.CurrentCrtc() != card.crtc0 {
		t.Fatal("encoder crtc not published by light-up")
	}

	cfg := drm.NewConfiguration(dev)
	state, err := cfg.Capture([]drm.Assignment{
		drm.AssignObject(card.conn0, dev.CrtcIDProperty(), nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Commit(state); err != nil {
		t.Fatal(err)
	}
	if card.conn0.CurrentEncoder() != nil {
		t.Fatal("unrouted connector still reports an encoder")
	}
	if card.enc0.CurrentCrtc() != nil {
		t.Fatal("released encoder still reports a crtc")
	}
}

func TestPlaneSourceRectValidation(t *testing.T) {
	card := newTestCard(t, nil)
	dev := card.dev

	fb := card.addFramebuffer(t, 1024, 768)
	card.lightUp(t, testMode(), fb)

	cfg := drm.NewConfiguration(dev)
	_, err := cfg.Capture([]drm.Assignment{
		drm.AssignObject(card.overlay, dev.CrtcIDProperty(), card.crtc0),
		drm.AssignObject(card.overlay, dev.FbIDProperty(), fb),
		drm.AssignInt(card.overlay, dev.SrcXProperty(), 1000),
		drm.AssignInt(card.overlay, dev.SrcWProperty(), 100),
		drm.AssignInt(card.overlay, dev.SrcHProperty(), 100),
	})
	if err == nil {
		t.Fatal("source rect beyond framebuffer accepted")
	}
}

func TestPlaneCrtcRestriction(t *testing.T) {
	card := newTestCard(t, nil)
	dev := card.dev

	fb := card.addFramebuffer(t, 1024, 768)
	cfg := drm.NewConfiguration(dev)
	_, err := cfg.Capture([]drm.Assignment{
		drm.AssignObject(card.primary0, dev.CrtcIDProperty(), card.crtc1),
		drm.AssignObject(card.primary0, dev.FbIDProperty(), fb),
	})
	if err == nil {
		t.Fatal("plane bound to a crtc outside its possible set")
	}
}

func TestModeExceedingLimitsRejected(t *testing.T) {
	card := newTestCard(t, nil)
	dev := card.dev

	huge := mode.New("8192x8192", mode.TypeDriver, 1083000,
		8192, 8200, 8300, 8400, 0, 8192, 8200, 8210, 8250, 0, 0)
	cfg := drm.NewConfiguration(dev)
	_, err := cfg.Capture([]drm.Assignment{
		drm.AssignInt(card.crtc0, dev.ActiveProperty(), 1),
		drm.AssignBlob(card.crtc0, dev.ModeIDProperty(), card.modeBlob(t, huge)),
	})
	if err == nil {
		t.Fatal("mode beyond device limits accepted")
	}
}

type recordingProgrammer struct {
	calls     int
	timestamp uint64
}

func (p *recordingProgrammer) Program(ctx context.Context, state *drm.AtomicState) (uint64, error) {
	p.calls++
	return p.timestamp, nil
}

func TestProgrammerTimestampPropagates(t *testing.T) {
	prog := &recordingProgrammer{timestamp: 12345678}
	card := newTestCard(t, prog)

	fb := card.addFramebuffer(t, 1024, 768)
	dev := card.dev
	cfg := drm.NewConfiguration(dev)
	state, err := cfg.Capture([]drm.Assignment{
		drm.AssignInt(card.crtc0, dev.ActiveProperty(), 1),
		drm.AssignBlob(card.crtc0, dev.ModeIDProperty(), card.modeBlob(t, testMode())),
		drm.AssignObject(card.primary0, dev.CrtcIDProperty(), card.crtc0),
		drm.AssignObject(card.primary0, dev.FbIDProperty(), fb),
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
	ts, ok := cfg.Timestamp()
	if !ok {
		t.Fatal("no timestamp after completion")
	}
	if ts != prog.timestamp {
		t.Fatalf("timestamp %d, want %d", ts, prog.timestamp)
	}
	if prog.calls != 1 {
		t.Fatalf("programmer called %d times", prog.calls)
	}
}
