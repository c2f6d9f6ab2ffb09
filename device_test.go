package drmcore_test

import (
	"errors"
	"testing"

	drm "github.com/NeowayLabs/drmcore"
	"github.com/NeowayLabs/drmcore/config"
	"github.com/NeowayLabs/drmcore/memory"
	"github.com/NeowayLabs/drmcore/mode"
)

func TestAddFrameBufferPitchOverflow(t *testing.T) {
	limits := config.Default().Device
	limits.MaxWidth = 0
	limits.MaxHeight = 0
	dev := drm.NewDevice(drm.DeviceInfo{
		Name:  "testcard",
		Desc:  "synthetic test device",
		Date:  "20260826",
		Major: 1,
	}, limits, nil, memory.Allocator{})

	// width*cpp wraps uint32 on an unbounded device; the undersized
	// pitch must still be rejected.
	width := uint32(1 << 30)
	_, err := dev.AddFrameBuffer(nil, width, 1, mode.FormatXRGB8888, 16)
	if err == nil {
		t.Fatal("wrapping pitch accepted")
	}
	var verr *drm.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
