package drmcore_test

import (
	"context"
	"errors"
	"io"
	"testing"

	drm "github.com/NeowayLabs/drmcore"
)

// scriptedConn feeds a fixed request sequence and records every reply.
type scriptedConn struct {
	requests []drm.Request
	replies  []interface{}
	errs     []error
}

func (c *scriptedConn) Next(ctx context.Context) (drm.Request, error) {
	if len(c.requests) == 0 {
		return nil, io.EOF
	}
	req := c.requests[0]
	c.requests = c.requests[1:]
	return req, nil
}

func (c *scriptedConn) Reply(resp interface{}, err error) error {
	c.replies = append(c.replies, resp)
	c.errs = append(c.errs, err)
	return nil
}

func TestServeDrmDevice(t *testing.T) {
	card := newTestCard(t, nil)

	conn := &scriptedConn{requests: []drm.Request{
		&drm.VersionReq{},
		&drm.ResourcesReq{},
		&drm.GetConnectorReq{ID: 9999},
	}}
	if err := drm.ServeDrmDevice(context.Background(), card.dev, conn); err != nil {
		t.Fatal(err)
	}
	if len(conn.replies) != 3 {
		t.Fatalf("%d replies", len(conn.replies))
	}

	version, ok := conn.replies[0].(*drm.VersionResp)
	if !ok || version.Name != "testcard" {
		t.Fatalf("version reply %#v", conn.replies[0])
	}
	resources, ok := conn.replies[1].(*drm.ResourcesResp)
	if !ok || len(resources.Crtcs) != 2 {
		t.Fatalf("resources reply %#v", conn.replies[1])
	}
	// Errors travel through the reply channel, they do not kill the
	// loop.
	if !errors.Is(conn.errs[2], drm.ErrNotFound) {
		t.Fatalf("lookup error %v", conn.errs[2])
	}
}

func TestServeCleansUpFile(t *testing.T) {
	card := newTestCard(t, nil)

	// A dumb buffer plus framebuffer created through the connection
	// must not survive it.
	conn := &scriptedConn{requests: []drm.Request{
		&drm.CreateDumbReq{Width: 640, Height: 480, Bpp: 32},
	}}
	if err := drm.ServeDrmDevice(context.Background(), card.dev, conn); err != nil {
		t.Fatal(err)
	}
	created, ok := conn.replies[0].(*drm.CreateDumbResp)
	if !ok || created.Handle == 0 {
		t.Fatalf("create dumb reply %#v", conn.replies[0])
	}

	conn = &scriptedConn{requests: []drm.Request{
		&drm.CreateDumbReq{Width: 640, Height: 480, Bpp: 32},
	}}
	conn.requests = append(conn.requests, &drm.AddFBReq{
		Width: 640, Height: 480, Pitch: 640 * 4,
		Bpp: 32, Depth: 24, Handle: 1,
	})
	if err := drm.ServeDrmDevice(context.Background(), card.dev, conn); err != nil {
		t.Fatal(err)
	}
	if conn.errs[1] != nil {
		t.Fatal(conn.errs[1])
	}
	added := conn.replies[1].(*drm.AddFBResp)
	if _, err := card.dev.FindFrameBuffer(added.FbID); !errors.Is(err, drm.ErrNotFound) {
		t.Fatalf("framebuffer survived the connection: %v", err)
	}
}
