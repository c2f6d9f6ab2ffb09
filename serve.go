package drmcore

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"
)

// Conn carries decoded requests from one client. Next blocks until a
// request arrives or the stream ends with io.EOF; Reply delivers the
// response (or error) for the most recent request.
type Conn interface {
	Next(ctx context.Context) (Request, error)
	Reply(resp interface{}, err error) error
}

// ServeDrmDevice runs the request loop for a single client connection.
// It owns the per-client File: handles, framebuffer attachments and the
// event queue all die with the connection.
func ServeDrmDevice(ctx context.Context, dev *Device, conn Conn) error {
	file := NewFile(dev)
	defer file.Close()

	log := dev.log.WithField("subsys", "serve")
	log.Debug("client connected")

	for {
		req, err := conn.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug("client disconnected")
				return nil
			}
			return err
		}

		resp, err := file.Ioctl(ctx, req)
		if err != nil {
			log.WithFields(logrus.Fields{
				"request": req.Code(),
				"error":   err,
			}).Debug("request failed")
		}
		if err := conn.Reply(resp, err); err != nil {
			return err
		}
	}
}
