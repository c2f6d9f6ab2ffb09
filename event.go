package drmcore

import (
	"encoding/binary"
)

// Event is a completion notification queued on the file that issued the
// triggering request.
type Event struct {
	// Cookie is the caller-supplied correlation id (user_data).
	Cookie uint64

	// CrtcID names the crtc whose flip completed.
	CrtcID uint32

	// Timestamp is the hardware completion time in nanoseconds.
	Timestamp uint64
}

// EventRecordSize is the encoded size of one event: struct drm_event
// followed by the drm_event_vblank payload.
const EventRecordSize = 32

const eventFlipComplete = 0x02

// encode serializes the event into the drm_event_vblank wire layout.
func (e Event) encode(sequence uint32, buf []byte) {
	sec := e.Timestamp / 1e9
	usec := (e.Timestamp % 1e9) / 1e3

	binary.LittleEndian.PutUint32(buf[0:], eventFlipComplete)
	binary.LittleEndian.PutUint32(buf[4:], EventRecordSize)
	binary.LittleEndian.PutUint64(buf[8:], e.Cookie)
	binary.LittleEndian.PutUint32(buf[16:], uint32(sec))
	binary.LittleEndian.PutUint32(buf[20:], uint32(usec))
	binary.LittleEndian.PutUint32(buf[24:], sequence)
	binary.LittleEndian.PutUint32(buf[28:], e.CrtcID)
}
