package drmcore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports an unknown object id, handle or credential.
	ErrNotFound = errors.New("drm: not found")

	// ErrWouldBlock reports a non-blocking read or poll with nothing
	// pending.
	ErrWouldBlock = errors.New("drm: operation would block")

	// ErrPermissionDenied reports an object that exists but is not
	// reachable from the caller's namespace.
	ErrPermissionDenied = errors.New("drm: permission denied")

	// ErrExhausted reports an exhausted id or range allocator. It is
	// fatal to the request, never to the device.
	ErrExhausted = errors.New("drm: allocator exhausted")

	// ErrInvalidState reports a Configuration method called outside the
	// Initial -> Captured -> {Committed, Disposed} protocol.
	ErrInvalidState = errors.New("drm: configuration in invalid state")

	// ErrNotSupported reports an operation the device was built without,
	// such as dumb buffer creation on a device with no allocator.
	ErrNotSupported = errors.New("drm: operation not supported")
)

// ValidationError reports why a candidate atomic state was rejected.
// Capture returns it without touching any live state.
type ValidationError struct {
	ObjectID uint32
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.ObjectID != 0 {
		return fmt.Sprintf("drm: invalid configuration for object %d: %s", e.ObjectID, e.Reason)
	}
	return fmt.Sprintf("drm: invalid configuration: %s", e.Reason)
}

func validationErr(id uint32, format string, args ...interface{}) error {
	return &ValidationError{ObjectID: id, Reason: fmt.Sprintf(format, args...)}
}
