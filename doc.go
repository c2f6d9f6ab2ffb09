// Package drmcore implements the device-agnostic mode-setting and
// buffer-management core of a DRM/KMS-style display subsystem. It owns
// the mode-object graph (connectors, encoders, crtcs, planes,
// framebuffers), the atomic capture/commit protocol that reconfigures
// that graph without partial application, and the per-connection
// resource namespace (buffer handles, framebuffers, pending events).
// Hardware drivers plug in underneath through the Programmer and
// BufferAllocator interfaces; request decoding sits on top and calls
// into File.Ioctl.
package drmcore
