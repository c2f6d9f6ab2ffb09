package ioctl

import (
	"golang.org/x/sys/unix"
)

// Do issues a raw ioctl on fd. Drivers sitting on top of a real DRM node
// use it to punch requests through to the kernel.
func Do(fd, cmd, ptr uintptr) error {
	_, _, errcode := unix.Syscall(unix.SYS_IOCTL, fd, cmd, ptr)
	if errcode != 0 {
		return errcode
	}
	return nil
}
