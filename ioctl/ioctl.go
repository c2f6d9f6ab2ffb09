package ioctl

import (
	"fmt"
)

// To decode a hex IOCTL code:
//
// Most architectures use this generic format, but check
// include/ARCH/ioctl.h for specifics, e.g. powerpc
// uses 3 bits to encode read/write and 13 bits for size.
//
//  bits    meaning
//  31-30	00 - no parameters: uses _IO macro
// 	10 - read: _IOR
// 	01 - write: _IOW
// 	11 - read/write: _IOWR
//
//  29-16	size of arguments
//
//  15-8	ascii character supposedly
// 	unique to each driver
//
//  7-0	function #
//
// source: https://www.kernel.org/doc/Documentation/ioctl/ioctl-decoding.txt

type Code struct {
	typ  uint8  // type of ioctl call (read, write, both or none)
	sz   uint16 // size of arguments (only 13bits usable)
	uniq uint8  // unique ascii character for this device
	fn   uint8  // function code
}

const (
	None  = uint8(0x0)
	Write = uint8(0x1)
	Read  = uint8(0x2)
)

func NewCode(typ uint8, sz uint16, uniq, fn uint8) uint32 {
	var code uint32
	if typ > Write|Read {
		panic(fmt.Errorf("invalid ioctl code value: %d\n", typ))
	}

	if sz > 2<<14 {
		panic(fmt.Errorf("invalid ioctl size value: %d\n", sz))
	}

	code = code | (uint32(typ) << 30)
	code = code | (uint32(sz) << 16) // sz has 14bits
	code = code | (uint32(uniq) << 8)
	code = code | uint32(fn)
	return code
}

// DecodeCode splits a packed ioctl code back into its components; the
// dispatch layer uses it to sanity check request sizes before handing the
// payload to the core.
func DecodeCode(code uint32) Code {
	return Code{
		typ:  uint8(code >> 30),
		sz:   uint16((code >> 16) & 0x3fff),
		uniq: uint8(code >> 8),
		fn:   uint8(code),
	}
}

// Type reports the direction bits of the code.
func (c Code) Type() uint8 { return c.typ }

// Size reports the encoded argument size.
func (c Code) Size() uint16 { return c.sz }

// Base reports the driver's unique ascii character.
func (c Code) Base() uint8 { return c.uniq }

// Fn reports the function number within the driver.
func (c Code) Fn() uint8 { return c.fn }
