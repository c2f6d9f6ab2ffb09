package ioctl

import (
	"strconv"
	"testing"
)

func getbits(n uint32) string {
	return strconv.FormatUint(uint64(n), 2)
}

func TestNewCode(t *testing.T) {
	code := NewCode(Read, 0x218, 'r', 1)
	expected := uint32(0x82187201)
	if code != expected {
		t.Errorf("Expected %s but got %s", getbits(expected),
			getbits(code))
		return
	}
}

func TestDecodeCode(t *testing.T) {
	code := NewCode(Read|Write, 68, 'd', 0xA0)
	decoded := DecodeCode(code)
	if decoded.Type() != Read|Write {
		t.Errorf("type %d", decoded.Type())
	}
	if decoded.Size() != 68 {
		t.Errorf("size %d", decoded.Size())
	}
	if decoded.Base() != 'd' {
		t.Errorf("base %c", decoded.Base())
	}
	if decoded.Fn() != 0xA0 {
		t.Errorf("fn %#x", decoded.Fn())
	}
}
