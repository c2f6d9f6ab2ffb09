// Package mode defines the wire-compatible display mode descriptor and the
// pixel format tables shared by the drm core and its drivers. The Info
// layout matches struct drm_mode_modeinfo bit for bit so that mode blobs
// can be handed to existing clients unchanged.
package mode

import (
	"encoding/binary"
	"fmt"
)

const (
	DisplayInfoLen   = 32
	ConnectorNameLen = 32
	DisplayModeLen   = 32
	PropNameLen      = 32

	Connected         = 1
	Disconnected      = 2
	UnknownConnection = 3
)

// Mode type bits.
const (
	TypeBuiltin   = 1 << 0
	TypePreferred = 1 << 3
	TypeDefault   = 1 << 4
	TypeUserdef   = 1 << 5
	TypeDriver    = 1 << 6
)

// Mode flag bits.
const (
	FlagPHSync    = 1 << 0
	FlagNHSync    = 1 << 1
	FlagPVSync    = 1 << 2
	FlagNVSync    = 1 << 3
	FlagInterlace = 1 << 4
	FlagDblScan   = 1 << 5
	FlagCSync     = 1 << 6
)

// DPMS power states.
const (
	DPMSOn = iota
	DPMSStandby
	DPMSSuspend
	DPMSOff
)

// Connector types.
const (
	ConnectorUnknown = iota
	ConnectorVGA
	ConnectorDVII
	ConnectorDVID
	ConnectorDVIA
	ConnectorComposite
	ConnectorSVideo
	ConnectorLVDS
	ConnectorComponent
	ConnectorDIN
	ConnectorDisplayPort
	ConnectorHDMIA
	ConnectorHDMIB
	ConnectorTV
	ConnectorEDP
	ConnectorVirtual
	ConnectorDSI
)

// Encoder types.
const (
	EncoderNone = iota
	EncoderDAC
	EncoderTMDS
	EncoderLVDS
	EncoderTVDAC
	EncoderVirtual
	EncoderDSI
)

// Subpixel order, shifted by one relative to the kernel encoding to match
// what userspace expects.
const (
	SubpixelUnknown = iota + 1
	SubpixelHorizontalRGB
	SubpixelHorizontalBGR
	SubpixelVerticalRGB
	SubpixelVerticalBGR
	SubpixelNone
)

// InfoSize is the encoded size of Info (struct drm_mode_modeinfo).
const InfoSize = 68

type Info struct {
	Clock                                         uint32
	Hdisplay, HsyncStart, HsyncEnd, Htotal, Hskew uint16
	Vdisplay, VsyncStart, VsyncEnd, Vtotal, Vscan uint16

	Vrefresh uint32

	Flags uint32
	Type  uint32
	Name  [DisplayModeLen]uint8
}

// New builds a mode descriptor from raw timings, computing the refresh
// rate the same way the kernel does.
func New(name string, typ, clock uint32,
	hdisplay, hsyncStart, hsyncEnd, htotal, hskew,
	vdisplay, vsyncStart, vsyncEnd, vtotal, vscan uint16,
	flags uint32) Info {

	info := Info{
		Clock:      clock,
		Hdisplay:   hdisplay,
		HsyncStart: hsyncStart,
		HsyncEnd:   hsyncEnd,
		Htotal:     htotal,
		Hskew:      hskew,
		Vdisplay:   vdisplay,
		VsyncStart: vsyncStart,
		VsyncEnd:   vsyncEnd,
		Vtotal:     vtotal,
		Vscan:      vscan,
		Flags:      flags,
		Type:       typ,
	}
	if htotal != 0 && vtotal != 0 {
		info.Vrefresh = uint32((uint64(clock)*1000 + uint64(htotal)*uint64(vtotal)/2) /
			(uint64(htotal) * uint64(vtotal)))
	}
	copy(info.Name[:], name)
	return info
}

// String returns the mode name up to the first NUL.
func (i *Info) String() string {
	for n, c := range i.Name {
		if c == 0 {
			return string(i.Name[:n])
		}
	}
	return string(i.Name[:])
}

// Marshal encodes the descriptor into the drm_mode_modeinfo wire layout
// (little endian, InfoSize bytes).
func (i *Info) Marshal() []byte {
	buf := make([]byte, InfoSize)
	binary.LittleEndian.PutUint32(buf[0:], i.Clock)
	binary.LittleEndian.PutUint16(buf[4:], i.Hdisplay)
	binary.LittleEndian.PutUint16(buf[6:], i.HsyncStart)
	binary.LittleEndian.PutUint16(buf[8:], i.HsyncEnd)
	binary.LittleEndian.PutUint16(buf[10:], i.Htotal)
	binary.LittleEndian.PutUint16(buf[12:], i.Hskew)
	binary.LittleEndian.PutUint16(buf[14:], i.Vdisplay)
	binary.LittleEndian.PutUint16(buf[16:], i.VsyncStart)
	binary.LittleEndian.PutUint16(buf[18:], i.VsyncEnd)
	binary.LittleEndian.PutUint16(buf[20:], i.Vtotal)
	binary.LittleEndian.PutUint16(buf[22:], i.Vscan)
	binary.LittleEndian.PutUint32(buf[24:], i.Vrefresh)
	binary.LittleEndian.PutUint32(buf[28:], i.Flags)
	binary.LittleEndian.PutUint32(buf[32:], i.Type)
	copy(buf[36:], i.Name[:])
	return buf
}

// Unmarshal decodes a drm_mode_modeinfo wire record.
func Unmarshal(buf []byte) (Info, error) {
	if len(buf) < InfoSize {
		return Info{}, fmt.Errorf("mode info blob too short: %d bytes", len(buf))
	}
	var i Info
	i.Clock = binary.LittleEndian.Uint32(buf[0:])
	i.Hdisplay = binary.LittleEndian.Uint16(buf[4:])
	i.HsyncStart = binary.LittleEndian.Uint16(buf[6:])
	i.HsyncEnd = binary.LittleEndian.Uint16(buf[8:])
	i.Htotal = binary.LittleEndian.Uint16(buf[10:])
	i.Hskew = binary.LittleEndian.Uint16(buf[12:])
	i.Vdisplay = binary.LittleEndian.Uint16(buf[14:])
	i.VsyncStart = binary.LittleEndian.Uint16(buf[16:])
	i.VsyncEnd = binary.LittleEndian.Uint16(buf[18:])
	i.Vtotal = binary.LittleEndian.Uint16(buf[20:])
	i.Vscan = binary.LittleEndian.Uint16(buf[22:])
	i.Vrefresh = binary.LittleEndian.Uint32(buf[24:])
	i.Flags = binary.LittleEndian.Uint32(buf[28:])
	i.Type = binary.LittleEndian.Uint32(buf[32:])
	copy(i.Name[:], buf[36:InfoSize])
	return i, nil
}
