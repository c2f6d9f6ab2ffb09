package drmcore

// Device capabilities queried through GetCap.
const (
	CapDumbBuffer = iota + 1
	CapVBlankHighCRTC
	CapDumbPreferredDepth
	CapDumbPreferShadow
	CapPrime
	CapTimestampMonotonic
	CapAsyncPageFlip
	CapCursorWidth
	CapCursorHeight

	CapAddFB2Modifiers = 0x10
)

// Prime capability bits.
const (
	PrimeCapImport = 0x1
	PrimeCapExport = 0x2
)

// Client capabilities toggled through SetClientCap.
const (
	ClientCapStereo3D = iota + 1
	ClientCapUniversalPlanes
	ClientCapAtomic
)

// Capability reports the value of a device capability; unknown
// capabilities read as zero, matching kernel behavior.
func (d *Device) Capability(cap uint64) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.caps[cap]
}

// SetCapability overrides a capability value; drivers call it at setup.
func (d *Device) SetCapability(cap, value uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps[cap] = value
}
