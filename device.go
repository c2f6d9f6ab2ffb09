package drmcore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NeowayLabs/drmcore/alloc"
	"github.com/NeowayLabs/drmcore/config"
	"github.com/NeowayLabs/drmcore/mode"
)

// mappingShift aligns fake mmap offsets to 4 KiB pages.
const mappingShift = 12

// DeviceInfo identifies the driver behind a device, reported through the
// version request.
type DeviceInfo struct {
	Name  string
	Desc  string
	Date  string
	Major int32
	Minor int32
	Patch int32
}

// Programmer is the hardware half of a commit: it applies a validated
// atomic state to the device and returns the vblank timestamp in
// nanoseconds. The core calls it off the commit path; blocking until the
// flip completes is expected.
type Programmer interface {
	Program(ctx context.Context, state *AtomicState) (uint64, error)
}

// BufferAllocator creates driver memory for dumb buffers. It returns the
// buffer and the row pitch in bytes.
type BufferAllocator interface {
	CreateDumb(width, height, bpp uint32) (BufferObject, uint32, error)
}

// Credential is the opaque 16-byte token used for PRIME-style buffer
// sharing across files and processes.
type Credential [16]byte

type stdProperties struct {
	active *Property
	modeID *Property
	dpms   *Property
	crtcID *Property
	fbID   *Property
	crtcX  *Property
	crtcY  *Property
	crtcW  *Property
	crtcH  *Property
	srcX   *Property
	srcY   *Property
	srcW   *Property
	srcH   *Property
}

// Device is the registry that owns every mode object, allocates object
// ids and buffer placement ranges, and serializes reconfiguration. All
// captures and commits run under its single mutation domain.
type Device struct {
	mu  sync.RWMutex
	log *logrus.Entry

	info   DeviceInfo
	limits config.Device
	dead   bool

	prog Programmer
	albo BufferAllocator

	objects map[uint32]ModeObject
	ids     *alloc.IDAllocator

	crtcs      []*Crtc
	encoders   []*Encoder
	connectors []*Connector
	planes     []*Plane

	props     stdProperties
	propsByID map[uint32]*Property

	blobs   map[uint32]*Blob
	blobIDs *alloc.IDAllocator

	mappings      *alloc.RangeAllocator
	mappedBuffers map[uint64]BufferObject

	exports map[Credential]BufferObject

	caps map[uint64]uint64
}

// NewDevice builds an empty registry. prog and albo may be nil: commits
// then complete immediately with a monotonic timestamp, and dumb buffer
// creation reports ErrNotSupported.
func NewDevice(info DeviceInfo, limits config.Device, prog Programmer, albo BufferAllocator) *Device {
	d := &Device{
		log:           logrus.WithField("device", info.Name),
		info:          info,
		limits:        limits,
		prog:          prog,
		albo:          albo,
		objects:       make(map[uint32]ModeObject),
		ids:           alloc.NewIDAllocator(0),
		propsByID:     make(map[uint32]*Property),
		blobs:         make(map[uint32]*Blob),
		blobIDs:       alloc.NewIDAllocator(0),
		mappings:      alloc.NewRangeAllocator(mappingShift),
		mappedBuffers: make(map[uint64]BufferObject),
		exports:       make(map[Credential]BufferObject),
		caps:          make(map[uint64]uint64),
	}

	d.registerProperties()

	d.caps[CapTimestampMonotonic] = 1
	d.caps[CapPrime] = PrimeCapImport | PrimeCapExport
	d.caps[CapCursorWidth] = uint64(limits.CursorWidth)
	d.caps[CapCursorHeight] = uint64(limits.CursorHeight)
	if albo != nil {
		d.caps[CapDumbBuffer] = 1
		d.caps[CapDumbPreferredDepth] = 24
	}
	return d
}

func (d *Device) registerProperties() {
	rangeProp := func(name string, min, max uint64) *Property {
		return d.registerProperty(&Property{name: name, kind: PropertyRange, min: min, max: max})
	}
	d.props.active = d.registerProperty(&Property{
		name: "ACTIVE", kind: PropertyRange, min: 0, max: 1,
	})
	d.props.modeID = d.registerProperty(&Property{
		name: "MODE_ID", kind: PropertyBlob,
	})
	d.props.dpms = d.registerProperty(&Property{
		name: "DPMS", kind: PropertyEnum,
		values: map[uint64]string{
			mode.DPMSOn:      "On",
			mode.DPMSStandby: "Standby",
			mode.DPMSSuspend: "Suspend",
			mode.DPMSOff:     "Off",
		},
	})
	d.props.crtcID = d.registerProperty(&Property{
		name: "CRTC_ID", kind: PropertyObject, objectType: ObjectCrtc,
	})
	d.props.fbID = d.registerProperty(&Property{
		name: "FB_ID", kind: PropertyObject, objectType: ObjectFrameBuffer,
	})
	d.props.crtcX = rangeProp("CRTC_X", 0, 1<<32-1)
	d.props.crtcY = rangeProp("CRTC_Y", 0, 1<<32-1)
	d.props.crtcW = rangeProp("CRTC_W", 0, 1<<31-1)
	d.props.crtcH = rangeProp("CRTC_H", 0, 1<<31-1)
	d.props.srcX = rangeProp("SRC_X", 0, 1<<31-1)
	d.props.srcY = rangeProp("SRC_Y", 0, 1<<31-1)
	d.props.srcW = rangeProp("SRC_W", 0, 1<<31-1)
	d.props.srcH = rangeProp("SRC_H", 0, 1<<31-1)
}

func (d *Device) registerProperty(p *Property) *Property {
	id, err := d.ids.Allocate()
	if err != nil {
		// Property registration happens only at construction, on an
		// empty id space.
		panic(fmt.Sprintf("drm: property id allocation failed: %v", err))
	}
	p.id = id
	d.propsByID[id] = p
	return p
}

// Info returns the driver identification.
func (d *Device) Info() DeviceInfo { return d.info }

// Limits returns the configured geometry bounds.
func (d *Device) Limits() config.Device { return d.limits }

// Standard property accessors, used by drivers when assembling
// assignment lists.

func (d *Device) ActiveProperty() *Property { return d.props.active }
func (d *Device) ModeIDProperty() *Property { return d.props.modeID }
func (d *Device) DPMSProperty() *Property   { return d.props.dpms }
func (d *Device) CrtcIDProperty() *Property { return d.props.crtcID }
func (d *Device) FbIDProperty() *Property   { return d.props.fbID }
func (d *Device) CrtcXProperty() *Property  { return d.props.crtcX }
func (d *Device) CrtcYProperty() *Property  { return d.props.crtcY }
func (d *Device) CrtcWProperty() *Property  { return d.props.crtcW }
func (d *Device) CrtcHProperty() *Property  { return d.props.crtcH }
func (d *Device) SrcXProperty() *Property   { return d.props.srcX }
func (d *Device) SrcYProperty() *Property   { return d.props.srcY }
func (d *Device) SrcWProperty() *Property   { return d.props.srcW }
func (d *Device) SrcHProperty() *Property   { return d.props.srcH }

// Property resolves a property id.
func (d *Device) Property(id uint32) (*Property, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.propsByID[id]
	if !ok {
		return nil, fmt.Errorf("property %d: %w", id, ErrNotFound)
	}
	return p, nil
}

// --- topology setup -------------------------------------------------
//
// The registry is the sole writer of the routing lists below. They are
// fixed before the device is served and never change afterwards.

// AddPlane registers a new plane of the given type.
func (d *Device) AddPlane(typ PlaneType) (*Plane, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.allocateID()
	if err != nil {
		return nil, err
	}
	p := &Plane{
		Object:    newObject(ObjectPlane, id),
		Index:     len(d.planes),
		planeType: typ,
	}
	p.state = &PlaneState{Plane: p}
	d.planes = append(d.planes, p)
	d.objects[id] = p
	d.log.WithFields(logrus.Fields{"id": id, "type": typ.String()}).Debug("registered plane")
	return p, nil
}

// AddCrtc registers a new crtc driven by the given primary plane and an
// optional cursor plane.
func (d *Device) AddCrtc(primary, cursor *Plane) (*Crtc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.allocateID()
	if err != nil {
		return nil, err
	}
	c := &Crtc{
		Object:  newObject(ObjectCrtc, id),
		Index:   len(d.crtcs),
		primary: primary,
		cursor:  cursor,
	}
	c.state = &CrtcState{Crtc: c}
	d.crtcs = append(d.crtcs, c)
	d.objects[id] = c
	d.log.WithField("id", id).Debug("registered crtc")
	return c, nil
}

// AddEncoder registers a new encoder of the given signal type.
func (d *Device) AddEncoder(encoderType uint32) (*Encoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.allocateID()
	if err != nil {
		return nil, err
	}
	e := &Encoder{
		Object:      newObject(ObjectEncoder, id),
		Index:       len(d.encoders),
		encoderType: encoderType,
	}
	d.encoders = append(d.encoders, e)
	d.objects[id] = e
	d.log.WithField("id", id).Debug("registered encoder")
	return e, nil
}

// AddConnector registers a new connector of the given port type.
func (d *Device) AddConnector(connectorType uint32) (*Connector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.allocateID()
	if err != nil {
		return nil, err
	}
	c := &Connector{
		Object:        newObject(ObjectConnector, id),
		Index:         len(d.connectors),
		connectorType: connectorType,
		currentStatus: mode.UnknownConnection,
		subpixel:      mode.SubpixelUnknown,
	}
	c.state = &ConnectorState{Connector: c, DPMS: mode.DPMSOff}
	d.connectors = append(d.connectors, c)
	d.objects[id] = c
	d.log.WithField("id", id).Debug("registered connector")
	return c, nil
}

// AddFrameBuffer registers a displayable buffer after validating its
// geometry and format against the backing buffer object.
func (d *Device) AddFrameBuffer(bo BufferObject, width, height, format, pitch uint32) (*FrameBuffer, error) {
	info, ok := mode.GetFormatInfo(format)
	if !ok {
		return nil, validationErr(0, "unknown pixel format %#x", format)
	}
	if width == 0 || height == 0 {
		return nil, validationErr(0, "zero framebuffer dimension %dx%d", width, height)
	}
	if d.limits.MaxWidth != 0 && (width > d.limits.MaxWidth || height > d.limits.MaxHeight) {
		return nil, validationErr(0, "framebuffer %dx%d exceeds device limit %dx%d",
			width, height, d.limits.MaxWidth, d.limits.MaxHeight)
	}
	if uint64(pitch) < uint64(width)*uint64(info.CPP) {
		return nil, validationErr(0, "pitch %d too small for %d pixels of %d bytes",
			pitch, width, info.CPP)
	}
	if bo != nil && bo.Size() < uint64(pitch)*uint64(height) {
		return nil, validationErr(0, "buffer of %d bytes too small for %dx%d with pitch %d",
			bo.Size(), width, height, pitch)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.allocateID()
	if err != nil {
		return nil, err
	}
	fb := &FrameBuffer{
		Object: newObject(ObjectFrameBuffer, id),
		width:  width,
		height: height,
		format: format,
		pitch:  pitch,
		bo:     bo,
	}
	d.objects[id] = fb
	d.log.WithFields(logrus.Fields{"id": id, "size": fmt.Sprintf("%dx%d", width, height)}).
		Debug("registered framebuffer")
	return fb, nil
}

// RemoveFrameBuffer retires a framebuffer from the registry. States that
// still reference it keep it alive until they are replaced.
func (d *Device) RemoveFrameBuffer(fb *FrameBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.objects[fb.ID()]; !ok {
		return
	}
	delete(d.objects, fb.ID())
	d.ids.Free(fb.ID())
	d.log.WithField("id", fb.ID()).Debug("removed framebuffer")
}

func (d *Device) allocateID() (uint32, error) {
	id, err := d.ids.Allocate()
	if err != nil {
		return 0, fmt.Errorf("%w: object ids", ErrExhausted)
	}
	return id, nil
}

// --- lookup ---------------------------------------------------------

// FindObject resolves a mode object id.
func (d *Device) FindObject(id uint32) (ModeObject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.dead {
		return nil, fmt.Errorf("object %d: %w", id, ErrNotFound)
	}
	obj, ok := d.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %d: %w", id, ErrNotFound)
	}
	return obj, nil
}

// FindCrtc resolves an id that must name a crtc.
func (d *Device) FindCrtc(id uint32) (*Crtc, error) {
	obj, err := d.FindObject(id)
	if err != nil {
		return nil, err
	}
	crtc, ok := AsCrtc(obj)
	if !ok {
		return nil, fmt.Errorf("object %d is a %s, not a crtc: %w", id, obj.Type(), ErrNotFound)
	}
	return crtc, nil
}

// FindConnector resolves an id that must name a connector.
func (d *Device) FindConnector(id uint32) (*Connector, error) {
	obj, err := d.FindObject(id)
	if err != nil {
		return nil, err
	}
	conn, ok := AsConnector(obj)
	if !ok {
		return nil, fmt.Errorf("object %d is a %s, not a connector: %w", id, obj.Type(), ErrNotFound)
	}
	return conn, nil
}

// FindEncoder resolves an id that must name an encoder.
func (d *Device) FindEncoder(id uint32) (*Encoder, error) {
	obj, err := d.FindObject(id)
	if err != nil {
		return nil, err
	}
	enc, ok := AsEncoder(obj)
	if !ok {
		return nil, fmt.Errorf("object %d is a %s, not an encoder: %w", id, obj.Type(), ErrNotFound)
	}
	return enc, nil
}

// FindPlane resolves an id that must name a plane.
func (d *Device) FindPlane(id uint32) (*Plane, error) {
	obj, err := d.FindObject(id)
	if err != nil {
		return nil, err
	}
	plane, ok := AsPlane(obj)
	if !ok {
		return nil, fmt.Errorf("object %d is a %s, not a plane: %w", id, obj.Type(), ErrNotFound)
	}
	return plane, nil
}

// FindFrameBuffer resolves an id that must name a framebuffer.
func (d *Device) FindFrameBuffer(id uint32) (*FrameBuffer, error) {
	obj, err := d.FindObject(id)
	if err != nil {
		return nil, err
	}
	fb, ok := AsFrameBuffer(obj)
	if !ok {
		return nil, fmt.Errorf("object %d is a %s, not a framebuffer: %w", id, obj.Type(), ErrNotFound)
	}
	return fb, nil
}

// Crtcs returns the crtc list in index order.
func (d *Device) Crtcs() []*Crtc {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Crtc(nil), d.crtcs...)
}

// Encoders returns the encoder list in index order.
func (d *Device) Encoders() []*Encoder {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Encoder(nil), d.encoders...)
}

// Connectors returns the connector list.
func (d *Device) Connectors() []*Connector {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Connector(nil), d.connectors...)
}

// Planes returns the plane list in index order.
func (d *Device) Planes() []*Plane {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Plane(nil), d.planes...)
}

// --- blobs ----------------------------------------------------------

// CreateBlob copies data into a new device-scoped blob.
func (d *Device) CreateBlob(data []byte) (*Blob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.blobIDs.Allocate()
	if err != nil {
		return nil, fmt.Errorf("%w: blob ids", ErrExhausted)
	}
	b := newBlob(id, data)
	d.blobs[id] = b
	return b, nil
}

// FindBlob resolves a blob id.
func (d *Device) FindBlob(id uint32) (*Blob, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.blobs[id]
	if !ok {
		return nil, fmt.Errorf("blob %d: %w", id, ErrNotFound)
	}
	return b, nil
}

// DestroyBlob drops the registry's reference to a blob. States that
// still reference the blob keep its payload alive.
func (d *Device) DestroyBlob(id uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.blobs[id]; !ok {
		return fmt.Errorf("blob %d: %w", id, ErrNotFound)
	}
	delete(d.blobs, id)
	d.blobIDs.Free(id)
	return nil
}

// --- buffer mappings ------------------------------------------------

// allocateMapping lazily assigns a page-aligned fake mmap offset to the
// buffer, unique for the buffer's lifetime.
func (d *Device) allocateMapping(bo BufferObject) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if offset, ok := bo.Mapping(); ok {
		return offset, nil
	}
	size := bo.Size()
	if size == 0 {
		size = 1
	}
	offset, err := d.mappings.Allocate(size)
	if err != nil {
		return 0, fmt.Errorf("%w: mmap offsets", ErrExhausted)
	}
	bo.SetupMapping(offset)
	d.mappedBuffers[offset] = bo
	return offset, nil
}

// ResolveMapping finds the buffer behind a fake mmap offset; the OS mmap
// path uses it to translate an offset back into mappable memory.
func (d *Device) ResolveMapping(offset uint64) (BufferObject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	bo, ok := d.mappedBuffers[offset]
	if !ok {
		return nil, fmt.Errorf("mapping %#x: %w", offset, ErrNotFound)
	}
	return bo, nil
}

// CreateDumb allocates driver memory for a dumb buffer.
func (d *Device) CreateDumb(width, height, bpp uint32) (BufferObject, uint32, error) {
	if d.albo == nil {
		return nil, 0, fmt.Errorf("dumb buffers: %w", ErrNotSupported)
	}
	if d.limits.MaxWidth != 0 && (width > d.limits.MaxWidth || height > d.limits.MaxHeight) {
		return nil, 0, validationErr(0, "dumb buffer %dx%d exceeds device limit %dx%d",
			width, height, d.limits.MaxWidth, d.limits.MaxHeight)
	}
	return d.albo.CreateDumb(width, height, bpp)
}

// --- PRIME credentials ----------------------------------------------

func (d *Device) registerExport(cred Credential, bo BufferObject) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exports[cred] = bo
	d.log.WithField("credential", fmt.Sprintf("%x", cred[:4])).Debug("exported buffer")
}

func (d *Device) importCredential(cred Credential) (BufferObject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	bo, ok := d.exports[cred]
	if !ok {
		return nil, fmt.Errorf("credential: %w", ErrNotFound)
	}
	return bo, nil
}

// RevokeCredential removes an exported credential. Buffers already
// imported through it stay shared.
func (d *Device) RevokeCredential(cred Credential) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.exports, cred)
}

// --- lifecycle ------------------------------------------------------

// Close tears the registry down. Files and configurations holding a
// reference keep working on their own snapshots but every device
// operation fails with ErrNotFound afterwards.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dead = true
	d.objects = make(map[uint32]ModeObject)
	d.blobs = make(map[uint32]*Blob)
	d.exports = make(map[Credential]BufferObject)
	d.mappedBuffers = make(map[uint64]BufferObject)
	d.log.Info("device closed")
}

func (d *Device) closed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dead
}

// monotonic returns a nanosecond timestamp for commits on devices with
// no programmer.
func monotonic() uint64 {
	return uint64(time.Now().UnixNano())
}
