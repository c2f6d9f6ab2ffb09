package drmcore

// ObjectType tags the variants of the mode-object graph.
type ObjectType uint32

const (
	ObjectEncoder ObjectType = iota
	ObjectConnector
	ObjectCrtc
	ObjectFrameBuffer
	ObjectPlane
)

func (t ObjectType) String() string {
	switch t {
	case ObjectEncoder:
		return "encoder"
	case ObjectConnector:
		return "connector"
	case ObjectCrtc:
		return "crtc"
	case ObjectFrameBuffer:
		return "framebuffer"
	case ObjectPlane:
		return "plane"
	}
	return "unknown"
}

// ModeObject is the identity layer shared by every modeset object visible
// to userspace: connectors, crtcs, encoders, framebuffers and planes.
type ModeObject interface {
	ID() uint32
	Type() ObjectType

	// Assignments returns the object's complete current property vector
	// in canonical order. Feeding it back through Capture reproduces an
	// equivalent state.
	Assignments(dev *Device) []Assignment
}

// Object carries the stable id and variant tag; the concrete mode objects
// embed it.
type Object struct {
	id  uint32
	typ ObjectType
}

func newObject(typ ObjectType, id uint32) Object {
	return Object{id: id, typ: typ}
}

func (o *Object) ID() uint32       { return o.id }
func (o *Object) Type() ObjectType { return o.typ }

// Checked accessors over the closed variant set. Each returns false when
// the object is of a different kind.

func AsEncoder(obj ModeObject) (*Encoder, bool) {
	e, ok := obj.(*Encoder)
	return e, ok
}

func AsConnector(obj ModeObject) (*Connector, bool) {
	c, ok := obj.(*Connector)
	return c, ok
}

func AsCrtc(obj ModeObject) (*Crtc, bool) {
	c, ok := obj.(*Crtc)
	return c, ok
}

func AsFrameBuffer(obj ModeObject) (*FrameBuffer, bool) {
	fb, ok := obj.(*FrameBuffer)
	return fb, ok
}

func AsPlane(obj ModeObject) (*Plane, bool) {
	p, ok := obj.(*Plane)
	return p, ok
}
