package drmcore

// Encoder converts a crtc's output into the signal a connector carries.
// Its routing lists are fixed at device setup; only currentCrtc moves,
// and only through commits.
type Encoder struct {
	Object

	Index int

	encoderType    uint32
	currentCrtc    *Crtc
	possibleCrtcs  []*Crtc
	possibleClones []*Encoder
}

func (e *Encoder) EncoderType() uint32 { return e.encoderType }

func (e *Encoder) SetupEncoderType(typ uint32) { e.encoderType = typ }

func (e *Encoder) CurrentCrtc() *Crtc { return e.currentCrtc }

func (e *Encoder) setCurrentCrtc(crtc *Crtc) { e.currentCrtc = crtc }

// SetupPossibleCrtcs fixes the crtcs this encoder may be routed to.
// Called once during device setup.
func (e *Encoder) SetupPossibleCrtcs(crtcs []*Crtc) { e.possibleCrtcs = crtcs }

func (e *Encoder) PossibleCrtcs() []*Crtc { return e.possibleCrtcs }

// SetupPossibleClones fixes the encoders this one may share a crtc with.
func (e *Encoder) SetupPossibleClones(clones []*Encoder) { e.possibleClones = clones }

func (e *Encoder) PossibleClones() []*Encoder { return e.possibleClones }

func (e *Encoder) Assignments(dev *Device) []Assignment { return nil }

func (e *Encoder) canDriveCrtc(crtc *Crtc) bool {
	for _, c := range e.possibleCrtcs {
		if c == crtc {
			return true
		}
	}
	return false
}

func (e *Encoder) canCloneWith(other *Encoder) bool {
	if other == e {
		return true
	}
	for _, c := range e.possibleClones {
		if c == other {
			return true
		}
	}
	return false
}
