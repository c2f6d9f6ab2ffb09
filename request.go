package drmcore

import (
	"context"
	"fmt"

	"gitlab.com/mstarongitlab/goutils/sliceutils"

	"github.com/NeowayLabs/drmcore/mode"
)

// Request is a decoded client request. The dispatch layer owns the wire
// decoding; the core owns the resulting state transition.
type Request interface {
	Code() uint32
}

// Atomic request flags, matching the upstream bit layout.
const (
	AtomicFlagPageFlipEvent = 0x0001
	AtomicFlagTestOnly      = 0x0100
	AtomicFlagNonblock      = 0x0200
	AtomicFlagAllowModeset  = 0x0400
)

type (
	VersionReq struct{}

	VersionResp struct {
		Major, Minor, Patch int32
		Name, Date, Desc    string
	}

	GetCapReq struct {
		Cap uint64
	}

	CapResp struct {
		Value uint64
	}

	SetClientCapReq struct {
		Cap   uint64
		Value uint64
	}

	ResourcesReq struct{}

	ResourcesResp struct {
		Fbs        []uint32
		Crtcs      []uint32
		Connectors []uint32
		Encoders   []uint32

		MinWidth, MaxWidth   uint32
		MinHeight, MaxHeight uint32
	}

	GetConnectorReq struct {
		ID uint32
	}

	ConnectorResp struct {
		ID            uint32
		EncoderID     uint32
		Type          uint32
		Connection    uint32
		Width, Height uint32 // physical size in millimeters
		Subpixel      uint32

		Modes    []mode.Info
		Encoders []uint32

		Props      []uint32
		PropValues []uint64
	}

	GetEncoderReq struct {
		ID uint32
	}

	EncoderResp struct {
		ID     uint32
		Type   uint32
		CrtcID uint32

		PossibleCrtcs  uint32
		PossibleClones uint32
	}

	GetCrtcReq struct {
		ID uint32
	}

	CrtcResp struct {
		ID       uint32
		BufferID uint32
		X, Y     uint32
		Active   bool

		ModeValid bool
		Mode      mode.Info
	}

	GetPlaneResourcesReq struct{}

	PlaneResourcesResp struct {
		Planes []uint32
	}

	GetPlaneReq struct {
		ID uint32
	}

	PlaneResp struct {
		ID            uint32
		CrtcID        uint32
		FbID          uint32
		PossibleCrtcs uint32
		PlaneType     uint32
	}

	GetPropertyReq struct {
		ID uint32
	}

	PropertyResp struct {
		ID         uint32
		Name       string
		Kind       PropertyKind
		Min, Max   uint64
		EnumValues map[uint64]string
	}

	ObjectPropertiesReq struct {
		ObjectID uint32
	}

	ObjectPropertiesResp struct {
		Props  []uint32
		Values []uint64
	}

	CreateDumbReq struct {
		Width, Height uint32
		Bpp           uint32
	}

	CreateDumbResp struct {
		Handle uint32
		Pitch  uint32
		Size   uint64
	}

	MapDumbReq struct {
		Handle uint32
	}

	MapDumbResp struct {
		// Offset is the fake offset for a subsequent mmap on the DRM
		// connection.
		Offset uint64
	}

	DestroyDumbReq struct {
		Handle uint32
	}

	AddFBReq struct {
		Width, Height uint32
		Pitch         uint32
		Bpp, Depth    uint32
		Handle        uint32
	}

	AddFBResp struct {
		FbID uint32
	}

	RmFBReq struct {
		ID uint32
	}

	DirtyFBReq struct {
		ID uint32
	}

	SetCrtcReq struct {
		CrtcID uint32
		FbID   uint32
		X, Y   uint32

		Connectors []uint32

		ModeValid bool
		Mode      mode.Info
	}

	PageFlipReq struct {
		CrtcID uint32
		FbID   uint32
		Cookie uint64
	}

	RawAssignment struct {
		ObjectID   uint32
		PropertyID uint32
		Value      uint64
	}

	AtomicReq struct {
		Flags       uint32
		Assignments []RawAssignment
		Cookie      uint64
	}

	CreateBlobReq struct {
		Data []byte
	}

	CreateBlobResp struct {
		ID uint32
	}

	DestroyBlobReq struct {
		ID uint32
	}

	GetBlobReq struct {
		ID uint32
	}

	GetBlobResp struct {
		Data []byte
	}

	PrimeExportReq struct {
		Handle     uint32
		Credential Credential
	}

	PrimeExportResp struct {
		File *PrimeFile
	}

	PrimeImportReq struct {
		Credential Credential
	}

	PrimeImportResp struct {
		Handle uint32
		Size   uint64
	}
)

func (VersionReq) Code() uint32           { return IOCTLVersion }
func (GetCapReq) Code() uint32            { return IOCTLGetCap }
func (SetClientCapReq) Code() uint32      { return IOCTLSetClientCap }
func (ResourcesReq) Code() uint32         { return IOCTLModeResources }
func (GetConnectorReq) Code() uint32      { return IOCTLModeGetConnector }
func (GetEncoderReq) Code() uint32        { return IOCTLModeGetEncoder }
func (GetCrtcReq) Code() uint32           { return IOCTLModeGetCrtc }
func (GetPlaneResourcesReq) Code() uint32 { return IOCTLModeGetPlaneResources }
func (GetPlaneReq) Code() uint32          { return IOCTLModeGetPlane }
func (GetPropertyReq) Code() uint32       { return IOCTLModeGetProperty }
func (ObjectPropertiesReq) Code() uint32  { return IOCTLModeObjGetProperties }
func (CreateDumbReq) Code() uint32        { return IOCTLModeCreateDumb }
func (MapDumbReq) Code() uint32           { return IOCTLModeMapDumb }
func (DestroyDumbReq) Code() uint32       { return IOCTLModeDestroyDumb }
func (AddFBReq) Code() uint32             { return IOCTLModeAddFB }
func (RmFBReq) Code() uint32              { return IOCTLModeRmFB }
func (DirtyFBReq) Code() uint32           { return IOCTLModeDirtyFB }
func (SetCrtcReq) Code() uint32           { return IOCTLModeSetCrtc }
func (PageFlipReq) Code() uint32          { return IOCTLModePageFlip }
func (AtomicReq) Code() uint32            { return IOCTLModeAtomic }
func (CreateBlobReq) Code() uint32        { return IOCTLModeCreateBlob }
func (DestroyBlobReq) Code() uint32       { return IOCTLModeDestroyBlob }
func (GetBlobReq) Code() uint32           { return IOCTLModeGetBlob }
func (PrimeExportReq) Code() uint32       { return IOCTLPrimeExport }
func (PrimeImportReq) Code() uint32       { return IOCTLPrimeImport }

// Ioctl is the single semantic entry point for decoded requests. Every
// state transition a client can trigger funnels through here.
func (f *File) Ioctl(ctx context.Context, req Request) (interface{}, error) {
	switch r := req.(type) {
	case *VersionReq:
		info := f.dev.Info()
		return &VersionResp{
			Major: info.Major, Minor: info.Minor, Patch: info.Patch,
			Name: info.Name, Date: info.Date, Desc: info.Desc,
		}, nil

	case *GetCapReq:
		return &CapResp{Value: f.dev.Capability(r.Cap)}, nil

	case *SetClientCapReq:
		return nil, f.setClientCap(r.Cap, r.Value)

	case *ResourcesReq:
		return f.getResources(), nil

	case *GetConnectorReq:
		return f.getConnector(r.ID)

	case *GetEncoderReq:
		return f.getEncoder(r.ID)

	case *GetCrtcReq:
		return f.getCrtc(r.ID)

	case *GetPlaneResourcesReq:
		return f.getPlaneResources(), nil

	case *GetPlaneReq:
		return f.getPlane(r.ID)

	case *GetPropertyReq:
		prop, err := f.dev.Property(r.ID)
		if err != nil {
			return nil, err
		}
		min, max := prop.RangeBounds()
		return &PropertyResp{
			ID: prop.ID(), Name: prop.Name(), Kind: prop.Kind(),
			Min: min, Max: max, EnumValues: prop.EnumValues(),
		}, nil

	case *ObjectPropertiesReq:
		return f.getObjectProperties(r.ObjectID)

	case *CreateDumbReq:
		return f.createDumb(r)

	case *MapDumbReq:
		offset, err := f.MappingOffset(r.Handle)
		if err != nil {
			return nil, err
		}
		return &MapDumbResp{Offset: offset}, nil

	case *DestroyDumbReq:
		return nil, f.ReleaseHandle(r.Handle)

	case *AddFBReq:
		return f.addFB(r)

	case *RmFBReq:
		fb, err := f.dev.FindFrameBuffer(r.ID)
		if err != nil {
			return nil, err
		}
		f.DetachFrameBuffer(fb)
		f.dev.RemoveFrameBuffer(fb)
		return nil, nil

	case *DirtyFBReq:
		fb, err := f.dev.FindFrameBuffer(r.ID)
		if err != nil {
			return nil, err
		}
		fb.NotifyDirty()
		return nil, nil

	case *SetCrtcReq:
		return nil, f.setCrtc(ctx, r)

	case *PageFlipReq:
		return nil, f.pageFlip(r)

	case *AtomicReq:
		return nil, f.atomicCommit(ctx, r)

	case *CreateBlobReq:
		blob, err := f.dev.CreateBlob(r.Data)
		if err != nil {
			return nil, err
		}
		return &CreateBlobResp{ID: blob.ID()}, nil

	case *DestroyBlobReq:
		return nil, f.dev.DestroyBlob(r.ID)

	case *GetBlobReq:
		blob, err := f.dev.FindBlob(r.ID)
		if err != nil {
			return nil, err
		}
		return &GetBlobResp{Data: blob.Data()}, nil

	case *PrimeExportReq:
		bo, err := f.ResolveHandle(r.Handle)
		if err != nil {
			return nil, err
		}
		if err := f.ExportBufferObject(r.Handle, r.Credential); err != nil {
			return nil, err
		}
		return &PrimeExportResp{File: NewPrimeFile(bo)}, nil

	case *PrimeImportReq:
		bo, handle, err := f.ImportBufferObject(r.Credential)
		if err != nil {
			return nil, err
		}
		return &PrimeImportResp{Handle: handle, Size: bo.Size()}, nil
	}
	return nil, fmt.Errorf("request %T: %w", req, ErrNotSupported)
}

func (f *File) getResources() *ResourcesResp {
	dev := f.dev
	resp := &ResourcesResp{
		MinWidth:  dev.limits.MinWidth,
		MaxWidth:  dev.limits.MaxWidth,
		MinHeight: dev.limits.MinHeight,
		MaxHeight: dev.limits.MaxHeight,
	}
	for _, fb := range f.FrameBuffers() {
		resp.Fbs = append(resp.Fbs, fb.ID())
	}
	for _, crtc := range dev.Crtcs() {
		resp.Crtcs = append(resp.Crtcs, crtc.ID())
	}
	for _, conn := range dev.Connectors() {
		resp.Connectors = append(resp.Connectors, conn.ID())
	}
	for _, enc := range dev.Encoders() {
		resp.Encoders = append(resp.Encoders, enc.ID())
	}
	return resp
}

func (f *File) getConnector(id uint32) (*ConnectorResp, error) {
	conn, err := f.dev.FindConnector(id)
	if err != nil {
		return nil, err
	}
	f.dev.mu.RLock()
	resp := &ConnectorResp{
		ID:         conn.ID(),
		Type:       conn.ConnectorType(),
		Connection: conn.CurrentStatus(),
		Width:      conn.PhysicalWidth(),
		Height:     conn.PhysicalHeight(),
		Subpixel:   conn.Subpixel(),
		Modes:      append([]mode.Info(nil), conn.ModeList()...),
	}
	if enc := conn.CurrentEncoder(); enc != nil {
		resp.EncoderID = enc.ID()
	}
	for _, enc := range conn.PossibleEncoders() {
		resp.Encoders = append(resp.Encoders, enc.ID())
	}
	assignments := conn.Assignments(f.dev)
	f.dev.mu.RUnlock()

	for _, a := range assignments {
		propID, value := rawValue(a)
		resp.Props = append(resp.Props, propID)
		resp.PropValues = append(resp.PropValues, value)
	}
	return resp, nil
}

func (f *File) getEncoder(id uint32) (*EncoderResp, error) {
	enc, err := f.dev.FindEncoder(id)
	if err != nil {
		return nil, err
	}
	f.dev.mu.RLock()
	defer f.dev.mu.RUnlock()
	resp := &EncoderResp{
		ID:   enc.ID(),
		Type: enc.EncoderType(),
	}
	if crtc := enc.CurrentCrtc(); crtc != nil {
		resp.CrtcID = crtc.ID()
	}
	for _, crtc := range enc.PossibleCrtcs() {
		resp.PossibleCrtcs |= 1 << uint(crtc.Index)
	}
	for _, clone := range enc.PossibleClones() {
		resp.PossibleClones |= 1 << uint(clone.Index)
	}
	return resp, nil
}

func (f *File) getCrtc(id uint32) (*CrtcResp, error) {
	crtc, err := f.dev.FindCrtc(id)
	if err != nil {
		return nil, err
	}
	f.dev.mu.RLock()
	defer f.dev.mu.RUnlock()
	resp := &CrtcResp{ID: crtc.ID()}
	st := crtc.DrmState()
	resp.Active = st.Active
	if st.Mode != nil {
		info, err := mode.Unmarshal(st.Mode.Data())
		if err == nil {
			resp.Mode = info
			resp.ModeValid = true
		}
	}
	if primary := crtc.PrimaryPlane(); primary != nil {
		ps := primary.DrmState()
		if ps.Fb != nil {
			resp.BufferID = ps.Fb.ID()
		}
		resp.X = ps.SrcX
		resp.Y = ps.SrcY
	}
	return resp, nil
}

func (f *File) getPlaneResources() *PlaneResourcesResp {
	planes := f.dev.Planes()
	if !f.UniversalPlanes() {
		// Without the universal-planes capability, clients only see
		// overlay planes; primaries and cursors stay implicit.
		planes = sliceutils.Filter(planes, func(p *Plane) bool {
			return p.PlaneType() == PlaneOverlay
		})
	}
	resp := &PlaneResourcesResp{}
	for _, p := range planes {
		resp.Planes = append(resp.Planes, p.ID())
	}
	return resp
}

func (f *File) getPlane(id uint32) (*PlaneResp, error) {
	plane, err := f.dev.FindPlane(id)
	if err != nil {
		return nil, err
	}
	f.dev.mu.RLock()
	defer f.dev.mu.RUnlock()
	resp := &PlaneResp{
		ID:        plane.ID(),
		PlaneType: uint32(plane.PlaneType()),
	}
	st := plane.DrmState()
	if st.Crtc != nil {
		resp.CrtcID = st.Crtc.ID()
	}
	if st.Fb != nil {
		resp.FbID = st.Fb.ID()
	}
	for _, crtc := range plane.PossibleCrtcs() {
		resp.PossibleCrtcs |= 1 << uint(crtc.Index)
	}
	return resp, nil
}

func (f *File) getObjectProperties(id uint32) (*ObjectPropertiesResp, error) {
	obj, err := f.dev.FindObject(id)
	if err != nil {
		return nil, err
	}
	f.dev.mu.RLock()
	assignments := obj.Assignments(f.dev)
	f.dev.mu.RUnlock()

	resp := &ObjectPropertiesResp{}
	for _, a := range assignments {
		propID, value := rawValue(a)
		resp.Props = append(resp.Props, propID)
		resp.Values = append(resp.Values, value)
	}
	return resp, nil
}

// rawValue flattens an assignment into the (property id, u64) pair the
// wire format carries.
func rawValue(a Assignment) (uint32, uint64) {
	switch a.Property.Kind() {
	case PropertyObject:
		if a.ObjectValue != nil {
			return a.Property.ID(), uint64(a.ObjectValue.ID())
		}
		return a.Property.ID(), 0
	case PropertyBlob:
		if a.BlobValue != nil {
			return a.Property.ID(), uint64(a.BlobValue.ID())
		}
		return a.Property.ID(), 0
	}
	return a.Property.ID(), a.Value
}

func (f *File) createDumb(r *CreateDumbReq) (*CreateDumbResp, error) {
	bo, pitch, err := f.dev.CreateDumb(r.Width, r.Height, r.Bpp)
	if err != nil {
		return nil, err
	}
	handle, err := f.CreateHandle(bo)
	if err != nil {
		return nil, err
	}
	return &CreateDumbResp{Handle: handle, Pitch: pitch, Size: bo.Size()}, nil
}

func (f *File) addFB(r *AddFBReq) (*AddFBResp, error) {
	format := mode.ConvertLegacyFormat(r.Bpp, r.Depth)
	if format == 0 {
		return nil, validationErr(0, "no format for bpp %d depth %d", r.Bpp, r.Depth)
	}
	bo, err := f.ResolveHandle(r.Handle)
	if err != nil {
		return nil, err
	}
	fb, err := f.dev.AddFrameBuffer(bo, r.Width, r.Height, format, r.Pitch)
	if err != nil {
		return nil, err
	}
	f.AttachFrameBuffer(fb)
	return &AddFBResp{FbID: fb.ID()}, nil
}

// setCrtc is the legacy full-modeset path, expressed through the same
// assignment mechanism the atomic path uses and committed synchronously.
func (f *File) setCrtc(ctx context.Context, r *SetCrtcReq) error {
	dev := f.dev
	crtc, err := dev.FindCrtc(r.CrtcID)
	if err != nil {
		return err
	}

	var assignments []Assignment
	if r.ModeValid {
		info := r.Mode
		blob, err := dev.CreateBlob(info.Marshal())
		if err != nil {
			return err
		}
		fb, err := dev.FindFrameBuffer(r.FbID)
		if err != nil {
			return err
		}
		primary := crtc.PrimaryPlane()
		assignments = append(assignments,
			AssignInt(crtc, dev.props.active, 1),
			AssignBlob(crtc, dev.props.modeID, blob),
			AssignObject(primary, dev.props.crtcID, crtc),
			AssignObject(primary, dev.props.fbID, fb),
			AssignInt(primary, dev.props.crtcX, 0),
			AssignInt(primary, dev.props.crtcY, 0),
			AssignInt(primary, dev.props.crtcW, uint64(info.Hdisplay)),
			AssignInt(primary, dev.props.crtcH, uint64(info.Vdisplay)),
			AssignInt(primary, dev.props.srcX, uint64(r.X)),
			AssignInt(primary, dev.props.srcY, uint64(r.Y)),
			AssignInt(primary, dev.props.srcW, uint64(info.Hdisplay)),
			AssignInt(primary, dev.props.srcH, uint64(info.Vdisplay)),
		)
		for _, connID := range r.Connectors {
			conn, err := dev.FindConnector(connID)
			if err != nil {
				return err
			}
			assignments = append(assignments,
				AssignObject(conn, dev.props.crtcID, crtc),
				AssignInt(conn, dev.props.dpms, mode.DPMSOn),
			)
		}
	} else {
		// Disable path: shut the crtc down and unbind its primary.
		primary := crtc.PrimaryPlane()
		assignments = append(assignments,
			AssignInt(crtc, dev.props.active, 0),
			AssignBlob(crtc, dev.props.modeID, nil),
			AssignObject(primary, dev.props.crtcID, nil),
			AssignObject(primary, dev.props.fbID, nil),
		)
	}

	cfg := NewConfiguration(dev)
	state, err := cfg.Capture(assignments)
	if err != nil {
		return err
	}
	if err := cfg.Commit(state); err != nil {
		return err
	}
	return cfg.WaitForCompletion(ctx)
}

// pageFlip swaps the primary plane's framebuffer without waiting; the
// completion event lands on this file's queue.
func (f *File) pageFlip(r *PageFlipReq) error {
	dev := f.dev
	crtc, err := dev.FindCrtc(r.CrtcID)
	if err != nil {
		return err
	}
	fb, err := dev.FindFrameBuffer(r.FbID)
	if err != nil {
		return err
	}
	primary := crtc.PrimaryPlane()
	if primary == nil {
		return validationErr(crtc.ID(), "crtc has no primary plane")
	}

	cfg := NewConfiguration(dev)
	cfg.PostCompletionTo(f, r.Cookie)
	state, err := cfg.Capture([]Assignment{
		AssignObject(primary, dev.props.fbID, fb),
	})
	if err != nil {
		return err
	}
	return cfg.Commit(state)
}

func (f *File) atomicCommit(ctx context.Context, r *AtomicReq) error {
	if !f.AtomicCapable() {
		return fmt.Errorf("atomic commit without DRM_CLIENT_CAP_ATOMIC: %w", ErrPermissionDenied)
	}
	dev := f.dev

	assignments := make([]Assignment, 0, len(r.Assignments))
	for _, raw := range r.Assignments {
		a, err := dev.resolveRawAssignment(raw)
		if err != nil {
			return err
		}
		assignments = append(assignments, a)
	}

	cfg := NewConfiguration(dev)
	if r.Flags&AtomicFlagPageFlipEvent != 0 {
		cfg.PostCompletionTo(f, r.Cookie)
	}
	state, err := cfg.Capture(assignments)
	if err != nil {
		return err
	}
	if r.Flags&AtomicFlagTestOnly != 0 {
		return cfg.Dispose()
	}
	if err := cfg.Commit(state); err != nil {
		return err
	}
	if r.Flags&AtomicFlagNonblock == 0 {
		return cfg.WaitForCompletion(ctx)
	}
	return nil
}

// resolveRawAssignment rehydrates a wire-level (object, property, value)
// triple into a typed assignment.
func (d *Device) resolveRawAssignment(raw RawAssignment) (Assignment, error) {
	obj, err := d.FindObject(raw.ObjectID)
	if err != nil {
		return Assignment{}, err
	}
	prop, err := d.Property(raw.PropertyID)
	if err != nil {
		return Assignment{}, err
	}
	switch prop.Kind() {
	case PropertyObject:
		if raw.Value == 0 {
			return AssignObject(obj, prop, nil), nil
		}
		target, err := d.FindObject(uint32(raw.Value))
		if err != nil {
			return Assignment{}, err
		}
		return AssignObject(obj, prop, target), nil
	case PropertyBlob:
		if raw.Value == 0 {
			return AssignBlob(obj, prop, nil), nil
		}
		blob, err := d.FindBlob(uint32(raw.Value))
		if err != nil {
			return Assignment{}, err
		}
		return AssignBlob(obj, prop, blob), nil
	}
	return AssignInt(obj, prop, raw.Value), nil
}
