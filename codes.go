package drmcore

import (
	"unsafe"

	"github.com/NeowayLabs/drmcore/ioctl"
)

const IOCTLBase = 'd'

// Request codes, numbered like the upstream DRM ioctl table so existing
// clients keep working.
var (
	// DRM_IOWR(0x00, struct drm_version)
	IOCTLVersion = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(VersionReq{})), IOCTLBase, 0x00)

	// DRM_IOWR(0x0c, struct drm_get_cap)
	IOCTLGetCap = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(GetCapReq{})), IOCTLBase, 0x0c)

	// DRM_IOW(0x0d, struct drm_set_client_cap)
	IOCTLSetClientCap = ioctl.NewCode(ioctl.Write,
		uint16(unsafe.Sizeof(SetClientCapReq{})), IOCTLBase, 0x0d)

	// DRM_IOWR(0x2d, struct drm_prime_handle)
	IOCTLPrimeExport = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(PrimeExportReq{})), IOCTLBase, 0x2d)

	// DRM_IOWR(0x2e, struct drm_prime_handle)
	IOCTLPrimeImport = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(PrimeImportReq{})), IOCTLBase, 0x2e)

	// DRM_IOWR(0xA0, struct drm_mode_card_res)
	IOCTLModeResources = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(ResourcesReq{})), IOCTLBase, 0xA0)

	// DRM_IOWR(0xA1, struct drm_mode_crtc)
	IOCTLModeGetCrtc = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(GetCrtcReq{})), IOCTLBase, 0xA1)

	// DRM_IOWR(0xA2, struct drm_mode_crtc)
	IOCTLModeSetCrtc = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(SetCrtcReq{})), IOCTLBase, 0xA2)

	// DRM_IOWR(0xA6, struct drm_mode_get_encoder)
	IOCTLModeGetEncoder = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(GetEncoderReq{})), IOCTLBase, 0xA6)

	// DRM_IOWR(0xA7, struct drm_mode_get_connector)
	IOCTLModeGetConnector = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(GetConnectorReq{})), IOCTLBase, 0xA7)

	// DRM_IOWR(0xAA, struct drm_mode_get_property)
	IOCTLModeGetProperty = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(GetPropertyReq{})), IOCTLBase, 0xAA)

	// DRM_IOWR(0xAC, struct drm_mode_get_blob)
	IOCTLModeGetBlob = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(GetBlobReq{})), IOCTLBase, 0xAC)

	// DRM_IOWR(0xAE, struct drm_mode_fb_cmd)
	IOCTLModeAddFB = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(AddFBReq{})), IOCTLBase, 0xAE)

	// DRM_IOWR(0xAF, unsigned int)
	IOCTLModeRmFB = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(uint32(0))), IOCTLBase, 0xAF)

	// DRM_IOWR(0xB0, struct drm_mode_crtc_page_flip)
	IOCTLModePageFlip = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(PageFlipReq{})), IOCTLBase, 0xB0)

	// DRM_IOWR(0xB1, struct drm_mode_fb_dirty_cmd)
	IOCTLModeDirtyFB = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(DirtyFBReq{})), IOCTLBase, 0xB1)

	// DRM_IOWR(0xB2, struct drm_mode_create_dumb)
	IOCTLModeCreateDumb = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(CreateDumbReq{})), IOCTLBase, 0xB2)

	// DRM_IOWR(0xB3, struct drm_mode_map_dumb)
	IOCTLModeMapDumb = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(MapDumbReq{})), IOCTLBase, 0xB3)

	// DRM_IOWR(0xB4, struct drm_mode_destroy_dumb)
	IOCTLModeDestroyDumb = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(DestroyDumbReq{})), IOCTLBase, 0xB4)

	// DRM_IOWR(0xB5, struct drm_mode_get_plane_res)
	IOCTLModeGetPlaneResources = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(GetPlaneResourcesReq{})), IOCTLBase, 0xB5)

	// DRM_IOWR(0xB6, struct drm_mode_get_plane)
	IOCTLModeGetPlane = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(GetPlaneReq{})), IOCTLBase, 0xB6)

	// DRM_IOWR(0xB9, struct drm_mode_obj_get_properties)
	IOCTLModeObjGetProperties = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(ObjectPropertiesReq{})), IOCTLBase, 0xB9)

	// DRM_IOWR(0xBC, struct drm_mode_atomic)
	IOCTLModeAtomic = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(AtomicReq{})), IOCTLBase, 0xBC)

	// DRM_IOWR(0xBD, struct drm_mode_create_blob)
	IOCTLModeCreateBlob = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(CreateBlobReq{})), IOCTLBase, 0xBD)

	// DRM_IOWR(0xBE, struct drm_mode_destroy_blob)
	IOCTLModeDestroyBlob = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(DestroyBlobReq{})), IOCTLBase, 0xBE)
)
