// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Encoded DRM ioctl numbers. Each is _IOC(dir, 'd', nr, size) with the
// size of the kernel struct it carries; ioctl_test.go recomputes them
// from the Go struct sizes.
const (
	ioctlGetCap           = 0xC010640C // DRM_IOWR(0x0C, drm_get_cap)
	ioctlSetClientCap     = 0x4010640D // DRM_IOW(0x0D, drm_set_client_cap)
	ioctlModeGetResources = 0xC04064A0 // DRM_IOWR(0xA0, drm_mode_card_res)
	ioctlModeGetCrtc      = 0xC06864A1 // DRM_IOWR(0xA1, drm_mode_crtc)
	ioctlModeSetCrtc      = 0xC06864A2 // DRM_IOWR(0xA2, drm_mode_crtc)
	ioctlModeGetEncoder   = 0xC01464A6 // DRM_IOWR(0xA6, drm_mode_get_encoder)
	ioctlModeGetConnector = 0xC05064A7 // DRM_IOWR(0xA7, drm_mode_get_connector)
	ioctlModeGetProperty  = 0xC04064AA // DRM_IOWR(0xAA, drm_mode_get_property)
	ioctlModeAddFB        = 0xC01C64AE // DRM_IOWR(0xAE, drm_mode_fb_cmd)
	ioctlModeRmFB         = 0xC00464AF // DRM_IOWR(0xAF, unsigned int)
	ioctlModePageFlip     = 0xC01864B0 // DRM_IOWR(0xB0, drm_mode_crtc_page_flip)
	ioctlModeCreateDumb   = 0xC02064B2 // DRM_IOWR(0xB2, drm_mode_create_dumb)
	ioctlModeMapDumb      = 0xC01064B3 // DRM_IOWR(0xB3, drm_mode_map_dumb)
	ioctlModeDestroyDumb  = 0xC00464B4 // DRM_IOWR(0xB4, drm_mode_destroy_dumb)
	ioctlModeGetPlaneRes  = 0xC01064B5 // DRM_IOWR(0xB5, drm_mode_get_plane_res)
	ioctlModeGetPlane     = 0xC02064B6 // DRM_IOWR(0xB6, drm_mode_get_plane)
	ioctlModeSetPlane     = 0xC03064B7 // DRM_IOWR(0xB7, drm_mode_set_plane)
	ioctlModeObjGetProps  = 0xC02064B9 // DRM_IOWR(0xB9, drm_mode_obj_get_properties)
	ioctlModeAtomic       = 0xC03864BC // DRM_IOWR(0xBC, drm_mode_atomic)
	ioctlModeCreateBlob   = 0xC01064BD // DRM_IOWR(0xBD, drm_mode_create_blob)
	ioctlModeDestroyBlob  = 0xC00464BE // DRM_IOWR(0xBE, drm_mode_destroy_blob)
)

type sysGetCap struct {
	capability uint64
	value      uint64
}

type sysSetClientCap struct {
	capability uint64
	value      uint64
}

type sysCardResources struct {
	fbIDPtr              uint64
	crtcIDPtr            uint64
	connectorIDPtr       uint64
	encoderIDPtr         uint64
	countFbs             uint32
	countCrtcs           uint32
	countConnectors      uint32
	countEncoders        uint32
	minWidth, maxWidth   uint32
	minHeight, maxHeight uint32
}

type sysCrtc struct {
	setConnectorsPtr uint64
	countConnectors  uint32
	crtcID           uint32
	fbID             uint32
	x, y             uint32
	gammaSize        uint32
	modeValid        uint32
	mode             ModeInfo
}

type sysGetEncoder struct {
	encoderID      uint32
	encoderType    uint32
	crtcID         uint32
	possibleCrtcs  uint32
	possibleClones uint32
}

type sysGetConnector struct {
	encodersPtr   uint64
	modesPtr      uint64
	propsPtr      uint64
	propValuesPtr uint64

	countModes    uint32
	countProps    uint32
	countEncoders uint32

	encoderID       uint32
	connectorID     uint32
	connectorType   uint32
	connectorTypeID uint32

	connection        uint32
	mmWidth, mmHeight uint32
	subpixel          uint32
	pad               uint32
}

type sysGetProperty struct {
	valuesPtr      uint64
	enumBlobPtr    uint64
	propID         uint32
	flags          uint32
	name           [32]byte
	countValues    uint32
	countEnumBlobs uint32
}

type sysFBCommand struct {
	fbID   uint32
	width  uint32
	height uint32
	pitch  uint32
	bpp    uint32
	depth  uint32
	handle uint32
}

type sysPageFlip struct {
	crtcID   uint32
	fbID     uint32
	flags    uint32
	reserved uint32
	userData uint64
}

type sysCreateDumb struct {
	height uint32
	width  uint32
	bpp    uint32
	flags  uint32
	handle uint32
	pitch  uint32
	size   uint64
}

type sysMapDumb struct {
	handle uint32
	pad    uint32
	offset uint64
}

type sysDestroyDumb struct {
	handle uint32
}

type sysGetPlaneResources struct {
	planeIDPtr  uint64
	countPlanes uint32
}

type sysGetPlane struct {
	planeID          uint32
	crtcID           uint32
	fbID             uint32
	possibleCrtcs    uint32
	gammaSize        uint32
	countFormatTypes uint32
	formatTypePtr    uint64
}

type sysObjGetProperties struct {
	propsPtr      uint64
	propValuesPtr uint64
	countProps    uint32
	objID         uint32
	objType       uint32
}

type sysAtomic struct {
	flags         uint32
	countObjs     uint32
	objsPtr       uint64
	countPropsPtr uint64
	propsPtr      uint64
	propValuesPtr uint64
	reserved      uint64
	userData      uint64
}

type sysCreateBlob struct {
	data   uint64
	length uint32
	blobID uint32
}

type sysDestroyBlob struct {
	blobID uint32
}

// ioctl issues request on fd, restarting on EINTR and EAGAIN the way
// libdrm's drmIoctl does.
func ioctl(fd uintptr, request uintptr, argument unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, request, uintptr(argument))
		switch errno {
		case 0:
			return nil
		case unix.EINTR, unix.EAGAIN:
			continue
		default:
			return errno
		}
	}
}

// pointerTo returns the address of the first element of a slice as a
// kernel pointer, or 0 for an empty slice. Callers must keep the slice
// alive across the ioctl.
func pointerTo[T any](slice []T) uint64 {
	if len(slice) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&slice[0])))
}
