// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drm

import (
	"testing"
	"unsafe"
)

// encode reproduces the kernel's _IOC macro for the 'd' ioctl type.
func encode(direction, number, size uintptr) uintptr {
	return direction<<30 | size<<16 | 'd'<<8 | number
}

const (
	directionWrite     = 1
	directionReadWrite = 3
)

func TestIoctlNumbersMatchStructSizes(t *testing.T) {
	tests := []struct {
		name      string
		got       uintptr
		direction uintptr
		number    uintptr
		size      uintptr
	}{
		{"GET_CAP", ioctlGetCap, directionReadWrite, 0x0C, unsafe.Sizeof(sysGetCap{})},
		{"SET_CLIENT_CAP", ioctlSetClientCap, directionWrite, 0x0D, unsafe.Sizeof(sysSetClientCap{})},
		{"MODE_GETRESOURCES", ioctlModeGetResources, directionReadWrite, 0xA0, unsafe.Sizeof(sysCardResources{})},
		{"MODE_GETCRTC", ioctlModeGetCrtc, directionReadWrite, 0xA1, unsafe.Sizeof(sysCrtc{})},
		{"MODE_SETCRTC", ioctlModeSetCrtc, directionReadWrite, 0xA2, unsafe.Sizeof(sysCrtc{})},
		{"MODE_GETENCODER", ioctlModeGetEncoder, directionReadWrite, 0xA6, unsafe.Sizeof(sysGetEncoder{})},
		{"MODE_GETCONNECTOR", ioctlModeGetConnector, directionReadWrite, 0xA7, unsafe.Sizeof(sysGetConnector{})},
		{"MODE_GETPROPERTY", ioctlModeGetProperty, directionReadWrite, 0xAA, unsafe.Sizeof(sysGetProperty{})},
		{"MODE_ADDFB", ioctlModeAddFB, directionReadWrite, 0xAE, unsafe.Sizeof(sysFBCommand{})},
		{"MODE_RMFB", ioctlModeRmFB, directionReadWrite, 0xAF, unsafe.Sizeof(uint32(0))},
		{"MODE_PAGE_FLIP", ioctlModePageFlip, directionReadWrite, 0xB0, unsafe.Sizeof(sysPageFlip{})},
		{"MODE_CREATE_DUMB", ioctlModeCreateDumb, directionReadWrite, 0xB2, unsafe.Sizeof(sysCreateDumb{})},
		{"MODE_MAP_DUMB", ioctlModeMapDumb, directionReadWrite, 0xB3, unsafe.Sizeof(sysMapDumb{})},
		{"MODE_DESTROY_DUMB", ioctlModeDestroyDumb, directionReadWrite, 0xB4, unsafe.Sizeof(sysDestroyDumb{})},
		{"MODE_GETPLANERESOURCES", ioctlModeGetPlaneRes, directionReadWrite, 0xB5, unsafe.Sizeof(sysGetPlaneResources{})},
		{"MODE_GETPLANE", ioctlModeGetPlane, directionReadWrite, 0xB6, unsafe.Sizeof(sysGetPlane{})},
		{"MODE_SETPLANE", ioctlModeSetPlane, directionReadWrite, 0xB7, unsafe.Sizeof(SetPlaneRequest{})},
		{"MODE_OBJ_GETPROPERTIES", ioctlModeObjGetProps, directionReadWrite, 0xB9, unsafe.Sizeof(sysObjGetProperties{})},
		{"MODE_ATOMIC", ioctlModeAtomic, directionReadWrite, 0xBC, unsafe.Sizeof(sysAtomic{})},
		{"MODE_CREATEPROPBLOB", ioctlModeCreateBlob, directionReadWrite, 0xBD, unsafe.Sizeof(sysCreateBlob{})},
		{"MODE_DESTROYPROPBLOB", ioctlModeDestroyBlob, directionReadWrite, 0xBE, unsafe.Sizeof(sysDestroyBlob{})},
	}
	for _, test := range tests {
		want := encode(test.direction, test.number, test.size)
		if test.got != want {
			t.Errorf("%s = 0x%08X, want 0x%08X (struct size %d)", test.name, test.got, want, test.size)
		}
	}
}

func TestKernelStructSizes(t *testing.T) {
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"drm_mode_modeinfo", unsafe.Sizeof(ModeInfo{}), 68},
		{"drm_mode_crtc", unsafe.Sizeof(sysCrtc{}), 104},
		{"drm_mode_get_connector", unsafe.Sizeof(sysGetConnector{}), 80},
		{"drm_mode_atomic", unsafe.Sizeof(sysAtomic{}), 56},
		{"drm_mode_set_plane", unsafe.Sizeof(SetPlaneRequest{}), 48},
		{"drm_mode_crtc_page_flip", unsafe.Sizeof(sysPageFlip{}), 24},
	}
	for _, test := range tests {
		if test.got != test.want {
			t.Errorf("sizeof(%s) = %d, want %d", test.name, test.got, test.want)
		}
	}
}

func TestPointerToEmptySlice(t *testing.T) {
	if pointerTo([]uint32(nil)) != 0 {
		t.Error("pointerTo(nil) should be 0")
	}
	if pointerTo([]uint32{1}) == 0 {
		t.Error("pointerTo(non-empty) should not be 0")
	}
}
