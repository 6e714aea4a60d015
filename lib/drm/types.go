// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drm

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned for operations the device or driver
	// cannot perform.
	ErrUnsupported = errors.New("drm: unsupported")

	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("drm: device closed")

	// ErrInterrupted is returned by ReadEvents when Interrupt woke it.
	ErrInterrupted = errors.New("drm: event read interrupted")
)

// Capabilities records what the device accepted at open.
type Capabilities struct {
	Atomic          bool
	UniversalPlanes bool
	DumbBuffers     bool
}

// ObjectType is a mode object type tag.
type ObjectType uint32

const (
	ObjectCRTC      ObjectType = 0xcccccccc
	ObjectConnector ObjectType = 0xc0c0c0c0
	ObjectEncoder   ObjectType = 0xe0e0e0e0
	ObjectMode      ObjectType = 0xdededede
	ObjectProperty  ObjectType = 0xb0b0b0b0
	ObjectFB        ObjectType = 0xfbfbfbfb
	ObjectBlob      ObjectType = 0xbbbbbbbb
	ObjectPlane     ObjectType = 0xeeeeeeee
)

func (t ObjectType) String() string {
	switch t {
	case ObjectCRTC:
		return "crtc"
	case ObjectConnector:
		return "connector"
	case ObjectPlane:
		return "plane"
	default:
		return fmt.Sprintf("object(0x%x)", uint32(t))
	}
}

// PlaneType is the value of a plane's "type" property.
type PlaneType uint64

const (
	PlaneOverlay PlaneType = 0
	PlanePrimary PlaneType = 1
	PlaneCursor  PlaneType = 2
)

func (t PlaneType) String() string {
	switch t {
	case PlaneOverlay:
		return "overlay"
	case PlanePrimary:
		return "primary"
	case PlaneCursor:
		return "cursor"
	default:
		return fmt.Sprintf("plane-type(%d)", uint64(t))
	}
}

// Page flip and atomic commit flags.
const (
	PageFlipEvent      = 0x01
	PageFlipAsync      = 0x02
	AtomicTestOnly     = 0x0100
	AtomicNonBlock     = 0x0200
	AtomicAllowModeset = 0x0400
)

// Client capabilities.
const (
	clientCapUniversalPlanes = 2
	clientCapAtomic          = 3
)

// Device capabilities.
const (
	capDumbBuffer = 0x1
)

// FormatXRGB8888 is the DRM fourcc for 32-bit xRGB.
const FormatXRGB8888 = 0x34325258

// Property is one property attached to a mode object.
type Property struct {
	ID    uint32
	Value uint64
}

// Properties maps property names to their IDs and values.
type Properties map[string]Property

// Has reports whether every named property exists.
func (p Properties) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := p[name]; !ok {
			return false
		}
	}
	return true
}

// ID returns the property ID for name, or 0.
func (p Properties) ID(name string) uint32 {
	return p[name].ID
}

// ModeInfo mirrors struct drm_mode_modeinfo (68 bytes).
type ModeInfo struct {
	Clock                                         uint32
	HDisplay, HSyncStart, HSyncEnd, HTotal, HSkew uint16
	VDisplay, VSyncStart, VSyncEnd, VTotal, VScan uint16
	VRefresh                                      uint32
	Flags                                         uint32
	Type                                          uint32
	Name                                          [32]byte
}

const modeTypePreferred = 1 << 3

// Preferred reports whether the connector marks this mode as preferred.
func (m ModeInfo) Preferred() bool { return m.Type&modeTypePreferred != 0 }

func (m ModeInfo) String() string {
	name := m.Name[:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return fmt.Sprintf("%s@%d", name, m.VRefresh)
}

// Connector is a discovered connector.
type Connector struct {
	ID         uint32
	Type       uint32
	Connected  bool
	EncoderID  uint32
	Modes      []ModeInfo
	Properties Properties
}

// Crtc is a discovered crtc. Index is its position in the resource
// list, which is what plane possible-crtc masks refer to.
type Crtc struct {
	ID            uint32
	Index         int
	FramebufferID uint32
	ModeValid     bool
	Mode          ModeInfo
	Properties    Properties
}

// Plane is a discovered plane.
type Plane struct {
	ID            uint32
	Type          PlaneType
	PossibleCrtcs uint32
	CrtcID        uint32
	Properties    Properties
}

// Output is a connected connector bound to a crtc, with the planes that
// crtc can use. Planes lists the primary plane first when the device
// exposes universal planes.
type Output struct {
	Connector Connector
	Crtc      Crtc
	Mode      ModeInfo
	Planes    []Plane
}

// Topology is the read-only result of discovery.
type Topology struct {
	Outputs []Output
}

// SetPlaneRequest mirrors struct drm_mode_set_plane. Source coordinates
// are 16.16 fixed point.
type SetPlaneRequest struct {
	PlaneID       uint32
	CrtcID        uint32
	FramebufferID uint32
	Flags         uint32
	CrtcX, CrtcY  int32
	CrtcW, CrtcH  uint32
	SrcX, SrcY    uint32
	SrcH, SrcW    uint32
}

// DumbBuffer is a CPU-mapped scanout buffer registered as a
// framebuffer.
type DumbBuffer struct {
	Handle        uint32
	FramebufferID uint32
	Width         uint32
	Height        uint32
	Pitch         uint32
	Size          uint64

	// Data is the buffer's mapping, nil once destroyed.
	Data []byte
}
