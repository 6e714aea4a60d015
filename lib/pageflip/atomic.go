// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pageflip

import (
	"github.com/bureau-foundation/hwcomposer/lib/drm"
	"github.com/bureau-foundation/hwcomposer/lib/frame"
)

// Plane properties an atomic commit assigns.
var atomicPlaneProperties = []string{
	"FB_ID", "CRTC_ID",
	"SRC_X", "SRC_Y", "SRC_W", "SRC_H",
	"CRTC_X", "CRTC_Y", "CRTC_W", "CRTC_H",
}

// Rotation property bits.
const (
	rotate0   = 1 << 0
	rotate90  = 1 << 1
	rotate180 = 1 << 2
	rotate270 = 1 << 3
	reflectX  = 1 << 4
	reflectY  = 1 << 5
)

func rotationValue(transform frame.Transform) uint64 {
	switch transform {
	case frame.TransformFlipH:
		return rotate0 | reflectX
	case frame.TransformFlipV:
		return rotate0 | reflectY
	case frame.TransformRotate90:
		return rotate90
	case frame.TransformRotate180:
		return rotate180
	case frame.TransformRotate270:
		return rotate270
	default:
		return rotate0
	}
}

// atomicPlanesReady reports whether every slot is a real plane object
// with the properties an atomic commit needs.
func atomicPlanesReady(output Output) bool {
	if len(output.Planes) == 0 {
		return false
	}
	for _, plane := range output.Planes {
		if plane.ObjectType != drm.ObjectPlane {
			return false
		}
		if !plane.Properties.Has(atomicPlaneProperties...) {
			return false
		}
	}
	return true
}

// addPlanes programs every plane slot of output from f. Slots the frame
// does not cover, and disabled layers, detach their plane.
func addPlanes(request *drm.AtomicRequest, output Output, f *frame.Frame) {
	for index, plane := range output.Planes {
		addPlane(request, plane, output.CrtcID, f.Layer(index))
	}
}

func addPlane(request *drm.AtomicRequest, plane PlaneCaps, crtcID uint32, layer *frame.Layer) {
	props := plane.Properties
	id := plane.ObjectID
	if layer == nil || !layer.Enabled() {
		request.Add(id, props.ID("FB_ID"), 0)
		request.Add(id, props.ID("CRTC_ID"), 0)
		return
	}

	request.Add(id, props.ID("FB_ID"), uint64(layer.Buffer.FramebufferID))
	request.Add(id, props.ID("CRTC_ID"), uint64(crtcID))

	// Source coordinates are 16.16 fixed point; destination x/y are
	// signed.
	source := layer.Source
	destination := layer.Destination
	request.Add(id, props.ID("SRC_X"), uint64(uint32(source.X))<<16)
	request.Add(id, props.ID("SRC_Y"), uint64(uint32(source.Y))<<16)
	request.Add(id, props.ID("SRC_W"), uint64(source.Width)<<16)
	request.Add(id, props.ID("SRC_H"), uint64(source.Height)<<16)
	request.Add(id, props.ID("CRTC_X"), uint64(int64(destination.X)))
	request.Add(id, props.ID("CRTC_Y"), uint64(int64(destination.Y)))
	request.Add(id, props.ID("CRTC_W"), uint64(destination.Width))
	request.Add(id, props.ID("CRTC_H"), uint64(destination.Height))

	if props.Has("rotation") {
		request.Add(id, props.ID("rotation"), rotationValue(layer.Transform))
	}
}
