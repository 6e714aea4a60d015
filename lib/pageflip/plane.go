// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pageflip

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/hwcomposer/lib/drm"
	"github.com/bureau-foundation/hwcomposer/lib/frame"
)

var errMainDisabled = errors.New("main plane cannot be disabled by a page flip")

// Plane tracks what the legacy path last programmed into one plane
// slot, so unchanged overlays are not reprogrammed every frame.
type Plane struct {
	crtcID uint32
	caps   PlaneCaps

	// layer is the last content issued; enabled reports whether the
	// plane is currently scanning out.
	layer   frame.Layer
	enabled bool

	// Dirty bits for the next commit.
	dirtyContent   bool
	dirtyTransform bool
	dirtyDecrypt   bool

	// flipPending is set while a page flip issued on this plane awaits
	// its completion event.
	flipPending bool
}

func newPlane(crtcID uint32, caps PlaneCaps) *Plane {
	return &Plane{crtcID: crtcID, caps: caps, dirtyContent: true}
}

// Main reports whether this is the display's main plane.
func (p *Plane) Main() bool { return p.caps.Main }

// Dirty reports whether the next commit must reprogram the plane.
func (p *Plane) Dirty() bool {
	return p.dirtyContent || p.dirtyTransform || p.dirtyDecrypt
}

// stage compares layer against the last issued content and records
// what changed. A nil layer disables the plane.
func (p *Plane) stage(layer *frame.Layer) frame.Layer {
	next := frame.Layer{Disabled: true}
	if layer != nil {
		next = *layer
	}
	if next.Enabled() != p.enabled ||
		next.Buffer != p.layer.Buffer ||
		next.Source != p.layer.Source ||
		next.Destination != p.layer.Destination {
		p.dirtyContent = true
	}
	if next.Transform != p.layer.Transform {
		p.dirtyTransform = true
	}
	if next.Encrypted != p.layer.Encrypted {
		p.dirtyDecrypt = true
	}
	return next
}

// flip issues a page flip of the crtc to the layer's buffer. The
// kernel queues the flip for the next vblank; when requestEvent is set
// it reports completion with token.
func (p *Plane) flip(device Device, layer frame.Layer, requestEvent bool, token uint64) error {
	if !layer.Enabled() {
		return errMainDisabled
	}
	var flags uint32
	if requestEvent {
		flags |= drm.PageFlipEvent
	}
	if err := device.PageFlip(p.crtcID, layer.Buffer.FramebufferID, flags, token); err != nil {
		return fmt.Errorf("page flip crtc %d to fb %d: %w", p.crtcID, layer.Buffer.FramebufferID, err)
	}
	p.commit(layer)
	p.flipPending = requestEvent
	return nil
}

// set programs an overlay synchronously.
func (p *Plane) set(device Device, layer frame.Layer) error {
	request := drm.SetPlaneRequest{PlaneID: p.caps.ObjectID, CrtcID: p.crtcID}
	if layer.Enabled() {
		request.FramebufferID = layer.Buffer.FramebufferID
		request.CrtcX = layer.Destination.X
		request.CrtcY = layer.Destination.Y
		request.CrtcW = layer.Destination.Width
		request.CrtcH = layer.Destination.Height
		request.SrcX = uint32(layer.Source.X) << 16
		request.SrcY = uint32(layer.Source.Y) << 16
		request.SrcW = layer.Source.Width << 16
		request.SrcH = layer.Source.Height << 16
	}
	if err := device.SetPlane(request); err != nil {
		return fmt.Errorf("set plane %d: %w", p.caps.ObjectID, err)
	}
	p.commit(layer)
	return nil
}

func (p *Plane) commit(layer frame.Layer) {
	p.layer = layer
	p.enabled = layer.Enabled()
	p.dirtyContent = false
	p.dirtyTransform = false
	p.dirtyDecrypt = false
}

// completeFlip retires the plane's outstanding page flip.
func (p *Plane) completeFlip() {
	p.flipPending = false
}

// reset forgets the programmed state so the next commit reprograms the
// plane.
func (p *Plane) reset() {
	p.layer = frame.Layer{}
	p.enabled = false
	p.dirtyContent = true
	p.flipPending = false
}

func (p *Plane) String() string {
	return fmt.Sprintf("%s:%d %s", p.caps.ObjectType, p.caps.ObjectID, p.layer)
}
