// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pageflip

import (
	"fmt"

	"github.com/bureau-foundation/hwcomposer/lib/drm"
	"github.com/bureau-foundation/hwcomposer/lib/frame"
)

// setDisplay commits the complete display state with every frame:
// connector routing, crtc mode and activation, and all planes. The
// kernel may perform a modeset as part of the commit.
type setDisplay struct {
	device Device
	output Output
}

func testSetDisplay(target Target) bool {
	if !target.Device.Capabilities().Atomic {
		return false
	}
	output := target.Output
	if output.ModeBlobID == 0 {
		return false
	}
	if !output.CrtcProperties.Has("ACTIVE", "MODE_ID") {
		return false
	}
	if !output.ConnectorProperties.Has("CRTC_ID") {
		return false
	}
	return atomicPlanesReady(output)
}

func newSetDisplay(target Target) Strategy {
	return &setDisplay{device: target.Device, output: target.Output}
}

func (s *setDisplay) Kind() Kind { return KindSetDisplay }

func (s *setDisplay) Commit(f *frame.Frame, mainBlanked bool, token uint64) error {
	output := s.output
	request := drm.NewAtomicRequest()
	request.Add(output.ConnectorID, output.ConnectorProperties.ID("CRTC_ID"), uint64(output.CrtcID))
	request.Add(output.CrtcID, output.CrtcProperties.ID("ACTIVE"), 1)
	request.Add(output.CrtcID, output.CrtcProperties.ID("MODE_ID"), uint64(output.ModeBlobID))
	addPlanes(request, output, f)

	flags := uint32(drm.PageFlipEvent | drm.AtomicNonBlock | drm.AtomicAllowModeset)
	if err := s.device.AtomicCommit(request, flags, token); err != nil {
		return fmt.Errorf("display state commit of frame %s: %w", f.ID(), err)
	}
	return nil
}

func (s *setDisplay) Close() {}
