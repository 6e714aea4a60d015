// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pageflip

import (
	"fmt"

	"github.com/bureau-foundation/hwcomposer/lib/drm"
	"github.com/bureau-foundation/hwcomposer/lib/frame"
	"github.com/bureau-foundation/hwcomposer/lib/option"
)

// nuclear issues each frame as a single non-blocking atomic commit of
// every plane's state.
type nuclear struct {
	device Device
	output Output
}

func testNuclear(target Target) bool {
	if !target.Device.Capabilities().Atomic {
		return false
	}
	if !target.Options.Enabled(option.Nuclear) {
		return false
	}
	// Plane-only commits cannot modeset.
	if !target.Output.CrtcActive {
		return false
	}
	return atomicPlanesReady(target.Output)
}

func newNuclear(target Target) Strategy {
	return &nuclear{device: target.Device, output: target.Output}
}

func (n *nuclear) Kind() Kind { return KindNuclear }

func (n *nuclear) Commit(f *frame.Frame, mainBlanked bool, token uint64) error {
	request := drm.NewAtomicRequest()
	addPlanes(request, n.output, f)
	if err := n.device.AtomicCommit(request, drm.PageFlipEvent|drm.AtomicNonBlock, token); err != nil {
		return fmt.Errorf("atomic commit of frame %s: %w", f.ID(), err)
	}
	return nil
}

func (n *nuclear) Close() {}
