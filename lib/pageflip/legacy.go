// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pageflip

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/hwcomposer/lib/frame"
)

// errNoFlipEvent reports a legacy commit that programmed no plane able
// to deliver a completion event. Without an event the commit could
// never complete, so it counts as not issued.
var errNoFlipEvent = errors.New("no plane requested a flip completion event")

// legacy issues one request per plane: a page flip for the main plane,
// which carries the completion event, and synchronous set-plane
// requests for overlays whose content changed.
type legacy struct {
	device Device
	logger *slog.Logger
	output Output
	planes []*Plane

	// active is set once the crtc scans out; until then the main plane
	// needs a modeset before its first flip.
	active bool

	// eventPlane is the plane whose flip carries the outstanding
	// completion event, or nil.
	eventPlane *Plane
}

func testLegacy(Target) bool { return true }

func newLegacy(target Target) Strategy {
	l := &legacy{
		device: target.Device,
		logger: target.Logger,
		output: target.Output,
		active: target.Output.CrtcActive,
	}
	for _, caps := range target.Output.Planes {
		l.planes = append(l.planes, newPlane(target.Output.CrtcID, caps))
	}
	return l
}

func (l *legacy) Kind() Kind { return KindLegacy }

func (l *legacy) Commit(f *frame.Frame, mainBlanked bool, token uint64) error {
	var requested *Plane
	for index, plane := range l.planes {
		layer := plane.stage(f.Layer(index))
		if plane.Main() {
			if !l.active {
				if err := l.modeset(layer); err != nil {
					return fmt.Errorf("frame %s: %w", f.ID(), err)
				}
			}
			// The main plane flips every frame, even when its buffer is
			// unchanged, so the commit always produces an event.
			if err := plane.flip(l.device, layer, requested == nil, token); err != nil {
				return fmt.Errorf("frame %s: %w", f.ID(), err)
			}
			if requested == nil {
				requested = plane
			}
			continue
		}
		if !plane.Dirty() {
			continue
		}
		if err := plane.set(l.device, layer); err != nil {
			// Overlays are programmed independently; a failure leaves
			// that plane stale but does not void the commit.
			l.logger.Warn("overlay update failed", "plane", plane, "frame", f.ID(), "error", err)
		}
	}
	if requested == nil {
		return errNoFlipEvent
	}
	l.eventPlane = requested
	return nil
}

// modeset lights the crtc with layer's buffer. The page flip that
// follows targets the same buffer and supplies the completion event.
func (l *legacy) modeset(layer frame.Layer) error {
	if !layer.Enabled() {
		return errMainDisabled
	}
	output := l.output
	if err := l.device.SetCrtc(output.CrtcID, layer.Buffer.FramebufferID, output.ConnectorID, output.Mode); err != nil {
		return err
	}
	l.active = true
	l.logger.Info("crtc lit by modeset", "crtc", output.CrtcID, "connector", output.ConnectorID, "mode", output.Mode)
	return nil
}

// CompleteFlip retires the plane that carried the completion event.
func (l *legacy) CompleteFlip() {
	if l.eventPlane != nil {
		l.eventPlane.completeFlip()
		l.eventPlane = nil
	}
}

func (l *legacy) Close() {
	for _, plane := range l.planes {
		plane.reset()
	}
	l.eventPlane = nil
}
