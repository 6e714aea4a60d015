// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pageflip

import (
	"log/slog"

	"github.com/bureau-foundation/hwcomposer/lib/drm"
	"github.com/bureau-foundation/hwcomposer/lib/frame"
	"github.com/bureau-foundation/hwcomposer/lib/option"
)

// Kind identifies a commit strategy.
type Kind int

const (
	KindNone Kind = iota
	KindLegacy
	KindNuclear
	KindSetDisplay
)

func (k Kind) String() string {
	switch k {
	case KindLegacy:
		return "legacy"
	case KindNuclear:
		return "nuclear"
	case KindSetDisplay:
		return "set-display"
	default:
		return "none"
	}
}

// Device is the subset of the display device the strategies drive.
// *drm.Device implements it.
type Device interface {
	Capabilities() drm.Capabilities
	PageFlip(crtcID, framebufferID, flags uint32, userData uint64) error
	SetPlane(request drm.SetPlaneRequest) error
	AtomicCommit(request *drm.AtomicRequest, flags uint32, userData uint64) error
	SetCrtc(crtcID, framebufferID, connectorID uint32, mode drm.ModeInfo) error
}

// PlaneCaps describes one plane slot of a display.
type PlaneCaps struct {
	// Main marks the slot that carries the display's base content. A
	// display without universal planes exposes its main plane as the
	// crtc itself.
	Main bool

	ObjectType drm.ObjectType
	ObjectID   uint32
	Properties drm.Properties
}

// Output is the static description of a display the strategies program.
type Output struct {
	CrtcID              uint32
	ConnectorID         uint32
	Planes              []PlaneCaps
	CrtcProperties      drm.Properties
	ConnectorProperties drm.Properties

	// Mode is the mode the display scans out once lit.
	Mode drm.ModeInfo

	// CrtcActive reports whether the crtc was already scanning out when
	// the display was discovered. An inactive crtc needs a modeset
	// before it accepts flips.
	CrtcActive bool

	// ModeBlobID is a property blob holding the active mode, or 0 when
	// none could be created.
	ModeBlobID uint32
}

// Display is the handler's view of the display it flips.
type Display interface {
	Index() uint32
	Output() Output

	// AppliedSize is the size of the mode currently scanned out.
	AppliedSize() (width, height uint32)

	// BlankingLayer returns a black full-screen layer of the given
	// size. Buffers are cached by the display.
	BlankingLayer(width, height uint32) (frame.Layer, error)

	// ReleaseFlippedFrame hands a frame the display no longer shows
	// back to its producer.
	ReleaseFlippedFrame(f *frame.Frame)

	// NotifyReady tells the display that another flip may be issued.
	NotifyReady()
}

// Strategy issues one frame's commit. Commit only reports whether the
// commit was issued; completion arrives later as an event carrying
// token.
type Strategy interface {
	Kind() Kind
	Commit(f *frame.Frame, mainBlanked bool, token uint64) error
	Close()
}

// flipCompleter is implemented by strategies that keep per-commit state
// to retire when the commit completes.
type flipCompleter interface {
	CompleteFlip()
}

// Target is what a probe inspects and a constructor binds to.
type Target struct {
	Device  Device
	Output  Output
	Options *option.Set
	Logger  *slog.Logger
}

// Probe pairs a strategy with its applicability test. Tests must be
// free of side effects.
type Probe struct {
	Kind Kind
	Test func(Target) bool
	New  func(Target) Strategy
}

// Probes is the default preference order.
var Probes = []Probe{
	{Kind: KindNuclear, Test: testNuclear, New: newNuclear},
	{Kind: KindSetDisplay, Test: testSetDisplay, New: newSetDisplay},
	{Kind: KindLegacy, Test: testLegacy, New: newLegacy},
}

// selectStrategy binds the first strategy whose test passes, falling
// back to legacy when none does.
func selectStrategy(probes []Probe, target Target) Strategy {
	for _, probe := range probes {
		if probe.Test(target) {
			return probe.New(target)
		}
		target.Logger.Debug("commit strategy not applicable", "strategy", probe.Kind)
	}
	return newLegacy(target)
}
