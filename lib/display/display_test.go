// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/hwcomposer/lib/clock"
	"github.com/bureau-foundation/hwcomposer/lib/drm"
	"github.com/bureau-foundation/hwcomposer/lib/flipevent"
	"github.com/bureau-foundation/hwcomposer/lib/frame"
	"github.com/bureau-foundation/hwcomposer/lib/pageflip"
	"github.com/bureau-foundation/hwcomposer/lib/testutil"
)

// fakeCard is a device without atomic support that reports each page
// flip's token and hands out dumb buffers.
type fakeCard struct {
	mu         sync.Mutex
	caps       drm.Capabilities
	tokens     chan uint64
	nextFB     uint32
	created    int
	destroyed  []uint32
	blobs      []uint32
	createErr  error
	modeBlobID uint32
	modesets   int
}

func newFakeCard() *fakeCard {
	return &fakeCard{tokens: make(chan uint64, 16), nextFB: 500, modeBlobID: 9}
}

func (c *fakeCard) Capabilities() drm.Capabilities { return c.caps }

func (c *fakeCard) PageFlip(crtcID, framebufferID, flags uint32, userData uint64) error {
	if flags&drm.PageFlipEvent != 0 {
		c.tokens <- userData
	}
	return nil
}

func (c *fakeCard) SetPlane(drm.SetPlaneRequest) error { return nil }

func (c *fakeCard) SetCrtc(crtcID, framebufferID, connectorID uint32, mode drm.ModeInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modesets++
	return nil
}

func (c *fakeCard) AtomicCommit(request *drm.AtomicRequest, flags uint32, userData uint64) error {
	return drm.ErrUnsupported
}

func (c *fakeCard) CreateDumbBuffer(width, height uint32) (*drm.DumbBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.created++
	c.nextFB++
	return &drm.DumbBuffer{
		FramebufferID: c.nextFB,
		Width:         width,
		Height:        height,
		Pitch:         width * 4,
		Data:          make([]byte, int(width)*int(height)*4),
	}, nil
}

func (c *fakeCard) DestroyDumbBuffer(buffer *drm.DumbBuffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = append(c.destroyed, buffer.FramebufferID)
	return nil
}

func (c *fakeCard) CreateModeBlob(drm.ModeInfo) (uint32, error) { return c.modeBlobID, nil }

func (c *fakeCard) DestroyPropertyBlob(blobID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blobs = append(c.blobs, blobID)
	return nil
}

func testMode() drm.ModeInfo {
	mode := drm.ModeInfo{HDisplay: 64, VDisplay: 32, VRefresh: 60}
	copy(mode.Name[:], "64x32")
	return mode
}

func legacyOutput() drm.Output {
	return drm.Output{
		Connector: drm.Connector{ID: 50, Connected: true},
		Crtc:      drm.Crtc{ID: 40},
		Mode:      testMode(),
	}
}

func universalOutput() drm.Output {
	output := legacyOutput()
	output.Planes = []drm.Plane{
		{ID: 30, Type: drm.PlanePrimary},
		{ID: 31, Type: drm.PlaneOverlay},
	}
	return output
}

func newTestDisplay(t *testing.T, card *fakeCard, output drm.Output) *Display {
	t.Helper()
	d := New(Config{
		Index:     1,
		Output:    output,
		Device:    card,
		Resources: card,
		Clock:     clock.Real(),
		Strict:    true,
	})
	t.Cleanup(func() { d.Close() })
	return d
}

func testFrame(index uint32, framebufferID uint32) *frame.Frame {
	buffer := frame.Buffer{FramebufferID: framebufferID, Width: 64, Height: 32}
	return frame.New(frame.NewID(index, time.Time{}), []frame.Layer{frame.FullScreen(buffer, 64, 32)}, frame.Config{}, nil)
}

func TestHandlerOutputWithoutUniversalPlanes(t *testing.T) {
	output := handlerOutput(legacyOutput())
	if len(output.Planes) != 1 {
		t.Fatalf("planes = %d, want 1", len(output.Planes))
	}
	main := output.Planes[0]
	if !main.Main || main.ObjectType != drm.ObjectCRTC || main.ObjectID != 40 {
		t.Errorf("main plane = %+v, want the crtc", main)
	}
}

func TestHandlerOutputCarriesCrtcState(t *testing.T) {
	output := legacyOutput()
	if got := handlerOutput(output); got.CrtcActive || got.Mode != testMode() {
		t.Errorf("inactive crtc: active = %v, mode = %s", got.CrtcActive, got.Mode)
	}
	output.Crtc.ModeValid = true
	output.Crtc.Mode = testMode()
	if !handlerOutput(output).CrtcActive {
		t.Error("crtc with a valid mode not reported active")
	}
}

func TestHandlerOutputWithUniversalPlanes(t *testing.T) {
	output := handlerOutput(universalOutput())
	if len(output.Planes) != 2 {
		t.Fatalf("planes = %d, want 2", len(output.Planes))
	}
	if !output.Planes[0].Main || output.Planes[0].ObjectID != 30 || output.Planes[0].ObjectType != drm.ObjectPlane {
		t.Errorf("plane 0 = %+v, want primary plane 30 as main", output.Planes[0])
	}
	if output.Planes[1].Main {
		t.Error("overlay marked as main")
	}
}

func TestAppliedSizeFollowsMode(t *testing.T) {
	d := newTestDisplay(t, newFakeCard(), legacyOutput())
	width, height := d.AppliedSize()
	if width != 64 || height != 32 {
		t.Errorf("AppliedSize() = %dx%d, want 64x32", width, height)
	}
}

func TestBlankingLayerCachedPerSize(t *testing.T) {
	card := newFakeCard()
	d := newTestDisplay(t, card, legacyOutput())

	first, err := d.BlankingLayer(64, 32)
	if err != nil {
		t.Fatalf("BlankingLayer: %v", err)
	}
	again, _ := d.BlankingLayer(64, 32)
	if first.Buffer.FramebufferID != again.Buffer.FramebufferID {
		t.Error("same size allocated a second buffer")
	}
	scaled, _ := d.BlankingLayer(32, 16)
	if scaled.Buffer.FramebufferID == first.Buffer.FramebufferID {
		t.Error("different size reused a buffer")
	}
	if !first.Enabled() || first.Destination.Width != 64 || first.Source.Height != 32 {
		t.Errorf("blanking layer = %s", first)
	}
	if card.created != 2 {
		t.Errorf("buffers created = %d, want 2", card.created)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(card.destroyed) != 2 {
		t.Errorf("buffers destroyed = %v, want both", card.destroyed)
	}
}

func TestBlankingLayerAllocationFailure(t *testing.T) {
	card := newFakeCard()
	card.createErr = drm.ErrUnsupported
	d := newTestDisplay(t, card, legacyOutput())
	if _, err := d.BlankingLayer(64, 32); !errors.Is(err, drm.ErrUnsupported) {
		t.Errorf("BlankingLayer error = %v, want wrapped ErrUnsupported", err)
	}
}

func TestModeBlobOnlyWithAtomic(t *testing.T) {
	card := newFakeCard()
	d := newTestDisplay(t, card, legacyOutput())
	if d.Output().ModeBlobID != 0 {
		t.Error("mode blob created without atomic support")
	}

	atomicCard := newFakeCard()
	atomicCard.caps.Atomic = true
	atomicDisplay := newTestDisplay(t, atomicCard, universalOutput())
	if atomicDisplay.Output().ModeBlobID != 9 {
		t.Fatalf("mode blob = %d, want 9", atomicDisplay.Output().ModeBlobID)
	}
	atomicDisplay.Close()
	if len(atomicCard.blobs) != 1 || atomicCard.blobs[0] != 9 {
		t.Errorf("destroyed blobs = %v, want [9]", atomicCard.blobs)
	}
}

func TestRunPresentsFramesInOrder(t *testing.T) {
	card := newFakeCard()
	d := newTestDisplay(t, card, legacyOutput())
	d.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- d.Run(ctx) }()

	var frames []*frame.Frame
	for range 3 {
		_, index := d.NextFence()
		f := testFrame(index, 600+index)
		frames = append(frames, f)
		if err := d.Present(ctx, f); err != nil {
			t.Fatalf("Present: %v", err)
		}
	}

	handler := d.Handler()
	for i := range frames {
		token := testutil.RequireReceive(t, card.tokens, 5*time.Second, "commit of frame %d", i)
		display, sequence := flipevent.DecodeToken(token)
		if display != 1 {
			t.Fatalf("token display = %d, want 1", display)
		}
		handler.PageFlipEvent(sequence)
	}

	cancel()
	testutil.RequireReceive(t, runDone, 5*time.Second, "Run did not stop")

	if !frames[0].Released() || !frames[1].Released() {
		t.Error("frames replaced on screen were not released")
	}
	if frames[2].Released() {
		t.Error("frame on screen was released")
	}
	if got := handler.Timeline().Current(); got != 2 {
		t.Errorf("released point = %d, want 2", got)
	}
	card.mu.Lock()
	modesets := card.modesets
	card.mu.Unlock()
	if modesets != 1 {
		t.Errorf("modesets = %d, want 1 to light the inactive crtc", modesets)
	}
}

func TestCloseRetiresQueuedFrames(t *testing.T) {
	card := newFakeCard()
	d := newTestDisplay(t, card, legacyOutput())
	d.Start()

	_, first := d.NextFence()
	_, second := d.NextFence()
	queued := []*frame.Frame{testFrame(first, 601), testFrame(second, 602)}
	for _, f := range queued {
		if err := d.Present(context.Background(), f); err != nil {
			t.Fatalf("Present: %v", err)
		}
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, f := range queued {
		if !f.Released() {
			t.Errorf("%s not released on Close", f)
		}
	}
	if got := d.Handler().Timeline().Current(); got != second {
		t.Errorf("released point = %d, want %d", got, second)
	}

	if err := d.Present(context.Background(), testFrame(3, 603)); !errors.Is(err, ErrClosed) {
		t.Errorf("Present after Close = %v, want ErrClosed", err)
	}
}

func TestPresentHonorsContext(t *testing.T) {
	d := newTestDisplay(t, newFakeCard(), legacyOutput())
	for i := range DefaultQueueDepth {
		if err := d.Present(context.Background(), testFrame(uint32(i+1), 600)); err != nil {
			t.Fatalf("Present: %v", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Present(ctx, testFrame(9, 600)); !errors.Is(err, context.Canceled) {
		t.Errorf("Present on a full queue = %v, want context.Canceled", err)
	}
}

func TestStartSelectsLegacyWithoutAtomic(t *testing.T) {
	d := newTestDisplay(t, newFakeCard(), universalOutput())
	d.Start()
	if got := d.Handler().Status().Strategy; got != pageflip.KindLegacy {
		t.Errorf("strategy = %s, want legacy", got)
	}
}

func TestRepeatFenceSharesLatestPoint(t *testing.T) {
	d := newTestDisplay(t, newFakeCard(), legacyOutput())
	d.Start()

	fresh, index := d.NextFence()
	repeat, repeatIndex := d.RepeatFence()
	if repeatIndex != index || repeat.Point() != fresh.Point() {
		t.Fatalf("RepeatFence point = %d, want %d", repeatIndex, index)
	}
	if _, next := d.NextFence(); next != index+1 {
		t.Errorf("NextFence after a repeat = %d, want %d", next, index+1)
	}
}
