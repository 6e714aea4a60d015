// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pageflip

import (
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/hwcomposer/lib/clock"
	"github.com/bureau-foundation/hwcomposer/lib/drm"
	"github.com/bureau-foundation/hwcomposer/lib/frame"
	"github.com/bureau-foundation/hwcomposer/lib/option"
)

const blankingFramebuffer = 900

type pageFlipCall struct {
	crtcID, framebufferID, flags uint32
	token                        uint64
}

type setCrtcCall struct {
	crtcID, framebufferID, connectorID uint32
	mode                               drm.ModeInfo
}

type atomicCall struct {
	request *drm.AtomicRequest
	flags   uint32
	token   uint64
}

// fakeDevice records every request. A non-nil tokens channel receives
// the token of each issued commit that asked for an event.
type fakeDevice struct {
	mu           sync.Mutex
	caps         drm.Capabilities
	pageFlips    []pageFlipCall
	setPlanes    []drm.SetPlaneRequest
	commits      []atomicCall
	setCrtcs     []setCrtcCall
	pageFlipErr  error
	setCrtcErr   error
	setPlaneErr  error
	atomicErr    error
	tokens       chan uint64
	beforeCommit func()
}

func (d *fakeDevice) Capabilities() drm.Capabilities { return d.caps }

func (d *fakeDevice) PageFlip(crtcID, framebufferID, flags uint32, userData uint64) error {
	if d.beforeCommit != nil {
		d.beforeCommit()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pageFlipErr != nil {
		return d.pageFlipErr
	}
	d.pageFlips = append(d.pageFlips, pageFlipCall{crtcID, framebufferID, flags, userData})
	if d.tokens != nil && flags&drm.PageFlipEvent != 0 {
		d.tokens <- userData
	}
	return nil
}

func (d *fakeDevice) SetPlane(request drm.SetPlaneRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.setPlaneErr != nil {
		return d.setPlaneErr
	}
	d.setPlanes = append(d.setPlanes, request)
	return nil
}

func (d *fakeDevice) AtomicCommit(request *drm.AtomicRequest, flags uint32, userData uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.atomicErr != nil {
		return d.atomicErr
	}
	d.commits = append(d.commits, atomicCall{request, flags, userData})
	if d.tokens != nil && flags&drm.PageFlipEvent != 0 {
		d.tokens <- userData
	}
	return nil
}

func (d *fakeDevice) SetCrtc(crtcID, framebufferID, connectorID uint32, mode drm.ModeInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.setCrtcErr != nil {
		return d.setCrtcErr
	}
	d.setCrtcs = append(d.setCrtcs, setCrtcCall{crtcID, framebufferID, connectorID, mode})
	return nil
}

func (d *fakeDevice) flipCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pageFlips)
}

// fakeDisplay releases frames to their producers and counts ready
// notifications. onReady, when set, runs inside NotifyReady.
type fakeDisplay struct {
	index  uint32
	output Output
	width  uint32
	height uint32

	mu            sync.Mutex
	released      []*frame.Frame
	ready         int
	blankingSizes [][2]uint32
	blankingErr   error
	onReady       func()
}

func (d *fakeDisplay) Index() uint32  { return d.index }
func (d *fakeDisplay) Output() Output { return d.output }

func (d *fakeDisplay) AppliedSize() (uint32, uint32) { return d.width, d.height }

func (d *fakeDisplay) BlankingLayer(width, height uint32) (frame.Layer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blankingSizes = append(d.blankingSizes, [2]uint32{width, height})
	if d.blankingErr != nil {
		return frame.Layer{}, d.blankingErr
	}
	buffer := frame.Buffer{FramebufferID: blankingFramebuffer, Width: width, Height: height, Format: drm.FormatXRGB8888}
	return frame.FullScreen(buffer, width, height), nil
}

func (d *fakeDisplay) ReleaseFlippedFrame(f *frame.Frame) {
	d.mu.Lock()
	d.released = append(d.released, f)
	d.mu.Unlock()
	f.Release()
}

func (d *fakeDisplay) NotifyReady() {
	d.mu.Lock()
	d.ready++
	onReady := d.onReady
	d.mu.Unlock()
	if onReady != nil {
		onReady()
	}
}

func (d *fakeDisplay) releasedFrames() []*frame.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*frame.Frame(nil), d.released...)
}

func (d *fakeDisplay) readyCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// legacyOutput is a display without universal planes: the main plane
// is the crtc itself, plus one overlay.
func legacyOutput() Output {
	return Output{
		CrtcID:      40,
		ConnectorID: 50,
		CrtcActive:  true,
		Planes: []PlaneCaps{
			{Main: true, ObjectType: drm.ObjectCRTC, ObjectID: 40},
			{ObjectType: drm.ObjectPlane, ObjectID: 31},
		},
	}
}

func planeProperties(base uint32) drm.Properties {
	properties := drm.Properties{}
	for i, name := range atomicPlaneProperties {
		properties[name] = drm.Property{ID: base + uint32(i)}
	}
	properties["rotation"] = drm.Property{ID: base + 50}
	return properties
}

// atomicOutput is a fully discovered atomic display with a primary and
// an overlay plane.
func atomicOutput() Output {
	return Output{
		CrtcID:      40,
		ConnectorID: 50,
		CrtcActive:  true,
		Planes: []PlaneCaps{
			{Main: true, ObjectType: drm.ObjectPlane, ObjectID: 30, Properties: planeProperties(100)},
			{ObjectType: drm.ObjectPlane, ObjectID: 31, Properties: planeProperties(200)},
		},
		CrtcProperties:      drm.Properties{"ACTIVE": {ID: 300}, "MODE_ID": {ID: 301}},
		ConnectorProperties: drm.Properties{"CRTC_ID": {ID: 400}},
		ModeBlobID:          77,
	}
}

func testOptions() *option.Set {
	options := option.NewSet(nil, nil)
	options.Register(option.PlaneAlloc, 1, false)
	options.Register(option.Nuclear, 1, true)
	return options
}

type handlerFixture struct {
	handler *Handler
	device  *fakeDevice
	display *fakeDisplay
	clock   *clock.FakeClock
	options *option.Set
}

func newFixture(t *testing.T, output Output, caps drm.Capabilities) *handlerFixture {
	t.Helper()
	fixture := &handlerFixture{
		device:  &fakeDevice{caps: caps},
		display: &fakeDisplay{output: output, width: 1920, height: 1080},
		clock:   clock.Fake(time.Unix(1_700_000_000, 0)),
		options: testOptions(),
	}
	fixture.handler = New(Config{
		Display: fixture.display,
		Device:  fixture.device,
		Options: fixture.options,
		Clock:   fixture.clock,
		Strict:  true,
	})
	return fixture
}

// complete delivers the completion event for the outstanding commit.
func (f *handlerFixture) complete(t *testing.T) {
	t.Helper()
	status := f.handler.Status()
	if status.Pending == nil {
		t.Fatal("no outstanding commit to complete")
	}
	f.handler.PageFlipEvent(status.Sequence)
}

// registerUpTo allocates timeline points until index n exists.
func (f *handlerFixture) registerUpTo(n uint32) {
	for f.handler.Timeline().Future() < n {
		f.handler.RegisterNextFutureFrame()
	}
}

func screenLayer(framebufferID uint32) frame.Layer {
	buffer := frame.Buffer{FramebufferID: framebufferID, Width: 1920, Height: 1080, Format: drm.FormatXRGB8888}
	return frame.FullScreen(buffer, 1920, 1080)
}

func realFrame(index uint32) *frame.Frame {
	return frame.New(frame.NewID(index, time.Time{}), []frame.Layer{screenLayer(1000 + index)}, frame.Config{}, nil)
}

func syntheticFrame(index uint32) *frame.Frame {
	return frame.New(frame.SyntheticID(index, time.Time{}), []frame.Layer{screenLayer(2000 + index)}, frame.Config{}, nil)
}
