// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/hwcomposer/lib/clock"
	"github.com/bureau-foundation/hwcomposer/lib/drm"
	"github.com/bureau-foundation/hwcomposer/lib/frame"
	"github.com/bureau-foundation/hwcomposer/lib/option"
	"github.com/bureau-foundation/hwcomposer/lib/pageflip"
	"github.com/bureau-foundation/hwcomposer/lib/timeline"
)

// ErrClosed is returned by Present after Close.
var ErrClosed = errors.New("display: closed")

// DefaultQueueDepth is the number of frames Present buffers ahead of
// the display.
const DefaultQueueDepth = 2

// Resources allocates the kernel objects a display owns. *drm.Device
// implements it.
type Resources interface {
	CreateDumbBuffer(width, height uint32) (*drm.DumbBuffer, error)
	DestroyDumbBuffer(buffer *drm.DumbBuffer) error
	CreateModeBlob(mode drm.ModeInfo) (uint32, error)
	DestroyPropertyBlob(blobID uint32) error
}

// Config configures a Display.
type Config struct {
	Index     uint32
	Output    drm.Output
	Device    pageflip.Device
	Resources Resources
	Options   *option.Set

	// OpenTimeline creates the kernel sync object backing the release
	// timeline. Nil runs fence-less.
	OpenTimeline timeline.Opener

	Clock  clock.Clock
	Logger *slog.Logger

	FlipTimeout time.Duration
	SyncTimeout time.Duration
	Strict      bool
	QueueDepth  int
}

type size struct {
	width, height uint32
}

// Display is one connected output.
type Display struct {
	index       uint32
	output      pageflip.Output
	mode        drm.ModeInfo
	resources   Resources
	clock       clock.Clock
	logger      *slog.Logger
	flipTimeout time.Duration
	handler     *pageflip.Handler

	queue chan *frame.Frame
	ready chan struct{}
	done  chan struct{}

	mu        sync.Mutex
	blanking  map[size]*drm.DumbBuffer
	held      []*frame.Frame
	closeOnce sync.Once
}

// New creates a display and its handler. The handler is not
// initialised until Start.
func New(config Config) *Display {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("display", config.Index)
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.FlipTimeout <= 0 {
		config.FlipTimeout = pageflip.DefaultFlipTimeout
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = DefaultQueueDepth
	}

	d := &Display{
		index:       config.Index,
		mode:        config.Output.Mode,
		resources:   config.Resources,
		clock:       config.Clock,
		logger:      logger,
		flipTimeout: config.FlipTimeout,
		queue:       make(chan *frame.Frame, config.QueueDepth),
		ready:       make(chan struct{}, 1),
		done:        make(chan struct{}),
		blanking:    make(map[size]*drm.DumbBuffer),
	}
	d.output = handlerOutput(config.Output)

	if config.Device.Capabilities().Atomic {
		blobID, err := config.Resources.CreateModeBlob(config.Output.Mode)
		if err != nil {
			logger.Warn("creating mode blob failed; full display state commits unavailable",
				"mode", config.Output.Mode, "error", err)
		} else {
			d.output.ModeBlobID = blobID
		}
	}

	name := fmt.Sprintf("HWC.DRM%d", config.Index)
	d.handler = pageflip.New(pageflip.Config{
		Display: d,
		Device:  config.Device,
		Options: config.Options,
		Timeline: timeline.New(name, timeline.Options{
			Open:   config.OpenTimeline,
			Strict: config.Strict,
			Logger: logger,
		}),
		Clock:       config.Clock,
		Logger:      config.Logger,
		FlipTimeout: config.FlipTimeout,
		SyncTimeout: config.SyncTimeout,
		Strict:      config.Strict,
	})
	return d
}

// handlerOutput describes output's plane slots. Without a primary
// plane object the crtc itself is the main plane.
func handlerOutput(output drm.Output) pageflip.Output {
	result := pageflip.Output{
		CrtcID:              output.Crtc.ID,
		ConnectorID:         output.Connector.ID,
		CrtcProperties:      output.Crtc.Properties,
		ConnectorProperties: output.Connector.Properties,
		Mode:                output.Mode,
		CrtcActive:          output.Crtc.ModeValid,
	}
	hasPrimary := len(output.Planes) > 0 && output.Planes[0].Type == drm.PlanePrimary
	if !hasPrimary {
		result.Planes = append(result.Planes, pageflip.PlaneCaps{
			Main:       true,
			ObjectType: drm.ObjectCRTC,
			ObjectID:   output.Crtc.ID,
			Properties: output.Crtc.Properties,
		})
	}
	for index, plane := range output.Planes {
		result.Planes = append(result.Planes, pageflip.PlaneCaps{
			Main:       hasPrimary && index == 0,
			ObjectType: drm.ObjectPlane,
			ObjectID:   plane.ID,
			Properties: plane.Properties,
		})
	}
	return result
}

// Index returns the display's index.
func (d *Display) Index() uint32 { return d.index }

// Output returns the plane layout the handler programs.
func (d *Display) Output() pageflip.Output { return d.output }

// Mode returns the mode the display scans out.
func (d *Display) Mode() drm.ModeInfo { return d.mode }

// AppliedSize returns the active mode's size.
func (d *Display) AppliedSize() (uint32, uint32) {
	return uint32(d.mode.HDisplay), uint32(d.mode.VDisplay)
}

// Handler returns the display's page-flip handler.
func (d *Display) Handler() *pageflip.Handler { return d.handler }

// Start initialises the handler.
func (d *Display) Start() {
	d.handler.Init()
}

// NextFence allocates the release fence for a new frame.
func (d *Display) NextFence() (timeline.Fence, uint32) {
	return d.handler.RegisterNextFutureFrame()
}

// RepeatFence returns a fence for a frame repeating the last content.
func (d *Display) RepeatFence() (timeline.Fence, uint32) {
	return d.handler.RegisterRepeatFutureFrame()
}

// BlankingLayer returns a black layer of the given size.
func (d *Display) BlankingLayer(width, height uint32) (frame.Layer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := size{width, height}
	buffer, ok := d.blanking[key]
	if !ok {
		var err error
		buffer, err = d.resources.CreateDumbBuffer(width, height)
		if err != nil {
			return frame.Layer{}, fmt.Errorf("allocating %dx%d blanking buffer: %w", width, height, err)
		}
		buffer.Fill(0)
		d.blanking[key] = buffer
		d.logger.Debug("allocated blanking buffer", "width", width, "height", height, "fb", buffer.FramebufferID)
	}
	layer := frame.FullScreen(frame.Buffer{
		FramebufferID: buffer.FramebufferID,
		Width:         buffer.Width,
		Height:        buffer.Height,
		Format:        drm.FormatXRGB8888,
	}, width, height)
	return layer, nil
}

// ReleaseFlippedFrame returns f to its producer.
func (d *Display) ReleaseFlippedFrame(f *frame.Frame) {
	if !f.Release() {
		d.logger.Warn("frame released twice", "frame", f.ID())
	}
}

// NotifyReady wakes Run after a completion.
func (d *Display) NotifyReady() {
	select {
	case d.ready <- struct{}{}:
	default:
	}
}

// Present queues f for display. It blocks while the queue is full.
func (d *Display) Present(ctx context.Context, f *frame.Frame) error {
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	select {
	case d.queue <- f:
		return nil
	case <-d.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run flips queued frames until ctx is cancelled or the display is
// closed.
func (d *Display) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.done:
			return nil
		case f := <-d.queue:
			if !d.waitReady(ctx) {
				// Close retires it along with the rest of the queue.
				d.hold(f)
				return nil
			}
			if !d.handler.Flip(f) {
				d.logger.Debug("frame not flipped", "frame", f.ID())
			}
		}
	}
}

// waitReady blocks until the handler can take another commit. It polls
// at the flip timeout so an overdue completion is forced.
func (d *Display) waitReady(ctx context.Context) bool {
	for !d.handler.ReadyForFlip() {
		select {
		case <-ctx.Done():
			return false
		case <-d.done:
			return false
		case <-d.ready:
		case <-d.clock.After(d.flipTimeout):
		}
	}
	return true
}

func (d *Display) hold(f *frame.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.held = append(d.held, f)
}

// retireQueued disposes of every frame that was never flipped. The
// handler must be uninitialised, so Flip retires rather than commits.
func (d *Display) retireQueued() {
	d.mu.Lock()
	held := d.held
	d.held = nil
	d.mu.Unlock()
	for _, f := range held {
		d.handler.Flip(f)
	}
	for {
		select {
		case f := <-d.queue:
			d.handler.Flip(f)
		default:
			return
		}
	}
}

// Close uninitialises the handler, retires every queued frame, and
// frees the display's kernel objects. Run must have returned.
func (d *Display) Close() error {
	var errs []error
	d.closeOnce.Do(func() {
		close(d.done)
		d.handler.Uninit()
		d.retireQueued()
		if err := d.handler.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing timeline: %w", err))
		}

		d.mu.Lock()
		for key, buffer := range d.blanking {
			if err := d.resources.DestroyDumbBuffer(buffer); err != nil {
				errs = append(errs, fmt.Errorf("destroying %dx%d blanking buffer: %w", key.width, key.height, err))
			}
			delete(d.blanking, key)
		}
		d.mu.Unlock()

		if d.output.ModeBlobID != 0 {
			if err := d.resources.DestroyPropertyBlob(d.output.ModeBlobID); err != nil {
				errs = append(errs, fmt.Errorf("destroying mode blob: %w", err))
			}
		}
		d.logger.Info("display closed")
	})
	return errors.Join(errs...)
}
