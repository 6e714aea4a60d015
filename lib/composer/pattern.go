// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package composer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/hwcomposer/lib/clock"
	"github.com/bureau-foundation/hwcomposer/lib/display"
	"github.com/bureau-foundation/hwcomposer/lib/drm"
	"github.com/bureau-foundation/hwcomposer/lib/frame"
	"github.com/bureau-foundation/hwcomposer/lib/timeline"
)

// patternBuffers is the number of buffers each display cycles through:
// one on screen, one pending, one being drawn.
const patternBuffers = 3

// patternColours are XRGB8888 colours shown in turn.
var patternColours = []uint32{
	0x00c0392b, 0x00d35400, 0x00f1c40f, 0x0027ae60, 0x002980b9, 0x008e44ad,
}

// Pattern is a set of test pattern producers, one per display.
type Pattern struct {
	resources display.Resources
	clock     clock.Clock
	logger    *slog.Logger
	wg        sync.WaitGroup

	mu      sync.Mutex
	buffers []*drm.DumbBuffer
}

// patternSlot is one buffer of a producer's ring and the release
// fence of the frame that last showed it.
type patternSlot struct {
	buffer *drm.DumbBuffer
	fence  timeline.Fence
	held   bool
}

// StartPattern runs a pattern producer on every display until ctx ends
// or the display closes. Call [Pattern.Wait] after Run returns.
func (c *Composer) StartPattern(ctx context.Context) *Pattern {
	p := &Pattern{resources: c.resources, clock: c.clock, logger: c.logger}
	for _, d := range c.displays {
		p.wg.Go(func() {
			logger := c.logger.With("display", d.Index(), "producer", "pattern")
			if err := p.run(ctx, d, logger); err != nil {
				logger.Error("pattern producer stopped", "error", err)
			}
		})
	}
	return p
}

// Wait returns once every producer has stopped, then frees their
// buffers. The displays must be closed so none is still scanned out.
func (p *Pattern) Wait() {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, buffer := range p.buffers {
		if err := p.resources.DestroyDumbBuffer(buffer); err != nil {
			p.logger.Warn("destroying pattern buffer failed", "fb", buffer.FramebufferID, "error", err)
		}
	}
	p.buffers = nil
}

func (p *Pattern) allocate(width, height uint32) (*drm.DumbBuffer, error) {
	buffer, err := p.resources.CreateDumbBuffer(width, height)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.buffers = append(p.buffers, buffer)
	p.mu.Unlock()
	return buffer, nil
}

// run draws into a ring of dumb buffers. A buffer is redrawn only after
// the display releases the frame that showed it and its release fence
// signals.
func (p *Pattern) run(ctx context.Context, d *display.Display, logger *slog.Logger) error {
	width, height := d.AppliedSize()
	slots := make([]*patternSlot, 0, patternBuffers)
	free := make(chan *patternSlot, patternBuffers)
	for range patternBuffers {
		buffer, err := p.allocate(width, height)
		if err != nil {
			return err
		}
		slot := &patternSlot{buffer: buffer}
		slots = append(slots, slot)
		free <- slot
	}
	defer func() {
		for _, slot := range slots {
			slot.closeFence(logger)
		}
	}()
	logger.Info("pattern producer started", "width", width, "height", height)

	for step := 0; ; step++ {
		var slot *patternSlot
		select {
		case <-ctx.Done():
			return nil
		case slot = <-free:
		}
		if slot.held {
			if err := slot.fence.Wait(ctx); err != nil {
				return nil
			}
			slot.closeFence(logger)
		}
		slot.buffer.Fill(patternColours[step%len(patternColours)])

		fence, index := d.NextFence()
		slot.fence, slot.held = fence, true
		layer := frame.FullScreen(frame.Buffer{
			FramebufferID: slot.buffer.FramebufferID,
			Width:         slot.buffer.Width,
			Height:        slot.buffer.Height,
			Format:        drm.FormatXRGB8888,
		}, width, height)
		f := frame.New(frame.NewID(index, p.clock.Now()), []frame.Layer{layer}, frame.Config{},
			func(*frame.Frame) { free <- slot })

		err := d.Present(ctx, f)
		switch {
		case err == nil:
		case errors.Is(err, display.ErrClosed), errors.Is(err, context.Canceled):
			return nil
		default:
			return err
		}
	}
}

// closeFence closes the slot's native fence descriptor. Only the
// producer goroutine touches the fence.
func (s *patternSlot) closeFence(logger *slog.Logger) {
	if !s.held {
		return
	}
	if err := s.fence.Close(); err != nil {
		logger.Warn("closing release fence failed", "point", s.fence.Point(), "error", err)
	}
	s.fence, s.held = timeline.Fence{}, false
}
