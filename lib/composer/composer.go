// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package composer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/hwcomposer/lib/clock"
	"github.com/bureau-foundation/hwcomposer/lib/display"
	"github.com/bureau-foundation/hwcomposer/lib/drm"
	"github.com/bureau-foundation/hwcomposer/lib/flipevent"
	"github.com/bureau-foundation/hwcomposer/lib/frame"
	"github.com/bureau-foundation/hwcomposer/lib/option"
	"github.com/bureau-foundation/hwcomposer/lib/pageflip"
	"github.com/bureau-foundation/hwcomposer/lib/timeline"
)

// ErrNoOutputs is returned by New when the device has no connected
// output with a usable mode.
var ErrNoOutputs = errors.New("composer: no connected outputs")

// Card is everything the composer needs from the display device.
// *drm.Device implements it.
type Card interface {
	pageflip.Device
	display.Resources
	flipevent.Source
	Discover() (*drm.Topology, error)
}

// Config configures a Composer.
type Config struct {
	Card    Card
	Options *option.Set

	// Registry is closed after the displays, flushing persisted
	// options. May be nil.
	Registry io.Closer

	OpenTimeline timeline.Opener

	Clock  clock.Clock
	Logger *slog.Logger

	FlipTimeout time.Duration
	SyncTimeout time.Duration
	Strict      bool
	QueueDepth  int
}

// Composer owns the displays of one device.
type Composer struct {
	resources display.Resources
	clock     clock.Clock
	logger    *slog.Logger
	thread    *flipevent.Thread
	displays  []*display.Display
	registry  io.Closer

	closeOnce sync.Once
	closeErr  error
}

// New discovers the card's outputs and creates a display for each. The
// displays are indexed in discovery order.
func New(config Config) (*Composer, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	topology, err := config.Card.Discover()
	if err != nil {
		return nil, fmt.Errorf("discovering outputs: %w", err)
	}
	if len(topology.Outputs) == 0 {
		return nil, ErrNoOutputs
	}

	c := &Composer{
		resources: config.Card,
		clock:     config.Clock,
		logger:    logger,
		thread:    flipevent.New(config.Card, logger),
		registry:  config.Registry,
	}
	for index, output := range topology.Outputs {
		d := display.New(display.Config{
			Index:        uint32(index),
			Output:       output,
			Device:       config.Card,
			Resources:    config.Card,
			Options:      config.Options,
			OpenTimeline: config.OpenTimeline,
			Clock:        config.Clock,
			Logger:       logger,
			FlipTimeout:  config.FlipTimeout,
			SyncTimeout:  config.SyncTimeout,
			Strict:       config.Strict,
			QueueDepth:   config.QueueDepth,
		})
		c.displays = append(c.displays, d)
		logger.Info("display created",
			"display", index,
			"connector", output.Connector.ID,
			"crtc", output.Crtc.ID,
			"mode", output.Mode,
			"planes", len(output.Planes),
		)
	}
	return c, nil
}

// Displays returns the composer's displays.
func (c *Composer) Displays() []*display.Display {
	return c.displays
}

// Run starts every display and presents frames until ctx is cancelled
// or the event thread fails. It closes the composer before returning
// and must be called at most once.
func (c *Composer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, d := range c.displays {
		d.Start()
		c.thread.Register(d.Index(), d.Handler())
	}

	var wg sync.WaitGroup
	var threadErr error
	wg.Go(func() {
		if err := c.thread.Run(ctx); err != nil {
			threadErr = err
			cancel()
		}
	})
	for _, d := range c.displays {
		wg.Go(func() {
			if err := d.Run(ctx); err != nil {
				c.logger.Error("display loop failed", "display", d.Index(), "error", err)
			}
		})
	}

	for _, d := range c.displays {
		if err := c.presentBlank(ctx, d); err != nil {
			c.logger.Warn("initial blank frame not presented", "display", d.Index(), "error", err)
		}
	}

	<-ctx.Done()
	wg.Wait()

	return errors.Join(threadErr, c.Close())
}

// presentBlank shows a black frame so the display scans out known
// content before the first producer frame arrives.
func (c *Composer) presentBlank(ctx context.Context, d *display.Display) error {
	width, height := d.AppliedSize()
	layer, err := d.BlankingLayer(width, height)
	if err != nil {
		return err
	}
	id := frame.SyntheticID(d.Handler().Timeline().Future(), c.clock.Now())
	return d.Present(ctx, frame.New(id, []frame.Layer{layer}, frame.Config{}, nil))
}

// Close uninitialises and closes every display, then the registry.
// Run calls it on return; calling it again returns the same result.
func (c *Composer) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		for _, d := range c.displays {
			c.thread.Unregister(d.Index())
			if err := d.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing display %d: %w", d.Index(), err))
			}
		}
		if c.registry != nil {
			if err := c.registry.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing registry: %w", err))
			}
		}
		c.closeErr = errors.Join(errs...)
		c.logger.Info("composer closed", "displays", len(c.displays))
	})
	return c.closeErr
}
