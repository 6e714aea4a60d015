// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package flipevent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/hwcomposer/lib/drm"
)

// ErrRunning is returned by Run when the thread is already running.
var ErrRunning = errors.New("flipevent: thread already running")

// EncodeToken packs a display index and flip sequence into a commit
// token.
func EncodeToken(display, sequence uint32) uint64 {
	return uint64(display)<<32 | uint64(sequence)
}

// DecodeToken is the inverse of EncodeToken.
func DecodeToken(token uint64) (display, sequence uint32) {
	return uint32(token >> 32), uint32(token)
}

// Source delivers decoded device events.
type Source interface {
	// ReadEvents blocks until events arrive. It returns
	// drm.ErrInterrupted after Interrupt and drm.ErrClosed once the
	// device is gone.
	ReadEvents() ([]drm.Event, error)

	// Interrupt wakes a blocked ReadEvents.
	Interrupt() error
}

// Target receives completion events for one display.
type Target interface {
	PageFlipEvent(sequence uint32)
}

// Thread dispatches completion events.
type Thread struct {
	source Source
	logger *slog.Logger

	mu      sync.Mutex
	targets map[uint32]Target
	running bool
}

// New creates a thread reading from source.
func New(source Source, logger *slog.Logger) *Thread {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Thread{
		source:  source,
		logger:  logger,
		targets: make(map[uint32]Target),
	}
}

// Register routes events for display to target, replacing any previous
// registration.
func (t *Thread) Register(display uint32, target Target) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targets[display] = target
}

// Unregister stops routing events for display. Events that arrive
// afterwards are logged and dropped.
func (t *Thread) Unregister(display uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.targets, display)
}

func (t *Thread) target(display uint32) Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.targets[display]
}

// Run reads and dispatches events until ctx is cancelled or the source
// closes. Cancellation interrupts a blocked read. Run returns nil on
// cancellation or source close, and the read error otherwise.
func (t *Thread) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return ErrRunning
	}
	t.running = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() {
		if err := t.source.Interrupt(); err != nil {
			t.logger.Error("interrupting event source failed", "error", err)
		}
	})
	defer stop()

	t.logger.Info("flip event thread started")
	defer t.logger.Info("flip event thread stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		events, err := t.source.ReadEvents()
		if err != nil {
			switch {
			case errors.Is(err, drm.ErrInterrupted):
				continue
			case errors.Is(err, drm.ErrClosed):
				return nil
			case ctx.Err() != nil:
				return nil
			default:
				return fmt.Errorf("reading flip events: %w", err)
			}
		}
		for _, event := range events {
			t.dispatch(event)
		}
	}
}

func (t *Thread) dispatch(event drm.Event) {
	if event.Type != drm.EventFlipComplete {
		t.logger.Debug("ignoring non-flip event", "type", event.Type, "crtc", event.CrtcID)
		return
	}
	display, sequence := DecodeToken(event.UserData)
	target := t.target(display)
	if target == nil {
		t.logger.Warn("flip event for unknown display",
			"display", display,
			"sequence", sequence,
			"crtc", event.CrtcID,
		)
		return
	}
	t.logger.Debug("flip complete",
		"display", display,
		"sequence", sequence,
		"vblank", event.Sequence,
		"timestamp", event.Timestamp,
	)
	target.PageFlipEvent(sequence)
}
