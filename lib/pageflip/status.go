// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pageflip

import (
	"fmt"
	"strings"
	"time"

	"github.com/bureau-foundation/hwcomposer/lib/frame"
)

// Status is a point-in-time snapshot of a handler.
type Status struct {
	Display     uint32
	Initialized bool
	Strategy    Kind

	// Released and Future are the timeline's current and future
	// points.
	Released uint32
	Future   uint32

	Current *frame.ID
	Pending *frame.ID

	// Sequence is the number of the most recently issued commit.
	Sequence uint32
	LastFlip time.Time
}

// Status returns a snapshot of the handler.
func (h *Handler) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	status := Status{
		Display:     h.display.Index(),
		Initialized: h.initialized,
		Released:    h.timeline.Current(),
		Future:      h.timeline.Future(),
		Sequence:    h.sequence,
		LastFlip:    h.lastFlip,
	}
	if h.strategy != nil {
		status.Strategy = h.strategy.Kind()
	}
	if h.current != nil {
		id := h.current.ID()
		status.Current = &id
	}
	if h.pending != nil {
		id := h.pending.ID()
		status.Pending = &id
	}
	return status
}

func (s Status) String() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "display %d", s.Display)
	if !s.Initialized {
		builder.WriteString(" uninitialised")
	} else {
		fmt.Fprintf(&builder, " %s", s.Strategy)
	}
	fmt.Fprintf(&builder, " timeline %d/%d", s.Released, s.Future)
	if s.Current != nil {
		fmt.Fprintf(&builder, " current %s", s.Current)
	}
	if s.Pending != nil {
		fmt.Fprintf(&builder, " pending %s (seq %d)", s.Pending, s.Sequence)
	}
	return builder.String()
}
