// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"fmt"
	"log/slog"
	"time"
)

// ID identifies a frame on its display's timeline.
//
// Real frames carry the index of the fence handed to their producer and
// Valid=true. Frames the composer inserts on its own (blanking,
// mode-change fillers) are synthetic: Valid=false, and their index must
// not advance the release counter a second time.
type ID struct {
	TimelineIndex uint32
	Valid         bool

	// ReceivedAt is when the composer first received the frame's
	// content. Used to report presentation latency.
	ReceivedAt time.Time
}

// NewID returns a valid ID for a real frame.
func NewID(timelineIndex uint32, receivedAt time.Time) ID {
	return ID{TimelineIndex: timelineIndex, Valid: true, ReceivedAt: receivedAt}
}

// SyntheticID returns an ID for a composer-inserted frame.
func SyntheticID(timelineIndex uint32, receivedAt time.Time) ID {
	return ID{TimelineIndex: timelineIndex, ReceivedAt: receivedAt}
}

func (id ID) String() string {
	if !id.Valid {
		return fmt.Sprintf("#%d(synthetic)", id.TimelineIndex)
	}
	return fmt.Sprintf("#%d", id.TimelineIndex)
}

// LogValue renders the ID as a slog group.
func (id ID) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("index", uint64(id.TimelineIndex)),
		slog.Bool("valid", id.Valid),
	)
}
