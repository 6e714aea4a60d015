// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drm

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Kernel event types.
const (
	EventVBlank       = 0x01
	EventFlipComplete = 0x02
	EventCrtcSequence = 0x03
)

// eventHeaderSize is sizeof(struct drm_event).
const eventHeaderSize = 8

// vblankEventSize is sizeof(struct drm_event_vblank).
const vblankEventSize = 32

// Event is one decoded completion event.
type Event struct {
	Type uint32

	// UserData is the token supplied with the commit.
	UserData uint64

	// Timestamp is the vblank time on CLOCK_MONOTONIC.
	Timestamp time.Duration

	Sequence uint32
	CrtcID   uint32
}

// DecodeEvents decodes the events in one read from the device. Event
// types other than vblank and flip-complete are skipped.
func DecodeEvents(data []byte) ([]Event, error) {
	var events []Event
	for len(data) > 0 {
		if len(data) < eventHeaderSize {
			return events, fmt.Errorf("truncated event header: %d bytes", len(data))
		}
		eventType := binary.NativeEndian.Uint32(data[0:4])
		length := binary.NativeEndian.Uint32(data[4:8])
		if length < eventHeaderSize || int(length) > len(data) {
			return events, fmt.Errorf("event type %d has bad length %d (%d bytes left)", eventType, length, len(data))
		}

		switch eventType {
		case EventVBlank, EventFlipComplete:
			if length < vblankEventSize {
				return events, fmt.Errorf("vblank event too short: %d bytes", length)
			}
			seconds := binary.NativeEndian.Uint32(data[16:20])
			microseconds := binary.NativeEndian.Uint32(data[20:24])
			events = append(events, Event{
				Type:      eventType,
				UserData:  binary.NativeEndian.Uint64(data[8:16]),
				Timestamp: time.Duration(seconds)*time.Second + time.Duration(microseconds)*time.Microsecond,
				Sequence:  binary.NativeEndian.Uint32(data[24:28]),
				CrtcID:    binary.NativeEndian.Uint32(data[28:32]),
			})
		}
		data = data[length:]
	}
	return events, nil
}
