// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the flip
// machinery.
//
// Page-flip completion is bounded by two timeouts: the flip timeout
// checked by ReadyForFlip and the sync timeout that bounds a blocking
// wait for a completion event. Both are measured against a Clock so
// that tests can drive them deterministically.
//
// In production, Real() delegates to the time package. In tests,
// Fake() returns a clock that only moves when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go handler.Sync()          // blocks on c.After(syncTimeout)
//	c.WaitForTimers(1)         // wait until the wait is registered
//	c.Advance(syncTimeout)     // fire it
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing the clock.
package clock
