// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pageflip serialises frame commits to one display and turns
// their asynchronous completion into timeline releases.
//
// A [Handler] owns one display's flip state. At most one commit is
// outstanding at a time: [Handler.Flip] first waits (bounded by the
// sync timeout) for the previous commit's completion event, then hands
// the frame to the bound [Strategy]. Completion arrives on the event
// goroutine through [Handler.PageFlipEvent], or is forced when the
// event is overdue. On completion the previously displayed frame goes
// back to its producer and the display's timeline advances so that
// every fence for content no longer on screen signals.
//
// The release rule relies on one property of the timeline: the frame
// with index N is on screen once its commit completes, so everything up
// to N-1 is free. Synthetic frames (blanking fillers the composer
// inserts itself) carry no timeline slot of their own; completing one
// releases the real frame it replaced instead.
//
// Strategies are chosen once per [Handler.Init] by walking [Probes] in
// order: the atomic "nuclear" commit, the atomic full display-state
// commit, and the legacy per-plane path, which always qualifies.
package pageflip
