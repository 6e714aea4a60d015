// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package timeline implements the per-display release timeline.
//
// A Timeline is a pair of monotonic uint32 counters. The future point
// is the last index handed to a producer; the current point is the
// last index the display has released. Producers receive a Fence for
// every frame they submit and may reuse that frame's buffers once the
// fence signals, which happens when the current point reaches the
// fence's index.
//
// Counters wrap. All ordering comparisons use serial arithmetic (see
// [Ahead]), so a timeline keeps working across the 2^32 boundary as
// long as the distance between current and future stays below 2^31.
//
// # Kernel sync objects
//
// When an [Opener] is supplied, the timeline is backed by a kernel sync
// object (the Linux sw_sync driver via [OpenSWSync]) and every Fence
// carries a native sync file descriptor that can be handed to other
// processes. If the sync object cannot be created the timeline degrades
// to fence-less operation: in-process waits still work, Fence.FD
// returns -1, and composition continues.
//
// # Contract violations
//
// Moving the current point backwards is a programming error. With
// Options.Strict set the timeline panics; otherwise the request is
// logged and ignored.
package timeline
