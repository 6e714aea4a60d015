// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"fmt"
	"log/slog"
	"sync"
)

// SyncObject is a kernel-side timeline that mirrors the in-process
// counters and mints native fence descriptors.
type SyncObject interface {
	// CreateFence returns a new sync file descriptor that signals when
	// the object's counter reaches point. The caller owns the
	// descriptor.
	CreateFence(name string, point uint32) (int, error)

	// Increment moves the object's counter forward by delta.
	Increment(delta uint32) error

	// CloseFence closes a descriptor returned by CreateFence. It must
	// work after Close, since fences outlive their timeline.
	CloseFence(fd int) error

	Close() error
}

// Opener creates the SyncObject for a named timeline.
type Opener func(name string) (SyncObject, error)

// Options configures a Timeline.
type Options struct {
	// Open creates the kernel sync object. Nil means fence-less.
	Open Opener

	// Strict turns contract violations into panics.
	Strict bool

	Logger *slog.Logger
}

// Timeline is a monotonic release counter. It is safe for concurrent
// use.
type Timeline struct {
	name   string
	strict bool
	logger *slog.Logger

	mu      sync.Mutex
	current uint32
	future  uint32

	// advanced is closed and replaced every time current moves, waking
	// all fence waiters.
	advanced chan struct{}

	syncObject SyncObject
}

// Ahead reports whether a is strictly ahead of b in serial number
// order.
func Ahead(a, b uint32) bool {
	return int32(a-b) > 0
}

// New creates a timeline named after its display. A failure to create
// the kernel sync object is logged and the timeline runs fence-less.
func New(name string, options Options) *Timeline {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeline := &Timeline{
		name:     name,
		strict:   options.Strict,
		logger:   logger.With("timeline", name),
		advanced: make(chan struct{}),
	}
	if options.Open != nil {
		syncObject, err := options.Open(name)
		if err != nil {
			timeline.logger.Error("creating sync timeline failed, running without native fences",
				"error", err)
		} else {
			timeline.syncObject = syncObject
		}
	}
	return timeline
}

// Name returns the timeline name.
func (t *Timeline) Name() string { return t.name }

// HasSyncObject reports whether fences carry native descriptors.
func (t *Timeline) HasSyncObject() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.syncObject != nil
}

// CreateFence allocates the next future point and returns a fence for
// it along with its index. Used for new frame content.
func (t *Timeline) CreateFence() (Fence, uint32) {
	t.mu.Lock()
	t.future++
	point := t.future
	syncObject := t.syncObject
	t.mu.Unlock()
	return t.fence(syncObject, point), point
}

// RepeatFence returns a fence for the current future point without
// allocating a new one. Used when a frame is presented again
// unchanged, so both presentations share a release point.
func (t *Timeline) RepeatFence() (Fence, uint32) {
	t.mu.Lock()
	point := t.future
	syncObject := t.syncObject
	t.mu.Unlock()
	return t.fence(syncObject, point), point
}

func (t *Timeline) fence(syncObject SyncObject, point uint32) Fence {
	fence := Fence{timeline: t, point: point, fd: -1}
	if syncObject == nil {
		return fence
	}
	fd, err := syncObject.CreateFence(fmt.Sprintf("%s-%d", t.name, point), point)
	if err != nil {
		t.logger.Warn("creating native fence failed", "point", point, "error", err)
		return fence
	}
	fence.fd = fd
	fence.owner = syncObject
	return fence
}

// AdvanceTo moves the current point to n. Requests that would move it
// backwards violate the timeline contract.
func (t *Timeline) AdvanceTo(n uint32) {
	t.mu.Lock()
	if Ahead(t.current, n) {
		current := t.current
		t.mu.Unlock()
		t.violation("timeline advance would regress", "current", current, "target", n)
		return
	}
	if n == t.current {
		t.mu.Unlock()
		return
	}
	delta := n - t.current
	t.current = n
	if Ahead(n, t.future) {
		t.future = n
	}
	close(t.advanced)
	t.advanced = make(chan struct{})
	syncObject := t.syncObject
	t.mu.Unlock()

	if syncObject != nil {
		if err := syncObject.Increment(delta); err != nil {
			t.logger.Error("incrementing sync timeline failed", "delta", delta, "error", err)
		}
	}
}

// Advance moves the current point forward by delta.
func (t *Timeline) Advance(delta uint32) {
	t.mu.Lock()
	target := t.current + delta
	t.mu.Unlock()
	t.AdvanceTo(target)
}

// Current returns the last released point.
func (t *Timeline) Current() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Future returns the last allocated point.
func (t *Timeline) Future() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.future
}

// String formats the timeline as "current/future".
func (t *Timeline) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("%d/%d", t.current, t.future)
}

// Close releases the kernel sync object. Outstanding native fences
// are signalled by the kernel when their timeline goes away.
func (t *Timeline) Close() error {
	t.mu.Lock()
	syncObject := t.syncObject
	t.syncObject = nil
	t.mu.Unlock()
	if syncObject == nil {
		return nil
	}
	return syncObject.Close()
}

func (t *Timeline) violation(message string, args ...any) {
	if t.strict {
		panic(fmt.Sprintf("timeline %s: %s %v", t.name, message, args))
	}
	t.logger.Error(message, args...)
}
