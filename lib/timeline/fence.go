// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import "context"

// Fence signals once its timeline's current point reaches the fence's
// point. The zero Fence is always signalled.
type Fence struct {
	timeline *Timeline
	point    uint32
	fd       int
	owner    SyncObject
}

// Point returns the timeline index the fence waits for.
func (f Fence) Point() uint32 { return f.point }

// FD returns the native sync file descriptor, or -1 for a fence-less
// timeline. The descriptor belongs to the fence holder; see Close.
func (f Fence) FD() int {
	if f.timeline == nil {
		return -1
	}
	return f.fd
}

// Signaled reports whether the fence has been reached.
func (f Fence) Signaled() bool {
	if f.timeline == nil {
		return true
	}
	f.timeline.mu.Lock()
	defer f.timeline.mu.Unlock()
	return !Ahead(f.point, f.timeline.current)
}

// Wait blocks until the fence signals or ctx ends.
func (f Fence) Wait(ctx context.Context) error {
	if f.timeline == nil {
		return nil
	}
	for {
		f.timeline.mu.Lock()
		if !Ahead(f.point, f.timeline.current) {
			f.timeline.mu.Unlock()
			return nil
		}
		advanced := f.timeline.advanced
		f.timeline.mu.Unlock()

		select {
		case <-advanced:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes the native descriptor, if any. Copies of a fence share
// the descriptor, so only one of them may be closed.
func (f Fence) Close() error {
	if f.owner == nil || f.fd < 0 {
		return nil
	}
	return f.owner.CloseFence(f.fd)
}
