// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/hwcomposer/lib/testutil"
)

// fakeSyncObject records the kernel-side calls a timeline makes.
type fakeSyncObject struct {
	mu        sync.Mutex
	counter   uint32
	fences    []uint32
	nextFD    int
	open      map[int]bool
	closed    bool
	createErr error
}

func (f *fakeSyncObject) CreateFence(name string, point uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return -1, f.createErr
	}
	f.fences = append(f.fences, point)
	f.nextFD++
	if f.open == nil {
		f.open = make(map[int]bool)
	}
	f.open[100+f.nextFD] = true
	return 100 + f.nextFD, nil
}

func (f *fakeSyncObject) CloseFence(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open[fd] {
		return errors.New("bad file descriptor")
	}
	delete(f.open, fd)
	return nil
}

func (f *fakeSyncObject) Increment(delta uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter += delta
	return nil
}

func (f *fakeSyncObject) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestCreateFenceAllocatesNextPoint(t *testing.T) {
	timeline := New("HWC.DRM0", Options{})

	for want := uint32(1); want <= 3; want++ {
		fence, index := timeline.CreateFence()
		if index != want {
			t.Fatalf("CreateFence index = %d, want %d", index, want)
		}
		if fence.Point() != want {
			t.Errorf("fence point = %d, want %d", fence.Point(), want)
		}
		if fence.FD() != -1 {
			t.Errorf("fence-less timeline returned fd %d", fence.FD())
		}
	}
	if got := timeline.Future(); got != 3 {
		t.Errorf("Future = %d, want 3", got)
	}
	if got := timeline.Current(); got != 0 {
		t.Errorf("Current = %d, want 0", got)
	}
}

func TestRepeatFenceSharesFuturePoint(t *testing.T) {
	timeline := New("HWC.DRM0", Options{})
	_, created := timeline.CreateFence()

	first, firstIndex := timeline.RepeatFence()
	second, secondIndex := timeline.RepeatFence()

	if firstIndex != created || secondIndex != created {
		t.Fatalf("repeat indices = %d, %d; want both %d", firstIndex, secondIndex, created)
	}
	if timeline.Future() != created {
		t.Errorf("Future = %d after repeats, want %d", timeline.Future(), created)
	}

	timeline.AdvanceTo(created)
	if !first.Signaled() || !second.Signaled() {
		t.Error("repeat fences did not signal on a single advance")
	}
}

func TestAdvanceToIsMonotonic(t *testing.T) {
	timeline := New("HWC.DRM0", Options{})
	for i := 0; i < 10; i++ {
		timeline.CreateFence()
	}

	timeline.AdvanceTo(6)
	timeline.AdvanceTo(4) // ignored, logged
	if got := timeline.Current(); got != 6 {
		t.Fatalf("Current = %d after regression attempt, want 6", got)
	}

	timeline.Advance(2)
	if got := timeline.Current(); got != 8 {
		t.Fatalf("Current = %d after Advance(2), want 8", got)
	}
}

func TestAdvanceToRegressionPanicsWhenStrict(t *testing.T) {
	timeline := New("HWC.DRM0", Options{Strict: true})
	timeline.AdvanceTo(5)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on regression in strict mode")
		}
	}()
	timeline.AdvanceTo(3)
}

func TestAdvanceBeyondFutureRaisesFuture(t *testing.T) {
	timeline := New("HWC.DRM0", Options{})
	timeline.CreateFence()
	timeline.AdvanceTo(4)
	if timeline.Future() != 4 {
		t.Fatalf("Future = %d, want 4 (future must never trail current)", timeline.Future())
	}
	if _, index := timeline.CreateFence(); index != 5 {
		t.Errorf("next fence index = %d, want 5", index)
	}
}

func TestAdvanceAcrossWrap(t *testing.T) {
	timeline := New("HWC.DRM0", Options{})
	timeline.AdvanceTo(math.MaxUint32 - 1)
	timeline.AdvanceTo(1) // wraps forward by three
	if got := timeline.Current(); got != 1 {
		t.Fatalf("Current = %d, want 1 after wrap", got)
	}
	timeline.AdvanceTo(math.MaxUint32) // behind in serial order
	if got := timeline.Current(); got != 1 {
		t.Fatalf("Current = %d, want 1 (regression across wrap)", got)
	}
}

func TestAhead(t *testing.T) {
	tests := []struct {
		a, b uint32
		want bool
	}{
		{2, 1, true},
		{1, 2, false},
		{1, 1, false},
		{0, math.MaxUint32, true},
		{math.MaxUint32, 0, false},
	}
	for _, test := range tests {
		if got := Ahead(test.a, test.b); got != test.want {
			t.Errorf("Ahead(%d, %d) = %v, want %v", test.a, test.b, got, test.want)
		}
	}
}

func TestFenceWaitWakesOnAdvance(t *testing.T) {
	timeline := New("HWC.DRM0", Options{})
	fence, _ := timeline.CreateFence()
	timeline.CreateFence()

	done := make(chan error, 1)
	go func() { done <- fence.Wait(context.Background()) }()

	timeline.AdvanceTo(1)
	if err := testutil.RequireReceive(t, done, 5*time.Second, "fence wait"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestFenceWaitHonorsContext(t *testing.T) {
	timeline := New("HWC.DRM0", Options{})
	fence, _ := timeline.CreateFence()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := fence.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait = %v, want context.Canceled", err)
	}
}

func TestZeroFenceIsSignaled(t *testing.T) {
	var fence Fence
	if !fence.Signaled() {
		t.Error("zero fence should be signalled")
	}
	if fence.FD() != -1 {
		t.Errorf("zero fence fd = %d, want -1", fence.FD())
	}
	if err := fence.Wait(context.Background()); err != nil {
		t.Errorf("Wait on zero fence: %v", err)
	}
}

func TestSyncObjectMirrorsCounters(t *testing.T) {
	syncObject := &fakeSyncObject{}
	timeline := New("HWC.DRM1", Options{
		Open: func(name string) (SyncObject, error) { return syncObject, nil },
	})
	if !timeline.HasSyncObject() {
		t.Fatal("HasSyncObject = false")
	}

	fence, _ := timeline.CreateFence()
	if fence.FD() < 0 {
		t.Errorf("fence fd = %d, want a native descriptor", fence.FD())
	}
	timeline.CreateFence()
	timeline.AdvanceTo(1)
	timeline.AdvanceTo(2)

	if syncObject.counter != 2 {
		t.Errorf("sync object counter = %d, want 2", syncObject.counter)
	}
	if len(syncObject.fences) != 2 || syncObject.fences[0] != 1 || syncObject.fences[1] != 2 {
		t.Errorf("sync object fences = %v, want [1 2]", syncObject.fences)
	}

	if err := timeline.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !syncObject.closed {
		t.Error("sync object not closed")
	}

	// Fences outlive their timeline and close through its sync object.
	if err := fence.Close(); err != nil {
		t.Errorf("fence Close after timeline Close: %v", err)
	}
	if len(syncObject.open) != 1 {
		t.Errorf("%d native fences open, want 1", len(syncObject.open))
	}
}

func TestFenceCloseWithoutDescriptor(t *testing.T) {
	var zero Fence
	if err := zero.Close(); err != nil {
		t.Errorf("zero fence Close: %v", err)
	}

	syncObject := &fakeSyncObject{createErr: errors.New("EMFILE")}
	timeline := New("HWC.DRM4", Options{
		Open: func(name string) (SyncObject, error) { return syncObject, nil },
	})
	fence, _ := timeline.CreateFence()
	if err := fence.Close(); err != nil {
		t.Errorf("Close of a fence without descriptor: %v", err)
	}
}

func TestOpenFailureDegradesToFenceless(t *testing.T) {
	timeline := New("HWC.DRM2", Options{
		Open: func(name string) (SyncObject, error) { return nil, errors.New("no sw_sync") },
	})
	if timeline.HasSyncObject() {
		t.Fatal("HasSyncObject = true after open failure")
	}
	fence, index := timeline.CreateFence()
	if index != 1 || fence.FD() != -1 {
		t.Errorf("CreateFence = (fd %d, %d), want (fd -1, 1)", fence.FD(), index)
	}
	timeline.AdvanceTo(1)
	if !fence.Signaled() {
		t.Error("fence-less fence did not signal")
	}
}

func TestNativeFenceFailureKeepsInProcessFence(t *testing.T) {
	syncObject := &fakeSyncObject{createErr: errors.New("EMFILE")}
	timeline := New("HWC.DRM3", Options{
		Open: func(name string) (SyncObject, error) { return syncObject, nil },
	})
	fence, index := timeline.CreateFence()
	if fence.FD() != -1 || index != 1 {
		t.Fatalf("CreateFence = (fd %d, %d), want (fd -1, 1)", fence.FD(), index)
	}
}
