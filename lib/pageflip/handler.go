// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pageflip

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/hwcomposer/lib/clock"
	"github.com/bureau-foundation/hwcomposer/lib/flipevent"
	"github.com/bureau-foundation/hwcomposer/lib/frame"
	"github.com/bureau-foundation/hwcomposer/lib/option"
	"github.com/bureau-foundation/hwcomposer/lib/timeline"
)

// Default timeouts.
const (
	DefaultFlipTimeout = 100 * time.Millisecond
	DefaultSyncTimeout = 100 * time.Millisecond
)

// Config configures a Handler.
type Config struct {
	Display Display
	Device  Device
	Options *option.Set

	// Timeline is the display's release timeline. The handler takes
	// ownership and closes it in Close.
	Timeline *timeline.Timeline

	Clock  clock.Clock
	Logger *slog.Logger

	// FlipTimeout bounds how long ReadyForFlip tolerates an outstanding
	// commit before forcing its completion.
	FlipTimeout time.Duration

	// SyncTimeout bounds each wait for a completion event in Flip,
	// Sync and Uninit.
	SyncTimeout time.Duration

	// Strict turns contract violations into panics.
	Strict bool

	// Probes overrides the strategy preference order.
	Probes []Probe
}

// Handler serialises commits to one display. All methods are safe for
// concurrent use.
type Handler struct {
	display     Display
	device      Device
	options     *option.Set
	timeline    *timeline.Timeline
	clock       clock.Clock
	logger      *slog.Logger
	flipTimeout time.Duration
	syncTimeout time.Duration
	strict      bool
	probes      []Probe

	mu          sync.Mutex
	initialized bool
	strategy    Strategy
	mainPlane   int

	// current is the frame on screen; pending is the frame whose
	// commit is outstanding.
	current *frame.Frame
	pending *frame.Frame

	// sequence numbers commits; pendingSequence is the one an
	// incoming completion event must carry.
	sequence        uint32
	pendingSequence uint32
	lastFlip        time.Time

	// flipDone is closed when the pending commit completes.
	flipDone chan struct{}

	// deliveries are producer callbacks queued under the lock and run
	// after it is released, in order.
	deliveries []func()
	delivering bool
}

// New creates an uninitialised handler.
func New(config Config) *Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.FlipTimeout <= 0 {
		config.FlipTimeout = DefaultFlipTimeout
	}
	if config.SyncTimeout <= 0 {
		config.SyncTimeout = DefaultSyncTimeout
	}
	if config.Probes == nil {
		config.Probes = Probes
	}
	if config.Timeline == nil {
		config.Timeline = timeline.New(fmt.Sprintf("HWC.DRM%d", config.Display.Index()), timeline.Options{
			Strict: config.Strict,
			Logger: logger,
		})
	}
	return &Handler{
		display:     config.Display,
		device:      config.Device,
		options:     config.Options,
		timeline:    config.Timeline,
		clock:       config.Clock,
		logger:      logger.With("display", config.Display.Index()),
		flipTimeout: config.FlipTimeout,
		syncTimeout: config.SyncTimeout,
		strict:      config.Strict,
		probes:      config.Probes,
		mainPlane:   -1,
	}
}

// Timeline returns the display's release timeline.
func (h *Handler) Timeline() *timeline.Timeline { return h.timeline }

// Init binds a commit strategy. It is a no-op when already
// initialised.
func (h *Handler) Init() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initialized {
		return
	}

	output := h.display.Output()
	h.mainPlane = -1
	for index, plane := range output.Planes {
		if plane.Main {
			h.mainPlane = index
			break
		}
	}
	if h.mainPlane < 0 {
		h.logger.Warn("display has no main plane; blanking disabled")
	}

	target := Target{
		Device:  h.device,
		Output:  output,
		Options: h.options,
		Logger:  h.logger,
	}
	h.strategy = selectStrategy(h.probes, target)
	if h.strategy.Kind() == KindLegacy {
		// Legacy commits cannot program overlays atomically with the
		// main plane, so compose everything onto the main plane.
		if planeAlloc := h.options.Find(option.PlaneAlloc); planeAlloc != nil {
			planeAlloc.Set(0)
		}
	}
	h.initialized = true
	h.logger.Info("page flip handler initialised",
		"strategy", h.strategy.Kind(),
		"planes", len(output.Planes),
		"main_plane", h.mainPlane,
	)
}

// Uninit waits (bounded) for the outstanding commit and releases the
// strategy. The handler may be initialised again afterwards.
func (h *Handler) Uninit() {
	h.mu.Lock()
	if !h.initialized {
		h.mu.Unlock()
		return
	}
	h.syncLocked()
	if !h.initialized {
		// A concurrent Uninit finished while we waited.
		h.unlockAndDeliver()
		return
	}
	if h.pending != nil {
		h.violation("commit still outstanding after sync", "frame", h.pending.ID())
	}
	h.strategy.Close()
	h.strategy = nil
	h.initialized = false
	h.logger.Info("page flip handler uninitialised", "timeline", h.timeline)
	h.unlockAndDeliver()
}

// Close uninitialises the handler and closes its timeline.
func (h *Handler) Close() error {
	h.Uninit()
	return h.timeline.Close()
}

// RegisterNextFutureFrame allocates the release fence for the next new
// frame. It does not take the handler lock.
func (h *Handler) RegisterNextFutureFrame() (timeline.Fence, uint32) {
	fence, index := h.timeline.CreateFence()
	h.logger.Debug("registered next future frame", "index", index, "timeline", h.timeline)
	return fence, index
}

// RegisterRepeatFutureFrame returns a fence for the most recently
// allocated point, for a frame that repeats the previous content.
func (h *Handler) RegisterRepeatFutureFrame() (timeline.Fence, uint32) {
	fence, index := h.timeline.RepeatFence()
	h.logger.Debug("registered repeat future frame", "index", index, "timeline", h.timeline)
	return fence, index
}

// ReadyForFlip reports whether no commit is outstanding. An outstanding
// commit older than the flip timeout is force-completed first.
func (h *Handler) ReadyForFlip() bool {
	h.mu.Lock()
	if h.pending != nil {
		if elapsed := clock.Since(h.clock, h.lastFlip); elapsed > h.flipTimeout {
			h.logger.Error("flip completion overdue, forcing completion",
				"frame", h.pending.ID(),
				"elapsed", elapsed,
				"timeout", h.flipTimeout,
			)
			h.completeFlipLocked()
		}
	}
	ready := h.pending == nil
	h.unlockAndDeliver()
	return ready
}

// Flip commits f. It waits for the previous commit to complete first.
// It returns false when the commit could not be issued; the frame has
// then already been retired and returned to its producer.
func (h *Handler) Flip(f *frame.Frame) bool {
	h.mu.Lock()
	issued := false
	switch {
	case !h.initialized:
		h.logger.Debug("display unavailable, dropping frame", "frame", f.ID())
	default:
		mainBlanked, err := h.blankMainLocked(f)
		if err != nil {
			h.logger.Error("main plane disabled and cannot be blanked, dropping frame",
				"frame", f.ID(),
				"error", err,
			)
			break
		}
		h.syncLocked()
		issued = h.issueLocked(f, mainBlanked)
	}
	if !issued {
		h.retireLocked(f)
	}
	h.unlockAndDeliver()
	return issued
}

// issueLocked hands f to the strategy. The lock may have been released
// by a preceding sync, so state is re-checked.
func (h *Handler) issueLocked(f *frame.Frame, mainBlanked bool) bool {
	if !h.initialized || h.strategy == nil {
		h.logger.Debug("display uninitialised during sync, dropping frame", "frame", f.ID())
		return false
	}
	if h.pending != nil {
		h.violation("flip issued while a commit is outstanding",
			"frame", f.ID(), "pending", h.pending.ID())
		return false
	}
	if err := f.Validate(); err != nil {
		h.logger.Warn("refusing invalid frame", "error", err)
		return false
	}

	h.sequence++
	token := flipevent.EncodeToken(h.display.Index(), h.sequence)
	if err := h.strategy.Commit(f, mainBlanked, token); err != nil {
		h.logger.Warn("commit not issued",
			"frame", f.ID(),
			"strategy", h.strategy.Kind(),
			"error", err,
		)
		return false
	}

	h.lastFlip = h.clock.Now()
	h.pending = f
	h.pendingSequence = h.sequence
	h.flipDone = make(chan struct{})
	h.logger.Debug("commit issued", "frame", f.ID(), "sequence", h.sequence, "blanked", mainBlanked)
	return true
}

// blankMainLocked substitutes a blanking buffer for a disabled main
// layer. The substitution edits this frame only. An error means the
// main layer is disabled and no blanking buffer could stand in.
func (h *Handler) blankMainLocked(f *frame.Frame) (bool, error) {
	if h.mainPlane < 0 {
		return false, nil
	}
	main := f.Layer(h.mainPlane)
	if main == nil || main.Enabled() {
		return false, nil
	}

	width, height := h.display.AppliedSize()
	if scaling := f.Config().GlobalScaling; scaling.Enabled {
		width, height = scaling.SourceWidth, scaling.SourceHeight
	}
	blanking, err := h.display.BlankingLayer(width, height)
	if err != nil {
		return false, fmt.Errorf("blanking buffer %dx%d: %w", width, height, err)
	}
	main.Reset()
	main.Set(blanking)
	return true, nil
}

// PageFlipEvent completes the outstanding commit. It is called from the
// event goroutine with the sequence carried by the event's token.
func (h *Handler) PageFlipEvent(sequence uint32) {
	h.mu.Lock()
	switch {
	case !h.initialized:
		h.logger.Warn("flip event on uninitialised display", "sequence", sequence)
	case h.pending == nil:
		h.logger.Warn("flip event with no outstanding commit", "sequence", sequence)
	case sequence != h.pendingSequence:
		h.logger.Warn("stale flip event",
			"sequence", sequence,
			"outstanding", h.pendingSequence,
		)
	default:
		h.completeFlipLocked()
	}
	h.unlockAndDeliver()
}

// Sync waits, bounded by the sync timeout, for the outstanding commit.
func (h *Handler) Sync() {
	h.mu.Lock()
	if h.initialized {
		h.syncLocked()
	}
	h.unlockAndDeliver()
}

// syncLocked waits until no commit is outstanding. It drops the lock
// while waiting. A wait that exceeds the sync timeout force-completes
// the commit it was waiting for.
func (h *Handler) syncLocked() {
	for h.pending != nil {
		done := h.flipDone
		waitingFor := h.pending.ID()

		h.mu.Unlock()
		timedOut := false
		select {
		case <-done:
		case <-h.clock.After(h.syncTimeout):
			timedOut = true
		}
		h.mu.Lock()

		if timedOut && h.flipDone == done && h.pending != nil {
			h.logger.Error("timed out waiting for flip completion, forcing completion",
				"frame", waitingFor,
				"timeout", h.syncTimeout,
			)
			h.completeFlipLocked()
		}
	}
}

// completeFlipLocked promotes the pending frame to current.
func (h *Handler) completeFlipLocked() {
	f := h.pending
	if f == nil {
		h.violation("completion with no outstanding commit")
		return
	}
	id := f.ID()
	if !id.ReceivedAt.IsZero() {
		h.logger.Debug("frame on screen",
			"frame", id,
			"latency", h.clock.Now().Sub(id.ReceivedAt),
		)
	}

	if previous := h.current; previous != nil {
		h.deliver(func() { h.display.ReleaseFlippedFrame(previous) })
	}
	h.retirePreviousLocked(f)

	h.current = f
	h.pending = nil
	close(h.flipDone)
	if completer, ok := h.strategy.(flipCompleter); ok {
		completer.CompleteFlip()
	}
	h.deliver(h.display.NotifyReady)
}

// retirePreviousLocked advances the timeline now that f is on screen.
// A real frame N releases everything before it. A synthetic frame has
// no slot of its own: it releases the real frame it replaced, if that
// frame is still unreleased.
func (h *Handler) retirePreviousLocked(f *frame.Frame) {
	id := f.ID()
	if id.Valid {
		h.releaseTo(id.TimelineIndex - 1)
		return
	}
	if h.current == nil {
		return
	}
	if previous := h.current.ID(); previous.Valid {
		h.releaseTo(previous.TimelineIndex)
	}
}

// retireLocked disposes of a frame that was never issued: its own
// point is released and the frame goes straight back to its producer.
func (h *Handler) retireLocked(f *frame.Frame) {
	if id := f.ID(); id.Valid {
		h.releaseTo(id.TimelineIndex)
	}
	h.deliver(func() { h.display.ReleaseFlippedFrame(f) })
}

// releaseTo advances the timeline to point unless it is already there
// or beyond. Repeated and dropped frames can legitimately name a point
// that is already released.
func (h *Handler) releaseTo(point uint32) {
	if !timeline.Ahead(point, h.timeline.Current()) {
		return
	}
	h.timeline.AdvanceTo(point)
}

// deliver queues a callback to run once the lock is released.
func (h *Handler) deliver(callback func()) {
	h.deliveries = append(h.deliveries, callback)
}

// unlockAndDeliver releases the lock and runs queued callbacks in
// order. Callbacks may re-enter the handler; anything they queue runs
// in the same drain.
func (h *Handler) unlockAndDeliver() {
	if h.delivering || len(h.deliveries) == 0 {
		h.mu.Unlock()
		return
	}
	h.delivering = true
	for len(h.deliveries) > 0 {
		callback := h.deliveries[0]
		h.deliveries = h.deliveries[1:]
		h.mu.Unlock()
		callback()
		h.mu.Lock()
	}
	h.delivering = false
	h.mu.Unlock()
}

func (h *Handler) violation(message string, args ...any) {
	if h.strict {
		panic(fmt.Sprintf("display %d: %s %v", h.display.Index(), message, args))
	}
	h.logger.Error(message, args...)
}
