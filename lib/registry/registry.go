// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/hwcomposer/lib/clock"
)

// MaxEntryLength bounds len(key)+len(value).
const MaxEntryLength = 512

// DefaultSaveDelay is how long the saver batches writes.
const DefaultSaveDelay = 500 * time.Millisecond

var (
	// ErrInvalidKey is returned for empty keys and keys containing '='.
	ErrInvalidKey = errors.New("registry: invalid key")

	// ErrTooLong is returned when key and value exceed MaxEntryLength.
	ErrTooLong = errors.New("registry: entry too long")

	// ErrClosed is returned by Open and Write after Close.
	ErrClosed = errors.New("registry: closed")
)

// Options configures a Registry.
type Options struct {
	// Path is the registry file.
	Path string

	// SaveDelay batches writes before saving. Zero means
	// DefaultSaveDelay.
	SaveDelay time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Registry is a persistent string map. Safe for concurrent use.
type Registry struct {
	path      string
	saveDelay time.Duration
	clock     clock.Clock
	logger    *slog.Logger

	// saveMu serialises file writes between the saver and Flush.
	saveMu sync.Mutex

	mu        sync.Mutex
	entries   map[string]string
	open      bool
	closed    bool
	dirty     bool
	saving    bool
	lastErr   error
	wake      chan struct{}
	stop      chan struct{}
	saverDone chan struct{}
}

// New creates a registry backed by options.Path. The file is read on
// first access.
func New(options Options) *Registry {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if options.SaveDelay <= 0 {
		options.SaveDelay = DefaultSaveDelay
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	return &Registry{
		path:      options.Path,
		saveDelay: options.SaveDelay,
		clock:     options.Clock,
		logger:    logger.With("registry", options.Path),
		entries:   make(map[string]string),
	}
}

// Open loads the file and starts the saver. Opening an open registry
// does nothing. Access methods open the registry implicitly. A closed
// registry stays closed: Open and Write return ErrClosed, while Read
// and Len serve the entries held at Close.
func (r *Registry) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openLocked()
}

func (r *Registry) openLocked() error {
	if r.closed {
		return ErrClosed
	}
	if r.open {
		return nil
	}
	r.entries = r.load()
	r.open = true
	r.dirty = false
	r.wake = make(chan struct{}, 1)
	r.stop = make(chan struct{})
	r.saverDone = make(chan struct{})
	go r.saver(r.wake, r.stop, r.saverDone)
	return nil
}

func (r *Registry) load() map[string]string {
	file, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Info("registry file absent, starting empty")
		return make(map[string]string)
	}
	if err != nil {
		r.logger.Error("reading registry failed, starting empty", "error", err)
		return make(map[string]string)
	}
	entries, err := decode(file)
	if err != nil {
		r.logger.Error("ignoring unreadable registry", "error", err)
		return make(map[string]string)
	}
	r.logger.Info("registry loaded", "entries", len(entries))
	return entries
}

// Close stops the saver after it writes any outstanding changes. It
// returns the error of the last save, if it failed.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	if !r.open {
		r.mu.Unlock()
		return nil
	}
	r.open = false
	stop, done := r.stop, r.saverDone
	r.mu.Unlock()

	close(stop)
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Write stores value under key and schedules a save.
func (r *Registry) Write(key, value string) error {
	if key == "" || strings.ContainsRune(key, '=') {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if len(key)+len(value) > MaxEntryLength {
		return fmt.Errorf("%w: %d bytes for %q", ErrTooLong, len(key)+len(value), key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.openLocked(); err != nil {
		return fmt.Errorf("writing %q: %w", key, err)
	}
	if existing, ok := r.entries[key]; ok && existing == value {
		return nil
	}
	r.entries[key] = value
	r.dirty = true
	select {
	case r.wake <- struct{}{}:
	default:
	}
	return nil
}

// Read returns the value stored under key.
func (r *Registry) Read(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.openLocked() // a closed registry serves the entries held at Close
	value, ok := r.entries[key]
	return value, ok
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.openLocked() // a closed registry serves the entries held at Close
	return len(r.entries)
}

// IsOpen reports whether the registry is open.
func (r *Registry) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// IsDirty reports whether changes are waiting to be saved.
func (r *Registry) IsDirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// IsSaving reports whether a save is in progress.
func (r *Registry) IsSaving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saving
}

// Flush saves outstanding changes now.
func (r *Registry) Flush() error {
	return r.save()
}

// Dump renders the registry for diagnostics, one key=value per line in
// key order.
func (r *Registry) Dump() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	fmt.Fprintf(&builder, "registry %s: %d entries open=%t dirty=%t saving=%t\n",
		r.path, len(r.entries), r.open, r.dirty, r.saving)
	for _, key := range keys {
		fmt.Fprintf(&builder, "  %s=%s\n", key, r.entries[key])
	}
	return builder.String()
}

// saver batches wake-ups over the save delay, then saves. On stop it
// saves whatever is outstanding and exits.
func (r *Registry) saver(wake <-chan struct{}, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			r.save()
			return
		case <-wake:
		}
		select {
		case <-stop:
			r.save()
			return
		case <-r.clock.After(r.saveDelay):
		}
		r.save()
	}
}

// save writes a snapshot of the entries if they are dirty. A failed
// save leaves the registry dirty for the next attempt.
func (r *Registry) save() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return nil
	}
	snapshot := make(map[string]string, len(r.entries))
	for key, value := range r.entries {
		snapshot[key] = value
	}
	r.dirty = false
	r.saving = true
	r.mu.Unlock()

	err := r.writeFile(snapshot)

	r.mu.Lock()
	r.saving = false
	r.lastErr = err
	if err != nil {
		r.dirty = true
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("saving registry failed", "error", err)
		return err
	}
	r.logger.Debug("registry saved", "entries", len(snapshot))
	return nil
}

// writeFile replaces the registry file atomically.
func (r *Registry) writeFile(entries map[string]string) error {
	data, err := encode(entries)
	if err != nil {
		return err
	}
	directory := filepath.Dir(r.path)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", directory, err)
	}
	temporary, err := os.CreateTemp(directory, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary registry file: %w", err)
	}
	defer os.Remove(temporary.Name())

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("writing %s: %w", temporary.Name(), err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		return fmt.Errorf("syncing %s: %w", temporary.Name(), err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", temporary.Name(), err)
	}
	if err := os.Rename(temporary.Name(), r.path); err != nil {
		return fmt.Errorf("replacing %s: %w", r.path, err)
	}
	return nil
}
