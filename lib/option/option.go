// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package option

import (
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

// Well-known option names.
const (
	// PlaneAlloc enables distributing layers across overlay planes.
	// When 0 all composition targets the main plane.
	PlaneAlloc = "planealloc"

	// Nuclear permits the atomic ("nuclear") commit path when the
	// device supports it.
	Nuclear = "nuclear"
)

// Store persists option values.
type Store interface {
	Read(key string) (string, bool)
	Write(key, value string) error
}

// Option is one named value. Safe for concurrent use.
type Option struct {
	name         string
	defaultValue int64
	persistent   bool
	value        atomic.Int64
	set          *Set
}

// Name returns the option name.
func (o *Option) Name() string { return o.name }

// Get returns the current value.
func (o *Option) Get() int64 { return o.value.Load() }

// Enabled reports whether the value is non-zero.
func (o *Option) Enabled() bool { return o.value.Load() != 0 }

// Default returns the registered default.
func (o *Option) Default() int64 { return o.defaultValue }

// Set changes the value, writing it to the store if the option is
// persistent.
func (o *Option) Set(value int64) {
	previous := o.value.Swap(value)
	if previous == value {
		return
	}
	o.set.logger.Info("option changed", "option", o.name, "from", previous, "to", value)
	if !o.persistent || o.set.store == nil {
		return
	}
	if err := o.set.store.Write(o.storeKey(), strconv.FormatInt(value, 10)); err != nil {
		o.set.logger.Error("persisting option failed", "option", o.name, "error", err)
	}
}

func (o *Option) storeKey() string { return "option." + o.name }

// Set is a registry of options.
type Set struct {
	store  Store
	logger *slog.Logger

	mu      sync.RWMutex
	options map[string]*Option
}

// NewSet creates an empty set. store may be nil.
func NewSet(store Store, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Set{
		store:   store,
		logger:  logger,
		options: make(map[string]*Option),
	}
}

// Register adds an option, or returns the existing one with that name.
// A persistent option takes its initial value from the store when the
// store holds a parsable value.
func (s *Set) Register(name string, defaultValue int64, persistent bool) *Option {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.options[name]; ok {
		return existing
	}

	option := &Option{
		name:         name,
		defaultValue: defaultValue,
		persistent:   persistent,
		set:          s,
	}
	option.value.Store(defaultValue)
	if persistent && s.store != nil {
		if stored, ok := s.store.Read(option.storeKey()); ok {
			value, err := strconv.ParseInt(stored, 10, 64)
			if err != nil {
				s.logger.Warn("ignoring unparsable stored option", "option", name, "value", stored)
			} else {
				option.value.Store(value)
			}
		}
	}
	s.options[name] = option
	return option
}

// Find returns the named option, or nil.
func (s *Set) Find(name string) *Option {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.options[name]
}

// Enabled reports whether the named option exists and is non-zero.
func (s *Set) Enabled(name string) bool {
	option := s.Find(name)
	return option != nil && option.Enabled()
}

// Names returns the registered option names in sorted order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.options))
	for name := range s.options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
