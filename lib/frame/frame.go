// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrInvalidLayer is returned by Validate for an enabled layer that
// cannot be scanned out.
var ErrInvalidLayer = errors.New("invalid layer")

// GlobalScaling describes a display-wide scaler: the composition is
// rendered at SourceWidth x SourceHeight and scaled into Destination.
type GlobalScaling struct {
	Enabled      bool
	SourceWidth  uint32
	SourceHeight uint32
	Destination  Rect
}

// Config is per-frame display configuration.
type Config struct {
	GlobalScaling GlobalScaling
}

// Frame is one composed output.
type Frame struct {
	id      ID
	layers  []Layer
	config  Config
	release func(*Frame)

	released atomic.Bool
}

// New creates a frame. release is invoked once when the display is done
// with the frame; it may be nil.
func New(id ID, layers []Layer, config Config, release func(*Frame)) *Frame {
	return &Frame{
		id:      id,
		layers:  layers,
		config:  config,
		release: release,
	}
}

// ID returns the frame's timeline identity.
func (f *Frame) ID() ID { return f.id }

// Config returns the frame's display configuration.
func (f *Frame) Config() Config { return f.config }

// LayerCount returns the number of plane slots the frame covers.
func (f *Frame) LayerCount() int { return len(f.layers) }

// Layer returns the layer for plane slot index for in-place editing, or
// nil if the frame does not cover that slot.
func (f *Frame) Layer(index int) *Layer {
	if index < 0 || index >= len(f.layers) {
		return nil
	}
	return &f.layers[index]
}

// Layers returns the frame's layers in plane order. The slice aliases
// the frame.
func (f *Frame) Layers() []Layer { return f.layers }

// Validate checks that every enabled layer has scannable geometry.
func (f *Frame) Validate() error {
	for index, layer := range f.layers {
		if !layer.Enabled() {
			continue
		}
		if layer.Source.Empty() {
			return fmt.Errorf("frame %s layer %d: empty source %s: %w", f.id, index, layer.Source, ErrInvalidLayer)
		}
		if layer.Destination.Empty() {
			return fmt.Errorf("frame %s layer %d: empty destination %s: %w", f.id, index, layer.Destination, ErrInvalidLayer)
		}
		if uint64(layer.Source.X)+uint64(layer.Source.Width) > uint64(layer.Buffer.Width) ||
			uint64(layer.Source.Y)+uint64(layer.Source.Height) > uint64(layer.Buffer.Height) ||
			layer.Source.X < 0 || layer.Source.Y < 0 {
			return fmt.Errorf("frame %s layer %d: source %s outside %dx%d buffer: %w",
				f.id, index, layer.Source, layer.Buffer.Width, layer.Buffer.Height, ErrInvalidLayer)
		}
	}
	return nil
}

// Release hands the frame back to its producer. Only the first call has
// an effect; it returns false for repeated calls.
func (f *Frame) Release() bool {
	if !f.released.CompareAndSwap(false, true) {
		return false
	}
	if f.release != nil {
		f.release(f)
	}
	return true
}

// Released reports whether Release has been called.
func (f *Frame) Released() bool { return f.released.Load() }

func (f *Frame) String() string {
	return fmt.Sprintf("frame%s[%d layers]", f.id, len(f.layers))
}
