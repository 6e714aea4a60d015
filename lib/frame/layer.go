// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import "fmt"

// Rect is a pixel rectangle.
type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.Width == 0 || r.Height == 0 }

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Transform is a plane rotation/reflection.
type Transform uint8

const (
	TransformNone Transform = iota
	TransformFlipH
	TransformFlipV
	TransformRotate90
	TransformRotate180
	TransformRotate270
)

// Buffer references a framebuffer registered with the kernel.
type Buffer struct {
	FramebufferID uint32
	Width         uint32
	Height        uint32

	// Format is a DRM fourcc code.
	Format uint32
}

// Layer is the content assigned to one plane slot for one frame.
type Layer struct {
	Buffer      Buffer
	Source      Rect
	Destination Rect
	Transform   Transform

	// Encrypted marks protected content that must be decrypted by the
	// display engine.
	Encrypted bool

	// Disabled turns the plane off for this frame. For the main plane
	// the handler substitutes a blanking buffer instead.
	Disabled bool
}

// Enabled reports whether the layer puts a buffer on its plane.
func (l Layer) Enabled() bool {
	return !l.Disabled && l.Buffer.FramebufferID != 0
}

// Reset turns the layer into a disabled, bufferless layer.
func (l *Layer) Reset() {
	*l = Layer{Disabled: true}
}

// Set replaces the layer's content with other's.
func (l *Layer) Set(other Layer) {
	*l = other
}

// FullScreen returns a layer showing all of buffer at the given
// destination size.
func FullScreen(buffer Buffer, width, height uint32) Layer {
	return Layer{
		Buffer:      buffer,
		Source:      Rect{Width: buffer.Width, Height: buffer.Height},
		Destination: Rect{Width: width, Height: height},
	}
}

func (l Layer) String() string {
	if !l.Enabled() {
		return "disabled"
	}
	return fmt.Sprintf("fb:%d %s->%s", l.Buffer.FramebufferID, l.Source, l.Destination)
}
