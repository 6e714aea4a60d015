// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package display binds one connected output to its page-flip handler.
//
// A [Display] is the handler's view of the hardware (plane layout,
// applied mode, blanking buffers) and the producers' entry point:
// producers take a release fence with [Display.NextFence], compose,
// and hand the frame to [Display.Present]. [Display.Run] drains the
// presentation queue one commit at a time, waiting for the handler to
// report it is ready before each flip.
//
// Blanking buffers are kernel dumb buffers filled with black, created
// on first use for each size and kept until [Display.Close].
package display
