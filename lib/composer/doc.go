// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package composer assembles the presentation pipeline for one display
// device: a [display.Display] and page-flip handler per connected
// output, and the single [flipevent.Thread] that routes completion
// events back to them.
//
// [New] discovers the device topology once. [Composer.Run] starts every
// display, shows a blank synthetic frame on each, and drives the event
// thread and display loops until its context ends. On return the
// displays are uninitialised, so every queued frame has been released
// to its producer, and the registry holding persistent options is
// closed after its final save.
package composer
