// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package drm is the composer's handle on a kernel mode-setting device
// (/dev/dri/cardN). Pure Go, no cgo: every operation is a DRM ioctl
// issued through golang.org/x/sys/unix.
//
// A Device is opened once per process by the composition service and
// shared, by pointer, with every display. After [Device.Discover] the
// topology it returns is read-only.
//
// # Operations
//
//   - Capability negotiation at open: universal planes and atomic
//     client caps, dumb buffer support ([Capabilities]).
//   - Topology discovery: connectors, their crtcs, the planes each crtc
//     can use, and the property IDs needed for atomic commits
//     ([Topology], [Output]).
//   - Commits: legacy page flip, set-plane, and atomic commits built
//     with [AtomicRequest].
//   - Completion events: [Device.ReadEvents] blocks on the device fd
//     and decodes vblank/flip-complete events ([DecodeEvents]).
//     [Device.Interrupt] wakes a blocked reader.
//   - Dumb buffers: CPU-mapped scanout buffers, used for blanking.
//
// Struct layouts and ioctl numbers mirror include/uapi/drm/drm.h and
// drm_mode.h. They are stable kernel ABI.
package drm
