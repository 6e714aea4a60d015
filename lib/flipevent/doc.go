// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package flipevent runs the single goroutine that receives commit
// completion events from the display device and routes each one to the
// page-flip handler that issued the commit.
//
// Every commit carries a 64-bit token: the display index in the high
// 32 bits and the handler's flip sequence number in the low 32 bits
// (see [EncodeToken]). The thread decodes the display index to find the
// [Target] and passes the sequence through so the handler can reject
// late events for commits it has already force-completed.
package flipevent
