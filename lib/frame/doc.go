// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package frame defines the unit of presentation: a composed Frame made
// of one Layer per hardware plane slot, tagged with the timeline index
// its producer was given.
//
// A Frame is owned by the display's presentation queue from the moment
// it is presented until the page-flip handler retires it, at which
// point Release hands it back to the producer exactly once.
package frame
