// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package option holds the composer's named runtime options.
//
// Options are integers (booleans are 0/1) registered once with a
// default. A persistent option is seeded from, and written back to, a
// [Store] such as lib/registry, so an operator override survives a
// restart. Non-persistent options may still be changed at runtime: the
// page-flip handler turns off [PlaneAlloc] when it falls back to the
// legacy commit path, and that decision must be re-made on every start.
package option
