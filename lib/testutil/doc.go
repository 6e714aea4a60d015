// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so that tests waiting on flip completions, fence
// signals, or event-loop shutdown do not each carry their own
// time.After. They are the only place in the test suite where real
// wall-clock timeouts appear; everything timing-sensitive in the
// code under test runs on lib/clock's fake clock instead.
//
// [RequireEmpty] asserts that nothing is waiting on a channel right
// now, for checks such as "no ready notification was delivered".
//
// All helpers call t.Fatalf on failure.
package testutil
