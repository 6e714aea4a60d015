// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package timeline

import "errors"

// OpenSWSync is only available on Linux.
func OpenSWSync(name string) (SyncObject, error) {
	return nil, errors.New("sw_sync timelines require linux")
}
