// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry is a small persistent key/value store for settings
// that must survive a restart, such as operator option overrides.
//
// The registry loads its file on first access. Writes update memory
// immediately and mark the registry dirty; a background saver batches
// writes over a short delay and rewrites the file atomically.
// [Registry.Close] returns only after outstanding saves complete, so
// it doubles as a sync before power-off.
//
// # File format
//
//	magic    8 bytes  "HWCREG\x00\x01"
//	checksum 32 bytes keyed BLAKE3 of the payload
//	payload           zstd-compressed CBOR of the entry map
//
// A file that fails any check is reported and ignored: the registry
// starts empty and the next save replaces it.
package registry
