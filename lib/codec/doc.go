// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the composer's CBOR encoding configuration.
//
// CBOR is used for on-disk state, currently the persistent option
// registry. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items, so the same registry contents always
// produce the same bytes and the same checksum.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Types serialized here carry `cbor` struct tags.
package codec
