// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/hwcomposer/lib/codec"
)

var magic = []byte("HWCREG\x00\x01")

const checksumSize = 32

// checksumKey domain-separates registry checksums from any other
// BLAKE3 use.
var checksumKey = [32]byte([]byte("hwcomposer.registry.checksum.v01"))

// ErrCorrupt is returned when a registry file fails validation.
var ErrCorrupt = errors.New("registry: corrupt file")

type fileContents struct {
	Version int               `cbor:"version"`
	Entries map[string]string `cbor:"entries"`
}

const formatVersion = 1

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("registry: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(16<<20))
	if err != nil {
		panic("registry: zstd decoder initialization failed: " + err.Error())
	}
}

func checksum(payload []byte) []byte {
	hasher, err := blake3.NewKeyed(checksumKey[:])
	if err != nil {
		panic("registry: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(payload)
	return hasher.Sum(nil)
}

// encode serialises entries into the on-disk format.
func encode(entries map[string]string) ([]byte, error) {
	data, err := codec.Marshal(fileContents{Version: formatVersion, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("encoding registry: %w", err)
	}
	payload := zstdEncoder.EncodeAll(data, nil)

	file := make([]byte, 0, len(magic)+checksumSize+len(payload))
	file = append(file, magic...)
	file = append(file, checksum(payload)...)
	file = append(file, payload...)
	return file, nil
}

// decode validates and parses a registry file.
func decode(file []byte) (map[string]string, error) {
	if len(file) < len(magic)+checksumSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrCorrupt, len(file))
	}
	if !bytes.Equal(file[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, file[:len(magic)])
	}
	stored := file[len(magic) : len(magic)+checksumSize]
	payload := file[len(magic)+checksumSize:]
	if !bytes.Equal(stored, checksum(payload)) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	data, err := zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing: %v", ErrCorrupt, err)
	}
	var contents fileContents
	if err := codec.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("%w: decoding: %v (payload %s)", ErrCorrupt, err, diagnose(data))
	}
	if contents.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d (payload %s)", ErrCorrupt, contents.Version, diagnose(data))
	}
	if contents.Entries == nil {
		contents.Entries = make(map[string]string)
	}
	return contents.Entries, nil
}

// maxDiagnosticLength bounds the payload rendering in decode errors.
const maxDiagnosticLength = 256

// diagnose renders a payload that failed to decode in CBOR diagnostic
// notation, truncated for logging.
func diagnose(data []byte) string {
	notation, err := codec.Diagnose(data)
	if err != nil {
		return fmt.Sprintf("undiagnosable: %v", err)
	}
	if len(notation) > maxDiagnosticLength {
		return notation[:maxDiagnosticLength] + "..."
	}
	return notation
}
