// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/hwcomposer/lib/clock"
	"github.com/bureau-foundation/hwcomposer/lib/codec"
	"github.com/bureau-foundation/hwcomposer/lib/option"
)

func newTestRegistry(t *testing.T, path string, fake *clock.FakeClock) *Registry {
	t.Helper()
	options := Options{Path: path}
	if fake != nil {
		options.Clock = fake
	}
	registry := New(options)
	t.Cleanup(func() { registry.Close() })
	return registry
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwc.registry")

	first := newTestRegistry(t, path, nil)
	if err := first.Write("option.nuclear", "0"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := first.Write("display.0.mode", "1920x1080@60"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if first.IsOpen() {
		t.Error("registry still open after Close")
	}

	second := newTestRegistry(t, path, nil)
	value, ok := second.Read("option.nuclear")
	if !ok || value != "0" {
		t.Errorf("Read(option.nuclear) = %q, %v; want \"0\", true", value, ok)
	}
	if second.Len() != 2 {
		t.Errorf("Len() = %d, want 2", second.Len())
	}
}

func TestWritesBatchedIntoOneSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwc.registry")
	fake := clock.Fake(time.Unix(0, 0))
	registry := newTestRegistry(t, path, fake)

	registry.Write("a", "1")
	fake.WaitForTimers(1)
	registry.Write("b", "2")
	registry.Write("c", "3")

	if got := fake.PendingCount(); got != 1 {
		t.Errorf("pending save timers = %d, want 1", got)
	}
	if !registry.IsDirty() {
		t.Error("registry not dirty before the save delay elapsed")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file written before the save delay: %v", err)
	}

	if err := registry.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading registry: %v", err)
	}
	entries, err := decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 3 || entries["c"] != "3" {
		t.Errorf("saved entries = %v", entries)
	}
}

func TestSaverWritesAfterDelay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwc.registry")
	fake := clock.Fake(time.Unix(0, 0))
	registry := newTestRegistry(t, path, fake)

	registry.Write("a", "1")
	fake.WaitForTimers(1)
	fake.Advance(DefaultSaveDelay)

	// The saver returns to waiting for the next write once it has
	// saved, so a second write arms a fresh timer only after the first
	// save finished.
	registry.Write("b", "2")
	fake.WaitForTimers(1)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("registry file after save delay: %v", err)
	}
}

func TestCorruptFileIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwc.registry")
	if err := os.WriteFile(path, []byte("not a registry"), 0o644); err != nil {
		t.Fatal(err)
	}

	registry := newTestRegistry(t, path, nil)
	if registry.Len() != 0 {
		t.Fatalf("Len() = %d for a corrupt file, want 0", registry.Len())
	}
	registry.Write("option.nuclear", "1")
	if err := registry.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := newTestRegistry(t, path, nil)
	if value, ok := reopened.Read("option.nuclear"); !ok || value != "1" {
		t.Errorf("corrupt file not replaced by next save: %q, %v", value, ok)
	}
}

func TestDecodeRejectsDamage(t *testing.T) {
	valid, err := encode(map[string]string{"key": "value"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	flipped := append([]byte(nil), valid...)
	flipped[len(flipped)-1] ^= 0xff
	badMagic := append([]byte(nil), valid...)
	badMagic[0] = 'X'

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated", valid[:10]},
		{"bad magic", badMagic},
		{"payload damaged", flipped},
		{"empty", nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := decode(test.data); !errors.Is(err, ErrCorrupt) {
				t.Errorf("decode = %v, want ErrCorrupt", err)
			}
		})
	}

	entries, err := decode(valid)
	if err != nil || entries["key"] != "value" {
		t.Errorf("decode(valid) = %v, %v", entries, err)
	}
}

// sealed wraps a raw CBOR payload in a valid header, checksum and
// compression so only the payload itself can fail to decode.
func sealed(data []byte) []byte {
	payload := zstdEncoder.EncodeAll(data, nil)
	file := append([]byte(nil), magic...)
	file = append(file, checksum(payload)...)
	return append(file, payload...)
}

func TestDecodeDescribesBadPayload(t *testing.T) {
	wrongShape, err := codec.Marshal("hello")
	if err != nil {
		t.Fatal(err)
	}
	wrongVersion, err := codec.Marshal(fileContents{Version: formatVersion + 1})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"not a map", wrongShape, `"hello"`},
		{"future version", wrongVersion, `"version"`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := decode(sealed(test.data))
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("decode = %v, want ErrCorrupt", err)
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("decode error %q does not show the payload (want %s)", err, test.want)
			}
		})
	}
}

func TestClosedRegistryStaysClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwc.registry")
	registry := newTestRegistry(t, path, nil)
	if err := registry.Write("a", "1"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := registry.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := registry.Write("b", "2"); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close = %v, want ErrClosed", err)
	}
	if err := registry.Open(); !errors.Is(err, ErrClosed) {
		t.Errorf("Open after Close = %v, want ErrClosed", err)
	}
	if value, ok := registry.Read("a"); !ok || value != "1" {
		t.Errorf("Read after Close = %q, %v; want \"1\", true", value, ok)
	}
	if registry.Len() != 1 {
		t.Errorf("Len after Close = %d, want 1", registry.Len())
	}
	if registry.IsOpen() || registry.IsDirty() {
		t.Errorf("closed registry open=%t dirty=%t", registry.IsOpen(), registry.IsDirty())
	}

	reopened := newTestRegistry(t, path, nil)
	if _, ok := reopened.Read("b"); ok {
		t.Error("write after Close reached the file")
	}
}

func TestCloseBeforeOpen(t *testing.T) {
	registry := New(Options{Path: filepath.Join(t.TempDir(), "hwc.registry")})
	if err := registry.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := registry.Write("a", "1"); !errors.Is(err, ErrClosed) {
		t.Errorf("Write = %v, want ErrClosed", err)
	}
	if registry.Len() != 0 {
		t.Errorf("Len = %d, want 0", registry.Len())
	}
}

func TestWriteValidation(t *testing.T) {
	registry := newTestRegistry(t, filepath.Join(t.TempDir(), "hwc.registry"), nil)

	tests := []struct {
		name  string
		key   string
		value string
		want  error
	}{
		{"empty key", "", "x", ErrInvalidKey},
		{"equals in key", "a=b", "x", ErrInvalidKey},
		{"too long", "k", strings.Repeat("v", MaxEntryLength), ErrTooLong},
		{"at limit", "k", strings.Repeat("v", MaxEntryLength-1), nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := registry.Write(test.key, test.value)
			if !errors.Is(err, test.want) {
				t.Errorf("Write(%q) = %v, want %v", test.key, err, test.want)
			}
		})
	}
}

func TestUnchangedWriteNotDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwc.registry")
	registry := newTestRegistry(t, path, nil)
	registry.Write("a", "1")
	if err := registry.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	registry.Write("a", "1")
	if registry.IsDirty() {
		t.Error("rewriting the same value marked the registry dirty")
	}
}

func TestCloseReportsSaveFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	registry := New(Options{Path: filepath.Join(blocker, "hwc.registry")})
	registry.Write("a", "1")
	if err := registry.Close(); err == nil {
		t.Fatal("Close succeeded although the registry directory is a file")
	}
}

func TestDump(t *testing.T) {
	registry := newTestRegistry(t, filepath.Join(t.TempDir(), "hwc.registry"), nil)
	registry.Write("b", "2")
	registry.Write("a", "1")
	dump := registry.Dump()
	if !strings.Contains(dump, "2 entries") {
		t.Errorf("Dump missing entry count:\n%s", dump)
	}
	if strings.Index(dump, "a=1") > strings.Index(dump, "b=2") {
		t.Errorf("Dump not in key order:\n%s", dump)
	}
}

func TestOptionsPersistThroughRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwc.registry")
	registry := newTestRegistry(t, path, nil)
	options := option.NewSet(registry, nil)
	options.Register(option.Nuclear, 1, true).Set(0)
	if err := registry.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	restarted := option.NewSet(newTestRegistry(t, path, nil), nil)
	if restarted.Register(option.Nuclear, 1, true).Enabled() {
		t.Error("nuclear override did not survive a restart")
	}
}
