// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SWSyncPath is the debugfs node of the kernel's software sync driver.
const SWSyncPath = "/sys/kernel/debug/sync/sw_sync"

// sw_sync ioctls from drivers/dma-buf/sw_sync.c.
const (
	// _IOWR('W', 0, struct sw_sync_create_fence_data), 40 bytes.
	ioctlSWSyncCreateFence = 0xC0285700

	// _IOW('W', 1, __u32).
	ioctlSWSyncIncrement = 0x40045701
)

// swSyncCreateFenceData mirrors struct sw_sync_create_fence_data.
type swSyncCreateFenceData struct {
	value uint32
	name  [32]byte
	fence int32
}

type swSync struct {
	fd int
}

// OpenSWSync opens a new sw_sync timeline. Each open of the debugfs
// node creates an independent kernel timeline starting at zero.
func OpenSWSync(name string) (SyncObject, error) {
	fd, err := unix.Open(SWSyncPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s for %s: %w", SWSyncPath, name, err)
	}
	return &swSync{fd: fd}, nil
}

func (s *swSync) CreateFence(name string, point uint32) (int, error) {
	var data swSyncCreateFenceData
	data.value = point
	copy(data.name[:len(data.name)-1], name)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd),
		ioctlSWSyncCreateFence, uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return -1, fmt.Errorf("sw_sync create fence %d: %w", point, errno)
	}
	return int(data.fence), nil
}

func (s *swSync) Increment(delta uint32) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd),
		ioctlSWSyncIncrement, uintptr(unsafe.Pointer(&delta)))
	if errno != 0 {
		return fmt.Errorf("sw_sync increment %d: %w", delta, errno)
	}
	return nil
}

func (s *swSync) CloseFence(fd int) error {
	return unix.Close(fd)
}

func (s *swSync) Close() error {
	return unix.Close(s.fd)
}
