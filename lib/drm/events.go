// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// eventBufferSize matches libdrm's drmHandleEvent buffer.
const eventBufferSize = 1024

// ReadEvents blocks until the kernel has completion events for this
// file, then decodes them. It returns ErrInterrupted after Interrupt
// and ErrClosed once the device is closed.
func (d *Device) ReadEvents() ([]Event, error) {
	buffer := make([]byte, eventBufferSize)
	for {
		if d.closed.Load() {
			return nil, ErrClosed
		}
		descriptors := []unix.PollFd{
			{Fd: int32(d.fd), Events: unix.POLLIN},
			{Fd: int32(d.wakeRead), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(descriptors, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, fmt.Errorf("polling %s: %w", d.path, err)
		}

		if descriptors[1].Revents != 0 {
			d.drainWake()
			if d.closed.Load() {
				return nil, ErrClosed
			}
			return nil, ErrInterrupted
		}
		if descriptors[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return nil, fmt.Errorf("polling %s: revents 0x%x", d.path, descriptors[0].Revents)
		}
		if descriptors[0].Revents&unix.POLLIN == 0 {
			continue
		}

		n, err := unix.Read(d.fd, buffer)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return nil, fmt.Errorf("reading events from %s: %w", d.path, err)
		}
		events, err := DecodeEvents(buffer[:n])
		if err != nil {
			d.logger.Warn("malformed event data", "error", err, "decoded", len(events))
		}
		if len(events) > 0 {
			return events, nil
		}
	}
}

// Interrupt wakes a goroutine blocked in ReadEvents.
func (d *Device) Interrupt() error {
	_, err := unix.Write(d.wakeWrite, []byte{1})
	if err == unix.EAGAIN {
		// The pipe is already full, so a wake-up is pending.
		return nil
	}
	return err
}

func (d *Device) drainWake() {
	var scratch [64]byte
	for {
		if n, err := unix.Read(d.wakeRead, scratch[:]); n <= 0 || err != nil {
			return
		}
	}
}
