// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CreateDumbBuffer allocates a width x height XRGB8888 buffer, registers
// it as a framebuffer and maps it. The kernel hands out zeroed memory,
// so a fresh buffer is black.
func (d *Device) CreateDumbBuffer(width, height uint32) (*DumbBuffer, error) {
	if !d.caps.DumbBuffers {
		return nil, ErrUnsupported
	}
	create := sysCreateDumb{width: width, height: height, bpp: 32}
	if err := d.ioctl(ioctlModeCreateDumb, unsafe.Pointer(&create)); err != nil {
		return nil, fmt.Errorf("creating %dx%d dumb buffer: %w", width, height, err)
	}
	buffer := &DumbBuffer{
		Handle: create.handle,
		Width:  width,
		Height: height,
		Pitch:  create.pitch,
		Size:   create.size,
	}

	framebuffer := sysFBCommand{
		width:  width,
		height: height,
		pitch:  create.pitch,
		bpp:    32,
		depth:  24,
		handle: create.handle,
	}
	if err := d.ioctl(ioctlModeAddFB, unsafe.Pointer(&framebuffer)); err != nil {
		d.destroyDumb(buffer.Handle)
		return nil, fmt.Errorf("registering framebuffer for dumb buffer %d: %w", buffer.Handle, err)
	}
	buffer.FramebufferID = framebuffer.fbID

	mapping := sysMapDumb{handle: create.handle}
	if err := d.ioctl(ioctlModeMapDumb, unsafe.Pointer(&mapping)); err != nil {
		d.DestroyDumbBuffer(buffer)
		return nil, fmt.Errorf("mapping dumb buffer %d: %w", buffer.Handle, err)
	}
	data, err := unix.Mmap(d.fd, int64(mapping.offset), int(create.size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		d.DestroyDumbBuffer(buffer)
		return nil, fmt.Errorf("mmap dumb buffer %d: %w", buffer.Handle, err)
	}
	buffer.Data = data
	return buffer, nil
}

// Fill paints the whole buffer with one XRGB8888 colour.
func (b *DumbBuffer) Fill(colour uint32) {
	if b.Data == nil {
		return
	}
	for y := uint32(0); y < b.Height; y++ {
		row := b.Data[y*b.Pitch : y*b.Pitch+b.Width*4]
		for x := 0; x < len(row); x += 4 {
			binary.LittleEndian.PutUint32(row[x:], colour)
		}
	}
}

// DestroyDumbBuffer unmaps the buffer, removes its framebuffer and frees
// the kernel allocation.
func (d *Device) DestroyDumbBuffer(buffer *DumbBuffer) error {
	var errs []error
	if buffer.Data != nil {
		if err := unix.Munmap(buffer.Data); err != nil {
			errs = append(errs, fmt.Errorf("unmapping dumb buffer %d: %w", buffer.Handle, err))
		}
		buffer.Data = nil
	}
	if buffer.FramebufferID != 0 {
		framebufferID := buffer.FramebufferID
		if err := d.ioctl(ioctlModeRmFB, unsafe.Pointer(&framebufferID)); err != nil {
			errs = append(errs, fmt.Errorf("removing framebuffer %d: %w", framebufferID, err))
		}
		buffer.FramebufferID = 0
	}
	if err := d.destroyDumb(buffer.Handle); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Device) destroyDumb(handle uint32) error {
	request := sysDestroyDumb{handle: handle}
	if err := d.ioctl(ioctlModeDestroyDumb, unsafe.Pointer(&request)); err != nil {
		return fmt.Errorf("destroying dumb buffer %d: %w", handle, err)
	}
	return nil
}
