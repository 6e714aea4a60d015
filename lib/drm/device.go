// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drm

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Device is an open DRM card. It is safe for concurrent use; the
// kernel serializes ioctls per file.
type Device struct {
	path   string
	fd     int
	logger *slog.Logger
	caps   Capabilities

	// wake is a pipe used by Interrupt to unblock ReadEvents.
	wakeRead, wakeWrite int

	closeOnce sync.Once
	closed    atomic.Bool
}

// Open opens the card at path and negotiates client capabilities.
// Missing capabilities are recorded, not treated as errors.
func Open(path string, logger *slog.Logger) (*Device, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	pipe := make([]int, 2)
	if err := unix.Pipe(pipe); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("creating event wake pipe: %w", err)
	}
	for _, end := range pipe {
		unix.CloseOnExec(end)
		if err := unix.SetNonblock(end, true); err != nil {
			unix.Close(fd)
			unix.Close(pipe[0])
			unix.Close(pipe[1])
			return nil, fmt.Errorf("configuring event wake pipe: %w", err)
		}
	}

	device := &Device{
		path:      path,
		fd:        fd,
		logger:    logger.With("device", path),
		wakeRead:  pipe[0],
		wakeWrite: pipe[1],
	}
	device.negotiate()
	return device, nil
}

func (d *Device) negotiate() {
	if err := d.setClientCap(clientCapUniversalPlanes, 1); err != nil {
		d.logger.Info("universal planes unavailable", "error", err)
	} else {
		d.caps.UniversalPlanes = true
	}
	// Atomic implies universal planes, so only ask when they are on.
	if d.caps.UniversalPlanes {
		if err := d.setClientCap(clientCapAtomic, 1); err != nil {
			d.logger.Info("atomic mode setting unavailable", "error", err)
		} else {
			d.caps.Atomic = true
		}
	}
	if value, err := d.getCap(capDumbBuffer); err == nil && value != 0 {
		d.caps.DumbBuffers = true
	}
	d.logger.Debug("device capabilities",
		"atomic", d.caps.Atomic,
		"universal_planes", d.caps.UniversalPlanes,
		"dumb_buffers", d.caps.DumbBuffers,
	)
}

// Path returns the device node path.
func (d *Device) Path() string { return d.path }

// Capabilities returns what the device accepted at open.
func (d *Device) Capabilities() Capabilities { return d.caps }

// Close closes the device. Blocked ReadEvents calls return ErrClosed.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		d.Interrupt()
		err = unix.Close(d.fd)
		unix.Close(d.wakeWrite)
		unix.Close(d.wakeRead)
	})
	return err
}

func (d *Device) ioctl(request uintptr, argument unsafe.Pointer) error {
	if d.closed.Load() {
		return ErrClosed
	}
	return ioctl(uintptr(d.fd), request, argument)
}

func (d *Device) setClientCap(capability, value uint64) error {
	request := sysSetClientCap{capability: capability, value: value}
	return d.ioctl(ioctlSetClientCap, unsafe.Pointer(&request))
}

func (d *Device) getCap(capability uint64) (uint64, error) {
	request := sysGetCap{capability: capability}
	if err := d.ioctl(ioctlGetCap, unsafe.Pointer(&request)); err != nil {
		return 0, err
	}
	return request.value, nil
}

// PageFlip schedules a legacy flip of crtcID to framebufferID at the
// next vblank. With PageFlipEvent in flags the kernel delivers a
// flip-complete event carrying userData.
func (d *Device) PageFlip(crtcID, framebufferID, flags uint32, userData uint64) error {
	request := sysPageFlip{
		crtcID:   crtcID,
		fbID:     framebufferID,
		flags:    flags,
		userData: userData,
	}
	if err := d.ioctl(ioctlModePageFlip, unsafe.Pointer(&request)); err != nil {
		return fmt.Errorf("page flip crtc %d to fb %d: %w", crtcID, framebufferID, err)
	}
	return nil
}

// SetCrtc performs a synchronous modeset: crtcID scans out
// framebufferID in mode, driving connectorID. A crtc must be active
// before it accepts page flips.
func (d *Device) SetCrtc(crtcID, framebufferID, connectorID uint32, mode ModeInfo) error {
	connectors := []uint32{connectorID}
	request := sysCrtc{
		setConnectorsPtr: pointerTo(connectors),
		countConnectors:  1,
		crtcID:           crtcID,
		fbID:             framebufferID,
		modeValid:        1,
		mode:             mode,
	}
	err := d.ioctl(ioctlModeSetCrtc, unsafe.Pointer(&request))
	runtime.KeepAlive(connectors)
	if err != nil {
		return fmt.Errorf("set crtc %d to fb %d on connector %d: %w", crtcID, framebufferID, connectorID, err)
	}
	return nil
}

// SetPlane programs one plane synchronously. A zero FramebufferID
// disables the plane.
func (d *Device) SetPlane(request SetPlaneRequest) error {
	raw := struct {
		planeID, crtcID, fbID, flags uint32
		crtcX, crtcY                 int32
		crtcW, crtcH                 uint32
		srcX, srcY, srcH, srcW       uint32
	}{
		request.PlaneID, request.CrtcID, request.FramebufferID, request.Flags,
		request.CrtcX, request.CrtcY,
		request.CrtcW, request.CrtcH,
		request.SrcX, request.SrcY, request.SrcH, request.SrcW,
	}
	if err := d.ioctl(ioctlModeSetPlane, unsafe.Pointer(&raw)); err != nil {
		return fmt.Errorf("set plane %d on crtc %d: %w", request.PlaneID, request.CrtcID, err)
	}
	return nil
}

// AtomicCommit submits request with flags. With PageFlipEvent in flags
// the kernel delivers one flip-complete event per affected crtc, each
// carrying userData.
func (d *Device) AtomicCommit(request *AtomicRequest, flags uint32, userData uint64) error {
	if !d.caps.Atomic {
		return ErrUnsupported
	}
	objects, counts, properties, values := request.flatten()
	raw := sysAtomic{
		flags:         flags,
		countObjs:     uint32(len(objects)),
		objsPtr:       pointerTo(objects),
		countPropsPtr: pointerTo(counts),
		propsPtr:      pointerTo(properties),
		propValuesPtr: pointerTo(values),
		userData:      userData,
	}
	err := d.ioctl(ioctlModeAtomic, unsafe.Pointer(&raw))
	runtime.KeepAlive(objects)
	runtime.KeepAlive(counts)
	runtime.KeepAlive(properties)
	runtime.KeepAlive(values)
	if err != nil {
		return fmt.Errorf("atomic commit (%d objects, %d properties, flags 0x%x): %w",
			len(objects), len(properties), flags, err)
	}
	return nil
}

// CreatePropertyBlob uploads data as a property blob and returns its
// ID.
func (d *Device) CreatePropertyBlob(data []byte) (uint32, error) {
	raw := sysCreateBlob{data: pointerTo(data), length: uint32(len(data))}
	err := d.ioctl(ioctlModeCreateBlob, unsafe.Pointer(&raw))
	runtime.KeepAlive(data)
	if err != nil {
		return 0, fmt.Errorf("creating property blob: %w", err)
	}
	return raw.blobID, nil
}

// DestroyPropertyBlob releases a blob created by CreatePropertyBlob.
func (d *Device) DestroyPropertyBlob(blobID uint32) error {
	raw := sysDestroyBlob{blobID: blobID}
	if err := d.ioctl(ioctlModeDestroyBlob, unsafe.Pointer(&raw)); err != nil {
		return fmt.Errorf("destroying property blob %d: %w", blobID, err)
	}
	return nil
}

// CreateModeBlob uploads mode as a MODE_ID blob.
func (d *Device) CreateModeBlob(mode ModeInfo) (uint32, error) {
	data := unsafe.Slice((*byte)(unsafe.Pointer(&mode)), unsafe.Sizeof(mode))
	return d.CreatePropertyBlob(data)
}
