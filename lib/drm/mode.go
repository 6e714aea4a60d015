// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drm

import (
	"bytes"
	"fmt"
	"runtime"
	"unsafe"
)

const connectionConnected = 1

// Discover enumerates connected outputs. Each connected connector is
// bound to its current crtc, or to the first free crtc its encoder can
// drive; connectors that cannot get a crtc are skipped.
func (d *Device) Discover() (*Topology, error) {
	resources, err := d.resources()
	if err != nil {
		return nil, err
	}

	crtcs := make([]Crtc, 0, len(resources.crtcs))
	for index, crtcID := range resources.crtcs {
		crtc, err := d.crtc(crtcID, index)
		if err != nil {
			return nil, err
		}
		crtcs = append(crtcs, crtc)
	}

	planes, err := d.planes()
	if err != nil {
		return nil, err
	}

	topology := &Topology{}
	claimed := make(map[uint32]bool)
	for _, connectorID := range resources.connectors {
		connector, err := d.connector(connectorID)
		if err != nil {
			return nil, err
		}
		if !connector.Connected || len(connector.Modes) == 0 {
			continue
		}
		crtc, ok := d.bindCrtc(connector, crtcs, claimed)
		if !ok {
			d.logger.Warn("no crtc available for connector", "connector", connector.ID)
			continue
		}
		claimed[crtc.ID] = true

		output := Output{
			Connector: connector,
			Crtc:      crtc,
			Mode:      chooseMode(connector, crtc),
			Planes:    planesFor(crtc, planes),
		}
		topology.Outputs = append(topology.Outputs, output)
		d.logger.Info("discovered output",
			"connector", connector.ID,
			"crtc", crtc.ID,
			"mode", output.Mode.String(),
			"planes", len(output.Planes),
		)
	}
	return topology, nil
}

func (d *Device) bindCrtc(connector Connector, crtcs []Crtc, claimed map[uint32]bool) (Crtc, bool) {
	if connector.EncoderID == 0 {
		return Crtc{}, false
	}
	encoder := sysGetEncoder{encoderID: connector.EncoderID}
	if err := d.ioctl(ioctlModeGetEncoder, unsafe.Pointer(&encoder)); err != nil {
		d.logger.Warn("reading encoder failed", "encoder", connector.EncoderID, "error", err)
		return Crtc{}, false
	}
	for _, crtc := range crtcs {
		if crtc.ID == encoder.crtcID && !claimed[crtc.ID] {
			return crtc, true
		}
	}
	for _, crtc := range crtcs {
		if encoder.possibleCrtcs&(1<<crtc.Index) != 0 && !claimed[crtc.ID] {
			return crtc, true
		}
	}
	return Crtc{}, false
}

func chooseMode(connector Connector, crtc Crtc) ModeInfo {
	if crtc.ModeValid {
		return crtc.Mode
	}
	for _, mode := range connector.Modes {
		if mode.Preferred() {
			return mode
		}
	}
	return connector.Modes[0]
}

// planesFor returns the planes usable on crtc with the primary plane
// first and cursor planes dropped.
func planesFor(crtc Crtc, planes []Plane) []Plane {
	var primary, overlays []Plane
	for _, plane := range planes {
		if plane.PossibleCrtcs&(1<<crtc.Index) == 0 {
			continue
		}
		switch plane.Type {
		case PlanePrimary:
			if len(primary) == 0 {
				primary = append(primary, plane)
			}
		case PlaneOverlay:
			overlays = append(overlays, plane)
		}
	}
	return append(primary, overlays...)
}

type cardResources struct {
	crtcs      []uint32
	connectors []uint32
}

func (d *Device) resources() (cardResources, error) {
	var counts sysCardResources
	if err := d.ioctl(ioctlModeGetResources, unsafe.Pointer(&counts)); err != nil {
		return cardResources{}, fmt.Errorf("reading card resources: %w", err)
	}
	resources := cardResources{
		crtcs:      make([]uint32, counts.countCrtcs),
		connectors: make([]uint32, counts.countConnectors),
	}
	request := sysCardResources{
		crtcIDPtr:       pointerTo(resources.crtcs),
		connectorIDPtr:  pointerTo(resources.connectors),
		countCrtcs:      counts.countCrtcs,
		countConnectors: counts.countConnectors,
	}
	err := d.ioctl(ioctlModeGetResources, unsafe.Pointer(&request))
	runtime.KeepAlive(resources)
	if err != nil {
		return cardResources{}, fmt.Errorf("reading card resource ids: %w", err)
	}
	// Hotplug between the two calls can shrink the lists.
	resources.crtcs = resources.crtcs[:min(len(resources.crtcs), int(request.countCrtcs))]
	resources.connectors = resources.connectors[:min(len(resources.connectors), int(request.countConnectors))]
	return resources, nil
}

func (d *Device) crtc(crtcID uint32, index int) (Crtc, error) {
	request := sysCrtc{crtcID: crtcID}
	if err := d.ioctl(ioctlModeGetCrtc, unsafe.Pointer(&request)); err != nil {
		return Crtc{}, fmt.Errorf("reading crtc %d: %w", crtcID, err)
	}
	properties, err := d.properties(crtcID, ObjectCRTC)
	if err != nil {
		return Crtc{}, err
	}
	return Crtc{
		ID:            crtcID,
		Index:         index,
		FramebufferID: request.fbID,
		ModeValid:     request.modeValid != 0,
		Mode:          request.mode,
		Properties:    properties,
	}, nil
}

func (d *Device) connector(connectorID uint32) (Connector, error) {
	counts := sysGetConnector{connectorID: connectorID}
	if err := d.ioctl(ioctlModeGetConnector, unsafe.Pointer(&counts)); err != nil {
		return Connector{}, fmt.Errorf("reading connector %d: %w", connectorID, err)
	}
	modes := make([]ModeInfo, counts.countModes)
	request := sysGetConnector{
		connectorID: connectorID,
		modesPtr:    pointerTo(modes),
		countModes:  counts.countModes,
	}
	err := d.ioctl(ioctlModeGetConnector, unsafe.Pointer(&request))
	runtime.KeepAlive(modes)
	if err != nil {
		return Connector{}, fmt.Errorf("reading connector %d modes: %w", connectorID, err)
	}
	properties, err := d.properties(connectorID, ObjectConnector)
	if err != nil {
		return Connector{}, err
	}
	return Connector{
		ID:         connectorID,
		Type:       request.connectorType,
		Connected:  request.connection == connectionConnected,
		EncoderID:  request.encoderID,
		Modes:      modes[:min(len(modes), int(request.countModes))],
		Properties: properties,
	}, nil
}

func (d *Device) planes() ([]Plane, error) {
	var counts sysGetPlaneResources
	if err := d.ioctl(ioctlModeGetPlaneRes, unsafe.Pointer(&counts)); err != nil {
		return nil, fmt.Errorf("reading plane resources: %w", err)
	}
	ids := make([]uint32, counts.countPlanes)
	request := sysGetPlaneResources{planeIDPtr: pointerTo(ids), countPlanes: counts.countPlanes}
	err := d.ioctl(ioctlModeGetPlaneRes, unsafe.Pointer(&request))
	runtime.KeepAlive(ids)
	if err != nil {
		return nil, fmt.Errorf("reading plane ids: %w", err)
	}
	ids = ids[:min(len(ids), int(request.countPlanes))]

	planes := make([]Plane, 0, len(ids))
	for _, planeID := range ids {
		raw := sysGetPlane{planeID: planeID}
		if err := d.ioctl(ioctlModeGetPlane, unsafe.Pointer(&raw)); err != nil {
			return nil, fmt.Errorf("reading plane %d: %w", planeID, err)
		}
		properties, err := d.properties(planeID, ObjectPlane)
		if err != nil {
			return nil, err
		}
		plane := Plane{
			ID:            planeID,
			Type:          PlaneOverlay,
			PossibleCrtcs: raw.possibleCrtcs,
			CrtcID:        raw.crtcID,
			Properties:    properties,
		}
		if property, ok := properties["type"]; ok {
			plane.Type = PlaneType(property.Value)
		}
		planes = append(planes, plane)
	}
	return planes, nil
}

func (d *Device) properties(objectID uint32, objectType ObjectType) (Properties, error) {
	counts := sysObjGetProperties{objID: objectID, objType: uint32(objectType)}
	if err := d.ioctl(ioctlModeObjGetProps, unsafe.Pointer(&counts)); err != nil {
		return nil, fmt.Errorf("reading %s %d properties: %w", objectType, objectID, err)
	}
	ids := make([]uint32, counts.countProps)
	values := make([]uint64, counts.countProps)
	request := sysObjGetProperties{
		propsPtr:      pointerTo(ids),
		propValuesPtr: pointerTo(values),
		countProps:    counts.countProps,
		objID:         objectID,
		objType:       uint32(objectType),
	}
	err := d.ioctl(ioctlModeObjGetProps, unsafe.Pointer(&request))
	runtime.KeepAlive(ids)
	runtime.KeepAlive(values)
	if err != nil {
		return nil, fmt.Errorf("reading %s %d property values: %w", objectType, objectID, err)
	}

	count := min(len(ids), int(request.countProps))
	properties := make(Properties, count)
	for i := 0; i < count; i++ {
		raw := sysGetProperty{propID: ids[i]}
		if err := d.ioctl(ioctlModeGetProperty, unsafe.Pointer(&raw)); err != nil {
			return nil, fmt.Errorf("reading property %d: %w", ids[i], err)
		}
		name := raw.name[:]
		if end := bytes.IndexByte(name, 0); end >= 0 {
			name = name[:end]
		}
		properties[string(name)] = Property{ID: ids[i], Value: values[i]}
	}
	return properties, nil
}
