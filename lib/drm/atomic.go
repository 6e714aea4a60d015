// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drm

// AtomicRequest accumulates property assignments for one atomic
// commit. Assignments are grouped per object in first-seen order, which
// is the layout the kernel expects.
type AtomicRequest struct {
	objects []atomicObject
	index   map[uint32]int
}

type atomicObject struct {
	id         uint32
	properties []uint32
	values     []uint64
}

// NewAtomicRequest returns an empty request.
func NewAtomicRequest() *AtomicRequest {
	return &AtomicRequest{index: make(map[uint32]int)}
}

// Add sets propertyID on objectID to value, replacing any earlier
// assignment of the same property.
func (r *AtomicRequest) Add(objectID, propertyID uint32, value uint64) {
	position, ok := r.index[objectID]
	if !ok {
		position = len(r.objects)
		r.index[objectID] = position
		r.objects = append(r.objects, atomicObject{id: objectID})
	}
	object := &r.objects[position]
	for i, property := range object.properties {
		if property == propertyID {
			object.values[i] = value
			return
		}
	}
	object.properties = append(object.properties, propertyID)
	object.values = append(object.values, value)
}

// Value returns the value assigned to propertyID on objectID.
func (r *AtomicRequest) Value(objectID, propertyID uint32) (uint64, bool) {
	position, ok := r.index[objectID]
	if !ok {
		return 0, false
	}
	object := r.objects[position]
	for i, property := range object.properties {
		if property == propertyID {
			return object.values[i], true
		}
	}
	return 0, false
}

// Len returns the number of property assignments.
func (r *AtomicRequest) Len() int {
	total := 0
	for _, object := range r.objects {
		total += len(object.properties)
	}
	return total
}

// flatten produces the four parallel arrays of struct drm_mode_atomic.
func (r *AtomicRequest) flatten() (objects, counts, properties []uint32, values []uint64) {
	for _, object := range r.objects {
		objects = append(objects, object.id)
		counts = append(counts, uint32(len(object.properties)))
		properties = append(properties, object.properties...)
		values = append(values, object.values...)
	}
	return objects, counts, properties, values
}
