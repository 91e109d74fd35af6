// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hashmap

import (
	"unsafe"

	"github.com/skipifzero/hashmap/alloc"
)

// Option provides an interface to do work on Map while it is being created.
type Option[K comparable, V any] interface {
	apply(m *Map[K, V])
}

type hashOption[K comparable, V any] struct {
	hash HashFunc[K]
}

func (op hashOption[K, V]) apply(m *Map[K, V]) {
	m.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Map[K,V].
func WithHash[K comparable, V any](hash func(key K) uint64) Option[K, V] {
	return hashOption[K, V]{hash}
}

type dbgOption[K comparable, V any] struct {
	dbg alloc.DbgInfo
}

func (op dbgOption[K, V]) apply(m *Map[K, V]) {
	m.dbg = op.dbg
}

// WithDbgInfo is an option to specify the tag passed to the Allocator for
// every buffer the Map allocates.
func WithDbgInfo[K comparable, V any](dbg alloc.DbgInfo) Option[K, V] {
	return dbgOption[K, V]{dbg}
}

// Buffer is the backing storage of a Map: the slot table and the dense key
// and value arrays. All three slices have the same length, the capacity of
// the Map. Handle is opaque to the Map and is returned to the Allocator
// on Free.
type Buffer[K comparable, V any] struct {
	Slots  []Slot
	Keys   []K
	Values []V
	Handle uint64
}

// Allocator specifies an interface for allocating and releasing the memory
// used by a Map. The default allocator utilizes Go's builtin make() and
// allows the GC to reclaim memory.
//
// If the allocator is tracking or manually managing memory then Map.Close
// must be called in order to ensure Free is called for the last buffer.
type Allocator[K comparable, V any] interface {
	// Alloc should return a Buffer whose slices are zeroed and have length
	// capacity. footprint is the size in bytes of the buffer laid out as
	// three 32-byte aligned regions. Returning a short or nil buffer is
	// treated as allocation failure, which is fatal.
	Alloc(dbg alloc.DbgInfo, capacity int, footprint uintptr) Buffer[K, V]

	// Free releases a Buffer previously returned by Alloc.
	Free(b Buffer[K, V])
}

type defaultAllocator[K comparable, V any] struct{}

func (defaultAllocator[K, V]) Alloc(_ alloc.DbgInfo, capacity int, _ uintptr) Buffer[K, V] {
	return Buffer[K, V]{
		Slots:  make([]Slot, capacity),
		Keys:   make([]K, capacity),
		Values: make([]V, capacity),
	}
}

func (defaultAllocator[K, V]) Free(Buffer[K, V]) {
}

// TrackingAllocator allocates like the default allocator and records
// every live buffer in a Tracker.
type TrackingAllocator[K comparable, V any] struct {
	tracker *alloc.Tracker
}

// NewTrackingAllocator returns an allocator recording into t.
func NewTrackingAllocator[K comparable, V any](t *alloc.Tracker) *TrackingAllocator[K, V] {
	return &TrackingAllocator[K, V]{tracker: t}
}

func (a *TrackingAllocator[K, V]) Alloc(dbg alloc.DbgInfo, capacity int, footprint uintptr) Buffer[K, V] {
	b := defaultAllocator[K, V]{}.Alloc(dbg, capacity, footprint)
	b.Handle = a.tracker.Record(dbg, footprint, alloc.DefaultAlignment)
	return b
}

func (a *TrackingAllocator[K, V]) Free(b Buffer[K, V]) {
	a.tracker.Release(b.Handle)
}

type allocatorOption[K comparable, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(m *Map[K, V]) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Map[K,V].
func WithAllocator[K comparable, V any](allocator Allocator[K, V]) Option[K, V] {
	return allocatorOption[K, V]{allocator}
}

// Footprint returns the number of bytes a buffer of the given capacity
// occupies when the slot table, keys and values are laid out back to back,
// each region rounded up to alloc.DefaultAlignment.
func Footprint[K comparable, V any](capacity int) uintptr {
	var k K
	var v V
	n := uintptr(capacity)
	return alloc.RoundUpAligned(n*unsafe.Sizeof(Slot(0)), alloc.DefaultAlignment) +
		alloc.RoundUpAligned(n*unsafe.Sizeof(k), alloc.DefaultAlignment) +
		alloc.RoundUpAligned(n*unsafe.Sizeof(v), alloc.DefaultAlignment)
}
