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

// Package hashmap implements an open-addressing hash map that keeps its
// entries in dense arrays.
//
// # Layout
//
// A Map is backed by three parallel arrays of the same length, the
// capacity: the slot table, the keys and the values. The slot table is
// indexed by hash(key) % capacity and is probed linearly. Each slot is a
// single uint32 holding a 2-bit state (empty, tombstone, occupied) and a
// 30-bit index into the key and value arrays. The keys and values
// themselves are not stored at their slot position; they are packed at the
// front of their arrays so that entries [0, Len()) are always live. This
// separation of slot and index keeps the slot table small (4 bytes per
// slot regardless of K and V) and makes iteration a walk over Len()
// entries instead of over the whole table.
//
// Because two bits are reserved for the state, a Map never has more than
// MaxCapacity slots.
//
// # Probing
//
// A lookup starts at base = hash(key) % capacity and walks base, base+1,
// ... wrapping around. Occupied slots whose key does not match and
// tombstones are skipped; the walk ends at the first empty slot or at the
// matching occupied slot. The first non-occupied slot seen along the way is
// remembered so that an insertion reuses a tombstone when one is on the
// path. A table without any empty slot is scanned entirely, which the
// growth policy below prevents for insertions.
//
// # Growth
//
// Tombstones count as load. Before every insertion the map checks whether
// size+tombstones has reached 80% of the capacity and if so reallocates
// with capacity ceil((capacity+1)*1.75). Reallocation re-inserts every live
// entry into a fresh buffer, dropping all tombstones and repacking the
// dense arrays from 0. Removal never reallocates.
//
// # Removal
//
// Removing the entry at dense index i moves the last entry (index Len()-1)
// into position i and re-points the slot of the moved entry, so the arrays
// stay dense. The removed key's slot becomes a tombstone. As a consequence
// iteration order is insertion order only until the first removal.
//
// A Map is NOT goroutine-safe.
package hashmap

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"strings"

	"github.com/skipifzero/hashmap/alloc"
)

const (
	debug = false

	// MinCapacity is the smallest slot table a Map allocates.
	MinCapacity = 64
	// MaxCapacity is the largest slot table a Map can address.
	MaxCapacity = 1<<30 - 1

	maxOccupiedRehashFactor = 0.80
	growRate                = 1.75
)

// Map is an unordered map from keys to values with Put, Get, Remove, and All
// operations. By default, a Map[K,V] uses the same hash function as Go's
// builtin map[K]V with a per-map random seed, though a different hash
// function can be specified using the WithHash option.
//
// The zero value is an empty map ready to use with the default hash and
// allocator.
type Map[K comparable, V any] struct {
	hash      HashFunc[K]
	allocator Allocator[K, V]
	dbg       alloc.DbgInfo
	// buf.Slots, buf.Keys and buf.Values all have length capacity. Only
	// buf.Keys[:size] and buf.Values[:size] hold live entries; the rest
	// are zero.
	buf Buffer[K, V]
	// The number of live entries.
	size uint32
	// The length of the slot table. Either 0 or >= MinCapacity.
	capacity uint32
	// The number of slots in the tombstone state.
	tombstones uint32
}

// New constructs a new Map with the specified initial capacity. If
// initialCapacity is 0 the map will start out with zero capacity and will
// allocate on the first insert.
func New[K comparable, V any](initialCapacity int, options ...Option[K, V]) *Map[K, V] {
	m := &Map[K, V]{}
	m.Init(initialCapacity, options...)
	return m
}

// Init initializes a Map with the specified initial capacity, releasing
// any buffer it held before.
func (m *Map[K, V]) Init(initialCapacity int, options ...Option[K, V]) {
	m.Close()
	*m = Map[K, V]{
		hash:      defaultHash[K](),
		allocator: defaultAllocator[K, V]{},
		dbg:       alloc.DbgInfo{StaticID: "hashmap"},
	}

	for _, op := range options {
		op.apply(m)
	}

	m.Rehash(initialCapacity)
	m.checkInvariants()
}

// initDefaults makes the zero value usable.
func (m *Map[K, V]) initDefaults() {
	if m.hash == nil {
		m.hash = defaultHash[K]()
	}
	if m.allocator == nil {
		m.allocator = defaultAllocator[K, V]{}
	}
}

// Close releases all entries and returns the buffer to the allocator. It
// is unnecessary to close a map using the default allocator. Close is
// idempotent, and a closed map is empty and reusable with the default
// allocator.
func (m *Map[K, V]) Close() {
	m.Clear()
	if m.capacity > 0 {
		m.allocator.Free(m.buf)
	}
	m.buf = Buffer[K, V]{}
	m.capacity = 0
	m.allocator = nil
}

// Clear removes all entries but keeps the allocated capacity.
func (m *Map[K, V]) Clear() {
	if m.capacity == 0 {
		return
	}
	clear(m.buf.Keys[:m.size])
	clear(m.buf.Values[:m.size])
	clear(m.buf.Slots)
	m.size = 0
	m.tombstones = 0
	m.checkInvariants()
}

// Clone returns a copy of the map backed by a new buffer from the same
// allocator. Keys and values are copied by assignment. The clone has no
// tombstones and keeps the dense order of the original.
func (m *Map[K, V]) Clone() *Map[K, V] {
	c := &Map[K, V]{hash: m.hash, allocator: m.allocator, dbg: m.dbg}
	if m.capacity == 0 {
		return c
	}
	c.rehash(m.capacity, m.dbg)
	for i := uint32(0); i < m.size; i++ {
		c.Put(m.buf.Keys[i], m.buf.Values[i])
	}
	return c
}

// Put inserts an entry into the map, overwriting the value if an entry with
// the same key already exists. It returns a pointer to the stored value
// which is valid until the next Put, Remove, Rehash or Clear.
func (m *Map[K, V]) Put(key K, value V) *V {
	m.maybeGrow()
	free, found := m.findSlot(m.hash(key), func(k *K) bool {
		return *k == key
	})
	if debug {
		fmt.Printf("put(%v): free=%d found=%d\n", key, int32(free), int32(found))
	}
	if found != noSlot {
		v := &m.buf.Values[m.buf.Slots[found].index()]
		*v = value
		return v
	}
	return m.insertAt(free, key, value)
}

// GetOrPut returns a pointer to the value for key, inserting the zero value
// first if key is absent.
func (m *Map[K, V]) GetOrPut(key K) *V {
	if v := m.GetPtr(key); v != nil {
		return v
	}
	var zero V
	return m.Put(key, zero)
}

// Get retrieves the value from the map for the specified key, return ok=false
// if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	if v := m.GetPtr(key); v != nil {
		return *v, true
	}
	return value, false
}

// GetPtr returns a pointer to the value stored for key, or nil if the key
// is not present. The pointer is valid until the next Put, Remove, Rehash
// or Clear.
func (m *Map[K, V]) GetPtr(key K) *V {
	if m.size == 0 {
		return nil
	}
	_, found := m.findSlot(m.hash(key), func(k *K) bool {
		return *k == key
	})
	if found == noSlot {
		return nil
	}
	return &m.buf.Values[m.buf.Slots[found].index()]
}

// Remove deletes the entry corresponding to the specified key from the map
// and reports whether it was present. Remove never reallocates.
func (m *Map[K, V]) Remove(key K) bool {
	if m.size == 0 {
		return false
	}
	_, found := m.findSlot(m.hash(key), func(k *K) bool {
		return *k == key
	})
	if found == noSlot {
		return false
	}
	m.removeAt(found)
	return true
}

// Rehash reallocates the map with room for at least newCapacity slots,
// dropping all tombstones. The capacity never shrinks and is at least
// MinCapacity. Rehash is a no-op when newCapacity <= 0, or when the
// capacity would not change and there are no tombstones to drop.
func (m *Map[K, V]) Rehash(newCapacity int) {
	if newCapacity <= 0 {
		return
	}
	if newCapacity > MaxCapacity {
		fatalf("capacity %d exceeds MaxCapacity (%s)", newCapacity, m.dbg)
	}
	m.rehash(uint32(newCapacity), m.dbg)
}

// All calls yield sequentially for each key and value present in the map,
// in the order of the dense arrays. If yield returns false, iteration
// stops. Iteration covers exactly Len() entries. The map must not be
// mutated during iteration.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	keys, values := m.buf.Keys[:m.size], m.buf.Values[:m.size]
	for i := range keys {
		if !yield(keys[i], values[i]) {
			return
		}
	}
}

// AllPtr is like All but yields a pointer to each value so it can be
// updated in place.
func (m *Map[K, V]) AllPtr(yield func(key K, value *V) bool) {
	keys, values := m.buf.Keys[:m.size], m.buf.Values[:m.size]
	for i := range keys {
		if !yield(keys[i], &values[i]) {
			return
		}
	}
}

// Keys returns an iterator over the keys in dense order.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for _, k := range m.buf.Keys[:m.size] {
			if !yield(k) {
				return
			}
		}
	}
}

// Values returns an iterator over the values in dense order.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, v := range m.buf.Values[:m.size] {
			if !yield(v) {
				return
			}
		}
	}
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return int(m.size)
}

// Cap returns the number of slots in the slot table.
func (m *Map[K, V]) Cap() int {
	return int(m.capacity)
}

// Tombstones returns the number of slots left behind by Remove that have
// not yet been reclaimed by a rehash.
func (m *Map[K, V]) Tombstones() int {
	return int(m.tombstones)
}

// LoadFactor returns (Len()+Tombstones())/Cap(), or 0 for an unallocated
// map.
func (m *Map[K, V]) LoadFactor() float64 {
	if m.capacity == 0 {
		return 0
	}
	return float64(m.size+m.tombstones) / float64(m.capacity)
}

// Footprint returns the size in bytes of the map's buffer.
func (m *Map[K, V]) Footprint() uintptr {
	return Footprint[K, V](int(m.capacity))
}

func (m *Map[K, V]) String() string {
	return m.debugString()
}

// maybeGrow reallocates before an insertion if the load, tombstones
// included, has reached maxOccupiedRehashFactor. Checking before rather than
// after guarantees that the probe of the insertion finds a free slot.
func (m *Map[K, V]) maybeGrow() {
	m.initDefaults()
	if m.size+m.tombstones >= uint32(float64(m.capacity)*maxOccupiedRehashFactor) {
		newCapacity := math.Ceil(float64(m.capacity+1) * growRate)
		if newCapacity > MaxCapacity {
			fatalf("cannot grow beyond MaxCapacity: size=%d tombstones=%d capacity=%d (%s)",
				m.size, m.tombstones, m.capacity, m.dbg)
		}
		m.rehash(uint32(newCapacity), m.dbg)
	}
}

// findSlot probes the slot table for the key with hash h. match is called
// with each candidate key of an occupied slot on the probe path. It
// returns the first non-occupied slot on the path and the slot whose key
// matched, either of which may be noSlot.
func (m *Map[K, V]) findSlot(h uint64, match func(k *K) bool) (freeIdx, foundIdx uint32) {
	if invariants && m.capacity == 0 {
		panic("invariant failed: findSlot on a map without capacity")
	}

	freeIdx, foundIdx = noSlot, noSlot
	base := uint32(h % uint64(m.capacity))
	for i := uint32(0); i < m.capacity; i++ {
		idx := base + i
		if idx >= m.capacity {
			idx -= m.capacity
		}
		s := m.buf.Slots[idx]
		if s.state() != slotOccupied {
			if freeIdx == noSlot {
				freeIdx = idx
			}
			// An empty slot terminates every probe chain passing through
			// it. Tombstones do not.
			if s.state() == slotEmpty {
				return freeIdx, foundIdx
			}
			continue
		}
		if match(&m.buf.Keys[s.index()]) {
			return freeIdx, idx
		}
	}
	return freeIdx, foundIdx
}

// insertAt stores a key known not to be in the map, using the free slot
// returned by findSlot.
func (m *Map[K, V]) insertAt(free uint32, key K, value V) *V {
	if free == noSlot {
		// Unreachable as long as maybeGrow ran first.
		fatalf("no free slot: size=%d tombstones=%d capacity=%d (%s)",
			m.size, m.tombstones, m.capacity, m.dbg)
	}
	if m.buf.Slots[free].state() == slotTombstone {
		m.tombstones--
	}
	i := m.size
	m.buf.Slots[free] = makeSlot(slotOccupied, i)
	m.buf.Keys[i] = key
	m.buf.Values[i] = value
	m.size++
	m.checkInvariants()
	return &m.buf.Values[i]
}

// removeAt removes the entry referenced by the occupied slot at slotIdx.
func (m *Map[K, V]) removeAt(slotIdx uint32) {
	i := m.buf.Slots[slotIdx].index()
	last := m.size - 1

	if i != last {
		// Move the last entry into the hole and re-point its slot.
		lastKey := m.buf.Keys[last]
		_, lastSlot := m.findSlot(m.hash(lastKey), func(k *K) bool {
			return *k == lastKey
		})
		if invariants && lastSlot == noSlot {
			panic(fmt.Sprintf("invariant failed: last entry %v not found\n%s", lastKey, m.debugString()))
		}
		m.buf.Keys[i], m.buf.Keys[last] = m.buf.Keys[last], m.buf.Keys[i]
		m.buf.Values[i], m.buf.Values[last] = m.buf.Values[last], m.buf.Values[i]
		m.buf.Slots[lastSlot] = makeSlot(slotOccupied, i)
	}

	var k K
	var v V
	m.buf.Keys[last] = k
	m.buf.Values[last] = v
	m.buf.Slots[slotIdx] = makeSlot(slotTombstone, slotIndexMask)
	m.size--
	m.tombstones++

	if debug {
		fmt.Printf("remove: slot=%d index=%d size=%d tombstones=%d\n",
			slotIdx, i, m.size, m.tombstones)
	}
	m.checkInvariants()
}

// rehash allocates a buffer of newCapacity slots and re-inserts every live
// entry into it in dense order.
func (m *Map[K, V]) rehash(newCapacity uint32, dbg alloc.DbgInfo) {
	if newCapacity == 0 {
		return
	}
	if newCapacity < MinCapacity {
		newCapacity = MinCapacity
	}
	if newCapacity < m.capacity {
		newCapacity = m.capacity
	}
	if newCapacity == m.capacity && m.tombstones == 0 {
		return
	}
	m.initDefaults()

	n := int(newCapacity)
	buf := m.allocator.Alloc(dbg, n, Footprint[K, V](n))
	if len(buf.Slots) < n || len(buf.Keys) < n || len(buf.Values) < n {
		fatalf("allocation of %d slots failed (%s)", n, dbg)
	}

	if l := Logger(); l.Enabled(context.Background(), slog.LevelDebug) {
		l.Debug("hashmap: rehash",
			slog.Int("old_capacity", int(m.capacity)),
			slog.Int("new_capacity", n),
			slog.Int("size", int(m.size)),
			slog.Int("tombstones", int(m.tombstones)),
			slog.String("dbg", dbg.String()))
	}

	tmp := Map[K, V]{
		hash:      m.hash,
		allocator: m.allocator,
		dbg:       m.dbg,
		buf: Buffer[K, V]{
			Slots:  buf.Slots[:n],
			Keys:   buf.Keys[:n],
			Values: buf.Values[:n],
			Handle: buf.Handle,
		},
		capacity: newCapacity,
	}
	for i := uint32(0); i < m.size; i++ {
		tmp.Put(m.buf.Keys[i], m.buf.Values[i])
	}

	if m.capacity > 0 {
		clear(m.buf.Keys[:m.size])
		clear(m.buf.Values[:m.size])
		m.allocator.Free(m.buf)
	}
	*m = tmp
	m.checkInvariants()
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		if m.capacity != 0 && m.capacity < MinCapacity {
			panic(fmt.Sprintf("invariant failed: capacity %d below minimum\n%s", m.capacity, m.debugString()))
		}
		if m.size+m.tombstones > m.capacity {
			panic(fmt.Sprintf("invariant failed: size=%d + tombstones=%d > capacity=%d\n%s",
				m.size, m.tombstones, m.capacity, m.debugString()))
		}

		// Count slot states and verify every occupied slot points at a
		// distinct live entry.
		var occupied, tombstones uint32
		seen := make([]bool, m.size)
		for i := uint32(0); i < m.capacity; i++ {
			s := m.buf.Slots[i]
			switch s.state() {
			case slotEmpty:
			case slotTombstone:
				tombstones++
			case slotOccupied:
				idx := s.index()
				if idx >= m.size {
					panic(fmt.Sprintf("invariant failed: slot(%d): index %d >= size %d\n%s",
						i, idx, m.size, m.debugString()))
				}
				if seen[idx] {
					panic(fmt.Sprintf("invariant failed: slot(%d): index %d referenced twice\n%s",
						i, idx, m.debugString()))
				}
				seen[idx] = true
				occupied++
			default:
				panic(fmt.Sprintf("invariant failed: slot(%d): invalid state %08x", i, uint32(s)))
			}
		}
		if occupied != m.size {
			panic(fmt.Sprintf("invariant failed: found %d occupied slots, but size is %d\n%s",
				occupied, m.size, m.debugString()))
		}
		if tombstones != m.tombstones {
			panic(fmt.Sprintf("invariant failed: found %d tombstones, but expected %d\n%s",
				tombstones, m.tombstones, m.debugString()))
		}

		// For every live entry, verify probing from its hash finds the slot
		// pointing at it.
		for i := uint32(0); i < m.size; i++ {
			key := m.buf.Keys[i]
			_, found := m.findSlot(m.hash(key), func(k *K) bool {
				return *k == key
			})
			if found == noSlot || m.buf.Slots[found].index() != i {
				panic(fmt.Sprintf("invariant failed: entry(%d): %v not found [h=%016x]\n%s",
					i, key, m.hash(key), m.debugString()))
			}
		}
	}
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  size=%d  tombstones=%d\n", m.capacity, m.size, m.tombstones)
	for i := uint32(0); i < m.capacity; i++ {
		switch s := m.buf.Slots[i]; s.state() {
		case slotEmpty:
			continue
		case slotOccupied:
			if idx := s.index(); idx < m.size {
				fmt.Fprintf(&buf, "  %4d: %v [index=%d]\n", i, m.buf.Keys[idx], idx)
			} else {
				fmt.Fprintf(&buf, "  %4d: <dangling index=%d>\n", i, idx)
			}
		default:
			fmt.Fprintf(&buf, "  %4d: %s\n", i, s)
		}
	}
	return buf.String()
}
