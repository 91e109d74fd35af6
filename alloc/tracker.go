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

package alloc

import (
	"fmt"
	"sort"
	"sync"
)

// Allocation describes a live allocation recorded by a Tracker.
type Allocation struct {
	Handle    uint64
	Dbg       DbgInfo
	Size      uintptr
	Alignment uintptr
}

// Stats summarizes the activity of a Tracker.
type Stats struct {
	Allocs    int
	Frees     int
	LiveBytes uintptr
	PeakBytes uintptr
}

// Tracker records allocations handed out by an allocator so that leaks and
// peak usage can be inspected. A Tracker may be shared by allocators used
// from different goroutines.
type Tracker struct {
	mu    sync.Mutex
	next  uint64
	live  map[uint64]Allocation
	stats Stats
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{live: make(map[uint64]Allocation)}
}

// Record registers an allocation of size bytes and returns the handle to
// pass to Release. Handles are never zero.
func (t *Tracker) Record(dbg DbgInfo, size, alignment uintptr) uint64 {
	if !IsPow2(alignment) {
		panic(fmt.Sprintf("alloc: %s: alignment %d is not a power of two", dbg, alignment))
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	h := t.next
	t.live[h] = Allocation{Handle: h, Dbg: dbg, Size: size, Alignment: alignment}
	t.stats.Allocs++
	t.stats.LiveBytes += size
	if t.stats.LiveBytes > t.stats.PeakBytes {
		t.stats.PeakBytes = t.stats.LiveBytes
	}
	return h
}

// Release forgets the allocation identified by handle. Releasing handle 0
// is a no-op. Releasing a handle this Tracker never issued, or one that was
// already released, panics.
func (t *Tracker) Release(handle uint64) {
	if handle == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.live[handle]
	if !ok {
		panic(fmt.Sprintf("alloc: release of unknown allocation %d", handle))
	}
	delete(t.live, handle)
	t.stats.Frees++
	t.stats.LiveBytes -= a.Size
}

// Stats returns a snapshot of the tracker's counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Live returns the outstanding allocations ordered by handle.
func (t *Tracker) Live() []Allocation {
	t.mu.Lock()
	r := make([]Allocation, 0, len(t.live))
	for _, a := range t.live {
		r = append(r, a)
	}
	t.mu.Unlock()

	sort.Slice(r, func(i, j int) bool {
		return r[i].Handle < r[j].Handle
	})
	return r
}
