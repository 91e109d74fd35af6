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

import "fmt"

// Slot is one entry of the slot table. The top two bits hold the slot
// state and the low 30 bits hold the position of the entry in the dense
// key and value arrays:
//
//	    empty: 0 0 0 0 ... 0
//	tombstone: 0 1 1 1 ... 1
//	 occupied: 1 0 i i ... i  // i is the dense index
//
// A zeroed slot table is a table of empty slots.
type Slot uint32

type slotState uint32

const (
	slotEmpty     slotState = 0
	slotTombstone slotState = 1
	slotOccupied  slotState = 2

	slotStateShift = 30
	slotIndexMask  = 1<<slotStateShift - 1

	// noSlot is returned by findSlot when there is no matching or free
	// slot.
	noSlot = ^uint32(0)
)

// makeSlot packs state and index. An index that does not fit in 30 bits is
// silently truncated.
func makeSlot(state slotState, index uint32) Slot {
	return Slot((uint32(state)&0x3)<<slotStateShift | index&slotIndexMask)
}

func (s Slot) state() slotState {
	return slotState(uint32(s) >> slotStateShift)
}

func (s Slot) index() uint32 {
	return uint32(s) & slotIndexMask
}

func (s Slot) String() string {
	switch s.state() {
	case slotEmpty:
		return "empty"
	case slotTombstone:
		return "tombstone"
	case slotOccupied:
		return fmt.Sprintf("occupied(%d)", s.index())
	default:
		return fmt.Sprintf("invalid(%08x)", uint32(s))
	}
}
