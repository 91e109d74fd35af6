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

// Package alloc holds the allocation plumbing shared by the containers in
// this module: debug tags attached to every allocation, alignment helpers
// and an instance-based Tracker that records live allocations.
//
// Nothing in this package is global. Every container is handed its
// allocator explicitly and the allocator decides whether (and where) to
// record what it hands out.
package alloc

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// DefaultAlignment is the alignment each region of a container buffer is
// rounded up to.
const DefaultAlignment = 32

// DbgInfo tags an allocation with a static identifier and the source
// location that requested it.
type DbgInfo struct {
	StaticID string
	File     string
	Line     int
}

// Dbg returns a DbgInfo for the caller of Dbg.
func Dbg(staticID string) DbgInfo {
	d := DbgInfo{StaticID: staticID}
	if _, file, line, ok := runtime.Caller(1); ok {
		d.File = filepath.Base(file)
		d.Line = line
	}
	return d
}

func (d DbgInfo) String() string {
	if d.File == "" {
		if d.StaticID == "" {
			return "<unknown>"
		}
		return d.StaticID
	}
	if d.StaticID == "" {
		return fmt.Sprintf("%s:%d", d.File, d.Line)
	}
	return fmt.Sprintf("%s (%s:%d)", d.StaticID, d.File, d.Line)
}

// IsPow2 reports whether x is a power of two. Zero is not.
func IsPow2(x uintptr) bool {
	return x != 0 && x&(x-1) == 0
}

// IsAligned reports whether x is a multiple of alignment, which must be a
// power of two.
func IsAligned(x, alignment uintptr) bool {
	return x&(alignment-1) == 0
}

// RoundUpAligned rounds x up to the next multiple of alignment, which must
// be a power of two.
func RoundUpAligned(x, alignment uintptr) uintptr {
	return (x + alignment - 1) &^ (alignment - 1)
}
