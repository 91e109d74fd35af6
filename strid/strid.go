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

// Package strid interns strings behind 64-bit identifiers. A StringID is
// cheap to copy, compare and hash, which makes it the key of choice for
// resource tables (textures, meshes, shaders) that are looked up by name.
package strid

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/skipifzero/hashmap"
	"github.com/skipifzero/hashmap/alloc"
)

// StringID identifies an interned string.
type StringID uint64

// Invalid is the zero StringID. No string maps to it.
const Invalid StringID = 0

// ID returns the identifier of s. It does not intern s.
func ID(s string) StringID {
	return fix(xxhash.Sum64String(s))
}

// IDBytes returns the identifier of the string with the contents of b.
func IDBytes(b []byte) StringID {
	return fix(xxhash.Sum64(b))
}

func fix(h uint64) StringID {
	if h == 0 {
		return 1
	}
	return StringID(h)
}

func hashID(id StringID) uint64 {
	return hashmap.IntegerHash(uint64(id))
}

// idKeyer resolves []byte lookups against a map keyed by StringID. The
// identifier is computed from the bytes, so no string is built unless the
// bytes are new.
type idKeyer struct{}

func (idKeyer) HashAlt(b []byte) uint64 {
	return hashID(IDBytes(b))
}

func (idKeyer) EqualAlt(id StringID, b []byte) bool {
	return id == IDBytes(b)
}

func (idKeyer) KeyFromAlt(b []byte) StringID {
	return IDBytes(b)
}

type options struct {
	capacity  int
	allocator hashmap.Allocator[StringID, string]
}

// Option configures a Collection.
type Option func(*options)

// WithCapacity preallocates room for n strings.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithAllocator sets the allocator of the underlying map.
func WithAllocator(a hashmap.Allocator[StringID, string]) Option {
	return func(o *options) {
		o.allocator = a
	}
}

// Collection maps StringIDs back to the strings they were created from. It
// is not goroutine-safe.
type Collection struct {
	strs *hashmap.Map[StringID, string]
}

// NewCollection returns an empty Collection.
func NewCollection(opts ...Option) *Collection {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	mapOpts := []hashmap.Option[StringID, string]{
		hashmap.WithHash[StringID, string](hashID),
		hashmap.WithDbgInfo[StringID, string](alloc.Dbg("strid.Collection")),
	}
	if o.allocator != nil {
		mapOpts = append(mapOpts, hashmap.WithAllocator(o.allocator))
	}
	return &Collection{strs: hashmap.New(o.capacity, mapOpts...)}
}

// Intern stores s and returns its identifier. Interning two different
// strings with the same identifier panics.
func (c *Collection) Intern(s string) StringID {
	id := ID(s)
	if prev, ok := c.strs.Get(id); ok {
		if prev != s {
			panic(fmt.Sprintf("strid: %q and %q collide on id %016x", prev, s, uint64(id)))
		}
		return id
	}
	c.strs.Put(id, s)
	return id
}

// InternBytes is Intern for a byte slice. No string is allocated when the
// contents are already interned.
func (c *Collection) InternBytes(b []byte) StringID {
	if prev := hashmap.GetAltPtr(c.strs, idKeyer{}, b); prev != nil {
		if *prev != string(b) {
			panic(fmt.Sprintf("strid: %q and %q collide on id %016x", *prev, b, uint64(IDBytes(b))))
		}
		return IDBytes(b)
	}
	s := string(b)
	id := ID(s)
	c.strs.Put(id, s)
	return id
}

// Lookup returns the string interned under id.
func (c *Collection) Lookup(id StringID) (string, bool) {
	return c.strs.Get(id)
}

// Contains reports whether the contents of b are interned.
func (c *Collection) Contains(b []byte) bool {
	return hashmap.GetAltPtr(c.strs, idKeyer{}, b) != nil
}

// Forget removes id from the collection and reports whether it was
// present.
func (c *Collection) Forget(id StringID) bool {
	return c.strs.Remove(id)
}

// Len returns the number of interned strings.
func (c *Collection) Len() int {
	return c.strs.Len()
}

// All yields every interned string with its identifier.
func (c *Collection) All(yield func(id StringID, s string) bool) {
	c.strs.All(yield)
}

// Close releases the underlying storage.
func (c *Collection) Close() {
	c.strs.Close()
}

func (id StringID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}
