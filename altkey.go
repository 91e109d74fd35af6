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

import "github.com/cespare/xxhash/v2"

// AltKeyer lets a Map[K, V] be queried with keys of an alternate type A,
// typically a borrowed view of an owning K, without building a K for
// every lookup. For any k and a that represent the same logical key,
// EqualAlt(k, a) must be true and HashAlt(a) must equal the map's hash of
// k.
type AltKeyer[K comparable, A any] interface {
	HashAlt(key A) uint64
	EqualAlt(key K, alt A) bool
	// KeyFromAlt builds the owning key. It is only called when PutAlt
	// inserts a new entry.
	KeyFromAlt(alt A) K
}

// GetAltPtr is GetPtr for an alternate key.
func GetAltPtr[K comparable, V, A any, KA AltKeyer[K, A]](m *Map[K, V], keyer KA, key A) *V {
	if m.size == 0 {
		return nil
	}
	_, found := m.findSlot(keyer.HashAlt(key), func(k *K) bool {
		return keyer.EqualAlt(*k, key)
	})
	if found == noSlot {
		return nil
	}
	return &m.buf.Values[m.buf.Slots[found].index()]
}

// GetAlt is Get for an alternate key.
func GetAlt[K comparable, V, A any, KA AltKeyer[K, A]](m *Map[K, V], keyer KA, key A) (value V, ok bool) {
	if v := GetAltPtr(m, keyer, key); v != nil {
		return *v, true
	}
	return value, false
}

// PutAlt is Put for an alternate key. The owning key is only built if key
// is not already present.
func PutAlt[K comparable, V, A any, KA AltKeyer[K, A]](m *Map[K, V], keyer KA, key A, value V) *V {
	m.maybeGrow()
	free, found := m.findSlot(keyer.HashAlt(key), func(k *K) bool {
		return keyer.EqualAlt(*k, key)
	})
	if found != noSlot {
		v := &m.buf.Values[m.buf.Slots[found].index()]
		*v = value
		return v
	}
	return m.insertAt(free, keyer.KeyFromAlt(key), value)
}

// RemoveAlt is Remove for an alternate key.
func RemoveAlt[K comparable, V, A any, KA AltKeyer[K, A]](m *Map[K, V], keyer KA, key A) bool {
	if m.size == 0 {
		return false
	}
	_, found := m.findSlot(keyer.HashAlt(key), func(k *K) bool {
		return keyer.EqualAlt(*k, key)
	})
	if found == noSlot {
		return false
	}
	m.removeAt(found)
	return true
}

// BytesKeyer looks up string keys by []byte. The map must be created with
// WithHash(StringHash).
type BytesKeyer struct{}

func (BytesKeyer) HashAlt(key []byte) uint64 {
	return xxhash.Sum64(key)
}

func (BytesKeyer) EqualAlt(key string, alt []byte) bool {
	return key == string(alt)
}

func (BytesKeyer) KeyFromAlt(alt []byte) string {
	return string(alt)
}
