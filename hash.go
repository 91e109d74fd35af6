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
	"github.com/cespare/xxhash/v2"
	"github.com/dolthub/maphash"
	"golang.org/x/exp/constraints"
)

// HashFunc hashes a key to 64 bits. Keys that compare equal must hash
// equal. The quality of the distribution only affects performance.
type HashFunc[K any] func(key K) uint64

// defaultHash returns the runtime's hash function for K with a fresh
// random seed.
func defaultHash[K comparable]() HashFunc[K] {
	return maphash.NewHasher[K]().Hash
}

// IntegerHash is an unseeded hash for integer keys using the splitmix64
// finalizer. Sequential keys spread evenly over the slot table.
func IntegerHash[K constraints.Integer](key K) uint64 {
	x := uint64(key)
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// StringHash hashes a string with xxhash. It is consistent with
// BytesKeyer.HashAlt, so a Map[string, V] built with WithHash(StringHash)
// can be queried by []byte without allocating.
func StringHash(key string) uint64 {
	return xxhash.Sum64String(key)
}
