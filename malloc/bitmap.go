/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package malloc

import (
	"math/bits"
	"unsafe"
)

const (
	pageBits  = 64
	pageShift = 6
	pageMask  = pageBits - 1
	pageBytes = 8
)

// pages is the tree bitmap, one bit per node index, packed into 64-bit words.
// It always aliases caller-provided bookkeeping memory.
type pages []uint64

// numPages returns the words needed for node indexes [0, nodeCount].
func numPages(nodeCount int) int {
	return (nodeCount + 1 + pageMask) >> pageShift
}

// viewPages reinterprets b as words. b must be 8-byte aligned.
func viewPages(b []byte, n int) pages {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), n)
}

func (p pages) get(n int) bool {
	return p[n>>pageShift]&(1<<(uint(n)&pageMask)) != 0
}

func (p pages) set(n int) {
	p[n>>pageShift] |= 1 << (uint(n) & pageMask)
}

func (p pages) clear(n int) {
	p[n>>pageShift] &^= 1 << (uint(n) & pageMask)
}

// rangeMask returns the bits of word i that fall in [from, to).
func rangeMask(i, from, to int) uint64 {
	mask := ^uint64(0)
	if i == from>>pageShift {
		mask &= ^uint64(0) << (uint(from) & pageMask)
	}
	if i == (to-1)>>pageShift {
		mask &= ^uint64(0) >> (pageMask - (uint(to-1) & pageMask))
	}
	return mask
}

// setRange marks bits [from, to) as set (set=true) or clear (set=false).
func (p pages) setRange(from, to int, set bool) {
	if from >= to {
		return
	}
	last := (to - 1) >> pageShift
	for i := from >> pageShift; i <= last; i++ {
		mask := rangeMask(i, from, to)
		if set {
			p[i] |= mask
		} else {
			p[i] &^= mask
		}
	}
}

// firstSet returns the first set bit in [from, to), or -1.
// Whole words are tested at once, only the first non-zero word is inspected bit by bit.
func (p pages) firstSet(from, to int) int {
	if from >= to {
		return -1
	}
	last := (to - 1) >> pageShift
	for i := from >> pageShift; i <= last; i++ {
		if w := p[i] & rangeMask(i, from, to); w != 0 {
			return i<<pageShift + bits.TrailingZeros64(w)
		}
	}
	return -1
}

// evenBits selects the first bit of every sibling pair.
const evenBits = 0x5555555555555555

// hasLonePair reports whether some sibling pair in [from, to) has exactly one bit set.
// from must be even, pairs never straddle words.
func (p pages) hasLonePair(from, to int) bool {
	if from >= to {
		return false
	}
	last := (to - 1) >> pageShift
	for i := from >> pageShift; i <= last; i++ {
		w := p[i] & rangeMask(i, from, to)
		if (w^w>>1)&evenBits != 0 {
			return true
		}
	}
	return false
}

// bytes returns the raw memory behind p.
func (p pages) bytes() []byte {
	if len(p) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&p[0])), len(p)*pageBytes)
}
