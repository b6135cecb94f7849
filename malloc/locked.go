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

import "sync"

// LockedHeap serializes access to a Heap with a mutex.
// For less contention, use one heap per goroutine instead.
type LockedHeap struct {
	mu sync.Mutex
	h  *Heap
}

// NewLockedHeap wraps h. h must not be used directly afterwards.
func NewLockedHeap(h *Heap) *LockedHeap {
	return &LockedHeap{h: h}
}

// Alloc ...
func (l *LockedHeap) Alloc(align, size int) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.h.Alloc(align, size)
}

// AllocOffset ...
func (l *LockedHeap) AllocOffset(align, size int) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.h.AllocOffset(align, size)
}

// Free ...
func (l *LockedHeap) Free(block []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.h.Free(block)
}

// FreeOffset ...
func (l *LockedHeap) FreeOffset(off int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.h.FreeOffset(off)
}

// BlockSize ...
func (l *LockedHeap) BlockSize(block []byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.h.BlockSize(block)
}

// MaxFreeBlockSize ...
func (l *LockedHeap) MaxFreeBlockSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.h.MaxFreeBlockSize()
}

// NumFreeBlocks ...
func (l *LockedHeap) NumFreeBlocks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.h.NumFreeBlocks()
}

// Available ...
func (l *LockedHeap) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.h.Available()
}

// Reset ...
func (l *LockedHeap) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.h.Reset()
}

// Do runs f with exclusive access to the heap, for sequences that must not interleave.
func (l *LockedHeap) Do(f func(h *Heap)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f(l.h)
}
