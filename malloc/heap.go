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
	"fmt"
	"unsafe"

	"github.com/bytedance/gopkg/util/xxhash3"

	"github.com/cloudwego/buddy/internal/bintree"
)

const (
	// headerMagic marks bookkeeping initialized by Init, checked by Attach.
	headerMagic uint32 = 0xB0DD7EE5

	// HeaderSize is the fixed part of the bookkeeping memory.
	HeaderSize = int(unsafe.Sizeof(header{}))
)

// header is stored at the start of the bookkeeping memory.
type header struct {
	magic         uint32
	minBlockShift uint32
	levelCount    uint32
	_             uint32
	arenaBytes    uint64
	minBlockSize  uint64
	nodeCount     uint64
}

// Heap is a binary buddy allocator over a power-of-two arena.
//
// The state of the allocator is one bit per node of a complete binary tree,
// the root covering the whole arena and every leaf covering MinBlockSize bytes.
// A bit is set iff no byte under the node is allocated. A node whose bit is clear
// is either allocated as a whole (both children set, or a leaf)
// or split with something allocated below it.
//
// All state lives in the caller-provided bookkeeping memory; Heap only keeps views of it.
// Heap is not safe for concurrent use, see LockedHeap.
type Heap struct {
	// arena is nil if the heap only hands out offsets.
	arena      []byte
	arenaStart unsafe.Pointer

	bookkeeping []byte
	pages       pages

	// mirrors of the header, read on every operation
	arenaBytes    int
	minBlockSize  int
	minBlockShift uint
	nodeCount     int
	levelCount    int
}

// BookkeepingSize returns the number of bytes of bookkeeping memory needed to manage
// an arena of arenaBytes with blocks no smaller than minBlockSize.
// Both sizes must be powers of two and minBlockSize <= arenaBytes.
func BookkeepingSize(arenaBytes, minBlockSize int) int {
	if err := checkSizes(arenaBytes, minBlockSize); err != nil {
		panic(err.Error())
	}
	nodeCount, _ := bintree.Metrics(arenaBytes / minBlockSize)
	return HeaderSize + numPages(nodeCount)*pageBytes
}

func checkSizes(arenaBytes, minBlockSize int) error {
	if !bintree.IsPow2(arenaBytes) {
		return fmt.Errorf("buddy: arenaBytes must be a power of two, got %d", arenaBytes)
	}
	if !bintree.IsPow2(minBlockSize) {
		return fmt.Errorf("buddy: minBlockSize must be a power of two, got %d", minBlockSize)
	}
	if minBlockSize > arenaBytes {
		return fmt.Errorf("buddy: minBlockSize (%d) must be <= arenaBytes (%d)", minBlockSize, arenaBytes)
	}
	return nil
}

func checkBookkeeping(bookkeeping []byte, need int) error {
	if len(bookkeeping) < need {
		return fmt.Errorf("buddy: bookkeeping must be at least %d bytes, got %d", need, len(bookkeeping))
	}
	if uintptr(unsafe.Pointer(&bookkeeping[0]))&(pageBytes-1) != 0 {
		return fmt.Errorf("buddy: bookkeeping must be %d-byte aligned", pageBytes)
	}
	return nil
}

// Create initializes a heap over arena using bookkeeping, which must hold at least
// BookkeepingSize(arenaBytes, minBlockSize) bytes.
// arena may be nil if only offsets are needed, otherwise it must hold at least arenaBytes.
// Create panics on invalid arguments; use Init to get an error instead.
func Create(arena []byte, arenaBytes, minBlockSize int, bookkeeping []byte) *Heap {
	h := &Heap{}
	if err := h.Init(arena, arenaBytes, minBlockSize, bookkeeping); err != nil {
		panic(err.Error())
	}
	return h
}

// Init is like Create, initializing h in place without any allocation.
func (h *Heap) Init(arena []byte, arenaBytes, minBlockSize int, bookkeeping []byte) error {
	if err := checkSizes(arenaBytes, minBlockSize); err != nil {
		return err
	}
	if arena != nil && len(arena) < arenaBytes {
		return fmt.Errorf("buddy: arena must be at least %d bytes, got %d", arenaBytes, len(arena))
	}
	if err := checkBookkeeping(bookkeeping, BookkeepingSize(arenaBytes, minBlockSize)); err != nil {
		return err
	}

	nodeCount, levelCount := bintree.Metrics(arenaBytes / minBlockSize)
	hdr := (*header)(unsafe.Pointer(&bookkeeping[0]))
	*hdr = header{
		magic:         headerMagic,
		minBlockShift: uint32(bintree.Log2(minBlockSize)),
		levelCount:    uint32(levelCount),
		arenaBytes:    uint64(arenaBytes),
		minBlockSize:  uint64(minBlockSize),
		nodeCount:     uint64(nodeCount),
	}
	h.bind(arena, bookkeeping, hdr)
	h.Reset()
	return nil
}

// Attach returns a heap for bookkeeping memory that was initialized before by Create or Init,
// keeping its allocations. arena must be the same memory (or nil) as when it was created.
func Attach(arena []byte, bookkeeping []byte) (*Heap, error) {
	if err := checkBookkeeping(bookkeeping, HeaderSize); err != nil {
		return nil, err
	}
	hdr := (*header)(unsafe.Pointer(&bookkeeping[0]))
	if hdr.magic != headerMagic {
		return nil, fmt.Errorf("buddy: bookkeeping not initialized, magic %#x", hdr.magic)
	}
	arenaBytes, minBlockSize := int(hdr.arenaBytes), int(hdr.minBlockSize)
	if err := checkSizes(arenaBytes, minBlockSize); err != nil {
		return nil, err
	}
	nodeCount, levelCount := bintree.Metrics(arenaBytes / minBlockSize)
	if int(hdr.nodeCount) != nodeCount || int(hdr.levelCount) != levelCount ||
		int(hdr.minBlockShift) != bintree.Log2(minBlockSize) {
		return nil, fmt.Errorf("buddy: corrupted bookkeeping header")
	}
	if err := checkBookkeeping(bookkeeping, BookkeepingSize(arenaBytes, minBlockSize)); err != nil {
		return nil, err
	}
	if arena != nil && len(arena) < arenaBytes {
		return nil, fmt.Errorf("buddy: arena must be at least %d bytes, got %d", arenaBytes, len(arena))
	}
	h := &Heap{}
	h.bind(arena, bookkeeping, hdr)
	return h, nil
}

func (h *Heap) bind(arena []byte, bookkeeping []byte, hdr *header) {
	h.arenaBytes = int(hdr.arenaBytes)
	h.minBlockSize = int(hdr.minBlockSize)
	h.minBlockShift = uint(hdr.minBlockShift)
	h.nodeCount = int(hdr.nodeCount)
	h.levelCount = int(hdr.levelCount)

	h.bookkeeping = bookkeeping[:h.Overhead():h.Overhead()]
	h.pages = viewPages(h.bookkeeping[HeaderSize:], numPages(h.nodeCount))

	h.arena, h.arenaStart = nil, nil
	if arena != nil {
		h.arena = arena[:h.arenaBytes:h.arenaBytes]
		h.arenaStart = unsafe.Pointer(&h.arena[0])
	}
}

// Destroy drops the references h holds. Arena and bookkeeping memory are left untouched,
// they belong to the caller.
func (h *Heap) Destroy() {
	*h = Heap{}
}

// Reset frees all allocations.
func (h *Heap) Reset() {
	h.pages.setRange(0, len(h.pages)*pageBits, false)
	h.pages.setRange(bintree.Root, h.nodeCount+1, true)
}

// Alloc returns a block of memory with at least size bytes,
// its offset from the arena start being a multiple of align.
// The returned slice has len size and its cap is the block size.
// It returns nil if no block is large enough.
// Alloc panics if the heap was created without an arena, use AllocOffset instead.
func (h *Heap) Alloc(align, size int) []byte {
	if h.arenaStart == nil {
		panic("buddy: heap has no arena")
	}
	off, ok := h.AllocOffset(align, size)
	if !ok {
		return nil
	}
	blockSize := h.blockSizeFor(align, size)
	return unsafe.Slice((*byte)(unsafe.Add(h.arenaStart, off)), blockSize)[:size]
}

// AllocOffset is like Alloc returning the offset of the block in the arena.
// ok is false if no block is large enough.
func (h *Heap) AllocOffset(align, size int) (off int, ok bool) {
	if align < 0 || size < 0 {
		return 0, false
	}
	if align > h.arenaBytes || size > h.arenaBytes {
		return 0, false
	}
	off = h.allocNode(bintree.Root, h.arenaBytes, h.blockSizeFor(align, size))
	return off, off >= 0
}

// blockSizeFor returns the block size serving a request. align and size must be <= arenaBytes.
func (h *Heap) blockSizeFor(align, size int) int {
	if align > size {
		size = align
	}
	if size <= h.minBlockSize {
		return h.minBlockSize
	}
	return bintree.NextPow2(size)
}

// allocNode finds a free block of blockSize under node n of levelSize bytes.
// It returns the arena offset of the block or -1.
func (h *Heap) allocNode(n, levelSize, blockSize int) int {
	if blockSize < levelSize {
		if h.isWhole(n) {
			return -1
		}
		half := levelSize >> 1
		off := h.allocNode(bintree.Left(n), half, blockSize)
		if off < 0 {
			off = h.allocNode(bintree.Right(n), half, blockSize)
		}
		if off >= 0 {
			h.pages.clear(n)
		}
		return off
	}
	if !h.pages.get(n) {
		return -1
	}
	h.pages.clear(n)
	return bintree.LevelOffset(n) * levelSize
}

// Free returns a block to the heap. block must be the slice returned by Alloc,
// resliced or not as long as it still starts at the same address.
// Free of a zero-capacity slice is a no-op. Free panics if the block does not
// belong to this heap or is not allocated.
func (h *Heap) Free(block []byte) {
	if cap(block) == 0 {
		return
	}
	h.FreeOffset(h.offsetOf(block))
}

// FreeOffset returns the block at off to the heap. off must be a value returned by AllocOffset.
func (h *Heap) FreeOffset(off int) {
	h.checkOffset(off)

	// the owner is the lowest cleared node on the path from the leaf to the root
	n := bintree.NodeFromLeafOffset(off>>h.minBlockShift, h.nodeCount)
	for n != 0 && h.pages.get(n) {
		n = bintree.Parent(n)
	}
	if n == 0 || !h.isWhole(n) {
		panic("buddy: double free or invalid block")
	}
	if off != h.nodeOffset(n) {
		panic("buddy: misaligned block")
	}

	h.pages.set(n)
	for n != bintree.Root && h.pages.get(bintree.Sibling(n)) {
		n = bintree.Parent(n)
		h.pages.set(n)
	}
}

// BlockSize returns the size of the allocated block containing the first byte of block.
// It panics if block does not point into an allocated block of this heap.
func (h *Heap) BlockSize(block []byte) int {
	if cap(block) == 0 {
		panic("buddy: block not in arena")
	}
	return h.BlockSizeOffset(h.offsetOf(block))
}

// BlockSizeOffset is like BlockSize for an arena offset.
func (h *Heap) BlockSizeOffset(off int) int {
	h.checkOffset(off)

	leaf := off >> h.minBlockShift
	n, size := bintree.Root, h.arenaBytes
	for bit := bintree.LeafCount(h.nodeCount) >> 1; ; bit >>= 1 {
		if h.pages.get(n) {
			if !bintree.IsLeaf(n, h.nodeCount) && !h.childrenFree(n) {
				panic("buddy: heap corrupted")
			}
			panic("buddy: block not allocated")
		}
		if h.isWhole(n) {
			return size
		}
		if leaf&bit != 0 {
			n = bintree.Right(n)
		} else {
			n = bintree.Left(n)
		}
		size >>= 1
	}
}

// MaxFreeBlockSize returns the size of the largest free block, 0 if the heap is full.
// An allocation of that size or less is guaranteed to succeed.
func (h *Heap) MaxFreeBlockSize() int {
	if h.pages.get(bintree.Root) {
		return h.arenaBytes
	}
	// Below the root, a free block is a set bit with a cleared buddy.
	// Pairs with both bits set are either inside a larger free block
	// or inside a block allocated as a whole.
	for level := 1; level < h.levelCount; level++ {
		first := 1 << level
		if h.pages.hasLonePair(first, first<<1) {
			return h.arenaBytes >> level
		}
	}
	return 0
}

// NumFreeBlocks returns the number of maximal free blocks,
// i.e. free blocks whose buddy or some ancestor's buddy is in use.
func (h *Heap) NumFreeBlocks() int {
	return h.countFree(bintree.Root)
}

func (h *Heap) countFree(n int) int {
	if h.pages.get(n) {
		return 1
	}
	if h.isWhole(n) {
		return 0
	}
	return h.countFree(bintree.Left(n)) + h.countFree(bintree.Right(n))
}

// Available returns the total number of free bytes.
func (h *Heap) Available() int {
	return h.availableUnder(bintree.Root, h.arenaBytes)
}

func (h *Heap) availableUnder(n, size int) int {
	if h.pages.get(n) {
		return size
	}
	if h.isWhole(n) {
		return 0
	}
	return h.availableUnder(bintree.Left(n), size>>1) + h.availableUnder(bintree.Right(n), size>>1)
}

// Verify checks the bitmap for patterns that cannot happen with a consistent heap.
func (h *Heap) Verify() error {
	if h.pages.get(0) {
		return fmt.Errorf("buddy: node 0 marked free")
	}
	for n := bintree.Root; !bintree.IsLeaf(n, h.nodeCount); n++ {
		if h.pages.get(n) && !h.childrenFree(n) {
			return fmt.Errorf("buddy: free node %d has a child in use", n)
		}
	}
	if last := h.nodeCount + 1; last < len(h.pages)*pageBits && h.pages.firstSet(last, len(h.pages)*pageBits) >= 0 {
		return fmt.Errorf("buddy: bits set past node %d", h.nodeCount)
	}
	return nil
}

// Fingerprint returns a hash of the allocation state.
// Two heaps with the same geometry have equal fingerprints iff they have the same blocks in use.
func (h *Heap) Fingerprint() uint64 {
	return xxhash3.Hash(h.pages.bytes())
}

// IsValidOffset checks bounds and alignment of off without looking at the allocation state.
// Use it for untrusted input before FreeOffset to avoid panics.
func (h *Heap) IsValidOffset(off int) bool {
	return off >= 0 && off < h.arenaBytes && off&(h.minBlockSize-1) == 0
}

// MinBlockSize returns the smallest block size.
func (h *Heap) MinBlockSize() int { return h.minBlockSize }

// Arena returns the managed memory, nil for an offset-only heap.
func (h *Heap) Arena() []byte { return h.arena }

// ArenaBytes returns the size of the managed memory.
func (h *Heap) ArenaBytes() int { return h.arenaBytes }

// Overhead returns the bookkeeping bytes used by h, same as BookkeepingSize.
func (h *Heap) Overhead() int {
	return HeaderSize + numPages(h.nodeCount)*pageBytes
}

// NodeCount returns the number of nodes of the block tree.
func (h *Heap) NodeCount() int { return h.nodeCount }

// LevelCount returns the number of block sizes, from ArenaBytes down to MinBlockSize.
func (h *Heap) LevelCount() int { return h.levelCount }

func (h *Heap) childrenFree(n int) bool {
	return h.pages.get(bintree.Left(n)) && h.pages.get(bintree.Right(n))
}

// isWhole reports whether n is allocated as one block.
func (h *Heap) isWhole(n int) bool {
	if h.pages.get(n) {
		return false
	}
	return bintree.IsLeaf(n, h.nodeCount) || h.childrenFree(n)
}

func (h *Heap) nodeSize(n int) int {
	return h.arenaBytes >> bintree.Level(n)
}

func (h *Heap) nodeOffset(n int) int {
	return bintree.LevelOffset(n) * h.nodeSize(n)
}

func (h *Heap) checkOffset(off int) {
	if off < 0 || off >= h.arenaBytes {
		panic("buddy: block not in arena")
	}
}

// offsetOf returns the arena offset of the first byte of block.
func (h *Heap) offsetOf(block []byte) int {
	// read the slice header directly, block may have len 0
	dataPtr := *(*uintptr)(unsafe.Pointer(&block))
	start := uintptr(h.arenaStart)
	if h.arenaStart == nil || dataPtr < start || dataPtr-start >= uintptr(h.arenaBytes) {
		panic("buddy: block not in arena")
	}
	return int(dataPtr - start)
}
