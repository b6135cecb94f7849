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

// Package bintree implements index arithmetic over an implicit complete binary tree
// stored in level order: node 1 is the root and node n has children 2n and 2n+1.
//
// Index 0 is never a tree node. Every level of the tree maps to one power-of-two
// block size, the root covering the whole arena.
package bintree

import "math/bits"

// Root is the index of the root node.
const Root = 1

// Metrics returns the node count and level count of a complete tree with leafCount leaves.
// leafCount must be a power of two.
func Metrics(leafCount int) (nodeCount, levelCount int) {
	return 2*leafCount - 1, Log2(leafCount) + 1
}

// LeafCount is the inverse of Metrics for the node count.
func LeafCount(nodeCount int) int {
	return (nodeCount + 1) >> 1
}

// Left returns the left child of n.
func Left(n int) int { return n << 1 }

// Right returns the right child of n.
func Right(n int) int { return n<<1 | 1 }

// Parent returns the parent of n. Parent(Root) is 0.
func Parent(n int) int { return n >> 1 }

// Sibling returns the buddy of n, the other child of Parent(n).
func Sibling(n int) int { return n ^ 1 }

// Level returns the depth of n, 0 for the root.
func Level(n int) int {
	return bits.Len(uint(n)) - 1
}

// LevelFirst returns the index of the leftmost node on the level of n.
func LevelFirst(n int) int {
	return 1 << Level(n)
}

// LevelOffset returns the position of n among the nodes of its level.
// Multiplying it by the level's block size gives the byte offset of the block.
func LevelOffset(n int) int {
	return n - LevelFirst(n)
}

// IsLeaf reports whether n is on the last level of a tree with nodeCount nodes.
func IsLeaf(n, nodeCount int) bool {
	return Left(n) > nodeCount
}

// NodeFromLeafOffset maps offset, counted in leaves from the left, to the index of the leaf.
// It descends from the root taking the offset bits from the most significant one,
// stopping early if the tree is not populated that deep.
func NodeFromLeafOffset(offset, nodeCount int) int {
	n := Root
	for bit := LeafCount(nodeCount) >> 1; bit > 0; bit >>= 1 {
		next := Left(n)
		if offset&bit != 0 {
			next = Right(n)
		}
		if next > nodeCount {
			break
		}
		n = next
	}
	return n
}

// IsPow2 reports whether v is a positive power of two.
func IsPow2(v int) bool {
	return v > 0 && v&(v-1) == 0
}

// Log2 returns floor(log2(v)) for v > 0.
func Log2(v int) int {
	return bits.Len(uint(v)) - 1
}

// NextPow2 rounds v up to a power of two. Values <= 1 give 1.
func NextPow2(v int) int {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(v-1))
}
