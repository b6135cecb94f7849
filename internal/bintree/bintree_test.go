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

package bintree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	tests := []struct {
		leaves     int
		nodes      int
		levels     int
		leafsAgain int
	}{
		{1, 1, 1, 1},
		{2, 3, 2, 2},
		{8, 15, 4, 8},
		{1 << 20, 1<<21 - 1, 21, 1 << 20},
	}
	for _, tt := range tests {
		nodes, levels := Metrics(tt.leaves)
		assert.Equal(t, tt.nodes, nodes, "leaves=%d", tt.leaves)
		assert.Equal(t, tt.levels, levels, "leaves=%d", tt.leaves)
		assert.Equal(t, tt.leafsAgain, LeafCount(nodes))
	}
}

func TestRelatives(t *testing.T) {
	assert.Equal(t, 2, Left(Root))
	assert.Equal(t, 3, Right(Root))
	assert.Equal(t, 0, Parent(Root))
	assert.Equal(t, 5, Parent(10))
	assert.Equal(t, 5, Parent(11))
	assert.Equal(t, 11, Sibling(10))
	assert.Equal(t, 10, Sibling(11))
	assert.Equal(t, 3, Sibling(2))

	for n := 1; n < 1024; n++ {
		assert.Equal(t, n, Parent(Left(n)))
		assert.Equal(t, n, Parent(Right(n)))
		assert.Equal(t, Right(n), Sibling(Left(n)))
	}
}

func TestLevels(t *testing.T) {
	tests := []struct {
		n      int
		level  int
		first  int
		offset int
	}{
		{1, 0, 1, 0},
		{2, 1, 2, 0},
		{3, 1, 2, 1},
		{7, 2, 4, 3},
		{8, 3, 8, 0},
		{13, 3, 8, 5},
		{15, 3, 8, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, Level(tt.n), "n=%d", tt.n)
		assert.Equal(t, tt.first, LevelFirst(tt.n), "n=%d", tt.n)
		assert.Equal(t, tt.offset, LevelOffset(tt.n), "n=%d", tt.n)
	}
}

func TestIsLeaf(t *testing.T) {
	nodes, _ := Metrics(8)
	for n := 1; n < 8; n++ {
		assert.False(t, IsLeaf(n, nodes), "n=%d", n)
	}
	for n := 8; n <= nodes; n++ {
		assert.True(t, IsLeaf(n, nodes), "n=%d", n)
	}
	assert.True(t, IsLeaf(Root, 1))
}

func TestNodeFromLeafOffset(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		nodes, _ := Metrics(8)
		for off := 0; off < 8; off++ {
			n := NodeFromLeafOffset(off, nodes)
			assert.Equal(t, 8+off, n)
			assert.Equal(t, off, LevelOffset(n))
		}
	})

	t.Run("single_node", func(t *testing.T) {
		assert.Equal(t, Root, NodeFromLeafOffset(0, 1))
	})

	t.Run("two_levels", func(t *testing.T) {
		assert.Equal(t, 3, NodeFromLeafOffset(1, 3))
		assert.Equal(t, 2, NodeFromLeafOffset(0, 3))
	})
}

func TestPow2Helpers(t *testing.T) {
	assert.True(t, IsPow2(1))
	assert.True(t, IsPow2(4096))
	assert.False(t, IsPow2(0))
	assert.False(t, IsPow2(-8))
	assert.False(t, IsPow2(12))

	assert.Equal(t, 0, Log2(1))
	assert.Equal(t, 12, Log2(4096))
	assert.Equal(t, 12, Log2(4097))

	assert.Equal(t, 1, NextPow2(0))
	assert.Equal(t, 1, NextPow2(1))
	assert.Equal(t, 2, NextPow2(2))
	assert.Equal(t, 4, NextPow2(3))
	assert.Equal(t, 8192, NextPow2(4097))
	assert.Equal(t, 4096, NextPow2(4096))
}
