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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPagesBits(t *testing.T) {
	p := make(pages, 2)
	p.set(0)
	p.set(63)
	p.set(64)
	assert.Equal(t, pages{1 | 1<<63, 1}, p)
	assert.True(t, p.get(63))
	assert.False(t, p.get(62))

	p.clear(63)
	assert.Equal(t, pages{1, 1}, p)
}

func TestPagesSetRange(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		want     pages
	}{
		{"empty", 5, 5, pages{0, 0}},
		{"in_word", 1, 4, pages{0xe, 0}},
		{"full_word", 0, 64, pages{^uint64(0), 0}},
		{"cross_word", 62, 66, pages{3 << 62, 3}},
		{"all", 0, 128, pages{^uint64(0), ^uint64(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := make(pages, 2)
			p.setRange(tt.from, tt.to, true)
			assert.Equal(t, tt.want, p)

			p.setRange(tt.from, tt.to, false)
			assert.Equal(t, pages{0, 0}, p)
		})
	}
}

func TestPagesFirstSet(t *testing.T) {
	p := make(pages, 3)
	assert.Equal(t, -1, p.firstSet(0, 192))

	p.set(70)
	p.set(130)
	assert.Equal(t, 70, p.firstSet(0, 192))
	assert.Equal(t, 70, p.firstSet(70, 71))
	assert.Equal(t, -1, p.firstSet(0, 70))
	assert.Equal(t, 130, p.firstSet(71, 192))
	assert.Equal(t, -1, p.firstSet(131, 192))
	assert.Equal(t, -1, p.firstSet(10, 10))
}

func TestPagesHasLonePair(t *testing.T) {
	p := make(pages, 2)
	p.setRange(2, 128, true)
	assert.False(t, p.hasLonePair(2, 128))

	p.clear(101)
	assert.True(t, p.hasLonePair(64, 128))
	assert.True(t, p.hasLonePair(100, 102))
	assert.False(t, p.hasLonePair(2, 100))
	assert.False(t, p.hasLonePair(102, 128))

	// both cleared is a split or allocated parent, not a free block
	p.clear(100)
	assert.False(t, p.hasLonePair(2, 128))
}

func TestNumPages(t *testing.T) {
	assert.Equal(t, 1, numPages(1))
	assert.Equal(t, 1, numPages(63))
	assert.Equal(t, 2, numPages(64))
	assert.Equal(t, 2, numPages(127))
	assert.Equal(t, 3, numPages(128))
}

func TestViewPages(t *testing.T) {
	b := alignedBytes(16)
	p := viewPages(b, 2)
	p.set(8)
	p.set(64)
	assert.Equal(t, byte(1), b[1])
	assert.Equal(t, byte(1), b[8])
	assert.Equal(t, b, p.bytes())
	assert.Nil(t, viewPages(nil, 0))
}
