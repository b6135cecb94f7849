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
	"github.com/bytedance/gopkg/lang/dirtmake"
	"github.com/bytedance/gopkg/lang/mcache"
)

const (
	// DefaultArenaBytes is the default arena size of a managed heap (1MB).
	DefaultArenaBytes = 1 << 20

	// DefaultMinBlockSize is the default minimum block size of a managed heap (64B).
	DefaultMinBlockSize = 64
)

// Config ...
type Config struct {
	// ArenaBytes is the size of the arena, a power of two.
	ArenaBytes int

	// MinBlockSize is the smallest block handed out, a power of two <= ArenaBytes.
	// Smaller requests are rounded up to it.
	MinBlockSize int

	// OffsetsOnly skips allocating the arena.
	// The heap then only serves AllocOffset / FreeOffset.
	OffsetsOnly bool
}

// DefaultConfig returns the default values of Config.
func DefaultConfig() *Config {
	return &Config{
		ArenaBytes:   DefaultArenaBytes,
		MinBlockSize: DefaultMinBlockSize,
	}
}

// Managed is a Heap which provisions its own arena and bookkeeping memory.
// The bookkeeping memory is pooled and goes back to the pool on Release.
type Managed struct {
	Heap

	// buf is the bookkeeping memory as returned by mcache, Heap only keeps the used part.
	buf []byte
}

// NewManaged creates a heap as configured by c, DefaultConfig if c is nil.
// The arena is not zeroed.
func NewManaged(c *Config) (*Managed, error) {
	if c == nil {
		c = DefaultConfig()
	}
	if err := checkSizes(c.ArenaBytes, c.MinBlockSize); err != nil {
		return nil, err
	}
	var arena []byte
	if !c.OffsetsOnly {
		arena = dirtmake.Bytes(c.ArenaBytes, c.ArenaBytes)
	}
	bookkeeping := mcache.Malloc(BookkeepingSize(c.ArenaBytes, c.MinBlockSize))
	m := &Managed{buf: bookkeeping}
	if err := m.Init(arena, c.ArenaBytes, c.MinBlockSize, bookkeeping); err != nil {
		mcache.Free(bookkeeping)
		return nil, err
	}
	return m, nil
}

// Release returns the bookkeeping memory to the pool. m must not be used afterwards,
// nor any block allocated from it.
func (m *Managed) Release() {
	if m.buf == nil {
		return
	}
	m.Destroy()
	mcache.Free(m.buf)
	m.buf = nil
}
