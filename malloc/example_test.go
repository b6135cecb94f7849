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

import "fmt"

func Example() {
	arena := make([]byte, 1024)
	bookkeeping := make([]byte, BookkeepingSize(len(arena), 64))
	h := Create(arena, len(arena), 64, bookkeeping)

	b1 := h.Alloc(0, 100) // 128B block
	b2 := h.Alloc(0, 64)  // fits in the 128B buddy of b1

	fmt.Printf("b1: len=%d cap=%d\n", len(b1), cap(b1))
	fmt.Printf("b2: len=%d cap=%d\n", len(b2), h.BlockSize(b2))
	fmt.Printf("largest free block: %d\n", h.MaxFreeBlockSize())

	h.Free(b1)
	h.Free(b2)
	fmt.Printf("largest free block: %d\n", h.MaxFreeBlockSize())

	// Output:
	// b1: len=100 cap=128
	// b2: len=64 cap=64
	// largest free block: 512
	// largest free block: 1024
}
