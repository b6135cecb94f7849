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

package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/gopkg/lang/fastrand"
	"github.com/bytedance/gopkg/util/gopool"
	"github.com/spf13/cobra"

	"github.com/cloudwego/buddy/malloc"
)

var (
	stressWorkers int
	stressOps     int
	stressMaxSize int
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVarP(&stressWorkers, "workers", "w", 8, "Number of concurrent workers")
	cmd.Flags().IntVarP(&stressOps, "ops", "n", 10000, "Operations per worker")
	cmd.Flags().IntVar(&stressMaxSize, "max-size", 4096, "Largest request in bytes")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stress",
		Short: "Run concurrent random allocations against a shared heap",
		Long: `The stress command runs workers that allocate, fill, check and free
random blocks of one shared heap, then verifies the heap is empty again.

Example:
  buddyctl stress --arena 1048576 --min 64 -w 16 -n 100000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := stress(cmd.Context(), &StressConfig{
				Heap:     malloc.Config{ArenaBytes: arenaBytes, MinBlockSize: minBlockSize},
				Workers:  stressWorkers,
				Ops:      stressOps,
				MaxSize:  stressMaxSize,
				Progress: cmd.OutOrStdout(),
			})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(w, res)
			}
			fmt.Fprintf(w, "Workers:        %d\n", res.Workers)
			fmt.Fprintf(w, "Allocs:         %d\n", res.Allocs)
			fmt.Fprintf(w, "Failed allocs:  %d\n", res.Failed)
			fmt.Fprintf(w, "Frees:          %d\n", res.Frees)
			fmt.Fprintf(w, "Elapsed:        %s\n", res.Elapsed)
			return nil
		},
	}
}

// StressConfig ...
type StressConfig struct {
	Heap    malloc.Config
	Workers int
	Ops     int
	MaxSize int

	// Progress receives per-worker lines in verbose mode.
	Progress io.Writer
}

// StressResult is the output of the stress command.
type StressResult struct {
	// updated atomically, keep first for 64-bit alignment
	Allocs int64 `json:"allocs"`
	Failed int64 `json:"failed"`
	Frees  int64 `json:"frees"`

	Workers int           `json:"workers"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

type stressBlock struct {
	b   []byte
	tag byte
}

func stress(ctx context.Context, c *StressConfig) (*StressResult, error) {
	if c.Workers <= 0 || c.Ops < 0 || c.MaxSize <= 0 {
		return nil, fmt.Errorf("invalid stress config: workers=%d ops=%d max-size=%d", c.Workers, c.Ops, c.MaxSize)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	m, err := malloc.NewManaged(&c.Heap)
	if err != nil {
		return nil, err
	}
	defer m.Release()
	h := malloc.NewLockedHeap(&m.Heap)

	var (
		res      = &StressResult{Workers: c.Workers}
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	pool := gopool.NewPool("buddyctl-stress", int32(c.Workers), gopool.NewConfig())
	pool.SetPanicHandler(func(ctx context.Context, r interface{}) {
		fail(fmt.Errorf("worker panic: %v", r))
	})

	begin := time.Now()
	for i := 0; i < c.Workers; i++ {
		id := i
		wg.Add(1)
		pool.CtxGo(ctx, func() {
			defer wg.Done()
			var live []stressBlock
			defer func() {
				for _, blk := range live {
					h.Free(blk.b)
				}
			}()
			var allocs, failed, frees int64
			for n := 0; n < c.Ops; n++ {
				if len(live) > 0 && fastrand.Intn(2) == 0 {
					k := fastrand.Intn(len(live))
					blk := live[k]
					if err := checkFill(blk.b, blk.tag); err != nil {
						fail(fmt.Errorf("worker %d: %w", id, err))
						return
					}
					h.Free(blk.b)
					live[k] = live[len(live)-1]
					live = live[:len(live)-1]
					frees++
					continue
				}
				b := h.Alloc(0, fastrand.Intn(c.MaxSize)+1)
				if b == nil {
					failed++
					continue
				}
				tag := byte(fastrand.Uint32())
				for j := range b {
					b[j] = tag
				}
				live = append(live, stressBlock{b: b, tag: tag})
				allocs++
			}
			for _, blk := range live {
				if err := checkFill(blk.b, blk.tag); err != nil {
					fail(fmt.Errorf("worker %d: %w", id, err))
					return
				}
			}
			frees += int64(len(live))
			atomic.AddInt64(&res.Allocs, allocs)
			atomic.AddInt64(&res.Failed, failed)
			atomic.AddInt64(&res.Frees, frees)
			mu.Lock()
			printVerbose(c.Progress, "worker %d: %d allocs, %d failed, %d frees\n", id, allocs, failed, frees)
			mu.Unlock()
		})
	}
	wg.Wait()
	res.Elapsed = time.Since(begin)

	if firstErr != nil {
		return nil, firstErr
	}
	var verr error
	h.Do(func(h *malloc.Heap) {
		if err := h.Verify(); err != nil {
			verr = err
			return
		}
		if h.Available() != h.ArenaBytes() {
			verr = fmt.Errorf("heap not empty after all frees, %d of %d bytes available", h.Available(), h.ArenaBytes())
		}
	})
	if verr != nil {
		return nil, verr
	}
	return res, nil
}

// checkFill reports whether another worker wrote into b.
func checkFill(b []byte, tag byte) error {
	for i, v := range b {
		if v != tag {
			return fmt.Errorf("block %p overwritten at byte %d", &b[0], i)
		}
	}
	return nil
}
