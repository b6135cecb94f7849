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
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudwego/buddy/malloc"
)

func init() {
	rootCmd.AddCommand(newReplayCmd())
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <trace>",
		Short: "Replay an allocation trace against a heap",
		Long: `The replay command runs the alloc and free operations of a trace file
against an empty heap and reports where each block landed.
Use - to read the trace from stdin.

Trace format, one operation per line:
  alloc <name> <size> [align]
  free <name>
  stats

Example:
  buddyctl replay trace.txt --arena 1048576 --min 64
  buddyctl replay - --json < trace.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open trace: %w", err)
				}
				defer f.Close()
				r = f
			}
			ops, err := parseTrace(r)
			if err != nil {
				return err
			}
			rep, err := replay(cmd.OutOrStdout(), ops, &malloc.Config{
				ArenaBytes:   arenaBytes,
				MinBlockSize: minBlockSize,
				OffsetsOnly:  true,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
}

// Step is the outcome of one trace operation.
type Step struct {
	Line   int    `json:"line"`
	Op     string `json:"op"`
	Name   string `json:"name,omitempty"`
	Size   int    `json:"size,omitempty"`
	Offset int    `json:"offset"`
	Block  int    `json:"block,omitempty"`
	OK     bool   `json:"ok"`
}

// Stats is a snapshot of the heap state.
type Stats struct {
	Live             int    `json:"live"`
	NumFreeBlocks    int    `json:"num_free_blocks"`
	MaxFreeBlockSize int    `json:"max_free_block_size"`
	Available        int    `json:"available"`
	Fingerprint      string `json:"fingerprint"`
}

// Report is the output of the replay command.
type Report struct {
	ArenaBytes   int     `json:"arena_bytes"`
	MinBlockSize int     `json:"min_block_size"`
	Overhead     int     `json:"overhead"`
	Steps        []Step  `json:"steps"`
	Snapshots    []Stats `json:"snapshots,omitempty"`
	Failed       int     `json:"failed"`
	Final        Stats   `json:"final"`
}

func replay(w io.Writer, ops []traceOp, conf *malloc.Config) (*Report, error) {
	m, err := malloc.NewManaged(conf)
	if err != nil {
		return nil, err
	}
	defer m.Release()

	rep := &Report{
		ArenaBytes:   m.ArenaBytes(),
		MinBlockSize: m.MinBlockSize(),
		Overhead:     m.Overhead(),
	}
	live := make(map[string]int)
	for _, op := range ops {
		step := Step{Line: op.line, Op: op.kind.String(), Name: op.name, Size: op.size, Offset: -1}
		switch op.kind {
		case opAlloc:
			if _, ok := live[op.name]; ok {
				return nil, fmt.Errorf("line %d: %q is already allocated", op.line, op.name)
			}
			off, ok := m.AllocOffset(op.align, op.size)
			if ok {
				live[op.name] = off
				step.Offset, step.Block, step.OK = off, m.BlockSizeOffset(off), true
				printVerbose(w, "%d: alloc %s %d -> offset %d block %d\n", op.line, op.name, op.size, off, step.Block)
			} else {
				rep.Failed++
				printVerbose(w, "%d: alloc %s %d -> no space\n", op.line, op.name, op.size)
			}
		case opFree:
			off, ok := live[op.name]
			if !ok {
				return nil, fmt.Errorf("line %d: %q is not allocated", op.line, op.name)
			}
			step.Offset, step.Block, step.OK = off, m.BlockSizeOffset(off), true
			m.FreeOffset(off)
			delete(live, op.name)
			printVerbose(w, "%d: free %s -> offset %d block %d\n", op.line, op.name, off, step.Block)
		case opStats:
			step.OK = true
			rep.Snapshots = append(rep.Snapshots, heapStats(&m.Heap, len(live)))
		}
		rep.Steps = append(rep.Steps, step)
	}
	rep.Final = heapStats(&m.Heap, len(live))
	return rep, nil
}

func heapStats(h *malloc.Heap, live int) Stats {
	return Stats{
		Live:             live,
		NumFreeBlocks:    h.NumFreeBlocks(),
		MaxFreeBlockSize: h.MaxFreeBlockSize(),
		Available:        h.Available(),
		Fingerprint:      fmt.Sprintf("%016x", h.Fingerprint()),
	}
}

func printReport(w io.Writer, rep *Report) {
	fmt.Fprintf(w, "Heap: arena %d bytes, min block %d bytes, bookkeeping %d bytes\n",
		rep.ArenaBytes, rep.MinBlockSize, rep.Overhead)
	for _, s := range rep.Steps {
		switch {
		case s.Op == "stats":
			continue
		case !s.OK:
			fmt.Fprintf(w, "  %-6s %-12s %8d  FAILED\n", s.Op, s.Name, s.Size)
		default:
			fmt.Fprintf(w, "  %-6s %-12s %8d  @%-10d block %d\n", s.Op, s.Name, s.Size, s.Offset, s.Block)
		}
	}
	for i, st := range rep.Snapshots {
		fmt.Fprintf(w, "Snapshot %d:\n", i+1)
		printStats(w, st)
	}
	fmt.Fprintf(w, "Final (%d failed allocations):\n", rep.Failed)
	printStats(w, rep.Final)
}

func printStats(w io.Writer, st Stats) {
	fmt.Fprintf(w, "  Live blocks:     %d\n", st.Live)
	fmt.Fprintf(w, "  Free blocks:     %d\n", st.NumFreeBlocks)
	fmt.Fprintf(w, "  Max free block:  %d\n", st.MaxFreeBlockSize)
	fmt.Fprintf(w, "  Available:       %d\n", st.Available)
	fmt.Fprintf(w, "  Fingerprint:     %s\n", st.Fingerprint)
}
