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

	"github.com/spf13/cobra"

	"github.com/cloudwego/buddy/internal/bintree"
	"github.com/cloudwego/buddy/malloc"
)

func init() {
	rootCmd.AddCommand(newSizeCmd())
}

func newSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Show the bookkeeping memory needed for an arena",
		Long: `The size command prints the tree geometry and the bookkeeping bytes
a heap needs for the given arena and minimum block size.

Example:
  buddyctl size --arena 1048576 --min 64
  buddyctl size --arena 65536 --min 16 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := sizeInfo(arenaBytes, minBlockSize)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(w, info)
			}
			fmt.Fprintf(w, "Arena:          %d bytes\n", info.ArenaBytes)
			fmt.Fprintf(w, "Min block:      %d bytes\n", info.MinBlockSize)
			fmt.Fprintf(w, "Leaves:         %d\n", info.Leaves)
			fmt.Fprintf(w, "Nodes:          %d\n", info.Nodes)
			fmt.Fprintf(w, "Levels:         %d\n", info.Levels)
			fmt.Fprintf(w, "Bookkeeping:    %d bytes\n", info.Bookkeeping)
			return nil
		},
	}
}

// SizeInfo is the output of the size command.
type SizeInfo struct {
	ArenaBytes   int `json:"arena_bytes"`
	MinBlockSize int `json:"min_block_size"`
	Leaves       int `json:"leaves"`
	Nodes        int `json:"nodes"`
	Levels       int `json:"levels"`
	Bookkeeping  int `json:"bookkeeping_bytes"`
}

func sizeInfo(arena, min int) (*SizeInfo, error) {
	if !bintree.IsPow2(arena) || !bintree.IsPow2(min) || min > arena {
		return nil, fmt.Errorf("arena (%d) and min (%d) must be powers of two with min <= arena", arena, min)
	}
	leaves := arena / min
	nodes, levels := bintree.Metrics(leaves)
	return &SizeInfo{
		ArenaBytes:   arena,
		MinBlockSize: min,
		Leaves:       leaves,
		Nodes:        nodes,
		Levels:       levels,
		Bookkeeping:  malloc.BookkeepingSize(arena, min),
	}, nil
}
