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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudwego/buddy/malloc"
)

var (
	// Global flags
	verbose bool
	jsonOut bool

	arenaBytes   int
	minBlockSize int
)

var rootCmd = &cobra.Command{
	Use:   "buddyctl",
	Short: "Size and exercise tree-bitmap buddy heaps",
	Long: `buddyctl computes the bookkeeping memory needed by a buddy heap
and replays allocation traces against one, reporting offsets, block sizes
and fragmentation.`,
	SilenceUsage: true,
}

func init() {
	conf := malloc.DefaultConfig()
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().IntVar(&arenaBytes, "arena", conf.ArenaBytes, "Arena size in bytes, a power of two")
	rootCmd.PersistentFlags().IntVar(&minBlockSize, "min", conf.MinBlockSize, "Minimum block size in bytes, a power of two")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(w io.Writer, format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(w, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
