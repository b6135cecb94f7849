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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type opKind int

const (
	opAlloc opKind = iota
	opFree
	opStats
)

func (k opKind) String() string {
	switch k {
	case opAlloc:
		return "alloc"
	case opFree:
		return "free"
	case opStats:
		return "stats"
	}
	return "unknown"
}

// traceOp is one line of a trace:
//
//	alloc <name> <size> [align]
//	free <name>
//	stats
//
// Blank lines and lines starting with # are skipped.
type traceOp struct {
	line  int
	kind  opKind
	name  string
	size  int
	align int
}

func parseTrace(r io.Reader) ([]traceOp, error) {
	var ops []traceOp
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		op, err := parseOp(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		op.line = line
		ops = append(ops, op)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	return ops, nil
}

func parseOp(fields []string) (traceOp, error) {
	switch fields[0] {
	case "alloc":
		if len(fields) != 3 && len(fields) != 4 {
			return traceOp{}, fmt.Errorf("usage: alloc <name> <size> [align]")
		}
		size, err := parseBytes(fields[2])
		if err != nil {
			return traceOp{}, err
		}
		align := 0
		if len(fields) == 4 {
			if align, err = parseBytes(fields[3]); err != nil {
				return traceOp{}, err
			}
		}
		return traceOp{kind: opAlloc, name: fields[1], size: size, align: align}, nil
	case "free":
		if len(fields) != 2 {
			return traceOp{}, fmt.Errorf("usage: free <name>")
		}
		return traceOp{kind: opFree, name: fields[1]}, nil
	case "stats":
		if len(fields) != 1 {
			return traceOp{}, fmt.Errorf("usage: stats")
		}
		return traceOp{kind: opStats}, nil
	}
	return traceOp{}, fmt.Errorf("unknown op %q", fields[0])
}

func parseBytes(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid byte count %q", s)
	}
	return v, nil
}
