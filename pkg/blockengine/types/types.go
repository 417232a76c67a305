// Copyright 2025 Oppie Thunder Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package types holds the small shared value types used across the
// block engine: the block offset, the fixed-size page, and the
// compression algorithm enum.
package types

import "fmt"

// BlockSize is the fixed page size for every block in the system.
const BlockSize = 4096

// Offset is a byte offset into the backing file. It is always a
// multiple of BlockSize.
type Offset uint64

func (o Offset) String() string {
	return fmt.Sprintf("0x%x", uint64(o))
}

// BlockIndex returns the block index for this offset (offset / BlockSize).
func (o Offset) BlockIndex() uint64 {
	return uint64(o) / BlockSize
}

// Page is a fixed BlockSize-byte buffer of uncompressed block content.
type Page [BlockSize]byte

// Algorithm identifies a compression algorithm.
type Algorithm int

const (
	AlgoZstd Algorithm = iota
	AlgoLZ4
	AlgoGzip
)

func (a Algorithm) String() string {
	switch a {
	case AlgoZstd:
		return "zstd"
	case AlgoLZ4:
		return "lz4"
	case AlgoGzip:
		return "gzip"
	default:
		return "unknown"
	}
}

// Algorithms lists every algorithm the compressor chooses among, in the
// stable order used for tie-breaking (lowest-cost / default first).
var Algorithms = []Algorithm{AlgoZstd, AlgoLZ4, AlgoGzip}
