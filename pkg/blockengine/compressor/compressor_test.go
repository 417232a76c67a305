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

package compressor_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/good-night-oppie/blockengine/pkg/blockengine/compressor"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/types"
)

func TestEntropy_Bounds(t *testing.T) {
	zeros := make([]byte, 4096)
	if h := compressor.Entropy(zeros); h != 0 {
		t.Errorf("all-zero input should have zero entropy, got %f", h)
	}

	random := make([]byte, 4096)
	_, _ = rand.Read(random)
	if h := compressor.Entropy(random); h < 6.0 {
		t.Errorf("random input should have high entropy, got %f", h)
	}
}

func TestLevelFromEntropy_Bands(t *testing.T) {
	zeros := make([]byte, 4096)
	if lvl := compressor.LevelFromEntropy(zeros); lvl != 1 {
		t.Errorf("low entropy should select level 1, got %d", lvl)
	}

	random := make([]byte, 4096)
	_, _ = rand.Read(random)
	if lvl := compressor.LevelFromEntropy(random); lvl != 5 {
		t.Errorf("high entropy should select level 5, got %d", lvl)
	}
}

func TestLevelFromPriorRatio(t *testing.T) {
	// No history yet: must fall back to minLvl.
	if lvl := compressor.LevelFromPriorRatio(0, 0, 0.6, 1, 19); lvl != 1 {
		t.Errorf("expected minLvl with no history, got %d", lvl)
	}
	// Poor compressibility (ratio above threshold): push to maxLvl.
	if lvl := compressor.LevelFromPriorRatio(1000, 900, 0.6, 1, 19); lvl != 19 {
		t.Errorf("expected maxLvl for poor ratio, got %d", lvl)
	}
	// Good compressibility: stay at minLvl.
	if lvl := compressor.LevelFromPriorRatio(1000, 100, 0.6, 1, 19); lvl != 1 {
		t.Errorf("expected minLvl for good ratio, got %d", lvl)
	}
}

func TestCompressDecompress_RoundTrip(t *testing.T) {
	c, err := compressor.New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	in := bytes.Repeat([]byte("the quick brown fox "), 200)

	for _, algo := range types.Algorithms {
		t.Run(algo.String(), func(t *testing.T) {
			out, gotAlgo, _, err := c.Compress(in, 3, algo)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if gotAlgo != algo {
				t.Fatalf("expected algo %s, got %s", algo, gotAlgo)
			}
			back, err := c.Decompress(out, algo, len(in))
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(back, in) {
				t.Fatalf("round trip mismatch for %s", algo)
			}
		})
	}
}

func TestCompressDecompress_RoundTrip_LZ4Incompressible(t *testing.T) {
	c, err := compressor.New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	in := make([]byte, 4096)
	if _, err := rand.Read(in); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	out, _, _, err := c.Compress(in, 3, types.AlgoLZ4)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	back, err := c.Decompress(out, types.AlgoLZ4, len(in))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(back, in) {
		t.Fatal("round trip mismatch for incompressible lz4 input")
	}
}

func TestCompress_RejectsEmptyInput(t *testing.T) {
	c, err := compressor.New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, _, _, err := c.Compress(nil, 3, types.AlgoZstd); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestSelectAlgorithm_PrefersBetterRatio(t *testing.T) {
	c, err := compressor.New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	highlyCompressible := bytes.Repeat([]byte{0x00}, 4096)
	for i := 0; i < 5; i++ {
		if _, _, _, err := c.Compress(highlyCompressible, 3, types.AlgoZstd); err != nil {
			t.Fatalf("Compress: %v", err)
		}
	}
	// zstd now has a strong observed ratio; it should remain (or become)
	// the selection, since it starts first in the tie-break order too.
	if got := c.SelectAlgorithm(highlyCompressible); got != types.AlgoZstd {
		t.Errorf("expected zstd to be selected, got %s", got)
	}
}
