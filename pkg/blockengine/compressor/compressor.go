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

// Package compressor is the adaptive block encoder: it selects among
// ZSTD, LZ4 and GZIP and picks a level either from input entropy
// (level 0 policy) or from the previous block's compression ratio
// (the worker's prior-ratio policy).
package compressor

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/good-night-oppie/blockengine/internal/blockerr"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/types"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// emaAlpha is the smoothing factor for the per-algorithm ratio tracker.
const emaAlpha = 0.1

// Compressor selects an algorithm/level and performs the encode/decode.
// It is safe for concurrent use.
type Compressor struct {
	logger *slog.Logger

	mu     sync.Mutex
	ratios map[types.Algorithm]float64 // EMA of (compressed/original) per algo

	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
}

// New builds a Compressor with pooled zstd encoder/decoder, mirroring
// the teacher's l1cache.Cache construction pattern.
func New(logger *slog.Logger) (*Compressor, error) {
	if logger == nil {
		logger = defaultLogger
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, &blockerr.CompressionError{Algo: types.AlgoZstd, Err: err}
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, &blockerr.CompressionError{Algo: types.AlgoZstd, Err: err}
	}
	return &Compressor{
		logger:  logger,
		ratios:  make(map[types.Algorithm]float64),
		zstdEnc: enc,
		zstdDec: dec,
	}, nil
}

// Close releases the pooled zstd encoder/decoder.
func (c *Compressor) Close() {
	c.zstdEnc.Close()
	c.zstdDec.Close()
}

// Entropy computes the 8-bit Shannon entropy of in, in bits per byte
// (range [0, 8]).
func Entropy(in []byte) float64 {
	if len(in) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range in {
		counts[b]++
	}
	n := float64(len(in))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// LevelFromEntropy implements the level-0 design contract: entropy <4.0
// -> level 1, [4.0,6.0) -> level 3, else -> level 5.
func LevelFromEntropy(in []byte) int {
	h := Entropy(in)
	switch {
	case h < 4.0:
		return 1
	case h < 6.0:
		return 3
	default:
		return 5
	}
}

// LevelFromPriorRatio implements the worker's prior-ratio policy: given
// the previous block's compressed and original size, choose maxLvl if
// ratio > threshold (poorly compressible, push harder), else minLvl.
func LevelFromPriorRatio(prevOrig, prevCompressed int, threshold float64, minLvl, maxLvl int) int {
	if prevOrig <= 0 {
		return minLvl
	}
	ratio := float64(prevCompressed) / float64(prevOrig)
	if ratio > threshold {
		return maxLvl
	}
	return minLvl
}

// Compress encodes in with algo at level. If level is 0, the level is
// chosen from the entropy of in (the level-0 design contract); callers
// without prior information must pass 0.
func (c *Compressor) Compress(in []byte, level int, algo types.Algorithm) ([]byte, types.Algorithm, int, error) {
	if len(in) == 0 {
		return nil, algo, 0, &blockerr.InvalidParameter{Op: "compressor.Compress", Reason: "empty input"}
	}
	if level == 0 {
		level = LevelFromEntropy(in)
	}

	var out []byte
	var err error
	switch algo {
	case types.AlgoZstd:
		out, err = c.compressZstd(in, level)
	case types.AlgoLZ4:
		out, err = compressLZ4(in, level)
	case types.AlgoGzip:
		out, err = compressGzip(in, level)
	default:
		return nil, algo, 0, &blockerr.InvalidParameter{Op: "compressor.Compress", Reason: fmt.Sprintf("unknown algorithm %d", algo)}
	}
	if err != nil {
		c.logger.Warn("compression failed", "component", "compressor", "algo", algo.String(), "error", err)
		return nil, algo, 0, &blockerr.CompressionError{Algo: algo, Err: err}
	}

	ratio := float64(len(out)) / float64(len(in))
	c.updateRatio(algo, ratio)
	return out, algo, level, nil
}

// Decompress decodes in (produced by algo), returning at most
// outCapacity bytes of original content.
func (c *Compressor) Decompress(in []byte, algo types.Algorithm, outCapacity int) ([]byte, error) {
	if len(in) == 0 {
		return nil, &blockerr.InvalidParameter{Op: "compressor.Decompress", Reason: "empty input"}
	}
	var out []byte
	var err error
	switch algo {
	case types.AlgoZstd:
		out, err = c.zstdDec.DecodeAll(in, make([]byte, 0, outCapacity))
	case types.AlgoLZ4:
		if len(in) == 0 {
			err = fmt.Errorf("lz4: empty payload")
			break
		}
		marker, payload := in[0], in[1:]
		if marker == lz4RawMarker {
			out = append([]byte(nil), payload...)
			break
		}
		out = make([]byte, outCapacity)
		var n int
		n, err = lz4.UncompressBlock(payload, out)
		if err == nil {
			out = out[:n]
		}
	case types.AlgoGzip:
		var r *gzip.Reader
		r, err = gzip.NewReader(bytes.NewReader(in))
		if err == nil {
			out = make([]byte, 0, outCapacity)
			buf := bytes.NewBuffer(out)
			_, err = buf.ReadFrom(r)
			out = buf.Bytes()
			_ = r.Close()
		}
	default:
		return nil, &blockerr.InvalidParameter{Op: "compressor.Decompress", Reason: fmt.Sprintf("unknown algorithm %d", algo)}
	}
	if err == nil && len(out) > outCapacity {
		err = fmt.Errorf("decompressed %d bytes exceeds capacity %d", len(out), outCapacity)
	}
	if err != nil {
		return nil, &blockerr.CompressionError{Algo: algo, Err: err}
	}
	return out, nil
}

func (c *Compressor) compressZstd(in []byte, level int) ([]byte, error) {
	// zstd.Encoder is configured at construction; EncodeAll accepts the
	// shared encoder regardless of the requested integer level, since
	// klauspost/compress exposes four coarse speed tiers rather than 22
	// discrete levels. The level has no effect on zstd output; Compress
	// only reports it back to the caller.
	_ = level
	return c.zstdEnc.EncodeAll(in, nil), nil
}

// lz4RawMarker and lz4CompressedMarker prefix every lz4-encoded block.
// pierrec/lz4's CompressBlock/CompressorHC.CompressBlock signal "input
// not compressible" by returning (0, nil), not an error — this is a
// routine outcome for ordinary, non-trivially-repetitive 4096-byte
// blocks, not a failure, so it must round-trip rather than surface as
// a CompressionError.
const (
	lz4RawMarker        byte = 0
	lz4CompressedMarker byte = 1
)

func compressLZ4(in []byte, level int) ([]byte, error) {
	dst := make([]byte, 1+lz4.CompressBlockBound(len(in)))
	var n int
	var err error
	if level <= 3 {
		var comp lz4.Compressor
		n, err = comp.CompressBlock(in, dst[1:])
	} else {
		hc := lz4.CompressorHC{Level: lz4ToHCLevel(level)}
		n, err = hc.CompressBlock(in, dst[1:])
	}
	if err != nil {
		return nil, err
	}
	if n == 0 {
		raw := make([]byte, 1+len(in))
		raw[0] = lz4RawMarker
		copy(raw[1:], in)
		return raw, nil
	}
	dst[0] = lz4CompressedMarker
	return dst[:1+n], nil
}

// lz4ToHCLevel maps our 1-22 level scale onto lz4's HC level constants
// (Level1..Level9).
func lz4ToHCLevel(level int) lz4.CompressionLevel {
	switch {
	case level <= 4:
		return lz4.Level1
	case level <= 8:
		return lz4.Level3
	case level <= 12:
		return lz4.Level5
	case level <= 16:
		return lz4.Level7
	default:
		return lz4.Level9
	}
}

func compressGzip(in []byte, level int) ([]byte, error) {
	gzLevel := gzipLevel(level)
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzLevel)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(in); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gzipLevel maps our 1-22 level scale onto gzip's 1-9 range.
func gzipLevel(level int) int {
	g := level / 2
	if g < gzip.BestSpeed {
		g = gzip.BestSpeed
	}
	if g > gzip.BestCompression {
		g = gzip.BestCompression
	}
	return g
}

// updateRatio folds a fresh observed ratio into the per-algorithm EMA.
func (c *Compressor) updateRatio(algo types.Algorithm, ratio float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.ratios[algo]
	if !ok {
		c.ratios[algo] = ratio
		return
	}
	c.ratios[algo] = emaAlpha*ratio + (1-emaAlpha)*prev
}

// PredictRatio returns the exponential moving average of past
// compressed/original ratios for algo (1.0, i.e. "no gain assumed", if
// the algorithm has never been observed).
func (c *Compressor) PredictRatio(algo types.Algorithm) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.ratios[algo]; ok {
		return r
	}
	return 1.0
}

// SelectAlgorithm returns the algorithm with the best (lowest) recent
// predicted ratio; ties are broken by lower encode cost, i.e. the
// earliest algorithm in types.Algorithms (ZSTD by default). sample is
// accepted for interface symmetry with the C source's selector but the
// decision is driven purely by the EMA table.
func (c *Compressor) SelectAlgorithm(sample []byte) types.Algorithm {
	_ = sample
	best := types.Algorithms[0]
	bestRatio := c.PredictRatio(best)
	for _, a := range types.Algorithms[1:] {
		r := c.PredictRatio(a)
		if r < bestRatio {
			best, bestRatio = a, r
		}
	}
	return best
}
