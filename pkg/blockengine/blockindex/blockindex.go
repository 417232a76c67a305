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

// Package blockindex is an advisory sidecar over the backing file: a
// persistent map from block offset to the algorithm/level/checksum that
// was last written there. It exists purely to support the
// CorruptionSuspected error taxonomy entry (spec §7) — nothing in the
// engine's correctness path depends on it, and a nil *Index behaves as
// "no advisory metadata available."
package blockindex

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/types"
	"lukechampine.com/blake3"
)

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// Record is the advisory metadata stored for one block.
type Record struct {
	Algo           types.Algorithm
	Level          int
	CompressedSize int
	Checksum       [32]byte
}

// Index is a pebble-backed sidecar keyed by block offset.
type Index struct {
	db     *pebble.DB
	logger *slog.Logger

	hasherPool sync.Pool
}

// Open opens (creating if necessary) the advisory index at path, tuned
// for a write-heavy workload the same way the teacher's objstore.Open
// configures pebble.
func Open(path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = defaultLogger
	}
	opts := &pebble.Options{
		MemTableSize:                64 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
		LBaseMaxBytes:               64 << 20,
		MaxConcurrentCompactions:    func() int { return 3 },
		DisableWAL:                  false,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	idx := &Index{db: db, logger: logger}
	idx.hasherPool.New = func() any { return blake3.New(32, nil) }
	return idx, nil
}

// Close releases the pebble handle.
func (idx *Index) Close() error {
	if idx == nil || idx.db == nil {
		return nil
	}
	return idx.db.Close()
}

func key(offset types.Offset) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(offset))
	return b
}

// Put records advisory metadata for offset: checksum, algorithm, level
// and compressed size. Failures are logged and swallowed — this is an
// advisory path and never blocks the write it is tracking.
func (idx *Index) Put(offset types.Offset, page *types.Page, algo types.Algorithm, level, compressedSize int) {
	if idx == nil {
		return
	}
	h := idx.hasherPool.Get().(*blake3.Hasher)
	defer func() {
		h.Reset()
		idx.hasherPool.Put(h)
	}()
	h.Write(page[:])
	sum := h.Sum(nil)

	rec := Record{Algo: algo, Level: level, CompressedSize: compressedSize}
	copy(rec.Checksum[:], sum)

	val := encodeRecord(rec)
	if err := idx.db.Set(key(offset), val, pebble.Sync); err != nil {
		idx.logger.Warn("advisory index put failed",
			"component", "blockindex", "offset", offset.String(), "error", err)
	}
}

// Check recomputes the checksum of page and compares it to the stored
// advisory record for offset, if any. A mismatch is logged as
// CorruptionSuspected and otherwise ignored — the design does not act
// on it (spec §7).
func (idx *Index) Check(offset types.Offset, page *types.Page) (ok bool) {
	if idx == nil {
		return true
	}
	val, closer, err := idx.db.Get(key(offset))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return true // no advisory record yet; nothing to check
		}
		idx.logger.Warn("advisory index get failed",
			"component", "blockindex", "offset", offset.String(), "error", err)
		return true
	}
	rec, decErr := decodeRecord(val)
	_ = closer.Close()
	if decErr != nil {
		return true
	}

	h := idx.hasherPool.Get().(*blake3.Hasher)
	defer func() {
		h.Reset()
		idx.hasherPool.Put(h)
	}()
	h.Write(page[:])
	sum := h.Sum(nil)

	if string(sum) != string(rec.Checksum[:]) {
		idx.logger.Warn("corruption suspected",
			"component", "blockindex", "offset", offset.String(),
			"algo", rec.Algo.String(), "level", rec.Level)
		return false
	}
	return true
}

func encodeRecord(r Record) []byte {
	buf := make([]byte, 1+4+4+32)
	buf[0] = byte(r.Algo)
	binary.BigEndian.PutUint32(buf[1:5], uint32(r.Level))
	binary.BigEndian.PutUint32(buf[5:9], uint32(r.CompressedSize))
	copy(buf[9:], r.Checksum[:])
	return buf
}

func decodeRecord(buf []byte) (Record, error) {
	if len(buf) < 1+4+4+32 {
		return Record{}, errors.New("blockindex: short record")
	}
	var r Record
	r.Algo = types.Algorithm(buf[0])
	r.Level = int(binary.BigEndian.Uint32(buf[1:5]))
	r.CompressedSize = int(binary.BigEndian.Uint32(buf[5:9]))
	copy(r.Checksum[:], buf[9:41])
	return r, nil
}
