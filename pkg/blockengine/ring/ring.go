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

// Package ring is the secondary page log: a fixed-size circular byte
// buffer that workers append each processed page to. It has no readers
// in the core; it exists as a recent-page snapshot buffer.
package ring

import (
	"log/slog"
	"os"
	"sync"

	"github.com/good-night-oppie/blockengine/internal/blockerr"
)

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// Ring is a fixed-size circular byte buffer guarded by one mutex.
type Ring struct {
	mu     sync.Mutex
	buf    []byte
	cursor int
	logger *slog.Logger
}

// New builds a Ring of sizeBytes capacity.
func New(sizeBytes int, logger *slog.Logger) *Ring {
	if logger == nil {
		logger = defaultLogger
	}
	if sizeBytes <= 0 {
		sizeBytes = 1
	}
	return &Ring{buf: make([]byte, sizeBytes), logger: logger}
}

// Append writes page to the ring, advancing the cursor modulo the ring
// size. If the remaining slice to the end of the ring is smaller than
// len(page), the write is refused and logged — there is no
// wrap-with-split.
func (r *Ring) Append(page []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(page) > len(r.buf)-r.cursor {
		if len(page) > len(r.buf) {
			return &blockerr.InvalidParameter{Op: "ring.Append", Reason: "page larger than ring"}
		}
		r.logger.Warn("ring overflow, refusing write",
			"component", "ring", "cursor", r.cursor, "size", len(r.buf), "page_len", len(page))
		return &blockerr.CapacityPressure{Entries: r.cursor, Max: len(r.buf)}
	}

	n := copy(r.buf[r.cursor:], page)
	r.cursor += n
	if r.cursor >= len(r.buf) {
		r.cursor = 0
	}
	return nil
}

// Destroy releases the ring's backing buffer. Safe to call once the
// owning workers have all drained.
func (r *Ring) Destroy() {
	r.mu.Lock()
	r.buf = nil
	r.mu.Unlock()
}
