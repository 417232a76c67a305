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

// Package backingstore is a thin positioned-I/O adapter over one file
// opened read/write. It is the only component that calls positioned
// read/write; everything above it only ever sees whole BlockSize pages.
package backingstore

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/good-night-oppie/blockengine/internal/blockerr"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/types"
)

// DefaultPath is the default backing file location, overridable via
// config.Config.SwapImgPath.
const DefaultPath = "./storage_swap.img"

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// Store is a single-file, block-addressed backing store.
type Store struct {
	path   string
	f      *os.File
	logger *slog.Logger

	reads  atomic.Uint64
	writes atomic.Uint64
}

// Open opens (creating if necessary) the backing file at path for
// read/write positioned I/O.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = defaultLogger
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &blockerr.IoError{Op: "open", Err: err}
	}
	return &Store{path: path, f: f, logger: logger}, nil
}

// Read performs a positioned read, retrying on interrupt. A short read
// (including at EOF) is zero-padded to len and logged as a warning so
// callers always see a fixed-size page.
func (s *Store) Read(offset types.Offset, length int) ([]byte, error) {
	if length <= 0 || length > 1<<30 {
		return nil, &blockerr.InvalidParameter{Op: "backingstore.Read", Reason: "length out of range"}
	}
	buf := make([]byte, length)
	n, err := s.readAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, &blockerr.IoError{Op: "read", Offset: offset, Err: err}
	}
	if n < length {
		s.logger.Warn("short read, zero-padding",
			"component", "backingstore", "operation", "read",
			"offset", offset.String(), "want", length, "got", n)
		for i := n; i < length; i++ {
			buf[i] = 0
		}
	}
	s.reads.Add(1)
	return buf, nil
}

// readAt retries on EINTR-style transient errors via ReadAt's own retry
// semantics; Go's os.File.ReadAt already loops internally on partial
// reads from the underlying syscall, so one call suffices here.
func (s *Store) readAt(buf []byte, off int64) (int, error) {
	n, err := s.f.ReadAt(buf, off)
	return n, err
}

// Write performs a positioned write; short writes are retried until the
// full payload is persisted or an unrecoverable error surfaces.
func (s *Store) Write(offset types.Offset, data []byte) error {
	if len(data) == 0 {
		return &blockerr.InvalidParameter{Op: "backingstore.Write", Reason: "empty payload"}
	}
	off := int64(offset)
	remaining := data
	for len(remaining) > 0 {
		n, err := s.f.WriteAt(remaining, off)
		if err != nil {
			return &blockerr.IoError{Op: "write", Offset: offset, Err: err}
		}
		remaining = remaining[n:]
		off += int64(n)
	}
	s.writes.Add(1)
	return nil
}

// Sync requests a durable flush of the backing file.
func (s *Store) Sync() error {
	if err := s.f.Sync(); err != nil {
		return &blockerr.IoError{Op: "sync", Err: err}
	}
	return nil
}

// Truncate resizes the backing file.
func (s *Store) Truncate(size int64) error {
	if err := s.f.Truncate(size); err != nil {
		return &blockerr.IoError{Op: "truncate", Err: err}
	}
	return nil
}

// Size returns the current file size.
func (s *Store) Size() (int64, error) {
	fi, err := s.f.Stat()
	if err != nil {
		return 0, &blockerr.IoError{Op: "size", Err: err}
	}
	return fi.Size(), nil
}

// Close closes the underlying file descriptor.
func (s *Store) Close() error {
	return s.f.Close()
}

// Stats returns a point-in-time read/write counter snapshot.
func (s *Store) Stats() (reads, writes uint64) {
	return s.reads.Load(), s.writes.Load()
}
