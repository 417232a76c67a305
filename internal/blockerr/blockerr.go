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

// Package blockerr defines the error taxonomy shared by every component:
// InvalidParameter, IoError, CompressionError, CapacityPressure and
// CorruptionSuspected. Errors carry context (offset, algorithm, size)
// instead of being read from a process-wide last-error static.
package blockerr

import (
	"fmt"

	"github.com/good-night-oppie/blockengine/pkg/blockengine/types"
)

// InvalidParameter is returned when an operation is rejected at entry
// (bad offset, nil buffer, size 0 or over the limit). Never retried.
type InvalidParameter struct {
	Op     string
	Reason string
}

func (e *InvalidParameter) Error() string {
	return fmt.Sprintf("invalid parameter in %s: %s", e.Op, e.Reason)
}

// IoError wraps a positioned read/write failure or a short transfer.
type IoError struct {
	Op     string
	Offset types.Offset
	Err    error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("io error in %s at offset %s: %v", e.Op, e.Offset, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// CompressionError wraps an encoder/decoder failure.
type CompressionError struct {
	Algo types.Algorithm
	Err  error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("compression error (%s): %v", e.Algo, e.Err)
}

func (e *CompressionError) Unwrap() error { return e.Err }

// CapacityPressure signals that a fixed-capacity structure is full. The
// cache handles capacity internally by eviction and never returns it;
// ring.Append returns it when a page does not fit before the end of the
// ring.
type CapacityPressure struct {
	Entries int
	Max     int
}

func (e *CapacityPressure) Error() string {
	return fmt.Sprintf("capacity pressure: %d/%d entries", e.Entries, e.Max)
}

// CorruptionSuspected is an advisory checksum mismatch. It is always
// logged, never returned to a caller that would abort on it.
type CorruptionSuspected struct {
	Offset types.Offset
	Reason string
}

func (e *CorruptionSuspected) Error() string {
	return fmt.Sprintf("corruption suspected at offset %s: %s", e.Offset, e.Reason)
}
