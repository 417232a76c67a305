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

package blockerr

import (
	"errors"
	"testing"

	"github.com/good-night-oppie/blockengine/pkg/blockengine/types"
)

func TestInvalidParameter_Error(t *testing.T) {
	e := &InvalidParameter{Op: "cache.Get", Reason: "offset not aligned"}
	if e.Error() == "" {
		t.Fatal("expected non-empty error string")
	}
}

func TestIoError_Unwrap(t *testing.T) {
	base := errors.New("disk full")
	e := &IoError{Op: "write", Offset: types.Offset(4096), Err: base}
	if !errors.Is(e, base) {
		t.Fatal("expected errors.Is to unwrap to base error")
	}
}

func TestCompressionError_Unwrap(t *testing.T) {
	base := errors.New("bad frame")
	e := &CompressionError{Algo: types.AlgoZstd, Err: base}
	if !errors.Is(e, base) {
		t.Fatal("expected errors.Is to unwrap to base error")
	}
	if e.Error() == "" {
		t.Fatal("expected non-empty error string")
	}
}

func TestCapacityPressure_Error(t *testing.T) {
	e := &CapacityPressure{Entries: 100, Max: 100}
	if e.Error() == "" {
		t.Fatal("expected non-empty error string")
	}
}

func TestCorruptionSuspected_Error(t *testing.T) {
	e := &CorruptionSuspected{Offset: types.Offset(0), Reason: "checksum mismatch"}
	if e.Error() == "" {
		t.Fatal("expected non-empty error string")
	}
}
