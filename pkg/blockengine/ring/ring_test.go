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

package ring_test

import (
	"bytes"
	"testing"

	"github.com/good-night-oppie/blockengine/pkg/blockengine/ring"
)

func TestAppend_WithinCapacity(t *testing.T) {
	r := ring.New(16, nil)
	if err := r.Append([]byte("abcd")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := r.Append([]byte("efgh")); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestAppend_RefusesOnOverflowWithoutWrap(t *testing.T) {
	r := ring.New(8, nil)
	if err := r.Append(bytes.Repeat([]byte{1}, 6)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Only 2 bytes remain before the end of the ring; a 4-byte page must
	// be refused rather than wrapped-and-split.
	if err := r.Append(bytes.Repeat([]byte{2}, 4)); err == nil {
		t.Fatal("expected capacity pressure error, got nil")
	}
}

func TestAppend_RejectsPageLargerThanRing(t *testing.T) {
	r := ring.New(8, nil)
	if err := r.Append(bytes.Repeat([]byte{1}, 16)); err == nil {
		t.Fatal("expected invalid parameter error for oversized page")
	}
}

func TestDestroy_ReleasesBuffer(t *testing.T) {
	r := ring.New(8, nil)
	r.Destroy()
	// Appending after Destroy should not panic; len(r.buf) is now 0, so
	// even a 1-byte page is rejected as larger than the ring.
	if err := r.Append([]byte{1}); err == nil {
		t.Fatal("expected error appending to a destroyed ring")
	}
}
