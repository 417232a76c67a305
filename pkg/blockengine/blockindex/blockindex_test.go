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

package blockindex_test

import (
	"path/filepath"
	"testing"

	"github.com/good-night-oppie/blockengine/pkg/blockengine/blockindex"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/types"
)

func openIndex(t *testing.T) *blockindex.Index {
	t.Helper()
	idx, err := blockindex.Open(filepath.Join(t.TempDir(), "index"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestPutThenCheck_MatchingPageOK(t *testing.T) {
	idx := openIndex(t)

	var page types.Page
	for i := range page {
		page[i] = byte(i)
	}
	idx.Put(types.Offset(0), &page, types.AlgoZstd, 3, 1024)

	if !idx.Check(types.Offset(0), &page) {
		t.Fatal("expected checksum match for unmodified page")
	}
}

func TestCheck_DetectsMismatch(t *testing.T) {
	idx := openIndex(t)

	var original types.Page
	for i := range original {
		original[i] = byte(i)
	}
	idx.Put(types.Offset(0), &original, types.AlgoZstd, 3, 1024)

	var tampered types.Page
	tampered[0] = 0xFF
	if idx.Check(types.Offset(0), &tampered) {
		t.Fatal("expected checksum mismatch for tampered page")
	}
}

func TestCheck_NoRecordIsOK(t *testing.T) {
	idx := openIndex(t)
	var page types.Page
	if !idx.Check(types.Offset(4096), &page) {
		t.Fatal("expected no-record check to pass (advisory only)")
	}
}

func TestNilIndex_IsNoop(t *testing.T) {
	var idx *blockindex.Index
	var page types.Page
	idx.Put(types.Offset(0), &page, types.AlgoZstd, 1, 10) // must not panic
	if !idx.Check(types.Offset(0), &page) {
		t.Fatal("nil index Check must always report ok")
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("nil index Close must not error: %v", err)
	}
}
