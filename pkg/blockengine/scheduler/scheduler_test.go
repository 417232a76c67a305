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

package scheduler_test

import (
	"testing"

	"github.com/good-night-oppie/blockengine/pkg/blockengine/scheduler"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/types"
)

func TestReportAccess_BumpsExistingHotness(t *testing.T) {
	s := scheduler.New(2, scheduler.DefaultMigrationThreshold)
	s.ReportAccess(0, types.Offset(4096))
	s.ReportAccess(0, types.Offset(4096))
	s.ReportAccess(0, types.Offset(4096))
	if l := s.QueueLen(0); l != 1 {
		t.Fatalf("expected 1 tracked entry after repeated access, got %d", l)
	}
}

func TestReportAccess_ReplacesLowestHotnessWhenFull(t *testing.T) {
	s := scheduler.New(1, scheduler.DefaultMigrationThreshold)
	for i := 0; i < scheduler.MaxQueueSize; i++ {
		s.ReportAccess(0, types.Offset(i*4096))
	}
	if l := s.QueueLen(0); l != scheduler.MaxQueueSize {
		t.Fatalf("expected queue capped at %d, got %d", scheduler.MaxQueueSize, l)
	}
	// One more distinct offset must still fit by evicting the weakest entry.
	s.ReportAccess(0, types.Offset(999999*4096))
	if l := s.QueueLen(0); l != scheduler.MaxQueueSize {
		t.Fatalf("expected queue to stay capped at %d, got %d", scheduler.MaxQueueSize, l)
	}
}

func TestShouldMigrate_SingleCoreNeverMigrates(t *testing.T) {
	s := scheduler.New(1, scheduler.DefaultMigrationThreshold)
	if s.ShouldMigrate(0) {
		t.Fatal("a single core can never be imbalanced relative to itself")
	}
}

func TestGetMigratedTask_StealsFromBusiestCore(t *testing.T) {
	s := scheduler.New(2, 2)
	for i := 0; i < 10; i++ {
		s.ReportAccess(1, types.Offset(i*4096))
	}
	offset, ok := s.GetMigratedTask(0)
	if !ok {
		t.Fatal("expected a migration candidate from the busy core")
	}
	_ = offset
}

func TestGetMigratedTask_NoneWhenBelowThreshold(t *testing.T) {
	s := scheduler.New(2, 100)
	s.ReportAccess(1, types.Offset(0))
	if _, ok := s.GetMigratedTask(0); ok {
		t.Fatal("expected no migration candidate below the threshold")
	}
}

func TestBalanceLoad_MovesHotEntryToLeastLoadedCore(t *testing.T) {
	s := scheduler.New(2, 2)
	for i := 0; i < 10; i++ {
		s.ReportAccess(0, types.Offset(i*4096))
	}
	_, from, to, migrated := s.BalanceLoad()
	if !migrated {
		t.Fatal("expected a migration given a large queue-length gap")
	}
	if from != 0 || to != 1 {
		t.Fatalf("expected migration from core 0 to core 1, got from=%d to=%d", from, to)
	}
}
