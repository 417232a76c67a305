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

// Package scheduler tracks per-core hot-block queues and migrates
// blocks from overloaded to underloaded cores. Each CoreQueue has its
// own mutex; a queue is owned and read by its core and peeked by any
// other core during rebalancing.
package scheduler

import (
	"sync"
	"time"

	"github.com/good-night-oppie/blockengine/pkg/blockengine/types"
)

// MaxQueueSize is the canonical queue capacity. The original sources
// disagree (64 vs 128 across duplicate headers); this repo uses the
// larger, thread-safe variant per spec.md's explicit instruction.
const MaxQueueSize = 128

// DefaultMigrationThreshold is the default load-imbalance threshold.
const DefaultMigrationThreshold = 5

// MaxHotness bounds the hotness counter (spec.md §8's "saturation
// bound") so a hot offset cannot overflow under sustained access.
const MaxHotness = 1 << 20

// migrationRecencyWindow bounds how stale a candidate's last access may
// be for get_migrated_task to consider it.
const migrationRecencyWindow = 10 * time.Second

// WorkUnit is one tracked (offset, hotness) pair in a CoreQueue.
type WorkUnit struct {
	Offset   types.Offset
	Hotness  int
	LastSeen time.Time
}

// CoreQueue is a per-core bounded, mutex-guarded sequence of WorkUnits.
type CoreQueue struct {
	mu      sync.Mutex
	entries []WorkUnit
}

func newCoreQueue() *CoreQueue {
	return &CoreQueue{entries: make([]WorkUnit, 0, MaxQueueSize)}
}

func (q *CoreQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Scheduler owns one CoreQueue per core.
type Scheduler struct {
	queues              []*CoreQueue
	migrationThreshold  int
}

// New builds a Scheduler with cores queues.
func New(cores int, migrationThreshold int) *Scheduler {
	if cores <= 0 {
		cores = 1
	}
	if migrationThreshold <= 0 {
		migrationThreshold = DefaultMigrationThreshold
	}
	s := &Scheduler{
		queues:             make([]*CoreQueue, cores),
		migrationThreshold: migrationThreshold,
	}
	for i := range s.queues {
		s.queues[i] = newCoreQueue()
	}
	return s
}

// Cores returns the number of core queues.
func (s *Scheduler) Cores() int { return len(s.queues) }

// QueueLen returns the current length of coreID's queue.
func (s *Scheduler) QueueLen(coreID int) int {
	return s.queues[coreID].len()
}

// ReportAccess records an access to offset by coreID: it bumps an
// existing entry's hotness, appends a new entry if there is free
// capacity, or replaces the lowest-hotness entry if the queue is full.
// Runs in O(MaxQueueSize).
func (s *Scheduler) ReportAccess(coreID int, offset types.Offset) {
	q := s.queues[coreID]
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for i := range q.entries {
		if q.entries[i].Offset == offset {
			if q.entries[i].Hotness < MaxHotness {
				q.entries[i].Hotness++
			}
			q.entries[i].LastSeen = now
			return
		}
	}

	if len(q.entries) < MaxQueueSize {
		q.entries = append(q.entries, WorkUnit{Offset: offset, Hotness: 1, LastSeen: now})
		return
	}

	// Full: overwrite the lowest-hotness entry. Ties: the first one
	// found (any tied entry is an acceptable pick per spec.md §8).
	minIdx := 0
	for i := 1; i < len(q.entries); i++ {
		if q.entries[i].Hotness < q.entries[minIdx].Hotness {
			minIdx = i
		}
	}
	q.entries[minIdx] = WorkUnit{Offset: offset, Hotness: 1, LastSeen: now}
}

// ShouldMigrate reports whether coreID is significantly underloaded
// relative to the mean queue length of all other cores.
func (s *Scheduler) ShouldMigrate(coreID int) bool {
	if len(s.queues) < 2 {
		return false
	}
	var sum, n int
	for i, q := range s.queues {
		if i == coreID {
			continue
		}
		sum += q.len()
		n++
	}
	if n == 0 {
		return false
	}
	avg := float64(sum) / float64(n)
	mine := float64(s.queues[coreID].len())
	return mine < avg-float64(s.migrationThreshold)
}

// GetMigratedTask finds the core with the largest queue (excluding
// coreID); if its length exceeds the migration threshold, it removes
// and returns the highest-hotness entry among those last seen within
// migrationRecencyWindow. Returns (0, false) if no candidate qualifies.
func (s *Scheduler) GetMigratedTask(coreID int) (types.Offset, bool) {
	maxIdx := -1
	maxLen := -1
	for i, q := range s.queues {
		if i == coreID {
			continue
		}
		l := q.len()
		if l > maxLen {
			maxLen, maxIdx = l, i
		}
	}
	if maxIdx == -1 || maxLen <= s.migrationThreshold {
		return 0, false
	}
	return s.stealFrom(maxIdx)
}

// stealFrom removes and returns the highest-hotness, recently-seen
// entry from queues[coreID], under that queue's own lock.
func (s *Scheduler) stealFrom(coreID int) (types.Offset, bool) {
	q := s.queues[coreID]
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	best := -1
	for i := range q.entries {
		if now.Sub(q.entries[i].LastSeen) >= migrationRecencyWindow {
			continue
		}
		if best == -1 || q.entries[i].Hotness > q.entries[best].Hotness {
			best = i
		}
	}
	if best == -1 {
		return 0, false
	}
	offset := q.entries[best].Offset
	q.entries = append(q.entries[:best], q.entries[best+1:]...)
	return offset, true
}

// BalanceLoad identifies the globally min- and max-loaded cores and, if
// the gap exceeds the migration threshold, migrates one hot offset from
// the max to the min (the caller, typically a worker, is responsible
// for acting on the returned offset — BalanceLoad only performs the
// bookkeeping move between queues).
func (s *Scheduler) BalanceLoad() (offset types.Offset, from, to int, migrated bool) {
	if len(s.queues) < 2 {
		return 0, 0, 0, false
	}
	minIdx, maxIdx := 0, 0
	minLen, maxLen := s.queues[0].len(), s.queues[0].len()
	for i := 1; i < len(s.queues); i++ {
		l := s.queues[i].len()
		if l < minLen {
			minLen, minIdx = l, i
		}
		if l > maxLen {
			maxLen, maxIdx = l, i
		}
	}
	if maxLen-minLen <= s.migrationThreshold || minIdx == maxIdx {
		return 0, 0, 0, false
	}
	off, ok := s.GetMigratedTask(minIdx)
	if !ok {
		return 0, 0, 0, false
	}
	s.ReportAccess(minIdx, off)
	return off, maxIdx, minIdx, true
}
