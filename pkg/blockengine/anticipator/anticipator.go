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

// Package anticipator is a Markov-chain style offset predictor used
// only to gate prefetch. It may be stubbed (New(false)) to always return
// false from PrefetchOK without affecting correctness.
package anticipator

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/good-night-oppie/blockengine/pkg/blockengine/types"
)

// MarkovDepth is the number of recent ancestor offsets retained per
// prediction and the number of successor slots tracked per predictor
// entry.
const MarkovDepth = 3

// PredictorTableSize bounds the number of tracked offsets (spec §3).
const PredictorTableSize = 512

// recencyWindow is how fresh a prediction must be for PrefetchOK to
// trust it.
const recencyWindow = 15 * time.Second

// confidenceThreshold is the minimum confidence for PrefetchOK to trust
// a prediction.
const confidenceThreshold = 2

type predictorEntry struct {
	nextOffsets [MarkovDepth]types.Offset
	nextConf    [MarkovDepth]int
	freq        int
	lastSeen    time.Time
}

// Anticipator predicts likely next offsets from recent access history.
type Anticipator struct {
	enabled bool

	mu      sync.Mutex
	history []types.Offset // ring of the last MarkovDepth accessed offsets
	table   *lru.Cache[types.Offset, *predictorEntry]
}

// New builds an Anticipator. If enabled is false, Observe is a no-op and
// PrefetchOK always returns false, matching the spec's permitted stub.
func New(enabled bool) *Anticipator {
	table, _ := lru.New[types.Offset, *predictorEntry](PredictorTableSize)
	return &Anticipator{enabled: enabled, table: table}
}

// Observe records that offset was just accessed, learning a transition
// from the previous offset in history (if any) to this one.
func (a *Anticipator) Observe(offset types.Offset) {
	if !a.enabled {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.history) > 0 {
		prev := a.history[len(a.history)-1]
		a.learn(prev, offset)
	}

	a.history = append(a.history, offset)
	if len(a.history) > MarkovDepth {
		a.history = a.history[len(a.history)-MarkovDepth:]
	}
}

// learn records a prev -> next transition in prev's predictor entry.
func (a *Anticipator) learn(prev, next types.Offset) {
	e, ok := a.table.Get(prev)
	if !ok {
		e = &predictorEntry{}
	}
	e.freq++
	e.lastSeen = time.Now()

	for i := range e.nextOffsets {
		if e.nextOffsets[i] == next && e.nextConf[i] > 0 {
			e.nextConf[i]++
			a.table.Add(prev, e)
			return
		}
	}
	// Replace the weakest successor slot.
	worst := 0
	for i := 1; i < MarkovDepth; i++ {
		if e.nextConf[i] < e.nextConf[worst] {
			worst = i
		}
	}
	e.nextOffsets[worst] = next
	e.nextConf[worst] = 1
	a.table.Add(prev, e)
}

// PrefetchOK reports whether the most recently observed offset predicts
// next with confidence >= confidenceThreshold and recency < recencyWindow.
// Older offsets in the history are not consulted.
func (a *Anticipator) PrefetchOK(next types.Offset) bool {
	if !a.enabled {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.history) == 0 {
		return false
	}
	ancestor := a.history[len(a.history)-1]
	e, ok := a.table.Get(ancestor)
	if !ok {
		return false
	}
	if time.Since(e.lastSeen) >= recencyWindow {
		return false
	}
	for i := range e.nextOffsets {
		if e.nextOffsets[i] == next && e.nextConf[i] >= confidenceThreshold {
			return true
		}
	}
	return false
}
