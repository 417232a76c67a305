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

// Package worker composes the cache, compressor, scheduler and backing
// store into the per-core worker loop, and an Engine type that owns the
// shared components and the pool of per-core goroutines.
package worker

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/good-night-oppie/blockengine/internal/config"
	"github.com/good-night-oppie/blockengine/internal/metrics"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/anticipator"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/backingstore"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/blockindex"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/cache"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/compressor"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/ring"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/scheduler"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/types"
)

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// Worker state machine: Running -> Draining (running flag cleared) ->
// Stopped. No other states.
type state int32

const (
	stateRunning state = iota
	stateDraining
	stateStopped
)

// Worker sweeps its own segment of the backing file, cooperating with
// the Scheduler for cross-core migration.
type Worker struct {
	coreID       int
	segmentBase  types.Offset
	blocksPerSeg uint64

	cache *cache.Cache
	store *backingstore.Store
	comp  *compressor.Compressor
	sched *scheduler.Scheduler
	ring  *ring.Ring
	antic *anticipator.Anticipator
	em    *metrics.EngineMetrics
	index *blockindex.Index
	log   *slog.Logger

	cfg config.Config

	running *atomic.Int32 // shared global running flag
	pos     uint64         // private monotonically advancing cursor
	state   atomic.Int32

	prevOrigSize int
	prevCompSize int
}

// newWorker builds a Worker pinned to segment
// [coreID*segmentSize, (coreID+1)*segmentSize).
func newWorker(coreID int, cfg config.Config, running *atomic.Int32, shared *sharedComponents) *Worker {
	segBytes := cfg.SegmentBytes()
	return &Worker{
		coreID:       coreID,
		segmentBase:  types.Offset(int64(coreID) * segBytes),
		blocksPerSeg: uint64(segBytes) / types.BlockSize,
		cache:        shared.cache,
		store:        shared.store,
		comp:         shared.comp,
		sched:        shared.sched,
		ring:         shared.ring,
		antic:        shared.antic,
		em:           shared.em,
		index:        shared.index,
		log:          shared.log,
		cfg:          cfg,
		running:      running,
	}
}

// Run executes the worker loop until the shared running flag clears.
func (w *Worker) Run() {
	w.state.Store(int32(stateRunning))
	for w.running.Load() != 0 {
		w.iteration()
	}
	w.state.Store(int32(stateDraining))
	w.state.Store(int32(stateStopped))
}

func (w *Worker) iteration() {
	start := time.Now()
	defer func() { w.em.ObserveIteration(time.Since(start)) }()

	// Step 1: circular sweep of own segment.
	idx := atomic.AddUint64(&w.pos, 1) - 1
	offset := w.segmentBase + types.Offset((idx%w.blocksPerSeg)*types.BlockSize)

	// Step 2: report access, feed the anticipator.
	w.sched.ReportAccess(w.coreID, offset)
	w.antic.Observe(offset)

	// Step 3: opportunistic migration.
	if w.sched.ShouldMigrate(w.coreID) {
		if stolen, ok := w.sched.GetMigratedTask(w.coreID); ok {
			offset = stolen
			w.em.AddMigrations(1)
		}
	}

	// Step 4-5: read through cache. Get returns a pointer into the
	// cache's own arena slot, so every mutation below (the transform)
	// is applied to the page the cache itself will write back on
	// eviction or Destroy, not a private copy.
	page, err := w.cache.Get(offset, true)
	if err != nil {
		w.log.Warn("worker: cache get failed",
			"component", "worker", "core", w.coreID, "offset", offset.String(), "error", err)
		time.Sleep(w.cfg.BaseLoadDelay)
		return
	}
	w.em.AddBlocksRead(1)

	// Step 6: best-effort prefetch, gated by the anticipator when enabled.
	w.maybePrefetch(offset)

	// Step 7: deterministic, reversible transform, applied in place.
	transform(page, w.coreID)

	// Step 8: prior-ratio compression policy, then encode.
	level := compressor.LevelFromPriorRatio(w.prevOrigSize, w.prevCompSize,
		w.cfg.AdaptiveThreshold, w.cfg.CompressionMinLvl, w.cfg.CompressionMaxLvl)
	algo := w.comp.SelectAlgorithm(page[:])
	out, _, _, err := w.comp.Compress(page[:], level, algo)

	// Step 9: write back compressed bytes, or skip on compression failure
	// (the page stays dirty in the cache for a later attempt).
	if err == nil && len(out) > 0 {
		if werr := w.store.Write(offset, out); werr != nil {
			w.log.Warn("worker: write-back failed",
				"component", "worker", "core", w.coreID, "offset", offset.String(), "error", werr)
		} else {
			w.em.AddBlocksWritten(1)
			if w.index != nil {
				w.index.Put(offset, page, algo, level, len(out))
			}
			w.prevOrigSize = len(page)
			w.prevCompSize = len(out)
		}
	}

	// Step 10: append to the ring log.
	if rerr := w.ring.Append(page[:]); rerr != nil {
		w.log.Warn("worker: ring append failed",
			"component", "worker", "core", w.coreID, "error", rerr)
	}

	// Step 11: opportunistic rebalance.
	w.sched.BalanceLoad()

	// Step 12: load-adaptive sleep.
	w.pace()
}

func (w *Worker) maybePrefetch(offset types.Offset) {
	next := offset + types.BlockSize
	if w.cfg.AnticipatorEnabled && !w.antic.PrefetchOK(next) {
		return
	}
	_, _ = w.store.Read(next, types.BlockSize)
}

// transform XORs every byte of buf with core_id, simulating per-core
// load. Deterministic and its own inverse.
func transform(buf *types.Page, coreID int) {
	b := byte(coreID)
	for i := range buf {
		buf[i] ^= b
	}
}

// pace sleeps according to this core's queue depth relative to
// cfg.LoadThreshold.
func (w *Worker) pace() {
	load := w.sched.QueueLen(w.coreID)
	switch {
	case load > w.cfg.LoadThreshold:
		time.Sleep(w.cfg.HighLoadDelay)
	case load < w.cfg.LoadThreshold/2:
		time.Sleep(w.cfg.LowLoadDelay)
	default:
		time.Sleep(w.cfg.BaseLoadDelay)
	}
}

// sharedComponents bundles everything workers share, assembled once by
// the Engine.
type sharedComponents struct {
	cache *cache.Cache
	store *backingstore.Store
	comp  *compressor.Compressor
	sched *scheduler.Scheduler
	ring  *ring.Ring
	antic *anticipator.Anticipator
	em    *metrics.EngineMetrics
	index *blockindex.Index
	log   *slog.Logger
}

// Engine owns the shared components and the pool of per-core workers.
type Engine struct {
	cfg     config.Config
	shared  *sharedComponents
	workers []*Worker
	running atomic.Int32
	wg      sync.WaitGroup
}

// NewEngine opens the backing store (and optional advisory index),
// builds the cache/compressor/scheduler/ring, and constructs one Worker
// per configured core. Only backing-file open, index open, compressor
// construction, or mutex/thread-create style failures are fatal here
// (spec.md §7).
func NewEngine(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = defaultLogger
	}

	store, err := backingstore.Open(cfg.SwapImgPath, logger)
	if err != nil {
		return nil, err
	}

	var idx *blockindex.Index
	if cfg.BlockIndexPath != "" {
		idx, err = blockindex.Open(cfg.BlockIndexPath, logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	comp, err := compressor.New(logger)
	if err != nil {
		_ = store.Close()
		_ = idx.Close()
		return nil, err
	}

	c := cache.New(store, cache.Config{
		MaxEntries: cfg.MaxCacheEntries,
		Logger:     logger,
		Index:      idx,
	})
	r := ring.New(cfg.CacheBytes(), logger)
	sched := scheduler.New(cfg.Cores, cfg.MigrationThreshold)
	antic := anticipator.New(cfg.AnticipatorEnabled)
	em := metrics.NewEngineMetrics()

	shared := &sharedComponents{
		cache: c, store: store, comp: comp, sched: sched,
		ring: r, antic: antic, em: em, index: idx, log: logger,
	}

	e := &Engine{cfg: cfg, shared: shared}
	e.workers = make([]*Worker, cfg.Cores)
	for i := 0; i < cfg.Cores; i++ {
		e.workers[i] = newWorker(i, cfg, &e.running, shared)
	}
	return e, nil
}

// Start launches one goroutine per worker.
func (e *Engine) Start() {
	e.running.Store(1)
	for _, w := range e.workers {
		w := w
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			w.Run()
		}()
	}
}

// Stop clears the running flag, waits for every worker to drain, then
// flushes the cache and destroys the ring and backing store.
func (e *Engine) Stop() {
	e.running.Store(0)
	e.wg.Wait()
	e.shared.cache.Destroy()
	e.shared.ring.Destroy()
	e.shared.comp.Close()
	_ = e.shared.index.Close()
	_ = e.shared.store.Close()
}

// Stats returns cache stats and engine metrics for the CLI `stats`
// command.
func (e *Engine) Stats() (cache.Stats, metrics.Snapshot) {
	return e.shared.cache.Stats(), e.shared.em.Snapshot()
}
