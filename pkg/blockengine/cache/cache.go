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

// Package cache is a fixed-capacity, sharded, write-back page cache with
// LRU eviction, keyed by block offset.
//
// Locking discipline: one shard mutex protects each hash bucket chain,
// one global LRU mutex protects the doubly-linked LRU list and the
// entry counter. Acquisition order is shard-then-LRU; the LRU mutex is
// never held while acquiring a shard mutex. Entries live in a
// fixed-capacity arena (slab) referenced by stable int32 handles rather
// than pointers, so the arena never reallocates under concurrent access
// (see DESIGN.md).
package cache

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/good-night-oppie/blockengine/pkg/blockengine/backingstore"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/blockindex"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/types"
)

// Tunable constants (spec §4.3). HashSize and MutexGroups are fixed at
// construction; MaxEntries is a Config field.
const (
	HashSize    = 2048
	MutexGroups = 16
)

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

const noHandle int32 = -1

type node struct {
	offset     types.Offset
	page       types.Page
	dirty      bool
	lastAccess time.Time
	prevLRU    int32
	nextLRU    int32
	nextBucket int32
}

// Config configures a Cache.
type Config struct {
	MaxEntries int // cache capacity in entries
	Logger     *slog.Logger
	Index      *blockindex.Index // optional advisory checksum sidecar
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
}

// Cache is a fixed-capacity, sharded, write-back LRU page cache.
type Cache struct {
	maxEntries int
	store      *backingstore.Store
	index      *blockindex.Index
	logger     *slog.Logger

	shardMu  [MutexGroups]sync.Mutex
	buckets  [HashSize]int32

	lruMu sync.Mutex
	head  int32
	tail  int32
	count int

	slabMu sync.Mutex
	slab   []node
	free   []int32

	statsMu   sync.Mutex
	hits      uint64
	misses    uint64
	evictions uint64
}

// New builds a Cache backed by store, with arena capacity sized to
// cfg.MaxEntries plus slack for the transient window between a miss
// insertion and its eviction pass.
func New(store *backingstore.Store, cfg Config) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = defaultLogger
	}
	slack := MutexGroups * 4
	capacity := cfg.MaxEntries + slack

	c := &Cache{
		maxEntries: cfg.MaxEntries,
		store:      store,
		index:      cfg.Index,
		logger:     logger,
		head:       noHandle,
		tail:       noHandle,
		slab:       make([]node, capacity),
		free:       make([]int32, capacity),
	}
	for i := range c.buckets {
		c.buckets[i] = noHandle
	}
	for i := range c.slab {
		c.slab[i].prevLRU = noHandle
		c.slab[i].nextLRU = noHandle
		c.slab[i].nextBucket = noHandle
		c.free[i] = int32(capacity - 1 - i)
	}
	return c
}

func bucketFor(offset types.Offset) int {
	// Offsets are already block-aligned; mix the block index with an
	// FNV-1a-style multiplicative step before folding into HashSize.
	const fnvPrime = 1099511628211
	h := uint64(offset.BlockIndex())
	h ^= h >> 33
	h *= fnvPrime
	h ^= h >> 29
	return int(h % HashSize)
}

func shardFor(bucket int) int {
	return bucket % MutexGroups
}

// Get returns a pointer into the cache's own arena slot for offset,
// reading through the backing store on a miss. If writeIntent is true,
// the entry is marked dirty. The returned pointer aliases the cache's
// storage directly (mirroring the original C cache_get's pointer
// semantics): a caller that mutates *Page through it is mutating the
// page the cache will later write back on eviction or Destroy, not a
// private copy. Callers must finish any such mutation before the next
// cache operation that could evict this offset's entry.
func (c *Cache) Get(offset types.Offset, writeIntent bool) (*types.Page, error) {
	bucket := bucketFor(offset)
	shard := shardFor(bucket)

	c.shardMu[shard].Lock()
	if h := c.findLocked(bucket, offset); h != noHandle {
		if writeIntent {
			c.slab[h].dirty = true
		}
		c.slab[h].lastAccess = time.Now()
		page := &c.slab[h].page
		c.shardMu[shard].Unlock()

		c.touchLRU(h)
		c.recordHit()
		return page, nil
	}

	// Miss: allocate a handle, read the block, and link the handle into
	// both the bucket chain and the LRU list before releasing the shard
	// lock. Releasing the shard lock between the bucket insert and the
	// LRU insert let a concurrent Get for the same offset find the
	// entry via findLocked and push it to the LRU head itself, racing
	// the filler's own push and leaving the node self-referencing
	// (prevLRU == nextLRU == h); holding the shard lock across the full
	// fill, including the read, closes that window at the cost of
	// serializing same-shard Gets behind one miss's I/O.
	handle := c.allocHandle()
	c.slab[handle].offset = offset
	c.slab[handle].dirty = false

	data, err := c.store.Read(offset, types.BlockSize)
	if err != nil {
		c.shardMu[shard].Unlock()
		c.freeHandle(handle)
		c.recordMiss()
		return nil, err
	}

	copy(c.slab[handle].page[:], data)
	if c.index != nil {
		c.index.Check(offset, &c.slab[handle].page)
	}
	c.slab[handle].lastAccess = time.Now()
	if writeIntent {
		c.slab[handle].dirty = true
	}
	c.slab[handle].nextBucket = c.buckets[bucket]
	c.buckets[bucket] = handle

	c.lruMu.Lock()
	c.pushHeadLocked(handle)
	c.count++
	over := c.count > c.maxEntries
	c.lruMu.Unlock()

	c.shardMu[shard].Unlock()

	if over {
		c.evictOne()
	}

	c.recordMiss()
	return &c.slab[handle].page, nil
}

// findLocked scans bucket's chain for offset. Caller must hold the
// shard mutex for bucket.
func (c *Cache) findLocked(bucket int, offset types.Offset) int32 {
	h := c.buckets[bucket]
	for h != noHandle {
		if c.slab[h].offset == offset {
			return h
		}
		h = c.slab[h].nextBucket
	}
	return noHandle
}

func (c *Cache) unlinkBucketLocked(bucket int, handle int32) {
	cur := c.buckets[bucket]
	prev := noHandle
	for cur != noHandle {
		if cur == handle {
			if prev == noHandle {
				c.buckets[bucket] = c.slab[cur].nextBucket
			} else {
				c.slab[prev].nextBucket = c.slab[cur].nextBucket
			}
			c.slab[cur].nextBucket = noHandle
			return
		}
		prev = cur
		cur = c.slab[cur].nextBucket
	}
}

func (c *Cache) touchLRU(h int32) {
	c.lruMu.Lock()
	c.unlinkLRULocked(h)
	c.pushHeadLocked(h)
	c.lruMu.Unlock()
}

func (c *Cache) unlinkLRULocked(h int32) {
	n := &c.slab[h]
	if n.prevLRU != noHandle {
		c.slab[n.prevLRU].nextLRU = n.nextLRU
	} else if c.head == h {
		c.head = n.nextLRU
	}
	if n.nextLRU != noHandle {
		c.slab[n.nextLRU].prevLRU = n.prevLRU
	} else if c.tail == h {
		c.tail = n.prevLRU
	}
	n.prevLRU = noHandle
	n.nextLRU = noHandle
}

func (c *Cache) pushHeadLocked(h int32) {
	n := &c.slab[h]
	n.prevLRU = noHandle
	n.nextLRU = c.head
	if c.head != noHandle {
		c.slab[c.head].prevLRU = h
	}
	c.head = h
	if c.tail == noHandle {
		c.tail = h
	}
}

// evictOne evicts the current LRU tail. If the tail changed between
// picking it (under the LRU lock) and acquiring its shard lock, the
// pick is retried.
func (c *Cache) evictOne() {
	for {
		c.lruMu.Lock()
		tail := c.tail
		if tail == noHandle {
			c.lruMu.Unlock()
			return
		}
		offset := c.slab[tail].offset
		c.lruMu.Unlock()

		bucket := bucketFor(offset)
		shard := shardFor(bucket)
		c.shardMu[shard].Lock()

		c.lruMu.Lock()
		stillTail := c.tail == tail && c.slab[tail].offset == offset
		c.lruMu.Unlock()
		if !stillTail {
			c.shardMu[shard].Unlock()
			continue
		}

		c.unlinkBucketLocked(bucket, tail)
		dirty := c.slab[tail].dirty
		page := c.slab[tail].page
		c.shardMu[shard].Unlock()

		if dirty {
			if err := c.store.Write(offset, page[:]); err != nil {
				c.logger.Warn("evict: write-back failed",
					"component", "cache", "offset", offset.String(), "error", err)
			}
		}

		c.lruMu.Lock()
		c.unlinkLRULocked(tail)
		c.count--
		c.lruMu.Unlock()

		c.freeHandle(tail)
		c.recordEviction()
		return
	}
}

func (c *Cache) allocHandle() int32 {
	c.slabMu.Lock()
	n := len(c.free)
	if n == 0 {
		// Arena exhausted: more Gets are in-flight concurrently than
		// the configured slack allows. Force a synchronous eviction
		// to free a handle and retry the pop.
		c.slabMu.Unlock()
		c.evictOne()
		c.slabMu.Lock()
		n = len(c.free)
		if n == 0 {
			c.slabMu.Unlock()
			panic("cache: arena exhausted despite eviction")
		}
	}
	h := c.free[n-1]
	c.free = c.free[:n-1]
	c.slabMu.Unlock()
	return h
}

func (c *Cache) freeHandle(h int32) {
	c.slabMu.Lock()
	c.slab[h] = node{prevLRU: noHandle, nextLRU: noHandle, nextBucket: noHandle}
	c.free = append(c.free, h)
	c.slabMu.Unlock()
}

func (c *Cache) recordHit() {
	c.statsMu.Lock()
	c.hits++
	c.statsMu.Unlock()
}

func (c *Cache) recordMiss() {
	c.statsMu.Lock()
	c.misses++
	c.statsMu.Unlock()
}

func (c *Cache) recordEviction() {
	c.statsMu.Lock()
	c.evictions++
	c.statsMu.Unlock()
}

// Stats returns hit/miss/eviction counters and the current entry count.
func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	hits, misses, evictions := c.hits, c.misses, c.evictions
	c.statsMu.Unlock()

	c.lruMu.Lock()
	entries := c.count
	c.lruMu.Unlock()

	return Stats{Hits: hits, Misses: misses, Evictions: evictions, Entries: entries}
}

// Destroy writes back every dirty entry and empties the bucket chains
// and the LRU list. The Cache must not be used after Destroy returns.
func (c *Cache) Destroy() {
	for bucket := 0; bucket < HashSize; bucket++ {
		shard := shardFor(bucket)
		c.shardMu[shard].Lock()
		h := c.buckets[bucket]
		for h != noHandle {
			if c.slab[h].dirty {
				offset := c.slab[h].offset
				page := c.slab[h].page
				if err := c.store.Write(offset, page[:]); err != nil {
					c.logger.Warn("destroy: write-back failed",
						"component", "cache", "offset", offset.String(), "error", err)
				}
			}
			h = c.slab[h].nextBucket
		}
		c.buckets[bucket] = noHandle
		c.shardMu[shard].Unlock()
	}
	c.lruMu.Lock()
	c.head, c.tail, c.count = noHandle, noHandle, 0
	c.lruMu.Unlock()
}
