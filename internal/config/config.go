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

// Package config exposes the recognized configuration constants of
// spec.md §6 as a Config struct with defaults plus functional options,
// mirroring the teacher's BLAKE3StoreConfig/BLAKE3StoreOption pattern.
package config

import "time"

// Config holds every tunable named in spec.md §6.
type Config struct {
	Cores               int
	SegmentMB           int
	CacheMB             int // ring buffer size
	MaxCacheEntries     int
	MigrationThreshold  int
	CompressionMinLvl   int
	CompressionMaxLvl   int
	AdaptiveThreshold   float64
	SwapImgPath         string
	LoadThreshold       int
	HighLoadDelay       time.Duration
	LowLoadDelay        time.Duration
	BaseLoadDelay       time.Duration
	AnticipatorEnabled  bool
	BlockIndexPath      string // "" disables the advisory sidecar
}

// Option is a functional option for Config.
type Option func(*Config)

// Default returns the default configuration.
func Default() Config {
	return Config{
		Cores:              4,
		SegmentMB:          64,
		CacheMB:            16,
		MaxCacheEntries:     4096,
		MigrationThreshold: 5,
		CompressionMinLvl:  1,
		CompressionMaxLvl:  19,
		AdaptiveThreshold:  0.6,
		SwapImgPath:        "./storage_swap.img",
		LoadThreshold:      100,
		HighLoadDelay:      5 * time.Millisecond,
		LowLoadDelay:       0,
		BaseLoadDelay:      1 * time.Millisecond,
		AnticipatorEnabled: false,
		BlockIndexPath:     "",
	}
}

// New builds a Config from defaults plus opts.
func New(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithCores(n int) Option              { return func(c *Config) { c.Cores = n } }
func WithSegmentMB(mb int) Option         { return func(c *Config) { c.SegmentMB = mb } }
func WithCacheMB(mb int) Option           { return func(c *Config) { c.CacheMB = mb } }
func WithMaxCacheEntries(n int) Option    { return func(c *Config) { c.MaxCacheEntries = n } }
func WithMigrationThreshold(n int) Option { return func(c *Config) { c.MigrationThreshold = n } }
func WithSwapImgPath(p string) Option     { return func(c *Config) { c.SwapImgPath = p } }
func WithAnticipatorEnabled(b bool) Option {
	return func(c *Config) { c.AnticipatorEnabled = b }
}
func WithBlockIndexPath(p string) Option { return func(c *Config) { c.BlockIndexPath = p } }

// SegmentBytes returns the per-core segment size in bytes.
func (c Config) SegmentBytes() int64 {
	return int64(c.SegmentMB) << 20
}

// CacheBytes returns the ring log capacity in bytes.
func (c Config) CacheBytes() int {
	return c.CacheMB << 20
}
