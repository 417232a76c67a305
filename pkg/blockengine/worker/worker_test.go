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

package worker_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/good-night-oppie/blockengine/internal/config"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/worker"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.New(
		config.WithCores(2),
		config.WithSegmentMB(1),
		config.WithCacheMB(1),
		config.WithMaxCacheEntries(64),
		config.WithSwapImgPath(filepath.Join(t.TempDir(), "swap.img")),
	)
}

func TestEngine_StartStop_MakesProgress(t *testing.T) {
	eng, err := worker.NewEngine(testConfig(t), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	eng.Start()
	time.Sleep(20 * time.Millisecond)
	eng.Stop()

	cacheStats, snap := eng.Stats()
	if snap.BlocksRead == 0 {
		t.Fatal("expected at least one block read during the run")
	}
	_ = cacheStats
}

func TestEngine_StatsAfterIdleStop(t *testing.T) {
	eng, err := worker.NewEngine(testConfig(t), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	eng.Stop() // never started: must not block or panic
	_, snap := eng.Stats()
	if snap.BlocksRead != 0 {
		t.Fatalf("expected zero blocks read for an engine that never ran, got %d", snap.BlocksRead)
	}
}

func TestEngine_WithAnticipatorEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.AnticipatorEnabled = true

	eng, err := worker.NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	eng.Start()
	time.Sleep(20 * time.Millisecond)
	eng.Stop()

	_, snap := eng.Stats()
	if snap.BlocksRead == 0 {
		t.Fatal("expected forward progress with the anticipator enabled")
	}
}

func TestEngine_WithBlockIndexEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.BlockIndexPath = filepath.Join(t.TempDir(), "index")

	eng, err := worker.NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	eng.Start()
	time.Sleep(20 * time.Millisecond)
	eng.Stop()

	_, snap := eng.Stats()
	if snap.BlocksWritten == 0 {
		t.Fatal("expected at least one write-back with the advisory index wired in")
	}
}
