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

package cli

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/good-night-oppie/blockengine/internal/config"
	"github.com/good-night-oppie/blockengine/pkg/blockengine/worker"
)

// EngineFactory builds a running engine from cfg. Exposed for testing.
type EngineFactory func(cfg config.Config) (*worker.Engine, error)

// Config holds dependencies for CLI handlers.
type Config struct {
	EngineFactory EngineFactory
}

// DefaultEngineFactory builds a real engine.
func DefaultEngineFactory(cfg config.Config) (*worker.Engine, error) {
	return worker.NewEngine(cfg, nil)
}

// HandleRun starts the engine and blocks until SIGINT/SIGTERM, then
// drains workers and flushes the cache before returning.
func HandleRun(w io.Writer, cliCfg Config, engCfg config.Config) error {
	eng, err := cliCfg.EngineFactory(engCfg)
	if err != nil {
		return err
	}
	eng.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	eng.Stop()
	return json.NewEncoder(w).Encode(map[string]any{"status": "stopped"})
}

// HandleStats prints a point-in-time snapshot of cache and engine
// metrics. It builds an engine without starting its workers, reads the
// stats and stops it, so the command is usable without a long-running
// process.
func HandleStats(w io.Writer, cliCfg Config, engCfg config.Config) error {
	eng, err := cliCfg.EngineFactory(engCfg)
	if err != nil {
		return err
	}
	defer eng.Stop()

	cacheStats, snap := eng.Stats()
	out := map[string]any{
		"cache": map[string]any{
			"hits":    cacheStats.Hits,
			"misses":  cacheStats.Misses,
			"entries": cacheStats.Entries,
		},
		"engine": map[string]any{
			"iteration_us_p50": snap.P50,
			"iteration_us_p95": snap.P95,
			"iteration_us_p99": snap.P99,
			"blocks_read":      snap.BlocksRead,
			"blocks_written":   snap.BlocksWritten,
			"migrations":       snap.Migrations,
		},
	}
	return json.NewEncoder(w).Encode(out)
}
