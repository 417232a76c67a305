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

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/good-night-oppie/blockengine/cmd/blockengine/internal/cli"
	"github.com/good-night-oppie/blockengine/internal/config"
)

// Version metadata. Overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	switch os.Args[1] {
	case "run":
		handleRun()
	case "stats":
		handleStats()
	case "version", "--version", "-v":
		handleVersion()
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println(`blockengine
Commands:
  run      [--cores N] [--segment-mb N] [--cache-mb N] [--max-entries N]
           [--swap-img PATH] [--migration-threshold N] [--index-path PATH]
           [--anticipator]
  stats    [same flags as run]
  version  [-v|--version]`)
}

func newConfig(fs *flag.FlagSet, args []string) config.Config {
	cfg := config.Default()

	cores := fs.Int("cores", cfg.Cores, "worker core count")
	segmentMB := fs.Int("segment-mb", cfg.SegmentMB, "per-core segment size in MiB")
	cacheMB := fs.Int("cache-mb", cfg.CacheMB, "ring log size in MiB")
	maxEntries := fs.Int("max-entries", cfg.MaxCacheEntries, "cache capacity in entries")
	swapImg := fs.String("swap-img", cfg.SwapImgPath, "backing file path")
	migrationThreshold := fs.Int("migration-threshold", cfg.MigrationThreshold, "load-imbalance threshold")
	indexPath := fs.String("index-path", cfg.BlockIndexPath, "advisory checksum index path (empty disables)")
	anticipatorOn := fs.Bool("anticipator", cfg.AnticipatorEnabled, "enable prefetch anticipator")
	_ = fs.Parse(args)

	cfg.Cores = *cores
	cfg.SegmentMB = *segmentMB
	cfg.CacheMB = *cacheMB
	cfg.MaxCacheEntries = *maxEntries
	cfg.SwapImgPath = *swapImg
	cfg.MigrationThreshold = *migrationThreshold
	cfg.BlockIndexPath = *indexPath
	cfg.AnticipatorEnabled = *anticipatorOn
	return cfg
}

func handleRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	engCfg := newConfig(fs, os.Args[2:])

	cliCfg := cli.Config{EngineFactory: cli.DefaultEngineFactory}
	if err := cli.HandleRun(os.Stdout, cliCfg, engCfg); err != nil {
		die(err)
	}
}

func handleStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	engCfg := newConfig(fs, os.Args[2:])

	cliCfg := cli.Config{EngineFactory: cli.DefaultEngineFactory}
	if err := cli.HandleStats(os.Stdout, cliCfg, engCfg); err != nil {
		die(err)
	}
}

// handleVersion prints CLI version information.
func handleVersion() {
	fmt.Printf("blockengine %s (commit %s, built %s)\n", version, commit, date)
}

func die(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
