// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/docopt/docopt-go"
	"github.com/goccy/go-json"
	"golang.org/x/xerrors"
)

const usage = `Heap Stress.
Usage:
  heapstress -h | --help
  heapstress [--allocator=NAME] [--workers=N] [--rounds=N] [--max-size=BYTES]
             [--live=N] [--seed=N] [--json]
Options:
  -h --help          Show this screen.
  --allocator=NAME   Platform allocator to stress: go, mmap or malloc [default: go].
  --workers=N        Number of concurrent workers [default: 4].
  --rounds=N         Allocations made by each worker [default: 10000].
  --max-size=BYTES   Largest block requested [default: 65536].
  --live=N           Blocks each worker keeps alive at once [default: 64].
  --seed=N           Seed for sizes, alignments and fill patterns [default: 1].
  --json             Format the report as JSON instead of text.`

func main() {
	opts, _ := docopt.ParseDoc(usage)

	cfg, asJSON, err := parseConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	newAlloc, ok := allocators[cfg.Allocator]
	if !ok {
		fmt.Fprintf(os.Stderr, "error: unknown allocator %q, available: %s\n",
			cfg.Allocator, strings.Join(allocatorNames(), ", "))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep, runErr := run(ctx, newAlloc(), cfg)
	if err := writeReport(os.Stdout, rep, asJSON); err != nil {
		fmt.Fprintln(os.Stderr, "error writing report:", err)
		os.Exit(1)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		os.Exit(1)
	}
}

func parseConfig(opts docopt.Opts) (cfg config, asJSON bool, err error) {
	if cfg.Allocator, err = opts.String("--allocator"); err != nil {
		return
	}
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"--workers", &cfg.Workers},
		{"--rounds", &cfg.Rounds},
		{"--max-size", &cfg.MaxSize},
		{"--live", &cfg.Live},
	} {
		if *f.dst, err = opts.Int(f.key); err != nil {
			err = xerrors.Errorf("%s needs an integer: %w", f.key, err)
			return
		}
	}
	seed, err := opts.Int("--seed")
	if err != nil {
		err = xerrors.Errorf("--seed needs an integer: %w", err)
		return
	}
	cfg.Seed = int64(seed)
	asJSON, _ = opts.Bool("--json")
	return cfg, asJSON, cfg.validate()
}

func writeReport(w io.Writer, rep report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	_, err := fmt.Fprintf(w, `allocator:   %s
workers:     %d
blocks:      %d
bytes:       %d
failed:      %d
by align:    1=%d 2=%d 4=%d 8=%d
leaked:      %d
elapsed:     %s
`, rep.Allocator, rep.Workers, rep.Blocks, rep.Bytes, rep.Failed,
		rep.BlocksByAlign[1], rep.BlocksByAlign[2], rep.BlocksByAlign[4], rep.BlocksByAlign[8],
		rep.LeakedBytes, rep.Elapsed)
	return err
}
