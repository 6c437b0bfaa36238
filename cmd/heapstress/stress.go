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
	"math/rand"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/rawheap/rawheap/internal/utils"
	"github.com/rawheap/rawheap/memory"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

var alignments = [...]int{1, 2, 4, 8}

type config struct {
	Allocator string
	Workers   int
	Rounds    int
	MaxSize   int
	Live      int
	Seed      int64
}

type report struct {
	Allocator     string        `json:"allocator"`
	Workers       int           `json:"workers"`
	Blocks        int64         `json:"blocks"`
	Bytes         int64         `json:"bytes"`
	Failed        int64         `json:"failed_allocations"`
	BlocksByAlign map[int]int64 `json:"blocks_by_align"`
	Elapsed       time.Duration `json:"elapsed_ns"`
	LeakedBytes   int           `json:"leaked_bytes"`
}

type block struct {
	ptr         unsafe.Pointer
	size, align int
	sum         uint64
}

type counters struct {
	blocks, bytes, failed atomic.Int64
	byAlign               [len(alignments)]atomic.Int64
}

func (c config) validate() error {
	switch {
	case c.Workers <= 0:
		return xerrors.Errorf("workers must be positive, got %d", c.Workers)
	case c.Rounds < 0:
		return xerrors.Errorf("rounds must not be negative, got %d", c.Rounds)
	case c.MaxSize < 8:
		return xerrors.Errorf("max size must be at least 8 bytes, got %d", c.MaxSize)
	case c.Live <= 0:
		return xerrors.Errorf("live blocks must be positive, got %d", c.Live)
	}
	return nil
}

// run drives cfg.Workers goroutines against mem. Each worker keeps up to
// cfg.Live blocks alive, fills every block with its own pattern and checks
// the pattern is intact right before the block is released.
func run(ctx context.Context, mem memory.Allocator, cfg config) (report, error) {
	if err := cfg.validate(); err != nil {
		return report{}, err
	}

	checked := memory.NewCheckedAllocator(mem)
	var stats counters

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		w := w
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = utils.FormatRecoveredError(fmt.Sprintf("worker %d", w), r)
				}
			}()
			return stress(ctx, checked, cfg, rand.New(rand.NewSource(cfg.Seed+int64(w))), &stats)
		})
	}
	err := g.Wait()

	rep := report{
		Allocator:     cfg.Allocator,
		Workers:       cfg.Workers,
		Blocks:        stats.blocks.Load(),
		Bytes:         stats.bytes.Load(),
		Failed:        stats.failed.Load(),
		BlocksByAlign: make(map[int]int64, len(alignments)),
		Elapsed:       time.Since(start),
		LeakedBytes:   checked.CurrentAlloc(),
	}
	for i, align := range alignments {
		rep.BlocksByAlign[align] = stats.byAlign[i].Load()
	}
	if err != nil {
		return rep, err
	}
	if rep.LeakedBytes != 0 {
		return rep, xerrors.Errorf("%d bytes still allocated after the run", rep.LeakedBytes)
	}
	return rep, nil
}

func stress(ctx context.Context, mem memory.Allocator, cfg config, rng *rand.Rand, stats *counters) error {
	live := make([]block, 0, cfg.Live)
	defer func() {
		for _, b := range live {
			mem.Deallocate(b.ptr, b.size, b.align)
		}
	}()

	// release always returns the block, even when its pattern is damaged.
	release := func(b block) error {
		intact := xxh3.Hash(memory.Bytes(b.ptr, b.size)) == b.sum
		mem.Deallocate(b.ptr, b.size, b.align)
		if !intact {
			return xerrors.Errorf("block %p (size %d, align %d) corrupted", b.ptr, b.size, b.align)
		}
		return nil
	}

	for i := 0; i < cfg.Rounds; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		idx := rng.Intn(len(alignments))
		align := alignments[idx]
		size := (rng.Intn(cfg.MaxSize/align) + 1) * align

		ptr := mem.Allocate(size, align)
		if ptr == nil {
			stats.failed.Add(1)
			continue
		}
		if !memory.IsAligned(ptr, align) {
			mem.Deallocate(ptr, size, align)
			return xerrors.Errorf("block %p not aligned to %d", ptr, align)
		}

		buf := memory.Bytes(ptr, size)
		memory.Set(buf, byte(rng.Intn(256)))
		buf[0], buf[size-1] = byte(i), byte(i>>8)

		stats.blocks.Add(1)
		stats.bytes.Add(int64(size))
		stats.byAlign[idx].Add(1)

		live = append(live, block{ptr: ptr, size: size, align: align, sum: xxh3.Hash(buf)})
		if len(live) > cfg.Live {
			victim := rng.Intn(len(live))
			b := live[victim]
			live[victim] = live[len(live)-1]
			live = live[:len(live)-1]
			if err := release(b); err != nil {
				return err
			}
		}
	}

	for len(live) > 0 {
		b := live[len(live)-1]
		live = live[:len(live)-1]
		if err := release(b); err != nil {
			return err
		}
	}
	return nil
}
