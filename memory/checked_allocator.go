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

package memory

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"unsafe"
)

// CheckedAllocator wraps an Allocator and records every live block. It
// reports leaked blocks and turns misuse that would otherwise be undefined
// behavior into panics: releasing an unknown or already released pointer,
// releasing with a different alignment, and releasing with a size outside the
// range between the requested and the usable size.
type CheckedAllocator struct {
	mem Allocator
	sz  int64

	allocs sync.Map
}

func NewCheckedAllocator(mem Allocator) *CheckedAllocator {
	return &CheckedAllocator{mem: mem}
}

// CurrentAlloc returns the number of requested bytes not yet deallocated.
func (a *CheckedAllocator) CurrentAlloc() int { return int(atomic.LoadInt64(&a.sz)) }

func (a *CheckedAllocator) Allocate(size, align int) unsafe.Pointer {
	out := a.mem.Allocate(size, align)
	if out == nil || size == 0 {
		return out
	}

	atomic.AddInt64(&a.sz, int64(size))
	info := &dalloc{sz: size, align: align, usable: UsableSize(a.mem, size, align)}
	if pc, _, l, ok := runtime.Caller(allocFrames); ok {
		info.pc, info.line = pc, l
	}
	a.allocs.Store(uintptr(out), info)
	return out
}

func (a *CheckedAllocator) Deallocate(ptr unsafe.Pointer, oldSize, align int) {
	UnitShift(align)
	if oldSize == 0 || ptr == Empty {
		a.mem.Deallocate(ptr, oldSize, align)
		return
	}

	v, ok := a.allocs.Load(uintptr(ptr))
	if !ok {
		panic(fmt.Sprintf("memory: deallocate of unknown pointer %p", ptr))
	}

	info := v.(*dalloc)
	switch {
	case info.align != align:
		panic(fmt.Sprintf("memory: deallocate alignment mismatch; allocated=%d; got=%d", info.align, align))
	case oldSize < info.sz || oldSize > info.usable:
		panic(fmt.Sprintf("memory: deallocate size %d outside [%d, %d]", oldSize, info.sz, info.usable))
	}

	if _, ok := a.allocs.LoadAndDelete(uintptr(ptr)); !ok {
		panic(fmt.Sprintf("memory: deallocate of unknown pointer %p", ptr))
	}
	atomic.AddInt64(&a.sz, -int64(info.sz))
	a.mem.Deallocate(ptr, oldSize, align)
}

// UsableSize forwards to the wrapped allocator.
func (a *CheckedAllocator) UsableSize(size, align int) int {
	return UsableSize(a.mem, size, align)
}

const defAllocFrames = 1

// Use the environment variable RAWHEAP_CHECKED_ALLOC_FRAMES to control how
// many frames up the caller of an allocation is recorded. Raise it when the
// allocations go through a collection type and the leak report should name
// the code using that collection.
var allocFrames = defAllocFrames

func init() {
	if val, ok := os.LookupEnv("RAWHEAP_CHECKED_ALLOC_FRAMES"); ok {
		if f, err := strconv.Atoi(val); err == nil {
			allocFrames = f
		}
	}
}

type dalloc struct {
	pc     uintptr
	line   int
	sz     int
	align  int
	usable int
}

type TestingT interface {
	Errorf(format string, args ...interface{})
	Helper()
}

// AssertSize reports every live block as a leak and fails t unless the
// outstanding byte count equals sz.
func (a *CheckedAllocator) AssertSize(t TestingT, sz int) {
	a.allocs.Range(func(_, value interface{}) bool {
		info := value.(*dalloc)
		name := "unknown"
		if f := runtime.FuncForPC(info.pc); f != nil {
			name = f.Name()
		}
		t.Errorf("LEAK of %d bytes (align %d) FROM %s line %d\n", info.sz, info.align, name, info.line)
		return true
	})

	if cur := a.CurrentAlloc(); cur != sz {
		t.Helper()
		t.Errorf("invalid memory size exp=%d, got=%d", sz, cur)
	}
}

// CheckedAllocatorScope remembers the outstanding byte count at creation so
// a test can check that a piece of code releases everything it allocates.
type CheckedAllocatorScope struct {
	alloc *CheckedAllocator
	sz    int
}

func NewCheckedAllocatorScope(alloc *CheckedAllocator) *CheckedAllocatorScope {
	return &CheckedAllocatorScope{alloc: alloc, sz: alloc.CurrentAlloc()}
}

func (c *CheckedAllocatorScope) CheckSize(t TestingT) {
	if sz := c.alloc.CurrentAlloc(); c.sz != sz {
		t.Helper()
		t.Errorf("invalid memory size exp=%d, got=%d", c.sz, sz)
	}
}

var (
	_ Allocator   = (*CheckedAllocator)(nil)
	_ UsableSizer = (*CheckedAllocator)(nil)
)
