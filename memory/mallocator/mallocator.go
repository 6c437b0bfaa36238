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

//go:build cgo

package mallocator

// #include <stdlib.h>
import "C"

import (
	"sync/atomic"
	"unsafe"

	"github.com/rawheap/rawheap/internal/debug"
	"github.com/rawheap/rawheap/memory"
)

// Mallocator is an allocator which defers to libc aligned_alloc and free.
//
// libc offers no portable way to learn how much a block was rounded up, so
// the usable size of a block is its requested size and Deallocate must be
// given exactly that size.
//
// Mallocator is safe to use from multiple goroutines.
type Mallocator struct {
	allocatedBytes atomic.Int64
}

func NewMallocator() *Mallocator { return &Mallocator{} }

func (alloc *Mallocator) Allocate(size, align int) unsafe.Pointer {
	memory.CheckLayout(size, align)
	if size == 0 {
		return memory.Empty
	}

	ptr := C.aligned_alloc(C.size_t(align), C.size_t(size))
	debug.Logf("mallocator: allocate size=%d align=%d ptr=%p", size, align, ptr)
	if ptr == nil {
		return nil
	}
	debug.Assert(memory.IsAligned(ptr, align), "mallocator: misaligned allocation")

	alloc.allocatedBytes.Add(int64(size))
	return ptr
}

func (alloc *Mallocator) Deallocate(ptr unsafe.Pointer, oldSize, align int) {
	memory.UnitShift(align)
	if oldSize == 0 || ptr == memory.Empty {
		return
	}

	debug.Logf("mallocator: deallocate size=%d align=%d ptr=%p", oldSize, align, ptr)
	C.free(ptr)
	alloc.allocatedBytes.Add(-int64(oldSize))
}

// UsableSize returns size.
func (alloc *Mallocator) UsableSize(size, align int) int { return size }

// AllocatedBytes returns the bytes handed out and not yet deallocated, as
// reported by the sizes passed to Allocate and Deallocate.
func (alloc *Mallocator) AllocatedBytes() int64 {
	return alloc.allocatedBytes.Load()
}

// AssertSize fails t unless AllocatedBytes equals sz.
func (alloc *Mallocator) AssertSize(t memory.TestingT, sz int) {
	cur := alloc.AllocatedBytes()
	if int64(sz) != cur {
		t.Helper()
		t.Errorf("invalid memory size exp=%d, got=%d", sz, cur)
	}
}

var (
	_ memory.Allocator   = (*Mallocator)(nil)
	_ memory.UsableSizer = (*Mallocator)(nil)
)
