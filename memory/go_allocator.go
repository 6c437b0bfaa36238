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
	"math"
	"os"
	"runtime"
	"strconv"
	"unsafe"

	"github.com/rawheap/rawheap/internal/debug"
	"golang.org/x/exp/constraints"
)

// GoAllocator serves blocks from the Go heap.
//
// A block of alignment A is a slice of A-byte unsigned integers, which the
// runtime always aligns to at least A bytes. The block stays alive for as
// long as the caller holds its pointer; Deallocate drops the allocator's
// view of it and leaves reclamation to the garbage collector.
//
// Requests larger than the allocator's limit return nil. The limit defaults
// to the physical memory of the machine, or to RAWHEAP_GO_ALLOC_LIMIT bytes
// when that variable is set. Below the limit the Go runtime owns failure: if
// it cannot back a request it stops the process with a fatal out of memory
// error that cannot be recovered. Use mallocator or mmap when every
// out-of-memory condition must come back as nil.
type GoAllocator struct {
	max int
}

func NewGoAllocator() *GoAllocator { return &GoAllocator{} }

// NewGoAllocatorWithLimit returns a GoAllocator that refuses requests larger
// than limit bytes. A limit of zero or less selects the default.
func NewGoAllocatorWithLimit(limit int) *GoAllocator {
	return &GoAllocator{max: limit}
}

// Limit returns the largest request served.
func (a *GoAllocator) Limit() int {
	if a.max > 0 {
		return a.max
	}
	return defaultGoLimit
}

func (a *GoAllocator) Allocate(size, align int) unsafe.Pointer {
	CheckLayout(size, align)
	if size == 0 {
		return Empty
	}
	if size > a.Limit() {
		debug.Logf("go: refusing size=%d above limit=%d", size, a.Limit())
		return nil
	}

	var ptr unsafe.Pointer
	switch align {
	case 1:
		ptr = doAllocate[uint8](size)
	case 2:
		ptr = doAllocate[uint16](size >> 1)
	case 4:
		ptr = doAllocate[uint32](size >> 2)
	case 8:
		ptr = doAllocate[uint64](size >> 3)
	}

	debug.Logf("go: allocate size=%d align=%d ptr=%p", size, align, ptr)
	debug.Assert(ptr == nil || IsAligned(ptr, align), "go: misaligned allocation")
	return ptr
}

func (a *GoAllocator) Deallocate(ptr unsafe.Pointer, oldSize, align int) {
	shift := UnitShift(align)
	if oldSize == 0 || ptr == Empty {
		return
	}

	debug.Logf("go: deallocate size=%d align=%d ptr=%p", oldSize, align, ptr)
	switch align {
	case 1:
		doDeallocate[uint8](ptr, oldSize>>shift)
	case 2:
		doDeallocate[uint16](ptr, oldSize>>shift)
	case 4:
		doDeallocate[uint32](ptr, oldSize>>shift)
	case 8:
		doDeallocate[uint64](ptr, oldSize>>shift)
	}
}

// doAllocate returns the base address of a fresh slice of capacity units. A
// capacity the runtime refuses to make yields nil.
func doAllocate[T constraints.Unsigned](capacity int) (ptr unsafe.Pointer) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(runtime.Error); !ok {
				panic(r)
			}
			ptr = nil
		}
	}()

	buf := make([]T, capacity)
	return unsafe.Pointer(unsafe.SliceData(buf))
}

// doDeallocate rebuilds an empty handle over the block and drops it. The
// length is zero so the contents are never touched.
func doDeallocate[T constraints.Unsigned](ptr unsafe.Pointer, capacity int) {
	buf := unsafe.Slice((*T)(ptr), capacity)[:0]
	runtime.KeepAlive(buf)
}

var defaultGoLimit = goLimit()

func goLimit() int {
	if val, ok := os.LookupEnv("RAWHEAP_GO_ALLOC_LIMIT"); ok {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	if n := physicalMemory(); n > 0 {
		if n > math.MaxInt {
			return math.MaxInt
		}
		return int(n)
	}
	return math.MaxInt
}

var (
	_ Allocator = (*GoAllocator)(nil)
)
