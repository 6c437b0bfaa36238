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

//go:build unix

package mmap

import (
	"fmt"
	"unsafe"

	"github.com/rawheap/rawheap/internal/debug"
	"github.com/rawheap/rawheap/memory"
	"golang.org/x/sys/unix"
)

// MapAllocator maps and unmaps anonymous private memory for every block.
//
// MapAllocator is safe to use from multiple goroutines.
type MapAllocator struct {
	pageSize int
}

func NewMapAllocator() *MapAllocator {
	return &MapAllocator{pageSize: unix.Getpagesize()}
}

// PageSize returns the granularity of mappings.
func (a *MapAllocator) PageSize() int { return a.pageSize }

// UsableSize returns size rounded up to whole pages.
func (a *MapAllocator) UsableSize(size, align int) int {
	n, ok := memory.RoundUp(size, a.pageSize)
	if !ok {
		return size
	}
	return n
}

func (a *MapAllocator) Allocate(size, align int) unsafe.Pointer {
	memory.CheckLayout(size, align)
	if size == 0 {
		return memory.Empty
	}

	n, ok := memory.RoundUp(size, a.pageSize)
	if !ok {
		return nil
	}

	buf, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		debug.Logf("mmap: failed to map %d bytes: %v", n, err)
		return nil
	}

	ptr := unsafe.Pointer(unsafe.SliceData(buf))
	debug.Logf("mmap: allocate size=%d align=%d ptr=%p", size, align, ptr)
	return ptr
}

// Deallocate unmaps the block. Any oldSize between the requested and the
// usable size rounds to the same mapping length.
func (a *MapAllocator) Deallocate(ptr unsafe.Pointer, oldSize, align int) {
	memory.UnitShift(align)
	if oldSize == 0 || ptr == memory.Empty {
		return
	}

	n, ok := memory.RoundUp(oldSize, a.pageSize)
	if !ok {
		panic(fmt.Sprintf("mmap: invalid deallocate size %d", oldSize))
	}

	debug.Logf("mmap: deallocate size=%d align=%d ptr=%p", oldSize, align, ptr)
	if err := unix.Munmap(unsafe.Slice((*byte)(ptr), n)); err != nil {
		panic(fmt.Sprintf("mmap: failed to unmap %p: %v", ptr, err))
	}
}

var (
	_ memory.Allocator   = (*MapAllocator)(nil)
	_ memory.UsableSizer = (*MapAllocator)(nil)
)
