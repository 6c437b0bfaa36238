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
	"reflect"
	"unsafe"
)

// Allocator is a platform allocator serving raw blocks.
//
// Allocate returns a pointer to at least size bytes aligned to align, or nil
// if the platform is out of memory. Deallocate returns a block obtained from
// Allocate on the same Allocator; oldSize may be any value between the
// requested size and the usable size of the block, and align must be the
// alignment used to allocate it.
type Allocator interface {
	Allocate(size, align int) unsafe.Pointer
	Deallocate(ptr unsafe.Pointer, oldSize, align int)
}

// UsableSizer is implemented by allocators whose blocks may be larger than
// requested.
type UsableSizer interface {
	UsableSize(size, align int) int
}

// DefaultAllocator is a default implementation of Allocator and is used by
// the package level Allocate and Deallocate.
//
// DefaultAllocator is safe to use from multiple goroutines.
var DefaultAllocator Allocator = NewGoAllocator()

// Empty is the address used for zero-size allocations. It is the address the
// Go runtime reports for every zero-size object, so it is never nil and never
// backs any storage.
var Empty = zeroSizeBase()

func zeroSizeBase() unsafe.Pointer {
	return reflect.New(reflect.TypeOf(struct{}{})).UnsafePointer()
}

// Allocate returns a pointer to size bytes aligned to align from
// DefaultAllocator, or nil when the allocation fails.
//
// size must be a multiple of align and align must be 1, 2, 4 or 8. A size of
// zero returns Empty.
func Allocate(size, align int) unsafe.Pointer {
	return DefaultAllocator.Allocate(size, align)
}

// Deallocate returns the block at ptr to DefaultAllocator.
//
// ptr must come from Allocate with the same align, and oldSize must lie
// between the requested size and the usable size of the block. The block
// must not be used, or deallocated again, afterwards.
func Deallocate(ptr unsafe.Pointer, oldSize, align int) {
	DefaultAllocator.Deallocate(ptr, oldSize, align)
}

// UsableSize reports the usable size of a block of size bytes allocated from
// mem with the given alignment.
func UsableSize(mem Allocator, size, align int) int {
	if u, ok := mem.(UsableSizer); ok {
		return u.UsableSize(size, align)
	}
	return size
}
