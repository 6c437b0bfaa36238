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

package memory_test

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"unsafe"

	"github.com/rawheap/rawheap/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"
)

func makeExpectedBuf(sz, lo, hi int, c byte) []byte {
	buf := make([]byte, sz)
	for i := lo; i < hi; i++ {
		buf[i] = c
	}
	return buf
}

func TestSet(t *testing.T) {
	tests := []struct {
		name   string
		sz     int
		lo, hi int
		c      byte
	}{
		{"sz=0", 0, 0, 0, 0x00},
		{"all,sz=7", 7, 0, 7, 0x1f},
		{"part,sz=7", 7, 3, 4, 0x1f},
		{"last,sz=7", 7, 6, 7, 0x1f},
		{"all,sz=25", 25, 0, 25, 0x1f},
		{"part,sz=25", 25, 13, 19, 0x1f},
		{"last,sz=25", 25, 24, 25, 0x1f},
		{"all,sz=4096", 4096, 0, 4096, 0x1f},
		{"part,sz=4096", 4096, 1000, 3000, 0x1f},
		{"last,sz=4096", 4096, 4095, 4096, 0x1f},
		{"all,sz=16384", 16384, 0, 16384, 0x1f},
		{"part,sz=16384", 16384, 3333, 10000, 0x1f},
		{"last,sz=16384", 16384, 16383, 16384, 0x1f},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buf := make([]byte, test.sz)
			memory.Set(buf[test.lo:test.hi], test.c)
			exp := makeExpectedBuf(test.sz, test.lo, test.hi, test.c)
			assert.Equal(t, exp, buf)
		})
	}
}

func zeroCapacityBase[T any]() unsafe.Pointer {
	var s []T
	return reflect.MakeSlice(reflect.TypeOf(s), 0, 0).UnsafePointer()
}

func TestEmpty(t *testing.T) {
	require.NotNil(t, memory.Empty)

	assert.Equal(t, memory.Empty, zeroCapacityBase[uint8]())
	assert.Equal(t, memory.Empty, zeroCapacityBase[uint16]())
	assert.Equal(t, memory.Empty, zeroCapacityBase[uint32]())
	assert.Equal(t, memory.Empty, zeroCapacityBase[uint64]())
	assert.Equal(t, memory.Empty, zeroCapacityBase[struct{}]())
	assert.Equal(t, memory.Empty, reflect.New(reflect.TypeOf([0]uint64{})).UnsafePointer())

	assert.Equal(t, memory.Empty, memory.Allocate(0, 1))
	assert.Equal(t, memory.Empty, memory.Allocate(0, 8))
	memory.Deallocate(memory.Empty, 0, 8)
}

func TestBytes(t *testing.T) {
	assert.Nil(t, memory.Bytes(nil, 16))
	assert.Nil(t, memory.Bytes(memory.Empty, 0))

	ptr := memory.Allocate(32, 8)
	require.NotNil(t, ptr)
	defer memory.Deallocate(ptr, 32, 8)

	buf := memory.Bytes(ptr, 32)
	assert.Len(t, buf, 32)
	assert.Equal(t, 32, cap(buf))
	assert.Equal(t, ptr, unsafe.Pointer(&buf[0]))
}

func TestAllocateDeallocate(t *testing.T) {
	ptr := memory.Allocate(2048, 4)
	require.NotNil(t, ptr)
	assert.True(t, memory.IsAligned(ptr, 4))

	buf := memory.Bytes(ptr, 2048)
	memory.Set(buf, 0x5a)
	assert.Equal(t, makeExpectedBuf(2048, 0, 2048, 0x5a), buf)
	memory.Deallocate(ptr, 2048, 4)

	ptr = memory.Allocate(16, 8)
	require.NotNil(t, ptr)
	assert.True(t, memory.IsAligned(ptr, 8))
	memory.Deallocate(ptr, 16, 8)
}

func TestAllocateUnsupportedAlignment(t *testing.T) {
	assert.PanicsWithValue(t, "memory: unsupported alignment 3", func() {
		memory.Allocate(3, 3)
	})
	assert.PanicsWithValue(t, "memory: unsupported alignment 16", func() {
		memory.Allocate(32, 16)
	})
	assert.PanicsWithValue(t, "memory: unsupported alignment 16", func() {
		memory.Deallocate(memory.Empty, 32, 16)
	})
}

func TestConcurrentAllocate(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	const workers, rounds = 8, 200
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			rng := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < rounds; i++ {
				align := 1 << rng.Intn(4)
				size := (rng.Intn(512) + 1) * align

				ptr := mem.Allocate(size, align)
				if ptr == nil {
					return fmt.Errorf("worker %d: allocation of %d bytes failed", w, size)
				}
				if !memory.IsAligned(ptr, align) {
					return fmt.Errorf("worker %d: %p not aligned to %d", w, ptr, align)
				}

				buf := memory.Bytes(ptr, size)
				memory.Set(buf, byte(w))
				sum := xxh3.Hash(buf)
				if got := xxh3.Hash(memory.Bytes(ptr, size)); got != sum {
					return fmt.Errorf("worker %d: block changed under us", w)
				}
				mem.Deallocate(ptr, size, align)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
