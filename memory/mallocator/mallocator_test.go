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

package mallocator_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/rawheap/rawheap/memory"
	"github.com/rawheap/rawheap/memory/mallocator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMallocatorAllocate(t *testing.T) {
	sizes := []int{8, 16, 64, 4096, 8200}
	for _, size := range sizes {
		for _, align := range []int{1, 2, 4, 8} {
			t.Run(fmt.Sprintf("%d/align=%d", size, align), func(t *testing.T) {
				a := mallocator.NewMallocator()
				ptr := a.Allocate(size, align)
				require.NotNil(t, ptr)
				defer a.Deallocate(ptr, size, align)

				assert.True(t, memory.IsAligned(ptr, align))
				buf := memory.Bytes(ptr, size)
				memory.Set(buf, 0x3c)
				for idx, c := range buf {
					require.Equal(t, uint8(0x3c), c, "byte %d", idx)
				}
			})
		}
	}
}

func TestMallocatorScenario(t *testing.T) {
	a := mallocator.NewMallocator()
	defer a.AssertSize(t, 0)

	ptr := a.Allocate(2048, 4)
	require.NotNil(t, ptr)
	assert.True(t, memory.IsAligned(ptr, 4))
	memory.Set(memory.Bytes(ptr, 2048), 0xff)
	a.Deallocate(ptr, 2048, 4)

	ptr = a.Allocate(16, 8)
	require.NotNil(t, ptr)
	assert.True(t, memory.IsAligned(ptr, 8))
	a.Deallocate(ptr, 16, 8)
}

func TestMallocatorZeroSize(t *testing.T) {
	a := mallocator.NewMallocator()
	ptr := a.Allocate(0, 8)
	assert.Equal(t, memory.Empty, ptr)
	a.Deallocate(ptr, 0, 8)
	a.AssertSize(t, 0)
}

func TestMallocatorAssertSize(t *testing.T) {
	a := mallocator.NewMallocator()
	assert.Equal(t, int64(0), a.AllocatedBytes())

	buf1 := a.Allocate(64, 8)
	a.AssertSize(t, 64)

	buf2 := a.Allocate(128, 4)
	a.AssertSize(t, 192)
	assert.Equal(t, int64(192), a.AllocatedBytes())

	a.Deallocate(buf1, 64, 8)
	a.AssertSize(t, 128)
	assert.Equal(t, int64(128), a.AllocatedBytes())

	a.Deallocate(buf2, 128, 4)
	a.AssertSize(t, 0)
	assert.Equal(t, int64(0), a.AllocatedBytes())
}

func TestMallocatorExhausted(t *testing.T) {
	a := mallocator.NewMallocator()
	assert.Nil(t, a.Allocate(math.MaxInt&^7, 8))
	a.AssertSize(t, 0)
}

func TestMallocatorUnsupportedAlignment(t *testing.T) {
	a := mallocator.NewMallocator()
	assert.PanicsWithValue(t, "memory: unsupported alignment 16", func() {
		a.Allocate(32, 16)
	})
	assert.PanicsWithValue(t, "memory: unsupported alignment 3", func() {
		a.Deallocate(memory.Empty, 3, 3)
	})
	assert.PanicsWithValue(t, "memory: invalid allocate arguments; size=12; align=8", func() {
		a.Allocate(12, 8)
	})
}

func TestMallocatorChecked(t *testing.T) {
	mem := memory.NewCheckedAllocator(mallocator.NewMallocator())
	defer mem.AssertSize(t, 0)

	ptr := mem.Allocate(256, 8)
	require.NotNil(t, ptr)
	mem.Deallocate(ptr, 256, 8)
	assert.Panics(t, func() { mem.Deallocate(ptr, 256, 8) })
}

func TestMallocatorReleaseSizeMustMatch(t *testing.T) {
	m := mallocator.NewMallocator()
	defer m.AssertSize(t, 0)
	mem := memory.NewCheckedAllocator(m)
	defer mem.AssertSize(t, 0)

	assert.Equal(t, 48, m.UsableSize(48, 8))
	assert.Equal(t, 48, memory.UsableSize(mem, 48, 8))

	ptr := mem.Allocate(48, 8)
	require.NotNil(t, ptr)
	assert.PanicsWithValue(t, "memory: deallocate size 56 outside [48, 48]", func() {
		mem.Deallocate(ptr, 56, 8)
	})
	assert.Equal(t, int64(48), m.AllocatedBytes())

	mem.Deallocate(ptr, 48, 8)
	assert.Equal(t, int64(0), m.AllocatedBytes())
}
