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
	"unsafe"

	"github.com/JohnCGriffin/overflow"
)

// UnitShift returns log2(align) for a supported alignment. It panics for any
// alignment other than 1, 2, 4 or 8.
func UnitShift(align int) uint {
	switch align {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	}
	panic(fmt.Sprintf("memory: unsupported alignment %d", align))
}

// CheckLayout panics unless align is supported and size is a non-negative
// multiple of align.
func CheckLayout(size, align int) {
	UnitShift(align)
	if size < 0 || !isMultipleOfPowerOf2(size, align) {
		panic(fmt.Sprintf("memory: invalid allocate arguments; size=%d; align=%d", size, align))
	}
}

// IsAligned reports whether ptr is a multiple of align.
func IsAligned(ptr unsafe.Pointer, align int) bool {
	return isMultipleOfPowerOf2(int(uintptr(ptr)), align)
}

// RoundUp rounds v up to a multiple of round, which must be a power of two.
// ok is false when the result does not fit in an int.
func RoundUp(v, round int) (n int, ok bool) {
	forceCarry := round - 1
	n, ok = overflow.Add(v, forceCarry)
	if !ok {
		return 0, false
	}
	return n &^ forceCarry, true
}

func isMultipleOfPowerOf2(v int, d int) bool {
	return (v & (d - 1)) == 0
}
