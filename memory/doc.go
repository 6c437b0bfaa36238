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

/*
Package memory provides raw, alignment-aware allocation primitives for
building collections and arenas that manage their own storage.

Allocate hands out a block of at least size bytes whose base address is a
multiple of align; Deallocate gives it back. Neither records anything about
the block: the caller keeps the size and alignment for as long as the block
lives and passes them back unchanged.

	p := memory.Allocate(2048, 4)
	if p == nil {
		// the platform allocator is out of memory
	}
	buf := memory.Bytes(p, 2048)
	...
	memory.Deallocate(p, 2048, 4)

Supported alignments are 1, 2, 4 and 8. Any other alignment is a programming
error and panics. Zero-size requests return Empty, a fixed non-nil address
that must never be written through.

Releasing a block twice, or with a different alignment, or with a size outside
the range between the requested size and the block's usable size, is
undefined behavior. CheckedAllocator detects these mistakes and is intended
for tests.
*/
package memory
