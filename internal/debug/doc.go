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
Package debug provides conditional runtime assertions and debug logging for
the allocators.

# Using Assert

Build with the assert tag to enable runtime assertions, for example the
alignment post-condition checked after every allocation. Without the tag the
assertions compile away.

# Using Log

Build with the debug tag to trace every allocate and deallocate call to
standard error. Without the tag the logging compiles away.
*/
package debug
