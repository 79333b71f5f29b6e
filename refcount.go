// Licensed to Elasticsearch B.V. under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Elasticsearch B.V. licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package scope

import (
	"go.uber.org/atomic"
)

// RefCount is an atomic reference counter. It is the shared counter behind
// every shared pointer in this module, independent of where it is stored
// (embedded in the managed type, in a side table cell, ...).
//
// The zero value is a free counter with count 0. The first Retain moves it
// into the live state.
type RefCount struct {
	// Action is run by the Release call that brings the count back to 0.
	// It must be set before the counter is shared.
	Action func()

	count  atomic.Uint32
	noCopy noCopy
}

// Retain increases the ref count and returns the new count.
func (c *RefCount) Retain() uint32 {
	x := c.count.Inc()
	if x == 0 {
		panic("ref count overflow")
	}
	return x
}

// TryRetain increases the ref count, unless the counter is free. A counter
// that has dropped to 0 is never resurrected.
func (c *RefCount) TryRetain() bool {
	for {
		current := c.count.Load()
		if current == 0 {
			return false
		}
		if current == ^uint32(0) {
			panic("ref count overflow")
		}
		if c.count.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release decreases the reference count. It returns true, if the reference count
// has reached 0.
// Releasing a free reference count will trigger a panic.
// If an Action is configured, then this action will be run once the
// refcount becomes free.
func (c *RefCount) Release() bool {
	x := c.count.Dec()
	switch {
	case x == 0:
		if c.Action != nil {
			c.Action()
		}
		return true
	case x == ^uint32(0):
		c.count.Inc()
		panic("ref count released too often")
	default:
		return false
	}
}

// Load reports the current count. The value is racy if other go-routines
// retain or release concurrently.
func (c *RefCount) Load() uint32 {
	return c.count.Load()
}
