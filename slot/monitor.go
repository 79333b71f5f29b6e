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

package slot

import (
	"runtime"
	"sync/atomic"

	scope "github.com/elastic/go-scope"
)

// Monitor is a word sized lock that can be added to any struct. It must be
// the last field of the struct.
//
// Structs managed by a Ptr reuse the monitor word as reference counter. The
// monitor can not be used as lock while the struct is shared.
type Monitor struct {
	word uintptr
}

const monitorLocked = ^uintptr(0)

// Lock spins until the monitor is acquired.
func (m *Monitor) Lock() {
	for !m.TryLock() {
		runtime.Gosched()
	}
}

// TryLock acquires the monitor if it is free.
func (m *Monitor) TryLock() bool {
	return atomic.CompareAndSwapUintptr(&m.word, 0, monitorLocked)
}

func (m *Monitor) Unlock() {
	if !atomic.CompareAndSwapUintptr(&m.word, monitorLocked, 0) {
		panic("unlock of unlocked monitor")
	}
}

// Dispose must be called by the owning structs destructor. It panics if the
// monitor is still held, or if the word still carries a live reference
// count.
func (m *Monitor) Dispose() {
	w := atomic.LoadUintptr(&m.word)
	scope.Invariant(w == 0, "monitor.dispose", "monitor word is in use (%{word})", w)
}
