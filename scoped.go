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

import "sync"

// Scoped is implemented by every value whose lifetime is bound to a scope.
// Release is the scope exit hook. It must be safe to call on the zero value,
// and calling it more than once has no effect.
type Scoped interface {
	Release()
}

// Destroyer is a resource that can be destroyed. Destroy is called at most
// once.
type Destroyer interface {
	Destroy()
}

// Acquirer is a capability with a paired acquire and release operation, like
// a lock or a transaction. A Guard calls Acquire once when created and
// Release once when it is released.
type Acquirer interface {
	Acquire()
	Release()
}

// Updater is a target that supports bulk mutations. Notifications are
// suspended between BeginUpdate and EndUpdate.
type Updater interface {
	BeginUpdate()
	EndUpdate()
}

// AcquireFunc adapts a pair of functions to the Acquirer interface.
type AcquireFunc struct {
	OnAcquire func()
	OnRelease func()
}

func (f AcquireFunc) Acquire() {
	if f.OnAcquire != nil {
		f.OnAcquire()
	}
}

func (f AcquireFunc) Release() {
	if f.OnRelease != nil {
		f.OnRelease()
	}
}

// Updating brackets a bulk mutation of u.
func Updating(u Updater) Acquirer {
	return AcquireFunc{OnAcquire: u.BeginUpdate, OnRelease: u.EndUpdate}
}

// Locking adapts a sync.Locker. Acquire blocks until the lock is held.
func Locking(l sync.Locker) Acquirer {
	return AcquireFunc{OnAcquire: l.Lock, OnRelease: l.Unlock}
}

// Destroying adapts d for sole ownership. Acquiring is a no-op, releasing
// destroys d.
func Destroying(d Destroyer) Acquirer {
	return AcquireFunc{OnRelease: d.Destroy}
}
