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

package unison

import (
	"context"
	"time"

	scope "github.com/elastic/go-scope"
)

// Mutex is a channel based mutex. Unlike sync.Mutex, locking can be bounded
// by a timeout or a context. Mutex implements scope.Acquirer.
//
// A Mutex must be created using MakeMutex.
type Mutex struct {
	ch chan struct{}
}

func MakeMutex() Mutex {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}
	return Mutex{ch: ch}
}

func (c Mutex) Lock() {
	<-c.ch
}

func (c Mutex) LockTimeout(duration time.Duration) bool {
	switch {
	case duration == 0:
		return c.TryLock()
	case duration < 0:
		c.Lock()
		return true
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-c.ch:
		return true
	case <-timer.C:
		return c.TryLock() // still lock, if timer and lock occured at the same time
	}
}

func (c Mutex) LockContext(ctx context.Context) error {
	select {
	case <-c.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c Mutex) TryLock() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

func (c Mutex) Unlock() {
	select {
	case c.ch <- struct{}{}:
	default:
		panic("unlock of unlocked mutex")
	}
}

func (c Mutex) Acquire() { c.Lock() }
func (c Mutex) Release() { c.Unlock() }

// Guard locks the mutex and returns a guard that unlocks it.
func (c Mutex) Guard(opts ...scope.GuardOption) *scope.Guard {
	return scope.NewGuard(c, opts...)
}

// GuardContext waits for the lock until ctx is cancelled. On success the
// returned guard unlocks the mutex.
func (c Mutex) GuardContext(ctx context.Context, opts ...scope.GuardOption) (*scope.Guard, error) {
	if err := c.LockContext(ctx); err != nil {
		return nil, err
	}
	return scope.NewGuard(locked{c}, opts...), nil
}

// locked wraps an already held lock, so the guard does not lock again.
type locked struct {
	scope.Acquirer
}

func (locked) Acquire() {}
