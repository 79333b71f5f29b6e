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

// Semaphore is a counting semaphore limiting concurrent access to a resource
// to n holders. Semaphore implements scope.Acquirer.
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore creates a semaphore with n available slots. n must be > 0.
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		panic("semaphore requires at least one slot")
	}
	return &Semaphore{tokens: make(chan struct{}, n)}
}

// Acquire blocks until a slot is available.
func (s *Semaphore) Acquire() {
	s.tokens <- struct{}{}
}

func (s *Semaphore) AcquireContext(ctx context.Context) error {
	select {
	case s.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Semaphore) AcquireTimeout(dur time.Duration) bool {
	switch {
	case dur == 0:
		return s.TryAcquire()
	case dur < 0:
		s.Acquire()
		return true
	}

	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case s.tokens <- struct{}{}:
		return true
	case <-timer.C:
		return s.TryAcquire()
	}
}

func (s *Semaphore) TryAcquire() bool {
	select {
	case s.tokens <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Semaphore) Release() {
	select {
	case <-s.tokens:
	default:
		panic("semaphore released too often")
	}
}

// Available reports the number of free slots.
func (s *Semaphore) Available() int {
	return cap(s.tokens) - len(s.tokens)
}

// Guard acquires a slot and returns a guard that releases it.
func (s *Semaphore) Guard(opts ...scope.GuardOption) *scope.Guard {
	return scope.NewGuard(s, opts...)
}

// GuardContext waits for a slot until ctx is cancelled. On success the
// returned guard releases the slot.
func (s *Semaphore) GuardContext(ctx context.Context, opts ...scope.GuardOption) (*scope.Guard, error) {
	if err := s.AcquireContext(ctx); err != nil {
		return nil, err
	}
	return scope.NewGuard(locked{s}, opts...), nil
}
