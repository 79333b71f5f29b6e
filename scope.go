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
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Scope collects cleanup functions and runs them in reverse order when the
// scope is closed. It is the explicit form of a lexical scope: everything
// registered with a Scope is released exactly once, no matter how the scope
// is left.
//
// The zero value is ready to use.
type Scope struct {
	mu       sync.Mutex
	cleanups []func() error
	closed   bool
	err      error
}

// Run executes fn with a fresh scope. The scope is closed when fn returns,
// returns an error, panics or calls runtime.Goexit. A panic is re-raised after all cleanups have
// been run. Errors from fn and from cleanups are combined.
func Run(fn func(s *Scope) error) (err error) {
	var s Scope
	finished := false
	defer func() {
		v := recover()
		switch {
		case v != nil:
			Logger().Debug("closing scope after panic", zap.String("panic", fmt.Sprint(v)))
			closeAfterPanic(&s)
			panic(v)
		case !finished:
			// fn left through runtime.Goexit
			s.Close()
		}
	}()

	err = fn(&s)
	finished = true
	return multierr.Append(err, s.Close())
}

// Defer registers fn to be run when the scope is closed.
func (s *Scope) Defer(fn func()) {
	s.DeferErr(func() error {
		fn()
		return nil
	})
}

// DeferErr registers fn to be run when the scope is closed. Errors are
// reported by Close. If the scope is already closed, fn is run immediately
// and its error is added to the scopes error.
func (s *Scope) DeferErr(fn func() error) {
	s.mu.Lock()
	if !s.closed {
		s.cleanups = append(s.cleanups, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	err := fn()
	s.mu.Lock()
	s.err = multierr.Append(s.err, err)
	s.mu.Unlock()
}

// Adopt releases v when the scope is closed.
func (s *Scope) Adopt(v Scoped) {
	s.Defer(v.Release)
}

// Guard creates a guard for a that is released when the scope is closed.
func (s *Scope) Guard(a Acquirer, opts ...GuardOption) *Guard {
	g := NewGuard(a, opts...)
	s.Adopt(g)
	return g
}

// Own takes sole ownership of d. d is destroyed when the scope is closed.
func (s *Scope) Own(d Destroyer, opts ...GuardOption) *Guard {
	g := Own(d, opts...)
	s.Adopt(g)
	return g
}

// Close runs all registered cleanups in reverse order of registration. A
// cleanup that panics does not prevent the remaining cleanups from running;
// the first panic is re-raised once all cleanups are done.
// Close is idempotent and returns the combined errors of all cleanups.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.closed = true
	cleanups := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	var err error
	var panicked interface{}
	for i := len(cleanups) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if v := recover(); v != nil && panicked == nil {
					panicked = v
				}
			}()
			err = multierr.Append(err, cleanups[i]())
		}()
	}

	s.mu.Lock()
	s.err = multierr.Append(s.err, err)
	err = s.err
	s.mu.Unlock()

	if panicked != nil {
		panic(panicked)
	}
	return err
}

// closeAfterPanic closes s while a panic is already unwinding. The original
// panic has priority over panics raised by cleanups.
func closeAfterPanic(s *Scope) {
	defer func() {
		if v := recover(); v != nil {
			Logger().Warn("cleanup panicked while unwinding", zap.String("panic", fmt.Sprint(v)))
		}
	}()
	s.Close()
}
