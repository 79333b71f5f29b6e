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
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	acquired, released int
}

func (r *recorder) Acquire() { r.acquired++ }
func (r *recorder) Release() { r.released++ }

type batch struct {
	depth   int
	updates int
	flushed int
}

func (b *batch) BeginUpdate() { b.depth++ }
func (b *batch) EndUpdate() {
	b.depth--
	if b.depth == 0 {
		b.flushed++
	}
}

func (b *batch) Add() {
	b.updates++
	if b.depth == 0 {
		b.flushed++
	}
}

type resource struct {
	destroyed int
}

func (r *resource) Destroy() { r.destroyed++ }

// copyGuard produces what a by-value copy of g looks like, without copying
// its noCopy marker.
func copyGuard(g *Guard) Guard {
	return Guard{self: g.self, resource: g.resource, leak: g.leak, policy: g.policy, log: g.log}
}

func TestGuard(t *testing.T) {
	t.Run("zero value release is a no-op", func(t *testing.T) {
		var g Guard
		assert.False(t, g.Active())
		assert.Nil(t, g.Resource())
		g.Release()
		g.Release()
	})

	t.Run("acquire on create, release once", func(t *testing.T) {
		r := &recorder{}
		g := NewGuard(r)
		assert.Equal(t, 1, r.acquired)
		assert.Equal(t, 0, r.released)
		assert.True(t, g.Active())
		assert.Same(t, r, g.Resource())

		g.Release()
		g.Release()
		assert.Equal(t, 1, r.acquired)
		assert.Equal(t, 1, r.released)
		assert.False(t, g.Active())
	})

	t.Run("create without resource panics", func(t *testing.T) {
		assert.Panics(t, func() { NewGuard(nil) })
	})

	t.Run("release on every exit path", func(t *testing.T) {
		r := &recorder{}
		work := func(fail bool) (err error) {
			g := NewGuard(r)
			defer g.Release()
			if fail {
				return errors.New("oops")
			}
			return nil
		}

		assert.NoError(t, work(false))
		assert.Error(t, work(true))
		assert.Panics(t, func() {
			g := NewGuard(r)
			defer g.Release()
			panic("oops")
		})
		assert.Equal(t, 3, r.acquired)
		assert.Equal(t, 3, r.released)
	})

	t.Run("copy panics and keeps the original", func(t *testing.T) {
		r := &recorder{}
		g := NewGuard(r)
		var dst Guard

		defer func() {
			v := recover()
			require.NotNil(t, v)
			err, ok := v.(error)
			require.True(t, ok)
			assert.True(t, errors.Is(err, ErrContractViolation))

			var contract *ContractError
			require.True(t, errors.As(err, &contract))
			assert.Equal(t, "guard.copy", contract.Op)

			assert.True(t, g.Active())
			assert.False(t, dst.Active())
			assert.Equal(t, 0, r.released)
		}()
		g.Copy(&dst)
	})

	t.Run("releasing a by-value copy panics", func(t *testing.T) {
		r := &recorder{}
		g := NewGuard(r)
		cp := copyGuard(g)

		assert.Panics(t, cp.Release)
		assert.Equal(t, 0, r.released)
		assert.True(t, g.Active())

		g.Release()
		assert.Equal(t, 1, r.released)
	})

	t.Run("detach policy leaves destination empty", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		r := &recorder{}
		g := NewGuard(r, WithCopyPolicy(DetachOnCopy), WithLogger(zap.New(core)))

		other := &recorder{}
		dst := NewGuard(other)
		g.Copy(dst)
		assert.False(t, dst.Active())
		assert.Equal(t, 1, other.released)

		cp := copyGuard(g)
		cp.Release()
		assert.False(t, cp.Active())
		assert.Equal(t, 0, r.released)
		assert.Equal(t, 1, logs.FilterMessage("ignoring copied guard").Len())

		g.Release()
		assert.Equal(t, 1, r.released)
	})

	t.Run("copy onto itself is a no-op", func(t *testing.T) {
		r := &recorder{}
		g := NewGuard(r)
		g.Copy(g)
		assert.True(t, g.Active())
		g.Release()
		assert.Equal(t, 1, r.released)
	})

	t.Run("bulk update bracket", func(t *testing.T) {
		b := &batch{}
		func() {
			g := NewGuard(Updating(b))
			defer g.Release()
			b.Add()
			b.Add()
			b.Add()
		}()
		assert.Equal(t, 3, b.updates)
		assert.Equal(t, 1, b.flushed)
		assert.Equal(t, 0, b.depth)
	})

	t.Run("lock guard", func(t *testing.T) {
		var mu sync.Mutex
		g := NewGuard(Locking(&mu))
		assert.False(t, mu.TryLock())
		g.Release()
		assert.True(t, mu.TryLock())
	})

	t.Run("sole owner destroys on release", func(t *testing.T) {
		r := &resource{}
		g := Own(r)
		assert.Equal(t, 0, r.destroyed)
		g.Release()
		g.Release()
		assert.Equal(t, 1, r.destroyed)
	})
}

func TestGuardLeakCheck(t *testing.T) {
	t.Run("finalizer releases leaked guard", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)

		called := make(chan struct{}, 1)
		oldFinalizer := leakFinalizer
		leakFinalizer = func(tok *leakToken) {
			oldFinalizer(tok)
			called <- struct{}{}
		}
		defer func() { leakFinalizer = oldFinalizer }()

		var mu sync.Mutex
		func() {
			NewGuard(Locking(&mu), WithLeakCheck(), WithLogger(zap.New(core)))
		}()

		for i := 0; i < 10; i++ {
			runtime.GC()
		}
		select {
		case <-called:
		case <-time.After(5 * time.Second):
			t.Fatal("finalizer was not run")
		}
		assert.True(t, mu.TryLock())
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("release disarms the finalizer", func(t *testing.T) {
		r := &recorder{}
		g := NewGuard(r, WithLeakCheck())
		g.Release()
		g = nil

		for i := 0; i < 10; i++ {
			runtime.GC()
		}
		assert.Equal(t, 1, r.released)
	})
}
