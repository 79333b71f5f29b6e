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

// Package sharedtest provides the behaviour tests every shared pointer
// implementation must pass.
package sharedtest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	scope "github.com/elastic/go-scope"
)

// Probe records what happens to a managed resource.
type Probe struct {
	Destroyed atomic.Int32
	Value     int
}

// Handle adapts a shared pointer implementation for the suite.
type Handle interface {
	scope.Scoped
	Clone() Handle
	Assign(src Handle)
	Count() uint32
	Valid() bool

	// Probe returns the probe of the target, nil if the handle is empty.
	Probe() *Probe
}

// Variant describes the implementation under test.
type Variant struct {
	// New creates the first pointer to a fresh resource.
	New func() (Handle, *Probe)

	// Empty returns a zero value pointer.
	Empty func() Handle

	// Destroyed is called after a resource has been destroyed. Optional.
	Destroyed func(t *testing.T)
}

// Run runs the suite.
func Run(t *testing.T, v Variant) {
	destroyed := func(t *testing.T) {
		if v.Destroyed != nil {
			v.Destroyed(t)
		}
	}

	t.Run("empty pointer release is a no-op", func(t *testing.T) {
		p := v.Empty()
		assert.False(t, p.Valid())
		assert.Equal(t, uint32(0), p.Count())
		assert.Nil(t, p.Probe())
		p.Release()
		p.Release()

		c := p.Clone()
		assert.False(t, c.Valid())
		c.Release()
	})

	t.Run("create starts with count 1", func(t *testing.T) {
		p, probe := v.New()
		require.True(t, p.Valid())
		assert.Equal(t, uint32(1), p.Count())
		assert.Same(t, probe, p.Probe())

		p.Release()
		assert.Equal(t, int32(1), probe.Destroyed.Load())
		destroyed(t)
	})

	t.Run("copies share the counter and destroy once", func(t *testing.T) {
		const n = 5
		p, probe := v.New()
		copies := make([]Handle, 0, n)
		for i := 0; i < n; i++ {
			copies = append(copies, p.Clone())
		}
		assert.Equal(t, uint32(n+1), p.Count())
		for _, c := range copies {
			assert.Equal(t, p.Count(), c.Count())
			assert.Same(t, probe, c.Probe())
		}

		for _, c := range copies {
			c.Release()
			c.Release()
			assert.Equal(t, int32(0), probe.Destroyed.Load())
		}
		assert.Equal(t, uint32(1), p.Count())

		p.Release()
		assert.Equal(t, int32(1), probe.Destroyed.Load())
		destroyed(t)
	})

	t.Run("released pointer is empty", func(t *testing.T) {
		p, _ := v.New()
		keep := p.Clone()
		p.Release()

		assert.False(t, p.Valid())
		assert.Nil(t, p.Probe())
		assert.Equal(t, uint32(0), p.Count())
		assert.Equal(t, uint32(1), keep.Count())
		keep.Release()
	})

	t.Run("self assignment keeps the count", func(t *testing.T) {
		p, probe := v.New()
		c := p.Clone()

		p.Assign(p)
		assert.Equal(t, uint32(2), p.Count())
		p.Assign(c)
		c.Assign(p)
		assert.Equal(t, uint32(2), p.Count())

		p.Release()
		c.Release()
		assert.Equal(t, int32(1), probe.Destroyed.Load())
	})

	t.Run("assignment releases the previous target", func(t *testing.T) {
		dst, old := v.New()
		src, probe := v.New()

		dst.Assign(src)
		assert.Equal(t, int32(1), old.Destroyed.Load())
		assert.Equal(t, uint32(2), src.Count())
		assert.Same(t, probe, dst.Probe())

		dst.Release()
		assert.Equal(t, int32(0), probe.Destroyed.Load())
		src.Release()
		assert.Equal(t, int32(1), probe.Destroyed.Load())
	})

	t.Run("assignment keeps a shared previous target alive", func(t *testing.T) {
		dst, old := v.New()
		keep := dst.Clone()
		src, _ := v.New()

		dst.Assign(src)
		assert.Equal(t, int32(0), old.Destroyed.Load())
		assert.Equal(t, uint32(1), keep.Count())

		keep.Release()
		dst.Release()
		src.Release()
		assert.Equal(t, int32(1), old.Destroyed.Load())
	})

	t.Run("assigning an empty pointer releases the target", func(t *testing.T) {
		dst, probe := v.New()
		dst.Assign(v.Empty())
		assert.False(t, dst.Valid())
		assert.Equal(t, int32(1), probe.Destroyed.Load())
	})

	t.Run("assigning into an empty pointer", func(t *testing.T) {
		src, probe := v.New()
		dst := v.Empty()
		dst.Assign(src)
		assert.Equal(t, uint32(2), src.Count())

		src.Release()
		dst.Release()
		assert.Equal(t, int32(1), probe.Destroyed.Load())
	})

	t.Run("scope lifecycle", func(t *testing.T) {
		var probe *Probe
		err := scope.Run(func(s *scope.Scope) error {
			a, p := v.New()
			probe = p
			s.Adopt(a)
			require.Equal(t, uint32(1), a.Count())

			err := scope.Run(func(s *scope.Scope) error {
				b := a.Clone()
				s.Adopt(b)
				assert.Equal(t, uint32(2), a.Count())
				return nil
			})
			require.NoError(t, err)

			assert.Equal(t, uint32(1), a.Count())
			assert.Equal(t, int32(0), probe.Destroyed.Load())

			a.Probe().Value = 42
			return nil
		})
		require.NoError(t, err)

		assert.Equal(t, 42, probe.Value)
		assert.Equal(t, int32(1), probe.Destroyed.Load())
		destroyed(t)
	})

	t.Run("concurrent copies destroy exactly once", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		const workers, rounds = 16, 500
		p, probe := v.New()

		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			own := p.Clone()
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer own.Release()

				<-start
				for j := 0; j < rounds; j++ {
					c := own.Clone()
					c.Release()
				}
			}()
		}

		p.Release()
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), probe.Destroyed.Load())
		destroyed(t)
	})
}
