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

package scope_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	scope "github.com/elastic/go-scope"
)

func TestRefCount(t *testing.T) {
	t.Run("zero value is free", func(t *testing.T) {
		var r scope.RefCount
		assert.Equal(t, uint32(0), r.Load())
	})

	t.Run("retain and release", func(t *testing.T) {
		var r scope.RefCount
		assert.Equal(t, uint32(1), r.Retain())
		assert.Equal(t, uint32(2), r.Retain())
		assert.False(t, r.Release())
		assert.True(t, r.Release())
		assert.Equal(t, uint32(0), r.Load())
	})

	t.Run("release with action", func(t *testing.T) {
		var released int
		r := scope.RefCount{
			Action: func() { released++ },
		}

		r.Retain()
		r.Retain()
		r.Release()
		assert.Equal(t, 0, released)
		assert.True(t, r.Release())
		assert.Equal(t, 1, released)
	})

	t.Run("releasing too often panics", func(t *testing.T) {
		assert.Panics(t, func() {
			var r scope.RefCount
			r.Retain()
			r.Release()
			r.Release()
		})
	})

	t.Run("releasing too often keeps the counter free", func(t *testing.T) {
		var r scope.RefCount
		r.Retain()
		r.Release()
		assert.Panics(t, func() { r.Release() })
		assert.Equal(t, uint32(0), r.Load())

		assert.Equal(t, uint32(1), r.Retain())
		assert.True(t, r.Release())
	})

	t.Run("try retain on free ref count fails", func(t *testing.T) {
		var r scope.RefCount
		assert.False(t, r.TryRetain())
		assert.Equal(t, uint32(0), r.Load())
	})

	t.Run("try retain on live ref count succeeds", func(t *testing.T) {
		var r scope.RefCount
		r.Retain()
		assert.True(t, r.TryRetain())
		assert.Equal(t, uint32(2), r.Load())
	})

	t.Run("concurrent retain and release", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		var freed int32
		var mu sync.Mutex
		r := scope.RefCount{Action: func() {
			mu.Lock()
			freed++
			mu.Unlock()
		}}

		const workers, rounds = 16, 1000
		r.Retain()

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < rounds; j++ {
					r.Retain()
					r.Release()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, uint32(1), r.Load())
		assert.Equal(t, int32(0), freed)
		assert.True(t, r.Release())
		assert.Equal(t, int32(1), freed)
	})
}
