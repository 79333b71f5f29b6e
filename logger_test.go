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
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	defer SetLogger(nil)

	t.Run("defaults to a usable logger", func(t *testing.T) {
		assert.NotNil(t, Logger())
	})

	t.Run("installed logger is used by guards", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		l := zap.New(core)
		SetLogger(l)
		assert.Same(t, l, Logger())

		r := &recorder{}
		g := NewGuard(r, WithCopyPolicy(DetachOnCopy))
		cp := copyGuard(g)
		cp.Release()
		g.Release()
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("nil restores the no-op logger", func(t *testing.T) {
		SetLogger(nil)
		assert.NotNil(t, Logger())
	})
}
