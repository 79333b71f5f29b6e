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

// Package sidetable implements a shared pointer that keeps the reference
// count in a separately allocated cell. It works with any comparable type
// that can be destroyed, without requiring a counter field in the type.
package sidetable

import (
	"go.uber.org/atomic"

	scope "github.com/elastic/go-scope"
)

// Resource is a value that can be managed by a Ptr. Typically a pointer type.
type Resource interface {
	comparable
	scope.Destroyer
}

// Ptr is a reference counted pointer to T. The zero value is an empty pointer.
// Ptr values must not be copied; use Clone or Assign instead.
type Ptr[T Resource] struct {
	target T
	cell   *cell
}

// cell is allocated once per resource and shared by all pointers to it.
type cell struct {
	refs scope.RefCount
}

var liveCells atomic.Int64

// LiveCells reports the number of counter cells whose resource has not been
// destroyed yet.
func LiveCells() int64 {
	return liveCells.Load()
}

func newCell() *cell {
	liveCells.Inc()
	return &cell{}
}

// New creates the first pointer to v. A new counter cell is allocated for v.
// Passing the zero value of T returns an empty pointer.
func New[T Resource](v T) *Ptr[T] {
	var zero T
	if v == zero {
		return &Ptr[T]{}
	}

	p := &Ptr[T]{target: v, cell: newCell()}
	p.retain()
	return p
}

// Get returns the target, or the zero value if p is empty or released.
func (p *Ptr[T]) Get() T {
	if p == nil {
		var zero T
		return zero
	}
	return p.target
}

// Valid reports whether p references a resource.
func (p *Ptr[T]) Valid() bool {
	return p != nil && p.cell != nil
}

// Count reports the number of pointers sharing the target, 0 if p is empty.
func (p *Ptr[T]) Count() uint32 {
	if !p.Valid() {
		return 0
	}
	return p.cell.refs.Load()
}

// Clone returns a new pointer sharing the target and counter cell of p.
func (p *Ptr[T]) Clone() *Ptr[T] {
	if !p.Valid() {
		return &Ptr[T]{}
	}
	c := &Ptr[T]{target: p.target, cell: p.cell}
	c.retain()
	return c
}

// Assign makes p share the target of src. The previous target of p is
// released first. Assigning a pointer with the same target is a no-op.
func (p *Ptr[T]) Assign(src *Ptr[T]) {
	if p.target == src.Get() {
		return
	}
	p.Release()
	if src.Valid() {
		p.target, p.cell = src.target, src.cell
		p.retain()
	}
}

// Release drops the reference held by p. When the last reference is released
// the target is destroyed and the counter cell is freed. p is empty
// afterwards.
func (p *Ptr[T]) Release() {
	if !p.Valid() {
		return
	}

	target, c := p.target, p.cell
	var zero T
	p.target, p.cell = zero, nil
	if c.refs.Release() {
		defer liveCells.Dec()
		target.Destroy()
	}
}

// Weak returns a non-owning reference to the target of p. A weak reference
// does not contribute to the reference count.
func (p *Ptr[T]) Weak() *Weak[T] {
	if !p.Valid() {
		return &Weak[T]{}
	}
	return &Weak[T]{target: p.target, cell: p.cell}
}

func (p *Ptr[T]) retain() {
	if p.Valid() {
		p.cell.refs.Retain()
	}
}

// Weak observes a resource without keeping it alive. The zero value observes
// nothing.
type Weak[T Resource] struct {
	target T
	cell   *cell
}

// Upgrade returns a new strong pointer to the observed resource. It fails if
// the resource has already been destroyed.
func (w *Weak[T]) Upgrade() (*Ptr[T], bool) {
	if w == nil || w.cell == nil || !w.cell.refs.TryRetain() {
		return nil, false
	}
	return &Ptr[T]{target: w.target, cell: w.cell}, true
}

// Alive reports whether the observed resource still exists. The result is
// racy if other go-routines release pointers concurrently.
func (w *Weak[T]) Alive() bool {
	return w != nil && w.cell != nil && w.cell.refs.Load() > 0
}
