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

// Package embedded implements a shared pointer that keeps the reference count
// inside the managed object itself. Types opt in by embedding Base.
package embedded

import (
	"fmt"

	scope "github.com/elastic/go-scope"
)

// Object is a type that carries its own reference counter.
type Object interface {
	comparable
	scope.Destroyer
	RefCounter() *scope.RefCount
}

// Base provides the embedded reference counter. Embed it into the managed
// struct:
//
//    type Conn struct {
//        embedded.Base
//        ...
//    }
type Base struct {
	refs scope.RefCount
}

// RefCounter returns the embedded counter.
func (b *Base) RefCounter() *scope.RefCount { return &b.refs }

// Ptr is a reference counted pointer to T. The zero value is an empty pointer.
// Ptr values must not be copied; use Clone or Assign instead.
type Ptr[T Object] struct {
	target T
}

// New attaches a new pointer to obj. obj must not be shared yet: its counter
// must be 0, otherwise New panics with a ContractError. Passing the zero value
// of T returns an empty pointer.
func New[T Object](obj T) *Ptr[T] {
	p := &Ptr[T]{}
	var zero T
	if obj == zero {
		return p
	}

	scope.Invariant(obj.RefCounter().Load() == 0, "embedded.create",
		"%{type} is already shared", fmt.Sprintf("%T", obj))
	p.target = obj
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

// Valid reports whether p references an object.
func (p *Ptr[T]) Valid() bool {
	var zero T
	return p != nil && p.target != zero
}

// Count reports the number of pointers sharing the target, 0 if p is empty.
func (p *Ptr[T]) Count() uint32 {
	if !p.Valid() {
		return 0
	}
	return p.target.RefCounter().Load()
}

// Clone returns a new pointer sharing the target of p.
func (p *Ptr[T]) Clone() *Ptr[T] {
	c := &Ptr[T]{target: p.Get()}
	c.retain()
	return c
}

// Assign makes p share the target of src. The previous target of p is
// released first. Assigning a pointer with the same target is a no-op.
func (p *Ptr[T]) Assign(src *Ptr[T]) {
	target := src.Get()
	if p.target == target {
		return
	}
	p.Release()
	p.target = target
	p.retain()
}

// Release drops the reference held by p. The target is destroyed when the
// last reference is released. p is empty afterwards.
func (p *Ptr[T]) Release() {
	if !p.Valid() {
		return
	}

	target := p.target
	var zero T
	p.target = zero
	if target.RefCounter().Release() {
		target.Destroy()
	}
}

func (p *Ptr[T]) retain() {
	if p.Valid() {
		p.target.RefCounter().Retain()
	}
}
