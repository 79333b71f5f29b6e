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

// Package slot implements a shared pointer that stores the reference count in
// a slot of the managed object that is reserved for another purpose: the
// word of a trailing Monitor field. No extra allocation and no counter field
// is required, but the monitor can not be used as lock while the object is
// shared.
//
// This is an advanced variant. Prefer the sidetable or embedded packages
// unless the allocation of a counter cell matters.
package slot

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"

	scope "github.com/elastic/go-scope"
)

const wordSize = unsafe.Sizeof(uintptr(0))

// slotOffset is the distance of the monitor word from the last word of the
// struct. Monitor is word aligned, so as last field it ends the struct.
const slotOffset = 0

var (
	monitorType = reflect.TypeOf(Monitor{})
	layouts     sync.Map // reflect.Type -> error
)

// Object is a pointer to a struct ending in a Monitor field.
type Object[E any] interface {
	*E
	scope.Destroyer
}

// Locate returns the address of the counter slot of p, or nil if p is nil.
// It panics with a ContractError if E does not end in a Monitor field.
func Locate[E any](p *E) *uintptr {
	if p == nil {
		return nil
	}
	checkLayout(reflect.TypeOf(p).Elem())
	off := unsafe.Sizeof(*p) - wordSize + slotOffset
	return (*uintptr)(unsafe.Add(unsafe.Pointer(p), off))
}

func checkLayout(t reflect.Type) {
	v, ok := layouts.Load(t)
	if !ok {
		v, _ = layouts.LoadOrStore(t, validateLayout(t))
	}
	if err, _ := v.(error); err != nil {
		panic(err)
	}
}

func validateLayout(t reflect.Type) error {
	if t.Kind() != reflect.Struct || t.NumField() == 0 {
		return scope.Violation("slot.locate", "%{type} is not a struct", t.String())
	}
	last := t.Field(t.NumField() - 1)
	if last.Type != monitorType {
		return scope.Violation("slot.locate", "last field of %{type} is not a slot.Monitor", t.String())
	}
	if last.Offset+wordSize-slotOffset != t.Size() {
		return scope.Violation("slot.locate", "monitor of %{type} is not at the end of the struct", t.String())
	}
	return nil
}

// Ptr is a reference counted pointer to E. The zero value is an empty
// pointer. Ptr values must not be copied; use Clone or Assign instead.
type Ptr[E any, P Object[E]] struct {
	target P
}

// New creates the first pointer to obj. The counter slot of obj must read 0
// (never shared, monitor not held), otherwise New panics with a
// ContractError. A nil obj returns an empty pointer.
func New[E any, P Object[E]](obj P) *Ptr[E, P] {
	p := &Ptr[E, P]{}
	if obj == nil {
		return p
	}

	counter := Locate((*E)(obj))
	scope.Invariant(atomic.LoadUintptr(counter) == 0, "slot.create",
		"%{type} is already shared or its monitor is held", fmt.Sprintf("%T", obj))
	p.target = obj
	p.retain()
	return p
}

// Get returns the target, or nil if p is empty or released.
func (p *Ptr[E, P]) Get() P {
	if p == nil {
		return nil
	}
	return p.target
}

// Valid reports whether p references an object.
func (p *Ptr[E, P]) Valid() bool {
	return p != nil && p.target != nil
}

// Count reports the number of pointers sharing the target, 0 if p is empty.
func (p *Ptr[E, P]) Count() uint32 {
	if !p.Valid() {
		return 0
	}
	return uint32(atomic.LoadUintptr(p.counter()))
}

// Clone returns a new pointer sharing the target of p.
func (p *Ptr[E, P]) Clone() *Ptr[E, P] {
	c := &Ptr[E, P]{target: p.Get()}
	c.retain()
	return c
}

// Assign makes p share the target of src. The previous target of p is
// released first. Assigning a pointer with the same target is a no-op.
func (p *Ptr[E, P]) Assign(src *Ptr[E, P]) {
	target := src.Get()
	if p.target == target {
		return
	}
	p.Release()
	p.target = target
	p.retain()
}

// Release drops the reference held by p. The target is destroyed when the
// last reference is released, after its counter slot went back to 0. p is
// empty afterwards.
func (p *Ptr[E, P]) Release() {
	if !p.Valid() {
		return
	}

	counter := p.counter()
	target := p.target
	p.target = nil
	switch atomic.AddUintptr(counter, ^uintptr(0)) {
	case 0:
		target.Destroy()
	case ^uintptr(0):
		atomic.AddUintptr(counter, 1)
		panic("ref count released too often")
	}
}

func (p *Ptr[E, P]) counter() *uintptr {
	return Locate((*E)(p.target))
}

func (p *Ptr[E, P]) retain() {
	if p.Valid() {
		if atomic.AddUintptr(p.counter(), 1) == 0 {
			panic("ref count overflow")
		}
	}
}
