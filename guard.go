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
	"runtime"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Guard wraps a single Acquirer. The capability is acquired when the guard is
// created and released exactly once when the guard is released.
//
// A Guard must not be copied. Copies are detected at run time and handled
// according to the guards CopyPolicy. The zero value is an empty guard, which
// does nothing on Release.
//
//    g := scope.NewGuard(scope.Locking(&mu))
//    defer g.Release()
type Guard struct {
	noCopy noCopy

	// self points to the guard itself while it is active. A by-value copy
	// carries the original address, which is how copies are detected.
	self     *Guard
	resource Acquirer
	leak     *leakToken

	policy CopyPolicy
	log    *zap.Logger
}

// CopyPolicy selects how a Guard reacts to being copied.
type CopyPolicy uint8

const (
	// PanicOnCopy raises a ContractError whenever a copy is detected.
	PanicOnCopy CopyPolicy = iota

	// DetachOnCopy leaves the destination of a copy empty. The original
	// guard stays responsible for releasing the resource.
	DetachOnCopy
)

func (p CopyPolicy) String() string {
	switch p {
	case PanicOnCopy:
		return "panic"
	case DetachOnCopy:
		return "detach"
	default:
		return fmt.Sprintf("CopyPolicy(%d)", uint8(p))
	}
}

// GuardOption configures a Guard.
type GuardOption func(*guardConfig)

type guardConfig struct {
	policy    CopyPolicy
	leakCheck bool
	log       *zap.Logger
}

// WithCopyPolicy sets the copy policy. The default is PanicOnCopy.
func WithCopyPolicy(p CopyPolicy) GuardOption {
	return func(c *guardConfig) { c.policy = p }
}

// WithLeakCheck installs a finalizer that releases the resource and logs a
// warning if the guard is garbage collected without being released.
func WithLeakCheck() GuardOption {
	return func(c *guardConfig) { c.leakCheck = true }
}

// WithLogger overrides the package logger for this guard.
func WithLogger(l *zap.Logger) GuardOption {
	return func(c *guardConfig) { c.log = l }
}

// leakToken is kept separate from the guard, so the finalizer does not
// depend on the guard (which references itself) being collectable.
type leakToken struct {
	resource Acquirer
	done     atomic.Bool
	log      *zap.Logger
}

var leakFinalizer = (*leakToken).finalize

func (t *leakToken) finalize() {
	if !t.done.CompareAndSwap(false, true) {
		return
	}
	t.log.Warn("guard was garbage collected without being released",
		zap.String("resource", fmt.Sprintf("%T", t.resource)))
	t.resource.Release()
}

// NewGuard acquires a and returns an active guard for it.
func NewGuard(a Acquirer, opts ...GuardOption) *Guard {
	Invariant(a != nil, "guard.create", "no resource given")

	var cfg guardConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = Logger()
	}

	a.Acquire()

	g := &Guard{resource: a, policy: cfg.policy, log: cfg.log}
	g.self = g
	if cfg.leakCheck {
		g.leak = &leakToken{resource: a, log: cfg.log}
		runtime.SetFinalizer(g.leak, leakFinalizer)
	}
	return g
}

// Own creates a guard with sole ownership of d. Releasing the guard destroys
// d.
func Own(d Destroyer, opts ...GuardOption) *Guard {
	return NewGuard(Destroying(d), opts...)
}

// Active reports whether the guard still holds its resource.
func (g *Guard) Active() bool {
	return g.resource != nil && g.self == g
}

// Resource returns the guarded capability, or nil if the guard is empty.
func (g *Guard) Resource() Acquirer {
	if !g.Active() {
		return nil
	}
	return g.resource
}

// Release releases the guarded resource. It is a no-op for an empty or
// already released guard.
// Calling Release on a by-value copy of a guard panics, unless the guard was
// configured with DetachOnCopy, in which case the copy is ignored.
func (g *Guard) Release() {
	if g.resource == nil {
		return
	}
	if g.self != g {
		g.copyDetected("guard.release")
		return
	}

	resource := g.resource
	if g.leak != nil {
		runtime.SetFinalizer(g.leak, nil)
		if !g.leak.done.CompareAndSwap(false, true) {
			resource = nil
		}
		g.leak = nil
	}
	g.resource = nil
	g.self = nil

	if resource != nil {
		resource.Release()
	}
}

// Copy duplicates the guard into dst. Guards can not be shared: with
// PanicOnCopy a ContractError is raised and neither guard is modified. With
// DetachOnCopy dst is released and left empty.
func (g *Guard) Copy(dst *Guard) {
	if dst == g {
		return
	}
	if g.policy == PanicOnCopy {
		panic(Violation("guard.copy", "guard over %{resource} must not be copied",
			fmt.Sprintf("%T", g.resource)))
	}

	dst.Release()
	*dst = Guard{}
}

func (g *Guard) copyDetected(op string) {
	if g.policy == PanicOnCopy {
		panic(Violation(op, "use of a copied guard over %{resource}",
			fmt.Sprintf("%T", g.resource)))
	}
	g.log.Warn("ignoring copied guard",
		zap.String("op", op),
		zap.Stringer("policy", g.policy),
		zap.String("resource", fmt.Sprintf("%T", g.resource)))
	*g = Guard{}
}
