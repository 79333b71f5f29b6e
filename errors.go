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

	"github.com/urso/sderr"
)

// ErrContractViolation is matched by every error raised for a misuse of a
// guard or shared pointer. Contract violations are programming defects and
// are raised via panic.
var ErrContractViolation = errors.New("contract violation")

// ContractError describes a contract violation. Use errors.Is with
// ErrContractViolation to check for it.
type ContractError struct {
	Op  string
	Err error
}

func (e *ContractError) Error() string {
	return e.Op + ": " + ErrContractViolation.Error() + ": " + e.Err.Error()
}

func (e *ContractError) Unwrap() error { return e.Err }

func (e *ContractError) Is(target error) bool {
	return target == ErrContractViolation
}

// Violation creates a ContractError for operation op. The message supports
// sderr style %{name} placeholders.
func Violation(op string, msg string, vs ...interface{}) *ContractError {
	return &ContractError{Op: op, Err: sderr.Errf(msg, vs...)}
}

// Invariant panics with a ContractError if b is false.
func Invariant(b bool, op string, msg string, vs ...interface{}) {
	if !b {
		panic(Violation(op, msg, vs...))
	}
}
