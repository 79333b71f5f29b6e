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

// Package scope provides deterministic, scope bound lifetime management.
//
// A Guard acquires a capability (a lock, a bulk update, a transaction) when
// created and releases it exactly once. A Scope runs registered cleanups on
// every exit path of a function, including panics. RefCount is the atomic
// counter shared by the reference counting pointers in the embedded,
// sidetable and slot packages.
//
// Reference cycles between shared pointers are not detected. Cycles keep
// their resources alive forever; break them with a weak reference
// (see sidetable.Weak).
package scope
