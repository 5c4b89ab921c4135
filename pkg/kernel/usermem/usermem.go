// Copyright 2023 The nrk Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package usermem provides access to user memory. Syscall handlers never
// dereference user-supplied addresses directly; they go through a Memory
// accessor after validating the range against the process's address space.
package usermem

import "github.com/catleeball/node-replicated-kernel/pkg/hostarch"

// Memory is the interface for accessing a process's memory. The platform
// supplies an implementation that translates through the process's vspace.
type Memory interface {
	// CopyIn copies len(dst) bytes from the process's memory at addr.
	// Partially unmapped ranges fail without a partial copy being
	// observable in dst's error path.
	CopyIn(addr hostarch.Addr, dst []byte) error

	// CopyOut copies src into the process's memory at addr.
	CopyOut(addr hostarch.Addr, src []byte) error
}
