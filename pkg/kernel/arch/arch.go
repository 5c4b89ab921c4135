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

// Package arch holds the architecture-facing pieces of the control plane:
// core identifiers, the per-core save area that the syscall ABI marshals
// results into, and the resume hook back to user space.
package arch

import "github.com/catleeball/node-replicated-kernel/pkg/abi/kpi"

// CoreID identifies a processor core. It is the hardware (APIC) identifier,
// not a dense index.
type CoreID uint64

// SaveArea holds the user register and trap state of the process resident on
// a core. The layout mirrors the trap frame the entry stubs push; only the
// syscall result slots are named here.
type SaveArea struct {
	// Regs is the general purpose register file at trap entry.
	Regs [16]uint64

	ret1    uint64
	ret2    uint64
	errCode uint64
}

// SetSyscallRet1 sets the first syscall return word.
func (sa *SaveArea) SetSyscallRet1(v uint64) {
	sa.ret1 = v
}

// SetSyscallRet2 sets the second syscall return word.
func (sa *SaveArea) SetSyscallRet2(v uint64) {
	sa.ret2 = v
}

// SetSyscallError sets the wire error code returned to user space.
func (sa *SaveArea) SetSyscallError(e kpi.SyscallError) {
	sa.errCode = uint64(e)
}

// SyscallRet1 returns the first syscall return word.
func (sa *SaveArea) SyscallRet1() uint64 {
	return sa.ret1
}

// SyscallRet2 returns the second syscall return word.
func (sa *SaveArea) SyscallRet2() uint64 {
	return sa.ret2
}

// SyscallError returns the wire error code.
func (sa *SaveArea) SyscallError() kpi.SyscallError {
	return kpi.SyscallErrorFromValue(sa.errCode)
}

// Resumer returns control to user space after a syscall result has been
// written to the save area. The sysret path is processor specific and
// supplied by the platform.
type Resumer interface {
	Resume(sa *SaveArea)
}
