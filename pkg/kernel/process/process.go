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

// Package process defines the user process object. Processes are owned by
// the replicated kernel state machine; syscall handlers hold only a
// transient reference while servicing one call.
package process

import (
	"fmt"

	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/arch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/usermem"
)

// PID identifies a process.
type PID uint64

// Process is a user process.
type Process struct {
	// PID is the process identifier. Immutable.
	PID PID

	// Mem accesses the process's memory. Immutable.
	Mem usermem.Memory

	// save holds the user register and trap state while the process is
	// in the kernel.
	save arch.SaveArea

	// vcpuAddr is the address of the per-core trap/save area exposed to
	// user space for event forwarding.
	vcpuAddr hostarch.Addr
}

// New creates a process.
func New(pid PID, mem usermem.Memory, vcpuAddr hostarch.Addr) *Process {
	return &Process{PID: pid, Mem: mem, vcpuAddr: vcpuAddr}
}

// SaveArea returns the process's save area.
func (p *Process) SaveArea() *arch.SaveArea {
	return &p.save
}

// VCPUAddr returns the address of the process's vCPU trap/save area.
func (p *Process) VCPUAddr() hostarch.Addr {
	return p.vcpuAddr
}

// String implements fmt.Stringer.String.
func (p *Process) String() string {
	return fmt.Sprintf("Process{pid %d}", p.PID)
}
