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

// Package nr holds the replicated kernel state: per-process address spaces,
// file tables and the per-core current-process bindings.
//
// Node is the contract the syscall layer depends on: operations submitted
// concurrently from any core are applied in some total order; each
// operation's effect is atomic and, once applied, visible in that order to
// every core's subsequent operations. Reads take the same path as writes so
// they observe the order too. How the state is replicated between NUMA
// nodes is not this package's concern; KernelNode is the single-replica
// implementation of the contract.
package nr

import (
	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/arch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/memory"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/process"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/usermem"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/vspace"
)

// Node is the replicated kernel state machine, keyed by process id.
type Node interface {
	// CreateProcess creates a process with an empty address space and
	// file table and returns it.
	CreateProcess(mem usermem.Memory, vcpuAddr hostarch.Addr) (*process.Process, error)

	// DestroyProcess removes a process, returning its allocator-owned
	// frames for recycling.
	DestroyProcess(pid process.PID) ([]memory.Frame, error)

	// CurrentProcess returns the process resident on the given core, or
	// ErrProcessNotSet.
	CurrentProcess(core arch.CoreID) (*process.Process, error)

	// SetCurrent binds a process to a core.
	SetCurrent(core arch.CoreID, pid process.PID) error

	// ClearCurrent unbinds whatever process the core is running.
	ClearCurrent(core arch.CoreID)

	// MapFrames maps frames back to back at base in pid's address space.
	// It returns the physical base of the first frame and the total
	// mapped size. The mapping is all or nothing.
	MapFrames(pid process.PID, base hostarch.Addr, frames []memory.Frame, action vspace.MapAction) (hostarch.PhysAddr, uint64, error)

	// MapDeviceFrame identity-maps a device frame in pid's address
	// space.
	MapDeviceFrame(pid process.PID, frame memory.Frame, action vspace.MapAction) (hostarch.PhysAddr, uint64, error)

	// Resolve translates addr in pid's address space.
	Resolve(pid process.PID, addr hostarch.Addr) (hostarch.PhysAddr, vspace.MapAction, error)

	// MappedRange reports whether r is fully mapped in pid's address
	// space.
	MappedRange(pid process.PID, r hostarch.AddrRange) (bool, error)

	// MapFD registers a (pathname-handle, mode) pair in pid's file table
	// and returns the new file descriptor.
	MapFD(pid process.PID, pathname, modes uint64) (uint64, error)

	// UnmapFD deregisters a file descriptor.
	UnmapFD(pid process.PID, fd uint64) error
}
