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

package machine

import (
	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
	"github.com/catleeball/node-replicated-kernel/pkg/kerr"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/nr"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/process"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/vspace"
)

// ProcessMemory accesses a process's memory by translating virtual
// addresses through the kernel node and copying against the machine's
// physical memory. It implements usermem.Memory.
//
// The accessor is created before the process exists, so the process id is
// bound right after CreateProcess returns.
type ProcessMemory struct {
	m     *Machine
	node  nr.Node
	pid   process.PID
	bound bool
}

// NewProcessMemory returns an unbound accessor.
func (m *Machine) NewProcessMemory(node nr.Node) *ProcessMemory {
	return &ProcessMemory{m: m, node: node}
}

// Bind attaches the accessor to a process id.
func (pm *ProcessMemory) Bind(pid process.PID) {
	pm.pid = pid
	pm.bound = true
}

// CopyIn implements usermem.Memory.CopyIn.
func (pm *ProcessMemory) CopyIn(addr hostarch.Addr, dst []byte) error {
	return pm.walk(addr, uint64(len(dst)), vspace.ActionRead, func(pa hostarch.PhysAddr, off, n uint64) error {
		return pm.m.ReadPhys(pa, dst[off:off+n])
	})
}

// CopyOut implements usermem.Memory.CopyOut.
func (pm *ProcessMemory) CopyOut(addr hostarch.Addr, src []byte) error {
	return pm.walk(addr, uint64(len(src)), vspace.ActionWrite, func(pa hostarch.PhysAddr, off, n uint64) error {
		return pm.m.WritePhys(pa, src[off:off+n])
	})
}

// walk translates [addr, addr+length) a base page at a time and hands each
// physical chunk to f. An unmapped page or a missing right fails the whole
// copy with ErrBadAddress.
func (pm *ProcessMemory) walk(addr hostarch.Addr, length uint64, need vspace.MapAction, f func(pa hostarch.PhysAddr, off, n uint64) error) error {
	if !pm.bound {
		return kerr.ErrBadAddress
	}
	for off := uint64(0); off < length; {
		cur := addr + hostarch.Addr(off)
		pa, action, err := pm.node.Resolve(pm.pid, cur)
		if err != nil {
			return kerr.ErrBadAddress
		}
		if action&need == 0 {
			return kerr.ErrBadAddress
		}
		n := hostarch.BasePageSize - cur.PageOffset()
		if rem := length - off; n > rem {
			n = rem
		}
		if err := f(pa, off, n); err != nil {
			return kerr.ErrBadAddress
		}
		off += n
	}
	return nil
}
