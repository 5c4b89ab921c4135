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

package syscall

import (
	"github.com/catleeball/node-replicated-kernel/pkg/abi/kpi"
	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
	"github.com/catleeball/node-replicated-kernel/pkg/kerr"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/arch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/memory"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/process"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/vspace"
)

// mapRefillSlack is the number of base pages pulled beyond the page plan on
// Map, covering page-table frames the commit may need.
const mapRefillSlack = 20

// handleVSpace services the VSpace domain. arg2 is the virtual base
// address, arg3 the region size.
func (d *Dispatcher) handleVSpace(core arch.CoreID, f kpi.SyscallFrame) (uint64, uint64, error) {
	base := hostarch.Addr(f.Arg2)
	size := f.Arg3

	p, err := d.node.CurrentProcess(core)
	if err != nil {
		return 0, 0, err
	}

	switch op := kpi.VSpaceOperationFromValue(f.Arg1); op {
	case kpi.VSpaceOpMap:
		return d.vspaceMap(core, p.PID, base, size)

	case kpi.VSpaceOpMapDevice:
		// Device mappings are identity style: arg2 doubles as the
		// physical base, arg3 is a raw byte length. No allocation.
		frame := memory.NewFrame(hostarch.PhysAddr(f.Arg2), size, d.pool.Node())
		pa, mapped, err := d.node.MapDeviceFrame(p.PID, frame, vspace.ReadWriteUser)
		if err != nil {
			return 0, 0, err
		}
		return uint64(pa), mapped, nil

	case kpi.VSpaceOpUnmap:
		d.log.Warningf("vspace unmap is not implemented")
		return 0, 0, kerr.ErrNotSupported

	case kpi.VSpaceOpIdentify:
		pa, action, err := d.node.Resolve(p.PID, base)
		if err != nil {
			return 0, 0, err
		}
		return uint64(pa), uint64(action), nil

	default:
		return 0, 0, kerr.InvalidVSpaceOperation(f.Arg1)
	}
}

// vspaceMap allocates frames covering size bytes and commits them at base
// through the state machine. The refill step converts transient allocator
// emptiness into a synchronous pre-step: the Alloc calls below it cannot
// fail, and the cache panics if they do.
func (d *Dispatcher) vspaceMap(core arch.CoreID, pid process.PID, base hostarch.Addr, size uint64) (uint64, uint64, error) {
	if size == 0 {
		return 0, 0, kerr.ErrBadAddress
	}
	plan := memory.PlanPages(size)
	cache := d.cache(core)
	if err := cache.Refill(mapRefillSlack+plan.Base, plan.Large); err != nil {
		return 0, 0, err
	}

	frames := make([]memory.Frame, 0, plan.Base+plan.Large)
	for i := 0; i < plan.Large; i++ {
		frames = append(frames, cache.AllocLarge())
	}
	for i := 0; i < plan.Base; i++ {
		frames = append(frames, cache.AllocBase())
	}

	pa, mapped, err := d.node.MapFrames(pid, base, frames, vspace.ReadWriteUser)
	if err != nil {
		// The commit is all or nothing; on conflict the frames were
		// never consumed.
		cache.Return(frames)
		return 0, 0, err
	}
	return uint64(pa), mapped, nil
}
