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
)

// vcpuRefillPages is the number of base pages pre-pulled before satisfying
// a vCPU-area request, sized to cover the area plus its table pages.
const vcpuRefillPages = 8

// handleProcess services the Process domain.
func (d *Dispatcher) handleProcess(core arch.CoreID, f kpi.SyscallFrame) (uint64, uint64, error) {
	switch op := kpi.ProcessOperationFromValue(f.Arg1); op {
	case kpi.ProcessOpLog:
		return d.processLog(core, hostarch.Addr(f.Arg2), f.Arg3)

	case kpi.ProcessOpExit:
		return d.processExit(core, f.Arg2)

	case kpi.ProcessOpInstallVCpuArea:
		// Satisfying the request may need fresh pages for the area's
		// backing and table entries; pull them up front so the rest
		// of the path cannot fail on allocation.
		if err := d.cache(core).Refill(vcpuRefillPages, 0); err != nil {
			return 0, 0, err
		}
		p, err := d.node.CurrentProcess(core)
		if err != nil {
			return 0, 0, err
		}
		return uint64(p.VCPUAddr()), 0, nil

	case kpi.ProcessOpAllocateVector:
		// No conflict checking: rebinding a vector overwrites the
		// previous route.
		vector, target := f.Arg2, f.Arg3
		d.irq.Route(vector, target)
		return vector, target, nil

	case kpi.ProcessOpSubscribeEvent:
		return 0, 0, kerr.ErrNotSupported

	default:
		return 0, 0, kerr.InvalidProcessOperation(f.Arg1)
	}
}

// processLog writes length bytes at buf in the calling process's address
// space to the console sink. The range is validated against the process's
// mappings before any access; an unreadable buffer loses the message and
// reports NotLogged.
func (d *Dispatcher) processLog(core arch.CoreID, buf hostarch.Addr, length uint64) (uint64, uint64, error) {
	p, err := d.node.CurrentProcess(core)
	if err != nil {
		return 0, 0, err
	}
	if length == 0 {
		return 0, 0, nil
	}
	r, ok := buf.ToRange(length)
	if !ok {
		return 0, 0, kerr.ErrNotLogged
	}
	mapped, err := d.node.MappedRange(p.PID, r)
	if err != nil {
		return 0, 0, err
	}
	if !mapped {
		return 0, 0, kerr.ErrNotLogged
	}
	data := make([]byte, length)
	if err := p.Mem.CopyIn(buf, data); err != nil {
		return 0, 0, kerr.ErrNotLogged
	}
	if _, err := d.console.Write(data); err != nil {
		return 0, 0, kerr.ErrNotLogged
	}
	return 0, 0, nil
}

// processExit tears the calling process down: its file table and address
// space go away atomically through the state machine, and its frames are
// recycled. code 0 is a clean exit, anything else a failing one.
func (d *Dispatcher) processExit(core arch.CoreID, code uint64) (uint64, uint64, error) {
	p, err := d.node.CurrentProcess(core)
	if err != nil {
		return 0, 0, err
	}
	frames, err := d.node.DestroyProcess(p.PID)
	if err != nil {
		return 0, 0, err
	}
	d.pool.Recycle(frames)
	if code == 0 {
		d.log.Infof("process %d exited cleanly", p.PID)
	} else {
		d.log.Warningf("process %d exited with code %d", p.PID, code)
	}
	if d.onExit != nil {
		d.onExit(uint64(p.PID), code)
	}
	return 0, 0, nil
}
