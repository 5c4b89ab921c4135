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
	"bytes"
	"testing"

	"github.com/catleeball/node-replicated-kernel/pkg/abi/kpi"
	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/machine"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/memory"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/nr"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/process"
	"github.com/catleeball/node-replicated-kernel/pkg/log"
)

// env wires a dispatcher to a simulated machine with one process resident
// on core 0.
type env struct {
	m       *machine.Machine
	node    *nr.KernelNode
	pool    *memory.NodePool
	console *bytes.Buffer
	d       *Dispatcher
	proc    *process.Process
	mem     *machine.ProcessMemory
	exits   []uint64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := log.Log()
	m, err := machine.New(machine.Config{Cores: 2, Nodes: 1, MemoryBytes: 128 << 20}, logger)
	if err != nil {
		t.Fatalf("machine.New: %v", err)
	}
	node := nr.NewKernelNode(logger)
	pool := memory.NewNodePool(0, logger)
	dram := m.DRAM()[0]
	pool.GrowFromRange(dram.Base, dram.Size)

	e := &env{m: m, node: node, pool: pool, console: &bytes.Buffer{}}
	e.d = New(Config{
		Node:    node,
		Pool:    pool,
		Console: e.console,
		IRQ:     m,
		Resumer: m,
		OnExit:  func(pid, code uint64) { e.exits = append(e.exits, pid, code) },
		Log:     logger,
	})
	e.d.RegisterCore(0, memory.NewCoreCache(pool))

	e.mem = m.NewProcessMemory(node)
	proc, err := node.CreateProcess(e.mem, 0x7ff0000)
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}
	e.mem.Bind(proc.PID)
	if err := node.SetCurrent(0, proc.PID); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	e.proc = proc
	return e
}

// syscall issues a call on core 0.
func (e *env) syscall(fn uint64, args ...uint64) kpi.SyscallResult {
	f := kpi.SyscallFrame{Function: fn}
	set := []*uint64{&f.Arg1, &f.Arg2, &f.Arg3, &f.Arg4, &f.Arg5}
	for i, a := range args {
		*set[i] = a
	}
	return e.d.Handle(0, f)
}

func TestMapThenLog(t *testing.T) {
	e := newEnv(t)

	base := uint64(0x10000000)
	res := e.syscall(uint64(kpi.SystemCallVSpace), uint64(kpi.VSpaceOpMap), base, hostarch.BasePageSize)
	if res.Error != kpi.ErrorOk {
		t.Fatalf("Map: %v", res.Error)
	}
	if res.Ret2 != hostarch.BasePageSize {
		t.Fatalf("Map returned %d mapped bytes, want %d", res.Ret2, hostarch.BasePageSize)
	}

	if err := e.mem.CopyOut(hostarch.Addr(base), []byte("hi")); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	res = e.syscall(uint64(kpi.SystemCallProcess), uint64(kpi.ProcessOpLog), base, 2)
	if res.Error != kpi.ErrorOk || res.Ret1 != 0 || res.Ret2 != 0 {
		t.Fatalf("Log: got (%d, %d, %v), want (0, 0, Ok)", res.Ret1, res.Ret2, res.Error)
	}
	if got := e.console.String(); got != "hi" {
		t.Fatalf("console got %q, want %q", got, "hi")
	}

	// The result reaches the save area and the resume path runs.
	sa := e.proc.SaveArea()
	if sa.SyscallError() != kpi.ErrorOk {
		t.Errorf("save area error = %v", sa.SyscallError())
	}
	if e.m.Resumes() == 0 {
		t.Error("no resume issued")
	}
}

func TestLogUnmappedBuffer(t *testing.T) {
	e := newEnv(t)
	res := e.syscall(uint64(kpi.SystemCallProcess), uint64(kpi.ProcessOpLog), 0x5000000, 16)
	if res.Error != kpi.ErrorNotLogged {
		t.Fatalf("got %v, want %v", res.Error, kpi.ErrorNotLogged)
	}
	if e.console.Len() != 0 {
		t.Fatal("console received bytes from an unmapped buffer")
	}
}

func TestLogZeroLength(t *testing.T) {
	e := newEnv(t)
	res := e.syscall(uint64(kpi.SystemCallProcess), uint64(kpi.ProcessOpLog), 0x5000000, 0)
	if res.Error != kpi.ErrorOk {
		t.Fatalf("zero length log: got %v, want Ok", res.Error)
	}
}

func TestMapConflict(t *testing.T) {
	e := newEnv(t)
	base := uint64(0x10000000)
	if res := e.syscall(uint64(kpi.SystemCallVSpace), uint64(kpi.VSpaceOpMap), base, hostarch.LargePageSize); res.Error != kpi.ErrorOk {
		t.Fatalf("first Map: %v", res.Error)
	}
	res := e.syscall(uint64(kpi.SystemCallVSpace), uint64(kpi.VSpaceOpMap), base+hostarch.BasePageSize, hostarch.BasePageSize)
	if res.Error != kpi.ErrorVSpaceAlreadyMapped {
		t.Fatalf("overlapping Map: got %v, want %v", res.Error, kpi.ErrorVSpaceAlreadyMapped)
	}
}

func TestMapZeroSize(t *testing.T) {
	e := newEnv(t)
	res := e.syscall(uint64(kpi.SystemCallVSpace), uint64(kpi.VSpaceOpMap), 0x10000000, 0)
	if res.Error == kpi.ErrorOk {
		t.Fatal("zero size Map succeeded")
	}
}

func TestIdentify(t *testing.T) {
	e := newEnv(t)
	base := uint64(0x10000000)
	mapRes := e.syscall(uint64(kpi.SystemCallVSpace), uint64(kpi.VSpaceOpMap), base, hostarch.BasePageSize)
	if mapRes.Error != kpi.ErrorOk {
		t.Fatalf("Map: %v", mapRes.Error)
	}
	res := e.syscall(uint64(kpi.SystemCallVSpace), uint64(kpi.VSpaceOpIdentify), base+12)
	if res.Error != kpi.ErrorOk {
		t.Fatalf("Identify: %v", res.Error)
	}
	if res.Ret1 != mapRes.Ret1+12 {
		t.Errorf("Identify pa = %#x, want %#x", res.Ret1, mapRes.Ret1+12)
	}
	if res.Ret2 == 0 {
		t.Error("Identify returned no rights")
	}

	res = e.syscall(uint64(kpi.SystemCallVSpace), uint64(kpi.VSpaceOpIdentify), 0x5000000)
	if res.Error == kpi.ErrorOk {
		t.Fatal("Identify of an unmapped address succeeded")
	}
}

func TestUnmapNotSupported(t *testing.T) {
	e := newEnv(t)
	res := e.syscall(uint64(kpi.SystemCallVSpace), uint64(kpi.VSpaceOpUnmap), 0x10000000, hostarch.BasePageSize)
	if res.Error != kpi.ErrorNotSupported {
		t.Fatalf("Unmap: got %v, want %v", res.Error, kpi.ErrorNotSupported)
	}
}

func TestMapDevice(t *testing.T) {
	e := newEnv(t)
	devBase := uint64(0xfee00000)
	res := e.syscall(uint64(kpi.SystemCallVSpace), uint64(kpi.VSpaceOpMapDevice), devBase, 0x1000)
	if res.Error != kpi.ErrorOk {
		t.Fatalf("MapDevice: %v", res.Error)
	}
	if res.Ret1 != devBase || res.Ret2 != 0x1000 {
		t.Errorf("MapDevice = (%#x, %#x), want (%#x, %#x)", res.Ret1, res.Ret2, devBase, 0x1000)
	}
}

func TestInstallVCpuArea(t *testing.T) {
	e := newEnv(t)
	res := e.syscall(uint64(kpi.SystemCallProcess), uint64(kpi.ProcessOpInstallVCpuArea))
	if res.Error != kpi.ErrorOk {
		t.Fatalf("InstallVCpuArea: %v", res.Error)
	}
	if res.Ret1 != 0x7ff0000 {
		t.Errorf("vCPU area at %#x, want %#x", res.Ret1, 0x7ff0000)
	}
}

func TestAllocateVector(t *testing.T) {
	e := newEnv(t)
	res := e.syscall(uint64(kpi.SystemCallProcess), uint64(kpi.ProcessOpAllocateVector), 0x30, 1)
	if res.Error != kpi.ErrorOk {
		t.Fatalf("AllocateVector: %v", res.Error)
	}
	if res.Ret1 != 0x30 || res.Ret2 != 1 {
		t.Errorf("AllocateVector = (%d, %d), want (0x30, 1)", res.Ret1, res.Ret2)
	}
	routed := e.m.RoutedIRQs()
	if len(routed) != 1 || routed[0] != (machine.RoutedIRQ{Vector: 0x30, Core: 1}) {
		t.Errorf("routed = %v", routed)
	}
}

func TestSubscribeEventNotSupported(t *testing.T) {
	e := newEnv(t)
	res := e.syscall(uint64(kpi.SystemCallProcess), uint64(kpi.ProcessOpSubscribeEvent), 1)
	if res.Error != kpi.ErrorNotSupported {
		t.Fatalf("got %v, want %v", res.Error, kpi.ErrorNotSupported)
	}
}

func TestFileIO(t *testing.T) {
	e := newEnv(t)

	res := e.syscall(uint64(kpi.SystemCallFileIO), uint64(kpi.FileOpCreate), 0x1234, 0644)
	if res.Error != kpi.ErrorOk {
		t.Fatalf("Create: %v", res.Error)
	}
	fd := res.Ret1

	for _, op := range []kpi.FileOperation{kpi.FileOpOpen, kpi.FileOpRead, kpi.FileOpWrite} {
		res := e.syscall(uint64(kpi.SystemCallFileIO), uint64(op), fd)
		if res.Error != kpi.ErrorOk || res.Ret1 != 1 {
			t.Errorf("%v: got (%d, %v), want (1, Ok)", op, res.Ret1, res.Error)
		}
	}

	if res := e.syscall(uint64(kpi.SystemCallFileIO), uint64(kpi.FileOpClose), fd); res.Error != kpi.ErrorOk {
		t.Fatalf("Close: %v", res.Error)
	}
	if res := e.syscall(uint64(kpi.SystemCallFileIO), uint64(kpi.FileOpClose), fd); res.Error == kpi.ErrorOk {
		t.Fatal("double Close succeeded")
	}

	if res := e.syscall(uint64(kpi.SystemCallFileIO), 99); res.Error != kpi.ErrorNotSupported {
		t.Fatalf("unknown file op: got %v, want %v", res.Error, kpi.ErrorNotSupported)
	}
}

func TestUnknownDomain(t *testing.T) {
	e := newEnv(t)
	res := e.syscall(99)
	if res.Error != kpi.ErrorInternal {
		t.Fatalf("got %v, want %v", res.Error, kpi.ErrorInternal)
	}

	res = e.syscall(uint64(kpi.SystemCallProcess), 99)
	if res.Error != kpi.ErrorInternal {
		t.Fatalf("unknown process op: got %v, want %v", res.Error, kpi.ErrorInternal)
	}
	res = e.syscall(uint64(kpi.SystemCallVSpace), 99)
	if res.Error != kpi.ErrorInternal {
		t.Fatalf("unknown vspace op: got %v, want %v", res.Error, kpi.ErrorInternal)
	}
}

func TestExit(t *testing.T) {
	e := newEnv(t)
	baseBefore, largeBefore := e.pool.FreeCounts()

	if res := e.syscall(uint64(kpi.SystemCallVSpace), uint64(kpi.VSpaceOpMap), 0x10000000, hostarch.LargePageSize); res.Error != kpi.ErrorOk {
		t.Fatalf("Map: %v", res.Error)
	}

	res := e.syscall(uint64(kpi.SystemCallProcess), uint64(kpi.ProcessOpExit), 0)
	if res.Error != kpi.ErrorOk {
		t.Fatalf("Exit: %v", res.Error)
	}
	if len(e.exits) != 2 || e.exits[0] != uint64(e.proc.PID) || e.exits[1] != 0 {
		t.Errorf("exit notification = %v", e.exits)
	}
	if _, err := e.node.CurrentProcess(0); err == nil {
		t.Fatal("core still has a current process after Exit")
	}

	// The mapped large frame went back to the pool; the refill slack is
	// still sitting in the core cache.
	baseAfter, largeAfter := e.pool.FreeCounts()
	if largeAfter != largeBefore {
		t.Errorf("large frames: %d before, %d after", largeBefore, largeAfter)
	}
	if baseAfter != baseBefore-mapRefillSlack {
		t.Errorf("base frames: %d before, %d after, want %d in the cache", baseBefore, baseAfter, mapRefillSlack)
	}

	// Syscalls after Exit fail with no current process.
	if res := e.syscall(uint64(kpi.SystemCallProcess), uint64(kpi.ProcessOpLog), 0, 0); res.Error == kpi.ErrorOk {
		t.Fatal("Log succeeded with no current process")
	}
}
