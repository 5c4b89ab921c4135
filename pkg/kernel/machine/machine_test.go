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
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
	"github.com/catleeball/node-replicated-kernel/pkg/kerr"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/coreboot"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/memory"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/nr"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/vspace"
	"github.com/catleeball/node-replicated-kernel/pkg/log"
)

func testMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := New(Config{Cores: 4, Nodes: 2, MemoryBytes: 64 << 20}, log.Log())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func testTrampoline(t *testing.T) *coreboot.Image {
	t.Helper()
	img, err := coreboot.NewImage(make([]byte, 128), coreboot.Layout{
		Entry: 0x00, Arg1: 0x08, Arg2: 0x10, Arg3: 0x18, Arg4: 0x20,
		PML4: 0x28, StackPtr: 0x30, Lock: 0x38,
	})
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	return img
}

func TestWakeCore(t *testing.T) {
	m := testMachine(t)
	img := testTrampoline(t)
	m.LoadTrampoline(img)

	if !m.CoreOnline(0) {
		t.Fatal("boot core not online")
	}
	if m.CoreOnline(2) {
		t.Fatal("core 2 online before wake")
	}

	region, err := m.TakeBootRegion()
	if err != nil {
		t.Fatalf("TakeBootRegion: %v", err)
	}
	if _, err := m.TakeBootRegion(); !errors.Is(err, ErrBootRegionBusy) {
		t.Fatalf("second TakeBootRegion: got %v, want %v", err, ErrBootRegionBusy)
	}

	stack := hostarch.AddrRange{Start: 0x80000, End: 0x90000}
	args := [4]uint64{11, 22, 33, 44}
	if err := coreboot.Initialize(m.APIC(), region, img, 2, 0xdeadbeef, args, 0x2000, stack); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := coreboot.WaitOnline(region, img, time.Second); err != nil {
		t.Fatalf("WaitOnline: %v", err)
	}
	region.Release()

	if !m.CoreOnline(2) {
		t.Fatal("core 2 not online after wake")
	}
	entry, gotArgs, pml4, stackPtr := m.CoreEntry(2)
	if entry != 0xdeadbeef || gotArgs != args || pml4 != 0x2000 || stackPtr != 0x90000-16 {
		t.Errorf("core entry state = %#x %v %#x %#x", entry, gotArgs, pml4, stackPtr)
	}

	if _, err := m.TakeBootRegion(); err != nil {
		t.Fatalf("TakeBootRegion after release: %v", err)
	}
}

func TestStartupWithoutInitIgnored(t *testing.T) {
	m := testMachine(t)
	m.LoadTrampoline(testTrampoline(t))
	m.APIC().IPIStartup(3, coreboot.RealModePage)
	if m.CoreOnline(3) {
		t.Fatal("STARTUP without INIT woke the core")
	}
}

func TestDRAMSplit(t *testing.T) {
	m := testMachine(t)
	ranges := m.DRAM()
	if len(ranges) != 2 {
		t.Fatalf("got %d ranges, want 2", len(ranges))
	}
	var total uint64
	for i, r := range ranges {
		if r.Node != memory.NodeID(i) {
			t.Errorf("range %d on node %d", i, r.Node)
		}
		if uint64(r.Base) < dramBase {
			t.Errorf("range %d starts at %#x, below DRAM base", i, r.Base)
		}
		total += r.Size
	}
	if want := uint64(64<<20) - dramBase; total != want {
		t.Errorf("ranges cover %#x bytes, want %#x", total, want)
	}
}

func TestProcessMemory(t *testing.T) {
	m := testMachine(t)
	node := nr.NewKernelNode(log.Log())

	pm := m.NewProcessMemory(node)
	proc, err := node.CreateProcess(pm, 0)
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}
	pm.Bind(proc.PID)

	dram := m.DRAM()[0]
	frames := []memory.Frame{
		memory.NewFrame(dram.Base, hostarch.BasePageSize, dram.Node),
		memory.NewFrame(dram.Base+hostarch.BasePageSize, hostarch.BasePageSize, dram.Node),
	}
	base := hostarch.Addr(0x10000000)
	if _, _, err := node.MapFrames(proc.PID, base, frames, vspace.ReadWriteUser); err != nil {
		t.Fatalf("MapFrames: %v", err)
	}

	// A copy crossing the page boundary has to translate both pages.
	msg := bytes.Repeat([]byte("abcdefgh"), 25)
	at := base + hostarch.Addr(hostarch.BasePageSize-100)
	if err := pm.CopyOut(at, msg); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	got := make([]byte, len(msg))
	if err := pm.CopyIn(at, got); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatal("round trip mismatch")
	}

	if err := pm.CopyIn(0x5000000, make([]byte, 8)); !errors.Is(err, kerr.ErrBadAddress) {
		t.Errorf("unmapped CopyIn: got %v, want %v", err, kerr.ErrBadAddress)
	}

	roFrames := []memory.Frame{memory.NewFrame(dram.Base+2*hostarch.BasePageSize, hostarch.BasePageSize, dram.Node)}
	roBase := hostarch.Addr(0x20000000)
	if _, _, err := node.MapFrames(proc.PID, roBase, roFrames, vspace.ReadUser); err != nil {
		t.Fatalf("MapFrames: %v", err)
	}
	if err := pm.CopyOut(roBase, []byte{1}); !errors.Is(err, kerr.ErrBadAddress) {
		t.Errorf("read-only CopyOut: got %v, want %v", err, kerr.ErrBadAddress)
	}
}
