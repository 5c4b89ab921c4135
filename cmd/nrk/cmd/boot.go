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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"gopkg.in/yaml.v2"

	"github.com/catleeball/node-replicated-kernel/pkg/abi/bootinfo"
	"github.com/catleeball/node-replicated-kernel/pkg/abi/kpi"
	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/arch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/coreboot"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/machine"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/memory"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/nr"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/syscall"
	"github.com/catleeball/node-replicated-kernel/pkg/log"
)

const (
	// kernelEntry is the virtual address of the kernel's application-core
	// entry function, patched into the trampoline.
	kernelEntry = 0xffff800000100000

	// kernelPML4 is the physical root page table cores start on.
	kernelPML4 hostarch.PhysAddr = 0x2000

	// bootinfoAddr is where the encoded boot arguments are placed. It sits
	// between the bootstrap region and the core stacks.
	bootinfoAddr hostarch.PhysAddr = 0x10000

	// coreStackBase and coreStackSize lay out the per-core bootstrap
	// stacks below the allocator-owned DRAM.
	coreStackBase uint64 = 0x80000
	coreStackSize uint64 = 0x4000
)

// topology is the machine description read from the boot config file.
type topology struct {
	Machine struct {
		Cores       int    `yaml:"cores"`
		Nodes       int    `yaml:"nodes"`
		MemoryBytes uint64 `yaml:"memory-bytes"`
	} `yaml:"machine"`
}

func defaultTopology() topology {
	var t topology
	t.Machine.Cores = 4
	t.Machine.Nodes = 2
	t.Machine.MemoryBytes = 512 << 20
	return t
}

func loadTopology(path string) (topology, error) {
	t := defaultTopology()
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.UnmarshalStrict(b, &t); err != nil {
		return t, fmt.Errorf("parsing %s: %w", path, err)
	}
	return t, nil
}

// defaultTrampoline builds the bootstrap image. The simulated machine
// never executes the code bytes, only the patch slots matter; a real
// platform substitutes the assembled real-mode stub with the same layout.
func defaultTrampoline() (*coreboot.Image, error) {
	code := make([]byte, 512)
	return coreboot.NewImage(code, coreboot.Layout{
		Entry:    0x1b0,
		Arg1:     0x1b8,
		Arg2:     0x1c0,
		Arg3:     0x1c8,
		Arg4:     0x1d0,
		PML4:     0x1d8,
		StackPtr: 0x1e0,
		Lock:     0x1e8,
	})
}

// Boot implements subcommands.Command for the "boot" command.
type Boot struct {
	configPath  string
	wakeTimeout time.Duration
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "Boot brings up a simulated machine and runs a demo process"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [flags] - wake all cores of a simulated machine, then run a demo process.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.configPath, "config", "", "YAML machine topology; defaults are used when empty.")
	f.DurationVar(&b.wakeTimeout, "wake-timeout", time.Second, "how long to wait for each woken core.")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	topo, err := loadTopology(b.configPath)
	if err != nil {
		Fatalf("loading topology: %v", err)
	}
	// Stacks live in [coreStackBase, 1 MiB); DRAM above is allocator-owned.
	if max := int((0x100000 - coreStackBase) / coreStackSize); topo.Machine.Cores > max {
		Fatalf("topology has %d cores, the stack layout supports %d", topo.Machine.Cores, max)
	}

	m, err := machine.New(machine.Config{
		Cores:       topo.Machine.Cores,
		Nodes:       topo.Machine.Nodes,
		MemoryBytes: topo.Machine.MemoryBytes,
	}, log.Log())
	if err != nil {
		Fatalf("creating machine: %v", err)
	}

	// One frame pool per NUMA node, seeded from the memory map.
	pools := make([]*memory.NodePool, 0, topo.Machine.Nodes)
	for _, r := range m.DRAM() {
		pool := memory.NewNodePool(r.Node, log.Log())
		pool.GrowFromRange(r.Base, r.Size)
		pools = append(pools, pool)
	}

	node := nr.NewKernelNode(log.Log())
	dispatcher := syscall.New(syscall.Config{
		Node:    node,
		Pool:    pools[0],
		Console: os.Stdout,
		IRQ:     m,
		Resumer: m,
		OnExit: func(pid, code uint64) {
			log.Infof("process %d finished with code %d", pid, code)
		},
		Log: log.Log(),
	})
	for core := 0; core < topo.Machine.Cores; core++ {
		n := core * topo.Machine.Nodes / topo.Machine.Cores
		dispatcher.RegisterCore(arch.CoreID(core), memory.NewCoreCache(pools[n]))
	}

	if err := b.wakeCores(m, topo); err != nil {
		Fatalf("waking cores: %v", err)
	}

	if err := runDemo(m, node, dispatcher); err != nil {
		Fatalf("demo process: %v", err)
	}
	return subcommands.ExitSuccess
}

// wakeCores brings up every application core in turn, handing each the
// encoded boot arguments. Wakes are serialized through the bootstrap
// region handle.
func (b *Boot) wakeCores(m *machine.Machine, topo topology) error {
	img, err := defaultTrampoline()
	if err != nil {
		return err
	}
	m.LoadTrampoline(img)

	args := bootinfo.Args{
		PML4:        kernelPML4,
		StackBase:   hostarch.PhysAddr(coreStackBase),
		StackLength: coreStackSize,
		Modules: []bootinfo.Module{
			bootinfo.NewModule("kernel", 0x100000, 8<<20),
			bootinfo.NewModule("init", 0x900000, 1<<20),
		},
	}
	blob, err := args.Encode()
	if err != nil {
		return err
	}
	if err := m.WritePhys(bootinfoAddr, blob); err != nil {
		return err
	}

	region, err := m.TakeBootRegion()
	if err != nil {
		return err
	}
	defer region.Release()

	for core := 1; core < topo.Machine.Cores; core++ {
		stackStart := coreStackBase + uint64(core)*coreStackSize
		stack := hostarch.AddrRange{
			Start: hostarch.Addr(stackStart),
			End:   hostarch.Addr(stackStart + coreStackSize),
		}
		wakeArgs := [4]uint64{uint64(bootinfoAddr), uint64(core), 0, 0}
		if err := coreboot.Initialize(m.APIC(), region, img, arch.CoreID(core), kernelEntry, wakeArgs, kernelPML4, stack); err != nil {
			return fmt.Errorf("core %d: %w", core, err)
		}
		if err := coreboot.WaitOnline(region, img, b.wakeTimeout); err != nil {
			return fmt.Errorf("core %d did not come online: %w", core, err)
		}
		log.Infof("core %d online", core)
	}
	return nil
}

// runDemo creates a process on the boot core and drives it through the
// syscall path: map a page, write a greeting through it, log it, exit.
func runDemo(m *machine.Machine, node nr.Node, dispatcher *syscall.Dispatcher) error {
	pm := m.NewProcessMemory(node)
	proc, err := node.CreateProcess(pm, 0x7ff0000)
	if err != nil {
		return err
	}
	pm.Bind(proc.PID)
	if err := node.SetCurrent(0, proc.PID); err != nil {
		return err
	}

	const base = 0x10000000
	res := dispatcher.Handle(0, kpi.SyscallFrame{
		Function: uint64(kpi.SystemCallVSpace),
		Arg1:     uint64(kpi.VSpaceOpMap),
		Arg2:     base,
		Arg3:     hostarch.BasePageSize,
	})
	if res.Error != kpi.ErrorOk {
		return fmt.Errorf("map failed: %v", res.Error)
	}

	msg := []byte("hello from user space\n")
	if err := pm.CopyOut(base, msg); err != nil {
		return err
	}
	res = dispatcher.Handle(0, kpi.SyscallFrame{
		Function: uint64(kpi.SystemCallProcess),
		Arg1:     uint64(kpi.ProcessOpLog),
		Arg2:     base,
		Arg3:     uint64(len(msg)),
	})
	if res.Error != kpi.ErrorOk {
		return fmt.Errorf("log failed: %v", res.Error)
	}

	res = dispatcher.Handle(0, kpi.SyscallFrame{
		Function: uint64(kpi.SystemCallProcess),
		Arg1:     uint64(kpi.ProcessOpExit),
	})
	if res.Error != kpi.ErrorOk {
		return fmt.Errorf("exit failed: %v", res.Error)
	}
	return nil
}
