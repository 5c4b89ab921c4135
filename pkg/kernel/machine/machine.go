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

// Package machine simulates the physical host: a flat DRAM window, a set
// of application cores and a local APIC. The kernel packages only touch
// hardware through the coreboot.APIC, coreboot.Region, usermem.Memory and
// arch.Resumer interfaces, so the same kernel runs unchanged against this
// simulation or against a real platform implementation.
package machine

import (
	"fmt"
	"sync"

	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/arch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/coreboot"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/memory"
	"github.com/catleeball/node-replicated-kernel/pkg/log"
)

// dramBase is where allocator-owned memory starts. Everything below it is
// reserved for the bootstrap region and legacy ranges.
const dramBase = 0x100000

// Config describes the simulated host's topology.
type Config struct {
	// Cores is the number of cores, numbered from 0. Core 0 is the boot
	// core and starts online.
	Cores int

	// Nodes is the number of NUMA nodes DRAM is split across.
	Nodes int

	// MemoryBytes is the size of physical memory.
	MemoryBytes uint64
}

func (c Config) validate() error {
	if c.Cores < 1 {
		return fmt.Errorf("machine needs at least one core, got %d", c.Cores)
	}
	if c.Nodes < 1 {
		return fmt.Errorf("machine needs at least one node, got %d", c.Nodes)
	}
	if min := uint64(dramBase) + uint64(c.Nodes)*hostarch.LargePageSize; c.MemoryBytes < min {
		return fmt.Errorf("machine needs at least %#x bytes of memory for %d nodes, got %#x", min, c.Nodes, c.MemoryBytes)
	}
	return nil
}

// core is the simulated per-core state the APIC mutates on a wake.
type core struct {
	online   bool
	initHeld bool
	entry    uint64
	args     [4]uint64
	pml4     uint64
	stackPtr uint64
}

// RoutedIRQ records an interrupt vector routed to a core.
type RoutedIRQ struct {
	Vector uint64
	Core   uint64
}

// Machine is the simulated host.
type Machine struct {
	cfg Config
	log log.Logger
	mem []byte

	mu         sync.Mutex
	cores      []core
	trampoline *coreboot.Image
	bootBusy   bool
	routed     []RoutedIRQ
	resumes    uint64
}

// New builds a machine. Core 0 comes up online.
func New(cfg Config, logger log.Logger) (*Machine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m := &Machine{
		cfg:   cfg,
		log:   logger,
		mem:   make([]byte, cfg.MemoryBytes),
		cores: make([]core, cfg.Cores),
	}
	m.cores[0].online = true
	return m, nil
}

// NumCores returns the number of cores.
func (m *Machine) NumCores() int {
	return m.cfg.Cores
}

// CoreOnline reports whether the given core has come up.
func (m *Machine) CoreOnline(id arch.CoreID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) >= len(m.cores) {
		return false
	}
	return m.cores[id].online
}

// CoreEntry returns the entry state a woken core latched from the
// trampoline: entry function, arguments, page-table root and stack
// pointer.
func (m *Machine) CoreEntry(id arch.CoreID) (uint64, [4]uint64, uint64, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cores[id]
	return c.entry, c.args, c.pml4, c.stackPtr
}

// LoadTrampoline hands the machine the trampoline image. The simulated
// APIC needs the slot layout to model what a woken core reads out of the
// relocated bootstrap code.
func (m *Machine) LoadTrampoline(img *coreboot.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trampoline = img
}

// DRAMRange is a physical range belonging to a NUMA node, as a boot
// memory map would report it.
type DRAMRange struct {
	Node memory.NodeID
	Base hostarch.PhysAddr
	Size uint64
}

// DRAM splits allocator-owned memory evenly across the nodes.
func (m *Machine) DRAM() []DRAMRange {
	per := (m.cfg.MemoryBytes - dramBase) / uint64(m.cfg.Nodes)
	ranges := make([]DRAMRange, 0, m.cfg.Nodes)
	for n := 0; n < m.cfg.Nodes; n++ {
		ranges = append(ranges, DRAMRange{
			Node: memory.NodeID(n),
			Base: hostarch.PhysAddr(dramBase + uint64(n)*per),
			Size: per,
		})
	}
	return ranges
}

// ReadPhys copies physical memory at pa into b.
func (m *Machine) ReadPhys(pa hostarch.PhysAddr, b []byte) error {
	if uint64(pa)+uint64(len(b)) > m.cfg.MemoryBytes {
		return fmt.Errorf("physical read [%#x, %#x) outside memory", pa, uint64(pa)+uint64(len(b)))
	}
	copy(b, m.mem[pa:])
	return nil
}

// WritePhys copies b into physical memory at pa.
func (m *Machine) WritePhys(pa hostarch.PhysAddr, b []byte) error {
	if uint64(pa)+uint64(len(b)) > m.cfg.MemoryBytes {
		return fmt.Errorf("physical write [%#x, %#x) outside memory", pa, uint64(pa)+uint64(len(b)))
	}
	copy(m.mem[pa:], b)
	return nil
}

// Route implements the interrupt routing the syscall layer asks for. The
// simulation just records the assignment.
func (m *Machine) Route(vector, coreID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routed = append(m.routed, RoutedIRQ{Vector: vector, Core: coreID})
	m.log.Debugf("routed vector %d to core %d", vector, coreID)
}

// RoutedIRQs returns the routed vectors in order.
func (m *Machine) RoutedIRQs() []RoutedIRQ {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoutedIRQ, len(m.routed))
	copy(out, m.routed)
	return out
}

// Resume implements arch.Resumer. Returning to user space is a no-op in
// the simulation beyond counting the transition.
func (m *Machine) Resume(*arch.SaveArea) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes++
}

// Resumes returns how many user-space returns were issued.
func (m *Machine) Resumes() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumes
}
