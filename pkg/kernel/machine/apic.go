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
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/catleeball/node-replicated-kernel/pkg/kernel/arch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/coreboot"
)

// ErrBootRegionBusy is returned by TakeBootRegion while another wake holds
// the bootstrap window.
var ErrBootRegionBusy = errors.New("bootstrap region in use")

// simAPIC models the local APIC's interrupt command register. A STARTUP
// following an INIT makes the target core execute the relocated trampoline
// at the vector page: the simulation reads the patched slots, latches them
// as the core's entry state and sets the image's lock word, exactly what
// the real bootstrap code does before jumping to the kernel entry.
type simAPIC struct {
	m *Machine
}

// APIC returns the machine's interrupt controller.
func (m *Machine) APIC() coreboot.APIC {
	return &simAPIC{m: m}
}

// IPIInit implements coreboot.APIC.IPIInit.
func (a *simAPIC) IPIInit(id arch.CoreID) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	if int(id) >= len(a.m.cores) {
		a.m.log.Warningf("INIT for nonexistent core %d", id)
		return
	}
	a.m.cores[id].initHeld = true
}

// IPIInitDeassert implements coreboot.APIC.IPIInitDeassert.
func (a *simAPIC) IPIInitDeassert() {}

// IPIStartup implements coreboot.APIC.IPIStartup.
func (a *simAPIC) IPIStartup(id arch.CoreID, page uint8) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	if int(id) >= len(a.m.cores) {
		a.m.log.Warningf("STARTUP for nonexistent core %d", id)
		return
	}
	c := &a.m.cores[id]
	if !c.initHeld {
		// A STARTUP without a preceding INIT is dropped by hardware.
		a.m.log.Warningf("STARTUP for core %d without INIT", id)
		return
	}
	c.initHeld = false

	img := a.m.trampoline
	if img == nil {
		a.m.log.Warningf("STARTUP for core %d with no trampoline loaded", id)
		return
	}
	base := uint64(page) << 12
	window := a.m.mem[base : base+img.Size()]
	l := img.Layout()
	c.entry = readSlot64(window, l.Entry)
	c.args = [4]uint64{
		readSlot64(window, l.Arg1),
		readSlot64(window, l.Arg2),
		readSlot64(window, l.Arg3),
		readSlot64(window, l.Arg4),
	}
	c.pml4 = readSlot64(window, l.PML4)
	c.stackPtr = readSlot64(window, l.StackPtr)
	c.online = true
	binary.LittleEndian.PutUint64(window[l.Lock:], 1)
	a.m.log.Infof("core %d online, entry %#x stack %#x", id, c.entry, c.stackPtr)
}

func readSlot64(window []byte, off uint64) uint64 {
	return binary.LittleEndian.Uint64(window[off : off+8])
}

// BootRegion is the exclusive handle on the low-memory bootstrap window.
// It implements coreboot.Region.
type BootRegion struct {
	m        *Machine
	released bool
}

// TakeBootRegion claims the bootstrap window. It fails while another wake
// holds it; Release returns it.
func (m *Machine) TakeBootRegion() (*BootRegion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bootBusy {
		return nil, ErrBootRegionBusy
	}
	m.bootBusy = true
	return &BootRegion{m: m}, nil
}

// Map implements coreboot.Region.Map.
func (r *BootRegion) Map(size uint64) ([]byte, error) {
	if r.released {
		return nil, errors.New("bootstrap region already released")
	}
	base := coreboot.RealModeBase
	if base+size > r.m.cfg.MemoryBytes {
		return nil, fmt.Errorf("bootstrap window of %#x bytes exceeds memory", size)
	}
	return r.m.mem[base : base+size], nil
}

// Release returns the bootstrap window to the machine.
func (r *BootRegion) Release() {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.released = true
	r.m.bootBusy = false
}
