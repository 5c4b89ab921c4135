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

// Package coreboot wakes application cores.
//
// A sleeping core starts executing in real mode at a fixed low-memory
// address, so the bootstrap trampoline must be relocated below 1 MiB
// before the wake. Initialize copies the pristine trampoline image into
// the bootstrap region, patches its slots with the per-core entry state,
// and fires the INIT/STARTUP sequence. The woken core runs the trampoline,
// switches to the patched page table and stack, jumps to the patched
// entry, and finally sets the image's lock word so the issuing core can
// observe it online.
//
// Only one wake may be in flight at a time: the bootstrap region is a
// single physical window and a second relocation would clobber a core
// still executing out of it. Callers serialize by holding the Region for
// the whole Initialize/WaitOnline span.
package coreboot

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/arch"
)

const (
	// RealModeSegment is the real-mode segment the trampoline is
	// relocated to. It must be page aligned and below 1 MiB.
	RealModeSegment uint16 = 0x0600

	// RealModePage is the STARTUP vector page, the segment shifted into
	// the IPI's 8-bit vector field.
	RealModePage uint8 = uint8(RealModeSegment >> 8)

	// RealModeBase is the linear address of the relocated trampoline.
	RealModeBase uint64 = uint64(RealModeSegment) << 4

	// stackRedZone is the number of bytes left unused at the top of the
	// bootstrap stack so the first push stays inside the region.
	stackRedZone = 16
)

// APIC issues inter-processor interrupts. Implementations back it with the
// local APIC's interrupt command register, or with a simulated machine.
type APIC interface {
	// IPIInit sends an INIT IPI to the given core.
	IPIInit(core arch.CoreID)

	// IPIInitDeassert broadcasts the INIT level de-assert.
	IPIInitDeassert()

	// IPIStartup sends a STARTUP IPI pointing the core at the given
	// real-mode page.
	IPIStartup(core arch.CoreID, page uint8)
}

// Region is the low-memory bootstrap window at RealModeBase. Map returns
// the window's bytes, mapped readable, writable and executable; calling it
// again returns the same window. Holding a Region grants exclusive use of
// the wake path.
type Region interface {
	Map(size uint64) ([]byte, error)
}

// Initialize relocates the trampoline and wakes a core.
//
// The pristine image is copied into the bootstrap region, then the copy's
// slots are patched: the entry function, its four arguments, the page
// table root, the stack pointer and the cleared lock word. The stack
// pointer is placed stackRedZone bytes below the end of the stack region.
// Only after the copy is fully patched are the IPIs issued; the STARTUP
// follows the INIT de-assert with no delay, modern cores latch it
// immediately.
//
// Initialize does not wait for the core. Pair it with WaitOnline on the
// same region.
func Initialize(apic APIC, region Region, img *Image, core arch.CoreID, entry uint64, args [4]uint64, pml4 hostarch.PhysAddr, stack hostarch.AddrRange) error {
	if stack.Length() < stackRedZone {
		return fmt.Errorf("bootstrap stack %v too small", stack)
	}
	dst, err := region.Map(img.Size())
	if err != nil {
		return fmt.Errorf("mapping bootstrap region: %w", err)
	}
	copy(dst, img.code)

	l := img.layout
	apply(dst, []patch{
		{l.Entry, entry},
		{l.Arg1, args[0]},
		{l.Arg2, args[1]},
		{l.Arg3, args[2]},
		{l.Arg4, args[3]},
		{l.PML4, uint64(pml4)},
		{l.StackPtr, uint64(stack.End) - stackRedZone},
		{l.Lock, 0},
	})

	apic.IPIInit(core)
	apic.IPIInitDeassert()
	apic.IPIStartup(core, RealModePage)
	return nil
}

// WaitOnline polls the relocated image's lock word until the woken core
// sets it, or the timeout elapses. The caller must still hold the region
// used by the preceding Initialize.
func WaitOnline(region Region, img *Image, timeout time.Duration) error {
	dst, err := region.Map(img.Size())
	if err != nil {
		return fmt.Errorf("mapping bootstrap region: %w", err)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Microsecond
	bo.MaxInterval = time.Millisecond
	bo.MaxElapsedTime = timeout
	return backoff.Retry(func() error {
		if readSlot(dst, img.layout.Lock) == 0 {
			return fmt.Errorf("core has not signaled online")
		}
		return nil
	}, bo)
}
