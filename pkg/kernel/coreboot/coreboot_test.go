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

package coreboot

import (
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/arch"
)

// testLayout spreads the slots through a 256 byte image.
var testLayout = Layout{
	Entry:    0x10,
	Arg1:     0x18,
	Arg2:     0x20,
	Arg3:     0x28,
	Arg4:     0x30,
	PML4:     0x38,
	StackPtr: 0x40,
	Lock:     0x48,
}

func testImage(t *testing.T) *Image {
	t.Helper()
	code := make([]byte, 256)
	for i := range code {
		code[i] = byte(i)
	}
	img, err := NewImage(code, testLayout)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	return img
}

type fakeRegion struct {
	window []byte
}

func (r *fakeRegion) Map(size uint64) ([]byte, error) {
	if r.window == nil {
		r.window = make([]byte, size)
	}
	if uint64(len(r.window)) < size {
		return nil, fmt.Errorf("window too small")
	}
	return r.window[:size], nil
}

type ipiEvent struct {
	kind string
	core arch.CoreID
	page uint8
}

type fakeAPIC struct {
	events []ipiEvent
}

func (a *fakeAPIC) IPIInit(core arch.CoreID) {
	a.events = append(a.events, ipiEvent{kind: "init", core: core})
}

func (a *fakeAPIC) IPIInitDeassert() {
	a.events = append(a.events, ipiEvent{kind: "deassert"})
}

func (a *fakeAPIC) IPIStartup(core arch.CoreID, page uint8) {
	a.events = append(a.events, ipiEvent{kind: "startup", core: core, page: page})
}

func inSlot(l Layout, off uint64) bool {
	for _, s := range l.offsets() {
		if off >= s && off < s+slotLen {
			return true
		}
	}
	return false
}

func TestInitializePatchesOnlySlots(t *testing.T) {
	img := testImage(t)
	region := &fakeRegion{}
	apic := &fakeAPIC{}
	stack := hostarch.AddrRange{Start: 0x9000, End: 0xd000}

	err := Initialize(apic, region, img, 3, 0xffff800000001000, [4]uint64{1, 2, 3, 4}, 0x2000, stack)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	dst := region.window
	for i := range img.code {
		if inSlot(testLayout, uint64(i)) {
			continue
		}
		if dst[i] != img.code[i] {
			t.Errorf("byte %#x changed: got %#x, want %#x", i, dst[i], img.code[i])
		}
	}

	for _, tc := range []struct {
		name string
		off  uint64
		want uint64
	}{
		{"entry", testLayout.Entry, 0xffff800000001000},
		{"arg1", testLayout.Arg1, 1},
		{"arg2", testLayout.Arg2, 2},
		{"arg3", testLayout.Arg3, 3},
		{"arg4", testLayout.Arg4, 4},
		{"pml4", testLayout.PML4, 0x2000},
		{"stack", testLayout.StackPtr, 0xd000 - 16},
		{"lock", testLayout.Lock, 0},
	} {
		if got := readSlot(dst, tc.off); got != tc.want {
			t.Errorf("slot %s: got %#x, want %#x", tc.name, got, tc.want)
		}
	}
}

func TestInitializeIPISequence(t *testing.T) {
	img := testImage(t)
	apic := &fakeAPIC{}
	stack := hostarch.AddrRange{Start: 0x9000, End: 0xa000}

	if err := Initialize(apic, &fakeRegion{}, img, 7, 0x1000, [4]uint64{}, 0x2000, stack); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	want := []ipiEvent{
		{kind: "init", core: 7},
		{kind: "deassert"},
		{kind: "startup", core: 7, page: RealModePage},
	}
	if len(apic.events) != len(want) {
		t.Fatalf("got %d IPIs, want %d", len(apic.events), len(want))
	}
	for i, ev := range apic.events {
		if ev != want[i] {
			t.Errorf("IPI %d: got %+v, want %+v", i, ev, want[i])
		}
	}
	if RealModePage != 0x06 {
		t.Errorf("RealModePage = %#x, want 0x06", RealModePage)
	}
}

func TestInitializeRejectsTinyStack(t *testing.T) {
	img := testImage(t)
	stack := hostarch.AddrRange{Start: 0x9000, End: 0x9008}
	if err := Initialize(&fakeAPIC{}, &fakeRegion{}, img, 1, 0x1000, [4]uint64{}, 0x2000, stack); err == nil {
		t.Fatal("Initialize accepted an 8 byte stack")
	}
}

func TestNewImageRejectsSlotPastEnd(t *testing.T) {
	layout := testLayout
	layout.Lock = 252
	if _, err := NewImage(make([]byte, 256), layout); err == nil {
		t.Fatal("NewImage accepted a slot overlapping the image end")
	}
}

func TestWaitOnline(t *testing.T) {
	img := testImage(t)
	region := &fakeRegion{}
	stack := hostarch.AddrRange{Start: 0x9000, End: 0xa000}
	if err := Initialize(&fakeAPIC{}, region, img, 1, 0x1000, [4]uint64{}, 0x2000, stack); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := WaitOnline(region, img, 5*time.Millisecond); err == nil {
		t.Fatal("WaitOnline succeeded with the lock word still clear")
	}

	binary.LittleEndian.PutUint64(region.window[testLayout.Lock:], 1)
	if err := WaitOnline(region, img, time.Second); err != nil {
		t.Fatalf("WaitOnline: %v", err)
	}
}
