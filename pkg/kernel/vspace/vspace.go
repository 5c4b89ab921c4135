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

// Package vspace models a process's virtual address space: an ordered set
// of non-overlapping mappings from virtual ranges to physical frames.
//
// An AddressSpace performs no locking. Every AddressSpace is owned by the
// replicated kernel state machine and reached only through its total order;
// see package nr.
package vspace

import (
	"fmt"

	"github.com/google/btree"

	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
	"github.com/catleeball/node-replicated-kernel/pkg/kerr"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/memory"
)

// MapAction describes the rights of a mapping.
type MapAction uint8

// Mapping rights.
const (
	MapActionNone MapAction = 0

	ActionRead    MapAction = 1 << 0
	ActionWrite   MapAction = 1 << 1
	ActionExecute MapAction = 1 << 2
	ActionUser    MapAction = 1 << 3
)

// Common right combinations, named as the mapping call sites use them.
const (
	ReadUser               = ActionRead | ActionUser
	ReadWriteUser          = ActionRead | ActionWrite | ActionUser
	ReadExecuteUser        = ActionRead | ActionExecute | ActionUser
	ReadWriteKernel        = ActionRead | ActionWrite
	ReadWriteExecuteKernel = ActionRead | ActionWrite | ActionExecute
)

// String implements fmt.Stringer.String.
func (a MapAction) String() string {
	if a == MapActionNone {
		return "----"
	}
	b := []byte("----")
	if a&ActionRead != 0 {
		b[0] = 'r'
	}
	if a&ActionWrite != 0 {
		b[1] = 'w'
	}
	if a&ActionExecute != 0 {
		b[2] = 'x'
	}
	if a&ActionUser != 0 {
		b[3] = 'u'
	}
	return string(b)
}

// mapping is one contiguous virtual range backed by an ordered frame list
// (or a single device frame).
type mapping struct {
	vrange hostarch.AddrRange
	frames []memory.Frame
	action MapAction
	device bool
}

func mappingLess(a, b *mapping) bool {
	return a.vrange.Start < b.vrange.Start
}

// AddressSpace is the virtual address space of one process.
type AddressSpace struct {
	mappings *btree.BTreeG[*mapping]
}

// New creates an empty address space.
func New() *AddressSpace {
	return &AddressSpace{mappings: btree.NewG(8, mappingLess)}
}

// overlapping returns the first existing mapping overlapping r, if any.
func (as *AddressSpace) overlapping(r hostarch.AddrRange) *mapping {
	var found *mapping
	// The candidate set is the last mapping starting at or before r.Start
	// plus everything starting inside r.
	as.mappings.DescendLessOrEqual(&mapping{vrange: hostarch.AddrRange{Start: r.Start}}, func(m *mapping) bool {
		if m.vrange.Overlaps(r) {
			found = m
		}
		return false
	})
	if found != nil {
		return found
	}
	as.mappings.AscendGreaterOrEqual(&mapping{vrange: hostarch.AddrRange{Start: r.Start}}, func(m *mapping) bool {
		if m.vrange.Start >= r.End {
			return false
		}
		if m.vrange.Overlaps(r) {
			found = m
			return false
		}
		return true
	})
	return found
}

// MapFrames maps the given frames back to back starting at base. The insert
// is all or nothing: if any part of the target range is already mapped,
// nothing changes and ErrVSpaceAlreadyMapped is returned.
func (as *AddressSpace) MapFrames(base hostarch.Addr, frames []memory.Frame, action MapAction) (hostarch.AddrRange, error) {
	var total uint64
	for _, f := range frames {
		total += f.Size
	}
	if total == 0 {
		return hostarch.AddrRange{}, kerr.ErrBadAddress
	}
	r, ok := base.ToRange(total)
	if !ok {
		return hostarch.AddrRange{}, kerr.ErrBadAddress
	}
	if as.overlapping(r) != nil {
		return hostarch.AddrRange{}, kerr.ErrVSpaceAlreadyMapped
	}
	as.mappings.ReplaceOrInsert(&mapping{vrange: r, frames: frames, action: action})
	return r, nil
}

// MapDevice identity-maps the device frame read-write-user style at the
// virtual address equal to its physical base.
func (as *AddressSpace) MapDevice(frame memory.Frame, action MapAction) (hostarch.AddrRange, error) {
	r, ok := hostarch.Addr(frame.Base).ToRange(frame.Size)
	if !ok || frame.Size == 0 {
		return hostarch.AddrRange{}, kerr.ErrBadAddress
	}
	if as.overlapping(r) != nil {
		return hostarch.AddrRange{}, kerr.ErrVSpaceAlreadyMapped
	}
	as.mappings.ReplaceOrInsert(&mapping{vrange: r, frames: []memory.Frame{frame}, action: action, device: true})
	return r, nil
}

// Resolve translates addr to its physical address and the rights of the
// containing mapping. Unmapped addresses fail with ErrBadAddress.
func (as *AddressSpace) Resolve(addr hostarch.Addr) (hostarch.PhysAddr, MapAction, error) {
	m := as.overlapping(hostarch.AddrRange{Start: addr, End: addr + 1})
	if m == nil {
		return 0, MapActionNone, kerr.ErrBadAddress
	}
	off := uint64(addr - m.vrange.Start)
	for _, f := range m.frames {
		if off < f.Size {
			return f.Base + hostarch.PhysAddr(off), m.action, nil
		}
		off -= f.Size
	}
	panic(fmt.Sprintf("mapping %v shorter than its range", m.vrange))
}

// Mapped returns true if every address in r is covered by mappings. It is
// the validation step for user-supplied buffer ranges.
func (as *AddressSpace) Mapped(r hostarch.AddrRange) bool {
	if !r.WellFormed() || r.Length() == 0 {
		return false
	}
	cur := r.Start
	for cur < r.End {
		m := as.overlapping(hostarch.AddrRange{Start: cur, End: cur + 1})
		if m == nil {
			return false
		}
		cur = m.vrange.End
	}
	return true
}

// Release empties the address space and returns all allocator-owned frames
// for recycling. Device frames are not returned.
func (as *AddressSpace) Release() []memory.Frame {
	var frames []memory.Frame
	as.mappings.Ascend(func(m *mapping) bool {
		if !m.device {
			frames = append(frames, m.frames...)
		}
		return true
	})
	as.mappings.Clear(false)
	return frames
}
