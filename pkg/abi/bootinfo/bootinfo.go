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

// Package bootinfo defines the data passed from the bootloader to the
// kernel: a flat, fixed-layout, little-endian blob describing the loaded
// binary images plus the initial page-table root and kernel stack.
//
// The layout must stay plain-old-data; the two sides of the handoff are
// built separately and only agree on these offsets.
package bootinfo

import (
	"encoding/binary"
	"fmt"

	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
)

// MaxNameLen is the maximum supported module name length; longer names are
// truncated on construction.
const MaxNameLen = 32

// MaxModules is the maximum number of modules passed to the kernel.
const MaxModules = 32

// moduleSize is the encoded size of one Module: name bytes, name length,
// base, length.
const moduleSize = MaxNameLen + 8 + 8 + 8

// headerSize is the encoded size of the Args fields preceding the module
// array: pml4, stack base, stack length, module count.
const headerSize = 8 + 8 + 8 + 8

// Module describes a binary image the bootloader loaded into memory.
type Module struct {
	name    [MaxNameLen]byte
	nameLen int

	// Base is where in memory the image starts.
	Base hostarch.PhysAddr

	// Length is the image size in bytes.
	Length uint64
}

// NewModule creates a module descriptor. name is truncated to MaxNameLen
// bytes.
func NewModule(name string, base hostarch.PhysAddr, length uint64) Module {
	m := Module{Base: base, Length: length}
	m.nameLen = copy(m.name[:], name)
	return m
}

// Name returns the module name, or at least its first MaxNameLen bytes.
func (m *Module) Name() string {
	return string(m.name[:m.nameLen])
}

// String implements fmt.Stringer.String.
func (m Module) String() string {
	return fmt.Sprintf("Module{%s @ %v, %#x bytes}", m.Name(), m.Base, m.Length)
}

// Args is what the bootloader hands the kernel.
type Args struct {
	// PML4 is the physical address of the root page table the kernel was
	// started with.
	PML4 hostarch.PhysAddr

	// StackBase and StackLength describe the boot core's kernel stack.
	StackBase   hostarch.PhysAddr
	StackLength uint64

	// Modules are the binary images found by the bootloader. Modules[0]
	// is the kernel binary itself.
	Modules []Module
}

// EncodedSize returns the byte length of the encoded Args.
func (a *Args) EncodedSize() int {
	return headerSize + len(a.Modules)*moduleSize
}

// Encode serializes the Args into its handoff wire form. It fails if more
// than MaxModules modules are present.
func (a *Args) Encode() ([]byte, error) {
	if len(a.Modules) > MaxModules {
		return nil, fmt.Errorf("too many modules: %d > %d", len(a.Modules), MaxModules)
	}
	b := make([]byte, a.EncodedSize())
	binary.LittleEndian.PutUint64(b[0:], uint64(a.PML4))
	binary.LittleEndian.PutUint64(b[8:], uint64(a.StackBase))
	binary.LittleEndian.PutUint64(b[16:], a.StackLength)
	binary.LittleEndian.PutUint64(b[24:], uint64(len(a.Modules)))
	off := headerSize
	for i := range a.Modules {
		m := &a.Modules[i]
		copy(b[off:off+MaxNameLen], m.name[:])
		binary.LittleEndian.PutUint64(b[off+MaxNameLen:], uint64(m.nameLen))
		binary.LittleEndian.PutUint64(b[off+MaxNameLen+8:], uint64(m.Base))
		binary.LittleEndian.PutUint64(b[off+MaxNameLen+16:], m.Length)
		off += moduleSize
	}
	return b, nil
}

// Decode parses an encoded Args blob. It rejects short buffers, impossible
// module counts and out-of-range name lengths rather than reading past the
// blob.
func Decode(b []byte) (*Args, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("bootinfo blob too short: %d bytes", len(b))
	}
	a := &Args{
		PML4:        hostarch.PhysAddr(binary.LittleEndian.Uint64(b[0:])),
		StackBase:   hostarch.PhysAddr(binary.LittleEndian.Uint64(b[8:])),
		StackLength: binary.LittleEndian.Uint64(b[16:]),
	}
	count := binary.LittleEndian.Uint64(b[24:])
	if count > MaxModules {
		return nil, fmt.Errorf("bootinfo module count %d exceeds maximum %d", count, MaxModules)
	}
	if need := headerSize + int(count)*moduleSize; len(b) < need {
		return nil, fmt.Errorf("bootinfo blob truncated: %d bytes, need %d", len(b), need)
	}
	off := headerSize
	for i := uint64(0); i < count; i++ {
		var m Module
		copy(m.name[:], b[off:off+MaxNameLen])
		nameLen := binary.LittleEndian.Uint64(b[off+MaxNameLen:])
		if nameLen > MaxNameLen {
			return nil, fmt.Errorf("module %d name length %d exceeds maximum %d", i, nameLen, MaxNameLen)
		}
		m.nameLen = int(nameLen)
		m.Base = hostarch.PhysAddr(binary.LittleEndian.Uint64(b[off+MaxNameLen+8:]))
		m.Length = binary.LittleEndian.Uint64(b[off+MaxNameLen+16:])
		a.Modules = append(a.Modules, m)
		off += moduleSize
	}
	return a, nil
}
