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
)

// slotLen is the width of every patch slot.
const slotLen = 8

// Layout names the patch-slot offsets inside a trampoline image, relative
// to the image's start symbol. The assembler that produces the image emits
// these as symbol differences; they are fixed at link time.
type Layout struct {
	// Entry receives the 64-bit kernel entry function the core jumps to
	// after its bootstrap.
	Entry uint64

	// Arg1 through Arg4 receive the entry function's arguments.
	Arg1 uint64
	Arg2 uint64
	Arg3 uint64
	Arg4 uint64

	// PML4 receives the page-table root the core switches to.
	PML4 uint64

	// StackPtr receives the initial stack pointer.
	StackPtr uint64

	// Lock is zeroed before the wake and set by the application core
	// once it is done executing the bootstrap section.
	Lock uint64
}

// offsets returns every slot offset in the layout.
func (l Layout) offsets() []uint64 {
	return []uint64{l.Entry, l.Arg1, l.Arg2, l.Arg3, l.Arg4, l.PML4, l.StackPtr, l.Lock}
}

// Image is the trampoline: a fixed blob of real-mode bootstrap code plus
// the layout of its patch slots. The blob is the pristine original living
// in kernel space; it is never patched in place. Relocation copies it into
// the low-memory bootstrap region and mutates only the copy, so later
// wakes start from unmodified code.
type Image struct {
	code   []byte
	layout Layout
}

// NewImage validates the layout against the blob and returns the image.
// The blob length is the bootstrap code size, the difference of the
// image's start and end symbols.
func NewImage(code []byte, layout Layout) (*Image, error) {
	size := uint64(len(code))
	for _, off := range layout.offsets() {
		if off+slotLen > size {
			return nil, fmt.Errorf("patch slot at %#x exceeds image size %#x", off, size)
		}
	}
	return &Image{code: code, layout: layout}, nil
}

// Size returns the bootstrap code size in bytes.
func (img *Image) Size() uint64 {
	return uint64(len(img.code))
}

// Layout returns the image's patch-slot layout.
func (img *Image) Layout() Layout {
	return img.layout
}

// patch is a single slot write into the relocated image.
type patch struct {
	offset uint64
	value  uint64
}

// apply performs the patch-table writes into the relocated region. This is
// the one place that mutates bootstrap memory.
func apply(dst []byte, patches []patch) {
	for _, p := range patches {
		binary.LittleEndian.PutUint64(dst[p.offset:p.offset+slotLen], p.value)
	}
}

// readSlot reads a slot back from a relocated image.
func readSlot(dst []byte, offset uint64) uint64 {
	return binary.LittleEndian.Uint64(dst[offset : offset+slotLen])
}
