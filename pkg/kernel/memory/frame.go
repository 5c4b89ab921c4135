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

// Package memory provides physical frames and the page-granularity
// allocation layer: per-NUMA-node pools and per-core caches with
// refill-before-allocate semantics.
package memory

import (
	"fmt"

	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
)

// NodeID identifies a NUMA node.
type NodeID uint8

// Frame is a physically contiguous, page-sized unit of memory.
type Frame struct {
	// Base is the physical base address.
	Base hostarch.PhysAddr

	// Size is the frame length in bytes: BasePageSize or LargePageSize
	// for allocator-owned frames, arbitrary for device frames.
	Size uint64

	// Node is the NUMA node the frame belongs to.
	Node NodeID
}

// NewFrame constructs a frame covering [base, base+size). It is used for
// device-backed memory, which is never owned by the allocator.
func NewFrame(base hostarch.PhysAddr, size uint64, node NodeID) Frame {
	return Frame{Base: base, Size: size, Node: node}
}

// IsLarge returns true if the frame is a large page.
func (f Frame) IsLarge() bool {
	return f.Size == hostarch.LargePageSize
}

// String implements fmt.Stringer.String.
func (f Frame) String() string {
	return fmt.Sprintf("Frame{%v, %#x bytes, node %d}", f.Base, f.Size, f.Node)
}
