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

package memory

import (
	"sync"

	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
	"github.com/catleeball/node-replicated-kernel/pkg/kerr"
	"github.com/catleeball/node-replicated-kernel/pkg/log"
)

// NodePool is the per-NUMA-node free list of physical frames. Core caches
// refill from it; it is the only allocator structure shared between cores.
type NodePool struct {
	node NodeID
	log  log.Logger

	mu    sync.Mutex
	base  []Frame
	large []Frame
}

// NewNodePool creates an empty pool for the given node.
func NewNodePool(node NodeID, logger log.Logger) *NodePool {
	return &NodePool{node: node, log: logger}
}

// Node returns the pool's NUMA node.
func (p *NodePool) Node() NodeID {
	return p.node
}

// GrowFromRange seeds the pool from the physical range [base, base+size),
// carving large pages out of the large-aligned middle and base pages out of
// the unaligned edges. Callers pass ranges from the boot memory map.
func (p *NodePool) GrowFromRange(base hostarch.PhysAddr, size uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur := uint64(base)
	end := uint64(base) + size

	// Base pages up to the first large-aligned address.
	for cur%hostarch.LargePageSize != 0 && cur+hostarch.BasePageSize <= end {
		p.base = append(p.base, Frame{Base: hostarch.PhysAddr(cur), Size: hostarch.BasePageSize, Node: p.node})
		cur += hostarch.BasePageSize
	}
	// Large pages through the aligned middle.
	for cur+hostarch.LargePageSize <= end {
		p.large = append(p.large, Frame{Base: hostarch.PhysAddr(cur), Size: hostarch.LargePageSize, Node: p.node})
		cur += hostarch.LargePageSize
	}
	// Base pages over the tail.
	for cur+hostarch.BasePageSize <= end {
		p.base = append(p.base, Frame{Base: hostarch.PhysAddr(cur), Size: hostarch.BasePageSize, Node: p.node})
		cur += hostarch.BasePageSize
	}

	p.log.Debugf("node %d pool grown to %d base / %d large frames", p.node, len(p.base), len(p.large))
}

// takeBase removes up to n base frames, splitting large frames when the
// base free list runs dry.
func (p *NodePool) takeBase(n int) ([]Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.base) < n && len(p.large) > 0 {
		lf := p.large[len(p.large)-1]
		p.large = p.large[:len(p.large)-1]
		for off := uint64(0); off < lf.Size; off += hostarch.BasePageSize {
			p.base = append(p.base, Frame{Base: lf.Base + hostarch.PhysAddr(off), Size: hostarch.BasePageSize, Node: p.node})
		}
	}
	if len(p.base) < n {
		return nil, kerr.ErrOutOfMemory
	}
	taken := make([]Frame, n)
	copy(taken, p.base[len(p.base)-n:])
	p.base = p.base[:len(p.base)-n]
	return taken, nil
}

// takeLarge removes up to n large frames. Large frames are never assembled
// from base frames.
func (p *NodePool) takeLarge(n int) ([]Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.large) < n {
		return nil, kerr.ErrOutOfMemory
	}
	taken := make([]Frame, n)
	copy(taken, p.large[len(p.large)-n:])
	p.large = p.large[:len(p.large)-n]
	return taken, nil
}

// Recycle returns frames to the pool, e.g. on process teardown or after a
// failed mapping.
func (p *NodePool) Recycle(frames []Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range frames {
		switch f.Size {
		case hostarch.BasePageSize:
			p.base = append(p.base, f)
		case hostarch.LargePageSize:
			p.large = append(p.large, f)
		default:
			// Device frames are not allocator-owned; dropping one
			// here is a caller bug worth surfacing in the log.
			p.log.Warningf("refusing to recycle non-page frame %v", f)
		}
	}
}

// FreeCounts reports the current free list sizes.
func (p *NodePool) FreeCounts() (base, large int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.base), len(p.large)
}
