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

import "fmt"

// CoreCache is a core-local frame cache. Handlers that may need physical
// pages call Refill with the anticipated counts before allocating; after a
// successful Refill the Alloc calls cannot fail. A miss after refill is a
// kernel bug and panics rather than returning an error.
//
// A CoreCache is used only from its owning core and needs no lock.
type CoreCache struct {
	pool  *NodePool
	base  []Frame
	large []Frame
}

// NewCoreCache creates an empty cache backed by the given pool.
func NewCoreCache(pool *NodePool) *CoreCache {
	return &CoreCache{pool: pool}
}

// Refill tops the cache up to at least base base frames and large large
// frames. It returns ErrOutOfMemory if the node pool cannot satisfy the
// request; the cache keeps whatever it already held.
func (c *CoreCache) Refill(base, large int) error {
	if need := base - len(c.base); need > 0 {
		frames, err := c.pool.takeBase(need)
		if err != nil {
			return err
		}
		c.base = append(c.base, frames...)
	}
	if need := large - len(c.large); need > 0 {
		frames, err := c.pool.takeLarge(need)
		if err != nil {
			return err
		}
		c.large = append(c.large, frames...)
	}
	return nil
}

// AllocBase returns a base page frame. It must be preceded by a successful
// Refill that accounted for this allocation.
func (c *CoreCache) AllocBase() Frame {
	if len(c.base) == 0 {
		panic("base page allocation failed after refill")
	}
	f := c.base[len(c.base)-1]
	c.base = c.base[:len(c.base)-1]
	return f
}

// AllocLarge returns a large page frame. It must be preceded by a successful
// Refill that accounted for this allocation.
func (c *CoreCache) AllocLarge() Frame {
	if len(c.large) == 0 {
		panic("large page allocation failed after refill")
	}
	f := c.large[len(c.large)-1]
	c.large = c.large[:len(c.large)-1]
	return f
}

// Return gives unused frames back to the core cache, e.g. when a mapping
// fails after its frames were already allocated.
func (c *CoreCache) Return(frames []Frame) {
	for _, f := range frames {
		if f.IsLarge() {
			c.large = append(c.large, f)
		} else {
			c.base = append(c.base, f)
		}
	}
}

// String implements fmt.Stringer.String.
func (c *CoreCache) String() string {
	return fmt.Sprintf("CoreCache{%d base, %d large}", len(c.base), len(c.large))
}
