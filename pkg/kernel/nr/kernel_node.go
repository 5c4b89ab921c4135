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

package nr

import (
	"sync"

	"github.com/catleeball/node-replicated-kernel/pkg/hostarch"
	"github.com/catleeball/node-replicated-kernel/pkg/kerr"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/arch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/memory"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/process"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/usermem"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/vspace"
	"github.com/catleeball/node-replicated-kernel/pkg/log"
)

// fdEntry is one file-table slot.
type fdEntry struct {
	pathname uint64
	modes    uint64
}

// procState is everything the state machine holds for one process.
type procState struct {
	proc   *process.Process
	as     *vspace.AddressSpace
	fds    map[uint64]fdEntry
	nextFD uint64
}

// KernelNode is the in-memory implementation of Node. A single mutex
// funnels every operation through one total order, which is what makes the
// contract's linearizability hold: an operation either committed under the
// mutex (fully applied, visible to every later operation on any core) or it
// never touched the state at all.
type KernelNode struct {
	log log.Logger

	// mu establishes the operation order. It is the only lock in this
	// package and is never held while calling out of it.
	mu      sync.Mutex
	procs   map[process.PID]*procState
	current map[arch.CoreID]process.PID
	nextPID process.PID
}

// NewKernelNode creates an empty kernel state machine.
func NewKernelNode(logger log.Logger) *KernelNode {
	return &KernelNode{
		log:     logger,
		procs:   make(map[process.PID]*procState),
		current: make(map[arch.CoreID]process.PID),
		nextPID: 1,
	}
}

// CreateProcess implements Node.CreateProcess.
func (n *KernelNode) CreateProcess(mem usermem.Memory, vcpuAddr hostarch.Addr) (*process.Process, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	pid := n.nextPID
	n.nextPID++
	p := process.New(pid, mem, vcpuAddr)
	n.procs[pid] = &procState{
		proc:   p,
		as:     vspace.New(),
		fds:    make(map[uint64]fdEntry),
		nextFD: 1,
	}
	n.log.Infof("created process %d", pid)
	return p, nil
}

// DestroyProcess implements Node.DestroyProcess.
func (n *KernelNode) DestroyProcess(pid process.PID) ([]memory.Frame, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ps, ok := n.procs[pid]
	if !ok {
		return nil, kerr.ErrProcessNotSet
	}
	frames := ps.as.Release()
	delete(n.procs, pid)
	for core, cur := range n.current {
		if cur == pid {
			delete(n.current, core)
		}
	}
	n.log.Infof("destroyed process %d, reclaimed %d frames", pid, len(frames))
	return frames, nil
}

// CurrentProcess implements Node.CurrentProcess.
func (n *KernelNode) CurrentProcess(core arch.CoreID) (*process.Process, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	pid, ok := n.current[core]
	if !ok {
		return nil, kerr.ErrProcessNotSet
	}
	ps, ok := n.procs[pid]
	if !ok {
		return nil, kerr.ErrProcessNotSet
	}
	return ps.proc, nil
}

// SetCurrent implements Node.SetCurrent.
func (n *KernelNode) SetCurrent(core arch.CoreID, pid process.PID) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.procs[pid]; !ok {
		return kerr.ErrProcessNotSet
	}
	n.current[core] = pid
	return nil
}

// ClearCurrent implements Node.ClearCurrent.
func (n *KernelNode) ClearCurrent(core arch.CoreID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.current, core)
}

// state returns the process state for pid. Call with mu held.
func (n *KernelNode) state(pid process.PID) (*procState, error) {
	ps, ok := n.procs[pid]
	if !ok {
		return nil, kerr.ErrProcessNotSet
	}
	return ps, nil
}

// MapFrames implements Node.MapFrames.
func (n *KernelNode) MapFrames(pid process.PID, base hostarch.Addr, frames []memory.Frame, action vspace.MapAction) (hostarch.PhysAddr, uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ps, err := n.state(pid)
	if err != nil {
		return 0, 0, err
	}
	r, err := ps.as.MapFrames(base, frames, action)
	if err != nil {
		return 0, 0, err
	}
	return frames[0].Base, r.Length(), nil
}

// MapDeviceFrame implements Node.MapDeviceFrame.
func (n *KernelNode) MapDeviceFrame(pid process.PID, frame memory.Frame, action vspace.MapAction) (hostarch.PhysAddr, uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ps, err := n.state(pid)
	if err != nil {
		return 0, 0, err
	}
	r, err := ps.as.MapDevice(frame, action)
	if err != nil {
		return 0, 0, err
	}
	return frame.Base, r.Length(), nil
}

// Resolve implements Node.Resolve.
func (n *KernelNode) Resolve(pid process.PID, addr hostarch.Addr) (hostarch.PhysAddr, vspace.MapAction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ps, err := n.state(pid)
	if err != nil {
		return 0, vspace.MapActionNone, err
	}
	return ps.as.Resolve(addr)
}

// MappedRange implements Node.MappedRange.
func (n *KernelNode) MappedRange(pid process.PID, r hostarch.AddrRange) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ps, err := n.state(pid)
	if err != nil {
		return false, err
	}
	return ps.as.Mapped(r), nil
}

// MapFD implements Node.MapFD.
func (n *KernelNode) MapFD(pid process.PID, pathname, modes uint64) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ps, err := n.state(pid)
	if err != nil {
		return 0, err
	}
	fd := ps.nextFD
	ps.nextFD++
	ps.fds[fd] = fdEntry{pathname: pathname, modes: modes}
	return fd, nil
}

// UnmapFD implements Node.UnmapFD.
func (n *KernelNode) UnmapFD(pid process.PID, fd uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	ps, err := n.state(pid)
	if err != nil {
		return err
	}
	if _, ok := ps.fds[fd]; !ok {
		return kerr.ErrInvalidFile
	}
	delete(ps.fds, fd)
	return nil
}
