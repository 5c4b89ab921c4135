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

// Package syscall decodes the six-word register-level system call ABI,
// routes it to the Process, VSpace and FileIO handlers, and marshals the
// two-word result plus error code back into the calling core's save area.
//
// The dispatcher holds no cross-core lock. Every mutation of shared kernel
// state goes through the nr.Node total order; the dispatcher's own job is
// argument validation, frame acquisition and error translation. Errors
// never unwind past Handle.
package syscall

import (
	"io"
	"time"

	"github.com/catleeball/node-replicated-kernel/pkg/abi/kpi"
	"github.com/catleeball/node-replicated-kernel/pkg/kerr"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/arch"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/memory"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/nr"
	"github.com/catleeball/node-replicated-kernel/pkg/log"
)

// IRQRouter binds device interrupt vectors to cores. There is no conflict
// checking: rebinding a vector silently overwrites the previous route.
type IRQRouter interface {
	Route(vector, core uint64)
}

// Config carries the dispatcher's collaborators.
type Config struct {
	// Node is the replicated kernel state machine.
	Node nr.Node

	// Pool receives frames reclaimed on process exit.
	Pool *memory.NodePool

	// Console is the sink for the Log operation.
	Console io.Writer

	// IRQ routes interrupt vectors.
	IRQ IRQRouter

	// Resumer, if non-nil, returns control to user space after result
	// marshaling.
	Resumer arch.Resumer

	// OnExit, if non-nil, is called after a process exits cleanly or
	// otherwise.
	OnExit func(pid uint64, code uint64)

	// Log is the dispatcher's logger.
	Log log.Logger
}

// Dispatcher services system calls for all cores.
type Dispatcher struct {
	node    nr.Node
	pool    *memory.NodePool
	console io.Writer
	irq     IRQRouter
	resumer arch.Resumer
	onExit  func(pid uint64, code uint64)
	log     log.Logger
	warn    log.Logger

	// caches maps each core to its frame cache. Populated by
	// RegisterCore during bring-up, read-only afterwards; each cache is
	// only ever used from its own core.
	caches map[arch.CoreID]*memory.CoreCache
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		node:    cfg.Node,
		pool:    cfg.Pool,
		console: cfg.Console,
		irq:     cfg.IRQ,
		resumer: cfg.Resumer,
		onExit:  cfg.OnExit,
		log:     cfg.Log,
		warn:    log.Throttle(cfg.Log, 100*time.Millisecond),
		caches:  make(map[arch.CoreID]*memory.CoreCache),
	}
}

// RegisterCore attaches a frame cache to a core. Must be called for every
// core before it services syscalls.
func (d *Dispatcher) RegisterCore(core arch.CoreID, cache *memory.CoreCache) {
	d.caches[core] = cache
}

// cache returns the calling core's frame cache.
func (d *Dispatcher) cache(core arch.CoreID) *memory.CoreCache {
	c, ok := d.caches[core]
	if !ok {
		panic("syscall on a core with no registered frame cache")
	}
	return c
}

// Handle services one system call issued on core. The result is written to
// the calling process's save area (when one exists) and also returned for
// the platform's delivery path. On failure the two return words are left
// unspecified; only the error code is defined.
func (d *Dispatcher) Handle(core arch.CoreID, f kpi.SyscallFrame) kpi.SyscallResult {
	var (
		ret1, ret2 uint64
		err        error
	)
	switch kpi.SystemCallFromValue(f.Function) {
	case kpi.SystemCallProcess:
		ret1, ret2, err = d.handleProcess(core, f)
	case kpi.SystemCallVSpace:
		ret1, ret2, err = d.handleVSpace(core, f)
	case kpi.SystemCallFileIO:
		ret1, ret2, err = d.handleFileIO(core, f)
	default:
		err = kerr.InvalidSyscall(f.Function)
	}

	var res kpi.SyscallResult
	if err != nil {
		d.warn.Warningf("core %d: %v syscall failed: %v", core, kpi.SystemCallFromValue(f.Function), err)
		res.Error = kerr.WireCode(err)
	} else {
		res = kpi.SyscallResult{Ret1: ret1, Ret2: ret2, Error: kpi.ErrorOk}
	}

	// Exit destroys the current process, in which case there is no save
	// area left to marshal into.
	if p, perr := d.node.CurrentProcess(core); perr == nil {
		sa := p.SaveArea()
		if err == nil {
			sa.SetSyscallRet1(res.Ret1)
			sa.SetSyscallRet2(res.Ret2)
		}
		sa.SetSyscallError(res.Error)
		if d.resumer != nil {
			d.resumer.Resume(sa)
		}
	}
	return res
}
