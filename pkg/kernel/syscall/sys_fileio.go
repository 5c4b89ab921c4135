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

package syscall

import (
	"github.com/catleeball/node-replicated-kernel/pkg/abi/kpi"
	"github.com/catleeball/node-replicated-kernel/pkg/kerr"
	"github.com/catleeball/node-replicated-kernel/pkg/kernel/arch"
)

// handleFileIO services the FileIO domain. Create and Close maintain the
// process's file table through the state machine; Open, Read and Write are
// placeholders that succeed without side effects until a real data path
// exists.
func (d *Dispatcher) handleFileIO(core arch.CoreID, f kpi.SyscallFrame) (uint64, uint64, error) {
	p, err := d.node.CurrentProcess(core)
	if err != nil {
		return 0, 0, err
	}

	switch op := kpi.FileOperationFromValue(f.Arg1); op {
	case kpi.FileOpCreate:
		pathname, modes := f.Arg2, f.Arg3
		fd, err := d.node.MapFD(p.PID, pathname, modes)
		if err != nil {
			return 0, 0, err
		}
		return fd, 0, nil

	case kpi.FileOpOpen, kpi.FileOpRead, kpi.FileOpWrite:
		return 1, 0, nil

	case kpi.FileOpClose:
		fd := f.Arg2
		if err := d.node.UnmapFD(p.PID, fd); err != nil {
			return 0, 0, err
		}
		return 0, 0, nil

	default:
		// An undecodable file operation is recoverable and degrades
		// like the other domains.
		return 0, 0, kerr.InvalidFileOperation(f.Arg1)
	}
}
