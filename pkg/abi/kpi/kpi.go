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

// Package kpi defines the public kernel interface: the register-level system
// call ABI and its associated constants.
//
// A system call passes six 64-bit words (function, arg1..arg5) and receives
// two 64-bit words plus an error code. All decoding in this package is
// total: any value outside an enumeration maps to the Unknown member, never
// to undefined dispatch.
package kpi

// SystemCall is the domain of a system call, passed as the function word.
type SystemCall uint64

// System call domains. The numeric values are ABI and cannot change.
const (
	SystemCallUnknown SystemCall = 0
	SystemCallProcess SystemCall = 1
	SystemCallFileIO  SystemCall = 2
	SystemCallVSpace  SystemCall = 3
)

// SystemCallFromValue decodes a function word into a SystemCall.
func SystemCallFromValue(domain uint64) SystemCall {
	switch domain {
	case 1:
		return SystemCallProcess
	case 2:
		return SystemCallFileIO
	case 3:
		return SystemCallVSpace
	default:
		return SystemCallUnknown
	}
}

// String implements fmt.Stringer.String.
func (s SystemCall) String() string {
	switch s {
	case SystemCallProcess:
		return "Process"
	case SystemCallFileIO:
		return "FileIO"
	case SystemCallVSpace:
		return "VSpace"
	default:
		return "Unknown"
	}
}

// ProcessOperation is the sub-operation of a Process-domain call, passed in
// arg1.
type ProcessOperation uint64

// Process operations.
const (
	ProcessOpUnknown ProcessOperation = 0

	// ProcessOpExit exits the process.
	ProcessOpExit ProcessOperation = 1

	// ProcessOpLog logs to the console.
	ProcessOpLog ProcessOperation = 2

	// ProcessOpInstallVCpuArea reports the process control and save area
	// used for trap/IRQ forwarding to user-space on this core.
	ProcessOpInstallVCpuArea ProcessOperation = 3

	// ProcessOpAllocateVector binds a device interrupt vector to a core.
	ProcessOpAllocateVector ProcessOperation = 4

	// ProcessOpSubscribeEvent subscribes to trap and/or interrupt events.
	ProcessOpSubscribeEvent ProcessOperation = 5
)

// ProcessOperationFromValue decodes arg1 into a ProcessOperation.
func ProcessOperationFromValue(op uint64) ProcessOperation {
	if op >= 1 && op <= 5 {
		return ProcessOperation(op)
	}
	return ProcessOpUnknown
}

// String implements fmt.Stringer.String.
func (op ProcessOperation) String() string {
	switch op {
	case ProcessOpExit:
		return "Exit"
	case ProcessOpLog:
		return "Log"
	case ProcessOpInstallVCpuArea:
		return "InstallVCpuArea"
	case ProcessOpAllocateVector:
		return "AllocateVector"
	case ProcessOpSubscribeEvent:
		return "SubscribeEvent"
	default:
		return "Unknown"
	}
}

// VSpaceOperation is the sub-operation of a VSpace-domain call, passed in
// arg1. arg2 carries the virtual base address and arg3 the region size.
type VSpaceOperation uint64

// VSpace operations.
const (
	VSpaceOpUnknown VSpaceOperation = 0

	// VSpaceOpMap maps anonymous memory.
	VSpaceOpMap VSpaceOperation = 1

	// VSpaceOpUnmap unmaps a mapped region.
	VSpaceOpUnmap VSpaceOperation = 2

	// VSpaceOpMapDevice identity-maps device memory.
	VSpaceOpMapDevice VSpaceOperation = 3

	// VSpaceOpIdentify resolves a virtual to a physical address.
	VSpaceOpIdentify VSpaceOperation = 4
)

// VSpaceOperationFromValue decodes arg1 into a VSpaceOperation.
func VSpaceOperationFromValue(op uint64) VSpaceOperation {
	if op >= 1 && op <= 4 {
		return VSpaceOperation(op)
	}
	return VSpaceOpUnknown
}

// String implements fmt.Stringer.String.
func (op VSpaceOperation) String() string {
	switch op {
	case VSpaceOpMap:
		return "Map"
	case VSpaceOpUnmap:
		return "Unmap"
	case VSpaceOpMapDevice:
		return "MapDevice"
	case VSpaceOpIdentify:
		return "Identify"
	default:
		return "Unknown"
	}
}

// FileOperation is the sub-operation of a FileIO-domain call, passed in
// arg1.
type FileOperation uint64

// File operations.
const (
	FileOpUnknown FileOperation = 0
	FileOpCreate  FileOperation = 1
	FileOpOpen    FileOperation = 2
	FileOpRead    FileOperation = 3
	FileOpWrite   FileOperation = 4
	FileOpClose   FileOperation = 5
)

// FileOperationFromValue decodes arg1 into a FileOperation.
func FileOperationFromValue(op uint64) FileOperation {
	if op >= 1 && op <= 5 {
		return FileOperation(op)
	}
	return FileOpUnknown
}

// String implements fmt.Stringer.String.
func (op FileOperation) String() string {
	switch op {
	case FileOpCreate:
		return "Create"
	case FileOpOpen:
		return "Open"
	case FileOpRead:
		return "Read"
	case FileOpWrite:
		return "Write"
	case FileOpClose:
		return "Close"
	default:
		return "Unknown"
	}
}
