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

package kpi

// SyscallError is the fixed-width error code returned to user space. The
// enumeration is closed: kernel-internal errors without a registered
// translation must surface as ErrorInternal, and decoding an out-of-range
// value yields ErrorUnknown.
type SyscallError uint64

// Wire error codes.
const (
	// ErrorOk means no error and is never a valid error value by itself.
	ErrorOk SyscallError = 0

	// ErrorNotLogged means the log message could not be written (lost).
	ErrorNotLogged SyscallError = 1

	// ErrorNotSupported means the requested operation is not supported.
	ErrorNotSupported SyscallError = 2

	// ErrorVSpaceAlreadyMapped means an existing vspace mapping cannot be
	// overwritten.
	ErrorVSpaceAlreadyMapped SyscallError = 3

	// ErrorOutOfMemory means there was not enough memory to fulfill the
	// operation.
	ErrorOutOfMemory SyscallError = 4

	// ErrorInternal is an internal error that should not have happened.
	ErrorInternal SyscallError = 5

	// ErrorUnknown is the placeholder for an invalid error code.
	ErrorUnknown SyscallError = 6
)

// SyscallErrorFromValue decodes a 64-bit value into a SyscallError.
func SyscallErrorFromValue(e uint64) SyscallError {
	switch e {
	case 0:
		return ErrorOk
	case 1:
		return ErrorNotLogged
	case 2:
		return ErrorNotSupported
	case 3:
		return ErrorVSpaceAlreadyMapped
	case 4:
		return ErrorOutOfMemory
	case 5:
		return ErrorInternal
	default:
		return ErrorUnknown
	}
}

// String implements fmt.Stringer.String.
func (e SyscallError) String() string {
	switch e {
	case ErrorOk:
		return "Ok"
	case ErrorNotLogged:
		return "NotLogged"
	case ErrorNotSupported:
		return "NotSupported"
	case ErrorVSpaceAlreadyMapped:
		return "VSpaceAlreadyMapped"
	case ErrorOutOfMemory:
		return "OutOfMemory"
	case ErrorInternal:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// SyscallFrame is the six-word register image of a system call on entry.
type SyscallFrame struct {
	Function uint64
	Arg1     uint64
	Arg2     uint64
	Arg3     uint64
	Arg4     uint64
	Arg5     uint64
}

// SyscallResult is the two-word-plus-code result of a system call. Ret1 and
// Ret2 are unspecified unless Error is ErrorOk.
type SyscallResult struct {
	Ret1  uint64
	Ret2  uint64
	Error SyscallError
}
