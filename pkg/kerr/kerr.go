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

// Package kerr contains kernel-internal errors. These are distinct from the
// wire codes returned to user space; the syscall dispatcher is the single
// place where one is converted into the other.
package kerr

import (
	"fmt"

	"github.com/catleeball/node-replicated-kernel/pkg/abi/kpi"
)

// Error represents an internal kernel error.
type Error struct {
	// message is the human readable form of this Error.
	message string

	// wire is the kpi.SyscallError this Error translates to at the
	// syscall boundary.
	wire kpi.SyscallError
}

// New creates a new Error with a wire translation.
//
// New must only be called at init.
func New(message string, wire kpi.SyscallError) *Error {
	return &Error{message: message, wire: wire}
}

// NewDynamic creates an error with a dynamic message and a wire translation.
//
// NewDynamic should be used sparingly; errors with static messages should be
// declared with New as global variables.
func NewDynamic(message string, wire kpi.SyscallError) *Error {
	return &Error{message: message, wire: wire}
}

// Error implements error.Error.
func (e *Error) Error() string {
	return e.message
}

// String implements fmt.Stringer.String.
func (e *Error) String() string {
	if e == nil {
		return "<nil>"
	}
	return e.message
}

// Wire returns the wire code this Error translates to.
func (e *Error) Wire() kpi.SyscallError {
	return e.wire
}

// WireCode translates an arbitrary error into a wire code. nil translates to
// Ok; errors that are not *Error fall back to InternalError, per the closed
// enumeration contract of the ABI.
func WireCode(err error) kpi.SyscallError {
	if err == nil {
		return kpi.ErrorOk
	}
	if e, ok := err.(*Error); ok {
		return e.wire
	}
	return kpi.ErrorInternal
}

// InvalidSyscall returns the error for an undecodable function word.
func InvalidSyscall(function uint64) *Error {
	return NewDynamic(fmt.Sprintf("invalid syscall function %#x", function), kpi.ErrorInternal)
}

// InvalidProcessOperation returns the error for an undecodable Process
// sub-operation.
func InvalidProcessOperation(op uint64) *Error {
	return NewDynamic(fmt.Sprintf("invalid process operation %#x", op), kpi.ErrorInternal)
}

// InvalidVSpaceOperation returns the error for an undecodable VSpace
// sub-operation.
func InvalidVSpaceOperation(op uint64) *Error {
	return NewDynamic(fmt.Sprintf("invalid vspace operation %#x", op), kpi.ErrorInternal)
}

// InvalidFileOperation returns the error for an undecodable FileIO
// sub-operation. Note the wire translation: the other domains report
// Internal for undecodable operations, FileIO reports NotSupported.
func InvalidFileOperation(op uint64) *Error {
	return NewDynamic(fmt.Sprintf("invalid file operation %#x", op), kpi.ErrorNotSupported)
}

// Pre-translated kernel errors.
var (
	ErrProcessNotSet       = New("no process set on this core", kpi.ErrorInternal)
	ErrNotSupported        = New("operation not supported", kpi.ErrorNotSupported)
	ErrNotLogged           = New("log buffer is not accessible", kpi.ErrorNotLogged)
	ErrVSpaceAlreadyMapped = New("cannot overwrite existing vspace mapping", kpi.ErrorVSpaceAlreadyMapped)
	ErrOutOfMemory         = New("not enough memory to fulfill operation", kpi.ErrorOutOfMemory)
	ErrBadAddress          = New("address out of range for process", kpi.ErrorInternal)
	ErrInvalidFile         = New("no such file descriptor", kpi.ErrorInternal)
)
