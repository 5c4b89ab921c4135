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

// Package hostarch holds x86-64 paging constants and address types shared
// by the memory, vspace and boot packages.
package hostarch

// Page size constants. Large pages are the 2 MiB second-level mappings; huge
// (1 GiB) pages are not used by this kernel.
const (
	BasePageShift  = 12
	BasePageSize   = 1 << BasePageShift
	LargePageShift = 21
	LargePageSize  = 1 << LargePageShift
)
