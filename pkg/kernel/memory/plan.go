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

import "github.com/catleeball/node-replicated-kernel/pkg/hostarch"

// PagePlan is the page-granularity covering of a mapping request.
type PagePlan struct {
	// Base is the number of base pages.
	Base int

	// Large is the number of large pages.
	Large int
}

// PlanPages splits a region size into large pages where whole large pages
// fit and base pages for the remainder, so that
// Base*BasePageSize + Large*LargePageSize >= size.
func PlanPages(size uint64) PagePlan {
	large := size / hostarch.LargePageSize
	rest := size % hostarch.LargePageSize
	base := rest / hostarch.BasePageSize
	if rest%hostarch.BasePageSize != 0 {
		base++
	}
	return PagePlan{Base: int(base), Large: int(large)}
}

// Bytes returns the total bytes the plan covers.
func (p PagePlan) Bytes() uint64 {
	return uint64(p.Base)*hostarch.BasePageSize + uint64(p.Large)*hostarch.LargePageSize
}
