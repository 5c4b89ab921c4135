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

package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/catleeball/node-replicated-kernel/pkg/abi/kpi"
)

// Syscalls implements subcommands.Command for the "syscalls" command.
type Syscalls struct {
	format string
}

// Name implements subcommands.Command.Name.
func (*Syscalls) Name() string {
	return "syscalls"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Syscalls) Synopsis() string {
	return "Syscalls prints the system call ABI"
}

// Usage implements subcommands.Command.Usage.
func (*Syscalls) Usage() string {
	return `syscalls [flags] - print the system call domains, operations and error codes.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Syscalls) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.format, "format", "table", "output format: table or json.")
}

// abiEntry is one named ABI value.
type abiEntry struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}

// abiDomain is a syscall domain and its operations.
type abiDomain struct {
	abiEntry
	Operations []abiEntry `json:"operations"`
}

func abiTable() ([]abiDomain, []abiEntry) {
	domains := []abiDomain{
		{
			abiEntry: abiEntry{Name: kpi.SystemCallProcess.String(), Value: uint64(kpi.SystemCallProcess)},
			Operations: []abiEntry{
				{kpi.ProcessOpExit.String(), uint64(kpi.ProcessOpExit)},
				{kpi.ProcessOpLog.String(), uint64(kpi.ProcessOpLog)},
				{kpi.ProcessOpInstallVCpuArea.String(), uint64(kpi.ProcessOpInstallVCpuArea)},
				{kpi.ProcessOpAllocateVector.String(), uint64(kpi.ProcessOpAllocateVector)},
				{kpi.ProcessOpSubscribeEvent.String(), uint64(kpi.ProcessOpSubscribeEvent)},
			},
		},
		{
			abiEntry: abiEntry{Name: kpi.SystemCallFileIO.String(), Value: uint64(kpi.SystemCallFileIO)},
			Operations: []abiEntry{
				{kpi.FileOpCreate.String(), uint64(kpi.FileOpCreate)},
				{kpi.FileOpOpen.String(), uint64(kpi.FileOpOpen)},
				{kpi.FileOpRead.String(), uint64(kpi.FileOpRead)},
				{kpi.FileOpWrite.String(), uint64(kpi.FileOpWrite)},
				{kpi.FileOpClose.String(), uint64(kpi.FileOpClose)},
			},
		},
		{
			abiEntry: abiEntry{Name: kpi.SystemCallVSpace.String(), Value: uint64(kpi.SystemCallVSpace)},
			Operations: []abiEntry{
				{kpi.VSpaceOpMap.String(), uint64(kpi.VSpaceOpMap)},
				{kpi.VSpaceOpUnmap.String(), uint64(kpi.VSpaceOpUnmap)},
				{kpi.VSpaceOpMapDevice.String(), uint64(kpi.VSpaceOpMapDevice)},
				{kpi.VSpaceOpIdentify.String(), uint64(kpi.VSpaceOpIdentify)},
			},
		},
	}
	errs := make([]abiEntry, 0, int(kpi.ErrorUnknown)+1)
	for e := kpi.ErrorOk; e <= kpi.ErrorUnknown; e++ {
		errs = append(errs, abiEntry{e.String(), uint64(e)})
	}
	return domains, errs
}

// Execute implements subcommands.Command.Execute.
func (s *Syscalls) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	domains, errs := abiTable()
	switch s.format {
	case "table":
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DOMAIN\tOPERATION\tVALUE")
		for _, d := range domains {
			for _, op := range d.Operations {
				fmt.Fprintf(w, "%s (%d)\t%s\t%d\n", d.Name, d.Value, op.Name, op.Value)
			}
		}
		fmt.Fprintln(w, "\nERROR\tVALUE\t")
		for _, e := range errs {
			fmt.Fprintf(w, "%s\t%d\t\n", e.Name, e.Value)
		}
		w.Flush()
	case "json":
		out := struct {
			Domains []abiDomain `json:"domains"`
			Errors  []abiEntry  `json:"errors"`
		}{domains, errs}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(&out); err != nil {
			Fatalf("encoding ABI: %v", err)
		}
	default:
		f.Usage()
		return subcommands.ExitUsageError
	}
	return subcommands.ExitSuccess
}
