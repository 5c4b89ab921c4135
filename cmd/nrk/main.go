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

// Binary nrk drives the simulated node-replicated kernel: it boots a
// machine topology, wakes its cores and services system calls for a demo
// process.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/catleeball/node-replicated-kernel/cmd/nrk/cmd"
	"github.com/catleeball/node-replicated-kernel/pkg/log"
)

var (
	debug   = flag.Bool("debug", false, "enable debug logging.")
	logJSON = flag.Bool("log-json", false, "emit logs as JSON records.")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(cmd.Boot), "")
	subcommands.Register(new(cmd.Syscalls), "")

	flag.Parse()

	if *logJSON {
		log.SetTarget(&log.JSONEmitter{Writer: &log.Writer{Next: os.Stderr}})
	}
	if *debug {
		log.SetLevel(log.Debug)
	}

	os.Exit(int(subcommands.Execute(context.Background())))
}
