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
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadTopologyDefaults(t *testing.T) {
	got, err := loadTopology("")
	if err != nil {
		t.Fatalf("loadTopology: %v", err)
	}
	if diff := cmp.Diff(defaultTopology(), got); diff != "" {
		t.Errorf("topology mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTopologyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.yaml")
	conf := "machine:\n  cores: 8\n  nodes: 4\n  memory-bytes: 1073741824\n"
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := loadTopology(path)
	if err != nil {
		t.Fatalf("loadTopology: %v", err)
	}
	if got.Machine.Cores != 8 || got.Machine.Nodes != 4 || got.Machine.MemoryBytes != 1<<30 {
		t.Errorf("topology = %+v", got)
	}
}

func TestLoadTopologyRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.yaml")
	if err := os.WriteFile(path, []byte("machine:\n  sockets: 2\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := loadTopology(path); err == nil {
		t.Fatal("loadTopology accepted an unknown key")
	}
}

func TestDefaultTrampoline(t *testing.T) {
	if _, err := defaultTrampoline(); err != nil {
		t.Fatalf("defaultTrampoline: %v", err)
	}
}

func TestABITableMatchesWire(t *testing.T) {
	domains, errs := abiTable()
	if len(domains) != 3 {
		t.Fatalf("got %d domains, want 3", len(domains))
	}
	for _, d := range domains {
		if d.Value == 0 {
			t.Errorf("domain %s has reserved value 0", d.Name)
		}
		for _, op := range d.Operations {
			if op.Value == 0 {
				t.Errorf("%s operation %s has reserved value 0", d.Name, op.Name)
			}
		}
	}
	if errs[0].Value != 0 {
		t.Errorf("first error value = %d, want 0 (Ok)", errs[0].Value)
	}
}
