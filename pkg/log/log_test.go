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

package log

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type testEmitter struct {
	lines []string
}

func (e *testEmitter) Emit(_ int, _ Level, _ time.Time, format string, v ...any) {
	e.lines = append(e.lines, format)
}

func TestLevelGating(t *testing.T) {
	e := &testEmitter{}
	l := &BasicLogger{Level: Info, Emitter: e}

	l.Debugf("debug")
	l.Infof("info")
	l.Warningf("warning")

	if got, want := len(e.lines), 2; got != want {
		t.Fatalf("got %d lines, want %d: %v", got, want, e.lines)
	}
	if !l.IsLogging(Warning) || !l.IsLogging(Info) || l.IsLogging(Debug) {
		t.Errorf("IsLogging inconsistent with configured level Info")
	}

	l.SetLevel(Debug)
	l.Debugf("debug")
	if got, want := len(e.lines), 3; got != want {
		t.Errorf("got %d lines after SetLevel(Debug), want %d", got, want)
	}
}

type errWriter struct {
	err error
}

func (w *errWriter) Write(b []byte) (int, error) {
	return 0, w.err
}

func TestWriterDropsAfterError(t *testing.T) {
	w := &Writer{Next: &errWriter{err: errors.New("sink gone")}}
	if _, err := w.Write([]byte("one")); err != nil {
		t.Errorf("Write returned error %v, want nil (dropped)", err)
	}
	if _, err := w.Write([]byte("two")); err != nil {
		t.Errorf("Write after broken sink returned error %v, want nil", err)
	}
}

func TestWriterAppendsNewline(t *testing.T) {
	var sb strings.Builder
	w := &Writer{Next: &sb}
	w.Write([]byte("no newline"))
	w.Write([]byte("has newline\n"))
	if got, want := sb.String(), "no newline\nhas newline\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestJSONEmitter(t *testing.T) {
	var sb strings.Builder
	e := JSONEmitter{&Writer{Next: &sb}}
	e.Emit(0, Info, time.Now(), "hello %d", 42)

	var out jsonLog
	if err := json.Unmarshal([]byte(sb.String()), &out); err != nil {
		t.Fatalf("output %q is not valid json: %v", sb.String(), err)
	}
	if out.Level != Info {
		t.Errorf("got level %v, want %v", out.Level, Info)
	}
	if !strings.HasSuffix(out.Msg, "hello 42") {
		t.Errorf("got msg %q, want suffix %q", out.Msg, "hello 42")
	}
}

func TestThrottle(t *testing.T) {
	e := &testEmitter{}
	l := Throttle(&BasicLogger{Level: Info, Emitter: e}, time.Hour)
	l.Warningf("first")
	l.Warningf("second")
	if got, want := len(e.lines), 1; got != want {
		t.Errorf("got %d lines, want %d (second statement should be throttled)", got, want)
	}
}
