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
	"time"

	"golang.org/x/time/rate"
)

// throttledLogger drops statements beyond its rate limit. Syscall handlers
// use it for per-request warnings that a misbehaving process could otherwise
// spam a core's console with.
type throttledLogger struct {
	logger Logger
	limit  *rate.Limiter
}

// Debugf implements Logger.Debugf.
func (tl *throttledLogger) Debugf(format string, v ...any) {
	if tl.limit.Allow() {
		tl.logger.Debugf(format, v...)
	}
}

// Infof implements Logger.Infof.
func (tl *throttledLogger) Infof(format string, v ...any) {
	if tl.limit.Allow() {
		tl.logger.Infof(format, v...)
	}
}

// Warningf implements Logger.Warningf.
func (tl *throttledLogger) Warningf(format string, v ...any) {
	if tl.limit.Allow() {
		tl.logger.Warningf(format, v...)
	}
}

// IsLogging implements Logger.IsLogging.
func (tl *throttledLogger) IsLogging(level Level) bool {
	return tl.logger.IsLogging(level)
}

// Throttle returns a Logger that forwards to logger no more than once per
// the provided duration.
func Throttle(logger Logger, every time.Duration) Logger {
	return &throttledLogger{
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(every), 1),
	}
}
