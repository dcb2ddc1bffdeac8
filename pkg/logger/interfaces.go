/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"github.com/rs/zerolog"
)

// Logger is the structured logger injected into simctl components. Every
// implementation is backed by a zerolog.Logger.
type Logger interface {
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) zerolog.Logger
}

// NewTestLogger returns a Logger that discards all output.
func NewTestLogger() Logger {
	return nopLogger{zl: zerolog.Nop()}
}

type nopLogger struct {
	zl zerolog.Logger
}

func (n nopLogger) Debug() *zerolog.Event { return n.zl.Debug() }
func (n nopLogger) Info() *zerolog.Event  { return n.zl.Info() }
func (n nopLogger) Warn() *zerolog.Event  { return n.zl.Warn() }
func (n nopLogger) Error() *zerolog.Event { return n.zl.Error() }
func (n nopLogger) With() zerolog.Context { return n.zl.With() }

func (n nopLogger) WithComponent(component string) zerolog.Logger {
	return n.zl.With().Str("component", component).Logger()
}
