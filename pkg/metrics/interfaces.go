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

package metrics

import "time"

// Outcome labels for stream events.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeMalformed = "malformed"
)

// CommandRecorder records lifecycle commands sent to the simulation backend.
type CommandRecorder interface {
	ObserveCommand(kind string, nodes int, err error, elapsed time.Duration)
}

// StreamRecorder records what the telemetry stream delivers.
type StreamRecorder interface {
	ObserveEvent(outcome string)
	ObserveAlert()
	SetRunning(n int)
}

// ConnectionRecorder records subscription state changes.
type ConnectionRecorder interface {
	SetConnectionState(state string)
	ObserveReconnect()
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveCommand(string, int, error, time.Duration) {}
func (Nop) ObserveEvent(string)                              {}
func (Nop) ObserveAlert()                                    {}
func (Nop) SetRunning(int)                                   {}
func (Nop) SetConnectionState(string)                        {}
func (Nop) ObserveReconnect()                                {}

var (
	_ CommandRecorder    = Nop{}
	_ StreamRecorder     = Nop{}
	_ ConnectionRecorder = Nop{}
)
