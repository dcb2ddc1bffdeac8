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

package controller

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoTargets is returned when a command addresses no nodes.
	ErrNoTargets = errors.New("no target nodes")
	// ErrTransport wraps a failure delivering a command to the backend.
	ErrTransport = errors.New("command transport failure")
	// ErrAckTimeout is returned when the backend did not acknowledge in time.
	ErrAckTimeout = errors.New("command not acknowledged before timeout")
)

// CommandError is the operator-visible failure of one start or stop command.
// Statuses of the addressed nodes have already been reverted when it is
// returned.
type CommandError struct {
	Kind    string
	NodeIDs []string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, strings.Join(e.NodeIDs, ","), e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
