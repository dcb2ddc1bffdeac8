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

package reconciler

import "errors"

var (
	// ErrMalformedEvent is returned for a stream message that is not a
	// telemetry event.
	ErrMalformedEvent = errors.New("malformed telemetry event")
	// ErrReleased is returned once the reconciler no longer accepts input.
	ErrReleased = errors.New("reconciler released")

	errMissingNodeID     = errors.New("missing node_id")
	errMissingStatusCode = errors.New("missing status_code")
)
