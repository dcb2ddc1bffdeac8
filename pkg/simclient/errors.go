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

package simclient

import "errors"

var (
	// ErrTransport wraps any failure issuing a request to the simulation backend.
	ErrTransport = errors.New("simulation backend request failed")
	// ErrLegacyParameterFormat is returned for a run history parameter field
	// that is not JSON.
	ErrLegacyParameterFormat = errors.New("legacy parameter format")
	// ErrNotJSON is returned by DecodeDump for a dump that is not a sequence
	// of JSON values.
	ErrNotJSON = errors.New("dump is not json")

	errUnexpectedStatusCode = errors.New("unexpected status code")
)
