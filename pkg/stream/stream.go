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

// Package stream subscribes to the simulation backend's live event stream.
package stream

import (
	"context"
	"errors"
)

var (
	// ErrTransport wraps failures establishing the stream.
	ErrTransport = errors.New("stream transport failure")

	errAlreadyOpen      = errors.New("subscription already opened")
	errClosed           = errors.New("subscription closed")
	errUnexpectedStatus = errors.New("unexpected status code")
	errUnsupportedURL   = errors.New("unsupported stream url")
)

// Conn is one established stream connection.
type Conn interface {
	// Next blocks until the next message arrives. It returns an error once
	// the connection is gone; Close unblocks it.
	Next() ([]byte, error)
	Close() error
}

// Source establishes stream connections.
type Source interface {
	Dial(ctx context.Context) (Conn, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Conn, error)

// Dial calls f.
func (f SourceFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}
