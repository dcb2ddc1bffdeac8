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

package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/carverauto/nodesim/pkg/logger"
	"github.com/carverauto/nodesim/pkg/metrics"
	"github.com/carverauto/nodesim/pkg/models"
)

// State is the observable connection state of a subscription.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// ReconnectPolicy bounds redialing after an unexpected close.
type ReconnectPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

// PolicyFrom adapts the console configuration.
func PolicyFrom(c *models.ReconnectConfig) ReconnectPolicy {
	return ReconnectPolicy{
		InitialInterval: time.Duration(c.InitialInterval),
		MaxInterval:     time.Duration(c.MaxInterval),
		MaxAttempts:     c.MaxAttempts,
	}
}

const messageBuffer = 64

// Subscription owns one view's stream connection and its reader goroutine.
type Subscription struct {
	source  Source
	policy  ReconnectPolicy
	logger  logger.Logger
	metrics metrics.ConnectionRecorder

	msgs chan []byte
	done chan struct{}

	mu        sync.Mutex
	state     State
	observers []func(State)
	conn      Conn
	cancel    context.CancelFunc
	opened    bool
	closed    bool
}

// Option configures a Subscription.
type Option func(*Subscription)

// WithMetrics records connection state on m.
func WithMetrics(m metrics.ConnectionRecorder) Option {
	return func(s *Subscription) { s.metrics = m }
}

// NewSubscription creates an unopened subscription.
func NewSubscription(source Source, policy ReconnectPolicy, log logger.Logger, opts ...Option) *Subscription {
	s := &Subscription{
		source:  source,
		policy:  policy,
		logger:  log,
		metrics: metrics.Nop{},
		msgs:    make(chan []byte, messageBuffer),
		done:    make(chan struct{}),
		state:   StateIdle,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Open dials the stream and starts reading. Establishment failures are
// returned wrapped in ErrTransport and leave the subscription failed.
func (s *Subscription) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed
	}

	if s.opened {
		s.mu.Unlock()
		return errAlreadyOpen
	}

	s.opened = true
	s.mu.Unlock()

	s.setState(StateConnecting)

	conn, err := s.source.Dial(ctx)
	if err != nil {
		s.setState(StateFailed)
		close(s.msgs)
		close(s.done)

		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		_ = conn.Close()
		close(s.msgs)
		close(s.done)

		return errClosed
	}

	s.cancel = cancel
	s.conn = conn
	s.mu.Unlock()

	s.setState(StateConnected)

	go s.loop(runCtx, conn)

	return nil
}

// Messages delivers raw stream messages in arrival order. It is closed when
// the subscription is closed or gives up reconnecting.
func (s *Subscription) Messages() <-chan []byte {
	return s.msgs
}

// State returns the current connection state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// OnStateChange registers fn to be called after every state change.
func (s *Subscription) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observers = append(s.observers, fn)
}

// Close tears down the connection and waits for the reader goroutine to
// exit. It is idempotent.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	opened := s.opened
	cancel := s.cancel
	conn := s.conn
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if conn != nil {
		err = conn.Close()
	}

	if opened {
		<-s.done
	} else {
		close(s.msgs)
		close(s.done)
	}

	s.setState(StateClosed)

	return err
}

func (s *Subscription) loop(ctx context.Context, conn Conn) {
	defer close(s.done)
	defer close(s.msgs)

	for {
		err := s.pump(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		s.logger.Warn().Err(err).Msg("Event stream closed unexpectedly, reconnecting")
		s.setState(StateReconnecting)

		conn, err = s.redial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			s.logger.Error().Err(err).Int("max_attempts", s.policy.MaxAttempts).Msg("Giving up on event stream")
			s.setState(StateFailed)

			return
		}

		s.logger.Info().Msg("Event stream reconnected")
		s.setState(StateConnected)
	}
}

func (s *Subscription) pump(ctx context.Context, conn Conn) error {
	for {
		data, err := conn.Next()
		if err != nil {
			return err
		}

		select {
		case s.msgs <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Subscription) redial(ctx context.Context) (Conn, error) {
	bo := backoff.NewExponentialBackOff()
	if s.policy.InitialInterval > 0 {
		bo.InitialInterval = s.policy.InitialInterval
	}

	if s.policy.MaxInterval > 0 {
		bo.MaxInterval = s.policy.MaxInterval
	}

	operation := func() (Conn, error) {
		s.metrics.ObserveReconnect()

		conn, err := s.source.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}

			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.closed {
			_ = conn.Close()
			return nil, backoff.Permanent(errClosed)
		}

		s.conn = conn

		return conn, nil
	}

	notify := func(err error, next time.Duration) {
		s.logger.Debug().Err(err).Dur("retry_in", next).Msg("Event stream redial failed")
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(bo), backoff.WithNotify(notify)}
	if s.policy.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(s.policy.MaxAttempts)))
	}

	conn, err := backoff.Retry(ctx, operation, opts...)
	if err != nil {
		if errors.Is(err, errClosed) {
			return nil, context.Canceled
		}

		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	return conn, nil
}

func (s *Subscription) setState(st State) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}

	s.state = st
	observers := append([]func(State){}, s.observers...)
	s.mu.Unlock()

	s.metrics.SetConnectionState(string(st))

	for _, fn := range observers {
		fn(st)
	}
}
