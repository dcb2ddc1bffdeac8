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
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/nodesim/pkg/logger"
	"github.com/carverauto/nodesim/pkg/metrics"
	"github.com/carverauto/nodesim/pkg/models"
	"github.com/carverauto/nodesim/pkg/params"
	"github.com/carverauto/nodesim/pkg/state"
)

const (
	kindStart = "start"
	kindStop  = "stop"

	defaultTimeout = 10 * time.Second
)

// StartRequest describes one start command.
type StartRequest struct {
	Nodes []models.Node
	// Frequency overrides every node's own frequency when set.
	Frequency *int
	// Overrides hold operator bounds keyed by parameter id.
	Overrides map[int]params.Override
	// ParameterIDs restricts each node's parameters when non-nil.
	ParameterIDs []int
}

// Controller dispatches lifecycle commands and moves node statuses through
// the pending states.
type Controller struct {
	board      *state.Board
	dispatcher Dispatcher
	timeout    time.Duration
	logger     logger.Logger
	tracer     trace.Tracer
	metrics    metrics.CommandRecorder
	observer   TransitionObserver
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver reports every transition to o.
func WithObserver(o TransitionObserver) Option {
	return func(c *Controller) { c.observer = o }
}

// WithMetrics records commands on r.
func WithMetrics(r metrics.CommandRecorder) Option {
	return func(c *Controller) { c.metrics = r }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// New creates a controller. timeout bounds each pending state; zero selects
// the default.
func New(board *state.Board, d Dispatcher, timeout time.Duration, log logger.Logger, opts ...Option) *Controller {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Controller{
		board:      board,
		dispatcher: d,
		timeout:    timeout,
		logger:     log,
		tracer:     logger.GetTracer("nodesim/controller"),
		metrics:    metrics.Nop{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start moves the nodes to starting, dispatches a single start command and
// moves them to running, in the running set, once it is acknowledged. On failure every node the
// command touched reverts to its previous status unless a newer signal has
// arrived for it.
func (c *Controller) Start(ctx context.Context, req StartRequest) error {
	if len(req.Nodes) == 0 {
		return ErrNoTargets
	}

	items := BuildStartItems(req)
	ids := make([]string, 0, len(items))

	for i := range items {
		ids = append(ids, items[i].NodeID)
	}

	return c.run(ctx, kindStart, ids, models.NodeStatusStarting, models.NodeStatusRunning,
		func(ctx context.Context) error {
			return c.dispatcher.Start(ctx, items)
		})
}

// Stop moves the nodes to stopping, dispatches a stop command and moves them
// to stopped once it is acknowledged.
func (c *Controller) Stop(ctx context.Context, ids []string) error {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return ErrNoTargets
	}

	return c.run(ctx, kindStop, ids, models.NodeStatusStopping, models.NodeStatusStopped,
		func(ctx context.Context) error {
			return c.dispatcher.Stop(ctx, models.StopItems(ids))
		})
}

func (c *Controller) run(
	ctx context.Context,
	kind string,
	ids []string,
	pending, target models.NodeStatus,
	dispatch func(context.Context) error,
) error {
	ctx, span := c.tracer.Start(ctx, "controller."+kind)
	defer span.End()

	span.SetAttributes(
		attribute.String("command.kind", kind),
		attribute.Int("command.nodes", len(ids)),
	)

	stamps := c.board.SetMany(ids, pending)
	for _, s := range stamps {
		c.notify(ctx, s.NodeID, s.Previous, pending, CauseDispatch)
	}

	c.logger.Debug().
		Str("kind", kind).
		Int("nodes", len(ids)).
		Dur("timeout", c.timeout).
		Msg("Dispatching lifecycle command")

	began := time.Now()

	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	err := dispatch(dctx)
	timedOut := errors.Is(dctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil

	cancel()

	c.metrics.ObserveCommand(kind, len(ids), err, time.Since(began))

	if err != nil {
		cause := CauseTransportError
		wrapped := fmt.Errorf("%w: %w", ErrTransport, err)

		if timedOut {
			cause = CauseAckTimeout
			wrapped = fmt.Errorf("%w after %s: %w", ErrAckTimeout, c.timeout, err)
		}

		for _, s := range stamps {
			if c.board.Revert(s) {
				c.notify(ctx, s.NodeID, pending, s.Previous, cause)
			}
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, cause)

		c.logger.Warn().
			Err(err).
			Str("kind", kind).
			Strs("node_ids", ids).
			Str("cause", cause).
			Msg("Lifecycle command failed, statuses reverted")

		return &CommandError{Kind: kind, NodeIDs: ids, Err: wrapped}
	}

	// The ack is itself a signal: it lands after anything the stream
	// reported during dispatch.
	for _, s := range c.board.Acknowledge(ids, target) {
		if s.Previous != target {
			c.notify(ctx, s.NodeID, s.Previous, target, CauseAcknowledged)
		}
	}

	span.SetStatus(codes.Ok, "acknowledged")

	c.logger.Info().
		Str("kind", kind).
		Int("nodes", len(ids)).
		Msg("Lifecycle command acknowledged")

	return nil
}

func (c *Controller) notify(ctx context.Context, id string, from, to models.NodeStatus, cause string) {
	if c.observer == nil {
		return
	}

	c.observer.OnTransition(ctx, Transition{NodeID: id, From: from, To: to, Cause: cause})
}

// BuildStartItems assembles the start body for req, one item per node in
// order. Duplicate node ids keep their first occurrence.
func BuildStartItems(req StartRequest) []models.StartItem {
	items := make([]models.StartItem, 0, len(req.Nodes))
	seen := make(map[string]struct{}, len(req.Nodes))

	for i := range req.Nodes {
		n := &req.Nodes[i]
		if _, dup := seen[n.NodeID]; dup {
			continue
		}

		seen[n.NodeID] = struct{}{}

		freq := n.Frequency
		if req.Frequency != nil {
			freq = *req.Frequency
		}

		items = append(items, models.StartItem{
			NodeID:     n.NodeID,
			Frequency:  max(freq, 0),
			Parameters: params.Aggregate(params.Select(n.Parameters, req.ParameterIDs), req.Overrides),
			Platform:   n.Platform,
			Protocol:   n.Protocol,
		})
	}

	return items
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))

	for _, id := range ids {
		if id == "" {
			continue
		}

		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}
