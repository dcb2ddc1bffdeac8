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

// Package session wires one operator view: a status board, a lifecycle
// controller, a telemetry reconciler and the stream subscription feeding it.
package session

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/nodesim/pkg/controller"
	"github.com/carverauto/nodesim/pkg/lifecycle"
	"github.com/carverauto/nodesim/pkg/logger"
	"github.com/carverauto/nodesim/pkg/metrics"
	"github.com/carverauto/nodesim/pkg/models"
	"github.com/carverauto/nodesim/pkg/params"
	"github.com/carverauto/nodesim/pkg/reconciler"
	"github.com/carverauto/nodesim/pkg/segment"
	"github.com/carverauto/nodesim/pkg/simclient"
	"github.com/carverauto/nodesim/pkg/state"
	"github.com/carverauto/nodesim/pkg/stream"
)

// Backend is the simulation backend as seen by a session.
type Backend interface {
	controller.Dispatcher
	LoggerDump(ctx context.Context) ([]byte, error)
	LoggerDumpAt(ctx context.Context, timestamp models.RunTimestamp) ([]byte, error)
}

// Recorder receives every instrument a session reports.
type Recorder interface {
	metrics.CommandRecorder
	metrics.StreamRecorder
	metrics.ConnectionRecorder
}

// Decision resolves a pending alert.
type Decision string

const (
	DecisionAcknowledge    Decision = "acknowledge"
	DecisionStopAllRunning Decision = "stop_all_running"
)

// Config sizes a session.
type Config struct {
	CommandTimeout time.Duration
	Reconciler     reconciler.Config
	Reconnect      stream.ReconnectPolicy
	Segments       models.SegmentConfig
}

// ConfigFrom adapts the console configuration.
func ConfigFrom(c *models.ConsoleConfig) Config {
	return Config{
		CommandTimeout: time.Duration(c.CommandTimeout),
		Reconciler:     reconciler.ConfigFrom(&c.Reconciler),
		Reconnect:      stream.PolicyFrom(&c.Stream.Reconnect),
		Segments:       c.Segments,
	}
}

// StartOptions tune a start command.
type StartOptions struct {
	Frequency    *int
	Overrides    map[int]params.Override
	ParameterIDs []int
}

const alertBuffer = 64

// PendingAlert is the unresolved alert of one node. Repeated failure
// outcomes from the same node replace the alert and bump Count.
type PendingAlert struct {
	reconciler.Alert
	Count int
}

// Session is one operator view. Views share nothing.
type Session struct {
	nodes       []models.Node
	index       map[string]int
	backend     Backend
	board       *state.Board
	ctrl        *controller.Controller
	rec         *reconciler.Reconciler
	sub         *stream.Subscription
	partitioner *segment.Partitioner
	confirmer   Confirmer
	logger      logger.Logger

	alerts chan reconciler.Alert

	mu       sync.Mutex
	pending  map[string]*PendingAlert
	opened   bool
	released bool
	cancel   context.CancelFunc
	done     chan struct{}
}

type options struct {
	confirmer Confirmer
	clock     reconciler.Clock
	recorder  Recorder
	observer  controller.TransitionObserver
	sinks     []reconciler.AlertSink
	tracer    trace.Tracer
}

// Option configures a Session.
type Option func(*options)

// WithConfirmer gates bulk actions on c. Without one every bulk action is declined.
func WithConfirmer(c Confirmer) Option {
	return func(o *options) { o.confirmer = c }
}

// WithClock replaces the reconciler's wall clock.
func WithClock(c reconciler.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithMetrics records commands, stream events and connection state on r.
func WithMetrics(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithObserver reports lifecycle transitions to t.
func WithObserver(t controller.TransitionObserver) Option {
	return func(o *options) { o.observer = t }
}

// WithAlertSink forwards raised alerts to s in addition to Alerts().
func WithAlertSink(s reconciler.AlertSink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithTracer replaces the controller's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// New creates an unopened session over nodes. The board is seeded from the
// catalog's services field.
func New(nodes []models.Node, backend Backend, source stream.Source, cfg Config, log logger.Logger, opts ...Option) *Session {
	o := options{confirmer: DenyAll}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		nodes:       append([]models.Node(nil), nodes...),
		index:       make(map[string]int, len(nodes)),
		backend:     backend,
		board:       state.NewBoard(),
		partitioner: segment.NewPartitioner(cfg.Segments),
		confirmer:   o.confirmer,
		logger:      log,
		alerts:      make(chan reconciler.Alert, alertBuffer),
		pending:     make(map[string]*PendingAlert),
	}

	for i := range s.nodes {
		s.index[s.nodes[i].NodeID] = i
	}

	s.board.Seed(s.nodes)

	ctrlOpts := []controller.Option{}
	recOpts := []reconciler.Option{reconciler.WithAlertSink(s)}
	subOpts := []stream.Option{}

	if o.recorder != nil {
		ctrlOpts = append(ctrlOpts, controller.WithMetrics(o.recorder))
		recOpts = append(recOpts, reconciler.WithMetrics(o.recorder))
		subOpts = append(subOpts, stream.WithMetrics(o.recorder))
	}

	if o.observer != nil {
		ctrlOpts = append(ctrlOpts, controller.WithObserver(o.observer))
	}

	if o.tracer != nil {
		ctrlOpts = append(ctrlOpts, controller.WithTracer(o.tracer))
	}

	if o.clock != nil {
		recOpts = append(recOpts, reconciler.WithClock(o.clock))
	}

	for _, sink := range o.sinks {
		recOpts = append(recOpts, reconciler.WithAlertSink(sink))
	}

	s.ctrl = controller.New(s.board, backend, cfg.CommandTimeout, lifecycle.Child(log, "controller"), ctrlOpts...)
	s.rec = reconciler.New(s.board, cfg.Reconciler, lifecycle.Child(log, "reconciler"), recOpts...)
	s.sub = stream.NewSubscription(source, cfg.Reconnect, lifecycle.Child(log, "stream"), subOpts...)

	return s
}

// Open connects the event stream and starts the reconciler loop. A stream
// that cannot be established is reported as a transport error.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrReleased
	}

	if s.opened {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}

	s.opened = true
	s.mu.Unlock()

	if err := s.sub.Open(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to open event stream")
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		cancel()

		return ErrReleased
	}

	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)

		if err := s.rec.Run(runCtx, s.sub.Messages()); err != nil && runCtx.Err() == nil {
			s.logger.Error().Err(err).Msg("Reconciler stopped")
		}
	}()

	s.logger.Info().Int("nodes", len(s.nodes)).Msg("Session opened")

	return nil
}

// Release closes the stream, joins the reconciler loop and stops all further
// mutation. It is synchronous and idempotent.
func (s *Session) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}

	s.released = true
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	// Acks of commands still in flight land on a frozen board.
	s.board.Freeze()

	if cancel != nil {
		cancel()
	}

	if err := s.sub.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Error closing event stream")
	}

	if done != nil {
		<-done
	}

	// No alert can be raised once the reconciler is released.
	s.rec.Release()
	close(s.alerts)

	s.logger.Info().Msg("Session released")
}

// Released reports whether Release has been called.
func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.released
}

// Nodes returns the fleet in catalog order.
func (s *Session) Nodes() []models.Node {
	return append([]models.Node(nil), s.nodes...)
}

// Start starts the named nodes with a single command.
func (s *Session) Start(ctx context.Context, ids []string, opts StartOptions) error {
	nodes, err := s.lookup(ids)
	if err != nil {
		return err
	}

	return s.start(ctx, nodes, opts)
}

// Stop stops the named nodes with a single command.
func (s *Session) Stop(ctx context.Context, ids []string) error {
	if _, err := s.lookup(ids); err != nil {
		return err
	}

	return s.stop(ctx, ids)
}

// Segments returns the current partition of the fleet.
func (s *Session) Segments() []segment.Segment {
	return s.partitioner.Segments(s.nodes)
}

// SetSegmentCount changes the number of segments per group.
func (s *Session) SetSegmentCount(k int) {
	s.partitioner.SetCount(k)
}

// StartSegment starts every node of segment index once the operator confirms.
func (s *Session) StartSegment(ctx context.Context, index int, opts StartOptions) error {
	seg, err := s.segment(index)
	if err != nil {
		return err
	}

	if !s.confirm(ctx, Prompt{Action: ActionStartSegment, NodeIDs: seg.IDs(), Segment: index}) {
		return ErrNotConfirmed
	}

	return s.start(ctx, seg.Nodes, opts)
}

// StopSegment stops every node of segment index once the operator confirms.
func (s *Session) StopSegment(ctx context.Context, index int) error {
	seg, err := s.segment(index)
	if err != nil {
		return err
	}

	ids := seg.IDs()
	if !s.confirm(ctx, Prompt{Action: ActionStopSegment, NodeIDs: ids, Segment: index}) {
		return ErrNotConfirmed
	}

	return s.stop(ctx, ids)
}

// StartRange starts catalog positions from..to (1-based, inclusive) once the
// operator confirms.
func (s *Session) StartRange(ctx context.Context, from, to int, opts StartOptions) error {
	nodes, err := segment.SelectRange(s.nodes, from, to)
	if err != nil {
		return fmt.Errorf("%w: %d-%d of %d", err, from, to, len(s.nodes))
	}

	ids := make([]string, len(nodes))
	for i := range nodes {
		ids[i] = nodes[i].NodeID
	}

	if !s.confirm(ctx, Prompt{Action: ActionStartRange, NodeIDs: ids, Segment: -1}) {
		return ErrNotConfirmed
	}

	return s.start(ctx, nodes, opts)
}

// StopUnhealthy stops every node whose latest outcome was a failure once the
// operator confirms.
func (s *Session) StopUnhealthy(ctx context.Context) error {
	ids := s.board.Unhealthy()
	if len(ids) == 0 {
		return controller.ErrNoTargets
	}

	if !s.confirm(ctx, Prompt{Action: ActionStopUnhealthy, NodeIDs: ids, Segment: -1}) {
		return ErrNotConfirmed
	}

	return s.stop(ctx, ids)
}

// Parameters lists the distinct parameter bindings across the fleet, in
// first-seen order.
func (s *Session) Parameters() []models.ParameterBinding {
	seen := make(map[int]struct{})

	var out []models.ParameterBinding

	for i := range s.nodes {
		for _, b := range s.nodes[i].Parameters {
			if _, ok := seen[b.ID]; ok {
				continue
			}

			seen[b.ID] = struct{}{}
			out = append(out, b)
		}
	}

	return out
}

// Alerts delivers alerts raised for failure outcomes. It is closed by Release.
func (s *Session) Alerts() <-chan reconciler.Alert {
	return s.alerts
}

// RaiseAlert implements reconciler.AlertSink. It never blocks: when the
// channel is full the alert stays pending and can be listed. A node holds at
// most one pending alert.
func (s *Session) RaiseAlert(a reconciler.Alert) {
	s.mu.Lock()
	if p, ok := s.pending[a.NodeID]; ok {
		p.Alert = a
		p.Count++
	} else {
		s.pending[a.NodeID] = &PendingAlert{Alert: a, Count: 1}
	}
	s.mu.Unlock()

	select {
	case s.alerts <- a:
	default:
		s.logger.Warn().Str("alert_id", a.ID).Str("node_id", a.NodeID).Msg("Alert channel full")
	}
}

// PendingAlerts lists unresolved alerts, one per node, oldest first.
func (s *Session) PendingAlerts() []PendingAlert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PendingAlert, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, *p)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].RaisedAt.Equal(out[j].RaisedAt) {
			return out[i].ID < out[j].ID
		}

		return out[i].RaisedAt.Before(out[j].RaisedAt)
	})

	return out
}

// ResolveAlert applies the operator's decision to a pending alert. id must be
// the node's current alert as listed by PendingAlerts. Stopping all
// running nodes targets the running set as it is now and still needs
// confirmation; a declined or failed stop leaves the alert pending.
func (s *Session) ResolveAlert(ctx context.Context, id string, d Decision) error {
	if s.Released() {
		return ErrReleased
	}

	nodeID, ok := s.pendingNode(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAlert, id)
	}

	switch d {
	case DecisionAcknowledge:
		s.resolve(nodeID)
		s.logger.Info().Str("alert_id", id).Str("node_id", nodeID).Msg("Alert acknowledged")

		return nil
	case DecisionStopAllRunning:
		running := s.board.Running()
		if len(running) == 0 {
			s.resolve(nodeID)
			return nil
		}

		if !s.confirm(ctx, Prompt{Action: ActionStopAllRunning, NodeIDs: running, Segment: -1}) {
			return ErrNotConfirmed
		}

		if err := s.stop(ctx, running); err != nil {
			return err
		}

		s.resolve(nodeID)

		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownDecision, d)
	}
}

// Unhealthy lists nodes whose latest outcome was a failure.
func (s *Session) Unhealthy() []string {
	return s.board.Unhealthy()
}

// Running lists nodes in the running set.
func (s *Session) Running() []string {
	return s.board.Running()
}

// ExportLog writes the retained stream log to w.
func (s *Session) ExportLog(w io.Writer) (int64, error) {
	return s.rec.ExportLog(w)
}

// ExportBackendLog downloads the backend's log dump and writes it to w,
// pretty-printed when it is JSON. An empty timestamp selects the current run.
func (s *Session) ExportBackendLog(ctx context.Context, w io.Writer, ts models.RunTimestamp) error {
	var (
		raw []byte
		err error
	)

	if ts == "" {
		raw, err = s.backend.LoggerDump(ctx)
	} else {
		raw, err = s.backend.LoggerDumpAt(ctx, ts)
	}

	if err != nil {
		return err
	}

	asJSON, err := simclient.WriteDump(w, raw)
	if err != nil {
		return fmt.Errorf("failed to write log dump: %w", err)
	}

	if !asJSON {
		s.logger.Debug().Int("bytes", len(raw)).Msg("Backend log dump is not JSON, exported verbatim")
	}

	return nil
}

// ConnectionState reports the stream connection state.
func (s *Session) ConnectionState() stream.State {
	return s.sub.State()
}

// OnConnectionChange registers fn for stream state changes.
func (s *Session) OnConnectionChange(fn func(stream.State)) {
	s.sub.OnStateChange(fn)
}

func (s *Session) start(ctx context.Context, nodes []models.Node, opts StartOptions) error {
	if s.Released() {
		return ErrReleased
	}

	return s.ctrl.Start(ctx, controller.StartRequest{
		Nodes:        nodes,
		Frequency:    opts.Frequency,
		Overrides:    opts.Overrides,
		ParameterIDs: opts.ParameterIDs,
	})
}

func (s *Session) stop(ctx context.Context, ids []string) error {
	if s.Released() {
		return ErrReleased
	}

	return s.ctrl.Stop(ctx, ids)
}

func (s *Session) resolve(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, nodeID)
}

// pendingNode finds the node whose current pending alert is id.
func (s *Session) pendingNode(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for nodeID, p := range s.pending {
		if p.ID == id {
			return nodeID, true
		}
	}

	return "", false
}

func (s *Session) confirm(ctx context.Context, p Prompt) bool {
	ok := s.confirmer.Confirm(ctx, p)

	s.logger.Info().
		Str("action", string(p.Action)).
		Int("nodes", len(p.NodeIDs)).
		Bool("confirmed", ok).
		Msg("Bulk action prompt answered")

	return ok
}

func (s *Session) lookup(ids []string) ([]models.Node, error) {
	nodes := make([]models.Node, 0, len(ids))

	for _, id := range ids {
		i, ok := s.index[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}

		nodes = append(nodes, s.nodes[i])
	}

	return nodes, nil
}

func (s *Session) segment(index int) (segment.Segment, error) {
	segs := s.Segments()
	if index < 0 || index >= len(segs) {
		return segment.Segment{}, fmt.Errorf("%w: %d of %d", ErrInvalidSegment, index, len(segs))
	}

	return segs[index], nil
}
