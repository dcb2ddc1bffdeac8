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

// Package reconciler folds the live telemetry stream into per-node state,
// rolling outcome counters and operator alerts.
package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/nodesim/pkg/logger"
	"github.com/carverauto/nodesim/pkg/metrics"
	"github.com/carverauto/nodesim/pkg/models"
	"github.com/carverauto/nodesim/pkg/state"
)

// Remedy is an operator choice offered by an alert.
type Remedy string

const (
	RemedyAcknowledge    Remedy = "acknowledge"
	RemedyStopAllRunning Remedy = "stop_all_running"
)

// Alert names a node that reported a failure outcome.
type Alert struct {
	ID         string
	NodeID     string
	StatusCode int
	Detail     string
	RaisedAt   time.Time
	Choices    []Remedy
}

// Snapshot is a point-in-time copy of reconciler state.
type Snapshot struct {
	Success   int
	Failure   int
	Malformed int
	Total     int
	Series    []Sample
	LogLines  int
	Running   []string
}

// Config sizes the reconciler.
type Config struct {
	SampleInterval time.Duration
	SeriesLength   int
	LogLines       int
	FaultPolicy    models.FaultPolicy
}

// ConfigFrom adapts the console configuration.
func ConfigFrom(c *models.ReconcilerConfig) Config {
	return Config{
		SampleInterval: time.Duration(c.SampleInterval),
		SeriesLength:   c.SeriesLength,
		LogLines:       c.LogLines,
		FaultPolicy:    c.FaultPolicy,
	}
}

// Reconciler is the single consumer of one view's telemetry stream.
type Reconciler struct {
	mu       sync.Mutex
	board    *state.Board
	clock    Clock
	logger   logger.Logger
	metrics  metrics.StreamRecorder
	interval time.Duration
	policy   models.FaultPolicy
	sinks    []AlertSink

	success   int
	failure   int
	malformed int
	total     int
	series    *RateSeries
	logs      *LogBuffer
	released  bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

// WithMetrics records stream activity on m.
func WithMetrics(m metrics.StreamRecorder) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithAlertSink adds a receiver for raised alerts.
func WithAlertSink(s AlertSink) Option {
	return func(r *Reconciler) { r.sinks = append(r.sinks, s) }
}

const (
	defaultSampleInterval = time.Minute
	defaultSeriesLength   = 10
	defaultLogLines       = 1000
)

// New creates a reconciler writing to board.
func New(board *state.Board, cfg Config, log logger.Logger, opts ...Option) *Reconciler {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = defaultSampleInterval
	}

	if cfg.SeriesLength <= 0 {
		cfg.SeriesLength = defaultSeriesLength
	}

	if cfg.LogLines <= 0 {
		cfg.LogLines = defaultLogLines
	}

	if cfg.FaultPolicy == "" {
		cfg.FaultPolicy = models.FaultPolicyPrompt
	}

	r := &Reconciler{
		board:    board,
		clock:    realClock{},
		logger:   log,
		metrics:  metrics.Nop{},
		interval: cfg.SampleInterval,
		policy:   cfg.FaultPolicy,
		series:   NewRateSeries(cfg.SeriesLength),
		logs:     NewLogBuffer(cfg.LogLines),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

type wireEvent struct {
	NodeID     string             `json:"node_id"`
	StatusCode *int               `json:"status_code"`
	Error      models.EventDetail `json:"error"`
}

// ParseEvent decodes one stream message.
func ParseEvent(raw []byte) (*models.TelemetryEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(bytes.TrimSpace(raw), &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	if w.NodeID == "" {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, errMissingNodeID)
	}

	if w.StatusCode == nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, errMissingStatusCode)
	}

	return &models.TelemetryEvent{NodeID: w.NodeID, StatusCode: *w.StatusCode, Error: w.Error}, nil
}

// Handle processes one raw stream message to completion. A malformed message
// is logged and counted; it never affects other state.
func (r *Reconciler) Handle(raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return ErrReleased
	}

	r.logs.Append(string(raw))

	ev, err := ParseEvent(raw)
	if err != nil {
		r.malformed++
		r.metrics.ObserveEvent(metrics.OutcomeMalformed)
		r.logger.Warn().Err(err).Int("bytes", len(raw)).Msg("Dropping stream message")

		return err
	}

	r.total++

	if ev.Succeeded() {
		r.success++
		r.board.MarkRunning(ev.NodeID)
		r.metrics.ObserveEvent(metrics.OutcomeSuccess)
		r.metrics.SetRunning(len(r.board.Running()))

		return nil
	}

	r.failure++
	r.board.MarkUnhealthy(ev.NodeID)
	r.metrics.ObserveEvent(metrics.OutcomeFailure)

	r.logger.Warn().
		Str("node_id", ev.NodeID).
		Int("status_code", ev.StatusCode).
		Str("detail", string(ev.Error)).
		Msg("Node reported failure outcome")

	if r.policy != models.FaultPolicyPrompt {
		return nil
	}

	alert := Alert{
		ID:         uuid.NewString(),
		NodeID:     ev.NodeID,
		StatusCode: ev.StatusCode,
		Detail:     string(ev.Error),
		RaisedAt:   r.clock.Now(),
		Choices:    []Remedy{RemedyAcknowledge, RemedyStopAllRunning},
	}

	r.metrics.ObserveAlert()

	for _, s := range r.sinks {
		s.RaiseAlert(alert)
	}

	return nil
}

// Sample pushes the current counters into the rate series and resets them.
func (r *Reconciler) Sample(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return ErrReleased
	}

	r.series.Push(Sample{At: now, Success: r.success, Failure: r.failure})

	r.logger.Debug().
		Int("success", r.success).
		Int("failure", r.failure).
		Msg("Sampled outcome counters")

	r.success = 0
	r.failure = 0

	return nil
}

// Run consumes msgs until ctx is done or msgs is closed, sampling the
// counters on every tick. The ticker is stopped and the reconciler released
// before Run returns.
func (r *Reconciler) Run(ctx context.Context, msgs <-chan []byte) error {
	ticker := r.clock.Ticker(r.interval)
	defer ticker.Stop()
	defer r.Release()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-msgs:
			if !ok {
				r.logger.Info().Msg("Stream closed, reconciler stopping")
				return nil
			}

			_ = r.Handle(raw)
		case now := <-ticker.Chan():
			_ = r.Sample(now)
		}
	}
}

// Release stops all further mutation. It is idempotent.
func (r *Reconciler) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.released = true
}

// Released reports whether Release has been called.
func (r *Reconciler) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.released
}

// Snapshot copies the current counters, series and running set.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		Success:   r.success,
		Failure:   r.failure,
		Malformed: r.malformed,
		Total:     r.total,
		Series:    r.series.Samples(),
		LogLines:  r.logs.Len(),
		Running:   r.board.Running(),
	}
}

// ExportLog writes the retained stream lines to w, oldest first.
func (r *Reconciler) ExportLog(w io.Writer) (int64, error) {
	r.mu.Lock()
	lines := r.logs.Lines()
	r.mu.Unlock()

	var total int64

	for _, line := range lines {
		n, err := io.WriteString(w, line+"\n")
		total += int64(n)

		if err != nil {
			return total, err
		}
	}

	return total, nil
}
