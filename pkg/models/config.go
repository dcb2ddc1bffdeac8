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

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/carverauto/nodesim/pkg/logger"
	"gopkg.in/yaml.v3"
)

var (
	errInvalidDuration    = errors.New("invalid duration")
	errBackendURLRequired = errors.New("backend_url is required")
	errInvalidURL         = errors.New("invalid url")
	errInvalidTransport   = errors.New("invalid stream transport")
	errInvalidFaultPolicy = errors.New("invalid fault policy")
	errInvalidSegments    = errors.New("segment count must be at least 1")
)

// Duration is a wrapper around time.Duration that decodes from a duration
// string ("60s") or an integer number of nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// parse numeric as nanoseconds
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return errInvalidDuration
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidDuration, err)
	}

	*d = Duration(dur)

	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// StreamTransport selects how the live event stream is consumed.
type StreamTransport string

const (
	StreamTransportSSE       StreamTransport = "sse"
	StreamTransportWebSocket StreamTransport = "websocket"
)

// FaultPolicy decides what a failure outcome triggers.
type FaultPolicy string

const (
	// FaultPolicyPrompt raises an operator alert offering acknowledge or stop-all.
	FaultPolicyPrompt FaultPolicy = "prompt"
	// FaultPolicyLog only records the fault.
	FaultPolicyLog FaultPolicy = "log"
)

// ReconnectConfig bounds stream reconnection.
type ReconnectConfig struct {
	InitialInterval Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     Duration `json:"max_interval" yaml:"max_interval"`
	MaxAttempts     int      `json:"max_attempts" yaml:"max_attempts"`
}

// StreamConfig configures the live event subscription.
type StreamConfig struct {
	Transport StreamTransport `json:"transport" yaml:"transport"`
	Path      string          `json:"path" yaml:"path"`
	Reconnect ReconnectConfig `json:"reconnect" yaml:"reconnect"`
}

// ReconcilerConfig configures stream reconciliation.
type ReconcilerConfig struct {
	SampleInterval Duration    `json:"sample_interval" yaml:"sample_interval"`
	SeriesLength   int         `json:"series_length" yaml:"series_length"`
	LogLines       int         `json:"log_lines" yaml:"log_lines"`
	FaultPolicy    FaultPolicy `json:"fault_policy" yaml:"fault_policy"`
}

// SegmentConfig configures bulk batching.
type SegmentConfig struct {
	Count           int  `json:"count" yaml:"count"`
	GroupByPlatform bool `json:"group_by_platform" yaml:"group_by_platform"`
}

// ConsoleConfig is the configuration of a simctl operator console.
type ConsoleConfig struct {
	BackendURL     string           `json:"backend_url" yaml:"backend_url"`
	CatalogURL     string           `json:"catalog_url" yaml:"catalog_url"`
	CommandTimeout Duration         `json:"command_timeout" yaml:"command_timeout"`
	Stream         StreamConfig     `json:"stream" yaml:"stream"`
	Reconciler     ReconcilerConfig `json:"reconciler" yaml:"reconciler"`
	Segments       SegmentConfig    `json:"segments" yaml:"segments"`
	Events         *EventsConfig    `json:"events,omitempty" yaml:"events,omitempty"`
	MetricsAddr    string           `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
	Logging        *logger.Config   `json:"logging,omitempty" yaml:"logging,omitempty"`
}

const (
	defaultCommandTimeout   = 10 * time.Second
	defaultSampleInterval   = time.Minute
	defaultSeriesLength     = 10
	defaultLogLines         = 1000
	defaultReconnectInitial = time.Second
	defaultReconnectMax     = 30 * time.Second
	defaultReconnectTries   = 10
	defaultStreamPath       = "/services/events"
)

// Validate fills defaults and rejects unusable settings.
func (c *ConsoleConfig) Validate() error {
	if c.BackendURL == "" {
		return errBackendURLRequired
	}

	if err := validateURL(c.BackendURL); err != nil {
		return fmt.Errorf("backend_url: %w", err)
	}

	if c.CatalogURL == "" {
		c.CatalogURL = c.BackendURL
	} else if err := validateURL(c.CatalogURL); err != nil {
		return fmt.Errorf("catalog_url: %w", err)
	}

	if c.CommandTimeout <= 0 {
		c.CommandTimeout = Duration(defaultCommandTimeout)
	}

	if err := c.Stream.validate(); err != nil {
		return err
	}

	if err := c.Reconciler.validate(); err != nil {
		return err
	}

	if c.Segments.Count == 0 {
		c.Segments.Count = 1
	}

	if c.Segments.Count < 1 {
		return errInvalidSegments
	}

	if c.Events != nil {
		if err := c.Events.Validate(); err != nil {
			return fmt.Errorf("events: %w", err)
		}
	}

	return nil
}

func (s *StreamConfig) validate() error {
	switch s.Transport {
	case "":
		s.Transport = StreamTransportSSE
	case StreamTransportSSE, StreamTransportWebSocket:
	default:
		return fmt.Errorf("%w: %q", errInvalidTransport, s.Transport)
	}

	if s.Path == "" {
		s.Path = defaultStreamPath
	}

	if s.Reconnect.InitialInterval <= 0 {
		s.Reconnect.InitialInterval = Duration(defaultReconnectInitial)
	}

	if s.Reconnect.MaxInterval <= 0 {
		s.Reconnect.MaxInterval = Duration(defaultReconnectMax)
	}

	if s.Reconnect.MaxAttempts <= 0 {
		s.Reconnect.MaxAttempts = defaultReconnectTries
	}

	return nil
}

func (r *ReconcilerConfig) validate() error {
	if r.SampleInterval <= 0 {
		r.SampleInterval = Duration(defaultSampleInterval)
	}

	if r.SeriesLength <= 0 {
		r.SeriesLength = defaultSeriesLength
	}

	if r.LogLines <= 0 {
		r.LogLines = defaultLogLines
	}

	switch r.FaultPolicy {
	case "":
		r.FaultPolicy = FaultPolicyPrompt
	case FaultPolicyPrompt, FaultPolicyLog:
	default:
		return fmt.Errorf("%w: %q", errInvalidFaultPolicy, r.FaultPolicy)
	}

	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", errInvalidURL, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: missing host", errInvalidURL)
	}

	return nil
}
