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
	"time"
)

// StatusCodeSuccess is the outcome code the simulation backend reports for a
// request that produced telemetry.
const StatusCodeSuccess = 201

var errNATSURLRequired = errors.New("nats url is required")

// TelemetryEvent is one reported outcome of a single simulated request.
type TelemetryEvent struct {
	NodeID     string      `json:"node_id"`
	StatusCode int         `json:"status_code"`
	Error      EventDetail `json:"error,omitempty"`
}

// Succeeded reports whether the event carries the success outcome code.
func (e *TelemetryEvent) Succeeded() bool {
	return e.StatusCode == StatusCodeSuccess
}

// EventDetail is the optional error detail of a telemetry event. The backend
// sends either a string or an arbitrary JSON value; non-string values are kept
// as their JSON text.
type EventDetail string

func (d *EventDetail) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*d = EventDetail(s)
		return nil
	}

	*d = EventDetail(b)

	return nil
}

// NATSConfig configures NATS connectivity for event publishing.
type NATSConfig struct {
	URL    string         `json:"url" yaml:"url"`
	Domain string         `json:"domain,omitempty" yaml:"domain,omitempty"`
	TLS    *NATSTLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// NATSTLSConfig holds the client certificate material for mTLS to NATS.
type NATSTLSConfig struct {
	CAFile     string `json:"ca_file" yaml:"ca_file"`
	CertFile   string `json:"cert_file" yaml:"cert_file"`
	KeyFile    string `json:"key_file" yaml:"key_file"`
	ServerName string `json:"server_name,omitempty" yaml:"server_name,omitempty"`
}

// Validate ensures the NATS configuration is valid.
func (c *NATSConfig) Validate() error {
	if c.URL == "" {
		return errNATSURLRequired
	}

	return nil
}

// EventsConfig configures CloudEvent publishing of alerts and lifecycle transitions.
type EventsConfig struct {
	Enabled    bool        `json:"enabled" yaml:"enabled"`
	StreamName string      `json:"stream_name" yaml:"stream_name"`
	Subjects   []string    `json:"subjects" yaml:"subjects"`
	NATS       *NATSConfig `json:"nats,omitempty" yaml:"nats,omitempty"`
}

// Validate fills defaults and checks the NATS settings when publishing is enabled.
func (c *EventsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.StreamName == "" {
		c.StreamName = "nodesim"
	}

	if len(c.Subjects) == 0 {
		c.Subjects = []string{"events.node.*"}
	}

	if c.NATS == nil {
		return errNATSURLRequired
	}

	return c.NATS.Validate()
}

// CloudEvent represents a CloudEvents v1.0 compliant event.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// NodeFaultEventData is the payload published when a node reports a failure outcome.
type NodeFaultEventData struct {
	AlertID    string    `json:"alert_id"`
	NodeID     string    `json:"node_id"`
	StatusCode int       `json:"status_code"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NodeTransitionEventData is the payload published when a node's displayed
// lifecycle status changes.
type NodeTransitionEventData struct {
	NodeID        string     `json:"node_id"`
	PreviousState NodeStatus `json:"previous_state"`
	CurrentState  NodeStatus `json:"current_state"`
	Cause         string     `json:"cause"`
	Timestamp     time.Time  `json:"timestamp"`
}
