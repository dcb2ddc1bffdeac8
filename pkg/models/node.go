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
	"math"
	"strconv"
	"strings"
)

// Platform identifies the IoT platform a node reports to.
type Platform string

const (
	PlatformCCSP   Platform = "ccsp"
	PlatformOneM2M Platform = "OneM2m"
	PlatformCTOP   Platform = "ctop"
)

// Known reports whether p is one of the platforms the simulation backend supports.
func (p Platform) Known() bool {
	switch p {
	case PlatformCCSP, PlatformOneM2M, PlatformCTOP:
		return true
	default:
		return false
	}
}

// Protocol is the transport a simulated node uses to deliver telemetry.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
)

// NodeStatus is the lifecycle status displayed for a node.
type NodeStatus string

const (
	NodeStatusUnknown  NodeStatus = "unknown"
	NodeStatusStopped  NodeStatus = "stopped"
	NodeStatusStarting NodeStatus = "starting"
	NodeStatusRunning  NodeStatus = "running"
	NodeStatusStopping NodeStatus = "stopping"
)

// Pending reports whether the status is a transition awaiting acknowledgment.
func (s NodeStatus) Pending() bool {
	return s == NodeStatusStarting || s == NodeStatusStopping
}

// StatusFromServices maps the catalog's legacy services field ("start" / "stop")
// to a node status.
func StatusFromServices(services string) NodeStatus {
	s := strings.ToLower(services)

	switch {
	case strings.Contains(s, "start"):
		return NodeStatusRunning
	case strings.Contains(s, "stop"):
		return NodeStatusStopped
	default:
		return NodeStatusUnknown
	}
}

// Bound is a numeric parameter bound. It decodes from a JSON number or a numeric
// string; anything else decodes to 0.
type Bound float64

// UnmarshalJSON never fails: invalid input degrades to 0.
func (b *Bound) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		*b = 0
		return nil
	}

	switch value := v.(type) {
	case float64:
		*b = Bound(value)
	case string:
		*b = ParseBound(value)
	default:
		*b = 0
	}

	return nil
}

// ParseBound parses operator or catalog input. Blank, unparseable, NaN and
// infinite values yield 0.
func ParseBound(s string) Bound {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}

	return Bound(f)
}

// ParameterBinding is a named min/max range bound to a node by the catalog.
type ParameterBinding struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Min        Bound  `json:"min_value"`
	Max        Bound  `json:"max_value"`
	VerticalID int    `json:"vertical_id,omitempty"`
}

// Node is a simulated device as listed by the catalog service.
type Node struct {
	NodeID     string             `json:"node_id"`
	Platform   Platform           `json:"platform"`
	Protocol   Protocol           `json:"protocol"`
	Frequency  int                `json:"frequency"`
	Services   string             `json:"services,omitempty"`
	VerticalID int                `json:"vertical_id,omitempty"`
	Parameters []ParameterBinding `json:"parameter,omitempty"`
}

// Vertical is a domain grouping of nodes and parameter definitions.
type Vertical struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// NodeIDs returns the identifiers of nodes in order.
func NodeIDs(nodes []Node) []string {
	ids := make([]string, 0, len(nodes))
	for i := range nodes {
		ids = append(ids, nodes[i].NodeID)
	}

	return ids
}
