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

package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nodesim"

// Collector exports console activity as Prometheus instruments.
type Collector struct {
	commands        *prometheus.CounterVec
	commandNodes    *prometheus.CounterVec
	commandLatency  *prometheus.HistogramVec
	events          *prometheus.CounterVec
	alerts          prometheus.Counter
	running         prometheus.Gauge
	connectionState *prometheus.GaugeVec
	reconnects      prometheus.Counter
}

var (
	_ CommandRecorder    = (*Collector)(nil)
	_ StreamRecorder     = (*Collector)(nil)
	_ ConnectionRecorder = (*Collector)(nil)
)

// ConnectionStates lists the values SetConnectionState reports on.
var ConnectionStates = []string{"connecting", "connected", "reconnecting", "failed", "closed"}

// NewCollector builds the instruments and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Lifecycle commands dispatched, by kind and result.",
		}, []string{"kind", "result"}),
		commandNodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_nodes_total",
			Help:      "Nodes addressed by lifecycle commands, by kind.",
		}, []string{"kind"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from dispatch to acknowledgment.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Telemetry stream messages, by outcome.",
		}, []string{"outcome"}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Node fault alerts raised.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_nodes",
			Help:      "Size of the running set.",
		}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_connection_state",
			Help:      "1 for the current stream connection state, 0 otherwise.",
		}, []string{"state"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Stream redial attempts.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.commands, c.commandNodes, c.commandLatency, c.events,
		c.alerts, c.running, c.connectionState, c.reconnects,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return c, nil
}

// ObserveCommand counts one command and its latency.
func (c *Collector) ObserveCommand(kind string, nodes int, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	c.commands.WithLabelValues(kind, result).Inc()
	c.commandNodes.WithLabelValues(kind).Add(float64(nodes))
	c.commandLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveEvent counts one stream message.
func (c *Collector) ObserveEvent(outcome string) {
	c.events.WithLabelValues(outcome).Inc()
}

// ObserveAlert counts one raised alert.
func (c *Collector) ObserveAlert() {
	c.alerts.Inc()
}

// SetRunning sets the running set size.
func (c *Collector) SetRunning(n int) {
	c.running.Set(float64(n))
}

// SetConnectionState marks state as current.
func (c *Collector) SetConnectionState(state string) {
	for _, s := range ConnectionStates {
		v := 0.0
		if s == state {
			v = 1
		}

		c.connectionState.WithLabelValues(s).Set(v)
	}
}

// ObserveReconnect counts one redial.
func (c *Collector) ObserveReconnect() {
	c.reconnects.Inc()
}

// Handler serves the instruments gathered by g in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
