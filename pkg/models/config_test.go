package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConsoleConfigDefaults(t *testing.T) {
	cfg := &ConsoleConfig{BackendURL: "http://sim.local:5000"}

	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://sim.local:5000", cfg.CatalogURL)
	assert.Equal(t, Duration(defaultCommandTimeout), cfg.CommandTimeout)
	assert.Equal(t, StreamTransportSSE, cfg.Stream.Transport)
	assert.Equal(t, defaultStreamPath, cfg.Stream.Path)
	assert.Equal(t, defaultReconnectTries, cfg.Stream.Reconnect.MaxAttempts)
	assert.Equal(t, Duration(time.Minute), cfg.Reconciler.SampleInterval)
	assert.Equal(t, defaultSeriesLength, cfg.Reconciler.SeriesLength)
	assert.Equal(t, FaultPolicyPrompt, cfg.Reconciler.FaultPolicy)
	assert.Equal(t, 1, cfg.Segments.Count)
}

func TestConsoleConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  ConsoleConfig
		want error
	}{
		{name: "missing backend", cfg: ConsoleConfig{}, want: errBackendURLRequired},
		{name: "bad scheme", cfg: ConsoleConfig{BackendURL: "ftp://sim"}, want: errInvalidURL},
		{name: "bad catalog", cfg: ConsoleConfig{BackendURL: "http://sim", CatalogURL: "http://"}, want: errInvalidURL},
		{
			name: "bad transport",
			cfg:  ConsoleConfig{BackendURL: "http://sim", Stream: StreamConfig{Transport: "grpc"}},
			want: errInvalidTransport,
		},
		{
			name: "bad policy",
			cfg:  ConsoleConfig{BackendURL: "http://sim", Reconciler: ReconcilerConfig{FaultPolicy: "page"}},
			want: errInvalidFaultPolicy,
		},
		{
			name: "negative segments",
			cfg:  ConsoleConfig{BackendURL: "http://sim", Segments: SegmentConfig{Count: -2}},
			want: errInvalidSegments,
		},
		{
			name: "events without nats",
			cfg:  ConsoleConfig{BackendURL: "http://sim", Events: &EventsConfig{Enabled: true}},
			want: errNATSURLRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEventsConfigDefaults(t *testing.T) {
	cfg := &EventsConfig{Enabled: true, NATS: &NATSConfig{URL: "nats://localhost:4222"}}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "nodesim", cfg.StreamName)
	assert.Equal(t, []string{"events.node.*"}, cfg.Subjects)

	disabled := &EventsConfig{}
	require.NoError(t, disabled.Validate())
	assert.Empty(t, disabled.StreamName)
}

func TestDurationDecoding(t *testing.T) {
	var fromJSON struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"a":"90s","b":1000}`), &fromJSON))
	assert.Equal(t, Duration(90*time.Second), fromJSON.A)
	assert.Equal(t, Duration(time.Microsecond), fromJSON.B)

	var bad struct {
		A Duration `json:"a"`
	}

	assert.ErrorIs(t, json.Unmarshal([]byte(`{"a":"soon"}`), &bad), errInvalidDuration)

	var fromYAML struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("a: 2m\nb: 5\n"), &fromYAML))
	assert.Equal(t, Duration(2*time.Minute), fromYAML.A)
	assert.Equal(t, Duration(5), fromYAML.B)

	out, err := json.Marshal(Duration(3 * time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `"3s"`, string(out))
}
