package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/nodesim/pkg/logger"
	"github.com/carverauto/nodesim/pkg/models"
)

var errTestFixture = errors.New("fixture error")

type published struct {
	subject string
	event   models.CloudEvent
	data    json.RawMessage
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	var raw struct {
		models.CloudEvent
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}

	f.msgs = append(f.msgs, published{subject: subject, event: raw.CloudEvent, data: raw.Data})

	return &jetstream.PubAck{Stream: "nodesim", Sequence: uint64(len(f.msgs))}, nil
}

func (f *fakePublisher) published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]published(nil), f.msgs...)
}

func TestPublishNodeFault(t *testing.T) {
	t.Parallel()

	js := &fakePublisher{}
	p := NewEventPublisher(js, "nodesim", logger.NewTestLogger())
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	err := p.PublishNodeFault(context.Background(), &models.NodeFaultEventData{
		AlertID:    "a-1",
		NodeID:     "B",
		StatusCode: 500,
		Detail:     "boom",
		Timestamp:  ts,
	})
	require.NoError(t, err)

	msgs := js.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, SubjectNodeFault, msgs[0].subject)
	assert.Equal(t, "1.0", msgs[0].event.SpecVersion)
	assert.Equal(t, typeNodeFault, msgs[0].event.Type)
	assert.Equal(t, eventSource, msgs[0].event.Source)
	assert.NotEmpty(t, msgs[0].event.ID)
	require.NotNil(t, msgs[0].event.Time)
	assert.True(t, ts.Equal(*msgs[0].event.Time))

	var data models.NodeFaultEventData
	require.NoError(t, json.Unmarshal(msgs[0].data, &data))
	assert.Equal(t, "B", data.NodeID)
	assert.Equal(t, 500, data.StatusCode)
	assert.Equal(t, "boom", data.Detail)
}

func TestPublishNodeTransition(t *testing.T) {
	t.Parallel()

	js := &fakePublisher{}
	p := NewEventPublisher(js, "nodesim", logger.NewTestLogger())

	err := p.PublishNodeTransition(context.Background(), &models.NodeTransitionEventData{
		NodeID:        "N1",
		PreviousState: models.NodeStatusStopped,
		CurrentState:  models.NodeStatusStarting,
		Cause:         "dispatch",
		Timestamp:     time.Now(),
	})
	require.NoError(t, err)

	msgs := js.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, SubjectNodeTransition, msgs[0].subject)
	assert.Equal(t, typeNodeTransition, msgs[0].event.Type)

	var data models.NodeTransitionEventData
	require.NoError(t, json.Unmarshal(msgs[0].data, &data))
	assert.Equal(t, models.NodeStatusStarting, data.CurrentState)
	assert.Equal(t, models.NodeStatusStopped, data.PreviousState)
}

func TestPublishWrapsError(t *testing.T) {
	t.Parallel()

	p := NewEventPublisher(&fakePublisher{err: errTestFixture}, "nodesim", logger.NewTestLogger())

	err := p.PublishNodeFault(context.Background(), &models.NodeFaultEventData{NodeID: "A"})
	require.ErrorIs(t, err, errTestFixture)
	assert.Contains(t, err.Error(), SubjectNodeFault)
}

func TestEnsureSubjectList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		subjects []string
		subject  string
		want     []string
	}{
		{
			name:     "adds subject when list empty",
			subjects: nil,
			subject:  SubjectNodeFault,
			want:     []string{SubjectNodeFault},
		},
		{
			name:     "keeps list when wildcard matches",
			subjects: []string{"events.node.*"},
			subject:  SubjectNodeTransition,
			want:     []string{"events.node.*"},
		},
		{
			name:     "keeps list when greater wildcard matches",
			subjects: []string{"events.>"},
			subject:  SubjectNodeFault,
			want:     []string{"events.>"},
		},
		{
			name:     "appends when unmatched",
			subjects: []string{"logs.syslog.*"},
			subject:  SubjectNodeFault,
			want:     []string{"logs.syslog.*", SubjectNodeFault},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ensureSubjectList(append([]string(nil), tc.subjects...), tc.subject)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMatchesSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"events.node.fault", "events.node.fault", true},
		{"events.node.*", "events.node.fault", true},
		{"events.*", "events.node.fault", false},
		{"events.>", "events.node.fault", true},
		{">", "events", true},
		{"events.node.fault.>", "events.node.fault", false},
		{"events.node.transition", "events.node.fault", false},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("%s~%s", tc.pattern, tc.subject), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, matchesSubject(tc.pattern, tc.subject))
		})
	}
}

func TestIsStreamMissingErr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"jetstream stream not found", jetstream.ErrStreamNotFound, true},
		{"jetstream no stream response", jetstream.ErrNoStreamResponse, true},
		{"nats stream not found", nats.ErrStreamNotFound, true},
		{"nats no stream response", nats.ErrNoStreamResponse, true},
		{"no responders", nats.ErrNoResponders, true},
		{"wrapped", fmt.Errorf("lookup: %w", jetstream.ErrStreamNotFound), true},
		{"unrelated", errTestFixture, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, isStreamMissingErr(tc.err))
		})
	}
}
