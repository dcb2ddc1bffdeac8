package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/nodesim/pkg/controller"
	"github.com/carverauto/nodesim/pkg/logger"
	"github.com/carverauto/nodesim/pkg/models"
	"github.com/carverauto/nodesim/pkg/reconciler"
	"github.com/carverauto/nodesim/pkg/segment"
	"github.com/carverauto/nodesim/pkg/stream"
)

var errBackendDown = errors.New("backend down")

type fakeBackend struct {
	mu       sync.Mutex
	starts   [][]models.StartItem
	stops    [][]models.StopItem
	err      error
	dump     []byte
	dumpedAt models.RunTimestamp

	// gate, when set, holds Start until closed; entered is signalled first.
	gate    chan struct{}
	entered chan struct{}
}

func (b *fakeBackend) Start(_ context.Context, items []models.StartItem) error {
	if b.gate != nil {
		b.entered <- struct{}{}
		<-b.gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.starts = append(b.starts, items)

	return b.err
}

func (b *fakeBackend) Stop(_ context.Context, items []models.StopItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stops = append(b.stops, items)

	return b.err
}

func (b *fakeBackend) LoggerDump(context.Context) ([]byte, error) {
	return b.dump, b.err
}

func (b *fakeBackend) LoggerDumpAt(_ context.Context, ts models.RunTimestamp) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dumpedAt = ts

	return b.dump, b.err
}

func (b *fakeBackend) stopCalls() [][]models.StopItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([][]models.StopItem(nil), b.stops...)
}

type chanConn struct {
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newChanConn() *chanConn {
	return &chanConn{msgs: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *chanConn) send(msgs ...string) {
	for _, m := range msgs {
		c.msgs <- []byte(m)
	}
}

func (c *chanConn) Next() ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *chanConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func fleet() []models.Node {
	return []models.Node{
		{NodeID: "A", Platform: models.PlatformCCSP, Protocol: models.ProtocolHTTP, Frequency: 60, Services: "stop"},
		{NodeID: "B", Platform: models.PlatformCCSP, Protocol: models.ProtocolHTTP, Frequency: 60, Services: "stop"},
		{NodeID: "C", Platform: models.PlatformCTOP, Protocol: models.ProtocolHTTPS, Frequency: 30, Services: "start"},
		{NodeID: "N1", Platform: models.PlatformOneM2M, Protocol: models.ProtocolHTTP, Frequency: 10, Services: "stop",
			Parameters: []models.ParameterBinding{{ID: 1, Name: "temp", Min: 10, Max: 20}}},
	}
}

func testConfig() Config {
	return Config{
		CommandTimeout: time.Second,
		Reconciler:     reconciler.Config{SampleInterval: time.Hour, SeriesLength: 10, LogLines: 100},
		Segments:       models.SegmentConfig{Count: 2},
	}
}

func newTestSession(t *testing.T, backend *fakeBackend, conn *chanConn, opts ...Option) *Session {
	t.Helper()

	source := stream.SourceFunc(func(context.Context) (stream.Conn, error) {
		return conn, nil
	})

	s := New(fleet(), backend, source, testConfig(), logger.NewTestLogger(), opts...)
	t.Cleanup(s.Release)

	return s
}

func statusOf(v View, id string) models.NodeStatus {
	for _, row := range v.Nodes {
		if row.Node.NodeID == id {
			return row.Status
		}
	}

	return models.NodeStatusUnknown
}

func always(answer bool, seen *[]Prompt) Confirmer {
	var mu sync.Mutex

	return ConfirmFunc(func(_ context.Context, p Prompt) bool {
		mu.Lock()
		defer mu.Unlock()

		if seen != nil {
			*seen = append(*seen, p)
		}

		return answer
	})
}

func TestEventSequenceThroughSession(t *testing.T) {
	t.Parallel()

	conn := newChanConn()
	s := newTestSession(t, &fakeBackend{}, conn)
	require.NoError(t, s.Open(context.Background()))

	conn.send(
		`{"node_id":"A","status_code":201}`,
		`{"node_id":"B","status_code":500,"error":"boom"}`,
		`{"node_id":"A","status_code":201}`,
		`{"node_id":"B","status_code":201}`,
	)

	require.Eventually(t, func() bool {
		return s.View().Counters.Total == 4
	}, 2*time.Second, 5*time.Millisecond)

	view := s.View()
	assert.Equal(t, 3, view.Counters.Success)
	assert.Equal(t, 1, view.Counters.Failure)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, s.Running())
	assert.Empty(t, s.Unhealthy())

	select {
	case alert := <-s.Alerts():
		assert.Equal(t, "B", alert.NodeID)
		assert.Equal(t, 500, alert.StatusCode)
		assert.Equal(t, "boom", alert.Detail)
	default:
		t.Fatal("expected one alert")
	}

	select {
	case extra := <-s.Alerts():
		t.Fatalf("unexpected alert %+v", extra)
	default:
	}

	assert.Len(t, s.PendingAlerts(), 1)
}

func TestMalformedMessageIsolated(t *testing.T) {
	t.Parallel()

	conn := newChanConn()
	s := newTestSession(t, &fakeBackend{}, conn)
	require.NoError(t, s.Open(context.Background()))

	conn.send(`{"node_id":"A","status_code":201}`, `{not json`, `{"node_id":"B","status_code":201}`)

	require.Eventually(t, func() bool {
		return s.View().Counters.Malformed == 1 && s.View().Counters.Total == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, s.View().Counters.Success)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, s.Running())
}

func TestReleaseStopsMutation(t *testing.T) {
	t.Parallel()

	conn := newChanConn()
	backend := &fakeBackend{}
	s := newTestSession(t, backend, conn)
	require.NoError(t, s.Open(context.Background()))

	conn.send(`{"node_id":"A","status_code":201}`)
	require.Eventually(t, func() bool {
		return s.View().Counters.Total == 1
	}, 2*time.Second, 5*time.Millisecond)

	s.Release()
	before := s.View()

	select {
	case conn.msgs <- []byte(`{"node_id":"B","status_code":500}`):
	default:
	}

	time.Sleep(20 * time.Millisecond)

	after := s.View()
	assert.Equal(t, before.Counters, after.Counters)
	assert.Equal(t, before.Nodes, after.Nodes)
	assert.True(t, after.Released)
	assert.Equal(t, stream.StateClosed, after.Connection)

	_, open := <-s.Alerts()
	assert.False(t, open)

	require.ErrorIs(t, s.Start(context.Background(), []string{"A"}, StartOptions{}), ErrReleased)
	require.ErrorIs(t, s.Stop(context.Background(), []string{"A"}), ErrReleased)
	require.ErrorIs(t, s.Open(context.Background()), ErrReleased)
	assert.Empty(t, backend.stopCalls())

	s.Release()
}

func TestReleaseDropsInflightAck(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := newTestSession(t, backend, newChanConn())
	require.NoError(t, s.Open(context.Background()))

	errc := make(chan error, 1)

	go func() {
		errc <- s.Start(context.Background(), []string{"A"}, StartOptions{})
	}()

	<-backend.entered
	assert.Equal(t, models.NodeStatusStarting, statusOf(s.View(), "A"))

	s.Release()
	close(backend.gate)
	require.NoError(t, <-errc)

	assert.Equal(t, models.NodeStatusStarting, statusOf(s.View(), "A"))
	assert.Equal(t, []string{"C"}, s.Running())
}

func TestReleaseWithoutOpen(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &fakeBackend{}, newChanConn())
	s.Release()

	assert.True(t, s.Released())
	assert.Equal(t, stream.StateClosed, s.ConnectionState())
}

func TestOpenFailureIsTransportError(t *testing.T) {
	t.Parallel()

	source := stream.SourceFunc(func(context.Context) (stream.Conn, error) {
		return nil, errBackendDown
	})

	s := New(fleet(), &fakeBackend{}, source, testConfig(), logger.NewTestLogger())
	defer s.Release()

	err := s.Open(context.Background())
	require.ErrorIs(t, err, stream.ErrTransport)
	require.ErrorIs(t, err, errBackendDown)
	assert.Equal(t, stream.StateFailed, s.ConnectionState())
	require.ErrorIs(t, s.Open(context.Background()), ErrAlreadyOpen)
}

func TestStartTransportErrorKeepsStatus(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{err: errBackendDown}
	s := newTestSession(t, backend, newChanConn())

	freq := 3600
	err := s.Start(context.Background(), []string{"N1"}, StartOptions{Frequency: &freq})

	var cmdErr *controller.CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.ErrorIs(t, err, controller.ErrTransport)
	assert.Equal(t, models.NodeStatusStopped, statusOf(s.View(), "N1"))

	require.Len(t, backend.starts, 1)
	require.Len(t, backend.starts[0], 1)
	assert.Equal(t, 3600, backend.starts[0][0].Frequency)
	assert.Equal(t, []models.StartParameter{{Name: "temp", Min: 10, Max: 20}}, backend.starts[0][0].Parameters)
}

func TestStartAndStop(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	s := newTestSession(t, backend, newChanConn())

	require.NoError(t, s.Start(context.Background(), []string{"A", "B"}, StartOptions{}))
	assert.ElementsMatch(t, []string{"A", "B", "C"}, s.Running())

	require.NoError(t, s.Stop(context.Background(), []string{"A"}))
	assert.ElementsMatch(t, []string{"B", "C"}, s.Running())

	err := s.Start(context.Background(), []string{"Z"}, StartOptions{})
	require.ErrorIs(t, err, ErrUnknownNode)

	require.ErrorIs(t, s.Start(context.Background(), nil, StartOptions{}), controller.ErrNoTargets)
}

func TestSegmentActionsNeedConfirmation(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	s := newTestSession(t, backend, newChanConn())

	segs := s.Segments()
	require.NotEmpty(t, segs)

	require.ErrorIs(t, s.StartSegment(context.Background(), 0, StartOptions{}), ErrNotConfirmed)
	require.ErrorIs(t, s.StopSegment(context.Background(), 0), ErrNotConfirmed)
	assert.Empty(t, backend.starts)
	assert.Empty(t, backend.stopCalls())

	require.ErrorIs(t, s.StartSegment(context.Background(), len(segs), StartOptions{}), ErrInvalidSegment)
	require.ErrorIs(t, s.StopSegment(context.Background(), -1), ErrInvalidSegment)
}

func TestSegmentActionsConfirmed(t *testing.T) {
	t.Parallel()

	var prompts []Prompt

	backend := &fakeBackend{}
	s := newTestSession(t, backend, newChanConn(), WithConfirmer(always(true, &prompts)))

	s.SetSegmentCount(1)
	segs := s.Segments()
	require.Len(t, segs, 1)

	require.NoError(t, s.StartSegment(context.Background(), 0, StartOptions{}))
	require.Len(t, backend.starts, 1)
	assert.Len(t, backend.starts[0], len(fleet()))

	require.NoError(t, s.StopSegment(context.Background(), 0))
	require.Len(t, backend.stopCalls(), 1)
	assert.Empty(t, s.Running())

	require.Len(t, prompts, 2)
	assert.Equal(t, ActionStartSegment, prompts[0].Action)
	assert.Equal(t, ActionStopSegment, prompts[1].Action)
	assert.Equal(t, segs[0].IDs(), prompts[1].NodeIDs)
}

func TestStartRange(t *testing.T) {
	t.Parallel()

	var prompts []Prompt

	backend := &fakeBackend{}
	s := newTestSession(t, backend, newChanConn(), WithConfirmer(always(true, &prompts)))

	require.NoError(t, s.StartRange(context.Background(), 2, 9, StartOptions{}))
	require.Len(t, backend.starts, 1)

	started := make([]string, 0, len(backend.starts[0]))
	for _, item := range backend.starts[0] {
		started = append(started, item.NodeID)
	}

	assert.Equal(t, []string{"B", "C", "N1"}, started)
	require.Len(t, prompts, 1)
	assert.Equal(t, ActionStartRange, prompts[0].Action)
	assert.Equal(t, "Start 3 nodes in range?", prompts[0].String())

	require.ErrorIs(t, s.StartRange(context.Background(), 3, 2, StartOptions{}), segment.ErrInvalidRange)
	require.ErrorIs(t, s.StartRange(context.Background(), 5, 5, StartOptions{}), segment.ErrInvalidRange)
	assert.Len(t, backend.starts, 1)
}

func TestStartRangeDeclined(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	s := newTestSession(t, backend, newChanConn())

	require.ErrorIs(t, s.StartRange(context.Background(), 1, 2, StartOptions{}), ErrNotConfirmed)
	assert.Empty(t, backend.starts)
}

func TestStopUnhealthy(t *testing.T) {
	t.Parallel()

	conn := newChanConn()
	backend := &fakeBackend{}

	var prompts []Prompt

	s := newTestSession(t, backend, conn, WithConfirmer(always(true, &prompts)))
	require.ErrorIs(t, s.StopUnhealthy(context.Background()), controller.ErrNoTargets)

	raiseFailure(t, s, conn)
	require.NoError(t, s.StopUnhealthy(context.Background()))

	stops := backend.stopCalls()
	require.Len(t, stops, 1)
	assert.Equal(t, []models.StopItem{{NodeID: "B"}}, stops[0])
	require.Len(t, prompts, 1)
	assert.Equal(t, ActionStopUnhealthy, prompts[0].Action)
	assert.Empty(t, s.Unhealthy())
}

func TestParametersAcrossFleet(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &fakeBackend{}, newChanConn())
	assert.Equal(t, []models.ParameterBinding{{ID: 1, Name: "temp", Min: 10, Max: 20}}, s.Parameters())
}

func raiseFailure(t *testing.T, s *Session, conn *chanConn) reconciler.Alert {
	t.Helper()

	require.NoError(t, s.Open(context.Background()))
	conn.send(`{"node_id":"B","status_code":500}`)

	select {
	case a := <-s.Alerts():
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("no alert raised")
	}

	return reconciler.Alert{}
}

func TestResolveAlertAcknowledge(t *testing.T) {
	t.Parallel()

	conn := newChanConn()
	backend := &fakeBackend{}
	s := newTestSession(t, backend, conn)
	alert := raiseFailure(t, s, conn)

	assert.Equal(t, []string{"B"}, s.Unhealthy())
	require.NoError(t, s.ResolveAlert(context.Background(), alert.ID, DecisionAcknowledge))
	assert.Empty(t, s.PendingAlerts())
	assert.Empty(t, backend.stopCalls())

	require.ErrorIs(t, s.ResolveAlert(context.Background(), alert.ID, DecisionAcknowledge), ErrUnknownAlert)
}

func TestResolveAlertStopAllRunning(t *testing.T) {
	t.Parallel()

	conn := newChanConn()
	backend := &fakeBackend{}

	var prompts []Prompt

	s := newTestSession(t, backend, conn, WithConfirmer(always(true, &prompts)))
	alert := raiseFailure(t, s, conn)

	require.NoError(t, s.ResolveAlert(context.Background(), alert.ID, DecisionStopAllRunning))

	stops := backend.stopCalls()
	require.Len(t, stops, 1)
	assert.Equal(t, []models.StopItem{{NodeID: "C"}}, stops[0])
	require.Len(t, prompts, 1)
	assert.Equal(t, ActionStopAllRunning, prompts[0].Action)
	assert.Empty(t, s.Running())
	assert.Empty(t, s.PendingAlerts())
}

func TestResolveAlertDeclinedStaysPending(t *testing.T) {
	t.Parallel()

	conn := newChanConn()
	backend := &fakeBackend{}
	s := newTestSession(t, backend, conn)
	alert := raiseFailure(t, s, conn)

	require.ErrorIs(t, s.ResolveAlert(context.Background(), alert.ID, DecisionStopAllRunning), ErrNotConfirmed)
	assert.Len(t, s.PendingAlerts(), 1)
	assert.Empty(t, backend.stopCalls())

	require.Error(t, s.ResolveAlert(context.Background(), alert.ID, Decision("reboot")))
}

func TestRepeatedFailuresCoalescePerNode(t *testing.T) {
	t.Parallel()

	conn := newChanConn()
	s := newTestSession(t, &fakeBackend{}, conn)
	require.NoError(t, s.Open(context.Background()))

	const failures = 40

	go func() {
		for i := 0; i < failures; i++ {
			conn.send(`{"node_id":"B","status_code":500}`)
		}
	}()

	require.Eventually(t, func() bool {
		return s.View().Counters.Failure == failures
	}, 2*time.Second, 5*time.Millisecond)

	pending := s.PendingAlerts()
	require.Len(t, pending, 1)
	assert.Equal(t, "B", pending[0].NodeID)
	assert.Equal(t, failures, pending[0].Count)
	assert.Equal(t, 1, s.View().PendingAlerts)

	first := <-s.Alerts()
	require.NotEqual(t, pending[0].ID, first.ID)
	require.ErrorIs(t, s.ResolveAlert(context.Background(), first.ID, DecisionAcknowledge), ErrUnknownAlert)

	require.NoError(t, s.ResolveAlert(context.Background(), pending[0].ID, DecisionAcknowledge))
	assert.Empty(t, s.PendingAlerts())
}

func TestResolveAlertStopFailureStaysPending(t *testing.T) {
	t.Parallel()

	conn := newChanConn()
	backend := &fakeBackend{err: errBackendDown}
	s := newTestSession(t, backend, conn, WithConfirmer(always(true, nil)))
	alert := raiseFailure(t, s, conn)

	err := s.ResolveAlert(context.Background(), alert.ID, DecisionStopAllRunning)
	require.ErrorIs(t, err, controller.ErrTransport)
	require.ErrorIs(t, err, errBackendDown)

	require.Len(t, s.PendingAlerts(), 1)
	assert.Equal(t, []string{"C"}, s.Running())
}

func TestViewListsRunningFirst(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &fakeBackend{}, newChanConn())

	view := s.View()
	require.Len(t, view.Nodes, 4)
	assert.Equal(t, "C", view.Nodes[0].Node.NodeID)
	assert.True(t, view.Nodes[0].Running)
	assert.Equal(t, models.NodeStatusRunning, view.Nodes[0].Status)
	assert.Equal(t, []string{"A", "B", "N1"}, []string{
		view.Nodes[1].Node.NodeID, view.Nodes[2].Node.NodeID, view.Nodes[3].Node.NodeID,
	})
	assert.Equal(t, stream.StateIdle, view.Connection)
}

func TestExportLogs(t *testing.T) {
	t.Parallel()

	conn := newChanConn()
	backend := &fakeBackend{dump: []byte(`{"a":1},{"b":2}`)}
	s := newTestSession(t, backend, conn)
	require.NoError(t, s.Open(context.Background()))

	conn.send(`{"node_id":"A","status_code":201}`)
	require.Eventually(t, func() bool {
		return s.View().Counters.LogLines == 1
	}, 2*time.Second, 5*time.Millisecond)

	var local bytes.Buffer
	_, err := s.ExportLog(&local)
	require.NoError(t, err)
	assert.Equal(t, "{\"node_id\":\"A\",\"status_code\":201}\n", local.String())

	var dump bytes.Buffer
	require.NoError(t, s.ExportBackendLog(context.Background(), &dump, ""))

	var values []map[string]int
	require.NoError(t, json.Unmarshal(dump.Bytes(), &values))
	assert.Equal(t, []map[string]int{{"a": 1}, {"b": 2}}, values)

	dump.Reset()
	require.NoError(t, s.ExportBackendLog(context.Background(), &dump, "1700000000"))
	assert.Equal(t, models.RunTimestamp("1700000000"), backend.dumpedAt)

	backend.dump = []byte("plain text log")
	dump.Reset()
	require.NoError(t, s.ExportBackendLog(context.Background(), &dump, ""))
	assert.Equal(t, "plain text log", dump.String())
}

func TestSamplingWithMockClock(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	clock := reconciler.NewMockClock(ctrl)
	ticker := reconciler.NewMockTicker(ctrl)
	ticks := make(chan time.Time, 1)

	clock.EXPECT().Ticker(time.Hour).Return(ticker)
	clock.EXPECT().Now().Return(time.Unix(0, 0)).AnyTimes()
	ticker.EXPECT().Chan().Return(ticks).AnyTimes()
	ticker.EXPECT().Stop()

	conn := newChanConn()
	s := newTestSession(t, &fakeBackend{}, conn, WithClock(clock))
	require.NoError(t, s.Open(context.Background()))

	conn.send(`{"node_id":"A","status_code":201}`)
	require.Eventually(t, func() bool {
		return s.View().Counters.Total == 1
	}, 2*time.Second, 5*time.Millisecond)

	ticks <- time.Unix(60, 0)
	require.Eventually(t, func() bool {
		return len(s.View().Counters.Series) == 1
	}, 2*time.Second, 5*time.Millisecond)

	sample := s.View().Counters.Series[0]
	assert.Equal(t, 1, sample.Success)
	assert.Zero(t, s.View().Counters.Success)

	s.Release()
}
