package tui

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/nodesim/pkg/models"
	"github.com/carverauto/nodesim/pkg/params"
	"github.com/carverauto/nodesim/pkg/reconciler"
	"github.com/carverauto/nodesim/pkg/segment"
	"github.com/carverauto/nodesim/pkg/session"
	"github.com/carverauto/nodesim/pkg/stream"
)

type call struct {
	op    string
	ids   []string
	index int
	from  int
	to    int
	opts  session.StartOptions
	alert string
	dec   session.Decision
}

type fakeConsole struct {
	mu       sync.Mutex
	calls    []call
	alerts   chan reconciler.Alert
	pending  []session.PendingAlert
	count    int
	err      error
	confirm  session.Confirmer
	nodes    []models.Node
	dump     string
	onChange func(stream.State)
}

func newFakeConsole() *fakeConsole {
	return &fakeConsole{
		alerts: make(chan reconciler.Alert, 4),
		count:  2,
		nodes: []models.Node{
			{NodeID: "A", Platform: models.PlatformCCSP, Protocol: models.ProtocolHTTP, Frequency: 60},
			{NodeID: "B", Platform: models.PlatformCCSP, Protocol: models.ProtocolHTTP, Frequency: 3600},
			{NodeID: "C", Platform: models.PlatformCTOP, Protocol: models.ProtocolHTTPS, Frequency: 5},
		},
		dump: `{"level":"info"}`,
	}
}

func (f *fakeConsole) raise(a reconciler.Alert) {
	f.mu.Lock()
	f.pending = append(f.pending, session.PendingAlert{Alert: a, Count: 1})
	f.mu.Unlock()

	f.alerts <- a
}

func (f *fakeConsole) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, c)

	return f.err
}

func (f *fakeConsole) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]call(nil), f.calls...)
}

func (f *fakeConsole) View() session.View {
	rows := make([]session.NodeView, 0, len(f.nodes))
	for _, n := range f.nodes {
		rows = append(rows, session.NodeView{Node: n, Status: models.NodeStatusStopped})
	}

	return session.View{Nodes: rows, Connection: stream.StateConnected}
}

func (f *fakeConsole) Segments() []segment.Segment {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := segment.Partition(f.nodes, f.count)
	out := make([]segment.Segment, 0, len(parts))

	for i, p := range parts {
		out = append(out, segment.Segment{Index: i, Nodes: p})
	}

	return out
}

func (f *fakeConsole) SetSegmentCount(k int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.count = k
}

func (f *fakeConsole) Start(_ context.Context, ids []string, opts session.StartOptions) error {
	return f.record(call{op: "start", ids: ids, opts: opts})
}

func (f *fakeConsole) Stop(_ context.Context, ids []string) error {
	return f.record(call{op: "stop", ids: ids})
}

func (f *fakeConsole) StartSegment(ctx context.Context, index int, opts session.StartOptions) error {
	if f.confirm != nil && !f.confirm.Confirm(ctx, session.Prompt{Action: session.ActionStartSegment, Segment: index}) {
		return session.ErrNotConfirmed
	}

	return f.record(call{op: "start_segment", index: index, opts: opts})
}

func (f *fakeConsole) StopSegment(_ context.Context, index int) error {
	return f.record(call{op: "stop_segment", index: index})
}

func (f *fakeConsole) StartRange(_ context.Context, from, to int, opts session.StartOptions) error {
	return f.record(call{op: "start_range", from: from, to: to, opts: opts})
}

func (f *fakeConsole) StopUnhealthy(context.Context) error {
	return f.record(call{op: "stop_unhealthy"})
}

func (f *fakeConsole) Parameters() []models.ParameterBinding {
	return []models.ParameterBinding{
		{ID: 1, Name: "temperature", Min: 10, Max: 40},
		{ID: 2, Name: "humidity", Min: 20, Max: 80},
	}
}

func (f *fakeConsole) ResolveAlert(ctx context.Context, id string, d session.Decision) error {
	if d == session.DecisionStopAllRunning && f.confirm != nil &&
		!f.confirm.Confirm(ctx, session.Prompt{Action: session.ActionStopAllRunning, Segment: -1}) {
		return session.ErrNotConfirmed
	}

	if err := f.record(call{op: "resolve", alert: id, dec: d}); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.pending {
		if f.pending[i].ID == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			break
		}
	}

	return nil
}

func (f *fakeConsole) Alerts() <-chan reconciler.Alert {
	return f.alerts
}

func (f *fakeConsole) PendingAlerts() []session.PendingAlert {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]session.PendingAlert(nil), f.pending...)
}

func (f *fakeConsole) ExportLog(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, "line\n")
	return int64(n), err
}

func (f *fakeConsole) ExportBackendLog(_ context.Context, w io.Writer, _ models.RunTimestamp) error {
	if err := f.record(call{op: "backend_log"}); err != nil {
		return err
	}

	_, err := io.WriteString(w, f.dump)

	return err
}

func (f *fakeConsole) OnConnectionChange(fn func(stream.State)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.onChange = fn
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}

	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m *Model, keys ...string) tea.Cmd {
	t.Helper()

	var cmd tea.Cmd
	for _, k := range keys {
		_, cmd = m.Update(key(k))
	}

	return cmd
}

// exec runs cmd and feeds its message back into the model.
func exec(t *testing.T, m *Model, cmd tea.Cmd) tea.Msg {
	t.Helper()
	require.NotNil(t, cmd)

	msg := cmd()
	m.Update(msg)

	return msg
}

func TestStartAndStopSelectedNode(t *testing.T) {
	t.Parallel()

	console := newFakeConsole()
	m := New(context.Background(), console, NewPrompter())

	exec(t, m, press(t, m, "s"))
	exec(t, m, press(t, m, "down", "x"))

	calls := console.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, call{op: "start", ids: []string{"A"}}, calls[0])
	assert.Equal(t, call{op: "stop", ids: []string{"B"}}, calls[1])
	assert.Equal(t, "stop B done", m.notice)
}

func TestFrequencyEntryAppliesToStart(t *testing.T) {
	t.Parallel()

	console := newFakeConsole()
	m := New(context.Background(), console, NewPrompter())

	press(t, m, "f")
	assert.Equal(t, modeFrequency, m.mode)

	press(t, m, "0", "1", ":", "0", "0", ":", "0", "0", "enter")
	assert.Equal(t, modeBrowse, m.mode)
	require.NotNil(t, m.frequency)
	assert.Equal(t, 3600, *m.frequency)

	exec(t, m, press(t, m, "s"))

	calls := console.recorded()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].opts.Frequency)
	assert.Equal(t, 3600, *calls[0].opts.Frequency)

	press(t, m, "f", "enter")
	assert.Nil(t, m.frequency)
}

func TestSegmentSelectionAndResize(t *testing.T) {
	t.Parallel()

	console := newFakeConsole()
	m := New(context.Background(), console, NewPrompter())
	require.Len(t, m.segments, 2)

	press(t, m, "]")
	assert.Equal(t, 1, m.segment)
	press(t, m, "]")
	assert.Equal(t, 0, m.segment)
	press(t, m, "[")
	assert.Equal(t, 1, m.segment)

	exec(t, m, press(t, m, "X"))
	assert.Equal(t, call{op: "stop_segment", index: 1}, console.recorded()[0])

	press(t, m, "+")
	assert.Len(t, m.segments, 3)
	press(t, m, "-", "-", "-")
	assert.Len(t, m.segments, 1)
	assert.Equal(t, 0, m.segment)
}

func TestBulkActionWaitsForConfirmation(t *testing.T) {
	t.Parallel()

	console := newFakeConsole()
	prompter := NewPrompter()
	console.confirm = prompter
	m := New(context.Background(), console, prompter)

	cmd := press(t, m, "S")
	results := make(chan tea.Msg, 1)

	go func() { results <- cmd() }()

	m.Update(listenForPrompt(prompter)())
	assert.Equal(t, modeConfirm, m.mode)
	assert.Contains(t, m.View(), "segment 1?")

	next := press(t, m, "y")
	assert.NotNil(t, next)
	assert.Equal(t, modeBrowse, m.mode)

	select {
	case msg := <-results:
		res, ok := msg.(resultMsg)
		require.True(t, ok)
		require.NoError(t, res.err)
	case <-time.After(2 * time.Second):
		t.Fatal("bulk action did not finish")
	}

	require.Len(t, console.recorded(), 1)
	assert.Equal(t, "start_segment", console.recorded()[0].op)
}

func TestBulkActionDeclined(t *testing.T) {
	t.Parallel()

	console := newFakeConsole()
	prompter := NewPrompter()
	console.confirm = prompter
	m := New(context.Background(), console, prompter)

	cmd := press(t, m, "S")
	results := make(chan tea.Msg, 1)

	go func() { results <- cmd() }()

	m.Update(listenForPrompt(prompter)())
	press(t, m, "n")

	msg := <-results
	m.Update(msg)

	assert.ErrorIs(t, msg.(resultMsg).err, session.ErrNotConfirmed)
	assert.Contains(t, m.View(), "cancelled")
	assert.Empty(t, console.recorded())
}

func TestPrompterHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, NewPrompter().Confirm(ctx, session.Prompt{Action: session.ActionStopAllRunning}))
}

func TestAlertResolution(t *testing.T) {
	t.Parallel()

	console := newFakeConsole()
	m := New(context.Background(), console, NewPrompter())

	console.raise(reconciler.Alert{ID: "a-1", NodeID: "B", StatusCode: 500})
	console.raise(reconciler.Alert{ID: "a-2", NodeID: "C", StatusCode: 503})

	_, next := m.Update(listenForAlert(console.Alerts())())
	require.NotNil(t, next)
	m.Update(next())

	assert.Equal(t, modeAlert, m.mode)
	assert.Contains(t, m.View(), "Node B reported status 500")

	exec(t, m, press(t, m, "a"))
	assert.Equal(t, modeAlert, m.mode)

	exec(t, m, press(t, m, "s"))
	assert.Equal(t, modeBrowse, m.mode)

	calls := console.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, call{op: "resolve", alert: "a-1", dec: session.DecisionAcknowledge}, calls[0])
	assert.Equal(t, call{op: "resolve", alert: "a-2", dec: session.DecisionStopAllRunning}, calls[1])
}

func TestDeclinedAlertStaysListed(t *testing.T) {
	t.Parallel()

	console := newFakeConsole()
	prompter := NewPrompter()
	console.confirm = prompter
	m := New(context.Background(), console, prompter)

	console.raise(reconciler.Alert{ID: "a-1", NodeID: "B", StatusCode: 500})
	m.Update(listenForAlert(console.Alerts())())
	require.Equal(t, modeAlert, m.mode)

	cmd := press(t, m, "s")
	results := make(chan tea.Msg, 1)

	go func() { results <- cmd() }()

	m.Update(listenForPrompt(prompter)())
	assert.Equal(t, modeConfirm, m.mode)
	assert.Empty(t, m.alerts)

	press(t, m, "n")

	select {
	case msg := <-results:
		m.Update(msg)
		require.ErrorIs(t, msg.(resultMsg).err, session.ErrNotConfirmed)
	case <-time.After(2 * time.Second):
		t.Fatal("resolution did not finish")
	}

	assert.Equal(t, modeAlert, m.mode)
	require.Len(t, m.alerts, 1)
	assert.Equal(t, "a-1", m.alerts[0].ID)
	assert.Contains(t, m.View(), "Node B reported status 500")

	exec(t, m, press(t, m, "a"))
	assert.Equal(t, modeBrowse, m.mode)
	assert.Empty(t, console.PendingAlerts())
}

func TestRangeEntryStartsRange(t *testing.T) {
	t.Parallel()

	console := newFakeConsole()
	m := New(context.Background(), console, NewPrompter())

	press(t, m, "r")
	assert.Equal(t, modeRange, m.mode)

	exec(t, m, press(t, m, "2", "-", "3", "enter"))
	assert.Equal(t, modeBrowse, m.mode)

	calls := console.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, call{op: "start_range", from: 2, to: 3}, calls[0])

	cmd := press(t, m, "r", "x", "enter")
	assert.Nil(t, cmd)
	require.ErrorIs(t, m.err, errBadRange)
	assert.Len(t, console.recorded(), 1)
}

func TestParseRange(t *testing.T) {
	t.Parallel()

	from, to, err := parseRange("4")
	require.NoError(t, err)
	assert.Equal(t, 4, from)
	assert.Equal(t, 4, to)

	from, to, err = parseRange(" 1 - 9 ")
	require.NoError(t, err)
	assert.Equal(t, 1, from)
	assert.Equal(t, 9, to)

	_, _, err = parseRange("1-")
	require.ErrorIs(t, err, errBadRange)
}

func TestParameterEntryAppliesToStart(t *testing.T) {
	t.Parallel()

	console := newFakeConsole()
	m := New(context.Background(), console, NewPrompter())

	press(t, m, "p")
	assert.Equal(t, modeParams, m.mode)

	keys := make([]string, 0, 16)
	for _, r := range "humidity=5:15" {
		keys = append(keys, string(r))
	}

	press(t, m, append(keys, "enter")...)
	require.NoError(t, m.err)
	assert.Equal(t, "parameters: 1 selected, 1 overridden", m.notice)

	exec(t, m, press(t, m, "s"))

	calls := console.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, []int{2}, calls[0].opts.ParameterIDs)
	assert.Equal(t, map[int]params.Override{2: {Min: "5", Max: "15"}}, calls[0].opts.Overrides)

	press(t, m, "p", "w", "enter")
	require.ErrorIs(t, m.err, params.ErrUnknownParameter)
	assert.Equal(t, []int{2}, m.paramIDs)

	press(t, m, "p", "enter")
	assert.Nil(t, m.paramIDs)
	assert.Nil(t, m.overrides)
}

func TestStopUnhealthyKey(t *testing.T) {
	t.Parallel()

	console := newFakeConsole()
	m := New(context.Background(), console, NewPrompter())

	exec(t, m, press(t, m, "u"))

	calls := console.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "stop_unhealthy", calls[0].op)
	assert.Equal(t, "stop unhealthy done", m.notice)
}

func TestExportBackendLog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "backend.log")
	console := newFakeConsole()
	m := New(context.Background(), console, NewPrompter(), WithBackendLogPath(path))

	exec(t, m, press(t, m, "L"))
	require.NoError(t, m.err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, console.dump, string(data))

	console.err = errors.New("backend down")
	exec(t, m, press(t, m, "L"))
	require.Error(t, m.err)
}

func TestConnectionIndicatorFollowsStream(t *testing.T) {
	t.Parallel()

	console := newFakeConsole()
	m := New(context.Background(), console, NewPrompter())
	require.NotNil(t, console.onChange)

	console.onChange(stream.StateReconnecting)

	_, next := m.Update(listenForConnection(m.conn)())
	require.NotNil(t, next)
	assert.Equal(t, stream.StateReconnecting, m.view.Connection)
	assert.Contains(t, m.View(), string(stream.StateReconnecting))
}

func TestExportLog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stream.log")
	m := New(context.Background(), newFakeConsole(), NewPrompter(), WithExportPath(path))

	press(t, m, "l")
	require.NoError(t, m.err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}

func TestViewRendersTable(t *testing.T) {
	t.Parallel()

	m := New(context.Background(), newFakeConsole(), NewPrompter())
	out := m.View()

	assert.Contains(t, out, "nodesim console")
	assert.Contains(t, out, "01:00:00")
	assert.Contains(t, out, "segment 1/2")
	assert.Equal(t, "5/0 7/2", renderSeries([]reconciler.Sample{{Success: 5}, {Success: 7, Failure: 2}}))
}

func TestQuit(t *testing.T) {
	t.Parallel()

	m := New(context.Background(), newFakeConsole(), NewPrompter())
	cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
