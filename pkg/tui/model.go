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

// Package tui is the interactive operator console for one session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/carverauto/nodesim/pkg/controller"
	"github.com/carverauto/nodesim/pkg/frequency"
	"github.com/carverauto/nodesim/pkg/models"
	"github.com/carverauto/nodesim/pkg/params"
	"github.com/carverauto/nodesim/pkg/reconciler"
	"github.com/carverauto/nodesim/pkg/segment"
	"github.com/carverauto/nodesim/pkg/session"
	"github.com/carverauto/nodesim/pkg/stream"
)

// Console is the part of a session the operator console drives.
type Console interface {
	View() session.View
	Segments() []segment.Segment
	SetSegmentCount(k int)
	Start(ctx context.Context, ids []string, opts session.StartOptions) error
	Stop(ctx context.Context, ids []string) error
	StartSegment(ctx context.Context, index int, opts session.StartOptions) error
	StopSegment(ctx context.Context, index int) error
	StartRange(ctx context.Context, from, to int, opts session.StartOptions) error
	StopUnhealthy(ctx context.Context) error
	Parameters() []models.ParameterBinding
	ResolveAlert(ctx context.Context, id string, d session.Decision) error
	Alerts() <-chan reconciler.Alert
	PendingAlerts() []session.PendingAlert
	ExportLog(w io.Writer) (int64, error)
	ExportBackendLog(ctx context.Context, w io.Writer, ts models.RunTimestamp) error
	OnConnectionChange(fn func(stream.State))
}

var errBadRange = errors.New("range must be from-to")

type mode int

const (
	modeBrowse mode = iota
	modeFrequency
	modeRange
	modeParams
	modeConfirm
	modeAlert
)

const (
	refreshInterval = time.Second
	tableHeight     = 15
	chromeHeight    = 12
	maxSegments     = 64
	seriesShown     = 10
	connBuffer      = 8
)

type (
	tickMsg   time.Time
	alertMsg  reconciler.Alert
	connMsg   stream.State
	resultMsg struct {
		action string
		err    error
		// alertID is set when the action resolved an alert.
		alertID string
	}
)

// Model is the bubbletea model of the operator console.
type Model struct {
	ctx      context.Context
	console  Console
	prompter *Prompter
	styles   styles

	table table.Model
	input textinput.Model

	view      session.View
	segments  []segment.Segment
	segment   int
	frequency *int
	paramIDs  []int
	overrides map[int]params.Override

	mode      mode
	prompt    *promptRequest
	alerts    []session.PendingAlert
	resolving map[string]struct{}
	conn      chan stream.State

	notice         string
	err            error
	exportPath     string
	backendLogPath string
}

// Option configures a Model.
type Option func(*Model)

// WithExportPath sets the file the stream log is written to on "l".
func WithExportPath(path string) Option {
	return func(m *Model) { m.exportPath = path }
}

// WithBackendLogPath sets the file the backend log dump is written to on "L".
func WithBackendLogPath(path string) Option {
	return func(m *Model) { m.backendLogPath = path }
}

// New creates the console model. prompter must be the session's Confirmer.
func New(ctx context.Context, console Console, prompter *Prompter, opts ...Option) *Model {
	columns := []table.Column{
		{Title: "Node", Width: 24},
		{Title: "Platform", Width: 8},
		{Title: "Protocol", Width: 8},
		{Title: "Frequency", Width: 9},
		{Title: "Status", Width: 9},
		{Title: "Health", Width: 7},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(tableHeight),
	)
	t.SetStyles(tableStyles())

	in := textinput.New()
	in.Placeholder = "hh:mm:ss"
	in.CharLimit = 12
	in.Width = 12
	in.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(draculaCyan))

	m := &Model{
		ctx:            ctx,
		console:        console,
		prompter:       prompter,
		styles:         newStyles(),
		table:          t,
		input:          in,
		resolving:      make(map[string]struct{}),
		conn:           make(chan stream.State, connBuffer),
		exportPath:     "nodesim-stream.log",
		backendLogPath: "nodesim-backend.log",
	}

	for _, opt := range opts {
		opt(m)
	}

	console.OnConnectionChange(func(st stream.State) {
		select {
		case m.conn <- st:
		default:
		}
	})

	m.refresh()

	return m
}

// Run drives the console until the operator quits or ctx is done.
func Run(ctx context.Context, console Console, prompter *Prompter, opts ...Option) error {
	p := tea.NewProgram(New(ctx, console, prompter, opts...), tea.WithAltScreen(), tea.WithContext(ctx))

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}

	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		tick(),
		listenForPrompt(m.prompter),
		listenForAlert(m.console.Alerts()),
		listenForConnection(m.conn),
	)
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func listenForAlert(alerts <-chan reconciler.Alert) tea.Cmd {
	return func() tea.Msg {
		a, ok := <-alerts
		if !ok {
			return nil
		}

		return alertMsg(a)
	}
}

func listenForConnection(states <-chan stream.State) tea.Cmd {
	return func() tea.Msg {
		return connMsg(<-states)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if h := msg.Height - chromeHeight; h > 3 {
			m.table.SetHeight(h)
		}

		return m, nil
	case tickMsg:
		m.refresh()
		return m, tick()
	case promptMsg:
		req := promptRequest(msg)
		m.prompt = &req
		m.mode = modeConfirm

		return m, nil
	case alertMsg:
		m.refresh()
		m.showAlerts()

		return m, listenForAlert(m.console.Alerts())
	case connMsg:
		m.view.Connection = stream.State(msg)
		return m, listenForConnection(m.conn)
	case resultMsg:
		m.err = msg.err
		if msg.err == nil {
			m.notice = msg.action + " done"
		} else {
			m.notice = ""
		}

		if msg.alertID != "" {
			delete(m.resolving, msg.alertID)
		}

		// An alert whose resolution was declined or failed is listed again.
		m.refresh()
		m.showAlerts()

		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.answer(false)
		return m, tea.Quit
	}

	switch m.mode {
	case modeFrequency, modeRange, modeParams:
		return m.handleInputKey(msg)
	case modeConfirm:
		return m.handleConfirmKey(msg)
	case modeAlert:
		return m.handleAlertKey(msg)
	default:
		return m.handleBrowseKey(msg)
	}
}

func (m *Model) handleBrowseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "s", "enter":
		return m.startSelected()
	case "x":
		return m.stopSelected()
	case "S":
		idx, opts := m.segment, m.startOptions()

		return m, m.run(fmt.Sprintf("start segment %d", idx+1), func(ctx context.Context) error {
			return m.console.StartSegment(ctx, idx, opts)
		})
	case "X":
		idx := m.segment

		return m, m.run(fmt.Sprintf("stop segment %d", idx+1), func(ctx context.Context) error {
			return m.console.StopSegment(ctx, idx)
		})
	case "tab", "]":
		m.moveSegment(1)
		return m, nil
	case "shift+tab", "[":
		m.moveSegment(-1)
		return m, nil
	case "+":
		m.resizeSegments(1)
		return m, nil
	case "-":
		m.resizeSegments(-1)
		return m, nil
	case "u":
		return m, m.run("stop unhealthy", m.console.StopUnhealthy)
	case "f":
		return m, m.openInput(modeFrequency, "hh:mm:ss", 12)
	case "r":
		return m, m.openInput(modeRange, "from-to", 12)
	case "p":
		return m, m.openInput(modeParams, "name=min:max ...", 120)
	case "l":
		m.exportLog()
		return m, nil
	case "L":
		return m, m.exportBackendLog()
	case "a":
		if len(m.alerts) > 0 {
			m.mode = modeAlert
		}

		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m *Model) openInput(md mode, placeholder string, limit int) tea.Cmd {
	m.mode = md
	m.input.Placeholder = placeholder
	m.input.CharLimit = limit
	m.input.Width = min(limit, 48)
	m.input.SetValue("")
	m.input.Focus()

	return textinput.Blink
}

func (m *Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	//nolint:exhaustive // Default case handles all unlisted keys
	switch msg.Type {
	case tea.KeyEsc:
		m.input.Blur()
		m.mode = modeBrowse

		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		submitted := m.mode
		m.input.Blur()
		m.mode = modeBrowse

		switch submitted {
		case modeRange:
			return m, m.startRange(value)
		case modeParams:
			m.setParameters(value)
		default:
			m.setFrequency(value)
		}

		return m, nil
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)

		return m, cmd
	}
}

func (m *Model) setFrequency(value string) {
	if value == "" {
		m.frequency = nil
		m.notice = "frequency: node default"

		return
	}

	secs := frequency.Parse(value).Total()
	m.frequency = &secs
	m.notice = "frequency: " + frequency.ToHMS(secs).String()
}

func (m *Model) setParameters(value string) {
	ids, overrides, err := params.ParseForm(m.console.Parameters(), value)
	if err != nil {
		m.err = err
		return
	}

	m.err = nil
	m.paramIDs = ids
	m.overrides = overrides

	if ids == nil {
		m.notice = "parameters: all, stored bounds"
		return
	}

	m.notice = fmt.Sprintf("parameters: %d selected, %d overridden", len(ids), len(overrides))
}

func (m *Model) startRange(value string) tea.Cmd {
	from, to, err := parseRange(value)
	if err != nil {
		m.err = err
		return nil
	}

	opts := m.startOptions()

	return m.run(fmt.Sprintf("start nodes %d-%d", from, to), func(ctx context.Context) error {
		return m.console.StartRange(ctx, from, to, opts)
	})
}

// parseRange reads "from-to" or a single position.
func parseRange(value string) (int, int, error) {
	lo, hi, ok := strings.Cut(value, "-")
	if !ok {
		hi = lo
	}

	from, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", errBadRange, value)
	}

	to, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", errBadRange, value)
	}

	return from, to, nil
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.answer(true)
	case "n", "N", "esc":
		m.answer(false)
	default:
		return m, nil
	}

	return m, listenForPrompt(m.prompter)
}

func (m *Model) handleAlertKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if len(m.alerts) == 0 {
		m.mode = modeBrowse
		return m, nil
	}

	alert := m.alerts[0]

	var decision session.Decision

	switch msg.String() {
	case "a":
		decision = session.DecisionAcknowledge
	case "s":
		decision = session.DecisionStopAllRunning
	case "esc":
		m.mode = modeBrowse
		return m, nil
	default:
		return m, nil
	}

	m.resolving[alert.ID] = struct{}{}
	m.alerts = m.alerts[1:]
	m.afterDialog()

	cmd := m.run("resolve alert for "+alert.NodeID, func(ctx context.Context) error {
		return m.console.ResolveAlert(ctx, alert.ID, decision)
	})

	return m, func() tea.Msg {
		res := cmd().(resultMsg)
		res.alertID = alert.ID

		return res
	}
}

// answer replies to the pending prompt, if any.
func (m *Model) answer(ok bool) {
	if m.prompt == nil {
		return
	}

	m.prompt.reply <- ok
	m.prompt = nil
	m.afterDialog()
}

// showAlerts opens the alert dialog when the operator is browsing.
func (m *Model) showAlerts() {
	if m.mode == modeBrowse && len(m.alerts) > 0 {
		m.mode = modeAlert
	}
}

func (m *Model) afterDialog() {
	switch {
	case m.prompt != nil:
		m.mode = modeConfirm
	case len(m.alerts) > 0:
		m.mode = modeAlert
	default:
		m.mode = modeBrowse
	}
}

func (m *Model) startSelected() (tea.Model, tea.Cmd) {
	id, ok := m.selected()
	if !ok {
		return m, nil
	}

	opts := m.startOptions()

	return m, m.run("start "+id, func(ctx context.Context) error {
		return m.console.Start(ctx, []string{id}, opts)
	})
}

func (m *Model) stopSelected() (tea.Model, tea.Cmd) {
	id, ok := m.selected()
	if !ok {
		return m, nil
	}

	return m, m.run("stop "+id, func(ctx context.Context) error {
		return m.console.Stop(ctx, []string{id})
	})
}

func (m *Model) startOptions() session.StartOptions {
	return session.StartOptions{
		Frequency:    m.frequency,
		Overrides:    m.overrides,
		ParameterIDs: m.paramIDs,
	}
}

// run executes fn off the update loop; commands may block on confirmation.
func (m *Model) run(action string, fn func(ctx context.Context) error) tea.Cmd {
	m.notice = action + "..."
	m.err = nil

	return func() tea.Msg {
		return resultMsg{action: action, err: fn(m.ctx)}
	}
}

func (m *Model) selected() (string, bool) {
	row := m.table.SelectedRow()
	if len(row) == 0 {
		return "", false
	}

	return row[0], true
}

func (m *Model) moveSegment(delta int) {
	if len(m.segments) == 0 {
		return
	}

	m.segment = (m.segment + delta + len(m.segments)) % len(m.segments)
}

func (m *Model) resizeSegments(delta int) {
	k := len(m.segments)
	if len(m.segments) > 0 {
		k = 0

		for _, s := range m.segments {
			if s.Platform == m.segments[0].Platform {
				k++
			}
		}
	}

	k += delta
	if k < 1 || k > maxSegments {
		return
	}

	m.console.SetSegmentCount(k)
	m.refresh()
}

func (m *Model) exportLog() {
	f, err := os.Create(m.exportPath)
	if err != nil {
		m.err = err
		return
	}
	defer func() { _ = f.Close() }()

	n, err := m.console.ExportLog(f)
	if err != nil {
		m.err = err
		return
	}

	m.err = nil
	m.notice = fmt.Sprintf("wrote %d bytes to %s", n, m.exportPath)
}

func (m *Model) exportBackendLog() tea.Cmd {
	path := m.backendLogPath

	return m.run("backend log to "+path, func(ctx context.Context) error {
		f, err := os.Create(path)
		if err != nil {
			return err
		}

		if err := m.console.ExportBackendLog(ctx, f, ""); err != nil {
			_ = f.Close()
			return err
		}

		return f.Close()
	})
}

func (m *Model) refresh() {
	m.view = m.console.View()
	m.segments = m.console.Segments()

	m.alerts = m.alerts[:0]
	for _, a := range m.console.PendingAlerts() {
		if _, busy := m.resolving[a.ID]; !busy {
			m.alerts = append(m.alerts, a)
		}
	}

	if m.segment >= len(m.segments) {
		m.segment = 0
	}

	rows := make([]table.Row, 0, len(m.view.Nodes))
	for _, n := range m.view.Nodes {
		health := "ok"
		if n.Unhealthy {
			health = "fault"
		}

		rows = append(rows, table.Row{
			n.Node.NodeID,
			string(n.Node.Platform),
			string(n.Node.Protocol),
			frequency.ToHMS(n.Node.Frequency).String(),
			string(n.Status),
			health,
		})
	}

	m.table.SetRows(rows)
}

func (m *Model) View() string {
	var b strings.Builder

	c := m.view.Counters

	b.WriteString(m.styles.title.Render("nodesim console"))
	b.WriteString("  stream: " + m.styles.connection(m.view.Connection) + "\n\n")
	b.WriteString(fmt.Sprintf("success %d  failure %d  malformed %d  total %d  running %d\n",
		c.Success, c.Failure, c.Malformed, c.Total, len(c.Running)))
	b.WriteString(m.styles.help.Render("per interval: "+renderSeries(c.Series)) + "\n")
	b.WriteString(m.renderSegment() + "\n\n")
	b.WriteString(m.table.View() + "\n\n")

	switch m.mode {
	case modeFrequency:
		b.WriteString(m.styles.dialog.Render("Frequency for next start\n"+m.input.View()) + "\n")
	case modeRange:
		b.WriteString(m.styles.dialog.Render("Start catalog positions\n"+m.input.View()) + "\n")
	case modeParams:
		b.WriteString(m.styles.dialog.Render("Parameters for next start (blank for all)\n"+m.input.View()) + "\n")
	case modeConfirm:
		if m.prompt != nil {
			b.WriteString(m.styles.dialog.Render(m.prompt.prompt.String()+"  [y/n]") + "\n")
		}
	case modeAlert:
		if len(m.alerts) > 0 {
			a := m.alerts[0]
			b.WriteString(m.styles.dialog.Render(fmt.Sprintf(
				"Node %s reported status %d %s (x%d)\n[a] acknowledge  [s] stop all running  [esc] later  (%d pending)",
				a.NodeID, a.StatusCode, a.Detail, a.Count, len(m.alerts))) + "\n")
		}
	case modeBrowse:
	}

	if m.err != nil {
		b.WriteString(m.styles.err.Render(describe(m.err)) + "\n")
	} else if m.notice != "" {
		b.WriteString(m.styles.notice.Render(m.notice) + "\n")
	}

	b.WriteString(m.styles.help.Render(
		"s start  x stop  S/X segment  [/] select segment  +/- segments  r range  u stop unhealthy\n"+
			"f frequency  p parameters  l stream log  L backend log  a alerts  q quit"))

	return m.styles.app.Render(b.String())
}

func (m *Model) renderSegment() string {
	if len(m.segments) == 0 {
		return "no segments"
	}

	s := m.segments[m.segment]
	label := fmt.Sprintf("segment %d/%d: %d nodes", m.segment+1, len(m.segments), len(s.Nodes))

	if s.Platform != "" {
		label += " (" + string(s.Platform) + ")"
	}

	if m.frequency != nil {
		label += "  frequency " + frequency.ToHMS(*m.frequency).String()
	}

	return label
}

func renderSeries(series []reconciler.Sample) string {
	if len(series) == 0 {
		return "-"
	}

	if len(series) > seriesShown {
		series = series[len(series)-seriesShown:]
	}

	parts := make([]string, 0, len(series))
	for _, s := range series {
		parts = append(parts, fmt.Sprintf("%d/%d", s.Success, s.Failure))
	}

	return strings.Join(parts, " ")
}

func describe(err error) string {
	var cmdErr *controller.CommandError

	switch {
	case errors.Is(err, session.ErrNotConfirmed):
		return "cancelled"
	case errors.As(err, &cmdErr):
		return fmt.Sprintf("%s failed for %d nodes: %v", cmdErr.Kind, len(cmdErr.NodeIDs), cmdErr.Err)
	default:
		return err.Error()
	}
}
