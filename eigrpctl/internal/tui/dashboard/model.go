// Package dashboard is the live eigrpctl monitor.
package dashboard

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amurg-ai/eigrpd/eigrpctl/internal/tui"
)

// Panel identifies which dashboard panel is focused.
type Panel int

const (
	PanelNeighbors Panel = iota
	PanelInterfaces
	PanelEvents
	panelCount
)

// SnapshotMsg carries a successful poll.
type SnapshotMsg struct {
	Snapshot Snapshot
}

// FetchErrMsg reports a failed poll.
type FetchErrMsg struct {
	Err error
}

// Model is the root dashboard TUI model.
type Model struct {
	fetcher  Fetcher
	interval time.Duration
	timeout  time.Duration

	header     headerModel
	neighbors  listModel
	interfaces listModel
	events     eventsModel
	help       helpModel
	spinner    spinner.Model

	loaded      bool
	activePanel Panel
	width       int
	height      int
	quitting    bool
	now         func() time.Time
}

// Options configures NewModel.
type Options struct {
	Socket   string
	Fetcher  Fetcher
	Interval time.Duration
	Timeout  time.Duration
}

// NewModel creates a dashboard model.
func NewModel(opts Options) Model {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = opts.Interval
	}
	return Model{
		fetcher:  opts.Fetcher,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		header:   headerModel{socket: opts.Socket},
		events:   newEvents(),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(tui.Selected)),
		now:      time.Now,
	}
}

// Refresh returns a command that polls the fetcher once.
func (m Model) Refresh() tea.Cmd {
	if m.fetcher == nil {
		return nil
	}
	f, timeout := m.fetcher, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		snap, err := f.Fetch(ctx)
		if err != nil {
			return FetchErrMsg{Err: err}
		}
		return SnapshotMsg{Snapshot: snap}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.Refresh())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.events.SetSize(max(msg.Width-4, 10), m.eventsHeight())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Tab):
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case key.Matches(msg, keys.Refresh):
			return m, m.Refresh()
		case key.Matches(msg, keys.Help):
			m.help.toggle()
			return m, nil
		}

	case SnapshotMsg:
		if m.loaded {
			m.events.add(diff(m.header.snap, msg.Snapshot)...)
		}
		m.loaded = true
		m.header.connected = true
		m.header.lastErr = nil
		m.header.snap = msg.Snapshot
		m.neighbors.set(neighborRows(msg.Snapshot.Neighbors))
		m.interfaces.set(interfaceRows(msg.Snapshot.Interfaces))
		m.events.SetSize(max(m.width-4, 10), m.eventsHeight())
		return m, nil

	case FetchErrMsg:
		if m.header.connected {
			m.events.add(Event{At: m.now(), Kind: "DOWN", Detail: "daemon unreachable"})
		}
		m.header.connected = false
		m.header.lastErr = msg.Err
		return m, nil

	case spinner.TickMsg:
		if m.loaded || m.header.lastErr != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.activePanel {
	case PanelNeighbors:
		m.neighbors, cmd = m.neighbors.Update(msg)
	case PanelInterfaces:
		m.interfaces, cmd = m.interfaces.Update(msg)
	case PanelEvents:
		m.events, cmd = m.events.Update(msg)
	}
	return m, cmd
}

func (m Model) View() string {
	if m.help.visible {
		return m.help.View()
	}

	stale := m.header.stale(m.now(), m.interval)
	headerView := m.header.View(m.width, stale)

	if !m.loaded && m.header.lastErr == nil {
		return lipgloss.JoinVertical(lipgloss.Left,
			headerView,
			"  "+m.spinner.View()+" "+tui.Dimmed.Render("connecting to "+m.header.socket),
			m.help.bar(),
		)
	}

	panel := func(p Panel, title, body string) string {
		style := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(tui.ColorMuted).
			Width(max(m.width-2, 0))
		if m.activePanel == p {
			style = style.BorderForeground(tui.ColorPrimary)
		}
		return style.Render(tui.Subtitle.Render(" "+title) + "\n" + body)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		headerView,
		panel(PanelNeighbors, "Neighbors", m.neighbors.render(neighborCols, neighborW, -1, "No neighbors")),
		panel(PanelInterfaces, "Interfaces", m.interfaces.render(interfaceCols, interfaceW, 4, "No interfaces")),
		panel(PanelEvents, "Events", m.events.View()),
		m.help.bar(),
	)
}

// ActivePanel returns the focused panel.
func (m Model) ActivePanel() Panel { return m.activePanel }

// Quitting returns true if the user quit.
func (m Model) Quitting() bool { return m.quitting }

func (m Model) eventsHeight() int {
	// Header, two list panels, their borders and the help bar.
	used := 5 + m.neighbors.height() + 3 + m.interfaces.height() + 3 + 3
	return max(m.height-used, 3)
}
