package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amurg-ai/eigrpd/eigrpctl/internal/view"
)

type fakeFetcher struct {
	snap Snapshot
	err  error
}

func (f *fakeFetcher) Fetch(context.Context) (Snapshot, error) { return f.snap, f.err }

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func nbr(addr string) view.Neighbor {
	return view.Neighbor{Family: "inet", AS: 1, Address: addr, Interface: "em0", Uptime: "00:00:01"}
}

func route(prefix string) view.Route {
	return view.Route{Family: "inet", AS: 1, Prefix: prefix, Active: true}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(Model)
	require.True(t, ok)
	return mm, cmd
}

func TestDiff(t *testing.T) {
	prev := Snapshot{
		Neighbors: []view.Neighbor{nbr("10.0.0.2"), nbr("10.0.0.3")},
		Active:    []view.Route{route("10.1.0.0/16")},
	}
	next := Snapshot{
		At:        t0,
		Neighbors: []view.Neighbor{nbr("10.0.0.3"), nbr("10.0.0.4")},
		Active:    []view.Route{route("10.2.0.0/16"), route("10.2.0.0/16")},
	}

	evs := diff(prev, next)
	require.Len(t, evs, 4)
	assert.Equal(t, Event{At: t0, Kind: "UP", Detail: "neighbor inet/1 10.0.0.4 em0"}, evs[0])
	assert.Equal(t, Event{At: t0, Kind: "DOWN", Detail: "neighbor inet/1 10.0.0.2 em0"}, evs[1])
	assert.Equal(t, Event{At: t0, Kind: "ACTIVE", Detail: "route inet/1 10.2.0.0/16"}, evs[2])
	assert.Equal(t, Event{At: t0, Kind: "PASSIVE", Detail: "route inet/1 10.1.0.0/16"}, evs[3])

	assert.Empty(t, diff(next, next))
}

func TestModel_SnapshotAndEvents(t *testing.T) {
	m := NewModel(Options{Socket: "/tmp/eigrpd.sock"})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Contains(t, m.View(), "connecting to /tmp/eigrpd.sock")

	first := Snapshot{At: t0, Neighbors: []view.Neighbor{nbr("10.0.0.2")}}
	m, _ = update(t, m, SnapshotMsg{Snapshot: first})
	assert.Empty(t, m.events.lines, "first snapshot is the baseline")
	v := m.View()
	assert.Contains(t, v, "10.0.0.2")
	assert.Contains(t, v, "No interfaces")

	second := Snapshot{At: t0.Add(time.Second)}
	m, _ = update(t, m, SnapshotMsg{Snapshot: second})
	require.Len(t, m.events.lines, 1)
	assert.Contains(t, m.events.lines[0], "DOWN")
	assert.Contains(t, m.events.lines[0], "10.0.0.2")
}

func TestModel_FetchError(t *testing.T) {
	m := NewModel(Options{Socket: "/tmp/eigrpd.sock"})
	m.now = func() time.Time { return t0 }
	m, _ = update(t, m, SnapshotMsg{Snapshot: Snapshot{At: t0}})
	m, _ = update(t, m, FetchErrMsg{Err: errors.New("connection refused")})

	assert.False(t, m.header.connected)
	require.Len(t, m.events.lines, 1)
	assert.Contains(t, m.events.lines[0], "daemon unreachable")
	assert.Contains(t, m.View(), "connection refused")

	// Repeated failures are reported once.
	m, _ = update(t, m, FetchErrMsg{Err: errors.New("connection refused")})
	assert.Len(t, m.events.lines, 1)
}

func TestModel_Refresh(t *testing.T) {
	f := &fakeFetcher{snap: Snapshot{At: t0}}
	m := NewModel(Options{Fetcher: f})
	msg := m.Refresh()()
	assert.Equal(t, SnapshotMsg{Snapshot: Snapshot{At: t0}}, msg)

	f.err = errors.New("boom")
	assert.Equal(t, FetchErrMsg{Err: f.err}, m.Refresh()())

	assert.Nil(t, NewModel(Options{}).Refresh())
}

func TestModel_Keys(t *testing.T) {
	m := NewModel(Options{})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, PanelInterfaces, m.ActivePanel())
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, PanelNeighbors, m.ActivePanel())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	assert.Contains(t, m.View(), "Keyboard Shortcuts")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, m.Quitting())
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestModel_Cursor(t *testing.T) {
	m := NewModel(Options{})
	m, _ = update(t, m, SnapshotMsg{Snapshot: Snapshot{Neighbors: []view.Neighbor{nbr("10.0.0.2"), nbr("10.0.0.3")}}})
	down := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")}
	m, _ = update(t, m, down)
	m, _ = update(t, m, down)
	assert.Equal(t, 1, m.neighbors.cursor)

	m, _ = update(t, m, SnapshotMsg{Snapshot: Snapshot{Neighbors: []view.Neighbor{nbr("10.0.0.2")}}})
	assert.Equal(t, 0, m.neighbors.cursor, "cursor clamps when rows shrink")
}

func TestHeader_Stale(t *testing.T) {
	h := headerModel{connected: true, snap: Snapshot{At: t0}}
	assert.False(t, h.stale(t0.Add(5*time.Second), 2*time.Second))
	assert.True(t, h.stale(t0.Add(7*time.Second), 2*time.Second))
	h.connected = false
	assert.False(t, h.stale(t0.Add(time.Hour), 2*time.Second))
}
