package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/amurg-ai/eigrpd/eigrpctl/internal/tui"
	"github.com/amurg-ai/eigrpd/eigrpctl/internal/view"
)

const maxEventLines = 1000

// Event is a change observed between two polls.
type Event struct {
	At     time.Time
	Kind   string // UP, DOWN, ACTIVE, PASSIVE
	Detail string
}

func nbrKey(n view.Neighbor) string {
	return fmt.Sprintf("%s/%d %s %s", n.Family, n.AS, n.Address, n.Interface)
}

func routeKey(r view.Route) string {
	return fmt.Sprintf("%s/%d %s", r.Family, r.AS, r.Prefix)
}

// diff reports neighbors that came up or went down and prefixes that went
// active or back to passive between prev and next.
func diff(prev, next Snapshot) []Event {
	var out []Event
	at := next.At

	before := make(map[string]bool, len(prev.Neighbors))
	for _, n := range prev.Neighbors {
		before[nbrKey(n)] = true
	}
	after := make(map[string]bool, len(next.Neighbors))
	for _, n := range next.Neighbors {
		k := nbrKey(n)
		after[k] = true
		if !before[k] {
			out = append(out, Event{At: at, Kind: "UP", Detail: "neighbor " + k})
		}
	}
	for _, n := range prev.Neighbors {
		if k := nbrKey(n); !after[k] {
			out = append(out, Event{At: at, Kind: "DOWN", Detail: "neighbor " + k})
		}
	}

	wasActive := make(map[string]bool, len(prev.Active))
	for _, r := range prev.Active {
		wasActive[routeKey(r)] = true
	}
	isActive := make(map[string]bool, len(next.Active))
	for _, r := range next.Active {
		k := routeKey(r)
		if isActive[k] {
			continue
		}
		isActive[k] = true
		if !wasActive[k] {
			out = append(out, Event{At: at, Kind: "ACTIVE", Detail: "route " + k})
		}
	}
	for _, r := range prev.Active {
		k := routeKey(r)
		if !isActive[k] {
			isActive[k] = true
			out = append(out, Event{At: at, Kind: "PASSIVE", Detail: "route " + k})
		}
	}
	return out
}

type eventsModel struct {
	viewport   viewport.Model
	lines      []string
	autoScroll bool
}

func newEvents() eventsModel {
	return eventsModel{viewport: viewport.New(80, 8), autoScroll: true}
}

func (e *eventsModel) SetSize(width, height int) {
	e.viewport.Width = width
	e.viewport.Height = height
}

func (e *eventsModel) add(evs ...Event) {
	for _, ev := range evs {
		e.lines = append(e.lines, formatEvent(ev))
	}
	if len(e.lines) > maxEventLines {
		e.lines = e.lines[len(e.lines)-maxEventLines:]
	}
	e.viewport.SetContent(strings.Join(e.lines, "\n"))
	if e.autoScroll {
		e.viewport.GotoBottom()
	}
}

func formatEvent(ev Event) string {
	kind := tui.EventStyle(ev.Kind).Render(fmt.Sprintf("%-7s", ev.Kind))
	return fmt.Sprintf("  %s %s  %s", ev.At.Format("15:04:05"), kind, ev.Detail)
}

func (e eventsModel) Update(msg tea.Msg) (eventsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "G":
			e.autoScroll = true
			e.viewport.GotoBottom()
			return e, nil
		case "g":
			e.autoScroll = false
			e.viewport.GotoTop()
			return e, nil
		case "j", "down", "k", "up":
			e.autoScroll = false
		}
	}
	var cmd tea.Cmd
	e.viewport, cmd = e.viewport.Update(msg)
	return e, cmd
}

func (e eventsModel) View() string {
	if len(e.lines) == 0 {
		return tui.Dimmed.Render("  No changes yet")
	}
	return e.viewport.View()
}
