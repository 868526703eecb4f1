package dashboard

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/amurg-ai/eigrpd/eigrpctl/internal/tui"
)

type headerModel struct {
	socket    string
	connected bool
	lastErr   error
	snap      Snapshot
}

func (h headerModel) stale(now time.Time, interval time.Duration) bool {
	return h.connected && !h.snap.At.IsZero() && now.Sub(h.snap.At) > 3*interval
}

func (h headerModel) View(width int, stale bool) string {
	left := tui.Title.Render("eigrpd")

	dot := tui.StatusDot(h.connected, stale)
	label := tui.StatusText(h.connected, stale)
	right := fmt.Sprintf("%s  %s %s", h.socket, dot, label)

	var up, sent, recv uint32
	for _, i := range h.snap.Interfaces {
		if i.Link == "up" {
			up++
		}
	}
	for _, t := range h.snap.Traffic {
		for _, v := range t.Sent {
			sent += v
		}
		for _, v := range t.Recv {
			recv += v
		}
	}
	info := fmt.Sprintf("  Interfaces: %d/%d up   Neighbors: %d   Active: %d   Packets: %d sent / %d recv",
		up, len(h.snap.Interfaces), len(h.snap.Neighbors), len(h.snap.Active), sent, recv)
	if !h.snap.At.IsZero() {
		info += "   Updated: " + h.snap.At.Format("15:04:05")
	}
	if h.lastErr != nil {
		info += "\n  " + tui.ErrorStyle.Render(h.lastErr.Error())
	}

	headerStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorPrimary).
		Width(max(width-2, 0)).
		Padding(0, 1)

	firstRow := lipgloss.JoinHorizontal(lipgloss.Top,
		left,
		lipgloss.NewStyle().Width(max(width-lipgloss.Width(left)-lipgloss.Width(right)-6, 1)).Render(""),
		right,
	)

	return headerStyle.Render(firstRow + "\n" + tui.Description.Render(info))
}
