package dashboard

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amurg-ai/eigrpd/eigrpctl/internal/tui"
	"github.com/amurg-ai/eigrpd/eigrpctl/internal/view"
)

const maxPanelRows = 10

// listModel is a cursor over table rows.
type listModel struct {
	rows   [][]string
	cursor int
}

func (l *listModel) set(rows [][]string) {
	l.rows = rows
	if l.cursor >= len(l.rows) {
		l.cursor = max(0, len(l.rows)-1)
	}
}

func (l listModel) Update(msg tea.Msg) (listModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "j", "down":
			if l.cursor < len(l.rows)-1 {
				l.cursor++
			}
		case "k", "up":
			if l.cursor > 0 {
				l.cursor--
			}
		case "G":
			l.cursor = max(0, len(l.rows)-1)
		case "g":
			l.cursor = 0
		}
	}
	return l, nil
}

// render draws the rows with fixed widths. Column stateCol, when >= 0, is
// colored with tui.LinkStyle.
func (l listModel) render(headers []string, widths []int, stateCol int, empty string) string {
	if len(l.rows) == 0 {
		return tui.Dimmed.Render("  " + empty)
	}

	headerStyle := lipgloss.NewStyle().Foreground(tui.ColorSubtle).Bold(true)
	var b strings.Builder
	b.WriteString("  ")
	for i, h := range headers {
		b.WriteString(headerStyle.Render(pad(h, widths[i])))
	}
	b.WriteString("\n")

	// Keep the cursor visible.
	start := 0
	if l.cursor >= maxPanelRows {
		start = l.cursor - maxPanelRows + 1
	}
	end := min(len(l.rows), start+maxPanelRows)

	for i := start; i < end; i++ {
		cursor := "  "
		style := lipgloss.NewStyle()
		if i == l.cursor {
			cursor = tui.Selected.Render("> ")
			style = style.Bold(true)
		}
		b.WriteString(cursor)
		for c, cell := range l.rows[i] {
			if c >= len(widths) {
				break
			}
			s := style
			if c == stateCol {
				s = tui.LinkStyle(cell)
			}
			b.WriteString(s.Render(pad(cell, widths[c])))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (l listModel) height() int {
	if len(l.rows) == 0 {
		return 1
	}
	return min(len(l.rows), maxPanelRows) + 1
}

func pad(s string, w int) string {
	if len(s) >= w {
		s = s[:max(w-1, 0)]
	}
	return fmt.Sprintf("%-*s", w, s)
}

var (
	neighborCols = []string{"AF", "AS", "ADDRESS", "IFACE", "HOLD", "UPTIME"}
	neighborW    = []int{7, 7, 28, 12, 6, 10}

	interfaceCols = []string{"AF", "AS", "INTERFACE", "ADDRESS", "LINK", "NBRS", "UPTIME"}
	interfaceW    = []int{7, 7, 12, 28, 9, 6, 10}
)

func neighborRows(ns []view.Neighbor) [][]string {
	rows := make([][]string, 0, len(ns))
	for _, n := range ns {
		rows = append(rows, n.Row())
	}
	return rows
}

func interfaceRows(is []view.Interface) [][]string {
	rows := make([][]string, 0, len(is))
	for _, i := range is {
		link := i.Link
		if i.Passive {
			link = "passive"
		}
		rows = append(rows, []string{i.Family, fmt.Sprint(i.AS), i.Name, i.Address, link,
			fmt.Sprint(i.Neighbors), i.Uptime})
	}
	return rows
}
