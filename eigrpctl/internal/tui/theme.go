// Package tui provides the shared palette and styles for eigrpctl output.
package tui

import "github.com/charmbracelet/lipgloss"

// Colors.
var (
	ColorPrimary   = lipgloss.Color("#0EA5E9") // sky
	ColorSecondary = lipgloss.Color("#6366F1") // indigo
	ColorAccent    = lipgloss.Color("#F59E0B") // amber

	ColorSuccess = lipgloss.Color("#10B981") // emerald
	ColorWarning = lipgloss.Color("#F59E0B") // amber
	ColorError   = lipgloss.Color("#EF4444") // red
	ColorMuted   = lipgloss.Color("#6B7280") // gray-500
	ColorText    = lipgloss.Color("#E5E7EB") // gray-200
	ColorSubtle  = lipgloss.Color("#9CA3AF") // gray-400
)

// Shared styles used by tables and the dashboard.
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary)

	Subtitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	Description = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	Selected = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	Dimmed = lipgloss.NewStyle().
		Foreground(ColorMuted)

	Success = lipgloss.NewStyle().
		Foreground(ColorSuccess)

	// ErrorStyle avoids colliding with the builtin error.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	Help = lipgloss.NewStyle().
		Foreground(ColorMuted)

	// TableHeader styles table header cells.
	TableHeader = lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Bold(true).
			Padding(0, 1)

	// TableCell styles table body cells.
	TableCell = lipgloss.NewStyle().
			Foreground(ColorText).
			Padding(0, 1)

	ActiveDot = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Render("●")

	InactiveDot = lipgloss.NewStyle().
			Foreground(ColorError).
			Render("●")

	WarnDot = lipgloss.NewStyle().
		Foreground(ColorWarning).
		Render("●")
)

// StatusDot returns a colored dot for a reachable or unreachable daemon.
func StatusDot(connected bool, stale bool) string {
	if stale {
		return WarnDot
	}
	if connected {
		return ActiveDot
	}
	return InactiveDot
}

// StatusText returns a colored status label.
func StatusText(connected bool, stale bool) string {
	if stale {
		return WarningStyle.Render("stale")
	}
	if connected {
		return Success.Render("connected")
	}
	return ErrorStyle.Render("disconnected")
}

// LinkStyle colors an interface link state label.
func LinkStyle(state string) lipgloss.Style {
	switch state {
	case "up", "active":
		return lipgloss.NewStyle().Foreground(ColorSuccess)
	case "down":
		return lipgloss.NewStyle().Foreground(ColorError)
	case "passive":
		return lipgloss.NewStyle().Foreground(ColorMuted)
	default:
		return lipgloss.NewStyle().Foreground(ColorText)
	}
}

// EventStyle colors a dashboard event by kind.
func EventStyle(kind string) lipgloss.Style {
	switch kind {
	case "UP":
		return lipgloss.NewStyle().Foreground(ColorSuccess)
	case "DOWN":
		return lipgloss.NewStyle().Foreground(ColorError)
	case "ACTIVE":
		return lipgloss.NewStyle().Foreground(ColorWarning)
	default:
		return lipgloss.NewStyle().Foreground(ColorText)
	}
}
