package tui

import (
	"github.com/charmbracelet/lipgloss"

	"taskdash/internal/task"
)

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#1d4ed8", Dark: "#5aa9ff"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#6b7280", Dark: "#6b7280"}

	colorRunning = lipgloss.AdaptiveColor{Light: "#b45309", Dark: "#f59e0b"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#15803d", Dark: "#4ade80"}
	colorFailed  = lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#f87171"}
	colorStopped = lipgloss.AdaptiveColor{Light: "#9a3412", Dark: "#fb923c"}
	colorCached  = lipgloss.AdaptiveColor{Light: "#0f766e", Dark: "#2dd4bf"}

	colorSelectedBg = lipgloss.AdaptiveColor{Light: "#e5e7eb", Dark: "#1f2937"}
	colorSelectedFg = lipgloss.AdaptiveColor{Light: "#111827", Dark: "#f9fafb"}
	colorStatusBg   = lipgloss.AdaptiveColor{Light: "#f1f5f9", Dark: "#111827"}

	titleStyle    = lipgloss.NewStyle().Bold(true)
	sectionStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	selectedStyle = lipgloss.NewStyle().Background(colorSelectedBg).Foreground(colorSelectedFg).Bold(true)
	pendingStyle  = lipgloss.NewStyle().Foreground(colorMuted).Faint(true)

	sidebarStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	outputStyle    = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	headerStyle    = lipgloss.NewStyle().Bold(true)
	statusBarStyle = lipgloss.NewStyle().Foreground(colorMuted).Background(colorStatusBg)
)

var groupColors = []lipgloss.AdaptiveColor{
	{Light: "#1d4ed8", Dark: "#60a5fa"},
	{Light: "#9d174d", Dark: "#f472b6"},
	{Light: "#15803d", Dark: "#4ade80"},
	{Light: "#b45309", Dark: "#f59e0b"},
	{Light: "#0f766e", Dark: "#2dd4bf"},
	{Light: "#6d28d9", Dark: "#a78bfa"},
}

func groupStyle(group int) lipgloss.Style {
	if group < 0 {
		return sectionStyle
	}
	return lipgloss.NewStyle().Foreground(groupColors[group%len(groupColors)])
}

func statusStyle(status task.Status) lipgloss.Style {
	switch {
	case status == task.StatusInProgress:
		return lipgloss.NewStyle().Foreground(colorRunning)
	case status == task.StatusSuccess:
		return lipgloss.NewStyle().Foreground(colorSuccess)
	case status == task.StatusFailure:
		return lipgloss.NewStyle().Foreground(colorFailed)
	case status == task.StatusStopped || status == task.StatusSkipped:
		return lipgloss.NewStyle().Foreground(colorStopped)
	case status.IsCache():
		return lipgloss.NewStyle().Foreground(colorCached)
	default:
		return lipgloss.NewStyle().Foreground(colorMuted)
	}
}

const (
	statusIconPending = "·"
	statusIconSuccess = "✔"
	statusIconFailed  = "✘"
	statusIconSkipped = "⏭"
	statusIconStopped = "■"
	statusIconCached  = "≡"
)

// statusIcon returns the glyph for a task row. In-progress rows show the
// current spinner frame instead.
func statusIcon(status task.Status, spin string) string {
	switch {
	case status == task.StatusInProgress:
		return spin
	case status == task.StatusSuccess:
		return statusIconSuccess
	case status == task.StatusFailure:
		return statusIconFailed
	case status == task.StatusSkipped:
		return statusIconSkipped
	case status == task.StatusStopped:
		return statusIconStopped
	case status.IsCache():
		return statusIconCached
	default:
		return statusIconPending
	}
}
