package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"

	"taskdash/internal/task"
)

type StatusBar struct {
	tasks *TasksList
	help  help.Model
}

func NewStatusBar(tasks *TasksList) *StatusBar {
	h := help.New()
	h.ShortSeparator = "  ·  "
	return &StatusBar{tasks: tasks, help: h}
}

func (b *StatusBar) Init() tea.Cmd { return nil }

func (b *StatusBar) RegisterActionHandler(*ActionQueue) {}

func (b *StatusBar) HandleEvent(tea.Msg) {}

func (b *StatusBar) Update(a Action) (Action, tea.Cmd) {
	if a.Kind == ActionResize {
		b.help.Width = a.Width
	}
	return Action{}, nil
}

func (b *StatusBar) Draw(f *Frame, area Rect) {
	if area.Empty() {
		return
	}
	line := b.summary() + "  " + b.help.ShortHelpView(keys.ShortHelp())
	f.Render(area, statusBarStyle.Width(area.Width).Render(fitWidth(line, area.Width)))
}

func (b *StatusBar) summary() string {
	counts := b.tasks.Counts()
	cached := counts[task.StatusLocalCache] + counts[task.StatusLocalCacheKeptExisting] + counts[task.StatusRemoteCache]
	parts := []string{
		statusStyle(task.StatusInProgress).Render(fmt.Sprintf("%d running", counts[task.StatusInProgress])),
		statusStyle(task.StatusSuccess).Render(fmt.Sprintf("%d succeeded", counts[task.StatusSuccess])),
		statusStyle(task.StatusFailure).Render(fmt.Sprintf("%d failed", counts[task.StatusFailure])),
	}
	if cached > 0 {
		parts = append(parts, statusStyle(task.StatusLocalCache).Render(fmt.Sprintf("%d cached", cached)))
	}
	if n := counts[task.StatusSkipped] + counts[task.StatusStopped]; n > 0 {
		parts = append(parts, statusStyle(task.StatusStopped).Render(fmt.Sprintf("%d stopped", n)))
	}
	if n := counts[task.StatusPending]; n > 0 {
		parts = append(parts, statusStyle(task.StatusPending).Render(fmt.Sprintf("%d pending", n)))
	}
	return " " + strings.Join(parts, "  ")
}
