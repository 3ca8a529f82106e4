package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aymanbagabas/go-osc52/v2"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
)

// TerminalPane shows the selected task's screen or captured output.
type TerminalPane struct {
	tasks *TasksList
	queue *ActionQueue

	viewport   viewport.Model
	autoScroll bool
	header     string
	plain      string

	clipboard io.Writer
}

func NewTerminalPane(tasks *TasksList) *TerminalPane {
	return &TerminalPane{
		tasks:      tasks,
		viewport:   viewport.New(0, 0),
		autoScroll: true,
		clipboard:  os.Stderr,
	}
}

func (p *TerminalPane) Init() tea.Cmd { return nil }

func (p *TerminalPane) RegisterActionHandler(q *ActionQueue) { p.queue = q }

func (p *TerminalPane) HandleEvent(msg tea.Msg) {
	if p.queue == nil {
		return
	}
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.PageUp):
			p.queue.Push(Action{Kind: ActionScrollUp})
		case key.Matches(msg, keys.PageDown):
			p.queue.Push(Action{Kind: ActionScrollDown})
		case key.Matches(msg, keys.Top):
			p.queue.Push(Action{Kind: ActionScrollTop})
		case key.Matches(msg, keys.Bottom):
			p.queue.Push(Action{Kind: ActionScrollBottom})
		case key.Matches(msg, keys.Copy):
			p.queue.Push(Action{Kind: ActionCopy})
		}
	case tea.MouseMsg:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			p.queue.Push(Action{Kind: ActionScrollUp})
		case tea.MouseButtonWheelDown:
			p.queue.Push(Action{Kind: ActionScrollDown})
		}
	}
}

func (p *TerminalPane) Update(a Action) (Action, tea.Cmd) {
	switch a.Kind {
	case ActionResize:
		p.setSize(a.Width, a.Height)
		p.refresh()
	case ActionTick, ActionTaskSelected, ActionTasksChanged:
		if a.Kind == ActionTaskSelected {
			p.autoScroll = true
		}
		p.refresh()
	case ActionScrollUp:
		p.viewport.HalfPageUp()
		p.autoScroll = p.viewport.AtBottom()
	case ActionScrollDown:
		p.viewport.HalfPageDown()
		p.autoScroll = p.viewport.AtBottom()
	case ActionScrollTop:
		p.viewport.GotoTop()
		p.autoScroll = p.viewport.AtBottom()
	case ActionScrollBottom:
		p.viewport.GotoBottom()
		p.autoScroll = true
	case ActionCopy:
		return Action{}, p.copyCmd()
	}
	return Action{}, nil
}

func (p *TerminalPane) Draw(f *Frame, area Rect) {
	if area.Empty() {
		return
	}
	borderWidth, borderHeight := borderSize(outputStyle)
	contentWidth := area.Width - borderWidth
	contentHeight := area.Height - borderHeight
	if contentWidth < 1 || contentHeight < 1 {
		return
	}
	frameWidth, _ := outputStyle.GetFrameSize()
	innerWidth := area.Width - frameWidth
	if innerWidth < 1 {
		innerWidth = 1
	}
	content := headerStyle.Render(fitWidth(p.header, innerWidth)) + "\n" + p.viewport.View()
	panel := outputStyle.Width(contentWidth).Height(contentHeight).MaxHeight(area.Height).BorderForeground(colorMuted)
	f.Render(area, panel.Render(content))
}

func (p *TerminalPane) setSize(width, height int) {
	rows, cols := CalculatePtyDimensions(ComputeLayout(Rect{Width: width, Height: height}).Pane)
	p.viewport.Width = int(cols)
	p.viewport.Height = int(rows)
}

func (p *TerminalPane) refresh() {
	id := p.tasks.Selected()
	lines, status, code, ok := p.tasks.PaneContent(id)
	if !ok {
		p.header = "Output"
		p.plain = ""
		p.viewport.SetContent("No tasks yet.")
		return
	}

	p.header = fmt.Sprintf("Output: %s  %s", id, statusStyle(status).Render(status.String()))
	if code != 0 {
		p.header = fmt.Sprintf("%s (exit %d)", p.header, code)
	}
	if len(lines) == 0 {
		p.plain = ""
		p.viewport.SetContent("No output yet.")
		return
	}
	p.plain = ansi.Strip(strings.Join(lines, "\n"))
	if p.viewport.Width > 0 {
		for i, line := range lines {
			lines[i] = fitWidth(line, p.viewport.Width)
		}
	}
	content := strings.Join(lines, "\n")
	p.viewport.SetContent(content)
	if p.autoScroll {
		p.viewport.GotoBottom()
	}
}

func (p *TerminalPane) copyCmd() tea.Cmd {
	text := p.plain
	if text == "" {
		return nil
	}
	w := p.clipboard
	return func() tea.Msg {
		seq := osc52.New(text)
		term := strings.ToLower(os.Getenv("TERM"))
		if strings.Contains(term, "screen") || strings.Contains(term, "tmux") || os.Getenv("TMUX") != "" {
			seq = seq.Screen()
		}
		if os.Getenv("TASKDASH_OSC52_TMUX") == "1" {
			seq = seq.Tmux()
		}
		fmt.Fprint(w, seq.String())
		return nil
	}
}
