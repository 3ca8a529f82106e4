package tui

import tea "github.com/charmbracelet/bubbletea"

// Component is one pluggable part of the dashboard. The app calls every
// method with its lock held, so implementations never lock on their own.
type Component interface {
	Init() tea.Cmd
	// RegisterActionHandler hands the component the queue it pushes actions
	// to from HandleEvent.
	RegisterActionHandler(q *ActionQueue)
	HandleEvent(msg tea.Msg)
	// Update applies one action. A returned action with a kind other than
	// ActionNone is appended to the current round.
	Update(a Action) (Action, tea.Cmd)
	Draw(f *Frame, area Rect)
}

// Region names where a component is drawn.
type Region int

const (
	RegionList Region = iota
	RegionPane
	RegionStatus
)

func (l Layout) rect(r Region) Rect {
	switch r {
	case RegionList:
		return l.List
	case RegionPane:
		return l.Pane
	default:
		return l.Status
	}
}
