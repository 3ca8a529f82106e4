package tui

import (
	"fmt"
	"sync"
)

type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionTick
	ActionResize
	ActionQuit
	ActionTasksChanged
	ActionNextTask
	ActionPrevTask
	ActionTaskSelected
	ActionScrollUp
	ActionScrollDown
	ActionScrollTop
	ActionScrollBottom
	ActionCopy
)

var actionNames = map[ActionKind]string{
	ActionNone:         "none",
	ActionTick:         "tick",
	ActionResize:       "resize",
	ActionQuit:         "quit",
	ActionTasksChanged: "tasks-changed",
	ActionNextTask:     "next-task",
	ActionPrevTask:     "prev-task",
	ActionTaskSelected: "task-selected",
	ActionScrollUp:     "scroll-up",
	ActionScrollDown:   "scroll-down",
	ActionScrollTop:    "scroll-top",
	ActionScrollBottom: "scroll-bottom",
	ActionCopy:         "copy",
}

func (k ActionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(k))
}

// Action is an intent to change state, produced from terminal events or by
// components reacting to other actions.
type Action struct {
	Kind   ActionKind
	Width  int
	Height int
	TaskID string
}

// ActionQueue is the unbounded FIFO shared by the app and its components.
// Pushing never blocks and never drops.
type ActionQueue struct {
	mu    sync.Mutex
	items []Action
}

func (q *ActionQueue) Push(a Action) {
	if a.Kind == ActionNone {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, a)
	q.mu.Unlock()
}

func (q *ActionQueue) Pop() (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Action{}, false
	}
	a := q.items[0]
	q.items[0] = Action{}
	q.items = q.items[1:]
	return a, true
}

func (q *ActionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear empties the queue and returns how many actions were discarded.
func (q *ActionQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}
