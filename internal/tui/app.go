// Package tui is the dashboard's render loop: an App that turns terminal
// events into actions, feeds them through its components, and draws them.
package tui

import (
	"log/slog"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"taskdash/internal/logging"
	"taskdash/internal/task"
)

// maxActionsPerRound bounds the actions processed between two frames. A
// chain longer than this is treated as a loop and cut.
const maxActionsPerRound = 1024

type Config struct {
	Title     string
	TickRate  float64
	FrameRate float64
}

type tickMsg time.Time

type placement struct {
	component Component
	region    Region
}

// App is the tea.Model of the dashboard. Its lock is shared by the render
// loop and the exit monitors; every exported method takes it.
type App struct {
	mu sync.Mutex

	cfg    Config
	logger *slog.Logger
	panics *PanicReporter
	queue  *ActionQueue

	components []placement
	tasks      *TasksList

	width, height int
	initialized   bool
	dirty         bool
	quitting      bool
	onQuit        func()
}

func NewApp(cfg Config, tasks []task.Task, logger *slog.Logger, panics *PanicReporter) *App {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = 10
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 60
	}
	if cfg.Title == "" {
		cfg.Title = "taskdash"
	}
	if panics == nil {
		panics = NewPanicReporter("", logger)
	}

	list := NewTasksList(cfg.Title, logger)
	list.LoadTasks(tasks)

	a := &App{
		cfg:    cfg,
		logger: logger,
		panics: panics,
		queue:  &ActionQueue{},
		tasks:  list,
	}
	a.register(list, RegionList)
	a.register(NewTerminalPane(list), RegionPane)
	a.register(NewStatusBar(list), RegionStatus)
	return a
}

func (a *App) register(c Component, r Region) {
	a.components = append(a.components, placement{component: c, region: r})
}

// WithTasks runs fn against the task list under the app lock. fn must not
// block. Components see an ActionTasksChanged on the next event.
func (a *App) WithTasks(fn func(*TasksList)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.tasks)
	a.dirty = true
}

// OnQuit sets the function called once when the loop handles a quit
// action. It replaces any earlier one.
func (a *App) OnQuit(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onQuit = fn
}

func (a *App) FrameRate() float64 { return a.cfg.FrameRate }

// Quitting reports whether a quit action has been processed.
func (a *App) Quitting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.quitting
}

// Dispatch queues an action from outside the loop. It is applied on the
// next event.
func (a *App) Dispatch(act Action) {
	a.queue.Push(act)
}

func (a *App) Init() tea.Cmd {
	a.mu.Lock()
	defer a.mu.Unlock()

	cmds := []tea.Cmd{a.tick()}
	if a.initialized {
		return tea.Batch(cmds...)
	}
	a.initialized = true
	for _, p := range a.components {
		p.component.RegisterActionHandler(a.queue)
		if cmd := p.component.Init(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

func (a *App) tick() tea.Cmd {
	interval := time.Duration(float64(time.Second) / a.cfg.TickRate)
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) Update(msg tea.Msg) (model tea.Model, cmd tea.Cmd) {
	defer a.panics.Recover("render loop", func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		model, cmd = a, a.quit()
	})

	a.mu.Lock()
	defer a.mu.Unlock()

	var cmds []tea.Cmd
	if a.dirty {
		a.dirty = false
		a.queue.Push(Action{Kind: ActionTasksChanged})
	}
	switch msg := msg.(type) {
	case tickMsg:
		a.queue.Push(Action{Kind: ActionTick})
		cmds = append(cmds, a.tick())
	case tea.WindowSizeMsg:
		width, height := msg.Width, msg.Height
		// Keep the bottom row free so drawing never scrolls the terminal.
		if height > 1 {
			height--
		}
		a.queue.Push(Action{Kind: ActionResize, Width: width, Height: height})
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) || key.Matches(msg, keys.ForceQuit) {
			a.queue.Push(Action{Kind: ActionQuit})
		}
	}
	for _, p := range a.components {
		p.component.HandleEvent(msg)
	}

	cmds = append(cmds, a.drain()...)
	if a.quitting {
		return a, a.quit()
	}
	return a, tea.Batch(cmds...)
}

// drain delivers queued actions to every component in registration order
// until the queue is empty.
func (a *App) drain() []tea.Cmd {
	var cmds []tea.Cmd
	for n := 0; ; n++ {
		act, ok := a.queue.Pop()
		if !ok {
			return cmds
		}
		if n >= maxActionsPerRound {
			dropped := a.queue.Clear() + 1
			a.logger.Error("action chain exceeded limit", "limit", maxActionsPerRound, "dropped", dropped, "last", act.Kind.String())
			return cmds
		}
		switch act.Kind {
		case ActionResize:
			a.width, a.height = act.Width, act.Height
		case ActionQuit:
			a.quitting = true
		}
		for _, p := range a.components {
			next, cmd := p.component.Update(act)
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
			a.queue.Push(next)
		}
	}
}

// quit runs the quit callback at most once and returns the command that
// stops the program. The lock must be held.
func (a *App) quit() tea.Cmd {
	a.quitting = true
	if fn := a.onQuit; fn != nil {
		a.onQuit = nil
		fn()
	}
	return tea.Quit
}

func (a *App) View() (view string) {
	defer a.panics.Recover("render loop", func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.quit()
		view = ""
	})

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.quitting {
		return ""
	}
	if a.width == 0 || a.height == 0 {
		return "Loading..."
	}
	f := NewFrame(a.width, a.height)
	layout := ComputeLayout(f.Area())
	for _, p := range a.components {
		p.component.Draw(f, layout.rect(p.region))
	}
	return f.String()
}
