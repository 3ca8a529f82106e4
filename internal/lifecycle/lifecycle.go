// Package lifecycle is the host-facing handle of the dashboard engine. It
// records task transitions in the running-task registry, spawns task
// processes on pseudo-terminals, and runs the interactive render loop.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"taskdash/internal/logging"
	"taskdash/internal/pty"
	"taskdash/internal/registry"
	"taskdash/internal/settings"
	"taskdash/internal/task"
	"taskdash/internal/tui"
)

var (
	ErrSpawnFailure       = errors.New("spawn task process")
	ErrNotTerminal        = errors.New("stdout is not a terminal")
	ErrNoCommand          = errors.New("no command to run")
	ErrAlreadyInteractive = errors.New("interactive mode already entered")
)

const (
	fallbackWidth  = 80
	fallbackHeight = 24
	shutdownGrace  = 2 * time.Second
)

type Options struct {
	Tasks    []task.Task
	Targets  []string
	Title    string
	Settings settings.Settings
	Logger   *slog.Logger
	// Registry is opened from Settings when nil and closed by Close.
	Registry *registry.RunningTasks

	ProgramOptions []tea.ProgramOption
	IsTerminal     func() bool
	TerminalSize   func() (width, height int, err error)
}

type Lifecycle struct {
	settings     settings.Settings
	logger       *slog.Logger
	registry     *registry.RunningTasks
	ownsRegistry bool
	app          *tui.App
	panics       *tui.PanicReporter
	orphans      []string

	programOptions []tea.ProgramOption
	isTerminal     func() bool
	terminalSize   func() (int, int, error)

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}

	// watched holds the exit monitor's handle of every spawned process
	// until it exits, whether or not a task still shows it.
	watchMu sync.Mutex
	watched map[*RunningTask]*pty.Instance
}

// New builds the engine with the announced tasks seeded as pending. Any task
// the registry still lists at this point was left behind by a dashboard
// that did not shut down cleanly; those ids are reported by Orphans.
func New(ctx context.Context, opts Options) (*Lifecycle, error) {
	s := opts.Settings
	if s == (settings.Settings{}) {
		s = settings.Defaults()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	reg := opts.Registry
	owns := false
	if reg == nil {
		var err error
		reg, err = registry.Open(s.RegistryPath())
		if err != nil {
			return nil, err
		}
		owns = true
	}

	orphans, err := reg.List(ctx)
	if err != nil {
		if owns {
			_ = reg.Close()
		}
		return nil, err
	}
	for _, id := range orphans {
		logger.Warn("task left running by a previous dashboard", "task", id)
	}

	title := opts.Title
	if title == "" {
		title = defaultTitle(opts.Targets, len(opts.Tasks))
	}
	panics := tui.NewPanicReporter(s.PanicLogPath(), logger)

	l := &Lifecycle{
		settings:       s,
		logger:         logger,
		registry:       reg,
		ownsRegistry:   owns,
		panics:         panics,
		orphans:        orphans,
		programOptions: opts.ProgramOptions,
		isTerminal:     opts.IsTerminal,
		terminalSize:   opts.TerminalSize,
		watched:        make(map[*RunningTask]*pty.Instance),
	}
	l.app = tui.NewApp(tui.Config{
		Title:     title,
		TickRate:  s.TickRate,
		FrameRate: s.FrameRate,
	}, opts.Tasks, logger, panics)

	if l.isTerminal == nil {
		l.isTerminal = stdoutIsTerminal
	}
	if l.terminalSize == nil {
		l.terminalSize = stdoutSize
	}
	return l, nil
}

func defaultTitle(targets []string, n int) string {
	if len(targets) == 0 {
		return fmt.Sprintf("Running %d tasks", n)
	}
	return fmt.Sprintf("Running %s for %d tasks", strings.Join(targets, ", "), n)
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func stdoutSize() (int, int, error) {
	return term.GetSize(int(os.Stdout.Fd()))
}

// Orphans returns the registry entries found at startup.
func (l *Lifecycle) Orphans() []string {
	return append([]string(nil), l.orphans...)
}

// App exposes the render loop model.
func (l *Lifecycle) App() *tui.App { return l.app }

// AnnounceTaskGraph seeds pending rows for every task of the run.
func (l *Lifecycle) AnnounceTaskGraph(tasks []task.Task) {
	l.app.WithTasks(func(tl *tui.TasksList) {
		tl.LoadTasks(tasks)
	})
}

// StartTasks marks the batch in progress and records each task the list
// accepted in the registry. A finished task is not restarted and gets no
// registry entry. A task the registry already lists is a caller error; it
// is logged and the rest of the batch proceeds.
func (l *Lifecycle) StartTasks(ctx context.Context, tasks []task.Task, meta task.Metadata) error {
	var started []string
	l.app.WithTasks(func(tl *tui.TasksList) {
		started = tl.StartTasks(tasks, meta.GroupID)
	})

	var errs []error
	for _, id := range started {
		err := l.registry.Add(ctx, id)
		switch {
		case errors.Is(err, registry.ErrAlreadyRunning):
			l.logger.Warn("task started twice", "task", id)
		case err != nil:
			l.logger.Error("record running task", "task", id, "err", err)
			errs = append(errs, err)
		}
		l.logger.Info("task started", "task", id, "group", meta.GroupID)
	}
	return errors.Join(errs...)
}

// EndTasks finalizes the results and clears their registry entries. Every
// status is validated before anything changes.
func (l *Lifecycle) EndTasks(ctx context.Context, results []TaskResult, meta task.Metadata) error {
	parsed := make([]task.Result, 0, len(results))
	for _, r := range results {
		status, err := task.ParseStatus(r.Status)
		if err != nil {
			return fmt.Errorf("end task %s: %w", r.Task.ID, err)
		}
		if !status.IsTerminal() {
			return fmt.Errorf("end task %s: %w: %s is not a final status", r.Task.ID, task.ErrInvalidStatus, status)
		}
		parsed = append(parsed, task.Result{
			Task:           r.Task,
			Status:         status,
			Code:           r.Code,
			TerminalOutput: r.TerminalOutput,
		})
	}

	l.app.WithTasks(func(tl *tui.TasksList) {
		tl.EndTasks(parsed)
	})

	var errs []error
	for _, r := range parsed {
		l.logger.Info("task ended", "task", r.Task.ID, "status", r.Status, "code", r.Code, "group", meta.GroupID)
		if err := l.registry.Remove(ctx, r.Task.ID); err != nil {
			l.logger.Error("clear running task", "task", r.Task.ID, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PrintCachedTaskOutput shows output restored from a cache. Statuses other
// than the cache classifications are accepted and ignored, since a live
// run's output comes from its own terminal.
func (l *Lifecycle) PrintCachedTaskOutput(t task.Task, status, output string) error {
	parsed, err := task.ParseStatus(status)
	if err != nil {
		return fmt.Errorf("print cached output for %s: %w", t.ID, err)
	}
	if !parsed.IsCache() {
		return nil
	}
	l.app.WithTasks(func(tl *tui.TasksList) {
		tl.CompleteCachedTask(t.ID, parsed, output)
	})
	return nil
}

// RunTaskCommand spawns the task's first command through the shell on a
// pseudo-terminal sized for the terminal pane, attaches it to the task and
// returns the handle the host waits on.
func (l *Lifecycle) RunTaskCommand(ctx context.Context, t task.Task, opts RunCommandsOptions) (*RunningTask, error) {
	command := opts.FirstCommand()
	if command == "" {
		return nil, fmt.Errorf("run %s: %w", t.ID, ErrNoCommand)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	width, height, err := l.terminalSize()
	if err != nil || width <= 0 || height <= 0 {
		width, height = fallbackWidth, fallbackHeight
	}
	rows, cols := tui.CalculatePtyDimensions(tui.Rect{Width: (width / 3) * 2, Height: height})

	p, err := pty.New(pty.Options{
		Rows:       rows,
		Cols:       cols,
		Program:    l.settings.Shell,
		Args:       []string{"-c", command},
		Dir:        opts.Cwd,
		Env:        opts.Environment(),
		Scrollback: l.settings.Scrollback,
	})
	if err != nil {
		l.logger.Error("spawn task process", "task", t.ID, "err", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawnFailure, t.ID, err)
	}
	l.logger.Debug("task process spawned", "task", t.ID, "pid", p.Pid(), "rows", rows, "cols", cols)

	watch := p.Clone()
	l.app.WithTasks(func(tl *tui.TasksList) {
		tl.UpdateTaskPty(t.ID, p)
	})

	rt := &RunningTask{task: t, lifecycle: l}
	l.watchMu.Lock()
	l.watched[rt] = watch
	l.watchMu.Unlock()
	go l.monitor(rt, watch)
	return rt, nil
}

// monitor waits for the process behind p to exit and hands its result to
// the running task.
func (l *Lifecycle) monitor(rt *RunningTask, p *pty.Instance) {
	defer p.Release()
	defer l.panics.Recover("exit monitor "+rt.task.ID, nil)

	<-p.Done()
	code, _ := p.ExitStatus()
	output := string(p.AllContentsFormatted())
	l.logger.Debug("task process exited", "task", rt.task.ID, "code", code)

	l.watchMu.Lock()
	delete(l.watched, rt)
	l.watchMu.Unlock()
	rt.exited(code, output)
}

// spawnedPty returns a clone of the process started for rt while it is
// still running, even after the task list has let go of it.
func (l *Lifecycle) spawnedPty(rt *RunningTask) *pty.Instance {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	if p, ok := l.watched[rt]; ok {
		return p.Clone()
	}
	return nil
}

// activePty returns a clone of the handle currently attached to id.
func (l *Lifecycle) activePty(id string) *pty.Instance {
	var p *pty.Instance
	l.app.WithTasks(func(tl *tui.TasksList) {
		if current := tl.GetActivePtyForTask(id); current != nil {
			p = current.Clone()
		}
	})
	return p
}

// EnterInteractiveMode takes over the terminal and starts the render loop in
// the background. onDone runs exactly once, after the loop has stopped and
// every task process still attached has been terminated.
func (l *Lifecycle) EnterInteractiveMode(onDone func()) error {
	if !l.isTerminal() {
		return ErrNotTerminal
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.program != nil {
		return ErrAlreadyInteractive
	}

	opts := []tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithFPS(int(l.app.FrameRate())),
	}
	opts = append(opts, l.programOptions...)
	program := tea.NewProgram(l.app, opts...)
	l.program = program
	l.done = make(chan struct{})

	// A panic inside the loop quits from the event goroutine; Quit must
	// not block it.
	l.app.OnQuit(func() { go program.Quit() })

	var once sync.Once
	finish := func() {
		once.Do(func() {
			if onDone != nil {
				onDone()
			}
		})
	}

	done := l.done
	go func() {
		defer close(done)
		defer finish()
		defer l.panics.Recover("tui", nil)

		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			l.logger.Error("render loop stopped", "err", err)
		}
		l.stopLiveTasks()
	}()
	return nil
}

// stopLiveTasks terminates every process still attached to a task, and
// every spawned process that outlived its task.
func (l *Lifecycle) stopLiveTasks() {
	var live []*pty.Instance
	l.app.WithTasks(func(tl *tui.TasksList) {
		live = tl.LivePtys()
	})
	seen := make(map[*pty.Instance]bool, len(live))
	for _, p := range live {
		seen[p] = true
	}
	l.watchMu.Lock()
	for _, p := range l.watched {
		if !seen[p] {
			seen[p] = true
			live = append(live, p.Clone())
		}
	}
	l.watchMu.Unlock()
	var wg sync.WaitGroup
	for _, p := range live {
		wg.Add(1)
		go func(p *pty.Instance) {
			defer wg.Done()
			defer p.Release()
			p.Terminate(shutdownGrace)
		}(p)
	}
	wg.Wait()
	if len(live) > 0 {
		l.logger.Info("stopped live tasks", "count", len(live))
	}
}

// Wait blocks until the render loop has stopped. It returns at once when
// interactive mode was never entered.
func (l *Lifecycle) Wait() {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done != nil {
		<-done
	}
}

// RestoreTerminal stops the render loop if it is still running and waits
// for the terminal to be handed back.
func (l *Lifecycle) RestoreTerminal() {
	l.mu.Lock()
	program := l.program
	l.mu.Unlock()
	if program != nil {
		program.Quit()
	}
	l.Wait()
}

// Close releases the registry when the lifecycle opened it.
func (l *Lifecycle) Close() error {
	if l.ownsRegistry {
		return l.registry.Close()
	}
	return nil
}
