package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"taskdash/internal/lifecycle"
	"taskdash/internal/logging"
	"taskdash/internal/pty"
	"taskdash/internal/task"
)

const continuousStopGrace = 2 * time.Second

// host drives a task file through the dashboard: one group per dependency
// level, at most cfg.Parallel tasks of a group at a time.
type host struct {
	cfg    Config
	levels [][]TaskDef
	tasks  map[string]task.Task
	lc     *lifecycle.Lifecycle
	cache  *outputCache
	logger *slog.Logger
	args   string

	mu         sync.Mutex
	outcome    map[string]task.Status
	stopping   bool
	continuous []*lifecycle.RunningTask
	pending    sync.WaitGroup
}

type hostOptions struct {
	Config    Config
	Lifecycle *lifecycle.Lifecycle
	Cache     *outputCache
	Logger    *slog.Logger
	// Args are appended to tasks that set forward_args.
	Args string
}

func newHost(opts hostOptions) (*host, error) {
	levels, err := opts.Config.Levels()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	h := &host{
		cfg:     opts.Config,
		levels:  levels,
		tasks:   make(map[string]task.Task, len(opts.Config.Tasks)),
		lc:      opts.Lifecycle,
		cache:   opts.Cache,
		logger:  logger,
		args:    opts.Args,
		outcome: make(map[string]task.Status, len(opts.Config.Tasks)),
	}
	for _, def := range opts.Config.Tasks {
		h.tasks[def.ID] = taskFor(def, opts.Config.Init)
	}
	return h, nil
}

// taskFor builds the dashboard descriptor, hash included.
func taskFor(def TaskDef, init CommandList) task.Task {
	t := def.Task()
	t.Hash = taskHash(def, buildShellCommand(init, def.Cmd.Script()))
	return t
}

// plannedTasks lists every task of the file in level order.
func plannedTasks(cfg Config) ([]task.Task, error) {
	levels, err := cfg.Levels()
	if err != nil {
		return nil, err
	}
	var out []task.Task
	for _, level := range levels {
		for _, def := range level {
			out = append(out, taskFor(def, cfg.Init))
		}
	}
	return out, nil
}

// Run executes every level in order. It returns early when ctx is done or
// the dashboard is shutting down; tasks not reached stay pending.
func (h *host) Run(ctx context.Context) error {
	for i, level := range h.levels {
		if err := ctx.Err(); err != nil {
			return err
		}
		if h.isStopping() {
			return nil
		}
		if err := h.runLevel(ctx, i, level); err != nil {
			return err
		}
	}
	return nil
}

func (h *host) runLevel(ctx context.Context, group int, defs []TaskDef) error {
	meta := task.Metadata{GroupID: group}

	var skipped []lifecycle.TaskResult
	var runnable []TaskDef
	for _, def := range defs {
		if dep, blocked := h.blockedBy(def); blocked {
			h.logger.Info("skipping task", "task", def.ID, "dependency", dep)
			skipped = append(skipped, lifecycle.TaskResult{Task: h.tasks[def.ID], Status: task.StatusSkipped.String()})
			continue
		}
		runnable = append(runnable, def)
	}
	if len(skipped) > 0 {
		h.end(ctx, meta, skipped...)
	}

	g := new(errgroup.Group)
	if h.cfg.Parallel > 0 {
		g.SetLimit(h.cfg.Parallel)
	}
	for _, def := range runnable {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if h.isStopping() {
				return nil
			}
			h.runOne(ctx, def, meta)
			return nil
		})
	}
	return g.Wait()
}

func (h *host) runOne(ctx context.Context, def TaskDef, meta task.Metadata) {
	t := h.tasks[def.ID]
	if err := h.lc.StartTasks(ctx, []task.Task{t}, meta); err != nil {
		h.logger.Warn("start task", "task", t.ID, "err", err)
	}

	if def.Cache && !def.Continuous && h.cache != nil {
		entry, err := h.cache.Get(t.Hash)
		if err != nil {
			h.logger.Warn("read cache", "task", t.ID, "err", err)
		}
		if entry != nil {
			status := task.StatusLocalCache.String()
			if err := h.lc.PrintCachedTaskOutput(t, status, entry.Output); err != nil {
				h.logger.Warn("show cached output", "task", t.ID, "err", err)
			}
			h.end(ctx, meta, lifecycle.TaskResult{Task: t, Status: status, Code: entry.Code, TerminalOutput: entry.Output})
			return
		}
	}

	rt, err := h.lc.RunTaskCommand(ctx, t, h.runOptions(def))
	if err != nil {
		h.end(ctx, meta, lifecycle.TaskResult{Task: t, Status: task.StatusFailure.String(), Code: -1, TerminalOutput: err.Error()})
		return
	}

	if def.Continuous {
		h.watchContinuous(rt, meta)
		return
	}

	out, err := rt.Results(ctx)
	if err != nil {
		h.end(context.WithoutCancel(ctx), meta, lifecycle.TaskResult{Task: t, Status: task.StatusStopped.String(), Code: -1})
		return
	}
	status := h.statusFor(out.Code)
	if status == task.StatusSuccess && def.Cache && h.cache != nil {
		err := h.cache.Put(cacheEntry{
			Hash:     t.Hash,
			TaskID:   t.ID,
			Code:     out.Code,
			Output:   out.TerminalOutput,
			StoredAt: time.Now().UTC(),
		})
		if err != nil {
			h.logger.Warn("write cache", "task", t.ID, "err", err)
		}
	}
	h.end(ctx, meta, lifecycle.TaskResult{Task: t, Status: status.String(), Code: out.Code, TerminalOutput: out.TerminalOutput})
}

// watchContinuous leaves a long-running task going while its dependents
// run. Its end is recorded whenever the process goes away.
func (h *host) watchContinuous(rt *lifecycle.RunningTask, meta task.Metadata) {
	h.mu.Lock()
	h.continuous = append(h.continuous, rt)
	h.pending.Add(1)
	h.mu.Unlock()

	t := rt.Task()
	rt.OnExit(func(code int, output string) {
		defer h.pending.Done()
		h.end(context.Background(), meta, lifecycle.TaskResult{
			Task:           t,
			Status:         h.statusFor(code).String(),
			Code:           code,
			TerminalOutput: output,
		})
	})
}

// StopContinuous ends every continuous task still running and waits until
// each one is recorded as stopped.
func (h *host) StopContinuous() {
	h.mu.Lock()
	h.stopping = true
	running := append([]*lifecycle.RunningTask(nil), h.continuous...)
	h.mu.Unlock()

	for _, rt := range running {
		if err := rt.Kill(syscall.SIGTERM); err != nil && !errors.Is(err, pty.ErrNoProcess) {
			h.logger.Warn("stop continuous task", "task", rt.Task().ID, "err", err)
		}
	}

	done := make(chan struct{})
	go func() {
		h.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-time.After(continuousStopGrace):
	}
	for _, rt := range running {
		if _, exited := rt.Exited(); !exited {
			_ = rt.Kill(syscall.SIGKILL)
		}
	}
	<-done
}

// end reports results that have not been reported yet.
func (h *host) end(ctx context.Context, meta task.Metadata, results ...lifecycle.TaskResult) {
	h.mu.Lock()
	fresh := results[:0:0]
	for _, r := range results {
		if _, done := h.outcome[r.Task.ID]; done {
			continue
		}
		status, err := task.ParseStatus(r.Status)
		if err != nil {
			continue
		}
		h.outcome[r.Task.ID] = status
		fresh = append(fresh, r)
	}
	h.mu.Unlock()

	if len(fresh) == 0 {
		return
	}
	if err := h.lc.EndTasks(ctx, fresh, meta); err != nil {
		h.logger.Warn("end tasks", "group", meta.GroupID, "err", err)
	}
}

// blockedBy returns the first dependency that did not succeed.
func (h *host) blockedBy(def TaskDef) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, dep := range def.DependsOn {
		switch h.outcome[dep] {
		case task.StatusFailure, task.StatusSkipped, task.StatusStopped:
			return dep, true
		}
	}
	return "", false
}

// statusFor classifies an exit. Anything that exits once shutdown has begun
// was stopped, whatever its code.
func (h *host) statusFor(code int) task.Status {
	if h.isStopping() {
		return task.StatusStopped
	}
	if code == 0 {
		return task.StatusSuccess
	}
	return task.StatusFailure
}

func (h *host) isStopping() bool {
	h.mu.Lock()
	stopping := h.stopping
	h.mu.Unlock()
	return stopping || h.lc.App().Quitting()
}

func (h *host) runOptions(def TaskDef) lifecycle.RunCommandsOptions {
	env := make(map[string]string, len(def.Env)+1)
	if h.cfg.Shell != "" {
		env["SHELL"] = h.cfg.Shell
	}
	for k, v := range def.Env {
		env[k] = v
	}
	return lifecycle.RunCommandsOptions{
		Commands: []lifecycle.CommandOptions{{
			Command:        buildShellCommand(h.cfg.Init, def.Cmd.Script()),
			ForwardAllArgs: def.ForwardArgs,
		}},
		Args:     h.args,
		Cwd:      def.Cwd,
		Env:      env,
		Color:    true,
		Parallel: h.cfg.Parallel != 1,
		UsePty:   true,
	}
}

// Outcome returns the recorded status of id.
func (h *host) Outcome(id string) (task.Status, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	status, ok := h.outcome[id]
	return status, ok
}

// Summary counts recorded statuses.
func (h *host) Summary() map[task.Status]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	counts := make(map[task.Status]int)
	for _, status := range h.outcome {
		counts[status]++
	}
	return counts
}
