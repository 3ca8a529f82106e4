package lifecycle

import (
	"context"
	"os"
	"sync"
	"time"

	"taskdash/internal/pty"
	"taskdash/internal/task"
)

type exitResult struct {
	code   int
	output string
}

// RunningTask is the host's handle on one spawned task. It always looks up
// the task's current process through the task list, so a replaced handle
// is followed.
type RunningTask struct {
	task      task.Task
	lifecycle *Lifecycle

	mu        sync.Mutex
	callback  func(code int, output string)
	exit      *exitResult
	delivered bool
}

func (rt *RunningTask) Task() task.Task { return rt.task }

// Results waits for the attached process to exit and returns its code and
// formatted output. A task with no attached process resolves at once with
// the zero Output.
func (rt *RunningTask) Results(ctx context.Context) (Output, error) {
	p := rt.lifecycle.activePty(rt.task.ID)
	if p == nil {
		return Output{}, nil
	}
	defer func() { p.Release() }()

	ticker := time.NewTicker(rt.lifecycle.settings.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.Done():
			code, _ := p.ExitStatus()
			return Output{Code: code, TerminalOutput: string(p.AllContentsFormatted())}, nil
		case <-ctx.Done():
			return Output{}, ctx.Err()
		case <-ticker.C:
			next := rt.lifecycle.activePty(rt.task.ID)
			if next == nil {
				continue
			}
			if next == p {
				next.Release()
				continue
			}
			p.Release()
			p = next
		}
	}
}

// OnExit registers the exit callback, replacing any earlier one. The exit
// is delivered once: to the callback registered when it happens, or to the
// first one registered afterwards.
func (rt *RunningTask) OnExit(cb func(code int, output string)) {
	rt.mu.Lock()
	if cb != nil && rt.exit != nil && !rt.delivered {
		rt.delivered = true
		res := *rt.exit
		rt.mu.Unlock()
		cb(res.code, res.output)
		return
	}
	rt.callback = cb
	rt.mu.Unlock()
}

func (rt *RunningTask) exited(code int, output string) {
	rt.mu.Lock()
	rt.exit = &exitResult{code: code, output: output}
	cb := rt.callback
	if cb != nil {
		rt.delivered = true
	}
	rt.mu.Unlock()

	if cb != nil {
		cb(code, output)
	}
}

// Exited reports the exit code once the monitor has seen the process end.
func (rt *RunningTask) Exited() (int, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.exit == nil {
		return 0, false
	}
	return rt.exit.code, true
}

// Kill sends sig to the task's process group and its descendants. A task
// that was ended while its process kept running is still reached through
// the process it spawned. It returns pty.ErrNoProcess when nothing is
// left running.
func (rt *RunningTask) Kill(sig os.Signal) error {
	p := rt.lifecycle.activePty(rt.task.ID)
	if p == nil {
		p = rt.lifecycle.spawnedPty(rt)
	}
	if p == nil {
		return pty.ErrNoProcess
	}
	defer p.Release()
	return p.Kill(sig)
}
