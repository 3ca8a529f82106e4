// Package pty runs commands attached to pseudo-terminals and keeps an
// emulated screen of everything they print.
package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	cpty "github.com/creack/pty"
)

var (
	ErrStart     = errors.New("start pty process")
	ErrNoProcess = errors.New("no live process")
)

// drainTimeout bounds how long exit publication waits for the reader after
// the process is gone. Grandchildren that keep the terminal open would
// otherwise hold the exit status back forever.
const drainTimeout = 500 * time.Millisecond

type Options struct {
	Rows       uint16
	Cols       uint16
	Program    string
	Args       []string
	Dir        string
	Env        map[string]string
	Scrollback int
}

// Instance is one process running on a pseudo-terminal. Holders share it
// through Clone and Release; the terminal is closed when the last holder
// releases it.
type Instance struct {
	cmd    *exec.Cmd
	ptmx   *os.File
	screen *Screen

	refs      atomic.Int32
	closeOnce sync.Once

	exitCode   int
	exited     chan struct{}
	readerDone chan struct{}
}

func New(opts Options) (*Instance, error) {
	if opts.Program == "" {
		return nil, fmt.Errorf("%w: empty program", ErrStart)
	}
	rows, cols := opts.Rows, opts.Cols
	if rows == 0 {
		rows = 24
	}
	if cols == 0 {
		cols = 80
	}

	cmd := exec.Command(opts.Program, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = mergeEnv(os.Environ(), opts.Env)

	ptmx, err := cpty.StartWithSize(cmd, &cpty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStart, opts.Program, err)
	}

	inst := &Instance{
		cmd:        cmd,
		ptmx:       ptmx,
		screen:     NewScreen(int(rows), int(cols), opts.Scrollback),
		exited:     make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	inst.refs.Store(1)
	inst.screen.setReply(func(b []byte) { _, _ = ptmx.Write(b) })

	go inst.read()
	go inst.wait()
	return inst, nil
}

// read is the only writer of the screen.
func (i *Instance) read() {
	defer close(i.readerDone)
	buf := make([]byte, 32*1024)
	for {
		n, err := i.ptmx.Read(buf)
		if n > 0 {
			_, _ = i.screen.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (i *Instance) wait() {
	err := i.cmd.Wait()
	code := exitCodeOf(i.cmd.ProcessState, err)

	select {
	case <-i.readerDone:
	case <-time.After(drainTimeout):
	}

	i.exitCode = code
	close(i.exited)
}

func exitCodeOf(state *os.ProcessState, err error) int {
	if state == nil {
		if err != nil {
			return -1
		}
		return 0
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

// ExitStatus never blocks. Once it reports an exit the code is fixed.
func (i *Instance) ExitStatus() (int, bool) {
	select {
	case <-i.exited:
		return i.exitCode, true
	default:
		return 0, false
	}
}

// Done is closed once the exit status is available.
func (i *Instance) Done() <-chan struct{} {
	return i.exited
}

func (i *Instance) Pid() int {
	if i.cmd.Process == nil {
		return 0
	}
	return i.cmd.Process.Pid
}

// Screen returns the live emulator. It is nil only for a zero Instance.
func (i *Instance) Screen() *Screen {
	return i.screen
}

func (i *Instance) AllContentsFormatted() []byte {
	if i.screen == nil {
		return nil
	}
	return i.screen.AllContentsFormatted()
}

func (i *Instance) Resize(rows, cols uint16) error {
	if rows == 0 || cols == 0 {
		return nil
	}
	if _, done := i.ExitStatus(); !done {
		if err := cpty.Setsize(i.ptmx, &cpty.Winsize{Rows: rows, Cols: cols}); err != nil && !errors.Is(err, os.ErrClosed) {
			return fmt.Errorf("resize pty: %w", err)
		}
	}
	i.screen.Resize(int(rows), int(cols))
	return nil
}

// Clone registers another holder of the same execution.
func (i *Instance) Clone() *Instance {
	i.refs.Add(1)
	return i
}

// Release drops one holder. The last release closes the terminal, which
// hangs up a process that is still attached to it.
func (i *Instance) Release() {
	if i.refs.Add(-1) > 0 {
		return
	}
	i.closeOnce.Do(func() {
		_ = i.ptmx.Close()
	})
}

// Holders reports the number of outstanding handles.
func (i *Instance) Holders() int {
	return int(i.refs.Load())
}

// Kill delivers sig to the process group of the command and to any
// descendants that left it.
func (i *Instance) Kill(sig os.Signal) error {
	if _, done := i.ExitStatus(); done {
		return ErrNoProcess
	}
	pid := i.Pid()
	if pid <= 0 {
		return ErrNoProcess
	}
	return signalProcessTree(pid, sig)
}

// Terminate asks the process to stop and force-kills it after grace.
func (i *Instance) Terminate(grace time.Duration) {
	if err := i.Kill(syscall.SIGTERM); err != nil {
		return
	}
	select {
	case <-i.exited:
		return
	case <-time.After(grace):
	}
	_ = i.Kill(syscall.SIGKILL)
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(base)+len(keys))
	env = append(env, base...)
	for _, key := range keys {
		env = append(env, key+"="+overrides[key])
	}
	return env
}
