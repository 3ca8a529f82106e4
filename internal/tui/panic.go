package tui

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"

	"taskdash/internal/logging"
)

// PanicReporter records panics from the render loop and the exit monitors
// to standard error and to a dedicated log file.
type PanicReporter struct {
	mu     sync.Mutex
	path   string
	stderr io.Writer
	logger *slog.Logger
}

func NewPanicReporter(path string, logger *slog.Logger) *PanicReporter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &PanicReporter{path: path, stderr: os.Stderr, logger: logger}
}

// Recover must be deferred directly. It reports a panic in the calling
// goroutine under name and then runs after, which may be nil.
func (r *PanicReporter) Recover(name string, after func()) {
	v := recover()
	if v == nil {
		return
	}
	r.Report(name, v, debug.Stack())
	if after != nil {
		after()
	}
}

func (r *PanicReporter) Report(name string, v any, stack []byte) {
	msg := fmt.Sprintf("\n\nThread '%s' panicked at '%v'\n%s\n\n", name, v, stack)

	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprint(r.stderr, msg)
	r.logger.Error("panic", "thread", name, "value", fmt.Sprint(v))

	if r.path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		r.logger.Error("create panic log dir", "err", err)
		return
	}
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		r.logger.Error("open panic log", "path", r.path, "err", err)
		return
	}
	defer file.Close()
	_, _ = file.WriteString(msg)
}
