package tui

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"taskdash/internal/logging"
	"taskdash/internal/pty"
	"taskdash/internal/task"
)

const noGroup = -1

type taskEntry struct {
	task    task.Task
	status  task.Status
	pty     *pty.Instance
	output  string
	code    int
	group   int
	seq     int
	started time.Time
	ended   time.Time
}

// TasksList owns the state of every task in the run and draws the task
// list. A live process handle is held only while a task is in progress.
type TasksList struct {
	logger  *slog.Logger
	title   string
	queue   *ActionQueue
	entries map[string]*taskEntry
	nextSeq int

	selected string
	spin     spinner.Spinner
	frame    int

	ptyRows, ptyCols uint16
}

func NewTasksList(title string, logger *slog.Logger) *TasksList {
	if logger == nil {
		logger = logging.Discard()
	}
	return &TasksList{
		logger:  logger,
		title:   title,
		entries: make(map[string]*taskEntry),
		spin:    spinner.Dot,
	}
}

func (l *TasksList) Init() tea.Cmd { return nil }

func (l *TasksList) RegisterActionHandler(q *ActionQueue) { l.queue = q }

func (l *TasksList) HandleEvent(msg tea.Msg) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || l.queue == nil {
		return
	}
	switch {
	case key.Matches(keyMsg, keys.Up):
		l.queue.Push(Action{Kind: ActionPrevTask})
	case key.Matches(keyMsg, keys.Down):
		l.queue.Push(Action{Kind: ActionNextTask})
	}
}

func (l *TasksList) Update(a Action) (Action, tea.Cmd) {
	switch a.Kind {
	case ActionTick:
		if len(l.spin.Frames) > 0 {
			l.frame = (l.frame + 1) % len(l.spin.Frames)
		}
	case ActionResize:
		l.resizePtys(a.Width, a.Height)
	case ActionNextTask:
		return l.moveSelection(1), nil
	case ActionPrevTask:
		return l.moveSelection(-1), nil
	case ActionTasksChanged:
		if l.selected == "" {
			return l.moveSelection(0), nil
		}
	}
	return Action{}, nil
}

// LoadTasks seeds every task of the announced graph as pending. Tasks that
// are already known keep their state.
func (l *TasksList) LoadTasks(tasks []task.Task) {
	for _, t := range tasks {
		if _, ok := l.entries[t.ID]; ok {
			continue
		}
		l.add(t, task.StatusPending)
	}
	l.ensureSelection()
}

// StartTasks moves the tasks of one batch to in-progress. Tasks that have
// already finished are left alone.
func (l *TasksList) StartTasks(tasks []task.Task, group int) []string {
	now := time.Now()
	var started []string
	for _, t := range tasks {
		entry, ok := l.entries[t.ID]
		if !ok {
			entry = l.add(t, task.StatusPending)
		}
		if !task.CanTransition(entry.status, task.StatusInProgress) {
			l.logger.Debug("ignoring start of finished task", "task", t.ID, "status", entry.status)
			continue
		}
		entry.task = t
		entry.status = task.StatusInProgress
		entry.group = group
		if entry.started.IsZero() {
			entry.started = t.StartTime
			if entry.started.IsZero() {
				entry.started = now
			}
		}
		started = append(started, t.ID)
	}
	l.ensureSelection()
	return started
}

// UpdateTaskPty attaches p to the task, replacing and releasing any earlier
// handle. The list takes ownership of p. A task that has already finished
// does not accept a handle and p is released right away.
func (l *TasksList) UpdateTaskPty(id string, p *pty.Instance) bool {
	if p == nil {
		return false
	}
	entry, ok := l.entries[id]
	if !ok {
		entry = l.add(task.Task{ID: id}, task.StatusPending)
	}
	if !task.CanTransition(entry.status, task.StatusInProgress) {
		l.logger.Debug("dropping pty for finished task", "task", id, "status", entry.status)
		p.Release()
		return false
	}
	if entry.status == task.StatusPending {
		entry.status = task.StatusInProgress
		entry.started = time.Now()
	}
	if entry.pty != nil && entry.pty != p {
		entry.pty.Release()
	}
	entry.pty = p
	if l.ptyRows > 0 && l.ptyCols > 0 {
		if err := p.Resize(l.ptyRows, l.ptyCols); err != nil {
			l.logger.Debug("resize pty", "task", id, "err", err)
		}
	}
	l.ensureSelection()
	return true
}

// CompleteCachedTask finishes a task restored from a cache. Any other
// status is ignored and leaves the task untouched.
func (l *TasksList) CompleteCachedTask(id string, status task.Status, output string) bool {
	if !status.IsCache() {
		return false
	}
	entry, ok := l.entries[id]
	if !ok {
		entry = l.add(task.Task{ID: id}, task.StatusPending)
	}
	if entry.status.IsTerminal() {
		return false
	}
	l.releasePty(entry)
	entry.status = status
	entry.code = 0
	entry.output = output
	l.finish(entry)
	l.ensureSelection()
	return true
}

// EndTasks finalizes tasks with the host's results and releases their
// process handles. Output captured from a live screen is kept when the
// result carries none. It returns the ids whose status changed.
func (l *TasksList) EndTasks(results []task.Result) []string {
	var ended []string
	for _, r := range results {
		if !r.Status.IsTerminal() {
			l.logger.Warn("ignoring non-terminal end status", "task", r.Task.ID, "status", r.Status)
			continue
		}
		entry, ok := l.entries[r.Task.ID]
		if !ok {
			entry = l.add(r.Task, task.StatusPending)
		}
		if entry.status.IsTerminal() {
			continue
		}
		output := r.TerminalOutput
		if output == "" && entry.pty != nil {
			output = string(entry.pty.AllContentsFormatted())
		}
		if output == "" {
			output = entry.output
		}
		l.releasePty(entry)
		entry.status = r.Status
		entry.code = r.Code
		entry.output = output
		l.finish(entry)
		ended = append(ended, r.Task.ID)
	}
	l.ensureSelection()
	return ended
}

// GetActivePtyForTask returns the handle currently attached to the task.
// Callers that keep it past the app lock must Clone it.
func (l *TasksList) GetActivePtyForTask(id string) *pty.Instance {
	entry, ok := l.entries[id]
	if !ok {
		return nil
	}
	return entry.pty
}

func (l *TasksList) Status(id string) (task.Status, bool) {
	entry, ok := l.entries[id]
	if !ok {
		return 0, false
	}
	return entry.status, true
}

// Counts tallies tasks per status.
func (l *TasksList) Counts() map[task.Status]int {
	counts := make(map[task.Status]int)
	for _, entry := range l.entries {
		counts[entry.status]++
	}
	return counts
}

func (l *TasksList) Len() int { return len(l.entries) }

// LivePtys returns a clone of every attached handle. The caller releases
// them.
func (l *TasksList) LivePtys() []*pty.Instance {
	var out []*pty.Instance
	for _, entry := range l.sorted() {
		if entry.pty != nil {
			out = append(out, entry.pty.Clone())
		}
	}
	return out
}

func (l *TasksList) Selected() string { return l.selected }

// Select makes id the selected task if it is known.
func (l *TasksList) Select(id string) Action {
	if _, ok := l.entries[id]; !ok {
		return Action{}
	}
	l.selected = id
	return Action{Kind: ActionTaskSelected, TaskID: id}
}

// Ordered returns task ids in display order.
func (l *TasksList) Ordered() []string {
	sorted := l.sorted()
	ids := make([]string, len(sorted))
	for i, entry := range sorted {
		ids[i] = entry.task.ID
	}
	return ids
}

// PaneContent returns what the terminal pane shows for a task: the live
// screen while a process is attached, otherwise the captured output.
func (l *TasksList) PaneContent(id string) (lines []string, status task.Status, code int, ok bool) {
	entry, found := l.entries[id]
	if !found {
		return nil, 0, 0, false
	}
	if entry.pty != nil {
		lines = entry.pty.Screen().FormattedLines()
	} else if entry.output != "" {
		lines = strings.Split(strings.TrimRight(entry.output, "\n"), "\n")
	}
	return lines, entry.status, entry.code, true
}

func (l *TasksList) Draw(f *Frame, area Rect) {
	if area.Empty() {
		return
	}
	borderWidth, borderHeight := borderSize(sidebarStyle)
	_, _, _, padLeft := sidebarStyle.GetPadding()
	contentWidth := area.Width - borderWidth
	contentHeight := area.Height - borderHeight
	if contentWidth < 1 || contentHeight < 1 {
		return
	}
	innerWidth := contentWidth - padLeft*2
	if innerWidth < 1 {
		innerWidth = 1
	}

	lines := []string{titleStyle.Render(fitWidth(l.title, innerWidth)), sectionStyle.Render("Tasks")}
	rows := l.sorted()
	visible := contentHeight - len(lines)
	start := 0
	if visible > 0 && len(rows) > visible {
		for i, entry := range rows {
			if entry.task.ID == l.selected && i >= visible {
				start = i - visible + 1
			}
		}
	}
	for i := start; i < len(rows); i++ {
		line := l.renderRow(rows[i], innerWidth)
		if rows[i].task.ID == l.selected {
			line = selectedStyle.Render(fillWidth(line, innerWidth))
		}
		lines = append(lines, line)
	}

	panel := sidebarStyle.Width(contentWidth).Height(contentHeight).MaxHeight(area.Height).BorderForeground(colorAccent)
	f.Render(area, panel.Render(strings.Join(lines, "\n")))
}

func (l *TasksList) renderRow(entry *taskEntry, width int) string {
	spin := ""
	if len(l.spin.Frames) > 0 {
		spin = l.spin.Frames[l.frame%len(l.spin.Frames)]
	}
	icon := statusStyle(entry.status).Render(statusIcon(entry.status, spin))
	marker := " "
	if entry.group != noGroup {
		marker = groupStyle(entry.group).Render("▏")
	}
	label := entry.task.ID
	if entry.status == task.StatusPending {
		label = pendingStyle.Render(label)
	}
	suffix := ""
	switch {
	case entry.status == task.StatusFailure && entry.code != 0:
		suffix = statusStyle(entry.status).Render(fmt.Sprintf(" %d", entry.code))
	case entry.status.IsCache():
		suffix = sectionStyle.Render(" [" + cacheLabel(entry.status) + "]")
	case entry.status == task.StatusInProgress && entry.task.Continuous:
		suffix = sectionStyle.Render(" [continuous]")
	}
	return fitWidth(fmt.Sprintf("%s%s %s%s", marker, icon, label, suffix), width)
}

func cacheLabel(status task.Status) string {
	switch status {
	case task.StatusLocalCacheKeptExisting:
		return "existing outputs"
	case task.StatusRemoteCache:
		return "remote cache"
	default:
		return "local cache"
	}
}

func (l *TasksList) add(t task.Task, status task.Status) *taskEntry {
	entry := &taskEntry{task: t, status: status, group: noGroup, seq: l.nextSeq}
	l.nextSeq++
	l.entries[t.ID] = entry
	return entry
}

func (l *TasksList) finish(entry *taskEntry) {
	entry.ended = time.Now()
	if entry.started.IsZero() {
		entry.started = entry.ended
	}
}

func (l *TasksList) releasePty(entry *taskEntry) {
	if entry.pty == nil {
		return
	}
	entry.pty.Release()
	entry.pty = nil
}

func (l *TasksList) ensureSelection() {
	if l.selected != "" {
		if _, ok := l.entries[l.selected]; ok {
			return
		}
	}
	if ids := l.Ordered(); len(ids) > 0 {
		l.selected = ids[0]
	}
}

func (l *TasksList) moveSelection(delta int) Action {
	ids := l.Ordered()
	if len(ids) == 0 {
		return Action{}
	}
	idx := 0
	for i, id := range ids {
		if id == l.selected {
			idx = i
			break
		}
	}
	idx = clampInt(idx+delta, 0, len(ids)-1)
	return l.Select(ids[idx])
}

func (l *TasksList) resizePtys(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	rows, cols := CalculatePtyDimensions(ComputeLayout(Rect{Width: width, Height: height}).Pane)
	l.ptyRows, l.ptyCols = rows, cols
	for _, entry := range l.entries {
		if entry.pty == nil {
			continue
		}
		if err := entry.pty.Resize(rows, cols); err != nil {
			l.logger.Debug("resize pty", "task", entry.task.ID, "err", err)
		}
	}
}

// statusBucket orders rows: running first, then finished, then pending.
func statusBucket(s task.Status) int {
	switch {
	case s == task.StatusInProgress:
		return 0
	case s.IsTerminal():
		return 1
	default:
		return 2
	}
}

func (l *TasksList) sorted() []*taskEntry {
	out := make([]*taskEntry, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ba, bb := statusBucket(a.status), statusBucket(b.status); ba != bb {
			return ba < bb
		}
		if a.group != b.group {
			if a.group == noGroup || b.group == noGroup {
				return b.group == noGroup
			}
			return a.group < b.group
		}
		if !a.started.Equal(b.started) {
			if a.started.IsZero() || b.started.IsZero() {
				return b.started.IsZero()
			}
			return a.started.Before(b.started)
		}
		return a.seq < b.seq
	})
	return out
}
