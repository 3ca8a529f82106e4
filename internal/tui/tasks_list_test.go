package tui

import (
	"syscall"
	"testing"
	"time"

	"taskdash/internal/pty"
	"taskdash/internal/task"
)

func newTask(id string) task.Task {
	return task.Task{ID: id, Target: task.Target{Project: id, Target: "build"}}
}

func spawn(t *testing.T, script string) *pty.Instance {
	t.Helper()
	inst, err := pty.New(pty.Options{Rows: 5, Cols: 20, Program: "/bin/sh", Args: []string{"-c", script}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	return inst
}

func TestTasksListLifecycle(t *testing.T) {
	l := NewTasksList("test", nil)
	t1 := newTask("app:build")

	l.LoadTasks([]task.Task{t1})
	if status, _ := l.Status(t1.ID); status != task.StatusPending {
		t.Fatalf("expected pending, got %s", status)
	}

	l.StartTasks([]task.Task{t1}, 0)
	if status, _ := l.Status(t1.ID); status != task.StatusInProgress {
		t.Fatalf("expected in-progress, got %s", status)
	}

	p := spawn(t, "echo ok")
	keep := p.Clone()
	defer keep.Release()

	if !l.UpdateTaskPty(t1.ID, p) {
		t.Fatalf("expected pty to be accepted")
	}
	if got := l.GetActivePtyForTask(t1.ID); got != p {
		t.Fatalf("expected active pty to be the attached one")
	}

	ended := l.EndTasks([]task.Result{{Task: t1, Status: task.StatusSuccess, Code: 0, TerminalOutput: "ok"}})
	if len(ended) != 1 || ended[0] != t1.ID {
		t.Fatalf("unexpected ended ids %v", ended)
	}
	if status, _ := l.Status(t1.ID); status != task.StatusSuccess {
		t.Fatalf("expected success, got %s", status)
	}
	if l.GetActivePtyForTask(t1.ID) != nil {
		t.Fatalf("expected no active pty after end")
	}
	if keep.Holders() != 1 {
		t.Fatalf("expected list to release its handle, holders=%d", keep.Holders())
	}

	lines, _, _, ok := l.PaneContent(t1.ID)
	if !ok || len(lines) != 1 || lines[0] != "ok" {
		t.Fatalf("unexpected pane content %v", lines)
	}
}

func TestTasksListReplacePtyReleasesOld(t *testing.T) {
	l := NewTasksList("test", nil)
	t1 := newTask("a")
	l.StartTasks([]task.Task{t1}, 0)

	first := spawn(t, "true")
	watch := first.Clone()
	defer watch.Release()
	second := spawn(t, "true")
	defer second.Release()

	l.UpdateTaskPty(t1.ID, first)
	l.UpdateTaskPty(t1.ID, second.Clone())

	if watch.Holders() != 1 {
		t.Fatalf("expected replaced handle released, holders=%d", watch.Holders())
	}
	if l.GetActivePtyForTask(t1.ID) != second {
		t.Fatalf("expected second pty active")
	}
}

func TestTasksListStartTasksSkipsFinished(t *testing.T) {
	l := NewTasksList("test", nil)
	done, fresh := newTask("done"), newTask("fresh")
	l.LoadTasks([]task.Task{done, fresh})
	l.EndTasks([]task.Result{{Task: done, Status: task.StatusSuccess}})

	started := l.StartTasks([]task.Task{done, fresh}, 0)
	if len(started) != 1 || started[0] != fresh.ID {
		t.Fatalf("expected only fresh to start, got %v", started)
	}
	if status, _ := l.Status(done.ID); status != task.StatusSuccess {
		t.Fatalf("expected finished task untouched, got %s", status)
	}
	if again := l.StartTasks([]task.Task{fresh}, 0); len(again) != 1 {
		t.Fatalf("expected in-progress task to be accepted again, got %v", again)
	}
}

func TestTasksListCompleteCachedTaskIgnoresOtherStatuses(t *testing.T) {
	l := NewTasksList("test", nil)
	t1 := newTask("a")
	l.StartTasks([]task.Task{t1}, 0)
	p := spawn(t, "true")
	l.UpdateTaskPty(t1.ID, p)

	for _, status := range []task.Status{task.StatusSuccess, task.StatusFailure, task.StatusPending, task.StatusSkipped} {
		if l.CompleteCachedTask(t1.ID, status, "out") {
			t.Fatalf("expected %s to be ignored", status)
		}
	}
	if status, _ := l.Status(t1.ID); status != task.StatusInProgress {
		t.Fatalf("expected status unchanged, got %s", status)
	}
	if l.GetActivePtyForTask(t1.ID) != p {
		t.Fatalf("expected pty unchanged")
	}
}

func TestTasksListCompleteCachedTask(t *testing.T) {
	l := NewTasksList("test", nil)
	t1 := newTask("a")
	l.LoadTasks([]task.Task{t1})

	if !l.CompleteCachedTask(t1.ID, task.StatusRemoteCache, "cached output\n") {
		t.Fatalf("expected cached completion to apply")
	}
	status, _ := l.Status(t1.ID)
	if status != task.StatusRemoteCache {
		t.Fatalf("expected remote-cache, got %s", status)
	}
	if l.GetActivePtyForTask(t1.ID) != nil {
		t.Fatalf("cached task must not hold a pty")
	}
	lines, _, _, _ := l.PaneContent(t1.ID)
	if len(lines) != 1 || lines[0] != "cached output" {
		t.Fatalf("unexpected output %v", lines)
	}

	if l.CompleteCachedTask(t1.ID, task.StatusLocalCache, "again") {
		t.Fatalf("finished task must not change")
	}
}

func TestTasksListTerminalStatusIsFinal(t *testing.T) {
	l := NewTasksList("test", nil)
	t1 := newTask("a")
	l.EndTasks([]task.Result{{Task: t1, Status: task.StatusFailure, Code: 2}})

	l.StartTasks([]task.Task{t1}, 1)
	if status, _ := l.Status(t1.ID); status != task.StatusFailure {
		t.Fatalf("expected failure to stick, got %s", status)
	}

	p := spawn(t, "true")
	watch := p.Clone()
	defer watch.Release()
	if l.UpdateTaskPty(t1.ID, p) {
		t.Fatalf("finished task must not accept a pty")
	}
	if watch.Holders() != 1 {
		t.Fatalf("rejected pty must be released, holders=%d", watch.Holders())
	}

	if ended := l.EndTasks([]task.Result{{Task: t1, Status: task.StatusSuccess}}); len(ended) != 0 {
		t.Fatalf("expected no change, got %v", ended)
	}
}

func TestTasksListOrdering(t *testing.T) {
	l := NewTasksList("test", nil)
	base := time.Unix(1000, 0)

	pending := newTask("pending")
	done := newTask("done")
	late := newTask("late")
	late.StartTime = base.Add(time.Second)
	early := newTask("early")
	early.StartTime = base
	tieA := newTask("tie-a")
	tieB := newTask("tie-b")
	groupTwo := newTask("group-two")
	groupTwo.StartTime = base.Add(-time.Hour)

	l.LoadTasks([]task.Task{pending, done, late, early, tieA, tieB, groupTwo})
	l.StartTasks([]task.Task{late, early}, 1)
	l.StartTasks([]task.Task{groupTwo}, 2)
	tieA.StartTime = base.Add(time.Minute)
	tieB.StartTime = base.Add(time.Minute)
	l.StartTasks([]task.Task{tieB, tieA}, 1)
	l.EndTasks([]task.Result{{Task: done, Status: task.StatusSuccess}})

	want := []string{"early", "late", "tie-a", "tie-b", "group-two", "done", "pending"}
	got := l.Ordered()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestTasksListSelectionMoves(t *testing.T) {
	l := NewTasksList("test", nil)
	l.LoadTasks([]task.Task{newTask("a"), newTask("b"), newTask("c")})

	if l.Selected() != "a" {
		t.Fatalf("expected first task selected, got %q", l.Selected())
	}

	next, _ := l.Update(Action{Kind: ActionNextTask})
	if next.Kind != ActionTaskSelected || next.TaskID != "b" {
		t.Fatalf("expected selection of b, got %+v", next)
	}

	l.Update(Action{Kind: ActionNextTask})
	l.Update(Action{Kind: ActionNextTask})
	if l.Selected() != "c" {
		t.Fatalf("expected selection to stop at last task, got %q", l.Selected())
	}

	l.Update(Action{Kind: ActionPrevTask})
	if l.Selected() != "b" {
		t.Fatalf("expected b, got %q", l.Selected())
	}
}

func TestTasksListResizePropagates(t *testing.T) {
	l := NewTasksList("test", nil)
	t1 := newTask("a")
	l.StartTasks([]task.Task{t1}, 0)
	p := spawn(t, "sleep 5")
	keep := p.Clone()
	defer func() {
		_ = keep.Kill(syscall.SIGKILL)
		keep.Release()
	}()
	l.UpdateTaskPty(t1.ID, p)

	l.Update(Action{Kind: ActionResize, Width: 120, Height: 40})

	wantRows, wantCols := CalculatePtyDimensions(ComputeLayout(Rect{Width: 120, Height: 40}).Pane)
	rows, cols := keep.Screen().Size()
	if rows != int(wantRows) || cols != int(wantCols) {
		t.Fatalf("expected %dx%d, got %dx%d", wantRows, wantCols, rows, cols)
	}
}
