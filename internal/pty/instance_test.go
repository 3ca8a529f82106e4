package pty

import (
	"errors"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startShell(t *testing.T, script string) *Instance {
	t.Helper()
	inst, err := New(Options{
		Rows:    10,
		Cols:    40,
		Program: "/bin/sh",
		Args:    []string{"-c", script},
	})
	require.NoError(t, err)
	t.Cleanup(inst.Release)
	return inst
}

func waitExit(t *testing.T, inst *Instance) int {
	t.Helper()
	select {
	case <-inst.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("process did not exit")
	}
	code, ok := inst.ExitStatus()
	require.True(t, ok)
	return code
}

func TestInstanceExitStatusAndOutput(t *testing.T) {
	inst := startShell(t, "echo 'error: failed'; exit 1")

	code := waitExit(t, inst)
	require.Equal(t, 1, code)
	require.Contains(t, string(inst.AllContentsFormatted()), "error: failed")
}

func TestInstanceExitStatusStable(t *testing.T) {
	inst := startShell(t, "exit 3")
	waitExit(t, inst)

	for i := 0; i < 3; i++ {
		code, ok := inst.ExitStatus()
		require.True(t, ok)
		require.Equal(t, 3, code)
	}
}

func TestInstanceExitStatusPendingWhileRunning(t *testing.T) {
	inst := startShell(t, "sleep 5")

	_, ok := inst.ExitStatus()
	require.False(t, ok)

	require.NoError(t, inst.Kill(syscall.SIGKILL))
	code := waitExit(t, inst)
	require.Equal(t, 128+int(syscall.SIGKILL), code)
}

func TestInstanceKillAfterExit(t *testing.T) {
	inst := startShell(t, "true")
	waitExit(t, inst)

	err := inst.Kill(syscall.SIGTERM)
	require.True(t, errors.Is(err, ErrNoProcess))
}

func TestInstanceTerminate(t *testing.T) {
	inst := startShell(t, "trap '' TERM; sleep 5")
	time.Sleep(100 * time.Millisecond)

	inst.Terminate(100 * time.Millisecond)
	waitExit(t, inst)
}

func TestInstanceEnvOverrides(t *testing.T) {
	inst, err := New(Options{
		Program: "/bin/sh",
		Args:    []string{"-c", `printf '%s' "$TASKDASH_TEST_VALUE"`},
		Env:     map[string]string{"TASKDASH_TEST_VALUE": "from-options"},
	})
	require.NoError(t, err)
	defer inst.Release()

	waitExit(t, inst)
	require.Equal(t, "from-options", inst.Screen().Contents())
}

func TestInstanceResize(t *testing.T) {
	inst := startShell(t, "sleep 5")
	require.NoError(t, inst.Resize(20, 60))

	rows, cols := inst.Screen().Size()
	require.Equal(t, 20, rows)
	require.Equal(t, 60, cols)

	require.NoError(t, inst.Kill(syscall.SIGKILL))
	waitExit(t, inst)
}

func TestInstanceSpawnFailure(t *testing.T) {
	_, err := New(Options{Program: "/definitely/not/a/program"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrStart))

	_, err = New(Options{})
	require.True(t, errors.Is(err, ErrStart))
}

func TestInstanceClone(t *testing.T) {
	inst, err := New(Options{Program: "/bin/sh", Args: []string{"-c", "echo shared"}})
	require.NoError(t, err)

	clone := inst.Clone()
	require.Same(t, inst, clone)
	require.Equal(t, 2, inst.Holders())

	inst.Release()
	require.Equal(t, 1, clone.Holders())
	waitExit(t, clone)
	require.True(t, strings.Contains(clone.Screen().Contents(), "shared"))
	clone.Release()
	require.Equal(t, 0, clone.Holders())
}

func TestMergeEnvAppendsSortedOverrides(t *testing.T) {
	env := mergeEnv([]string{"A=1"}, map[string]string{"C": "3", "B": "2"})
	require.Equal(t, []string{"A=1", "B=2", "C=3"}, env)
}
