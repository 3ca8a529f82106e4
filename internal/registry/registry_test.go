package registry

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupRegistry(t *testing.T) (*RunningTasks, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workspace", "running.db")
	r, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, path
}

func TestAddIsRunningRemove(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	running, err := r.IsRunning(ctx, "build:app")
	require.NoError(t, err)
	require.False(t, running)

	require.NoError(t, r.Add(ctx, "build:app"))
	running, err = r.IsRunning(ctx, "build:app")
	require.NoError(t, err)
	require.True(t, running)

	require.NoError(t, r.Remove(ctx, "build:app"))
	running, err = r.IsRunning(ctx, "build:app")
	require.NoError(t, err)
	require.False(t, running)
}

func TestAddDuplicateFailsCleanly(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Add(ctx, "lint:app"))
	err := r.Add(ctx, "lint:app")
	require.True(t, errors.Is(err, ErrAlreadyRunning), "got %v", err)

	running, err := r.IsRunning(ctx, "lint:app")
	require.NoError(t, err)
	require.True(t, running)
}

func TestRemoveMissingIsNoop(t *testing.T) {
	r, _ := setupRegistry(t)
	require.NoError(t, r.Remove(context.Background(), "never-added"))
}

func TestStateSurvivesReopen(t *testing.T) {
	r, path := setupRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Add(ctx, "test:lib"))
	require.NoError(t, r.Add(ctx, "build:lib"))
	require.NoError(t, r.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	ids, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"build:lib", "test:lib"}, ids)
}

func TestNewWithSharedConnection(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "shared.db"))
	require.NoError(t, err)
	defer db.Close()

	r, err := New(db)
	require.NoError(t, err)
	require.NoError(t, r.Add(context.Background(), "e2e:app"))
	require.NoError(t, r.Close())

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM running_tasks`).Scan(&count))
	require.Equal(t, 1, count)
}
