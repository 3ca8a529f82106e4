// Package registry persists the ids of tasks that are currently executing so
// that a later process can spot tasks left behind by a crashed dashboard.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var ErrAlreadyRunning = errors.New("task already marked running")

type RunningTasks struct {
	db     *sql.DB
	ownsDB bool
}

// Open opens (creating if needed) the sqlite database at path.
func Open(path string) (*RunningTasks, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &RunningTasks{db: db, ownsDB: true}
	if err := r.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// New wraps an existing connection. The caller keeps ownership of db.
func New(db *sql.DB) (*RunningTasks, error) {
	r := &RunningTasks{db: db}
	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RunningTasks) init() error {
	_, err := r.db.Exec(`
CREATE TABLE IF NOT EXISTS running_tasks (
	task_id TEXT PRIMARY KEY NOT NULL
);
`)
	return err
}

func (r *RunningTasks) IsRunning(ctx context.Context, taskID string) (bool, error) {
	var exists bool
	row := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM running_tasks WHERE task_id = ?)`, taskID)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("query running task %q: %w", taskID, err)
	}
	return exists, nil
}

// Add records taskID as running. A second Add for the same id returns
// ErrAlreadyRunning and leaves the row untouched.
func (r *RunningTasks) Add(ctx context.Context, taskID string) error {
	res, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO running_tasks (task_id) VALUES (?)`, taskID)
	if err != nil {
		return fmt.Errorf("add running task %q: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("add running task %q: %w", taskID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, taskID)
	}
	return nil
}

func (r *RunningTasks) Remove(ctx context.Context, taskID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM running_tasks WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("remove running task %q: %w", taskID, err)
	}
	return nil
}

// List returns every recorded id in ascending order.
func (r *RunningTasks) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT task_id FROM running_tasks ORDER BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("list running tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *RunningTasks) Close() error {
	if !r.ownsDB {
		return nil
	}
	return r.db.Close()
}
