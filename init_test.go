package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// inTempDir runs the test from a fresh directory and returns it.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	return dir
}

// feedStdin replaces os.Stdin with a pipe holding input.
func feedStdin(t *testing.T, input string) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	_, _ = w.WriteString(input)
	_ = w.Close()
	orig := os.Stdin
	os.Stdin = r
	t.Cleanup(func() {
		os.Stdin = orig
		_ = r.Close()
	})
}

func TestInitCommandWritesLoadableTaskFile(t *testing.T) {
	dir := inTempDir(t)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"init"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out.String(), "Created "+defaultConfigName) {
		t.Fatalf("unexpected output %q", out.String())
	}

	cfg, err := LoadConfig(defaultConfigName)
	if err != nil {
		t.Fatalf("load starter file: %v", err)
	}
	if cfg.Title != filepath.Base(dir) {
		t.Fatalf("expected title %q, got %q", filepath.Base(dir), cfg.Title)
	}
	levels, err := cfg.Levels()
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	if len(levels) != 2 || len(levels[0]) != 2 {
		t.Fatalf("expected lint and build first, then serve and e2e; got %d levels", len(levels))
	}
	e2e := levels[1][1]
	if e2e.ID != "app:e2e" || !e2e.ForwardArgs {
		t.Fatalf("expected e2e to forward args, got %+v", e2e)
	}

	before, _ := os.ReadFile(defaultConfigName)
	again := newRootCmd()
	again.SetOut(&bytes.Buffer{})
	again.SetArgs([]string{"init"})
	if err := again.Execute(); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected existing file error, got %v", err)
	}
	after, _ := os.ReadFile(defaultConfigName)
	if !bytes.Equal(before, after) {
		t.Fatalf("existing task file was rewritten")
	}
}

func TestRunDashboardOffersInit(t *testing.T) {
	cases := []struct {
		name     string
		terminal bool
		answer   string
		wantErr  error
		created  bool
		wantOut  string
	}{
		{name: "not a terminal", answer: "y\n", wantErr: errConfigMissing, wantOut: "Run `taskdash init`"},
		{name: "accepted", terminal: true, answer: "yes\n", created: true, wantOut: "Created " + defaultConfigName},
		{name: "declined", terminal: true, answer: "n\n", wantErr: errConfigMissing, wantOut: "[y/N]"},
		{name: "no answer", terminal: true, wantErr: errConfigMissing, wantOut: "[y/N]"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inTempDir(t)
			feedStdin(t, tc.answer)
			orig := isTerminalFn
			isTerminalFn = func(*os.File) bool { return tc.terminal }
			t.Cleanup(func() { isTerminalFn = orig })

			var out bytes.Buffer
			err := runDashboard(context.Background(), &out, defaultConfigName, "", nil)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if !strings.Contains(out.String(), tc.wantOut) {
				t.Fatalf("expected %q in output %q", tc.wantOut, out.String())
			}
			_, statErr := os.Stat(defaultConfigName)
			if created := statErr == nil; created != tc.created {
				t.Fatalf("expected created=%v, stat err %v", tc.created, statErr)
			}
		})
	}
}

func TestRunDashboardExplicitMissingFileDoesNotOfferInit(t *testing.T) {
	inTempDir(t)
	orig := isTerminalFn
	isTerminalFn = func(*os.File) bool { return true }
	t.Cleanup(func() { isTerminalFn = orig })

	var out bytes.Buffer
	err := runDashboard(context.Background(), &out, "ci.yml", "", nil)
	if err == nil || errors.Is(err, errConfigMissing) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected plain not-exist error, got %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("did not expect a prompt, got %q", out.String())
	}
}

func TestStarterTaskFileDefaultTitle(t *testing.T) {
	if content := starterTaskFile(" "); !strings.Contains(content, `title: "taskdash"`) {
		t.Fatalf("expected default title, got:\n%s", content)
	}
}
