package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taskdash/internal/task"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.yml")
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	data := `tasks:
  - project: web
    target: build
    cmd: make build

  - id: lint
    cmd: make lint
`

	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	expectedTitle := filepath.Base(dir)
	if cfg.Title != expectedTitle {
		t.Fatalf("expected title %q, got %q", expectedTitle, cfg.Title)
	}
	if cfg.Shell != "" {
		t.Fatalf("expected shell to fall back to settings, got %q", cfg.Shell)
	}
	if cfg.Tasks[0].ID != "web:build" {
		t.Fatalf("expected id derived from target, got %q", cfg.Tasks[0].ID)
	}
	if cfg.Tasks[1].Project != "lint" || cfg.Tasks[1].Target != "run" {
		t.Fatalf("expected plain id to become lint:run, got %s:%s", cfg.Tasks[1].Project, cfg.Tasks[1].Target)
	}
}

func TestTaskDefTask(t *testing.T) {
	def := TaskDef{
		ID:            "web:build:production",
		Project:       "web",
		Target:        "build",
		Configuration: "production",
		Cwd:           "apps/web",
		Cache:         true,
		Outputs:       []string{"dist", "coverage"},
	}
	got := def.Task()
	if got.Target.String() != "web:build:production" {
		t.Fatalf("unexpected target %q", got.Target)
	}
	if got.ProjectRoot != "apps/web" || !got.Cache || got.Continuous {
		t.Fatalf("unexpected task %+v", got)
	}
	if strings.Join(got.Outputs, ",") != "coverage,dist" {
		t.Fatalf("expected sorted outputs, got %v", got.Outputs)
	}
	if strings.Join(def.Outputs, ",") != "dist,coverage" {
		t.Fatalf("definition outputs were reordered: %v", def.Outputs)
	}
}

func TestSplitTaskID(t *testing.T) {
	tests := []struct {
		id                     string
		project, target, confg string
	}{
		{"a:b:c", "a", "b", "c"},
		{"a:b", "a", "b", ""},
		{"lint", "lint", "run", ""},
	}
	for _, tt := range tests {
		p, tg, c := splitTaskID(tt.id)
		if p != tt.project || tg != tt.target || c != tt.confg {
			t.Fatalf("%s: got %s %s %s", tt.id, p, tg, c)
		}
	}
}

func TestConfigValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{
			name: "no tasks",
			cfg:  Config{},
		},
		{
			name: "missing id",
			cfg:  Config{Tasks: []TaskDef{{Project: "a", Cmd: CommandList{"echo"}}}},
		},
		{
			name: "duplicate id",
			cfg:  Config{Tasks: []TaskDef{{ID: "a", Cmd: CommandList{"echo"}}, {ID: "a", Cmd: CommandList{"echo"}}}},
		},
		{
			name: "missing cmd",
			cfg:  Config{Tasks: []TaskDef{{ID: "a"}}},
		},
		{
			name: "empty command",
			cfg:  Config{Tasks: []TaskDef{{ID: "a", Cmd: CommandList{"echo", " "}}}},
		},
		{
			name: "init empty command",
			cfg: Config{
				Tasks: []TaskDef{{ID: "a", Cmd: CommandList{"echo"}}},
				Init:  CommandList{""},
			},
		},
		{
			name: "negative parallel",
			cfg:  Config{Parallel: -1, Tasks: []TaskDef{{ID: "a", Cmd: CommandList{"echo"}}}},
		},
		{
			name: "unknown dependency",
			cfg:  Config{Tasks: []TaskDef{{ID: "a", Cmd: CommandList{"echo"}, DependsOn: DependencyList{"missing"}}}},
		},
		{
			name: "self dependency",
			cfg:  Config{Tasks: []TaskDef{{ID: "a", Cmd: CommandList{"echo"}, DependsOn: DependencyList{"a"}}}},
		},
		{
			name: "cycle",
			cfg: Config{Tasks: []TaskDef{
				{ID: "a", Cmd: CommandList{"echo"}, DependsOn: DependencyList{"c"}},
				{ID: "b", Cmd: CommandList{"echo"}, DependsOn: DependencyList{"a"}},
				{ID: "c", Cmd: CommandList{"echo"}, DependsOn: DependencyList{"b"}},
			}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.normalize("tasks.yml")
			if err := tc.cfg.validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestCycleErrorNamesPath(t *testing.T) {
	cfg := Config{Tasks: []TaskDef{
		{ID: "a", Cmd: CommandList{"echo"}, DependsOn: DependencyList{"b"}},
		{ID: "b", Cmd: CommandList{"echo"}, DependsOn: DependencyList{"a"}},
	}}
	_, err := cfg.Levels()
	if err == nil || !strings.Contains(err.Error(), "a -> b -> a") {
		t.Fatalf("expected cycle path in error, got %v", err)
	}
}

func TestLevels(t *testing.T) {
	cfg := Config{Tasks: []TaskDef{
		{ID: "e2e", Cmd: CommandList{"e2e"}, DependsOn: DependencyList{"build", "lint"}},
		{ID: "lint", Cmd: CommandList{"lint"}},
		{ID: "build", Cmd: CommandList{"build"}, DependsOn: DependencyList{"codegen"}},
		{ID: "codegen", Cmd: CommandList{"gen"}},
	}}
	levels, err := cfg.Levels()
	if err != nil {
		t.Fatalf("levels: %v", err)
	}

	var got []string
	for _, level := range levels {
		var ids []string
		for _, def := range level {
			ids = append(ids, def.ID)
		}
		got = append(got, strings.Join(ids, ","))
	}
	want := "lint,codegen|build|e2e"
	if strings.Join(got, "|") != want {
		t.Fatalf("expected %s, got %s", want, strings.Join(got, "|"))
	}
}

func TestPlannedTasksCarryHashes(t *testing.T) {
	cfg := Config{
		Init: CommandList{"export CI=1"},
		Tasks: []TaskDef{
			{ID: "b", Cmd: CommandList{"echo b"}, DependsOn: DependencyList{"a"}},
			{ID: "a", Cmd: CommandList{"echo a"}},
		},
	}
	cfg.normalize("tasks.yml")
	tasks, err := plannedTasks(cfg)
	if err != nil {
		t.Fatalf("planned tasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "a" || tasks[1].ID != "b" {
		t.Fatalf("expected level order a, b; got %+v", tasks)
	}
	for _, tk := range tasks {
		if len(tk.Hash) != 64 {
			t.Fatalf("expected sha256 hash on %s, got %q", tk.ID, tk.Hash)
		}
	}
	if tasks[0].Hash == tasks[1].Hash {
		t.Fatalf("expected distinct hashes")
	}
	if tasks[0].Target != (task.Target{Project: "a", Target: "run"}) {
		t.Fatalf("unexpected target %+v", tasks[0].Target)
	}
}

func TestThemeValidation(t *testing.T) {
	cfg := Config{
		Theme: "light",
		Tasks: []TaskDef{{ID: "build", Cmd: CommandList{"make build"}}},
	}
	cfg.normalize("tasks.yml")
	if err := cfg.validate(); err != nil {
		t.Fatalf("expected theme to be valid, got %v", err)
	}

	cfg.Theme = "neon"
	if err := cfg.validate(); err == nil {
		t.Fatalf("expected invalid theme error")
	}
}
