package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"taskdash/internal/task"
)

type Config struct {
	Title    string      `yaml:"title"`
	Shell    string      `yaml:"shell"`
	Parallel int         `yaml:"parallel"`
	Theme    string      `yaml:"theme"`
	Init     CommandList `yaml:"init"`
	Tasks    []TaskDef   `yaml:"tasks"`
}

type TaskDef struct {
	ID            string            `yaml:"id"`
	Project       string            `yaml:"project"`
	Target        string            `yaml:"target"`
	Configuration string            `yaml:"configuration"`
	Cmd           CommandList       `yaml:"cmd"`
	Cwd           string            `yaml:"cwd"`
	Env           map[string]string `yaml:"env"`
	DependsOn     DependencyList    `yaml:"depends_on"`
	Cache         bool              `yaml:"cache"`
	Continuous    bool              `yaml:"continuous"`
	ForwardArgs   bool              `yaml:"forward_args"`
	Outputs       []string          `yaml:"outputs"`
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	cfg.normalize(path)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) normalize(path string) {
	if c.Title == "" {
		c.Title = dirTitle(path)
	}
	c.Shell = strings.TrimSpace(c.Shell)
	c.Theme = strings.ToLower(strings.TrimSpace(c.Theme))
	c.Init = normalizeCommandList(c.Init)

	for i := range c.Tasks {
		t := &c.Tasks[i]
		t.ID = strings.TrimSpace(t.ID)
		t.Project = strings.TrimSpace(t.Project)
		t.Target = strings.TrimSpace(t.Target)
		t.Configuration = strings.TrimSpace(t.Configuration)
		t.Cwd = strings.TrimSpace(t.Cwd)
		t.Cmd = normalizeCommandList(t.Cmd)
		if t.ID == "" && t.Project != "" && t.Target != "" {
			t.ID = t.target().String()
		}
		if t.Project == "" && t.Target == "" {
			t.Project, t.Target, t.Configuration = splitTaskID(t.ID)
		}
		deps := make(DependencyList, 0, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			deps = append(deps, strings.TrimSpace(dep))
		}
		t.DependsOn = deps
	}
}

func (c Config) validate() error {
	if len(c.Tasks) == 0 {
		return fmt.Errorf("config must define at least one task")
	}
	if hasEmptyCommand(c.Init) {
		return fmt.Errorf("init commands must be non-empty")
	}
	if c.Theme != "" && c.Theme != "auto" && c.Theme != "light" && c.Theme != "dark" {
		return fmt.Errorf("theme must be one of auto, light, or dark")
	}
	if c.Parallel < 0 {
		return fmt.Errorf("parallel must not be negative")
	}

	ids := map[string]struct{}{}
	for _, t := range c.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task id is required (set id, or project and target)")
		}
		if _, ok := ids[t.ID]; ok {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		ids[t.ID] = struct{}{}
		if len(t.Cmd) == 0 {
			return fmt.Errorf("task %q is missing cmd", t.ID)
		}
		if hasEmptyCommand(t.Cmd) {
			return fmt.Errorf("task %q has empty commands", t.ID)
		}
	}

	for _, t := range c.Tasks {
		for _, dep := range t.DependsOn {
			if dep == "" {
				return fmt.Errorf("task %q has an empty dependency", t.ID)
			}
			if dep == t.ID {
				return fmt.Errorf("task %q depends on itself", t.ID)
			}
			if _, ok := ids[dep]; !ok {
				return fmt.Errorf("task %q references unknown task %q", t.ID, dep)
			}
		}
	}

	_, err := c.Levels()
	return err
}

// Levels groups the tasks so every task comes after all of its
// dependencies. Tasks keep file order within a level.
func (c Config) Levels() ([][]TaskDef, error) {
	level := make(map[string]int, len(c.Tasks))
	byID := make(map[string]TaskDef, len(c.Tasks))
	for _, t := range c.Tasks {
		byID[t.ID] = t
	}

	const visiting = -1
	var visit func(id string, path []string) (int, error)
	visit = func(id string, path []string) (int, error) {
		if l, ok := level[id]; ok {
			if l == visiting {
				return 0, fmt.Errorf("task cycle detected: %s -> %s", strings.Join(path, " -> "), id)
			}
			return l, nil
		}
		level[id] = visiting
		l := 0
		for _, dep := range byID[id].DependsOn {
			dl, err := visit(dep, append(path, id))
			if err != nil {
				return 0, err
			}
			if dl+1 > l {
				l = dl + 1
			}
		}
		level[id] = l
		return l, nil
	}

	maxLevel := 0
	for _, t := range c.Tasks {
		l, err := visit(t.ID, nil)
		if err != nil {
			return nil, err
		}
		if l > maxLevel {
			maxLevel = l
		}
	}

	levels := make([][]TaskDef, maxLevel+1)
	for _, t := range c.Tasks {
		levels[level[t.ID]] = append(levels[level[t.ID]], t)
	}
	return levels, nil
}

func (t TaskDef) target() task.Target {
	return task.Target{Project: t.Project, Target: t.Target, Configuration: t.Configuration}
}

// Task converts the definition into the descriptor the dashboard shows.
func (t TaskDef) Task() task.Task {
	outputs := append([]string(nil), t.Outputs...)
	sort.Strings(outputs)
	return task.Task{
		ID:          t.ID,
		Target:      t.target(),
		Outputs:     outputs,
		ProjectRoot: t.Cwd,
		Cache:       t.Cache,
		Parallelism: true,
		Continuous:  t.Continuous,
	}
}

// splitTaskID reads project:target[:configuration] ids. Plain ids become
// the project with a "run" target.
func splitTaskID(id string) (string, string, string) {
	parts := strings.SplitN(id, ":", 3)
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2]
	case 2:
		return parts[0], parts[1], ""
	default:
		return id, "run", ""
	}
}
