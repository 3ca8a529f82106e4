// Package task holds the task descriptors and statuses shared by the
// dashboard engine and its host.
package task

import (
	"fmt"
	"time"
)

// Target identifies what a task runs: a project's target, optionally under a
// named configuration.
type Target struct {
	Project       string `json:"project" yaml:"project"`
	Target        string `json:"target" yaml:"target"`
	Configuration string `json:"configuration,omitempty" yaml:"configuration,omitempty"`
}

func (t Target) String() string {
	if t.Configuration == "" {
		return fmt.Sprintf("%s:%s", t.Project, t.Target)
	}
	return fmt.Sprintf("%s:%s:%s", t.Project, t.Target, t.Configuration)
}

// Task is the identity and descriptor of one unit of work. Overrides are
// opaque to the engine.
type Task struct {
	ID          string         `json:"id"`
	Target      Target         `json:"target"`
	Overrides   map[string]any `json:"overrides,omitempty"`
	Outputs     []string       `json:"outputs,omitempty"`
	ProjectRoot string         `json:"projectRoot,omitempty"`
	Hash        string         `json:"hash,omitempty"`
	StartTime   time.Time      `json:"startTime,omitzero"`
	EndTime     time.Time      `json:"endTime,omitzero"`
	Cache       bool           `json:"cache,omitempty"`
	Parallelism bool           `json:"parallelism"`
	Continuous  bool           `json:"continuous,omitempty"`
}

// Result is the host's final word on a task.
type Result struct {
	Task           Task
	Status         Status
	Code           int
	TerminalOutput string
}

// Metadata accompanies a batch of started or ended tasks.
type Metadata struct {
	GroupID int
}
