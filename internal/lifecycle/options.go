package lifecycle

import (
	"strings"

	"taskdash/internal/task"
)

// CommandOptions is one normalized command of a task.
type CommandOptions struct {
	Command        string `json:"command" yaml:"command"`
	ForwardAllArgs bool   `json:"forwardAllArgs,omitempty" yaml:"forward_all_args,omitempty"`
}

// ReadyWhenStatus tracks one ready-when pattern. The host matches them; the
// engine only carries them.
type ReadyWhenStatus struct {
	StringToMatch string `json:"stringToMatch"`
	Found         bool   `json:"found"`
}

// RunCommandsOptions are the normalized options a host passes to
// RunTaskCommand. Only the first entry of Commands is executed here; hosts
// that need several commands run them as one shell script.
type RunCommandsOptions struct {
	Commands            []CommandOptions
	UnknownOptions      map[string]any
	ParsedArgs          map[string]any
	UnparsedCommandArgs map[string]any
	Args                string
	ReadyWhenStatus     []ReadyWhenStatus

	Command        []string
	Color          bool
	Parallel       bool
	ReadyWhen      []string
	Cwd            string
	Env            map[string]string
	ForwardAllArgs bool
	EnvFile        string
	Unparsed       []string
	UsePty         bool
	StreamOutput   bool
	TTY            bool
}

// FirstCommand returns the command line to run, with Args appended when
// the command forwards arguments.
func (o RunCommandsOptions) FirstCommand() string {
	if len(o.Commands) == 0 {
		if len(o.Command) == 0 {
			return ""
		}
		return strings.TrimSpace(o.Command[0])
	}
	first := o.Commands[0]
	cmd := strings.TrimSpace(first.Command)
	if cmd == "" {
		return ""
	}
	if args := strings.TrimSpace(o.Args); args != "" && (first.ForwardAllArgs || o.ForwardAllArgs) {
		cmd += " " + args
	}
	return cmd
}

// Environment returns the variables set for the process on top of the
// inherited environment.
func (o RunCommandsOptions) Environment() map[string]string {
	env := make(map[string]string, len(o.Env)+2)
	env["TERM"] = "xterm-256color"
	if o.Color {
		env["FORCE_COLOR"] = "true"
	}
	for k, v := range o.Env {
		env[k] = v
	}
	return env
}

// TaskResult is a host's end-of-task report. Status uses the wire names
// accepted by task.ParseStatus.
type TaskResult struct {
	Task           task.Task
	Status         string
	Code           int
	TerminalOutput string
}

// Output is what a finished process left behind.
type Output struct {
	Code           int
	TerminalOutput string
}
