package main

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// CommandList accepts a single command or a list of commands.
type CommandList []string

func (c *CommandList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			return nil
		}
		cmd := strings.TrimSpace(value.Value)
		if cmd == "" {
			*c = nil
			return nil
		}
		*c = CommandList{cmd}
		return nil
	case yaml.SequenceNode:
		cmds := make(CommandList, 0, len(value.Content))
		for _, node := range value.Content {
			if node.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: commands must be strings", node.Line)
			}
			cmds = append(cmds, strings.TrimSpace(node.Value))
		}
		*c = cmds
		return nil
	case 0:
		return nil
	default:
		return fmt.Errorf("line %d: commands must be a string or list", value.Line)
	}
}

// Script joins the commands so that the first failure stops the rest.
func (c CommandList) Script() string {
	parts := make([]string, 0, len(c))
	for _, cmd := range c {
		if cmd = strings.TrimSpace(cmd); cmd != "" {
			parts = append(parts, cmd)
		}
	}
	return strings.Join(parts, " && ")
}

func normalizeCommandList(list CommandList) CommandList {
	if len(list) == 0 {
		return nil
	}
	out := make(CommandList, 0, len(list))
	for _, cmd := range list {
		out = append(out, strings.TrimSpace(cmd))
	}
	return out
}

func hasEmptyCommand(list CommandList) bool {
	for _, cmd := range list {
		if strings.TrimSpace(cmd) == "" {
			return true
		}
	}
	return false
}

// buildShellCommand prefixes the init commands to a task script. Init
// commands are separated with ';' so a failing one does not hide the task.
func buildShellCommand(init CommandList, command string) string {
	command = strings.TrimSpace(command)
	if len(init) == 0 {
		return command
	}
	parts := make([]string, 0, len(init)+1)
	for _, cmd := range init {
		if strings.TrimSpace(cmd) != "" {
			parts = append(parts, cmd)
		}
	}
	if command != "" {
		parts = append(parts, command)
	}
	return strings.Join(parts, "; ")
}
