package main

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DependencyList names the tasks that must finish first. It accepts a
// single id, a list of ids, or {task: id} entries.
type DependencyList []string

func (d *DependencyList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			return nil
		}
		id := strings.TrimSpace(value.Value)
		if id == "" {
			*d = nil
			return nil
		}
		*d = DependencyList{id}
		return nil
	case yaml.SequenceNode:
		deps := make(DependencyList, 0, len(value.Content))
		for _, node := range value.Content {
			id, err := parseDependencyNode(node)
			if err != nil {
				return err
			}
			deps = append(deps, id)
		}
		*d = deps
		return nil
	case yaml.MappingNode:
		id, err := parseDependencyNode(value)
		if err != nil {
			return err
		}
		*d = DependencyList{id}
		return nil
	case 0:
		return nil
	default:
		return fmt.Errorf("line %d: depends_on must be a string or list", value.Line)
	}
}

func parseDependencyNode(node *yaml.Node) (string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return strings.TrimSpace(node.Value), nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			val := node.Content[i+1]
			if key.Kind != yaml.ScalarNode || strings.TrimSpace(key.Value) != "task" {
				continue
			}
			if val.Kind != yaml.ScalarNode {
				return "", fmt.Errorf("line %d: dependency task must be a string", val.Line)
			}
			return strings.TrimSpace(val.Value), nil
		}
		return "", fmt.Errorf("line %d: dependency must be a string or {task: ...}", node.Line)
	default:
		return "", fmt.Errorf("line %d: dependency must be a string or map", node.Line)
	}
}
