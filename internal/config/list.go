package config

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListCrews returns all crew names defined under dir/crews.
func ListCrews(dir string) ([]string, error) {
	return listYAMLFiles(filepath.Join(dir, "crews"))
}

// ListFlows returns all flow names defined under dir/flows.
func ListFlows(dir string) ([]string, error) {
	return listYAMLFiles(filepath.Join(dir, "flows"))
}

// ListAgents returns all agent ids declared in dir/agents.yaml.
func ListAgents(dir string) ([]string, error) {
	_, order, err := LoadAgentsFile(filepath.Join(dir, "agents.yaml"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	return order, nil
}

// ListTasks returns all task ids declared in dir/tasks.yaml.
func ListTasks(dir string) ([]string, error) {
	_, order, err := LoadTasksFile(filepath.Join(dir, "tasks.yaml"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	return order, nil
}

func listYAMLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			names = append(names, stripExt(name))
		}
	}
	sort.Strings(names)

	return names, nil
}

func stripExt(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}
