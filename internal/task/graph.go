package task

import (
	"fmt"

	troupeErrors "github.com/stxkxs/troupe/internal/errors"
)

// Graph holds a crew's tasks in declared order plus their dependency edges.
// Dependencies on unknown task ids are not edges: such tasks never become
// ready and are skipped at run time rather than rejected up front.
type Graph struct {
	order []string
	tasks map[string]*Task
	deps  map[string][]string
}

// NewGraph creates an empty task graph.
func NewGraph() *Graph {
	return &Graph{
		tasks: make(map[string]*Task),
		deps:  make(map[string][]string),
	}
}

// Add inserts a task, preserving insertion order.
func (g *Graph) Add(t *Task) error {
	if _, exists := g.tasks[t.ID()]; exists {
		return fmt.Errorf("task already exists: %s", t.ID())
	}
	g.order = append(g.order, t.ID())
	g.tasks[t.ID()] = t
	g.deps[t.ID()] = t.Dependencies()
	return nil
}

// Get returns a task by id.
func (g *Graph) Get(id string) (*Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Tasks returns all tasks in declared order.
func (g *Graph) Tasks() []*Task {
	tasks := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, g.tasks[id])
	}
	return tasks
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	return len(g.order)
}

// Validate rejects dependency cycles. DFS with a recursion colour set; a
// back-edge to a task on the current path is a cycle.
func (g *Graph) Validate() error {
	visited := make(map[string]bool)
	onPath := make(map[string]bool)

	var visit func(id string) (bool, string)
	visit = func(id string) (bool, string) {
		visited[id] = true
		onPath[id] = true

		for _, dep := range g.deps[id] {
			if _, known := g.tasks[dep]; !known {
				continue // unknown dep: no edge, the task will be skipped
			}
			if !visited[dep] {
				if found, cycle := visit(dep); found {
					return true, cycle
				}
			} else if onPath[dep] {
				return true, fmt.Sprintf("%s -> %s", id, dep)
			}
		}

		onPath[id] = false
		return false, ""
	}

	for _, id := range g.order {
		if !visited[id] {
			if found, cycle := visit(id); found {
				return troupeErrors.New(troupeErrors.CodeCircularDependency,
					fmt.Sprintf("cycle detected involving task %s (%s)", id, cycle)).
					WithSuggestion("Remove or restructure the circular dependency in your task graph")
			}
		}
	}

	return nil
}
