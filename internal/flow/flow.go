// Package flow walks prioritised state machines that compose crews. A Flow
// is a validated definition with compiled transition conditions; an Engine
// runs one and reports where the walk went.
package flow

import (
	"fmt"

	"github.com/stxkxs/troupe/internal/config"
	troupeErrors "github.com/stxkxs/troupe/internal/errors"
)

// Flow is a validated state machine definition. States keep their config
// shape; transition conditions are compiled once at construction.
type Flow struct {
	cfg         *config.FlowConfig
	states      map[string]*config.StateConfig
	initial     string
	transitions []Transition
}

// Transition is a compiled edge. Transitions keep their declaration order,
// which breaks priority ties.
type Transition struct {
	ID        string
	From      string
	To        string
	Condition Condition
	Priority  int
}

// New validates a flow config and compiles its conditions.
func New(cfg *config.FlowConfig) (*Flow, error) {
	if err := config.ValidateFlow(cfg); err != nil {
		return nil, troupeErrors.Wrap(troupeErrors.CodeFlowInvalid, fmt.Sprintf("flow %q is invalid", cfg.Name), err)
	}

	f := &Flow{
		cfg:    cfg,
		states: make(map[string]*config.StateConfig, len(cfg.States)),
	}
	for i := range cfg.States {
		s := &cfg.States[i]
		f.states[s.ID] = s
		if s.IsInitial {
			f.initial = s.ID
		}
	}

	f.transitions = make([]Transition, 0, len(cfg.Transitions))
	for i := range cfg.Transitions {
		tr := &cfg.Transitions[i]
		cond, err := CompileCondition(&tr.Condition)
		if err != nil {
			return nil, troupeErrors.Wrap(troupeErrors.CodeFlowInvalid,
				fmt.Sprintf("flow %q transition %s -> %s", cfg.Name, tr.From, tr.To), err)
		}
		f.transitions = append(f.transitions, Transition{
			ID:        tr.ID,
			From:      tr.From,
			To:        tr.To,
			Condition: cond,
			Priority:  tr.Priority,
		})
	}

	return f, nil
}

// Name returns the flow's name.
func (f *Flow) Name() string { return f.cfg.Name }

// Initial returns the id of the initial state.
func (f *Flow) Initial() string { return f.initial }

// State looks up a state by id.
func (f *Flow) State(id string) (*config.StateConfig, bool) {
	s, ok := f.states[id]
	return s, ok
}

// MaxIterations returns the configured iteration cap (0 = use the default).
func (f *Flow) MaxIterations() int { return f.cfg.MaxIterations }

// Variables returns a copy of the flow's seed variables.
func (f *Flow) Variables() map[string]interface{} {
	vars := make(map[string]interface{}, len(f.cfg.Variables))
	for k, v := range f.cfg.Variables {
		vars[k] = v
	}
	return vars
}
