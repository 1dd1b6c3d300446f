package config

import (
	"strings"
	"testing"
)

func TestValidateAgent(t *testing.T) {
	tests := []struct {
		name    string
		agent   AgentConfig
		wantErr string
	}{
		{
			name: "valid",
			agent: AgentConfig{
				ID: "researcher", Role: "Researcher", Goal: "Find things", Backstory: "Curious",
			},
			wantErr: "",
		},
		{
			name:    "missing role",
			agent:   AgentConfig{ID: "a", Goal: "g", Backstory: "b"},
			wantErr: "role is required",
		},
		{
			name:    "missing goal",
			agent:   AgentConfig{ID: "a", Role: "r", Backstory: "b"},
			wantErr: "goal is required",
		},
		{
			name:    "missing backstory",
			agent:   AgentConfig{ID: "a", Role: "r", Goal: "g"},
			wantErr: "backstory is required",
		},
		{
			name: "temperature too high",
			agent: AgentConfig{
				ID: "a", Role: "r", Goal: "g", Backstory: "b", Temperature: 1.5,
			},
			wantErr: "temperature",
		},
		{
			name: "negative max_iter",
			agent: AgentConfig{
				ID: "a", Role: "r", Goal: "g", Backstory: "b", MaxIter: -1,
			},
			wantErr: "max_iter",
		},
		{
			name: "bad memory type",
			agent: AgentConfig{
				ID: "a", Role: "r", Goal: "g", Backstory: "b",
				Memory: &MemoryConfig{Type: "photographic"},
			},
			wantErr: "invalid memory type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAgent(&tt.agent)
			checkErr(t, err, tt.wantErr)
		})
	}
}

func TestValidateTask(t *testing.T) {
	tests := []struct {
		name    string
		task    TaskConfig
		wantErr string
	}{
		{
			name: "valid",
			task: TaskConfig{
				ID: "research", Description: "Look it up", ExpectedOutput: "Notes",
				Context: []string{"prior"},
			},
			wantErr: "",
		},
		{
			name:    "missing description",
			task:    TaskConfig{ID: "t", ExpectedOutput: "x"},
			wantErr: "description is required",
		},
		{
			name:    "missing expected_output",
			task:    TaskConfig{ID: "t", Description: "x"},
			wantErr: "expected_output is required",
		},
		{
			name: "negative retries",
			task: TaskConfig{
				ID: "t", Description: "x", ExpectedOutput: "y", MaxRetries: -2,
			},
			wantErr: "max_retries",
		},
		{
			name: "duplicate context dependency",
			task: TaskConfig{
				ID: "t", Description: "x", ExpectedOutput: "y",
				Context: []string{"a", "a"},
			},
			wantErr: "duplicate context dependency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTask(&tt.task)
			checkErr(t, err, tt.wantErr)
		})
	}
}

func TestValidateCrew(t *testing.T) {
	tests := []struct {
		name    string
		crew    CrewConfig
		wantErr string
	}{
		{
			name: "valid sequential",
			crew: CrewConfig{
				Name: "c", Tasks: []string{"a", "b"},
				Process: ProcessConfig{Type: "sequential"},
			},
			wantErr: "",
		},
		{
			name:    "no tasks",
			crew:    CrewConfig{Name: "c"},
			wantErr: "at least one task",
		},
		{
			name: "duplicate tasks",
			crew: CrewConfig{
				Name: "c", Tasks: []string{"a", "a"},
			},
			wantErr: "duplicate task: a",
		},
		{
			name: "unknown process",
			crew: CrewConfig{
				Name: "c", Tasks: []string{"a"},
				Process: ProcessConfig{Type: "democratic"},
			},
			wantErr: "invalid process type",
		},
		{
			name: "hierarchical without manager",
			crew: CrewConfig{
				Name: "c", Tasks: []string{"a"},
				Process: ProcessConfig{Type: "hierarchical"},
			},
			wantErr: "manager_model",
		},
		{
			name: "hierarchical with manager",
			crew: CrewConfig{
				Name: "c", Tasks: []string{"a"},
				Process: ProcessConfig{Type: "hierarchical", ManagerModel: "gpt-4o"},
			},
			wantErr: "",
		},
		{
			name: "negative crew timeout",
			crew: CrewConfig{
				Name: "c", Tasks: []string{"a"},
				Process: ProcessConfig{CrewTimeoutS: -1},
			},
			wantErr: "crew_timeout_s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCrew(&tt.crew)
			checkErr(t, err, tt.wantErr)
		})
	}
}

func TestValidateFlow(t *testing.T) {
	okStates := []StateConfig{
		{ID: "start", IsInitial: true},
		{ID: "done", IsFinal: true},
	}

	tests := []struct {
		name    string
		flow    FlowConfig
		wantErr string
	}{
		{
			name: "valid",
			flow: FlowConfig{
				Name: "f", States: okStates,
				Transitions: []TransitionConfig{
					{From: "start", To: "done", Condition: ConditionConfig{Type: "always"}},
				},
			},
			wantErr: "",
		},
		{
			name:    "no states",
			flow:    FlowConfig{Name: "f"},
			wantErr: "at least one state",
		},
		{
			name: "no initial state",
			flow: FlowConfig{
				Name:   "f",
				States: []StateConfig{{ID: "done", IsFinal: true}},
			},
			wantErr: "exactly one initial state is required, found none",
		},
		{
			name: "two initial states",
			flow: FlowConfig{
				Name: "f",
				States: []StateConfig{
					{ID: "a", IsInitial: true},
					{ID: "b", IsInitial: true, IsFinal: true},
				},
			},
			wantErr: "found 2",
		},
		{
			name: "no final state",
			flow: FlowConfig{
				Name:   "f",
				States: []StateConfig{{ID: "a", IsInitial: true}},
			},
			wantErr: "at least one final state",
		},
		{
			name: "duplicate state ids",
			flow: FlowConfig{
				Name: "f",
				States: []StateConfig{
					{ID: "a", IsInitial: true},
					{ID: "a", IsFinal: true},
				},
			},
			wantErr: "duplicate state id",
		},
		{
			name: "unknown transition endpoint",
			flow: FlowConfig{
				Name: "f", States: okStates,
				Transitions: []TransitionConfig{
					{From: "start", To: "missing"},
				},
			},
			wantErr: `unknown to state "missing"`,
		},
		{
			name: "output_contains without value",
			flow: FlowConfig{
				Name: "f", States: okStates,
				Transitions: []TransitionConfig{
					{From: "start", To: "done", Condition: ConditionConfig{Type: "output_contains"}},
				},
			},
			wantErr: "output_contains requires a value",
		},
		{
			name: "output_matches without pattern",
			flow: FlowConfig{
				Name: "f", States: okStates,
				Transitions: []TransitionConfig{
					{From: "start", To: "done", Condition: ConditionConfig{Type: "output_matches"}},
				},
			},
			wantErr: "output_matches requires a pattern",
		},
		{
			name: "variable_equals without name",
			flow: FlowConfig{
				Name: "f", States: okStates,
				Transitions: []TransitionConfig{
					{From: "start", To: "done", Condition: ConditionConfig{Type: "variable_equals"}},
				},
			},
			wantErr: "variable_equals requires a name",
		},
		{
			name: "empty and",
			flow: FlowConfig{
				Name: "f", States: okStates,
				Transitions: []TransitionConfig{
					{From: "start", To: "done", Condition: ConditionConfig{Type: "and"}},
				},
			},
			wantErr: "requires nested conditions",
		},
		{
			name: "not without operand",
			flow: FlowConfig{
				Name: "f", States: okStates,
				Transitions: []TransitionConfig{
					{From: "start", To: "done", Condition: ConditionConfig{Type: "not"}},
				},
			},
			wantErr: "not requires a nested condition",
		},
		{
			name: "nested condition tree",
			flow: FlowConfig{
				Name: "f", States: okStates,
				Transitions: []TransitionConfig{
					{From: "start", To: "done", Condition: ConditionConfig{
						Type: "and",
						Conditions: []ConditionConfig{
							{Type: "on_success"},
							{Type: "not", Condition: &ConditionConfig{
								Type: "output_contains", Value: "error",
							}},
						},
					}},
				},
			},
			wantErr: "",
		},
		{
			name: "unknown condition type",
			flow: FlowConfig{
				Name: "f", States: okStates,
				Transitions: []TransitionConfig{
					{From: "start", To: "done", Condition: ConditionConfig{Type: "sometimes"}},
				},
			},
			wantErr: `unknown condition type "sometimes"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFlow(&tt.flow)
			checkErr(t, err, tt.wantErr)
		})
	}
}

func TestValidateTool_ExecMissingCommand(t *testing.T) {
	cfg := &ToolConfig{
		Name:        "my-tool",
		Description: "test",
		Provider:    "exec",
		Config:      map[string]interface{}{},
	}
	err := validateTool(cfg)
	if err == nil {
		t.Fatal("expected error for exec tool missing command")
	}
	if !strings.Contains(err.Error(), "command") {
		t.Errorf("expected command error, got: %v", err)
	}
}

func TestValidateTool_HTTPMissingURL(t *testing.T) {
	cfg := &ToolConfig{
		Name:        "my-tool",
		Description: "test",
		Provider:    "http",
		Config:      map[string]interface{}{},
	}
	err := validateTool(cfg)
	if err == nil {
		t.Fatal("expected error for http tool missing url")
	}
	if !strings.Contains(err.Error(), "url") {
		t.Errorf("expected url error, got: %v", err)
	}
}

func checkErr(t *testing.T, err error, want string) {
	t.Helper()
	if want == "" {
		if err != nil {
			t.Errorf("expected no error, got: %v", err)
		}
		return
	}
	if err == nil {
		t.Errorf("expected error containing %q, got nil", want)
	} else if !strings.Contains(err.Error(), want) {
		t.Errorf("expected error containing %q, got: %v", want, err)
	}
}
