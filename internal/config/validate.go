package config

import (
	"fmt"
	"strings"
)

// validateAgent validates an agent definition
func validateAgent(cfg *AgentConfig) error {
	var errors []string

	if cfg.Role == "" {
		errors = append(errors, "role is required")
	}
	if cfg.Goal == "" {
		errors = append(errors, "goal is required")
	}
	if cfg.Backstory == "" {
		errors = append(errors, "backstory is required")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 1 {
		errors = append(errors, fmt.Sprintf("temperature %v out of range [0,1]", cfg.Temperature))
	}
	if cfg.MaxIter < 0 {
		errors = append(errors, "max_iter must be non-negative")
	}
	if cfg.MaxExecutionTime < 0 {
		errors = append(errors, "max_execution_time must be non-negative")
	}
	if cfg.Memory != nil {
		if err := validateMemory(cfg.Memory); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("agent %q validation failed: %s", cfg.ID, strings.Join(errors, "; "))
	}
	return nil
}

// validateMemory validates a memory configuration
func validateMemory(cfg *MemoryConfig) error {
	validTypes := map[string]bool{
		"short_term": true,
		"long_term":  true,
		"entity":     true,
		"episodic":   true,
		"":           true, // empty defaults to short_term
	}
	if !validTypes[cfg.Type] {
		return fmt.Errorf("invalid memory type: %s", cfg.Type)
	}
	if cfg.MaxItems < 0 {
		return fmt.Errorf("memory max_items must be non-negative")
	}
	if cfg.TTLSeconds < 0 {
		return fmt.Errorf("memory ttl_seconds must be non-negative")
	}
	return nil
}

// validateTask validates a task definition
func validateTask(cfg *TaskConfig) error {
	var errors []string

	if cfg.Description == "" {
		errors = append(errors, "description is required")
	}
	if cfg.ExpectedOutput == "" {
		errors = append(errors, "expected_output is required")
	}
	if cfg.MaxRetries < 0 {
		errors = append(errors, "max_retries must be non-negative")
	}
	if cfg.TimeoutSeconds < 0 {
		errors = append(errors, "timeout_s must be non-negative")
	}

	seen := make(map[string]bool)
	for _, dep := range cfg.Context {
		if dep == "" {
			errors = append(errors, "context entries must be task ids")
			continue
		}
		if seen[dep] {
			errors = append(errors, fmt.Sprintf("duplicate context dependency: %s", dep))
		}
		seen[dep] = true
	}

	if len(errors) > 0 {
		return fmt.Errorf("task %q validation failed: %s", cfg.ID, strings.Join(errors, "; "))
	}
	return nil
}

// ValidateCrew validates a crew configuration's shape. Agent resolution and
// dependency cycles are checked by the crew executor, which holds the full
// project.
func ValidateCrew(cfg *CrewConfig) error {
	var errors []string

	if cfg.Name == "" {
		errors = append(errors, "name is required")
	}
	if len(cfg.Tasks) == 0 {
		errors = append(errors, "at least one task is required")
	}

	seen := make(map[string]bool)
	for _, id := range cfg.Tasks {
		if seen[id] {
			errors = append(errors, fmt.Sprintf("duplicate task: %s", id))
		}
		seen[id] = true
	}

	validProcesses := map[string]bool{
		"sequential":   true,
		"parallel":     true,
		"hierarchical": true,
		"custom":       true,
		"":             true, // defaults to sequential
	}
	if !validProcesses[cfg.Process.Type] {
		errors = append(errors, fmt.Sprintf("invalid process type: %s", cfg.Process.Type))
	}

	if cfg.Process.Type == "hierarchical" && cfg.Process.ManagerModel == "" {
		errors = append(errors, "hierarchical process requires a manager_model")
	}
	if cfg.Process.MaxParallel < 0 {
		errors = append(errors, "max_parallel must be non-negative")
	}
	if cfg.Process.MaxRetries < 0 {
		errors = append(errors, "max_retries must be non-negative")
	}
	if cfg.Process.CrewTimeoutS < 0 {
		errors = append(errors, "crew_timeout_s must be non-negative")
	}
	if cfg.Memory != nil {
		if err := validateMemory(cfg.Memory); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("crew validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// ValidateFlow validates a flow configuration's structure.
func ValidateFlow(cfg *FlowConfig) error {
	var errors []string

	if cfg.Name == "" {
		errors = append(errors, "name is required")
	}
	if len(cfg.States) == 0 {
		errors = append(errors, "at least one state is required")
	}
	if cfg.MaxIterations < 0 {
		errors = append(errors, "max_iterations must be non-negative")
	}

	stateIDs := make(map[string]bool)
	initials, finals := 0, 0
	for _, s := range cfg.States {
		if s.ID == "" {
			errors = append(errors, "state id is required")
			continue
		}
		if stateIDs[s.ID] {
			errors = append(errors, fmt.Sprintf("duplicate state id: %s", s.ID))
		}
		stateIDs[s.ID] = true
		if s.IsInitial {
			initials++
		}
		if s.IsFinal {
			finals++
		}
		if s.TimeoutS < 0 {
			errors = append(errors, fmt.Sprintf("state %s: timeout_s must be non-negative", s.ID))
		}
	}

	if len(cfg.States) > 0 {
		if initials == 0 {
			errors = append(errors, "exactly one initial state is required, found none")
		} else if initials > 1 {
			errors = append(errors, fmt.Sprintf("exactly one initial state is required, found %d", initials))
		}
		if finals == 0 {
			errors = append(errors, "at least one final state is required")
		}
	}

	for i, tr := range cfg.Transitions {
		label := tr.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		if tr.From == "" || tr.To == "" {
			errors = append(errors, fmt.Sprintf("transition %s: from and to are required", label))
			continue
		}
		if !stateIDs[tr.From] {
			errors = append(errors, fmt.Sprintf("transition %s: unknown from state %q", label, tr.From))
		}
		if !stateIDs[tr.To] {
			errors = append(errors, fmt.Sprintf("transition %s: unknown to state %q", label, tr.To))
		}
		validateCondition(&tr.Condition, label, &errors)
	}

	if len(errors) > 0 {
		return fmt.Errorf("flow validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// validateCondition checks a condition tree recursively.
func validateCondition(c *ConditionConfig, label string, errors *[]string) {
	switch c.Type {
	case "", "always", "on_success", "on_failure":
		// no operands
	case "output_contains":
		if c.Value == nil {
			*errors = append(*errors, fmt.Sprintf("transition %s: output_contains requires a value", label))
		}
	case "output_matches":
		if c.Pattern == "" {
			*errors = append(*errors, fmt.Sprintf("transition %s: output_matches requires a pattern", label))
		}
	case "variable_equals":
		if c.Name == "" {
			*errors = append(*errors, fmt.Sprintf("transition %s: variable_equals requires a name", label))
		}
	case "and", "or":
		if len(c.Conditions) == 0 {
			*errors = append(*errors, fmt.Sprintf("transition %s: %s requires nested conditions", label, c.Type))
		}
		for i := range c.Conditions {
			validateCondition(&c.Conditions[i], label, errors)
		}
	case "not":
		if c.Condition == nil {
			*errors = append(*errors, fmt.Sprintf("transition %s: not requires a nested condition", label))
		} else {
			validateCondition(c.Condition, label, errors)
		}
	default:
		*errors = append(*errors, fmt.Sprintf("transition %s: unknown condition type %q", label, c.Type))
	}
}

// validateTool validates a tool configuration
func validateTool(cfg *ToolConfig) error {
	var errors []string

	if cfg.Name == "" {
		errors = append(errors, "name is required")
	}

	validProviders := map[string]bool{
		"exec":    true,
		"http":    true,
		"builtin": true,
		"":        true,
	}
	if !validProviders[cfg.Provider] {
		errors = append(errors, fmt.Sprintf("invalid provider: %s", cfg.Provider))
	}

	if cfg.Provider == "exec" {
		if cmd, ok := cfg.Config["command"]; !ok || cmd == "" {
			errors = append(errors, "exec tool requires a 'command' in config")
		}
	}
	if cfg.Provider == "http" {
		if url, ok := cfg.Config["url"]; !ok || url == "" {
			errors = append(errors, "http tool requires a 'url' in config")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("tool validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// ValidateTools validates the tools section of the main config.
func ValidateTools(tools []ToolConfig) error {
	for i := range tools {
		if err := validateTool(&tools[i]); err != nil {
			return err
		}
	}
	return nil
}
