package flow

import (
	"testing"

	"github.com/stxkxs/troupe/internal/config"
	troupeErrors "github.com/stxkxs/troupe/internal/errors"
)

func compileCond(t *testing.T, cfg config.ConditionConfig) Condition {
	t.Helper()
	cond, err := CompileCondition(&cfg)
	if err != nil {
		t.Fatalf("CompileCondition() error = %v", err)
	}
	return cond
}

func TestConditionEvaluate(t *testing.T) {
	succeeded := &TransitionContext{
		Output:  "status: approved",
		Success: true,
		Variables: map[string]interface{}{
			"phase": "review",
			"count": 3,
		},
	}
	failed := &TransitionContext{Output: "model timed out", Success: false}

	tests := []struct {
		name string
		cfg  config.ConditionConfig
		tc   *TransitionContext
		want bool
	}{
		{"empty type means always", config.ConditionConfig{}, failed, true},
		{"always", config.ConditionConfig{Type: "always"}, failed, true},
		{"on_success with success", config.ConditionConfig{Type: "on_success"}, succeeded, true},
		{"on_success with failure", config.ConditionConfig{Type: "on_success"}, failed, false},
		{"on_failure with failure", config.ConditionConfig{Type: "on_failure"}, failed, true},
		{"on_failure with success", config.ConditionConfig{Type: "on_failure"}, succeeded, false},
		{"on_failure before any crew ran", config.ConditionConfig{Type: "on_failure"}, &TransitionContext{}, true},
		{"output_contains hit", config.ConditionConfig{Type: "output_contains", Value: "approved"}, succeeded, true},
		{"output_contains miss", config.ConditionConfig{Type: "output_contains", Value: "rejected"}, succeeded, false},
		{"output_contains is case sensitive", config.ConditionConfig{Type: "output_contains", Value: "APPROVED"}, succeeded, false},
		{"output_matches hit", config.ConditionConfig{Type: "output_matches", Pattern: `status:\s+\w+`}, succeeded, true},
		{"output_matches miss", config.ConditionConfig{Type: "output_matches", Pattern: `^approved`}, succeeded, false},
		{"variable_equals string", config.ConditionConfig{Type: "variable_equals", Name: "phase", Value: "review"}, succeeded, true},
		{"variable_equals int", config.ConditionConfig{Type: "variable_equals", Name: "count", Value: 3}, succeeded, true},
		{"variable_equals wrong value", config.ConditionConfig{Type: "variable_equals", Name: "phase", Value: "done"}, succeeded, false},
		{"variable_equals missing variable", config.ConditionConfig{Type: "variable_equals", Name: "ghost", Value: "x"}, succeeded, false},
		{
			"and needs every branch",
			config.ConditionConfig{Type: "and", Conditions: []config.ConditionConfig{
				{Type: "on_success"},
				{Type: "output_contains", Value: "approved"},
			}},
			succeeded,
			true,
		},
		{
			"and fails on one false branch",
			config.ConditionConfig{Type: "and", Conditions: []config.ConditionConfig{
				{Type: "on_success"},
				{Type: "output_contains", Value: "rejected"},
			}},
			succeeded,
			false,
		},
		{
			"or needs one branch",
			config.ConditionConfig{Type: "or", Conditions: []config.ConditionConfig{
				{Type: "output_contains", Value: "rejected"},
				{Type: "on_success"},
			}},
			succeeded,
			true,
		},
		{
			"or fails when no branch holds",
			config.ConditionConfig{Type: "or", Conditions: []config.ConditionConfig{
				{Type: "output_contains", Value: "rejected"},
				{Type: "on_failure"},
			}},
			succeeded,
			false,
		},
		{
			"not inverts",
			config.ConditionConfig{Type: "not", Condition: &config.ConditionConfig{Type: "output_contains", Value: "rejected"}},
			succeeded,
			true,
		},
		{
			"nested combinators",
			config.ConditionConfig{Type: "and", Conditions: []config.ConditionConfig{
				{Type: "or", Conditions: []config.ConditionConfig{
					{Type: "output_contains", Value: "approved"},
					{Type: "variable_equals", Name: "phase", Value: "ship"},
				}},
				{Type: "not", Condition: &config.ConditionConfig{Type: "on_failure"}},
			}},
			succeeded,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := compileCond(t, tt.cfg)
			if got := cond.Evaluate(tt.tc); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v (condition %s)", got, tt.want, cond)
			}
		})
	}
}

func TestCompileCondition_InvalidPatternNeverMatches(t *testing.T) {
	cond, err := CompileCondition(&config.ConditionConfig{Type: "output_matches", Pattern: "[unclosed"})
	if err != nil {
		t.Fatalf("CompileCondition() error = %v", err)
	}
	for _, output := range []string{"", "[unclosed", "anything at all"} {
		if cond.Evaluate(&TransitionContext{Output: output, Success: true}) {
			t.Errorf("invalid pattern matched output %q", output)
		}
	}
}

func TestCompileCondition_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ConditionConfig
	}{
		{"unknown type", config.ConditionConfig{Type: "sometimes"}},
		{"output_contains without string value", config.ConditionConfig{Type: "output_contains", Value: 42}},
		{"not without operand", config.ConditionConfig{Type: "not"}},
		{
			"error in nested branch",
			config.ConditionConfig{Type: "and", Conditions: []config.ConditionConfig{
				{Type: "always"},
				{Type: "output_contains", Value: 42},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileCondition(&tt.cfg)
			if err == nil {
				t.Fatal("expected a compile error")
			}
			if code := troupeErrors.AsCode(err); code != troupeErrors.CodeFlowInvalid {
				t.Errorf("error code = %q, want %q", code, troupeErrors.CodeFlowInvalid)
			}
		})
	}
}

func TestConditionString(t *testing.T) {
	cond := compileCond(t, config.ConditionConfig{Type: "and", Conditions: []config.ConditionConfig{
		{Type: "output_contains", Value: "done"},
		{Type: "not", Condition: &config.ConditionConfig{Type: "on_failure"}},
	}})
	want := `and(output_contains("done"), not(on_failure))`
	if got := cond.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
