package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestTroupeError_Error(t *testing.T) {
	err := New(CodeConfigInvalid, "missing agent role")
	expected := "[CONFIG_INVALID] missing agent role"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestTroupeError_Wrap(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := Wrap(CodeModelError, "completion call failed", inner)

	if err.Error() != "[MODEL_ERROR] completion call failed: connection refused" {
		t.Errorf("unexpected error string: %s", err.Error())
	}

	// Unwrap should return inner
	if !errors.Is(err, inner) {
		t.Error("errors.Is should find inner error")
	}
}

func TestTroupeError_WithSuggestion(t *testing.T) {
	err := New(CodeQueueUnavailable, "redis not reachable").
		WithSuggestion("Set REDIS_URL or start the broker before launching workers")

	if err.Suggestion != "Set REDIS_URL or start the broker before launching workers" {
		t.Errorf("unexpected suggestion: %s", err.Suggestion)
	}
}

func TestTroupeError_ErrorsAs(t *testing.T) {
	err := Wrap(CodeTimeout, "task timed out", fmt.Errorf("deadline exceeded"))

	var te *TroupeError
	if !errors.As(err, &te) {
		t.Fatal("errors.As should work")
	}
	if te.Code != CodeTimeout {
		t.Errorf("expected code %q, got %q", CodeTimeout, te.Code)
	}
}

func TestTroupeError_IsMatchesByCode(t *testing.T) {
	a := New(CodeCircularDependency, "x -> y -> x")
	b := New(CodeCircularDependency, "other message")
	if !errors.Is(a, b) {
		t.Error("errors with the same code should match via errors.Is")
	}
	c := New(CodeAgentNotFound, "nobody home")
	if errors.Is(a, c) {
		t.Error("errors with different codes should not match")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CodeExecutionFailed, "no valid transition from %s", "review")
	if err.Message != "no valid transition from review" {
		t.Errorf("unexpected message: %s", err.Message)
	}
}

func TestAsCode(t *testing.T) {
	err := New(CodeMaxIterations, "flow hit iteration limit")
	if AsCode(err) != CodeMaxIterations {
		t.Errorf("expected code %q, got %q", CodeMaxIterations, AsCode(err))
	}

	// Non-TroupeError
	plain := fmt.Errorf("plain error")
	if AsCode(plain) != "" {
		t.Error("expected empty code for non-TroupeError")
	}
}

func TestSuggestion(t *testing.T) {
	err := New(CodeToolNotFound, "tool not found").WithSuggestion("check tool name")
	if Suggestion(err) != "check tool name" {
		t.Errorf("expected 'check tool name', got %q", Suggestion(err))
	}

	// Non-TroupeError
	if Suggestion(fmt.Errorf("plain")) != "" {
		t.Error("expected empty suggestion for non-TroupeError")
	}
}

func TestTroupeError_WrappedAs(t *testing.T) {
	inner := New(CodeModelError, "API error")
	wrapped := fmt.Errorf("agent failed: %w", inner)

	var te *TroupeError
	if !errors.As(wrapped, &te) {
		t.Fatal("errors.As should unwrap through fmt.Errorf")
	}
	if te.Code != CodeModelError {
		t.Errorf("expected code %q, got %q", CodeModelError, te.Code)
	}
}
