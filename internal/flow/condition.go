package flow

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/stxkxs/troupe/internal/config"
	troupeErrors "github.com/stxkxs/troupe/internal/errors"
)

// TransitionContext is what conditions see after a state runs: the most
// recent crew result (which carries across states that run no crew), the
// flow's variables, and the walk so far. Before any crew has run, Output is
// empty and Success is false.
type TransitionContext struct {
	Output    string
	Success   bool
	Variables map[string]interface{}
	Current   string
	History   []string
}

// Condition decides whether a transition may fire.
type Condition interface {
	Evaluate(tc *TransitionContext) bool
	String() string
}

type alwaysCond struct{}

func (alwaysCond) Evaluate(*TransitionContext) bool { return true }
func (alwaysCond) String() string                   { return "always" }

type onSuccessCond struct{}

func (onSuccessCond) Evaluate(tc *TransitionContext) bool { return tc.Success }
func (onSuccessCond) String() string                      { return "on_success" }

type onFailureCond struct{}

func (onFailureCond) Evaluate(tc *TransitionContext) bool { return !tc.Success }
func (onFailureCond) String() string                      { return "on_failure" }

type outputContainsCond struct {
	substr string
}

func (c outputContainsCond) Evaluate(tc *TransitionContext) bool {
	return strings.Contains(tc.Output, c.substr)
}

func (c outputContainsCond) String() string {
	return fmt.Sprintf("output_contains(%q)", c.substr)
}

// outputMatchesCond holds a nil regexp when the pattern failed to compile;
// such a condition never matches rather than failing the flow.
type outputMatchesCond struct {
	pattern string
	re      *regexp.Regexp
}

func (c outputMatchesCond) Evaluate(tc *TransitionContext) bool {
	if c.re == nil {
		return false
	}
	return c.re.MatchString(tc.Output)
}

func (c outputMatchesCond) String() string {
	return fmt.Sprintf("output_matches(%q)", c.pattern)
}

type variableEqualsCond struct {
	name  string
	value interface{}
}

func (c variableEqualsCond) Evaluate(tc *TransitionContext) bool {
	v, ok := tc.Variables[c.name]
	return ok && reflect.DeepEqual(v, c.value)
}

func (c variableEqualsCond) String() string {
	return fmt.Sprintf("variable_equals(%s, %v)", c.name, c.value)
}

type andCond struct {
	conds []Condition
}

func (c andCond) Evaluate(tc *TransitionContext) bool {
	for _, cond := range c.conds {
		if !cond.Evaluate(tc) {
			return false
		}
	}
	return true
}

func (c andCond) String() string { return combinatorString("and", c.conds) }

type orCond struct {
	conds []Condition
}

func (c orCond) Evaluate(tc *TransitionContext) bool {
	for _, cond := range c.conds {
		if cond.Evaluate(tc) {
			return true
		}
	}
	return false
}

func (c orCond) String() string { return combinatorString("or", c.conds) }

type notCond struct {
	cond Condition
}

func (c notCond) Evaluate(tc *TransitionContext) bool {
	return !c.cond.Evaluate(tc)
}

func (c notCond) String() string { return fmt.Sprintf("not(%s)", c.cond) }

func combinatorString(op string, conds []Condition) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%s(%s)", op, strings.Join(parts, ", "))
}

// CompileCondition turns a condition config into an evaluatable Condition.
// An output_matches pattern that does not compile yields a condition that
// never matches; structural problems return FlowInvalid.
func CompileCondition(cfg *config.ConditionConfig) (Condition, error) {
	switch cfg.Type {
	case "", "always":
		return alwaysCond{}, nil
	case "on_success":
		return onSuccessCond{}, nil
	case "on_failure":
		return onFailureCond{}, nil
	case "output_contains":
		s, ok := cfg.Value.(string)
		if !ok {
			return nil, troupeErrors.Newf(troupeErrors.CodeFlowInvalid,
				"output_contains requires a string value, got %T", cfg.Value)
		}
		return outputContainsCond{substr: s}, nil
	case "output_matches":
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return outputMatchesCond{pattern: cfg.Pattern}, nil
		}
		return outputMatchesCond{pattern: cfg.Pattern, re: re}, nil
	case "variable_equals":
		return variableEqualsCond{name: cfg.Name, value: cfg.Value}, nil
	case "and", "or":
		conds := make([]Condition, 0, len(cfg.Conditions))
		for i := range cfg.Conditions {
			c, err := CompileCondition(&cfg.Conditions[i])
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		if cfg.Type == "and" {
			return andCond{conds: conds}, nil
		}
		return orCond{conds: conds}, nil
	case "not":
		if cfg.Condition == nil {
			return nil, troupeErrors.New(troupeErrors.CodeFlowInvalid, "not requires a nested condition")
		}
		inner, err := CompileCondition(cfg.Condition)
		if err != nil {
			return nil, err
		}
		return notCond{cond: inner}, nil
	default:
		return nil, troupeErrors.Newf(troupeErrors.CodeFlowInvalid, "unknown condition type %q", cfg.Type)
	}
}
