package dsl

import (
	"fmt"
	"strings"

	"github.com/aretw0/lattice/pkg/domain"
)

// Condition is a guard with the label used when rendering the graph.
type Condition struct {
	Guard domain.Guard
	Label string
}

// Always holds for every state.
func Always() Condition {
	return Condition{}
}

// HasToolCalls holds when the last model turn requested tools.
func HasToolCalls() Condition {
	return Condition{Guard: func(s *domain.RunState) bool { return s.HasPendingToolCalls() }, Label: "has_tool_calls"}
}

// NoToolCalls holds when the last model turn requested no tool.
func NoToolCalls() Condition {
	return Condition{Guard: func(s *domain.RunState) bool { return !s.HasPendingToolCalls() }, Label: "no_tool_calls"}
}

// ScratchSet holds when key is present in the scratch store.
func ScratchSet(key string) Condition {
	return Condition{
		Guard: func(s *domain.RunState) bool {
			_, ok := s.Get(key)
			return ok
		},
		Label: "scratch_set:" + key,
	}
}

// ScratchEquals holds when the scratch value of key prints as value.
func ScratchEquals(key, value string) Condition {
	return Condition{
		Guard: func(s *domain.RunState) bool {
			v, ok := s.Get(key)
			return ok && fmt.Sprint(v) == value
		},
		Label: fmt.Sprintf("scratch_eq:%s=%s", key, value),
	}
}

// Not negates a condition.
func Not(c Condition) Condition {
	return Condition{
		Guard: func(s *domain.RunState) bool { return c.Guard != nil && !c.Guard(s) },
		Label: "not " + c.Label,
	}
}

// ParseCondition resolves the guard expressions accepted in YAML files:
//
//	always (or empty), has_tool_calls, no_tool_calls,
//	scratch_set:<key>, scratch_eq:<key>=<value>, and "not " before any of them.
func ParseCondition(expr string) (Condition, error) {
	expr = strings.TrimSpace(expr)
	if rest, ok := strings.CutPrefix(expr, "not "); ok {
		c, err := ParseCondition(rest)
		if err != nil {
			return Condition{}, err
		}
		return Not(c), nil
	}

	switch expr {
	case "", "always":
		return Always(), nil
	case "has_tool_calls":
		return HasToolCalls(), nil
	case "no_tool_calls":
		return NoToolCalls(), nil
	}

	if key, ok := strings.CutPrefix(expr, "scratch_set:"); ok && key != "" {
		return ScratchSet(key), nil
	}
	if rest, ok := strings.CutPrefix(expr, "scratch_eq:"); ok {
		key, value, found := strings.Cut(rest, "=")
		if found && key != "" {
			return ScratchEquals(key, value), nil
		}
	}
	return Condition{}, fmt.Errorf("unknown guard %q", expr)
}
