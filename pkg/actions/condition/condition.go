// Package condition provides the expression node that selects the true or false branch.
package condition

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/dukex/flowexec/pkg/registry"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const ActionID = "expression"

// ErrMissingCondition is returned when neither expression nor value is configured.
var ErrMissingCondition = errors.New("missing required field 'expression' or 'value'")

// Evaluator compiles expr-lang programs once and reuses them across executions.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate runs expression against env. Undefined variables evaluate to nil.
func (e *Evaluator) Evaluate(expression string, env map[string]any) (bool, error) {
	prg, err := e.compile(expression)
	if err != nil {
		return false, err
	}

	if env == nil {
		env = map[string]any{}
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return false, fmt.Errorf("condition evaluation failed for %q: %w", expression, err)
	}

	return Truthy(out), nil
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expression]
	e.mu.RUnlock()

	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression, expr.Env(map[string]any{}), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("condition compile error in %q: %w", expression, err)
	}

	e.cache[expression] = prg

	return prg, nil
}

// Truthy converts an arbitrary value into a branch decision.
func Truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}

		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return false
	}
}

// Handle evaluates the node and reports {"result": bool}.
//
// "expression" is an expr-lang program whose environment exposes the interpolated
// config as "input", earlier outputs as "outputs" and the trigger payload as "trigger".
// "value" is used instead when no expression is set and is judged by Truthy.
func (e *Evaluator) Handle(_ context.Context, req protocol.Request) (protocol.Result, error) {
	expression, _ := req.Input["expression"].(string)

	if strings.TrimSpace(expression) == "" {
		value, ok := req.Input["value"]
		if !ok {
			return protocol.Fail("%v", ErrMissingCondition), nil
		}

		return protocol.Ok(map[string]any{"result": Truthy(value)}), nil
	}

	env := map[string]any{
		"input":   req.Input,
		"outputs": req.Outputs,
		"trigger": req.Trigger,
	}

	result, err := e.Evaluate(expression, env)
	if err != nil {
		return protocol.Fail("%v", err), nil
	}

	return protocol.Ok(map[string]any{"result": result}), nil
}

func NewDescriptor() registry.Descriptor {
	evaluator := NewEvaluator()

	return registry.Descriptor{
		Type:        models.NodeTypeCondition,
		Action:      ActionID,
		Name:        "Condition",
		Description: "Evaluates an expression and follows the edge labelled with the result.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "expr-lang expression, e.g. {{Fetch.status_code}} == 200",
				},
				"value": map[string]any{
					"description": "Value whose truthiness decides the branch when no expression is set.",
				},
			},
			"anyOf": []any{
				map[string]any{"required": []any{"expression"}},
				map[string]any{"required": []any{"value"}},
			},
		},
		Handler: evaluator.Handle,
	}
}
