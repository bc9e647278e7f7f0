// Package transform provides the jq based data transformation action.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/dukex/flowexec/pkg/registry"
	"github.com/itchyny/gojq"
)

const ActionID = "transform"

// Action evaluates jq expressions against node input.
type Action struct {
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

func NewAction(logger *slog.Logger) *Action {
	return &Action{
		logger: logger.With("module", "transform_action"),
		cache:  make(map[string]*gojq.Code),
	}
}

// Handle runs config "expression" over config "input", or over the outputs of
// earlier nodes when no input is configured. The output is {"result": value};
// multiple jq outputs are collected into a list.
func (a *Action) Handle(ctx context.Context, req protocol.Request) (protocol.Result, error) {
	expression, _ := req.Input["expression"].(string)
	if strings.TrimSpace(expression) == "" {
		return protocol.Fail("missing required field 'expression'"), nil
	}

	data, ok := req.Input["input"]
	if !ok {
		data = req.Outputs
	}

	value, err := a.Evaluate(ctx, expression, data)
	if err != nil {
		return protocol.Fail("transformation failed: %v", err), nil
	}

	a.logger.DebugContext(ctx, "Transform completed", "execution_id", req.ExecutionID, "node_id", req.Node.ID)

	return protocol.Ok(map[string]any{"result": value}), nil
}

func (a *Action) Evaluate(ctx context.Context, expression string, data any) (any, error) {
	code, err := a.compile(expression)
	if err != nil {
		return nil, err
	}

	normalized, err := normalize(data)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, normalized)

	var results []any

	for {
		val, ok := iter.Next()
		if !ok {
			break
		}

		if err, isErr := val.(error); isErr {
			return nil, fmt.Errorf("jq evaluation failed for %q: %w", expression, err)
		}

		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (a *Action) compile(expression string) (*gojq.Code, error) {
	a.mu.RLock()
	code, ok := a.cache[expression]
	a.mu.RUnlock()

	if ok {
		return code, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if code, ok := a.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("jq parse error in %q: %w", expression, err)
	}

	// $ENV stays empty so expressions cannot read the process environment.
	code, err = gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, fmt.Errorf("jq compile error in %q: %w", expression, err)
	}

	a.cache[expression] = code

	return code, nil
}

// normalize converts arbitrary Go values into the JSON shapes gojq accepts.
func normalize(data any) (any, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transform input: %w", err)
	}

	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to decode transform input: %w", err)
	}

	return out, nil
}

func NewDescriptor(logger *slog.Logger) registry.Descriptor {
	action := NewAction(logger)

	return registry.Descriptor{
		Type:        models.NodeTypeAction,
		Action:      ActionID,
		Name:        "Transform",
		Description: "Transforms data with a jq expression.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"format":      "code",
					"description": "jq expression, e.g. .items | map(.id)",
				},
				"input": map[string]any{
					"description": "Data to transform, usually a single {{Node.field}} reference. Defaults to all previous outputs.",
				},
			},
			"required": []any{"expression"},
		},
		Handler: action.Handle,
	}
}
