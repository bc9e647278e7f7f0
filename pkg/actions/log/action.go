// Package log provides an action that writes a message to the operator log.
package log

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/dukex/flowexec/pkg/redact"
	"github.com/dukex/flowexec/pkg/registry"
)

const ActionID = "log"

type Action struct {
	logger *slog.Logger
}

func NewAction(logger *slog.Logger) *Action {
	return &Action{logger: logger.With("action_type", "log")}
}

func (a *Action) Handle(ctx context.Context, req protocol.Request) (protocol.Result, error) {
	level := parseLevel(req.Input["level"])
	message := redact.Value(req.Input["message"])

	a.logger.Log(ctx, level, "Workflow log message",
		"message", message,
		"execution_id", req.ExecutionID,
		"workflow_id", req.WorkflowID,
		"node_id", req.Node.ID,
	)

	return protocol.Ok(map[string]any{
		"message":   message,
		"level":     strings.ToLower(level.String()),
		"logged_at": time.Now().UTC().Format(time.RFC3339Nano),
	}), nil
}

func parseLevel(raw any) slog.Level {
	s, _ := raw.(string)

	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func NewDescriptor(logger *slog.Logger) registry.Descriptor {
	action := NewAction(logger)

	return registry.Descriptor{
		Type:        models.NodeTypeAction,
		Action:      ActionID,
		Name:        "Log",
		Description: "Writes a message to the server log.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"description": "Message or value to log."},
				"level":   map[string]any{"type": "string", "enum": []any{"debug", "info", "warn", "error"}},
			},
			"required": []any{"message"},
		},
		Defaults: map[string]any{"level": "info"},
		Handler:  action.Handle,
	}
}
