package httprequest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/dukex/flowexec/pkg/registry"
)

const ActionID = "http_request"

// NewDescriptor registers the action under action/http_request. A nil client means http.DefaultClient.
func NewDescriptor(client *http.Client, logger *slog.Logger) registry.Descriptor {
	if client == nil {
		client = http.DefaultClient
	}

	step := func(ctx context.Context, input map[string]any, credentials map[string]string) protocol.Result {
		action, err := NewAction(input)
		if err != nil {
			return protocol.Fail("%v", err)
		}

		if client.Timeout == 0 {
			var cancel context.CancelFunc

			ctx, cancel = context.WithTimeout(ctx, action.Timeout)
			defer cancel()
		}

		return action.Execute(ctx, client, credentials, logger)
	}

	return registry.Descriptor{
		Type:        models.NodeTypeAction,
		Action:      ActionID,
		Name:        "HTTP Request",
		Description: "Performs an HTTP request to a specified URL with optional headers and body.",
		Schema:      schema(),
		Defaults: map[string]any{
			"method": http.MethodGet,
		},
		Handler: protocol.Step(step),
	}
}

func schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to send the request to. Supports {{Node.field}} references.",
				"minLength":   1,
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use",
				"default":     "GET",
				"enum":        []any{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"description":          "HTTP headers to include in the request.",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"description": "Request body. Objects and arrays are sent as JSON.",
			},
			"timeout_seconds": map[string]any{
				"type":    "integer",
				"minimum": 1,
				"maximum": 300,
			},
			"max_response_bytes": map[string]any{
				"type":        "integer",
				"description": "Largest response body accepted, 10 MiB when unset.",
				"minimum":     1,
			},
			"retry": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
					"delay":    map[string]any{"type": "integer", "minimum": 0, "maximum": 30000},
				},
			},
		},
		"required": []any{"url"},
	}
}
