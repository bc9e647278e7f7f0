// Package trigger provides the entry point handlers. A trigger node outputs the trigger input unchanged.
package trigger

import (
	"context"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/dukex/flowexec/pkg/registry"
)

const (
	Manual   = "manual"
	Webhook  = "webhook"
	Schedule = "schedule"
	Queue    = "queue"
)

func passthrough(_ context.Context, req protocol.Request) (protocol.Result, error) {
	data := make(map[string]any, len(req.Trigger))
	for k, v := range req.Trigger {
		data[k] = v
	}

	return protocol.Ok(data), nil
}

// Descriptors returns the built-in trigger descriptors.
func Descriptors() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Type:        models.NodeTypeTrigger,
			Action:      Manual,
			Name:        "Manual",
			Description: "Started from the API with an arbitrary JSON payload.",
			Handler:     passthrough,
		},
		{
			Type:        models.NodeTypeTrigger,
			Action:      Webhook,
			Name:        "Webhook",
			Description: "Started by a POST to /webhooks/{workflow_id}; the request body becomes the trigger input.",
			Handler:     passthrough,
		},
		{
			Type:        models.NodeTypeTrigger,
			Action:      Schedule,
			Name:        "Schedule",
			Description: "Started on a cron schedule.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"cron":     map[string]any{"type": "string", "minLength": 1, "description": "Cron expression, e.g. */5 * * * *"},
					"timezone": map[string]any{"type": "string"},
				},
				"required": []any{"cron"},
			},
			Handler: passthrough,
		},
		{
			Type:        models.NodeTypeTrigger,
			Action:      Queue,
			Name:        "Queue",
			Description: "Started for every JSON message pushed onto a Redis list.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"queue": map[string]any{"type": "string", "minLength": 1},
				},
				"required": []any{"queue"},
			},
			Handler: passthrough,
		},
	}
}
