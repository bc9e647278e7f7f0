package protocol

import (
	"context"
	"fmt"
	"log/slog"
)

// TriggerCallback hands trigger input to the workflow the trigger was started for.
type TriggerCallback func(ctx context.Context, data map[string]any) error

// Trigger is a long running source of executions for one trigger node.
type Trigger interface {
	Start(ctx context.Context, callback TriggerCallback) error
	Stop(ctx context.Context) error
	Validate() error
}

// TriggerFactory builds triggers from the config of a trigger node whose action equals ID.
type TriggerFactory interface {
	Create(config map[string]any, logger *slog.Logger) (Trigger, error)
	ID() string
}

// TriggerFactories indexes factories by the trigger node action they serve.
type TriggerFactories map[string]TriggerFactory

func NewTriggerFactories(factories ...TriggerFactory) TriggerFactories {
	index := make(TriggerFactories, len(factories))
	for _, f := range factories {
		index[f.ID()] = f
	}

	return index
}

func (f TriggerFactories) Supports(action string) bool {
	_, ok := f[action]

	return ok
}

// Build creates a trigger for action and checks its config before it is started.
func (f TriggerFactories) Build(action string, config map[string]any, logger *slog.Logger) (Trigger, error) {
	factory, ok := f[action]
	if !ok {
		return nil, fmt.Errorf("no trigger factory for %q", action)
	}

	trigger, err := factory.Create(config, logger)
	if err != nil {
		return nil, err
	}

	if err := trigger.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s trigger: %w", action, err)
	}

	return trigger, nil
}
