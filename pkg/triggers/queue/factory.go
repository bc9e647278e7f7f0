package queue

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowexec/pkg/actions/trigger"
	"github.com/dukex/flowexec/pkg/protocol"
)

// NewFactory creates queue triggers that share client.
func NewFactory(client Popper) protocol.TriggerFactory {
	return &Factory{client: client}
}

type Factory struct {
	client Popper
}

func (f *Factory) ID() string {
	return trigger.Queue
}

func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.Trigger, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	created, err := NewTrigger(config, f.client, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue trigger: %w", err)
	}

	return created, nil
}
