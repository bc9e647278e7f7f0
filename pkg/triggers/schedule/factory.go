package schedule

import (
	"log/slog"

	"github.com/dukex/flowexec/pkg/actions/trigger"
	"github.com/dukex/flowexec/pkg/protocol"
)

func NewFactory() protocol.TriggerFactory {
	return &Factory{}
}

type Factory struct{}

func (f *Factory) ID() string {
	return trigger.Schedule
}

func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.Trigger, error) {
	created, err := NewTrigger(config, logger)
	if err != nil {
		return nil, err
	}

	return created, nil
}
