package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/flowexec/pkg/channels/gochannel"
	"github.com/dukex/flowexec/pkg/channels/kafka"
	"github.com/dukex/flowexec/pkg/eventbus"
)

// NewEventBus creates the event bus for provider "gochannel" or "kafka".
// brokers is a comma separated list used by kafka.
func NewEventBus(provider, brokers, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	var (
		pub message.Publisher
		sub message.Subscriber
		err error
	)

	switch provider {
	case "", "gochannel":
		pub, sub, err = gochannel.CreateChannel(wmLogger)
	case "kafka":
		pub, sub, err = kafka.CreateChannel(wmLogger, kafka.ParseBrokers(brokers), serviceName)
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s pub/sub: %w", provider, err)
	}

	return eventbus.NewWatermillEventBus(logger, pub, sub), nil
}
