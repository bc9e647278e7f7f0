package trigger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/dukex/flowexec/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassthrough(t *testing.T) {
	input := map[string]any{"order_id": "o-1", "amount": 42}

	result, err := passthrough(context.Background(), protocol.Request{Trigger: input})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, input, result.Data)

	result.Data["amount"] = 0
	assert.Equal(t, 42, input["amount"])
}

func TestDescriptors_Register(t *testing.T) {
	r := registry.NewRegistry(slog.Default())
	r.MustRegister(Descriptors()...)

	for _, action := range []string{Manual, Webhook, Schedule, Queue} {
		_, err := r.Lookup(registry.Key{Type: models.NodeTypeTrigger, Action: action})
		assert.NoError(t, err, action)
	}

	err := r.ValidateConfig(registry.Key{Type: models.NodeTypeTrigger, Action: Schedule}, map[string]any{})
	assert.ErrorIs(t, err, registry.ErrInvalidConfig)
	assert.NoError(t, r.ValidateConfig(registry.Key{Type: models.NodeTypeTrigger, Action: Schedule},
		map[string]any{"cron": "*/5 * * * *"}))
}
