package mocks

import (
	"context"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockRunner records the executions handed to it without running them.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Execute(ctx context.Context, g models.Graph, triggerInput map[string]any, executionID, workflowID string) {
	m.Called(ctx, g, triggerInput, executionID, workflowID)
}
