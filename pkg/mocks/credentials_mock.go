package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockCredentialFetcher is a mock implementation of workflow.CredentialFetcher.
type MockCredentialFetcher struct {
	mock.Mock
}

func (m *MockCredentialFetcher) FetchCredentials(ctx context.Context, integrationID string) (map[string]string, error) {
	args := m.Called(ctx, integrationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]string), args.Error(1)
}
