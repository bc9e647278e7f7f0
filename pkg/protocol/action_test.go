package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(_ context.Context, input map[string]any, credentials map[string]string) Result {
	return Ok(map[string]any{"input": input, "token": credentials["token"]})
}

func TestStep_SkipsCredentialsWithoutIntegration(t *testing.T) {
	called := false
	handler := Step(echo)

	result, err := handler(context.Background(), Request{
		Input: map[string]any{"a": 1},
		Credentials: func(context.Context) (map[string]string, error) {
			called = true

			return nil, nil
		},
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, called)
	assert.Equal(t, "", result.Data["token"])
}

func TestStep_FetchesCredentialsLazily(t *testing.T) {
	handler := Step(echo)

	result, err := handler(context.Background(), Request{
		IntegrationID: "int-1",
		Credentials: func(context.Context) (map[string]string, error) {
			return map[string]string{"token": "abc"}, nil
		},
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "abc", result.Data["token"])
}

func TestStep_CredentialFailureIsNodeFailure(t *testing.T) {
	handler := Step(echo)

	result, err := handler(context.Background(), Request{
		IntegrationID: "int-1",
		Credentials: func(context.Context) (map[string]string, error) {
			return nil, errors.New("decrypt failed")
		},
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "int-1")
	assert.Contains(t, result.Error, "decrypt failed")

	result, err = handler(context.Background(), Request{IntegrationID: "int-2"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no credential store")
}

func TestFail(t *testing.T) {
	r := Fail("status %d", 500)
	assert.False(t, r.Success)
	assert.Equal(t, "status 500", r.Error)
	assert.Nil(t, r.Data)
}
