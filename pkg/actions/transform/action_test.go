package transform

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_Handle(t *testing.T) {
	action := NewAction(slog.Default())

	tests := []struct {
		name  string
		input map[string]any
		want  any
	}{
		{
			name: "explicit input",
			input: map[string]any{
				"expression": ".items | map(.id)",
				"input":      map[string]any{"items": []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}}},
			},
			want: []any{"a", "b"},
		},
		{
			name:  "defaults to previous outputs",
			input: map[string]any{"expression": `.["HTTP Request"].status_code`},
			want:  float64(200),
		},
		{
			name:  "multiple outputs are collected",
			input: map[string]any{"expression": ".[]", "input": []any{1, 2}},
			want:  []any{float64(1), float64(2)},
		},
		{
			name:  "empty output",
			input: map[string]any{"expression": "empty", "input": 1},
			want:  nil,
		},
		{
			name:  "env is sandboxed",
			input: map[string]any{"expression": "$ENV | length", "input": nil},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := action.Handle(context.Background(), protocol.Request{
				Input:   tt.input,
				Outputs: map[string]any{"HTTP Request": map[string]any{"status_code": 200}},
			})

			require.NoError(t, err)
			require.True(t, result.Success, result.Error)
			assert.Equal(t, tt.want, result.Data["result"])
		})
	}
}

func TestAction_HandleFailures(t *testing.T) {
	action := NewAction(slog.Default())

	result, err := action.Handle(context.Background(), protocol.Request{Input: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, result.Success)

	result, err = action.Handle(context.Background(), protocol.Request{Input: map[string]any{"expression": ".[", "input": 1}})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "parse")

	result, err = action.Handle(context.Background(), protocol.Request{Input: map[string]any{"expression": ".a.b", "input": "text"}})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "jq evaluation failed")
}
