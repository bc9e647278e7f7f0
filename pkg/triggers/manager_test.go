package triggers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/flowexec/pkg/actions/trigger"
	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/dukex/flowexec/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLister struct {
	workflows []*models.Workflow
	err       error
}

func (l *staticLister) List(context.Context, string) ([]*models.Workflow, error) {
	return l.workflows, l.err
}

type recordingStarter struct {
	mu       sync.Mutex
	requests []services.StartRequest
	err      error
}

func (s *recordingStarter) Start(_ context.Context, req services.StartRequest) (*models.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}

	s.requests = append(s.requests, req)

	return &models.ExecutionRecord{ID: "exec-1", WorkflowID: req.WorkflowID}, nil
}

type fakeTrigger struct {
	callback protocol.TriggerCallback
	stopped  bool
}

func (f *fakeTrigger) Start(_ context.Context, callback protocol.TriggerCallback) error {
	f.callback = callback

	return nil
}

func (f *fakeTrigger) Stop(context.Context) error {
	f.stopped = true

	return nil
}

func (f *fakeTrigger) Validate() error { return nil }

type fakeFactory struct {
	created []*fakeTrigger
}

func (f *fakeFactory) ID() string { return trigger.Schedule }

func (f *fakeFactory) Create(config map[string]any, _ *slog.Logger) (protocol.Trigger, error) {
	if config["cron"] == nil {
		return nil, errors.New("cron is required")
	}

	t := &fakeTrigger{}
	f.created = append(f.created, t)

	return t, nil
}

func scheduled(id string, enabled bool, cron any) *models.Workflow {
	return &models.Workflow{
		ID:      id,
		Enabled: enabled,
		Nodes: []*models.WorkflowNode{
			{ID: "t", Type: models.NodeTypeTrigger, Action: trigger.Schedule, Config: map[string]any{"cron": cron}},
			{ID: "m", Type: models.NodeTypeTrigger, Action: trigger.Manual},
			{ID: "a", Type: models.NodeTypeAction, Action: "echo"},
		},
	}
}

func TestManager_SyncStartsEnabledTriggers(t *testing.T) {
	lister := &staticLister{workflows: []*models.Workflow{
		scheduled("wf-1", true, "@hourly"),
		scheduled("wf-2", false, "@hourly"),
		scheduled("wf-3", true, nil),
	}}
	factory := &fakeFactory{}
	starter := &recordingStarter{}
	manager := NewManager(slog.Default(), lister, starter, factory)

	require.NoError(t, manager.Sync(context.Background()))
	assert.Equal(t, 1, manager.Running())
	require.Len(t, factory.created, 1)

	err := factory.created[0].callback(context.Background(), map[string]any{"timestamp": "now"})
	require.NoError(t, err)
	require.Len(t, starter.requests, 1)
	assert.Equal(t, "wf-1", starter.requests[0].WorkflowID)
	assert.Equal(t, trigger.Schedule, starter.requests[0].TriggerType)
	assert.Equal(t, "now", starter.requests[0].Input["timestamp"])

	require.NoError(t, manager.Sync(context.Background()))
	assert.Len(t, factory.created, 1, "unchanged triggers keep running")
}

func TestManager_SyncRestartsAndStops(t *testing.T) {
	lister := &staticLister{workflows: []*models.Workflow{scheduled("wf-1", true, "@hourly")}}
	factory := &fakeFactory{}
	manager := NewManager(slog.Default(), lister, &recordingStarter{}, factory)

	require.NoError(t, manager.Sync(context.Background()))
	require.Len(t, factory.created, 1)

	lister.workflows = []*models.Workflow{scheduled("wf-1", true, "@daily")}
	require.NoError(t, manager.Sync(context.Background()))
	require.Len(t, factory.created, 2)
	assert.True(t, factory.created[0].stopped)
	assert.False(t, factory.created[1].stopped)

	lister.workflows = []*models.Workflow{scheduled("wf-1", false, "@daily")}
	require.NoError(t, manager.Sync(context.Background()))
	assert.True(t, factory.created[1].stopped)
	assert.Equal(t, 0, manager.Running())
}

func TestManager_StopAll(t *testing.T) {
	lister := &staticLister{workflows: []*models.Workflow{scheduled("wf-1", true, "@hourly"), scheduled("wf-2", true, "@hourly")}}
	factory := &fakeFactory{}
	manager := NewManager(slog.Default(), lister, &recordingStarter{}, factory)

	require.NoError(t, manager.Sync(context.Background()))
	assert.Equal(t, 2, manager.Running())

	manager.StopAll(context.Background())
	assert.Equal(t, 0, manager.Running())

	for _, created := range factory.created {
		assert.True(t, created.stopped)
	}
}

func TestManager_CallbackPropagatesStartErrors(t *testing.T) {
	lister := &staticLister{workflows: []*models.Workflow{scheduled("wf-1", true, "@hourly")}}
	factory := &fakeFactory{}
	starter := &recordingStarter{err: services.ErrWorkflowDisabled}
	manager := NewManager(slog.Default(), lister, starter, factory)

	require.NoError(t, manager.Sync(context.Background()))

	err := factory.created[0].callback(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, services.ErrWorkflowDisabled)
}

func TestManager_SyncListError(t *testing.T) {
	manager := NewManager(slog.Default(), &staticLister{err: errors.New("db down")}, &recordingStarter{}, &fakeFactory{})

	err := manager.Sync(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	lister := &staticLister{workflows: []*models.Workflow{scheduled("wf-1", true, "@hourly")}}
	factory := &fakeFactory{}
	manager := NewManager(slog.Default(), lister, &recordingStarter{}, factory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, manager.Run(ctx, time.Hour))
	assert.Equal(t, 0, manager.Running())
	require.Len(t, factory.created, 1)
	assert.True(t, factory.created[0].stopped)
}
