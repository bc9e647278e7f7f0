package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/persistence"
	"github.com/dukex/flowexec/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{
		"node_execution_logs", "executions", "integrations",
		"workflow_edges", "workflow_nodes", "workflows", "schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("postgres container tests are skipped in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("flowexec_test"),
			postgres.WithUsername("flowexec"),
			postgres.WithPassword("flowexec"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func sampleWorkflow() *models.Workflow {
	return &models.Workflow{
		Name:        "Order sync",
		Description: "Fetch new orders and notify",
		Owner:       "user-1",
		Enabled:     true,
		Nodes: []*models.WorkflowNode{
			{ID: "trigger", Type: models.NodeTypeTrigger, Name: "Start", Action: "manual"},
			{
				ID: "fetch", Type: models.NodeTypeAction, Name: "Fetch", Action: "http_request",
				Config:        map[string]any{"url": "https://api.example.com/orders", "method": "GET"},
				IntegrationID: "integration-1",
				PositionX:     120,
				PositionY:     40,
			},
			{
				ID: "check", Type: models.NodeTypeCondition, Name: "Has orders", Action: "expression",
				Config: map[string]any{"expression": "len(outputs.Fetch.body) > 0"},
			},
			{ID: "notify", Type: models.NodeTypeAction, Name: "Notify", Action: "log"},
		},
		Edges: []*models.WorkflowEdge{
			{ID: "e1", Source: "trigger", Target: "fetch"},
			{ID: "e2", Source: "fetch", Target: "check"},
			{ID: "e3", Source: "check", Target: "notify", Label: models.BranchTrue},
		},
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"workflows", "workflow_nodes", "workflow_edges", "executions", "node_execution_logs", "integrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestNewPersistence_SaveAndRetrieveWorkflow(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := sampleWorkflow()

	err := p.SaveWorkflow(ctx, workflow)
	require.NoError(t, err)
	assert.NotEmpty(t, workflow.ID)
	assert.False(t, workflow.CreatedAt.IsZero())

	retrieved, err := p.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.Name, retrieved.Name)
	assert.Equal(t, workflow.Owner, retrieved.Owner)
	assert.True(t, retrieved.Enabled)
	require.Len(t, retrieved.Nodes, 4)
	assert.Equal(t, []string{"trigger", "fetch", "check", "notify"}, []string{
		retrieved.Nodes[0].ID, retrieved.Nodes[1].ID, retrieved.Nodes[2].ID, retrieved.Nodes[3].ID,
	})
	assert.Equal(t, "https://api.example.com/orders", retrieved.Nodes[1].Config["url"])
	assert.Equal(t, "integration-1", retrieved.Nodes[1].IntegrationID)
	assert.Equal(t, 120, retrieved.Nodes[1].PositionX)
	assert.Nil(t, retrieved.Nodes[0].Config)
	require.Len(t, retrieved.Edges, 3)
	assert.Equal(t, models.BranchTrue, retrieved.Edges[2].Label)

	_, err = p.WorkflowByID(ctx, uuid.NewString())
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestNewPersistence_UpdateWorkflowReplacesGraph(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := sampleWorkflow()
	require.NoError(t, p.SaveWorkflow(ctx, workflow))

	initialUpdatedAt := workflow.UpdatedAt

	time.Sleep(10 * time.Millisecond)

	workflow.Name = "Order sync v2"
	workflow.Nodes = workflow.Nodes[:2]
	workflow.Edges = workflow.Edges[:1]
	require.NoError(t, p.SaveWorkflow(ctx, workflow))

	retrieved, err := p.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Order sync v2", retrieved.Name)
	assert.Len(t, retrieved.Nodes, 2)
	assert.Len(t, retrieved.Edges, 1)
	assert.True(t, retrieved.UpdatedAt.After(initialUpdatedAt))
}

func TestNewPersistence_ListAndDeleteWorkflows(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	first := sampleWorkflow()
	second := sampleWorkflow()
	second.Owner = "user-2"

	require.NoError(t, p.SaveWorkflow(ctx, first))
	require.NoError(t, p.SaveWorkflow(ctx, second))

	all, err := p.Workflows(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	owned, err := p.Workflows(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, second.ID, owned[0].ID)
	assert.Len(t, owned[0].Nodes, 4)

	require.NoError(t, p.DeleteWorkflow(ctx, first.ID))

	_, err = p.WorkflowByID(ctx, first.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	err = p.DeleteWorkflow(ctx, first.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestNewPersistence_ExecutionLifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	execution := &models.ExecutionRecord{
		WorkflowID: "wf-1",
		Owner:      "user-1",
		Input:      map[string]any{"order_id": float64(7)},
	}

	require.NoError(t, p.CreateExecution(ctx, execution))
	assert.NotEmpty(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)

	completedAt := time.Now().UTC()
	err := p.CompleteExecution(ctx, execution.ID, models.ExecutionCompletion{
		Status:      models.ExecutionStatusSuccess,
		Output:      map[string]any{"Fetch": map[string]any{"status_code": float64(200)}},
		CompletedAt: completedAt,
	})
	require.NoError(t, err)

	retrieved, err := p.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, retrieved.Status)
	assert.Equal(t, float64(7), retrieved.Input["order_id"])
	require.NotNil(t, retrieved.CompletedAt)
	assert.WithinDuration(t, completedAt, *retrieved.CompletedAt, time.Millisecond)

	err = p.CompleteExecution(ctx, execution.ID, models.ExecutionCompletion{Status: models.ExecutionStatusError})
	assert.True(t, persistence.IsExecutionAlreadyCompleted(err))

	err = p.CompleteExecution(ctx, uuid.NewString(), models.ExecutionCompletion{Status: models.ExecutionStatusError})
	assert.True(t, persistence.IsExecutionNotFound(err))

	_, err = p.ExecutionByID(ctx, uuid.NewString())
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestNewPersistence_NodeLogs(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	execution := &models.ExecutionRecord{WorkflowID: "wf-1"}
	require.NoError(t, p.CreateExecution(ctx, execution))

	fetch := models.WorkflowNode{ID: "fetch", Name: "Fetch", Type: models.NodeTypeAction}

	logID, err := p.StartNodeLog(ctx, execution.ID, fetch, map[string]any{"url": "https://example.com"})
	require.NoError(t, err)

	_, err = p.StartNodeLog(ctx, execution.ID, fetch, nil)
	require.ErrorIs(t, err, persistence.ErrNodeAlreadyRunning)

	err = p.CompleteNodeLog(ctx, logID, models.NodeLogCompletion{
		Status:      models.NodeStatusSuccess,
		Output:      map[string]any{"status_code": float64(200)},
		CompletedAt: time.Now().UTC(),
		DurationMs:  12,
	})
	require.NoError(t, err)

	err = p.CompleteNodeLog(ctx, logID, models.NodeLogCompletion{Status: models.NodeStatusError})
	require.ErrorIs(t, err, persistence.ErrNodeLogAlreadyCompleted)

	err = p.CompleteNodeLog(ctx, uuid.NewString(), models.NodeLogCompletion{Status: models.NodeStatusError})
	require.ErrorIs(t, err, persistence.ErrNodeLogNotFound)

	notify := models.WorkflowNode{ID: "notify", Name: "Notify", Type: models.NodeTypeAction}
	require.NoError(t, p.RecordSkippedNode(ctx, execution.ID, notify, "upstream node failed"))

	logs, err := p.NodeLogsByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, "fetch", logs[0].NodeID)
	assert.Equal(t, models.NodeStatusSuccess, logs[0].Status)
	assert.Equal(t, int64(12), logs[0].DurationMs)
	assert.Equal(t, "https://example.com", logs[0].Input["url"])
	assert.Equal(t, float64(200), logs[0].Output["status_code"])

	assert.Equal(t, "notify", logs[1].NodeID)
	assert.Equal(t, models.NodeStatusSkipped, logs[1].Status)
	assert.Equal(t, "upstream node failed", logs[1].Error)
	assert.NotNil(t, logs[1].CompletedAt)
}

func TestNewPersistence_DeleteExecutionsByWorkflow(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	for range 2 {
		execution := &models.ExecutionRecord{WorkflowID: "wf-delete"}
		require.NoError(t, p.CreateExecution(ctx, execution))

		_, err := p.StartNodeLog(ctx, execution.ID, models.WorkflowNode{ID: "a", Name: "A", Type: models.NodeTypeAction}, nil)
		require.NoError(t, err)
	}

	kept := &models.ExecutionRecord{WorkflowID: "wf-keep"}
	require.NoError(t, p.CreateExecution(ctx, kept))

	deleted, err := p.DeleteExecutionsByWorkflow(ctx, "wf-delete")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	remaining, err := p.ExecutionsByWorkflow(ctx, "wf-delete")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	others, err := p.ExecutionsByWorkflow(ctx, "wf-keep")
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestNewPersistence_Integrations(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	integration := &models.Integration{
		Owner:  "user-1",
		Name:   "Stripe",
		Type:   "api_key",
		Config: []byte{0x01, 0x02, 0x03},
	}

	require.NoError(t, p.SaveIntegration(ctx, integration))
	assert.NotEmpty(t, integration.ID)

	retrieved, err := p.IntegrationByID(ctx, integration.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, retrieved.Config)
	assert.Equal(t, "Stripe", retrieved.Name)

	owned, err := p.IntegrationsByOwner(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	require.NoError(t, p.DeleteIntegration(ctx, integration.ID))

	_, err = p.IntegrationByID(ctx, integration.ID)
	assert.True(t, persistence.IsIntegrationNotFound(err))

	err = p.DeleteIntegration(ctx, integration.ID)
	assert.True(t, persistence.IsIntegrationNotFound(err))
}
