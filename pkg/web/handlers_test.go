package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/flowexec/pkg/actions/trigger"
	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/persistence/file"
	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/dukex/flowexec/pkg/redact"
	"github.com/dukex/flowexec/pkg/registry"
	"github.com/dukex/flowexec/pkg/secrets"
	"github.com/dukex/flowexec/pkg/services"
	"github.com/dukex/flowexec/pkg/web"
	"github.com/dukex/flowexec/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app       *fiber.App
	workflows *services.Workflow
	executor  *workflow.Executor
}

func setupTestApp(t *testing.T, withCipher bool) *testServer {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(slog.Default())
	reg.MustRegister(trigger.Descriptors()...)
	reg.MustRegister(registry.Descriptor{
		Type:   models.NodeTypeAction,
		Action: "echo",
		Name:   "Echo",
		Handler: func(_ context.Context, req protocol.Request) (protocol.Result, error) {
			return protocol.Ok(req.Input), nil
		},
	})

	var cipher *secrets.Cipher

	if withCipher {
		var err error

		cipher, err = secrets.NewCipher(secrets.Config{Key: []byte("0123456789abcdef0123456789abcdef")})
		require.NoError(t, err)
	}

	executor := workflow.NewExecutor(slog.Default(), reg, store, store)
	workflowService := services.NewWorkflow(store, reg)

	handlers := web.NewAPIHandlers(
		workflowService,
		services.NewExecution(slog.Default(), store, executor),
		services.NewIntegration(slog.Default(), store, cipher),
		validator.New(validator.WithRequiredStructEnabled()),
		reg,
	)

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/validate", handlers.ValidateWorkflow)
	w.Post("/:id/executions", handlers.StartExecution)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)
	w.Delete("/:id/executions", handlers.DeleteWorkflowExecutions)

	app.Get("/executions/:id", handlers.GetExecution)
	app.Post("/webhooks/:workflowId", handlers.ReceiveWebhook)

	i := app.Group("/integrations")
	i.Post("/", handlers.CreateIntegration)
	i.Get("/", handlers.GetIntegrations)
	i.Delete("/:id", handlers.DeleteIntegration)

	app.Get("/actions", handlers.GetActions)
	app.Get("/health", handlers.HealthCheck)

	return &testServer{app: app, workflows: workflowService, executor: executor}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		encoded, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, payload
}

func (s *testServer) createWorkflow(t *testing.T, triggerAction string) *models.Workflow {
	t.Helper()

	created, err := s.workflows.Create(context.Background(), &models.Workflow{
		Name:    "Greeter",
		Owner:   "user-1",
		Enabled: true,
		Nodes: []*models.WorkflowNode{
			{ID: "t", Name: "Trigger", Type: models.NodeTypeTrigger, Action: triggerAction},
			{ID: "e", Name: "Echo", Type: models.NodeTypeAction, Action: "echo", Config: map[string]any{"greeting": "hello {{Trigger.name}}"}},
		},
		Edges: []*models.WorkflowEdge{{Source: "t", Target: "e"}},
	})
	require.NoError(t, err)

	return created
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(body, &v))

	return v
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		validateResult func(t *testing.T, body []byte)
	}{
		{
			name: "successful creation",
			requestBody: web.CreateWorkflowRequest{
				Name:  "Test Workflow",
				Owner: "test-user",
				Nodes: []*models.WorkflowNode{
					{ID: "t", Name: "Trigger", Type: models.NodeTypeTrigger, Action: trigger.Manual},
				},
			},
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()

				wf := decode[models.Workflow](t, body)
				assert.NotEmpty(t, wf.ID)
				assert.Equal(t, "Test Workflow", wf.Name)
				assert.True(t, wf.Enabled)
				assert.Len(t, wf.Nodes, 1)
				assert.Empty(t, wf.Edges)
			},
		},
		{
			name:           "validation error - name too short",
			requestBody:    web.CreateWorkflowRequest{Name: "Te", Owner: "test-user"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "validation error - missing owner",
			requestBody:    web.CreateWorkflowRequest{Name: "Test Workflow"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - bad node type",
			requestBody: web.CreateWorkflowRequest{
				Name:  "Test Workflow",
				Owner: "test-user",
				Nodes: []*models.WorkflowNode{{ID: "x", Name: "X", Type: "loop", Action: "echo"}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := setupTestApp(t, false)

			status, body := server.do(t, http.MethodPost, "/workflows", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.validateResult != nil {
				tt.validateResult(t, body)
			}
		})
	}
}

func TestAPIHandlers_WorkflowCRUD(t *testing.T) {
	t.Parallel()

	server := setupTestApp(t, false)
	wf := server.createWorkflow(t, trigger.Manual)

	status, body := server.do(t, http.MethodGet, "/workflows/"+wf.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, wf.ID, decode[models.Workflow](t, body).ID)

	status, body = server.do(t, http.MethodGet, "/workflows?owner=user-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, decode[map[string]any](t, body)["total_count"], 0)

	status, body = server.do(t, http.MethodGet, "/workflows?owner=nobody", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 0, decode[map[string]any](t, body)["total_count"], 0)

	status, body = server.do(t, http.MethodPatch, "/workflows/"+wf.ID, map[string]any{"name": "Renamed"})
	require.Equal(t, http.StatusOK, status)

	updated := decode[models.Workflow](t, body)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Len(t, updated.Nodes, 2)

	status, _ = server.do(t, http.MethodPatch, "/workflows/"+wf.ID, map[string]any{"name": "ab"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = server.do(t, http.MethodDelete, "/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = server.do(t, http.MethodGet, "/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "workflow_not_found", decode[map[string]any](t, body)["type"])

	status, _ = server.do(t, http.MethodDelete, "/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_ValidateWorkflow(t *testing.T) {
	t.Parallel()

	server := setupTestApp(t, false)
	wf := server.createWorkflow(t, trigger.Manual)

	status, body := server.do(t, http.MethodPost, "/workflows/"+wf.ID+"/validate", nil)
	require.Equal(t, http.StatusOK, status)

	report := decode[services.ValidationReport](t, body)
	assert.True(t, report.Valid)
	assert.Equal(t, []string{"t", "e"}, report.Order)

	status, _ = server.do(t, http.MethodPost, "/workflows/missing/validate", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_ExecutionLifecycle(t *testing.T) {
	t.Parallel()

	server := setupTestApp(t, false)
	wf := server.createWorkflow(t, trigger.Manual)

	status, body := server.do(t, http.MethodPost, "/workflows/"+wf.ID+"/executions",
		map[string]any{"input": map[string]any{"name": "Ada", "password": "s3cret"}})
	require.Equal(t, http.StatusAccepted, status, string(body))

	record := decode[models.ExecutionRecord](t, body)
	assert.Equal(t, models.ExecutionStatusRunning, record.Status)
	assert.Equal(t, redact.Mask, record.Input["password"])

	server.executor.Wait()

	status, body = server.do(t, http.MethodGet, "/executions/"+record.ID, nil)
	require.Equal(t, http.StatusOK, status)

	report := decode[models.ExecutionStatusReport](t, body)
	assert.Equal(t, models.ExecutionStatusSuccess, report.Execution.Status)
	require.Len(t, report.Nodes, 2)

	echo, ok := report.Execution.Output["Echo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello Ada", echo["greeting"])

	status, body = server.do(t, http.MethodGet, "/workflows/"+wf.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, decode[map[string]any](t, body)["total_count"], 0)

	status, body = server.do(t, http.MethodDelete, "/workflows/"+wf.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, decode[map[string]any](t, body)["deleted"], 0)

	status, _ = server.do(t, http.MethodGet, "/executions/"+record.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_StartExecutionErrors(t *testing.T) {
	t.Parallel()

	server := setupTestApp(t, false)
	wf := server.createWorkflow(t, trigger.Manual)

	status, _ := server.do(t, http.MethodPost, "/workflows/missing/executions", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = server.do(t, http.MethodPost, "/workflows/"+wf.ID+"/executions", "{not json")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = server.do(t, http.MethodPatch, "/workflows/"+wf.ID, map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, status)

	status, body := server.do(t, http.MethodPost, "/workflows/"+wf.ID+"/executions", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "workflow_disabled", decode[map[string]any](t, body)["type"])
}

func TestAPIHandlers_ReceiveWebhook(t *testing.T) {
	t.Parallel()

	server := setupTestApp(t, false)
	hooked := server.createWorkflow(t, trigger.Webhook)
	manual := server.createWorkflow(t, trigger.Manual)

	status, body := server.do(t, http.MethodPost, "/webhooks/"+hooked.ID, map[string]any{"name": "Grace"})
	require.Equal(t, http.StatusAccepted, status, string(body))

	accepted := decode[map[string]any](t, body)
	executionID, _ := accepted["execution_id"].(string)
	require.NotEmpty(t, executionID)

	server.executor.Wait()

	status, body = server.do(t, http.MethodGet, "/executions/"+executionID, nil)
	require.Equal(t, http.StatusOK, status)

	report := decode[models.ExecutionStatusReport](t, body)
	assert.Equal(t, models.ExecutionStatusSuccess, report.Execution.Status)
	assert.Equal(t, "Grace", report.Execution.Input["name"])

	status, _ = server.do(t, http.MethodPost, "/webhooks/"+hooked.ID, "[1,2,3]")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = server.do(t, http.MethodPost, "/webhooks/"+manual.ID, map[string]any{})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "webhook_not_found", decode[map[string]any](t, body)["type"])

	status, _ = server.do(t, http.MethodPost, "/webhooks/missing", map[string]any{})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_Integrations(t *testing.T) {
	t.Parallel()

	server := setupTestApp(t, true)

	status, body := server.do(t, http.MethodPost, "/integrations", web.CreateIntegrationRequest{
		Owner:  "user-1",
		Name:   "Payments",
		Type:   "http_bearer",
		Config: map[string]string{"api_key": "sk-live-1", "region": "eu"},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	created := decode[map[string]any](t, body)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	assert.Equal(t, []any{"api_key", "region"}, created["config_keys"])
	assert.NotContains(t, string(body), "sk-live-1")
	assert.NotContains(t, string(body), `"eu"`)

	status, body = server.do(t, http.MethodGet, "/integrations?owner=user-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, decode[map[string]any](t, body)["total_count"], 0)
	assert.NotContains(t, string(body), "sk-live-1")

	status, _ = server.do(t, http.MethodGet, "/integrations", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = server.do(t, http.MethodPost, "/integrations", web.CreateIntegrationRequest{Owner: "user-1", Name: "x", Type: "y"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = server.do(t, http.MethodDelete, "/integrations/"+id, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = server.do(t, http.MethodDelete, "/integrations/"+id, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_IntegrationsWithoutEncryptionKey(t *testing.T) {
	t.Parallel()

	server := setupTestApp(t, false)

	status, body := server.do(t, http.MethodPost, "/integrations", web.CreateIntegrationRequest{
		Owner: "user-1", Name: "Payments", Type: "http_bearer", Config: map[string]string{"api_key": "k"},
	})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "encryption_unavailable", decode[map[string]any](t, body)["type"])
}

func TestAPIHandlers_ActionsAndHealth(t *testing.T) {
	t.Parallel()

	server := setupTestApp(t, false)

	status, body := server.do(t, http.MethodGet, "/actions", nil)
	require.Equal(t, http.StatusOK, status)

	actions := decode[map[string][]registry.Descriptor](t, body)["actions"]
	assert.Len(t, actions, len(trigger.Descriptors())+1)

	status, body = server.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", decode[map[string]any](t, body)["status"])
}
