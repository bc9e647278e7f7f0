// Package workflow executes workflow graph snapshots node by node.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"dario.cat/mergo"
	"github.com/dukex/flowexec/pkg/graph"
	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/otelhelper"
	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/dukex/flowexec/pkg/redact"
	"github.com/dukex/flowexec/pkg/registry"
	"github.com/dukex/flowexec/pkg/template"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Summary is the outcome of one Run.
type Summary struct {
	ExecutionID  string                       `json:"execution_id"`
	WorkflowID   string                       `json:"workflow_id"`
	Status       models.ExecutionStatus       `json:"status"`
	Error        string                       `json:"error,omitempty"`
	FailedNodeID string                       `json:"failed_node_id,omitempty"`
	Output       map[string]any               `json:"output,omitempty"`
	Nodes        map[string]models.NodeStatus `json:"nodes"`
	Order        []string                     `json:"order"`
	StartedAt    time.Time                    `json:"started_at"`
	CompletedAt  time.Time                    `json:"completed_at"`
}

// CompletionHook is called after every Execute run, including runs that failed structurally.
type CompletionHook func(ctx context.Context, summary *Summary)

type Option func(*Executor)

// WithCredentials enables lazy credential resolution for nodes bound to an integration.
func WithCredentials(fetcher CredentialFetcher) Option {
	return func(e *Executor) {
		e.credentials = fetcher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

func WithCompletionHook(hook CompletionHook) Option {
	return func(e *Executor) {
		e.onComplete = hook
	}
}

type Executor struct {
	logger      *slog.Logger
	registry    *registry.Registry
	logs        LogStore
	executions  ExecutionStore
	credentials CredentialFetcher
	tracer      trace.Tracer
	onComplete  CompletionHook

	wg sync.WaitGroup
}

func NewExecutor(
	logger *slog.Logger,
	reg *registry.Registry,
	logs LogStore,
	executions ExecutionStore,
	opts ...Option,
) *Executor {
	e := &Executor{
		logger:     logger.With("module", "workflow_executor"),
		registry:   reg,
		logs:       logs,
		executions: executions,
		tracer:     otelhelper.NewNoopTracer(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute runs the graph in the background and returns immediately.
// The run is detached from ctx cancellation; values such as trace context are kept.
func (e *Executor) Execute(
	ctx context.Context,
	g models.Graph,
	triggerInput map[string]any,
	executionID string,
	workflowID string,
) {
	runCtx := context.WithoutCancel(ctx)

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		summary, err := e.Run(runCtx, g, triggerInput, executionID, workflowID)
		if err != nil {
			e.logger.ErrorContext(runCtx, "Workflow execution failed before running any node",
				"execution_id", executionID,
				"workflow_id", workflowID,
				"error", err)
		}

		if e.onComplete != nil {
			e.onComplete(runCtx, summary)
		}
	}()
}

// Wait blocks until every run started by Execute has finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// run holds the mutable state of one execution.
type run struct {
	index        *graph.Index
	triggerInput map[string]any
	statuses     map[string]models.NodeStatus
	// tainted marks nodes that failed or were skipped because something upstream failed.
	tainted    map[string]bool
	conditions map[string]bool
	outputs    map[string]any
}

// Run executes the graph synchronously. The returned error is non-nil only for
// structural problems (cycles, dangling edges) detected before any node runs; the
// execution record is completed with that error as well. Node failures are
// reported through the Summary.
func (e *Executor) Run(
	ctx context.Context,
	g models.Graph,
	triggerInput map[string]any,
	executionID string,
	workflowID string,
) (*Summary, error) {
	logger := e.logger.With("execution_id", executionID, "workflow_id", workflowID)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.Int("flowexec.graph.nodes", len(g.Nodes)),
	)
	defer span.End()

	summary := &Summary{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Nodes:       make(map[string]models.NodeStatus, len(g.Nodes)),
		StartedAt:   time.Now(),
	}

	index, err := graph.NewIndex(g)
	if err == nil {
		summary.Order, err = index.Order()
	}

	if err != nil {
		logger.ErrorContext(ctx, "Invalid workflow graph", "error", err)
		otelhelper.SetError(span, err)

		summary.Status = models.ExecutionStatusError
		summary.Error = redact.String(err.Error())
		e.complete(ctx, logger, summary)

		return summary, fmt.Errorf("workflow graph for execution %s: %w", executionID, err)
	}

	logger.InfoContext(ctx, "Starting workflow execution", "nodes", len(summary.Order))

	state := &run{
		index:        index,
		triggerInput: triggerInput,
		statuses:     summary.Nodes,
		tainted:      make(map[string]bool, len(summary.Order)),
		conditions:   make(map[string]bool),
		outputs:      make(map[string]any, len(summary.Order)),
	}

	for _, id := range summary.Order {
		node, _ := index.Node(id)
		nodeLogger := logger.With("node_id", node.ID, "node_name", node.Name)

		if reason, tainted, skip := state.skipReason(node); skip {
			state.statuses[id] = models.NodeStatusSkipped
			state.tainted[id] = tainted

			nodeLogger.DebugContext(ctx, "Skipping node", "reason", reason)

			if err := e.logs.RecordSkippedNode(ctx, executionID, *node, reason); err != nil {
				nodeLogger.ErrorContext(ctx, "Failed to record skipped node", "error", err)
			}

			continue
		}

		result := e.runNode(ctx, nodeLogger, state, node, executionID, workflowID)

		if !result.Success {
			state.statuses[id] = models.NodeStatusError
			state.tainted[id] = true

			if summary.FailedNodeID == "" {
				summary.FailedNodeID = id
				summary.Error = redact.String(result.Error)
			}

			nodeLogger.WarnContext(ctx, "Node failed", "error", redact.String(result.Error))

			continue
		}

		state.statuses[id] = models.NodeStatusSuccess
		state.outputs[node.Name] = result.Data

		if node.IsCondition() {
			state.conditions[id], _ = result.Data["result"].(bool)
		}
	}

	summary.Status = models.ExecutionStatusSuccess
	if summary.FailedNodeID != "" {
		summary.Status = models.ExecutionStatusError
		otelhelper.SetError(span, errors.New(summary.Error),
			attribute.String(otelhelper.NodeIDKey, summary.FailedNodeID))
	}

	summary.Output = redact.Map(state.outputs)
	e.complete(ctx, logger, summary)

	span.SetAttributes(attribute.String(otelhelper.ExecutionStatusKey, string(summary.Status)))
	logger.InfoContext(ctx, "Workflow execution finished",
		"status", summary.Status,
		"duration_ms", summary.CompletedAt.Sub(summary.StartedAt).Milliseconds())

	return summary, nil
}

func (e *Executor) complete(ctx context.Context, logger *slog.Logger, summary *Summary) {
	summary.CompletedAt = time.Now()

	err := e.executions.CompleteExecution(ctx, summary.ExecutionID, models.ExecutionCompletion{
		Status:      summary.Status,
		Output:      summary.Output,
		Error:       summary.Error,
		CompletedAt: summary.CompletedAt,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to complete execution record", "error", err)
	}
}

// skipReason decides whether node must be skipped. tainted is true when the
// skip is caused by an upstream failure and must propagate further down.
func (r *run) skipReason(node *models.WorkflowNode) (reason string, tainted bool, skip bool) {
	incoming := r.index.Incoming(node.ID)
	if len(incoming) == 0 {
		return "", false, false
	}

	for _, edge := range incoming {
		if r.tainted[edge.Source] {
			return fmt.Sprintf("upstream node %s did not complete", edge.Source), true, true
		}
	}

	for _, edge := range incoming {
		if r.live(edge) {
			return "", false, false
		}
	}

	return "no active incoming branch", false, true
}

// live reports whether edge carries control flow into its target.
func (r *run) live(edge models.WorkflowEdge) bool {
	if r.statuses[edge.Source] != models.NodeStatusSuccess {
		return false
	}

	source, _ := r.index.Node(edge.Source)
	if !source.IsCondition() || edge.Label == "" {
		return true
	}

	return edge.Label == strconv.FormatBool(r.conditions[edge.Source])
}

func (e *Executor) runNode(
	ctx context.Context,
	logger *slog.Logger,
	state *run,
	node *models.WorkflowNode,
	executionID string,
	workflowID string,
) protocol.Result {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.node",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeNameKey, node.Name),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		attribute.String(otelhelper.NodeActionKey, node.Action),
	)
	defer span.End()

	handler, defaults := e.resolveHandler(node)

	config, err := mergeDefaults(node.Config, defaults)
	if err != nil {
		logger.WarnContext(ctx, "Failed to merge default config", "error", err)
	}

	req := protocol.Request{
		ExecutionID:   executionID,
		WorkflowID:    workflowID,
		Node:          *node,
		Input:         template.ResolveConfig(config, state.outputs),
		IntegrationID: node.IntegrationID,
		Outputs:       copyOutputs(state.outputs),
		Trigger:       state.triggerInput,
	}

	if e.credentials != nil && node.IntegrationID != "" {
		integrationID := node.IntegrationID
		req.Credentials = func(ctx context.Context) (map[string]string, error) {
			return e.credentials.FetchCredentials(ctx, integrationID)
		}
	}

	if node.IsCondition() {
		handler = requireBranch(handler)
	}

	result, _ := withNodeLog(e.logs, logger, handler)(ctx, req)

	if !result.Success {
		otelhelper.SetError(span, errors.New(result.Error))
	}

	span.SetAttributes(attribute.Bool("flowexec.node.success", result.Success))

	return result
}

// resolveHandler looks up the node handler. Trigger nodes without a registered
// handler output the trigger input unchanged.
func (e *Executor) resolveHandler(node *models.WorkflowNode) (protocol.Handler, map[string]any) {
	descriptor, err := e.registry.Lookup(registry.KeyFor(*node))
	if err == nil {
		return descriptor.Handler, descriptor.Defaults
	}

	if node.IsTrigger() {
		return passTrigger, nil
	}

	return func(context.Context, protocol.Request) (protocol.Result, error) {
		return protocol.Result{}, err
	}, nil
}

// requireBranch fails condition nodes whose output carries no boolean "result".
func requireBranch(handler protocol.Handler) protocol.Handler {
	return func(ctx context.Context, req protocol.Request) (protocol.Result, error) {
		result, err := handler(ctx, req)
		if err != nil || !result.Success {
			return result, err
		}

		if _, ok := result.Data["result"].(bool); !ok {
			return protocol.Fail("condition node %s did not produce a boolean result", req.Node.Name), nil
		}

		return result, nil
	}
}

func passTrigger(_ context.Context, req protocol.Request) (protocol.Result, error) {
	return protocol.Ok(copyOutputs(req.Trigger)), nil
}

// mergeDefaults fills keys missing from config with registry defaults; zero values count as missing.
// Both inputs are deep copied first, so nested maps of the snapshot and of the registry are never shared
// with the result.
func mergeDefaults(config, defaults map[string]any) (map[string]any, error) {
	merged := deepCopyMap(config)
	if merged == nil {
		merged = make(map[string]any, len(defaults))
	}

	if len(defaults) == 0 {
		return merged, nil
	}

	if err := mergo.Merge(&merged, deepCopyMap(defaults)); err != nil {
		return merged, fmt.Errorf("merge defaults: %w", err)
	}

	return merged, nil
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}

	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}

		return out
	default:
		return v
	}
}

func copyOutputs(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}
