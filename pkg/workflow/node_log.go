package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/dukex/flowexec/pkg/redact"
)

// withNodeLog wraps handler with the running/completed log entries of one node.
// Store failures never fail the node; they are reported on logger.
// The returned handler never returns an error: failures are folded into the Result.
func withNodeLog(store LogStore, logger *slog.Logger, handler protocol.Handler) protocol.Handler {
	return func(ctx context.Context, req protocol.Request) (protocol.Result, error) {
		startedAt := time.Now()

		logID, err := store.StartNodeLog(ctx, req.ExecutionID, req.Node, redact.Map(req.Input))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to record node start", "error", err)
		}

		result := invoke(ctx, logger, handler, req)

		if logID == "" {
			return result, nil
		}

		completedAt := time.Now()
		completion := models.NodeLogCompletion{
			Status:      models.NodeStatusSuccess,
			Output:      redact.Map(result.Data),
			CompletedAt: completedAt,
			DurationMs:  completedAt.Sub(startedAt).Milliseconds(),
		}

		if !result.Success {
			completion.Status = models.NodeStatusError
			completion.Output = nil
			completion.Error = redact.String(result.Error)
		}

		if err := store.CompleteNodeLog(ctx, logID, completion); err != nil {
			logger.ErrorContext(ctx, "Failed to record node completion", "log_id", logID, "error", err)
		}

		return result, nil
	}
}

// invoke calls handler and turns returned errors and panics into a failed Result.
func invoke(ctx context.Context, logger *slog.Logger, handler protocol.Handler, req protocol.Request) (result protocol.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = protocol.Fail("handler panicked: %v", r)
			logger.ErrorContext(ctx, "Handler panic",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()

	res, err := handler(ctx, req)
	if err != nil {
		return protocol.Result{Success: false, Error: err.Error()}
	}

	if !res.Success && res.Error == "" {
		res.Error = "node failed without an error message"
	}

	return res
}
