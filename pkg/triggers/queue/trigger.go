// Package queue starts workflow executions for messages pushed onto Redis lists.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowexec/pkg/protocol"
	redis "github.com/redis/go-redis/v9"
)

const popTimeout = time.Second

var ErrQueueRequired = errors.New("queue trigger queue name is required")

// Popper is the part of the Redis client the trigger consumes with.
type Popper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

type Trigger struct {
	Queue string

	client   Popper
	callback protocol.TriggerCallback
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewTrigger(config map[string]any, client Popper, logger *slog.Logger) (*Trigger, error) {
	queue, _ := config["queue"].(string)

	trigger := &Trigger{
		Queue:  queue,
		client: client,
		stopCh: make(chan struct{}),
		logger: logger.With(
			"module", "queue_trigger",
			"queue", queue,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

func (t *Trigger) Validate() error {
	if t.Queue == "" {
		return ErrQueueRequired
	}

	if t.client == nil {
		return errors.New("queue trigger requires a redis client")
	}

	return nil
}

func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	t.logger.InfoContext(ctx, "Starting queue trigger")
	t.callback = callback

	t.wg.Add(1)

	go t.consume(ctx)

	return nil
}

func (t *Trigger) consume(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-t.stopCh:
			t.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			t.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			err := t.processMessage(ctx)
			if err != nil {
				t.logger.ErrorContext(ctx, "Error processing message", "error", err)

				select {
				case <-t.stopCh:
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}
}

// processMessage pops at most one message and hands it to the callback.
func (t *Trigger) processMessage(ctx context.Context) error {
	result, err := t.client.BLPop(ctx, popTimeout, t.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	t.logger.DebugContext(ctx, "Received message from queue", "bytes", len(result[1]))

	err = t.callback(ctx, Decode(result[1], time.Now().UTC()))
	if err != nil {
		t.logger.ErrorContext(ctx, "Error executing workflow for trigger", "error", err)
	}

	return nil
}

// Decode turns a queue message into trigger input. JSON objects are used as-is; anything
// else is wrapped as {"message": raw}. A "timestamp" is added when missing.
func Decode(message string, now time.Time) map[string]any {
	var data map[string]any

	if err := json.Unmarshal([]byte(message), &data); err != nil || data == nil {
		data = map[string]any{"message": message}
	}

	if data["timestamp"] == nil {
		data["timestamp"] = now.Format(time.RFC3339)
	}

	return data
}

// Stop ends consumption. The shared client is left open.
func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping queue trigger")

	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}

	t.wg.Wait()

	return nil
}
