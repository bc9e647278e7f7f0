// Package schedule starts workflow executions on cron schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/robfig/cron/v3"
)

var ErrCronRequired = errors.New("schedule trigger cron expression is required")

type Trigger struct {
	CronExpr string
	Timezone string

	cron     *cron.Cron
	loc      *time.Location
	ctx      context.Context
	callback protocol.TriggerCallback
	logger   *slog.Logger
}

func NewTrigger(config map[string]any, logger *slog.Logger) (*Trigger, error) {
	cronExpr, _ := config["cron"].(string)
	timezone, _ := config["timezone"].(string)

	trigger := &Trigger{
		CronExpr: cronExpr,
		Timezone: timezone,
		loc:      time.UTC,
		logger: logger.With(
			"module", "schedule_trigger",
			"cron", cronExpr,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

func (t *Trigger) Validate() error {
	if t.CronExpr == "" {
		return ErrCronRequired
	}

	if _, err := cron.ParseStandard(t.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	if t.Timezone != "" {
		loc, err := time.LoadLocation(t.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", t.Timezone, err)
		}

		t.loc = loc
	}

	return nil
}

func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	t.logger.InfoContext(ctx, "Starting schedule trigger")

	t.ctx = ctx
	t.callback = callback

	logger := cronLogger{t.logger}
	t.cron = cron.New(
		cron.WithLocation(t.loc),
		cron.WithLogger(logger),
		cron.WithChain(
			cron.SkipIfStillRunning(logger),
			cron.Recover(logger),
		),
	)

	_, err := t.cron.AddFunc(t.CronExpr, t.fire)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	t.cron.Start()

	return nil
}

// fire runs the callback synchronously so SkipIfStillRunning can hold back overlapping ticks.
func (t *Trigger) fire() {
	now := time.Now().In(t.loc)

	t.logger.InfoContext(t.ctx, "Cron job triggered")

	err := t.callback(t.ctx, map[string]any{
		"timestamp": now.Format(time.RFC3339),
		"cron":      t.CronExpr,
	})
	if err != nil {
		t.logger.ErrorContext(t.ctx, "Error executing workflow for trigger", "error", err)
	}
}

func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping schedule trigger")

	if t.cron != nil {
		<-t.cron.Stop().Done()
	}

	return nil
}

// cronLogger routes robfig/cron logs to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
