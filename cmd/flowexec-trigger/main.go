// Package main provides the flowexec trigger service that runs schedule and queue triggers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/flowexec/pkg/cmd"
	"github.com/dukex/flowexec/pkg/log"
	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/dukex/flowexec/pkg/services"
	"github.com/dukex/flowexec/pkg/triggers"
	"github.com/dukex/flowexec/pkg/triggers/queue"
	"github.com/dukex/flowexec/pkg/triggers/schedule"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"
)

func main() {
	root := &cli.Command{
		Name:                  "flowexec-trigger",
		EnableShellCompletion: true,
		Usage:                 "Run schedule and queue triggers for enabled workflows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel runs executions in process, kafka dispatches them to workers)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka broker addresses",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for queue triggers; queue triggers are disabled when empty",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "sync-interval",
				Usage:   "How often enabled workflows are re-read to start and stop triggers",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("TRIGGER_SYNC_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "encryption-key",
				Usage:   "Hex or base64 encoded 32 byte key for integration credentials",
				Sources: cli.EnvVars("ENCRYPTION_KEY"),
			},
			&cli.StringFlag{
				Name:    "encryption-passphrase",
				Usage:   "Passphrase the credential key is derived from when no key is given",
				Sources: cli.EnvVars("ENCRYPTION_PASSPHRASE"),
			},
			&cli.StringFlag{
				Name:    "encryption-salt",
				Usage:   "Salt used with the encryption passphrase",
				Value:   "flowexec",
				Sources: cli.EnvVars("ENCRYPTION_SALT"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))
			logger := log.WithModule("trigger")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			tracer, shutdownTracer, err := cmd.NewTracer(ctx, command.Bool("otel-enabled"), "flowexec-trigger")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			defer func() {
				if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to flush tracer", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			cipher, err := cmd.NewCipher(
				command.String("encryption-key"),
				command.String("encryption-passphrase"),
				command.String("encryption-salt"),
			)
			if err != nil {
				return err
			}

			eventBusType := command.String("event-bus")

			eventBus, err := cmd.NewEventBus(eventBusType, command.String("kafka-brokers"), "flowexec-trigger", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			registry := cmd.NewRegistry(logger)

			executions, executor, err := cmd.NewExecutionService(cmd.ExecutionModeFor(eventBusType), cmd.ExecutionDeps{
				Logger:      logger,
				Persistence: persistence,
				Registry:    registry,
				Publisher:   eventBus,
				Cipher:      cipher,
				Tracer:      tracer,
			})
			if err != nil {
				return err
			}

			var redisClient *redis.Client

			if redisURL := command.String("redis-url"); redisURL != "" {
				redisClient, err = cmd.NewRedisClient(ctx, redisURL)
				if err != nil {
					return err
				}

				defer func() {
					if err := redisClient.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close redis client", "error", err)
					}
				}()
			} else {
				logger.WarnContext(ctx, "No redis URL configured, queue triggers are disabled")
			}

			manager := triggers.NewManager(
				logger,
				services.NewWorkflow(persistence, registry),
				executions,
				newFactories(redisClient)...,
			)

			logger.InfoContext(ctx, "Starting trigger manager", "sync_interval", command.Duration("sync-interval"))

			err = manager.Run(ctx, command.Duration("sync-interval"))

			if executor != nil {
				executor.Wait()
			}

			return err
		},
	}

	err := root.Run(context.Background(), os.Args)
	if err != nil {
		slog.Error("flowexec-trigger failed", "error", err)
		os.Exit(1)
	}
}

// newFactories returns the trigger factories available with the given redis client, which may be nil.
func newFactories(redisClient *redis.Client) []protocol.TriggerFactory {
	factories := []protocol.TriggerFactory{schedule.NewFactory()}

	if redisClient != nil {
		factories = append(factories, queue.NewFactory(redisClient))
	}

	return factories
}
