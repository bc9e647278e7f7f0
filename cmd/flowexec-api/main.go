package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/flowexec/pkg/cmd"
	"github.com/dukex/flowexec/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	root := &cli.Command{
		Name:                  "flowexec-api",
		Usage:                 "Create, manage and run workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (postgres:// or a file path)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel runs executions in process, kafka dispatches them to workers)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka broker addresses",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
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
			logger := log.WithModule("api")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing flowexec API")

			tracer, shutdownTracer, err := cmd.NewTracer(ctx, command.Bool("otel-enabled"), "flowexec-api")
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
				err := persistence.Close(context.WithoutCancel(ctx))
				if err != nil {
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

			if cipher == nil {
				logger.WarnContext(ctx, "No encryption key configured, integration endpoints are disabled")
			}

			eventBusType := command.String("event-bus")

			eventBus, err := cmd.NewEventBus(eventBusType, command.String("kafka-brokers"), "flowexec-api", logger)
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

			api := NewAPI(logger, persistence, registry, executions, cipher)

			err = api.Start(ctx, int(command.Int("port")))
			if err != nil {
				logger.ErrorContext(ctx, "API server stopped", "error", err)
			}

			if executor != nil {
				logger.InfoContext(ctx, "Waiting for running executions to finish")
				executor.Wait()
			}

			return err
		},
	}

	err := root.Run(context.Background(), os.Args)
	if err != nil {
		slog.Error("flowexec-api failed", "error", err)
		os.Exit(1)
	}
}
