package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	chclient "github.com/SteelMorgan/cwtail/internal/clickhouse"
	"github.com/SteelMorgan/cwtail/internal/config"
	"github.com/SteelMorgan/cwtail/internal/observability"
	"github.com/SteelMorgan/cwtail/internal/retry"
	"github.com/SteelMorgan/cwtail/internal/service"
	"github.com/SteelMorgan/cwtail/internal/sink"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [filter]",
		Short: "Continuously print new events of matching log groups",
		Long: `Discovers the log groups whose name contains filter (all groups when
omitted) and polls them until interrupted. Each event is printed once,
prefixed by its group name and timestamp.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx.applyFilter(args)
			return runWatch(cmd, ctx)
		},
	}
}

func runWatch(cmd *cobra.Command, cc *commandContext) error {
	cfg := cc.config
	log.Info().
		Str("version", version).
		Str("region", cfg.AWS.Region).
		Msg("Starting cwtail")

	shutdownTracer, err := observability.InitTracer(observability.TracerConfig{
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		Protocol:       cfg.Tracing.Protocol,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		defer shutdownTracer(context.Background())
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client, err := cc.newCloudWatchClient(ctx)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	out, closeArchive, err := buildSink(ctx, cmd, cfg, runID)
	if err != nil {
		return err
	}
	defer closeArchive()

	svc, err := service.NewTailerService(cfg, client, out, service.WithRunID(runID))
	if err != nil {
		return fmt.Errorf("failed to create tailer service: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- svc.Start(ctx)
	}()

	var runErr error
	select {
	case <-sigChan:
		log.Info().Msg("Received shutdown signal")
		cancel()
		runErr = <-errChan
	case runErr = <-errChan:
		if runErr != nil {
			log.Error().Err(runErr).Msg("Tailer service error")
		}
	}

	log.Info().Msg("Shutting down gracefully...")
	if err := svc.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}

	return runErr
}

// buildSink assembles the terminal sink and, when enabled, the ClickHouse archive.
// The returned func releases the archive connection after the sink was closed.
func buildSink(ctx context.Context, cmd *cobra.Command, cfg *config.Config, runID string) (sink.Sink, func(), error) {
	terminal := sink.NewTerminal(cmd.OutOrStdout(), cfg.Tail.NoColor)
	if !cfg.ClickHouse.Enabled {
		return sink.NewMulti(terminal), func() {}, nil
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.ClickHouse.RetryMaxAttempts
	retryCfg.InitialDelay = cfg.ClickHouse.RetryInitialDelay
	retryCfg.MaxDelay = cfg.ClickHouse.RetryMaxDelay
	retryCfg.Multiplier = cfg.ClickHouse.RetryBackoffFactor

	client, err := chclient.NewClient(ctx, chclient.Options{
		Host:     cfg.ClickHouse.Host,
		Port:     cfg.ClickHouse.Port,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
	}, retryCfg)
	if err != nil {
		return nil, nil, err
	}

	inserter := sink.NewTableInserter(client, cfg.ClickHouse.Table)
	if err := inserter.EnsureTable(ctx); err != nil {
		client.Close()
		return nil, nil, err
	}

	archive := sink.NewClickHouse(inserter, sink.BatchConfig{
		MaxSize:       cfg.ClickHouse.BatchSize,
		FlushInterval: cfg.ClickHouse.FlushInterval,
	}, runID)
	archive.StartFlusher(ctx)

	log.Info().
		Str("table", cfg.ClickHouse.Table).
		Str("run_id", runID).
		Msg("Archiving events to ClickHouse")

	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close ClickHouse connection")
		}
	}
	return sink.NewMulti(terminal, archive), closeFn, nil
}
