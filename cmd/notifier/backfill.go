package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"octobayNotifier/internal/backfill"
	"octobayNotifier/internal/chain"
)

func runBackfill(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.ValidateBackfill(); err != nil {
		return err
	}
	contract, err := chain.ParseAddress(cfg.Contract)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	b := cfg.Backfill
	runner := backfill.NewRunner(backfill.RunConfig{
		FromBlock:         b.FromBlock,
		ToBlock:           b.ToBlock,
		Contract:          contract,
		BatchSize:         b.BatchSize,
		CheckpointPath:    b.Checkpoint,
		CheckpointEnabled: b.CheckpointEnabled,
		MaxRetries:        b.MaxRetries,
		RetryBackoff:      b.RetryBackoff,
	}, chainClient, app.dispatcher, logger)

	logger.Info("backfill start",
		zap.String("contract", contract.Hex()),
		zap.Uint64("from", b.FromBlock),
		zap.Uint64("to", b.ToBlock),
		zap.Uint64("batch_size", b.BatchSize),
		zap.Bool("checkpoint_enabled", b.CheckpointEnabled),
		zap.String("checkpoint", b.Checkpoint),
	)

	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("backfill complete",
		zap.Uint64("from", summary.From),
		zap.Uint64("to", summary.To),
		zap.Int("batches", summary.Batches),
		zap.Int("logs", summary.Logs),
		zap.Int("failed", summary.Failed),
	)
	return nil
}
