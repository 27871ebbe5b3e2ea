package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"octobayNotifier/internal/dispatcher"
)

// LogFetcher reads historical logs over a block range.
type LogFetcher interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for a backfill.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Contract          common.Address
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Summary reports what a backfill did.
type Summary struct {
	From    uint64
	To      uint64
	Batches int
	Logs    int
	Failed  int
}

// Runner replays contract logs through a handler, one batch at a time.
type Runner struct {
	cfg        RunConfig
	fetcher    LogFetcher
	handler    dispatcher.Handler
	logger     *zap.Logger
	checkpoint *CheckpointStore
}

func NewRunner(cfg RunConfig, fetcher LogFetcher, handler dispatcher.Handler, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		fetcher:    fetcher,
		handler:    handler,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.Contract, cfg.CheckpointEnabled),
	}
}

// Run replays [FromBlock, ToBlock]. A zero ToBlock means the latest block.
// Handler failures are logged and skipped; fetch and checkpoint failures stop
// the run.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	if r.fetcher == nil {
		return summary, fmt.Errorf("log fetcher is nil")
	}
	if r.handler == nil {
		return summary, fmt.Errorf("handler is nil")
	}
	if r.cfg.BatchSize == 0 {
		return summary, fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.Contract == (common.Address{}) {
		return summary, fmt.Errorf("contract address is required")
	}

	from, to := r.cfg.FromBlock, r.cfg.ToBlock
	if to == 0 {
		latest, err := r.latestWithRetry(ctx)
		if err != nil {
			return summary, fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return summary, err
	}
	if ok && cp.LastBlock >= from {
		from = cp.LastBlock + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_block", cp.LastBlock), zap.Uint64("from", from))
	}
	summary.From, summary.To = from, to

	if from > to {
		r.logger.Info("nothing to backfill", zap.Uint64("from", from), zap.Uint64("to", to))
		return summary, nil
	}

	batches, err := Batches(from, to, r.cfg.BatchSize)
	if err != nil {
		return summary, err
	}

	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		logs, err := r.filterWithRetry(ctx, batch)
		if err != nil {
			return summary, fmt.Errorf("filter logs %d-%d: %w", batch.From, batch.To, err)
		}

		failed := 0
		for _, log := range logs {
			if err := r.handler.Handle(ctx, log); err != nil {
				failed++
				r.logger.Error("notification failed",
					zap.Error(err),
					zap.Uint64("block_number", log.BlockNumber),
					zap.String("tx_hash", log.TxHash.Hex()),
					zap.Uint("log_index", log.Index),
				)
			}
		}

		if err := r.checkpoint.Save(batch.To); err != nil {
			return summary, err
		}

		summary.Batches++
		summary.Logs += len(logs)
		summary.Failed += failed
		r.logger.Info("batch complete",
			zap.Int("logs", len(logs)),
			zap.Int("failed", failed),
			zap.Uint64("from", batch.From),
			zap.Uint64("to", batch.To),
		)
	}

	return summary, nil
}

func (r *Runner) filterWithRetry(ctx context.Context, batch Batch) ([]types.Log, error) {
	// Same filter as the live listener: the contract address only.
	var logs []types.Log
	addresses := []common.Address{r.cfg.Contract}
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.fetcher.FilterLogs(ctx, batch.From, batch.To, addresses, nil)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", batch.From), zap.Uint64("to", batch.To))
		}
		return err
	})
	return logs, err
}

func (r *Runner) latestWithRetry(ctx context.Context) (uint64, error) {
	var latest uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = r.fetcher.LatestBlockNumber(ctx)
		if err != nil {
			r.logger.Warn("latest block fetch failed", zap.Error(err))
		}
		return err
	})
	return latest, err
}
