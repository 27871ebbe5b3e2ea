package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"octobayNotifier/internal/chain"
	"octobayNotifier/internal/config"
	"octobayNotifier/internal/dispatcher"
)

func main() {
	root := &cobra.Command{
		Use:          "notifier",
		Short:        "OctoBay transfer notification bot",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Notify recipients of new transfer events",
		RunE:  runListen,
	}
	addCommonFlags(listenCmd.Flags())
	listenCmd.Flags().Int("workers", 16, "concurrent notification workers")
	listenCmd.Flags().Int("queue-length", 1024, "pending events buffered for workers")
	listenCmd.Flags().Duration("handle-timeout", 0, "per-event timeout, 0 means none")
	listenCmd.Flags().Duration("resubscribe-backoff", 30*time.Second, "maximum delay between resubscribe attempts")
	listenCmd.Flags().String("metrics-addr", "", "address for the /metrics endpoint, empty disables it")
	root.AddCommand(listenCmd)

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Replay historical transfer events over a block range",
		RunE:  runBackfill,
	}
	addCommonFlags(backfillCmd.Flags())
	backfillCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	backfillCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	backfillCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	backfillCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	backfillCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	backfillCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	backfillCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	root.AddCommand(backfillCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// addCommonFlags registers the connection and channel flags both commands share.
func addCommonFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "websocket RPC URL")
	flags.String("contract", "", "OctoBay contract address")
	flags.String("template", "./templates/notification.html", "notification mail template")
	flags.String("smtp-host", "", "SMTP host, empty disables email")
	flags.Int("smtp-port", 587, "SMTP port")
	flags.String("smtp-user", "", "SMTP username")
	flags.String("smtp-pass", "", "SMTP password")
	flags.String("mail-from", dispatcher.DefaultMailFrom, "mail sender")
	flags.String("twitter-api-key", "", "Twitter API key")
	flags.String("twitter-api-secret", "", "Twitter API secret")
	flags.String("twitter-access-token", "", "Twitter access token")
	flags.String("twitter-access-secret", "", "Twitter access token secret")
	flags.Int64("twitter-reply-to", dispatcher.DefaultReplyToStatusID, "status id mentions reply to")
	flags.String("github-token", "", "GitHub token for the GraphQL API")
	flags.String("github-endpoint", "https://api.github.com/graphql", "GitHub GraphQL endpoint")
	flags.String("ledger-out", "", "notification ledger JSONL path")
	flags.String("pg-dsn", "", "Postgres DSN for the notification ledger")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	return config.Load(cfgFile, cmd.Flags())
}

func runListen(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
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

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, app.registry, logger)
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	listener := dispatcher.NewListener(dispatcher.ListenerConfig{
		Contract:           contract,
		Workers:            cfg.Workers,
		QueueLength:        cfg.QueueLength,
		HandleTimeout:      cfg.HandleTimeout,
		ResubscribeBackoff: cfg.ResubscribeBackoff,
	}, chainClient, app.dispatcher, logger)

	logger.Info("listening for transfer events",
		zap.String("contract", contract.Hex()),
		zap.Bool("email", app.email),
		zap.Bool("twitter", app.twitter),
		zap.Bool("ledger", app.ledger != nil),
		zap.Int("workers", cfg.Workers),
	)

	return listener.Run(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
