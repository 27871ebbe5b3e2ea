package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"octobayNotifier/internal/config"
	"octobayNotifier/internal/dispatcher"
	"octobayNotifier/internal/identity"
	"octobayNotifier/internal/metrics"
	"octobayNotifier/internal/notify"
	"octobayNotifier/internal/octobay"
	"octobayNotifier/internal/storage"
	"octobayNotifier/internal/storage/postgres"
)

// app is the dispatcher and everything it owns, shared by listen and backfill.
type app struct {
	decoder    *octobay.Decoder
	dispatcher *dispatcher.Dispatcher
	registry   *prometheus.Registry
	ledger     storage.Ledger
	email      bool
	twitter    bool
	closers    []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	tmpl, err := notify.LoadTemplate(cfg.Template)
	if err != nil {
		return nil, err
	}

	decoder, err := octobay.NewDecoder()
	if err != nil {
		return nil, err
	}

	resolver, err := identity.NewGithubResolver(ctx, cfg.GithubToken, cfg.GithubEndpoint)
	if err != nil {
		return nil, err
	}

	a := &app{decoder: decoder, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := dispatcher.Deps{
		Decoder:  decoder,
		Template: tmpl,
		Identity: resolver,
		Metrics:  metrics.NewMetrics(a.registry),
		Logger:   logger,
	}

	if cfg.SMTPHost != "" {
		mailer, err := notify.NewMailer(notify.MailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
		})
		if err != nil {
			return nil, err
		}
		deps.Mailer = mailer
		a.email = true
	} else {
		logger.Warn("smtp-host not set, email notifications disabled")
	}

	twitterCfg := notify.TwitterConfig{
		APIKey:       cfg.TwitterAPIKey,
		APISecret:    cfg.TwitterAPISecret,
		AccessToken:  cfg.TwitterAccessToken,
		AccessSecret: cfg.TwitterAccessSecret,
	}
	if twitterCfg.Complete() {
		poster, err := notify.NewTwitterPoster(ctx, twitterCfg)
		if err != nil {
			return nil, err
		}
		deps.Poster = poster
		a.twitter = true
	} else {
		logger.Warn("twitter credentials incomplete, twitter notifications disabled")
	}

	ledger, err := a.buildLedger(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if ledger != nil {
		deps.Ledger = ledger
		a.ledger = ledger
	}

	d, err := dispatcher.NewDispatcher(dispatcher.Config{
		MailFrom:        cfg.MailFrom,
		ReplyToStatusID: cfg.TwitterReplyTo,
	}, deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.dispatcher = d
	return a, nil
}

// buildLedger returns nil when neither sink is configured.
func (a *app) buildLedger(ctx context.Context, cfg config.Config) (storage.Ledger, error) {
	var sinks storage.MultiLedger
	if cfg.LedgerOut != "" {
		sinks = append(sinks, storage.NewJsonlLedger(cfg.LedgerOut))
	}
	if cfg.PostgresDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		sinks = append(sinks, store)
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server start", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
