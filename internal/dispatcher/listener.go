package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/viney-shih/goroutines"
	"go.uber.org/zap"
)

// LogSubscriber streams new chain logs.
type LogSubscriber interface {
	SubscribeLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Handler processes a single log.
type Handler interface {
	Handle(ctx context.Context, log types.Log) error
}

// ListenerConfig holds runtime settings for the live listener.
type ListenerConfig struct {
	Contract           common.Address
	Workers            int
	QueueLength        int
	HandleTimeout      time.Duration
	ResubscribeBackoff time.Duration
}

// Listener subscribes to contract logs and hands each one to a worker.
type Listener struct {
	cfg        ListenerConfig
	subscriber LogSubscriber
	handler    Handler
	logger     *zap.Logger
	pool       *goroutines.Pool
	inflight   sync.WaitGroup
}

// NewListener builds a Listener. It owns a worker pool that Run releases on
// return, so a Listener runs once.
func NewListener(cfg ListenerConfig, subscriber LogSubscriber, handler Handler, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 16
	}
	if cfg.QueueLength <= 0 {
		cfg.QueueLength = 1024
	}
	if cfg.ResubscribeBackoff <= 0 {
		cfg.ResubscribeBackoff = 30 * time.Second
	}

	return &Listener{
		cfg:        cfg,
		subscriber: subscriber,
		handler:    handler,
		logger:     logger,
		pool:       goroutines.NewPool(cfg.Workers, goroutines.WithTaskQueueLength(cfg.QueueLength)),
	}
}

// Run listens until ctx is done. Dropped subscriptions are re-established with
// backoff. In-flight handlers are allowed to finish before Run returns.
func (l *Listener) Run(ctx context.Context) error {
	defer l.pool.Release()
	if l.subscriber == nil {
		return fmt.Errorf("subscriber is nil")
	}
	if l.handler == nil {
		return fmt.Errorf("handler is nil")
	}
	defer l.inflight.Wait()

	// Every contract log is delivered; the handler classifies by topic.
	query := ethereum.FilterQuery{
		Addresses: []common.Address{l.cfg.Contract},
	}

	logs := make(chan types.Log, l.cfg.QueueLength)
	sub := event.ResubscribeErr(l.cfg.ResubscribeBackoff, func(subCtx context.Context, lastErr error) (event.Subscription, error) {
		if lastErr != nil {
			l.logger.Error("log subscription dropped", zap.Error(lastErr))
		}
		s, err := l.subscriber.SubscribeLogs(subCtx, query, logs)
		if err != nil {
			l.logger.Error("subscribe logs failed", zap.Error(err))
			return nil, err
		}
		l.logger.Info("log subscription established", zap.String("contract", l.cfg.Contract.Hex()))
		return s, nil
	})
	defer sub.Unsubscribe()

	// Handlers outlive shutdown so a started notification is not cut off.
	handleCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("listener stopping")
			return nil
		case <-sub.Err():
			return fmt.Errorf("log subscription closed")
		case log := <-logs:
			l.dispatch(handleCtx, log)
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, log types.Log) {
	l.inflight.Add(1)
	err := l.pool.Schedule(func() {
		defer l.inflight.Done()
		l.handle(ctx, log)
	})
	if err != nil {
		l.inflight.Done()
		l.logger.Error("schedule handler failed",
			zap.Error(err),
			zap.String("tx_hash", log.TxHash.Hex()),
			zap.Uint("log_index", log.Index),
		)
	}
}

// handle is the per-event error boundary: errors and panics are logged and
// the event is dropped.
func (l *Listener) handle(ctx context.Context, log types.Log) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("handler panic",
				zap.Any("panic", r),
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
			)
		}
	}()

	if l.cfg.HandleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.HandleTimeout)
		defer cancel()
	}

	if err := l.handler.Handle(ctx, log); err != nil {
		l.logger.Error("notification failed",
			zap.Error(err),
			zap.String("tx_hash", log.TxHash.Hex()),
			zap.Uint("log_index", log.Index),
		)
	}
}
