package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"octobayNotifier/internal/model"
)

const createNotificationsTable = `
	CREATE TABLE IF NOT EXISTS notifications (
		tx_hash      TEXT        NOT NULL,
		log_index    BIGINT      NOT NULL,
		channel      TEXT        NOT NULL,
		block_number BIGINT      NOT NULL,
		kind         TEXT        NOT NULL,
		github_login TEXT        NOT NULL,
		recipient    TEXT        NOT NULL,
		external_id  TEXT        NOT NULL,
		amount_wei   NUMERIC     NOT NULL,
		sent_at      TIMESTAMPTZ NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tx_hash, log_index, channel)
	)
`

// Store provides Postgres persistence for the notification ledger.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the notifications table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createNotificationsTable); err != nil {
		return fmt.Errorf("create notifications table: %w", err)
	}
	return nil
}

const insertNotification = `
	INSERT INTO notifications (
		tx_hash, log_index, channel, block_number, kind, github_login, recipient, external_id, amount_wei, sent_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10)
	ON CONFLICT (tx_hash, log_index, channel) DO NOTHING
`

// PutNotification inserts a ledger row. Replays of the same log and channel
// are ignored.
func (s *Store) PutNotification(ctx context.Context, record model.NotificationRecord) error {
	args, err := notificationArgs(record)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertNotification, args...); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// notificationArgs maps a record onto the insertNotification parameters.
func notificationArgs(record model.NotificationRecord) ([]any, error) {
	sentAt, err := time.Parse(time.RFC3339Nano, record.SentAt)
	if err != nil {
		return nil, fmt.Errorf("parse sent_at: %w", err)
	}
	amount := record.AmountWei
	if amount == "" {
		amount = "0"
	}

	return []any{
		record.TxHash,
		int64(record.LogIndex),
		string(record.Channel),
		int64(record.BlockNumber),
		string(record.Kind),
		record.GithubLogin,
		record.Recipient,
		record.ExternalID,
		amount,
		sentAt,
	}, nil
}
