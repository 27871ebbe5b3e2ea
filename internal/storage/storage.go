package storage

import (
	"context"
	"errors"

	"octobayNotifier/internal/model"
)

// Ledger records notifications that went out.
type Ledger interface {
	PutNotification(ctx context.Context, record model.NotificationRecord) error
}

// MultiLedger writes each record to every ledger and joins their errors.
type MultiLedger []Ledger

func (m MultiLedger) PutNotification(ctx context.Context, record model.NotificationRecord) error {
	var errs []error
	for _, ledger := range m {
		if ledger == nil {
			continue
		}
		if err := ledger.PutNotification(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
