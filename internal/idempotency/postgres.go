package idempotency

import (
	"context"
	"database/sql"
	"fmt"

	"callflex/pkg/utils"
)

// PostgresLedger stores marks in processed_webhook_events.
//
// The mark and fn share one transaction: a step is either applied and recorded
// or neither. A concurrent duplicate blocks on the unique key until the first
// transaction settles, then skips (commit) or runs (rollback).
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Once(ctx context.Context, k Key, fn Func) (bool, error) {
	if !k.Valid() {
		return false, ErrInvalidKey
	}
	ran := false
	err := utils.WithTx(ctx, l.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO processed_webhook_events (provider, event_id, step, processed_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (provider, event_id, step) DO NOTHING
`
		res, err := tx.ExecContext(ctx, q, k.Provider, k.EventID, k.Step)
		if err != nil {
			return fmt.Errorf("mark %s: %w", k, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if err := fn(ctx); err != nil {
			return err
		}
		ran = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return ran, nil
}
