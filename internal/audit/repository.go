package audit

import (
	"context"
	"database/sql"

	"callflex/pkg/utils"
)

// PostgresRepo appends to billing_events. It writes through utils.Conn so the
// insert commits together with the reconciliation it describes.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := utils.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO billing_events
			(id, organization_id, event_type, stripe_event_id, stripe_invoice_id,
			 amount_cents, currency, description, metadata, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10)`,
		e.ID, e.OrganizationID, e.Type, e.StripeEventID, e.StripeInvoiceID,
		e.AmountCents, e.Currency, e.Description, e.Metadata, e.CreatedAt)
	return err
}
