package phonenumbers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"callflex/pkg/utils"
)

type Repository interface {
	List(ctx context.Context, orgID string) ([]PhoneNumber, error)
	Get(ctx context.Context, id string) (PhoneNumber, error)
	Count(ctx context.Context, orgID string) (int, error)
	Create(ctx context.Context, n PhoneNumber) (PhoneNumber, error)
	Update(ctx context.Context, id string, p Patch) (PhoneNumber, error)
	Delete(ctx context.Context, id string) error
}

type PostgresRepo struct {
	db *sql.DB
	x  *sqlx.DB
}

func NewPostgresRepo(db *sql.DB, x *sqlx.DB) *PostgresRepo {
	return &PostgresRepo{db: db, x: x}
}

const columns = `id, organization_id, phone_number, friendly_name, country, region, locality, provider,
       provider_sid, assistant_id, routing_rules, status, capabilities, created_at, updated_at`

func (r *PostgresRepo) List(ctx context.Context, orgID string) ([]PhoneNumber, error) {
	out := []PhoneNumber{}
	err := r.x.SelectContext(ctx, &out, `SELECT `+columns+` FROM phone_numbers WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	return out, err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (PhoneNumber, error) {
	var n PhoneNumber
	err := r.x.GetContext(ctx, &n, `SELECT `+columns+` FROM phone_numbers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return PhoneNumber{}, ErrNotFound
	}
	return n, err
}

func (r *PostgresRepo) Count(ctx context.Context, orgID string) (int, error) {
	var n int
	err := r.x.GetContext(ctx, &n, `SELECT count(*) FROM phone_numbers WHERE organization_id = $1`, orgID)
	return n, err
}

func (r *PostgresRepo) Create(ctx context.Context, n PhoneNumber) (PhoneNumber, error) {
	const q = `
INSERT INTO phone_numbers (organization_id, phone_number, friendly_name, country, region, locality,
                           provider, provider_sid, status, capabilities)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10::jsonb, '{}'::jsonb))
RETURNING id`
	var caps any
	if len(n.Capabilities) > 0 {
		caps = string(n.Capabilities)
	}
	var id string
	err := utils.Conn(ctx, r.db).QueryRowContext(ctx, q,
		n.OrganizationID, n.PhoneNumber, n.FriendlyName, n.Country, n.Region, n.Locality,
		n.Provider, n.ProviderSID, n.Status, caps,
	).Scan(&id)
	if err != nil {
		return PhoneNumber{}, fmt.Errorf("insert phone number: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *PostgresRepo) Update(ctx context.Context, id string, p Patch) (PhoneNumber, error) {
	const q = `
UPDATE phone_numbers SET
  friendly_name = COALESCE($2, friendly_name),
  assistant_id  = CASE WHEN $3::text IS NULL THEN assistant_id ELSE NULLIF($3::text, '')::uuid END,
  routing_rules = COALESCE($4::jsonb, routing_rules),
  updated_at    = now()
WHERE id = $1`
	var rules any
	if len(p.RoutingRules) > 0 {
		rules = string(p.RoutingRules)
	}
	res, err := utils.Conn(ctx, r.db).ExecContext(ctx, q, id, p.FriendlyName, p.AssistantID, rules)
	if err != nil {
		return PhoneNumber{}, fmt.Errorf("update phone number: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return PhoneNumber{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	res, err := utils.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM phone_numbers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete phone number: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
