package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"callflex/pkg/utils"
)

// Repository is the storage contract for tenants, plans, users and memberships.
//
// Writes go through utils.Conn so they join a transaction carried by ctx
// (the idempotency ledger relies on this for exactly-once usage).
type Repository interface {
	GetOrganization(ctx context.Context, id string) (Organization, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (Organization, error)
	UpdateOrganization(ctx context.Context, id string, p OrganizationPatch) (Organization, error)
	ListOrganizationsForUser(ctx context.Context, userID string) ([]OrganizationWithRole, error)

	IncrementMinutesUsed(ctx context.Context, orgID string, delta int) (int, error)
	ResetUsageForPeriod(ctx context.Context, orgID string, periodStart time.Time) (bool, error)

	ApplyCheckout(ctx context.Context, b CheckoutBinding) error
	SyncSubscription(ctx context.Context, s SubscriptionSync) error
	CancelSubscription(ctx context.Context, orgID string) error
	SetStatus(ctx context.Context, orgID string, status Status) error
	SetStripeCustomer(ctx context.Context, orgID, customerID string) error

	GetPlan(ctx context.Context, id string) (Plan, error)
	FindPlanByPriceID(ctx context.Context, priceID string) (Plan, error)

	UserByAuthID(ctx context.Context, authID string) (User, error)
	Membership(ctx context.Context, orgID, userID string) (Membership, error)
	ListMembers(ctx context.Context, orgID string) ([]Member, error)
	UpdateMemberRole(ctx context.Context, orgID, userID string, role Role) (Membership, error)
	RemoveMember(ctx context.Context, orgID, userID string) error

	Provision(ctx context.Context, s Signup) (Provisioned, error)
	CreateInvitation(ctx context.Context, inv Invitation) (Invitation, error)
}

type PostgresRepo struct {
	db *sql.DB
	x  *sqlx.DB
}

func NewPostgresRepo(db *sql.DB, x *sqlx.DB) *PostgresRepo {
	return &PostgresRepo{db: db, x: x}
}

const orgColumns = `o.id, o.name, o.slug, o.business_type, o.timezone, o.primary_email, o.primary_phone,
       o.website, o.status, o.plan_id, o.trial_ends_at, o.stripe_customer_id, o.stripe_subscription_id,
       o.current_period_minutes_used, o.current_period_start, o.current_period_end,
       o.usage_period_start, o.settings, o.created_at, o.updated_at`

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *PostgresRepo) GetOrganization(ctx context.Context, id string) (Organization, error) {
	var o Organization
	err := r.x.GetContext(ctx, &o, `SELECT `+orgColumns+` FROM organizations o WHERE o.id = $1`, id)
	return o, notFound(err)
}

func (r *PostgresRepo) FindBySubscriptionID(ctx context.Context, subscriptionID string) (Organization, error) {
	if subscriptionID == "" {
		return Organization{}, ErrNotFound
	}
	var o Organization
	err := r.x.GetContext(ctx, &o, `SELECT `+orgColumns+` FROM organizations o WHERE o.stripe_subscription_id = $1`, subscriptionID)
	return o, notFound(err)
}

func (r *PostgresRepo) UpdateOrganization(ctx context.Context, id string, p OrganizationPatch) (Organization, error) {
	if p.Empty() {
		return r.GetOrganization(ctx, id)
	}
	const q = `
UPDATE organizations SET
  name          = COALESCE($2, name),
  business_type = COALESCE($3, business_type),
  timezone      = COALESCE($4, timezone),
  primary_phone = COALESCE($5, primary_phone),
  website       = COALESCE($6, website),
  settings      = COALESCE($7::jsonb, settings),
  updated_at    = now()
WHERE id = $1
`
	var settings any
	if len(p.Settings) > 0 {
		settings = string(p.Settings)
	}
	res, err := utils.Conn(ctx, r.db).ExecContext(ctx, q, id, p.Name, p.BusinessType, p.Timezone, p.PrimaryPhone, p.Website, settings)
	if err != nil {
		return Organization{}, fmt.Errorf("update organization: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Organization{}, ErrNotFound
	}
	return r.GetOrganization(ctx, id)
}

func (r *PostgresRepo) ListOrganizationsForUser(ctx context.Context, userID string) ([]OrganizationWithRole, error) {
	out := []OrganizationWithRole{}
	err := r.x.SelectContext(ctx, &out, `
SELECT `+orgColumns+`, m.role
FROM organization_members m
JOIN organizations o ON o.id = m.organization_id
WHERE m.user_id = $1
ORDER BY o.created_at`, userID)
	return out, err
}

// IncrementMinutesUsed adds delta in one statement and returns the new total.
func (r *PostgresRepo) IncrementMinutesUsed(ctx context.Context, orgID string, delta int) (int, error) {
	const q = `
UPDATE organizations
SET current_period_minutes_used = current_period_minutes_used + $2,
    updated_at = now()
WHERE id = $1
RETURNING current_period_minutes_used
`
	var total int
	if err := utils.Conn(ctx, r.db).QueryRowContext(ctx, q, orgID, delta).Scan(&total); err != nil {
		return 0, notFound(err)
	}
	return total, nil
}

// ResetUsageForPeriod zeroes the counter only when periodStart is newer than the
// period it is accumulating for. Redelivered or out-of-order invoices are no-ops.
func (r *PostgresRepo) ResetUsageForPeriod(ctx context.Context, orgID string, periodStart time.Time) (bool, error) {
	const q = `
UPDATE organizations
SET current_period_minutes_used = 0,
    usage_period_start = $2,
    updated_at = now()
WHERE id = $1 AND (usage_period_start IS NULL OR usage_period_start < $2)
`
	res, err := utils.Conn(ctx, r.db).ExecContext(ctx, q, orgID, periodStart.UTC())
	if err != nil {
		return false, fmt.Errorf("reset usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) ApplyCheckout(ctx context.Context, b CheckoutBinding) error {
	const q = `
UPDATE organizations SET
  status = 'active',
  plan_id = $2,
  stripe_customer_id = $3,
  stripe_subscription_id = $4,
  current_period_start = $5,
  current_period_end = $6,
  usage_period_start = $5,
  current_period_minutes_used = 0,
  updated_at = now()
WHERE id = $1
`
	return r.execOne(ctx, q, b.OrganizationID, b.PlanID, b.StripeCustomerID, b.StripeSubscriptionID, b.PeriodStart.UTC(), b.PeriodEnd.UTC())
}

func (r *PostgresRepo) SyncSubscription(ctx context.Context, s SubscriptionSync) error {
	const q = `
UPDATE organizations SET
  status = COALESCE($2, status),
  plan_id = COALESCE($3, plan_id),
  stripe_subscription_id = $4,
  current_period_start = COALESCE($5, current_period_start),
  current_period_end = COALESCE($6, current_period_end),
  updated_at = now()
WHERE id = $1
`
	var status *string
	if s.Status != nil {
		v := string(*s.Status)
		status = &v
	}
	return r.execOne(ctx, q, s.OrganizationID, status, s.PlanID, s.StripeSubscriptionID, nullTime(s.PeriodStart), nullTime(s.PeriodEnd))
}

func (r *PostgresRepo) CancelSubscription(ctx context.Context, orgID string) error {
	const q = `
UPDATE organizations SET
  status = 'canceled',
  stripe_subscription_id = NULL,
  plan_id = NULL,
  updated_at = now()
WHERE id = $1
`
	return r.execOne(ctx, q, orgID)
}

func (r *PostgresRepo) SetStatus(ctx context.Context, orgID string, status Status) error {
	return r.execOne(ctx, `UPDATE organizations SET status = $2, updated_at = now() WHERE id = $1`, orgID, string(status))
}

func (r *PostgresRepo) SetStripeCustomer(ctx context.Context, orgID, customerID string) error {
	return r.execOne(ctx, `UPDATE organizations SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`, orgID, customerID)
}

func (r *PostgresRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := utils.Conn(ctx, r.db).ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const planColumns = `id, name, display_name, price_monthly, included_minutes, max_phone_numbers,
       overage_rate_per_minute, stripe_price_id_monthly, stripe_price_id_yearly, is_active, sort_order`

func (r *PostgresRepo) GetPlan(ctx context.Context, id string) (Plan, error) {
	var p Plan
	err := r.x.GetContext(ctx, &p, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id)
	return p, notFound(err)
}

func (r *PostgresRepo) FindPlanByPriceID(ctx context.Context, priceID string) (Plan, error) {
	if priceID == "" {
		return Plan{}, ErrNotFound
	}
	var p Plan
	err := r.x.GetContext(ctx, &p, `SELECT `+planColumns+` FROM plans
WHERE stripe_price_id_monthly = $1 OR stripe_price_id_yearly = $1
ORDER BY sort_order LIMIT 1`, priceID)
	return p, notFound(err)
}

func (r *PostgresRepo) UserByAuthID(ctx context.Context, authID string) (User, error) {
	var u User
	err := r.x.GetContext(ctx, &u, `SELECT id, auth_id, email, full_name FROM users WHERE auth_id = $1`, authID)
	return u, notFound(err)
}

func (r *PostgresRepo) Membership(ctx context.Context, orgID, userID string) (Membership, error) {
	var m Membership
	err := r.x.GetContext(ctx, &m, `
SELECT id, organization_id, user_id, role, created_at
FROM organization_members
WHERE organization_id = $1 AND user_id = $2`, orgID, userID)
	return m, notFound(err)
}

func (r *PostgresRepo) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	out := []Member{}
	err := r.x.SelectContext(ctx, &out, `
SELECT m.id, m.organization_id, m.user_id, m.role, m.created_at, u.email, u.full_name
FROM organization_members m
JOIN users u ON u.id = m.user_id
WHERE m.organization_id = $1
ORDER BY m.created_at`, orgID)
	return out, err
}

func (r *PostgresRepo) UpdateMemberRole(ctx context.Context, orgID, userID string, role Role) (Membership, error) {
	if !role.Valid() {
		return Membership{}, ErrInvalidArgument
	}
	const q = `
UPDATE organization_members SET role = $3
WHERE organization_id = $1 AND user_id = $2
RETURNING id, organization_id, user_id, role, created_at
`
	var m Membership
	err := utils.Conn(ctx, r.db).QueryRowContext(ctx, q, orgID, userID, string(role)).Scan(
		&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt,
	)
	return m, notFound(err)
}

func (r *PostgresRepo) RemoveMember(ctx context.Context, orgID, userID string) error {
	return r.execOne(ctx, `DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`, orgID, userID)
}

// Provision creates the user, its trial organization and the owner membership
// in one transaction. ErrConflict means the identity already has a users row.
func (r *PostgresRepo) Provision(ctx context.Context, s Signup) (Provisioned, error) {
	var (
		out   Provisioned
		orgID string
	)
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const insertUser = `
INSERT INTO users (auth_id, email, full_name)
VALUES ($1, $2, NULLIF($3, ''))
ON CONFLICT (auth_id) DO NOTHING
RETURNING id, auth_id, email, full_name`
		u := &out.User
		if err := tx.QueryRowContext(ctx, insertUser, s.AuthID, s.Email, s.FullName).Scan(&u.ID, &u.AuthID, &u.Email, &u.FullName); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrConflict
			}
			return fmt.Errorf("insert user: %w", err)
		}

		const insertOrg = `
INSERT INTO organizations (name, slug, primary_email, status, trial_ends_at)
VALUES ($1, $2, $3, 'trial', $4)
RETURNING id`
		if err := tx.QueryRowContext(ctx, insertOrg, s.OrganizationName, s.Slug, s.Email, s.TrialEndsAt.UTC()).Scan(&orgID); err != nil {
			return fmt.Errorf("insert organization: %w", err)
		}

		const insertMember = `
INSERT INTO organization_members (organization_id, user_id, role, accepted_at)
VALUES ($1, $2, 'owner', now())
RETURNING id, organization_id, user_id, role, created_at`
		m := &out.Membership
		if err := tx.QueryRowContext(ctx, insertMember, orgID, u.ID).Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return Provisioned{}, err
	}
	out.Organization, err = r.GetOrganization(ctx, orgID)
	return out, err
}

func (r *PostgresRepo) CreateInvitation(ctx context.Context, inv Invitation) (Invitation, error) {
	if !inv.Role.Valid() || inv.Role == RoleOwner {
		return Invitation{}, ErrInvalidArgument
	}
	const q = `
INSERT INTO organization_invitations (organization_id, email, role, invited_by)
VALUES ($1, lower($2), $3, $4)
ON CONFLICT (organization_id, email) DO UPDATE
SET role = EXCLUDED.role, invited_by = EXCLUDED.invited_by, status = 'pending'
RETURNING id, organization_id, email, role, status, invited_by, created_at`
	var out Invitation
	err := utils.Conn(ctx, r.db).QueryRowContext(ctx, q, inv.OrganizationID, inv.Email, string(inv.Role), inv.InvitedBy).Scan(
		&out.ID, &out.OrganizationID, &out.Email, &out.Role, &out.Status, &out.InvitedBy, &out.CreatedAt,
	)
	return out, err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
