package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository reads aggregates. Every method is organization-scoped.
type Repository interface {
	// DailyUsage returns rows with from <= date (< to when to is non-zero), oldest first.
	DailyUsage(ctx context.Context, orgID string, from, to time.Time) ([]DailyUsage, error)
	CountActiveCalls(ctx context.Context, orgID string, since time.Time) (int, error)
}

type PostgresRepo struct {
	x *sqlx.DB
}

func NewPostgresRepo(x *sqlx.DB) *PostgresRepo { return &PostgresRepo{x: x} }

func (r *PostgresRepo) DailyUsage(ctx context.Context, orgID string, from, to time.Time) ([]DailyUsage, error) {
	out := []DailyUsage{}
	q := `SELECT date, total_calls, total_minutes FROM daily_usage
	      WHERE organization_id = $1 AND date >= $2::date`
	args := []any{orgID, from}
	if !to.IsZero() {
		q += ` AND date < $3::date`
		args = append(args, to)
	}
	q += ` ORDER BY date ASC`
	if err := r.x.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepo) CountActiveCalls(ctx context.Context, orgID string, since time.Time) (int, error) {
	var n int
	err := r.x.GetContext(ctx, &n, `
		SELECT count(*) FROM calls
		WHERE organization_id = $1 AND status = 'in-progress' AND created_at >= $2`, orgID, since)
	return n, err
}
