package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"callflex/pkg/utils"
)

// Repository is the storage contract for calls and their 1:1 and 1:N children.
// Transcript and recording inserts are no-ops when a row already exists.
type Repository interface {
	Create(ctx context.Context, c Call) (Call, error)
	FindByVAPIID(ctx context.Context, orgID, vapiCallID string) (Call, error)
	FindByProviderSID(ctx context.Context, sid string) (Call, error)
	Complete(ctx context.Context, ref Ref, c Completion) error
	UpdateStatus(ctx context.Context, ref Ref, status Status, durationSeconds *int) error
	InsertTranscript(ctx context.Context, t Transcript) error
	InsertRecording(ctx context.Context, r Recording) error
	AppendAction(ctx context.Context, a Action) error

	Get(ctx context.Context, orgID, id string) (Call, error)
	List(ctx context.Context, f ListFilter) ([]Call, int, error)
	GetTranscript(ctx context.Context, orgID, callID string) (Transcript, error)
	GetRecording(ctx context.Context, orgID, callID string) (Recording, error)
	ListActions(ctx context.Context, orgID, callID string) ([]Action, error)
}

type PostgresRepo struct {
	db *sql.DB
	x  *sqlx.DB
}

func NewPostgresRepo(db *sql.DB, x *sqlx.DB) *PostgresRepo {
	return &PostgresRepo{db: db, x: x}
}

const callColumns = `id, organization_id, vapi_call_id, provider_call_sid, phone_number_id, assistant_id,
       from_number, to_number, started_at, ended_at, duration_seconds, status, direction,
       ended_reason, summary, cost_cents, created_at`

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *PostgresRepo) Create(ctx context.Context, c Call) (Call, error) {
	if c.OrganizationID == "" {
		return Call{}, ErrInvalidArgument
	}
	const q = `
INSERT INTO calls (
  organization_id, vapi_call_id, provider_call_sid, phone_number_id, assistant_id,
  from_number, to_number, started_at, status, direction
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id, created_at
`
	err := utils.Conn(ctx, r.db).QueryRowContext(ctx, q,
		c.OrganizationID,
		c.VAPICallID,
		c.ProviderCallSID,
		c.PhoneNumberID,
		c.AssistantID,
		c.FromNumber,
		c.ToNumber,
		c.StartedAt,
		string(c.Status),
		c.Direction,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return Call{}, fmt.Errorf("insert call: %w", err)
	}
	return c, nil
}

func (r *PostgresRepo) FindByVAPIID(ctx context.Context, orgID, vapiCallID string) (Call, error) {
	var c Call
	err := r.x.GetContext(ctx, &c, `SELECT `+callColumns+` FROM calls
WHERE organization_id = $1 AND vapi_call_id = $2
ORDER BY created_at DESC LIMIT 1`, orgID, vapiCallID)
	return c, notFound(err)
}

func (r *PostgresRepo) FindByProviderSID(ctx context.Context, sid string) (Call, error) {
	var c Call
	err := r.x.GetContext(ctx, &c, `SELECT `+callColumns+` FROM calls
WHERE provider_call_sid = $1
ORDER BY created_at DESC LIMIT 1`, sid)
	return c, notFound(err)
}

func (r *PostgresRepo) Complete(ctx context.Context, ref Ref, c Completion) error {
	const q = `
UPDATE calls SET
  status = 'completed',
  ended_at = $3,
  duration_seconds = $4,
  ended_reason = $5,
  summary = $6,
  cost_cents = $7
WHERE id = $1 AND created_at = $2
`
	return r.execOne(ctx, q, ref.ID, ref.CreatedAt, c.EndedAt.UTC(), c.DurationSeconds, c.EndedReason, c.Summary, c.CostCents)
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, ref Ref, status Status, durationSeconds *int) error {
	const q = `
UPDATE calls SET
  status = $3,
  duration_seconds = COALESCE($4, duration_seconds)
WHERE id = $1 AND created_at = $2
`
	return r.execOne(ctx, q, ref.ID, ref.CreatedAt, string(status), durationSeconds)
}

func (r *PostgresRepo) InsertTranscript(ctx context.Context, t Transcript) error {
	const q = `
INSERT INTO call_transcripts (call_id, call_created_at, organization_id, transcript_text, transcript_segments, summary)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (call_id, call_created_at) DO NOTHING
`
	_, err := utils.Conn(ctx, r.db).ExecContext(ctx, q,
		t.CallID, t.CallCreatedAt, t.OrganizationID, t.TranscriptText, t.TranscriptSegments, t.Summary,
	)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

func (r *PostgresRepo) InsertRecording(ctx context.Context, rec Recording) error {
	const q = `
INSERT INTO call_recordings (call_id, call_created_at, organization_id, storage_path, duration_seconds)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (call_id, call_created_at) DO NOTHING
`
	_, err := utils.Conn(ctx, r.db).ExecContext(ctx, q,
		rec.CallID, rec.CallCreatedAt, rec.OrganizationID, rec.StoragePath, rec.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

func (r *PostgresRepo) AppendAction(ctx context.Context, a Action) error {
	const q = `
INSERT INTO call_actions (
  call_id, call_created_at, organization_id, action_type, action_data, status, triggered_at, completed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := utils.Conn(ctx, r.db).ExecContext(ctx, q,
		a.CallID, a.CallCreatedAt, a.OrganizationID, string(a.ActionType), a.ActionData, string(a.Status), a.TriggeredAt.UTC(), a.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert call action: %w", err)
	}
	return nil
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

func (r *PostgresRepo) Get(ctx context.Context, orgID, id string) (Call, error) {
	var c Call
	err := r.x.GetContext(ctx, &c, `SELECT `+callColumns+` FROM calls WHERE organization_id = $1 AND id = $2`, orgID, id)
	return c, notFound(err)
}

func (r *PostgresRepo) List(ctx context.Context, f ListFilter) ([]Call, int, error) {
	if f.OrganizationID == "" {
		return nil, 0, ErrInvalidArgument
	}
	where := []string{"organization_id = $1", "created_at >= $2"}
	args := []any{f.OrganizationID, f.From.UTC()}
	if !f.To.IsZero() {
		args = append(args, f.To.UTC())
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if f.AssistantID != "" {
		args = append(args, f.AssistantID)
		where = append(where, fmt.Sprintf("assistant_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.x.GetContext(ctx, &total, `SELECT count(*) FROM calls WHERE `+cond, args...); err != nil {
		return nil, 0, fmt.Errorf("count calls: %w", err)
	}

	out := []Call{}
	q := fmt.Sprintf(`SELECT %s FROM calls WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		callColumns, cond, len(args)+1, len(args)+2)
	if err := r.x.SelectContext(ctx, &out, q, append(args, f.Limit, f.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("list calls: %w", err)
	}
	return out, total, nil
}

func (r *PostgresRepo) GetTranscript(ctx context.Context, orgID, callID string) (Transcript, error) {
	var t Transcript
	err := r.x.GetContext(ctx, &t, `
SELECT id, call_id, call_created_at, organization_id, transcript_text, transcript_segments, summary, created_at
FROM call_transcripts WHERE organization_id = $1 AND call_id = $2`, orgID, callID)
	return t, notFound(err)
}

func (r *PostgresRepo) GetRecording(ctx context.Context, orgID, callID string) (Recording, error) {
	var rec Recording
	err := r.x.GetContext(ctx, &rec, `
SELECT id, call_id, call_created_at, organization_id, storage_path, duration_seconds, created_at
FROM call_recordings WHERE organization_id = $1 AND call_id = $2`, orgID, callID)
	return rec, notFound(err)
}

func (r *PostgresRepo) ListActions(ctx context.Context, orgID, callID string) ([]Action, error) {
	out := []Action{}
	err := r.x.SelectContext(ctx, &out, `
SELECT id, call_id, call_created_at, organization_id, action_type, action_data, status,
       error_message, triggered_at, completed_at
FROM call_actions WHERE organization_id = $1 AND call_id = $2
ORDER BY triggered_at`, orgID, callID)
	return out, err
}

// compile-time check
var _ Repository = (*PostgresRepo)(nil)
