package assistants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"callflex/pkg/utils"
)

type Repository interface {
	List(ctx context.Context, orgID string) ([]Assistant, error)
	Get(ctx context.Context, id string) (Assistant, error)
	Create(ctx context.Context, a Assistant) (Assistant, error)
	Update(ctx context.Context, id string, p Patch) (Assistant, error)
	Delete(ctx context.Context, id string) error
	MarkSynced(ctx context.Context, id string, at time.Time) (Assistant, error)
}

type PostgresRepo struct {
	db *sql.DB
	x  *sqlx.DB
}

func NewPostgresRepo(db *sql.DB, x *sqlx.DB) *PostgresRepo {
	return &PostgresRepo{db: db, x: x}
}

const columns = `id, organization_id, template_id, name, description, system_prompt, first_message,
       variable_values, voice_provider, voice_id, status, enabled_functions, function_config,
       vapi_assistant_id, vapi_synced_at, created_at, updated_at`

func (r *PostgresRepo) List(ctx context.Context, orgID string) ([]Assistant, error) {
	out := []Assistant{}
	err := r.x.SelectContext(ctx, &out, `SELECT `+columns+` FROM assistants WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	return out, err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Assistant, error) {
	var a Assistant
	err := r.x.GetContext(ctx, &a, `SELECT `+columns+` FROM assistants WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Assistant{}, ErrNotFound
	}
	return a, err
}

func (r *PostgresRepo) Create(ctx context.Context, a Assistant) (Assistant, error) {
	const q = `
INSERT INTO assistants (organization_id, template_id, name, description, system_prompt, first_message,
                        variable_values, voice_provider, voice_id, status)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::jsonb, '{}'::jsonb), $8, $9, $10)
RETURNING id`
	var id string
	err := utils.Conn(ctx, r.db).QueryRowContext(ctx, q,
		a.OrganizationID, a.TemplateID, a.Name, a.Description, a.SystemPrompt, a.FirstMessage,
		jsonArg(a.VariableValues), a.VoiceProvider, a.VoiceID, a.Status,
	).Scan(&id)
	if err != nil {
		return Assistant{}, fmt.Errorf("insert assistant: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *PostgresRepo) Update(ctx context.Context, id string, p Patch) (Assistant, error) {
	const q = `
UPDATE assistants SET
  name              = COALESCE($2, name),
  description       = COALESCE($3, description),
  system_prompt     = COALESCE($4, system_prompt),
  first_message     = COALESCE($5, first_message),
  voice_provider    = COALESCE($6, voice_provider),
  voice_id          = COALESCE($7, voice_id),
  variable_values   = COALESCE($8::jsonb, variable_values),
  status            = COALESCE($9, status),
  enabled_functions = COALESCE($10::jsonb, enabled_functions),
  function_config   = COALESCE($11::jsonb, function_config),
  vapi_synced_at    = CASE WHEN $12 THEN NULL ELSE vapi_synced_at END,
  updated_at        = now()
WHERE id = $1`
	var status *string
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}
	res, err := utils.Conn(ctx, r.db).ExecContext(ctx, q, id,
		p.Name, p.Description, p.SystemPrompt, p.FirstMessage, p.VoiceProvider, p.VoiceID,
		jsonArg(p.VariableValues), status, jsonArg(p.EnabledFunctions), jsonArg(p.FunctionConfig),
		p.ClearSync,
	)
	if err != nil {
		return Assistant{}, fmt.Errorf("update assistant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Assistant{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	res, err := utils.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM assistants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assistant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) MarkSynced(ctx context.Context, id string, at time.Time) (Assistant, error) {
	res, err := utils.Conn(ctx, r.db).ExecContext(ctx, `
UPDATE assistants SET vapi_synced_at = $2, status = 'active', updated_at = now() WHERE id = $1`, id, at)
	if err != nil {
		return Assistant{}, fmt.Errorf("mark assistant synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Assistant{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

func jsonArg(j utils.JSONB) any {
	if len(j) == 0 {
		return nil
	}
	return string(j)
}
