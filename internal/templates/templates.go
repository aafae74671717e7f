// Package templates serves the public assistant template catalog.
package templates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"callflex/pkg/utils"
)

var ErrNotFound = errors.New("templates: not found")

type Industry struct {
	ID          string  `json:"id" db:"id"`
	Slug        string  `json:"slug" db:"slug"`
	Name        string  `json:"name" db:"name"`
	Icon        *string `json:"icon" db:"icon"`
	Description *string `json:"description,omitempty" db:"description"`
}

type Template struct {
	ID                    string      `json:"id" db:"id"`
	Slug                  string      `json:"slug" db:"slug"`
	Name                  string      `json:"name" db:"name"`
	IndustryID            *string     `json:"industry_id" db:"industry_id"`
	ShortDescription      *string     `json:"short_description" db:"short_description"`
	Description           *string     `json:"description" db:"description"`
	Category              *string     `json:"category" db:"category"`
	Tags                  utils.JSONB `json:"tags" db:"tags"`
	Icon                  *string     `json:"icon" db:"icon"`
	SystemPrompt          string      `json:"system_prompt" db:"system_prompt"`
	FirstMessage          *string     `json:"first_message" db:"first_message"`
	Variables             utils.JSONB `json:"variables" db:"variables"`
	EstimatedSetupMinutes *int        `json:"estimated_setup_minutes" db:"estimated_setup_minutes"`
	IsPremium             bool        `json:"is_premium" db:"is_premium"`
	IsFeatured            bool        `json:"is_featured" db:"is_featured"`
	UseCount              int         `json:"use_count" db:"use_count"`
	IsActive              bool        `json:"-" db:"is_active"`
	CreatedAt             time.Time   `json:"created_at" db:"created_at"`
}

type Filter struct {
	IndustrySlug string
	Category     string
	FeaturedOnly bool
}

// Repository only ever returns active templates.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Template, error)
	GetBySlug(ctx context.Context, slug string) (Template, error)
	GetByID(ctx context.Context, id string) (Template, error)
	ListIndustries(ctx context.Context) ([]Industry, error)
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Render substitutes {{key}} placeholders. Keys without a value are left in place.
func Render(text string, vars map[string]any) string {
	if len(vars) == 0 || text == "" {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := vars[key]
		if !ok || v == nil {
			return m
		}
		return fmt.Sprint(v)
	})
}

const templateColumns = `t.id, t.slug, t.name, t.industry_id, t.short_description, t.description,
       t.category, to_jsonb(t.tags) AS tags, t.icon, t.system_prompt, t.first_message,
       t.variables, t.estimated_setup_minutes, t.is_premium, t.is_featured, t.use_count,
       t.is_active, t.created_at`

type PostgresRepo struct {
	x *sqlx.DB
}

func NewPostgresRepo(x *sqlx.DB) *PostgresRepo { return &PostgresRepo{x: x} }

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Template, error) {
	q := `SELECT ` + templateColumns + ` FROM templates t`
	where := []string{"t.is_active"}
	var args []any
	if f.IndustrySlug != "" {
		args = append(args, f.IndustrySlug)
		q += ` JOIN industries i ON i.id = t.industry_id`
		where = append(where, fmt.Sprintf("i.slug = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("t.category = $%d", len(args)))
	}
	if f.FeaturedOnly {
		where = append(where, "t.is_featured")
	}
	q += ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY t.is_featured DESC, t.use_count DESC`

	out := []Template{}
	if err := r.x.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepo) GetBySlug(ctx context.Context, slug string) (Template, error) {
	return r.get(ctx, `t.slug = $1`, slug)
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Template, error) {
	return r.get(ctx, `t.id = $1`, id)
}

func (r *PostgresRepo) get(ctx context.Context, cond string, arg string) (Template, error) {
	var t Template
	err := r.x.GetContext(ctx, &t, `SELECT `+templateColumns+` FROM templates t WHERE t.is_active AND `+cond, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, ErrNotFound
	}
	return t, err
}

func (r *PostgresRepo) ListIndustries(ctx context.Context) ([]Industry, error) {
	out := []Industry{}
	err := r.x.SelectContext(ctx, &out, `
		SELECT id, slug, name, icon, description FROM industries
		WHERE is_active ORDER BY sort_order`)
	return out, err
}

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu         sync.Mutex
	templates  []Template
	industries []Industry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Put(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates = append(r.templates, t)
}

func (r *MemoryRepo) PutIndustry(i Industry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.industries = append(r.industries, i)
}

func (r *MemoryRepo) List(ctx context.Context, f Filter) ([]Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	industryID := ""
	if f.IndustrySlug != "" {
		for _, i := range r.industries {
			if i.Slug == f.IndustrySlug {
				industryID = i.ID
			}
		}
		if industryID == "" {
			return []Template{}, nil
		}
	}
	out := []Template{}
	for _, t := range r.templates {
		switch {
		case !t.IsActive:
		case industryID != "" && (t.IndustryID == nil || *t.IndustryID != industryID):
		case f.Category != "" && (t.Category == nil || *t.Category != f.Category):
		case f.FeaturedOnly && !t.IsFeatured:
		default:
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsFeatured != out[j].IsFeatured {
			return out[i].IsFeatured
		}
		return out[i].UseCount > out[j].UseCount
	})
	return out, nil
}

func (r *MemoryRepo) GetBySlug(ctx context.Context, slug string) (Template, error) {
	return r.find(func(t Template) bool { return t.Slug == slug })
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Template, error) {
	return r.find(func(t Template) bool { return t.ID == id })
}

func (r *MemoryRepo) find(match func(Template) bool) (Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.templates {
		if t.IsActive && match(t) {
			return t, nil
		}
	}
	return Template{}, ErrNotFound
}

func (r *MemoryRepo) ListIndustries(ctx context.Context) ([]Industry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Industry{}, r.industries...), nil
}
