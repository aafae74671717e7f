package assistants

import (
	"context"
	"fmt"
	"strings"
	"time"

	"callflex/internal/templates"
	"callflex/pkg/logger"
	"callflex/pkg/utils"
)

type TemplateReader interface {
	GetByID(ctx context.Context, id string) (templates.Template, error)
}

type Service struct {
	repo      Repository
	templates TemplateReader
	clock     func() time.Time
}

func NewService(repo Repository, tpl TemplateReader) *Service {
	return &Service{repo: repo, templates: tpl, clock: time.Now}
}

func (s *Service) List(ctx context.Context, orgID string) ([]Assistant, error) {
	return s.repo.List(ctx, orgID)
}

func (s *Service) Get(ctx context.Context, id string) (Assistant, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a draft assistant. A template id renders the template's
// prompt and first message with the supplied variable values; an unknown
// template returns templates.ErrNotFound.
func (s *Service) Create(ctx context.Context, in CreateInput) (Assistant, error) {
	if in.OrganizationID == "" || strings.TrimSpace(in.Name) == "" {
		return Assistant{}, fmt.Errorf("%w: organization and name are required", ErrInvalidArgument)
	}

	prompt, first := in.SystemPrompt, in.FirstMessage
	if in.TemplateID != nil && *in.TemplateID != "" {
		t, err := s.templates.GetByID(ctx, *in.TemplateID)
		if err != nil {
			return Assistant{}, err
		}
		prompt = templates.Render(t.SystemPrompt, in.VariableValues)
		first = ""
		if t.FirstMessage != nil {
			first = templates.Render(*t.FirstMessage, in.VariableValues)
		}
	}

	voice := in.VoiceProvider
	if voice == "" {
		voice = DefaultVoiceProvider
	}
	vars := utils.JSONB("{}")
	if in.VariableValues != nil {
		vars = utils.MustJSONB(in.VariableValues)
	}

	a, err := s.repo.Create(ctx, Assistant{
		OrganizationID: in.OrganizationID,
		TemplateID:     in.TemplateID,
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		SystemPrompt:   prompt,
		FirstMessage:   &first,
		VariableValues: vars,
		VoiceProvider:  voice,
		VoiceID:        in.VoiceID,
		Status:         StatusDraft,
	})
	if err != nil {
		return Assistant{}, err
	}
	logger.From(ctx).Info("assistant created", "assistant_id", a.ID, "org_id", a.OrganizationID, "template_id", in.TemplateID)
	return a, nil
}

// Update applies p. Changing the prompt or first message marks the
// assistant as needing a resync.
func (s *Service) Update(ctx context.Context, id string, p Patch) (Assistant, error) {
	if p.Status != nil && !p.Status.Valid() {
		return Assistant{}, fmt.Errorf("%w: status %q", ErrInvalidArgument, *p.Status)
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return Assistant{}, fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}
	p.ClearSync = p.promptChanged()
	return s.repo.Update(ctx, id, p)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Sync marks the assistant as pushed to the voice engine and activates it.
func (s *Service) Sync(ctx context.Context, id string) (Assistant, error) {
	a, err := s.repo.MarkSynced(ctx, id, s.clock().UTC())
	if err != nil {
		return Assistant{}, err
	}
	logger.From(ctx).Info("assistant synced", "assistant_id", a.ID, "org_id", a.OrganizationID)
	return a, nil
}
