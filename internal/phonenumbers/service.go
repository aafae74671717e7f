package phonenumbers

import (
	"context"
	"errors"
	"fmt"

	"callflex/internal/assistants"
	"callflex/internal/telephony"
	"callflex/internal/tenants"
	"callflex/pkg/logger"
	"callflex/pkg/utils"
)

type TenantReader interface {
	GetOrganization(ctx context.Context, id string) (tenants.Organization, error)
	GetPlan(ctx context.Context, id string) (tenants.Plan, error)
}

type AssistantReader interface {
	Get(ctx context.Context, id string) (assistants.Assistant, error)
}

type Service struct {
	repo       Repository
	provider   telephony.NumberProvider
	tenants    TenantReader
	assistants AssistantReader
}

func NewService(repo Repository, provider telephony.NumberProvider, t TenantReader, a AssistantReader) *Service {
	return &Service{repo: repo, provider: provider, tenants: t, assistants: a}
}

func (s *Service) List(ctx context.Context, orgID string) ([]PhoneNumber, error) {
	return s.repo.List(ctx, orgID)
}

func (s *Service) Get(ctx context.Context, id string) (PhoneNumber, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Search(ctx context.Context, in SearchInput) ([]telephony.AvailableNumber, error) {
	country := in.Country
	if country == "" {
		country = "US"
	}
	return s.provider.Search(ctx, telephony.SearchRequest{
		CountryISO2: country,
		AreaCode:    in.AreaCode,
		Contains:    in.Contains,
		Limit:       in.Limit,
	})
}

// MaxNumbers is the plan's phone number allowance, DefaultMaxNumbers when unset.
func (s *Service) MaxNumbers(ctx context.Context, orgID string) (int, error) {
	org, err := s.tenants.GetOrganization(ctx, orgID)
	if err != nil {
		return 0, err
	}
	if org.PlanID == nil {
		return DefaultMaxNumbers, nil
	}
	plan, err := s.tenants.GetPlan(ctx, *org.PlanID)
	if errors.Is(err, tenants.ErrNotFound) {
		return DefaultMaxNumbers, nil
	}
	if err != nil {
		return 0, err
	}
	if plan.MaxPhoneNumbers == nil || *plan.MaxPhoneNumbers <= 0 {
		return DefaultMaxNumbers, nil
	}
	return *plan.MaxPhoneNumbers, nil
}

// Provision buys the number at the carrier and records it. The carrier
// purchase is released again if the row cannot be written.
func (s *Service) Provision(ctx context.Context, in ProvisionInput) (PhoneNumber, error) {
	limit, err := s.MaxNumbers(ctx, in.OrganizationID)
	if err != nil {
		return PhoneNumber{}, err
	}
	count, err := s.repo.Count(ctx, in.OrganizationID)
	if err != nil {
		return PhoneNumber{}, err
	}
	if count >= limit {
		return PhoneNumber{}, fmt.Errorf("%w: %d of %d", ErrLimitReached, count, limit)
	}

	res, err := s.provider.Provision(ctx, telephony.ProvisionRequest{
		OrganizationID: in.OrganizationID,
		PhoneNumber:    in.PhoneNumber,
	})
	if err != nil {
		return PhoneNumber{}, err
	}

	n, err := s.repo.Create(ctx, PhoneNumber{
		OrganizationID: in.OrganizationID,
		PhoneNumber:    res.PhoneNumber,
		FriendlyName:   in.FriendlyName,
		Country:        "US",
		Provider:       s.provider.Name(),
		ProviderSID:    &res.ProviderNumberID,
		Status:         StatusActive,
		Capabilities:   utils.MustJSONB(telephony.Capabilities{Voice: true, SMS: true}),
	})
	if err != nil {
		rel := telephony.ReleaseRequest{OrganizationID: in.OrganizationID, PhoneNumber: res.PhoneNumber, ProviderNumberID: res.ProviderNumberID}
		if rerr := s.provider.Release(context.WithoutCancel(ctx), rel); rerr != nil {
			logger.CaptureError(ctx, "release after failed insert", rerr, "phone_number", res.PhoneNumber)
		}
		return PhoneNumber{}, err
	}
	logger.From(ctx).Info("phone number provisioned", "org_id", in.OrganizationID, "phone_number", n.PhoneNumber, "provider", n.Provider)
	return n, nil
}

// Update applies p. An assistant id must name an assistant of the same tenant.
func (s *Service) Update(ctx context.Context, n PhoneNumber, p Patch) (PhoneNumber, error) {
	if p.AssistantID != nil && *p.AssistantID != "" {
		a, err := s.assistants.Get(ctx, *p.AssistantID)
		if errors.Is(err, assistants.ErrNotFound) || (err == nil && a.OrganizationID != n.OrganizationID) {
			return PhoneNumber{}, fmt.Errorf("%w: unknown assistant", ErrInvalidArgument)
		}
		if err != nil {
			return PhoneNumber{}, err
		}
	}
	return s.repo.Update(ctx, n.ID, p)
}

// Release returns the number to the carrier, then deletes the row.
func (s *Service) Release(ctx context.Context, n PhoneNumber) error {
	req := telephony.ReleaseRequest{OrganizationID: n.OrganizationID, PhoneNumber: n.PhoneNumber}
	if n.ProviderSID != nil {
		req.ProviderNumberID = *n.ProviderSID
	}
	if err := s.provider.Release(ctx, req); err != nil {
		return fmt.Errorf("release %s: %w", n.PhoneNumber, err)
	}
	if err := s.repo.Delete(ctx, n.ID); err != nil {
		return err
	}
	logger.From(ctx).Info("phone number released", "org_id", n.OrganizationID, "phone_number", n.PhoneNumber)
	return nil
}
