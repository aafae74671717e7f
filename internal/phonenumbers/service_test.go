package phonenumbers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callflex/internal/assistants"
	"callflex/internal/telephony"
	"callflex/internal/tenants"
)

const (
	orgA = "00000000-0000-0000-0000-00000000000a"
	orgB = "00000000-0000-0000-0000-00000000000b"
)

type fixture struct {
	svc        *Service
	repo       *MemoryRepo
	carrier    *telephony.CatalogProvider
	assistants *assistants.MemoryRepo
}

func newFixture(t *testing.T, maxNumbers *int) fixture {
	t.Helper()
	ten := tenants.NewMemoryRepo()
	plan := "plan_pro"
	ten.PutPlan(tenants.Plan{ID: plan, Name: "pro", MaxPhoneNumbers: maxNumbers, IsActive: true})
	ten.PutOrganization(tenants.Organization{ID: orgA, Name: "A", Status: tenants.StatusActive, PlanID: &plan})
	ten.PutOrganization(tenants.Organization{ID: orgB, Name: "B", Status: tenants.StatusTrial})

	f := fixture{
		repo:       NewMemoryRepo(),
		carrier:    telephony.NewCatalogProvider(),
		assistants: assistants.NewMemoryRepo(),
	}
	f.svc = NewService(f.repo, f.carrier, ten, f.assistants)
	return f
}

func intp(n int) *int { return &n }

func TestProvision_EnforcesPlanLimit(t *testing.T) {
	f := newFixture(t, intp(2))
	ctx := context.Background()

	for _, n := range []string{"+14155550100", "+14155550101"} {
		_, err := f.svc.Provision(ctx, ProvisionInput{OrganizationID: orgA, PhoneNumber: n})
		require.NoError(t, err)
	}
	_, err := f.svc.Provision(ctx, ProvisionInput{OrganizationID: orgA, PhoneNumber: "+14155550102"})
	assert.True(t, errors.Is(err, ErrLimitReached))

	got, err := f.svc.List(ctx, orgA)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "catalog", got[0].Provider)
	require.NotNil(t, got[0].ProviderSID)
}

func TestProvision_DefaultLimitWithoutPlan(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Provision(ctx, ProvisionInput{OrganizationID: orgB, PhoneNumber: "+14155550100"})
	require.NoError(t, err)
	_, err = f.svc.Provision(ctx, ProvisionInput{OrganizationID: orgB, PhoneNumber: "+14155550101"})
	assert.True(t, errors.Is(err, ErrLimitReached))

	limit, err := f.svc.MaxNumbers(ctx, orgA)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxNumbers, limit, "plan without a limit falls back to the default")
}

func TestProvision_NumberTakenByAnotherTenant(t *testing.T) {
	f := newFixture(t, intp(5))
	ctx := context.Background()
	_, err := f.svc.Provision(ctx, ProvisionInput{OrganizationID: orgB, PhoneNumber: "+14155550100"})
	require.NoError(t, err)
	_, err = f.svc.Provision(ctx, ProvisionInput{OrganizationID: orgA, PhoneNumber: "+14155550100"})
	assert.True(t, errors.Is(err, telephony.ErrNumberUnavailable))
}

func TestRelease_FreesNumberAtCarrier(t *testing.T) {
	f := newFixture(t, intp(1))
	ctx := context.Background()
	n, err := f.svc.Provision(ctx, ProvisionInput{OrganizationID: orgA, PhoneNumber: "+14155550100"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Release(ctx, n))
	_, err = f.svc.Get(ctx, n.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	found, err := f.svc.Search(ctx, SearchInput{OrganizationID: orgA, AreaCode: "415", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "+14155550100", found[0].PhoneNumber)
}

func TestUpdate_AssistantMustBelongToTenant(t *testing.T) {
	f := newFixture(t, intp(1))
	ctx := context.Background()
	n, err := f.svc.Provision(ctx, ProvisionInput{OrganizationID: orgA, PhoneNumber: "+14155550100"})
	require.NoError(t, err)

	foreign, err := f.assistants.Create(ctx, assistants.Assistant{OrganizationID: orgB, Name: "other"})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, n, Patch{AssistantID: &foreign.ID})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	own, err := f.assistants.Create(ctx, assistants.Assistant{OrganizationID: orgA, Name: "desk"})
	require.NoError(t, err)
	name := "Main line"
	got, err := f.svc.Update(ctx, n, Patch{AssistantID: &own.ID, FriendlyName: &name})
	require.NoError(t, err)
	assert.Equal(t, own.ID, *got.AssistantID)
	assert.Equal(t, "Main line", *got.FriendlyName)
}
