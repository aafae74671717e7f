package tenants

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	orgs    map[string]Organization
	plans   map[string]Plan
	users   map[string]User // by auth id
	members map[string]Membership
	invites map[string]Invitation // by org id + email
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		orgs:    map[string]Organization{},
		plans:   map[string]Plan{},
		users:   map[string]User{},
		members: map[string]Membership{},
		invites: map[string]Invitation{},
	}
}

func (r *MemoryRepo) PutOrganization(o Organization) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgs[o.ID] = o
}

func (r *MemoryRepo) PutPlan(p Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.ID] = p
}

func (r *MemoryRepo) PutUser(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.AuthID] = u
}

func (r *MemoryRepo) PutMembership(m Membership) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.ID] = m
}

func (r *MemoryRepo) GetOrganization(ctx context.Context, id string) (Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return o, nil
}

func (r *MemoryRepo) FindBySubscriptionID(ctx context.Context, subscriptionID string) (Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orgs {
		if subscriptionID != "" && o.StripeSubscriptionID != nil && *o.StripeSubscriptionID == subscriptionID {
			return o, nil
		}
	}
	return Organization{}, ErrNotFound
}

func (r *MemoryRepo) UpdateOrganization(ctx context.Context, id string, p OrganizationPatch) (Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	if p.Name != nil {
		o.Name = *p.Name
	}
	if p.BusinessType != nil {
		o.BusinessType = p.BusinessType
	}
	if p.Timezone != nil {
		o.Timezone = *p.Timezone
	}
	if p.PrimaryPhone != nil {
		o.PrimaryPhone = p.PrimaryPhone
	}
	if p.Website != nil {
		o.Website = p.Website
	}
	if len(p.Settings) > 0 {
		o.Settings = append(o.Settings[:0:0], p.Settings...)
	}
	o.UpdatedAt = time.Now().UTC()
	r.orgs[id] = o
	return o, nil
}

func (r *MemoryRepo) ListOrganizationsForUser(ctx context.Context, userID string) ([]OrganizationWithRole, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []OrganizationWithRole{}
	for _, m := range r.members {
		if m.UserID != userID {
			continue
		}
		if o, ok := r.orgs[m.OrganizationID]; ok {
			out = append(out, OrganizationWithRole{Organization: o, Role: m.Role})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) IncrementMinutesUsed(ctx context.Context, orgID string, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[orgID]
	if !ok {
		return 0, ErrNotFound
	}
	o.CurrentPeriodMinutesUsed += delta
	r.orgs[orgID] = o
	return o.CurrentPeriodMinutesUsed, nil
}

func (r *MemoryRepo) ResetUsageForPeriod(ctx context.Context, orgID string, periodStart time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[orgID]
	if !ok {
		return false, nil
	}
	if o.UsagePeriodStart != nil && !o.UsagePeriodStart.Before(periodStart) {
		return false, nil
	}
	ps := periodStart.UTC()
	o.CurrentPeriodMinutesUsed = 0
	o.UsagePeriodStart = &ps
	r.orgs[orgID] = o
	return true, nil
}

func (r *MemoryRepo) ApplyCheckout(ctx context.Context, b CheckoutBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[b.OrganizationID]
	if !ok {
		return ErrNotFound
	}
	start, end := b.PeriodStart.UTC(), b.PeriodEnd.UTC()
	cus, sub := b.StripeCustomerID, b.StripeSubscriptionID
	o.Status = StatusActive
	o.PlanID = b.PlanID
	o.StripeCustomerID = &cus
	o.StripeSubscriptionID = &sub
	o.CurrentPeriodStart = &start
	o.CurrentPeriodEnd = &end
	o.UsagePeriodStart = &start
	o.CurrentPeriodMinutesUsed = 0
	r.orgs[o.ID] = o
	return nil
}

func (r *MemoryRepo) SyncSubscription(ctx context.Context, s SubscriptionSync) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[s.OrganizationID]
	if !ok {
		return ErrNotFound
	}
	if s.Status != nil {
		o.Status = *s.Status
	}
	if s.PlanID != nil {
		o.PlanID = s.PlanID
	}
	sub := s.StripeSubscriptionID
	o.StripeSubscriptionID = &sub
	if !s.PeriodStart.IsZero() {
		start := s.PeriodStart.UTC()
		o.CurrentPeriodStart = &start
	}
	if !s.PeriodEnd.IsZero() {
		end := s.PeriodEnd.UTC()
		o.CurrentPeriodEnd = &end
	}
	r.orgs[o.ID] = o
	return nil
}

func (r *MemoryRepo) CancelSubscription(ctx context.Context, orgID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[orgID]
	if !ok {
		return ErrNotFound
	}
	o.Status = StatusCanceled
	o.StripeSubscriptionID = nil
	o.PlanID = nil
	r.orgs[orgID] = o
	return nil
}

func (r *MemoryRepo) SetStatus(ctx context.Context, orgID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[orgID]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	r.orgs[orgID] = o
	return nil
}

func (r *MemoryRepo) SetStripeCustomer(ctx context.Context, orgID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[orgID]
	if !ok {
		return ErrNotFound
	}
	o.StripeCustomerID = &customerID
	r.orgs[orgID] = o
	return nil
}

func (r *MemoryRepo) GetPlan(ctx context.Context, id string) (Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return Plan{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) FindPlanByPriceID(ctx context.Context, priceID string) (Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.plans {
		if p.MatchesPrice(priceID) {
			return p, nil
		}
	}
	return Plan{}, ErrNotFound
}

func (r *MemoryRepo) UserByAuthID(ctx context.Context, authID string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[authID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryRepo) Membership(ctx context.Context, orgID, userID string) (Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.memberByUser(orgID, userID); ok {
		return m, nil
	}
	return Membership{}, ErrNotFound
}

func (r *MemoryRepo) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Member{}
	for _, m := range r.members {
		if m.OrganizationID != orgID {
			continue
		}
		mem := Member{Membership: m}
		for _, u := range r.users {
			if u.ID == m.UserID {
				mem.Email = u.Email
				mem.FullName = u.FullName
			}
		}
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) UpdateMemberRole(ctx context.Context, orgID, userID string, role Role) (Membership, error) {
	if !role.Valid() {
		return Membership{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memberByUser(orgID, userID)
	if !ok {
		return Membership{}, ErrNotFound
	}
	m.Role = role
	r.members[m.ID] = m
	return m, nil
}

func (r *MemoryRepo) RemoveMember(ctx context.Context, orgID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memberByUser(orgID, userID)
	if !ok {
		return ErrNotFound
	}
	delete(r.members, m.ID)
	return nil
}

// memberByUser expects r.mu held.
func (r *MemoryRepo) memberByUser(orgID, userID string) (Membership, bool) {
	for _, m := range r.members {
		if m.OrganizationID == orgID && m.UserID == userID {
			return m, true
		}
	}
	return Membership{}, false
}

func (r *MemoryRepo) Provision(ctx context.Context, s Signup) (Provisioned, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[s.AuthID]; ok {
		return Provisioned{}, ErrConflict
	}
	now := time.Now().UTC()
	trialEnds := s.TrialEndsAt.UTC()
	email := s.Email

	u := User{ID: uuid.NewString(), AuthID: s.AuthID, Email: s.Email}
	if s.FullName != "" {
		name := s.FullName
		u.FullName = &name
	}
	o := Organization{
		ID:           uuid.NewString(),
		Name:         s.OrganizationName,
		Slug:         s.Slug,
		PrimaryEmail: &email,
		Status:       StatusTrial,
		TrialEndsAt:  &trialEnds,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m := Membership{ID: uuid.NewString(), OrganizationID: o.ID, UserID: u.ID, Role: RoleOwner, CreatedAt: now}

	r.users[u.AuthID] = u
	r.orgs[o.ID] = o
	r.members[m.ID] = m
	return Provisioned{User: u, Organization: o, Membership: m}, nil
}

func (r *MemoryRepo) CreateInvitation(ctx context.Context, inv Invitation) (Invitation, error) {
	if !inv.Role.Valid() || inv.Role == RoleOwner {
		return Invitation{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inv.Email = strings.ToLower(inv.Email)
	key := inv.OrganizationID + "|" + inv.Email
	if prev, ok := r.invites[key]; ok {
		inv.ID, inv.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		inv.ID, inv.CreatedAt = uuid.NewString(), time.Now().UTC()
	}
	inv.Status = InvitationPending
	r.invites[key] = inv
	return inv, nil
}
