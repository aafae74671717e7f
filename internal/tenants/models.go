package tenants

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"callflex/pkg/utils"
)

var (
	ErrNotFound        = errors.New("tenants: not found")
	ErrInvalidArgument = errors.New("tenants: invalid argument")
	ErrForbidden       = errors.New("tenants: forbidden")
	ErrConflict        = errors.New("tenants: already exists")
)

type Status string

const (
	StatusTrial    Status = "trial"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Organization is the billing tenant. Every call, assistant and number belongs to one.
//
// CurrentPeriodMinutesUsed is only ever changed through IncrementMinutesUsed or
// ResetUsageForPeriod; both are single statements.
type Organization struct {
	ID           string  `json:"id" db:"id"`
	Name         string  `json:"name" db:"name"`
	Slug         string  `json:"slug" db:"slug"`
	BusinessType *string `json:"business_type" db:"business_type"`
	Timezone     string  `json:"timezone" db:"timezone"`
	PrimaryEmail *string `json:"primary_email" db:"primary_email"`
	PrimaryPhone *string `json:"primary_phone" db:"primary_phone"`
	Website      *string `json:"website" db:"website"`
	Status       Status  `json:"status" db:"status"`
	PlanID       *string `json:"plan_id" db:"plan_id"`

	TrialEndsAt *time.Time `json:"trial_ends_at" db:"trial_ends_at"`

	StripeCustomerID     *string `json:"stripe_customer_id" db:"stripe_customer_id"`
	StripeSubscriptionID *string `json:"stripe_subscription_id" db:"stripe_subscription_id"`

	CurrentPeriodMinutesUsed int        `json:"current_period_minutes_used" db:"current_period_minutes_used"`
	CurrentPeriodStart       *time.Time `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd         *time.Time `json:"current_period_end" db:"current_period_end"`

	// UsagePeriodStart is the billing period the minute counter accumulates for.
	UsagePeriodStart *time.Time `json:"usage_period_start,omitempty" db:"usage_period_start"`

	Settings utils.JSONB `json:"settings" db:"settings"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Settings is the typed view of organizations.settings that the backend reads.
// Unknown keys are preserved by the dashboard, not here.
type Settings struct {
	// TransferNumbers maps a spoken destination ("sales", "front desk") to E.164.
	TransferNumbers map[string]string `json:"transfer_numbers,omitempty"`
}

func (o Organization) ParsedSettings() (Settings, error) {
	var s Settings
	if len(o.Settings) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(o.Settings, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

type Plan struct {
	ID                   string              `json:"id" db:"id"`
	Name                 string              `json:"name" db:"name"`
	DisplayName          string              `json:"display_name" db:"display_name"`
	PriceMonthly         decimal.NullDecimal `json:"price_monthly" db:"price_monthly"`
	IncludedMinutes      int                 `json:"included_minutes" db:"included_minutes"`
	MaxPhoneNumbers      *int                `json:"max_phone_numbers" db:"max_phone_numbers"`
	OverageRatePerMinute decimal.NullDecimal `json:"overage_rate_per_minute" db:"overage_rate_per_minute"`
	StripePriceIDMonthly *string             `json:"stripe_price_id_monthly" db:"stripe_price_id_monthly"`
	StripePriceIDYearly  *string             `json:"stripe_price_id_yearly" db:"stripe_price_id_yearly"`
	IsActive             bool                `json:"is_active" db:"is_active"`
	SortOrder            int                 `json:"sort_order" db:"sort_order"`
}

// MatchesPrice reports whether priceID is either the monthly or the yearly price.
func (p Plan) MatchesPrice(priceID string) bool {
	if priceID == "" {
		return false
	}
	return (p.StripePriceIDMonthly != nil && *p.StripePriceIDMonthly == priceID) ||
		(p.StripePriceIDYearly != nil && *p.StripePriceIDYearly == priceID)
}

type User struct {
	ID       string  `json:"id" db:"id"`
	AuthID   string  `json:"auth_id" db:"auth_id"`
	Email    string  `json:"email" db:"email"`
	FullName *string `json:"full_name" db:"full_name"`
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

type Membership struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	UserID         string    `json:"user_id" db:"user_id"`
	Role           Role      `json:"role" db:"role"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Member is a membership joined with its user row for the members listing.
type Member struct {
	Membership
	Email    string  `json:"email" db:"email"`
	FullName *string `json:"full_name" db:"full_name"`
}

// OrganizationWithRole is what GET /organizations returns per entry.
type OrganizationWithRole struct {
	Organization
	Role Role `json:"role" db:"role"`
}

// OrganizationPatch carries the fields an owner or admin may change. Nil fields are left alone.
type OrganizationPatch struct {
	Name         *string     `json:"name"`
	BusinessType *string     `json:"business_type"`
	Timezone     *string     `json:"timezone"`
	PrimaryPhone *string     `json:"primary_phone"`
	Website      *string     `json:"website"`
	Settings     utils.JSONB `json:"settings"`
}

func (p OrganizationPatch) Empty() bool {
	return p.Name == nil && p.BusinessType == nil && p.Timezone == nil &&
		p.PrimaryPhone == nil && p.Website == nil && len(p.Settings) == 0
}

// CheckoutBinding is applied when a checkout session completes.
type CheckoutBinding struct {
	OrganizationID       string
	PlanID               *string
	StripeCustomerID     string
	StripeSubscriptionID string
	PeriodStart          time.Time
	PeriodEnd            time.Time
}

// SubscriptionSync is applied on subscription.created/updated.
// A nil Status or PlanID, or a zero period bound, leaves the column unchanged.
type SubscriptionSync struct {
	OrganizationID       string
	Status               *Status
	PlanID               *string
	StripeSubscriptionID string
	PeriodStart          time.Time
	PeriodEnd            time.Time
}

// TrialPeriod is how long a freshly provisioned organization stays in trial.
const TrialPeriod = 14 * 24 * time.Hour

// Signup provisions the first user, organization and owner membership for an
// identity that has no users row yet.
type Signup struct {
	AuthID           string
	Email            string
	FullName         string
	OrganizationName string
	Slug             string
	TrialEndsAt      time.Time
}

type Provisioned struct {
	User         User         `json:"user"`
	Organization Organization `json:"organization"`
	Membership   Membership   `json:"membership"`
}

var slugRun = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns an organization name into a URL slug. The millisecond suffix
// keeps two signups for "Acme Dental" apart.
func Slug(name string, now time.Time) string {
	base := strings.Trim(slugRun.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if base == "" {
		base = "org"
	}
	return fmt.Sprintf("%s-%d", base, now.UnixMilli())
}

type InvitationStatus string

const InvitationPending InvitationStatus = "pending"

// Invitation is an outstanding offer for an email address to join an
// organization. Re-inviting the same address updates the role.
type Invitation struct {
	ID             string           `json:"id" db:"id"`
	OrganizationID string           `json:"organization_id" db:"organization_id"`
	Email          string           `json:"email" db:"email"`
	Role           Role             `json:"role" db:"role"`
	Status         InvitationStatus `json:"status" db:"status"`
	InvitedBy      string           `json:"invited_by" db:"invited_by"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}
