package telephony

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// CatalogProvider hands out numbers from a fixed, deterministic range
// (+1 <area> 555 01xx). It keeps track of what it has provisioned so search
// results shrink as numbers are taken.
type CatalogProvider struct {
	mu    sync.Mutex
	taken map[string]string // number -> organization id
}

const defaultAreaCode = "415"

func NewCatalogProvider() *CatalogProvider {
	return &CatalogProvider{taken: map[string]string{}}
}

func (p *CatalogProvider) Name() string { return "catalog" }

func (p *CatalogProvider) HealthCheck(ctx context.Context) error { return nil }

func (p *CatalogProvider) Search(ctx context.Context, req SearchRequest) ([]AvailableNumber, error) {
	country := strings.ToUpper(strings.TrimSpace(req.CountryISO2))
	if country != "" && country != "US" && country != "CA" {
		return []AvailableNumber{}, nil
	}
	area := digits(req.AreaCode)
	if area == "" {
		area = defaultAreaCode
	}
	if len(area) != 3 {
		return nil, fmt.Errorf("%w: area code must be 3 digits", ErrInvalidRequest)
	}
	limit := req.Limit
	if limit <= 0 || limit > 20 {
		limit = 10
	}
	contains := digits(req.Contains)

	p.mu.Lock()
	defer p.mu.Unlock()

	out := []AvailableNumber{}
	for i := 100; i < 200 && len(out) < limit; i++ {
		n := fmt.Sprintf("+1%s5550%d", area, i)
		if _, taken := p.taken[n]; taken {
			continue
		}
		if contains != "" && !strings.Contains(n, contains) {
			continue
		}
		out = append(out, AvailableNumber{
			PhoneNumber:  n,
			FriendlyName: fmt.Sprintf("(%s) 555-0%d", area, i),
			Region:       country,
			Capabilities: Capabilities{Voice: true, SMS: true},
		})
	}
	return out, nil
}

func (p *CatalogProvider) Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error) {
	n := strings.TrimSpace(req.PhoneNumber)
	if req.OrganizationID == "" || !strings.HasPrefix(n, "+") || len(digits(n)) < 8 {
		return ProvisionResult{}, fmt.Errorf("%w: organization and E.164 number required", ErrInvalidRequest)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, taken := p.taken[n]; taken {
		return ProvisionResult{}, ErrNumberUnavailable
	}
	p.taken[n] = req.OrganizationID
	return ProvisionResult{PhoneNumber: n, ProviderNumberID: "PN" + digits(n)}, nil
}

func (p *CatalogProvider) Release(ctx context.Context, req ReleaseRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	owner, ok := p.taken[req.PhoneNumber]
	if !ok {
		return nil
	}
	if owner != req.OrganizationID {
		return fmt.Errorf("%w: number belongs to another organization", ErrInvalidRequest)
	}
	delete(p.taken, req.PhoneNumber)
	return nil
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
