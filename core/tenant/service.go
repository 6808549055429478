package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shuleapp/shule/core"
)

var (
	// errors
	ErrNotFound       = errors.New("tenant not found")
	ErrDomainNotFound = errors.New("domain not found")
	ErrPrimaryDomain  = errors.New("cannot remove the primary domain")
	ErrNameExists     = errors.New("a school with this name already exists")
	ErrSlugExists     = errors.New("a school with this slug already exists")
	ErrDomainExists   = errors.New("this domain is already in use")
)

type (
	Repository interface {
		CheckTenantUniqueness(ctx context.Context, name, slug, host string) error
		CreateTenant(ctx context.Context, t Tenant) (Tenant, error)
		GetTenantByID(ctx context.Context, id string) (Tenant, error)
		GetTenantBySlug(ctx context.Context, slug string) (Tenant, error)
		// GetTenantByDomain returns the tenant owning the exact hostname.
		GetTenantByDomain(ctx context.Context, host string) (Tenant, error)
		QueryAllTenants(ctx context.Context) ([]Tenant, error)
		UpdateTenant(ctx context.Context, t Tenant, isActive *bool) (Tenant, error)
		CreateDomain(ctx context.Context, d Domain) (Domain, error)
		DeleteDomain(ctx context.Context, tenantID, host string) error
		// SetPrimaryDomain atomically clears the previous primary flag.
		SetPrimaryDomain(ctx context.Context, tenantID, host string) error
	}

	Service struct {
		repo  Repository
		cache core.Cache
	}
)

const domainCacheTimeout = 5 * time.Minute

func NewService(repo Repository, cache core.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func (svc *Service) checkUniqueness(name, slug, host string) error {
	if err := svc.repo.CheckTenantUniqueness(context.Background(), name, slug, host); err != nil {
		var field string
		switch err {
		case ErrNameExists:
			field = "name"
		case ErrSlugExists:
			field = "slug"
		case ErrDomainExists:
			field = "domain"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Create registers a new school with its primary domain. Tenants start with
// a one-month trial window; RenewSubscription extends it.
func (svc *Service) Create(ctx context.Context, nt NewTenant) (Tenant, error) {
	now := time.Now().UTC()
	t := Tenant{
		ID:                uuid.New().String(),
		Name:              nt.Name,
		Slug:              nt.Slug,
		Description:       nt.Description,
		Email:             nt.Email,
		Phone:             nt.Phone,
		Address:           nt.Address,
		City:              nt.City,
		Country:           nt.Country,
		PostalCode:        nt.PostalCode,
		PrimaryColor:      "#007bff",
		SubscriptionType:  nt.SubscriptionType,
		SubscriptionStart: now,
		SubscriptionEnd:   now.AddDate(0, 1, 0),
		IsActive:          true,
		MaxStudents:       nt.MaxStudents,
		MaxStaff:          nt.MaxStaff,
		CreatedAt:         now,
		UpdatedAt:         now,
		Domains: []Domain{
			{ID: uuid.New().String(), Host: nt.Domain, IsPrimary: true},
		},
	}
	for i := range t.Domains {
		t.Domains[i].TenantID = t.ID
	}
	return svc.repo.CreateTenant(ctx, t)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Tenant, error) {
	return svc.repo.GetTenantByID(ctx, id)
}

func (svc *Service) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	return svc.repo.GetTenantBySlug(ctx, core.CleanString(slug, true /* lower */))
}

func (svc *Service) QueryAll(ctx context.Context) ([]Tenant, error) {
	return svc.repo.QueryAllTenants(ctx)
}

// ResolveDomain maps a request hostname to its Tenant. Lookups go through
// the cache; misses fall back to the registry. Any hostname without a
// matching Domain record yields ErrDomainNotFound.
func (svc *Service) ResolveDomain(ctx context.Context, host string) (Tenant, error) {
	host = core.CleanString(host, true /* lower */)
	if host == "" {
		return Tenant{}, ErrDomainNotFound
	}

	key := domainCacheKey(host)
	if svc.cache != nil {
		if data, err := svc.cache.Get(ctx, key); err == nil {
			var t Tenant
			if err = json.Unmarshal([]byte(data), &t); err == nil {
				return t, nil
			}
		}
	}

	t, err := svc.repo.GetTenantByDomain(ctx, host)
	if err != nil {
		return Tenant{}, err
	}
	if svc.cache != nil {
		if data, err := json.Marshal(t); err == nil {
			_ = svc.cache.Set(ctx, key, string(data), domainCacheTimeout)
		}
	}
	return t, nil
}

func (svc *Service) Update(ctx context.Context, id string, ut UpdateTenant) (Tenant, error) {
	t := Tenant{
		ID:           id,
		Name:         ut.Name,
		Description:  ut.Description,
		Email:        ut.Email,
		Phone:        ut.Phone,
		Address:      ut.Address,
		City:         ut.City,
		Country:      ut.Country,
		PostalCode:   ut.PostalCode,
		PrimaryColor: ut.PrimaryColor,
		UpdatedAt:    time.Now().UTC(),
	}
	updated, err := svc.repo.UpdateTenant(ctx, t, nil)
	if err != nil {
		return Tenant{}, err
	}
	svc.invalidateDomains(ctx, updated)
	return updated, nil
}

// Renew extends the subscription window and reactivates the tenant.
func (svc *Service) Renew(ctx context.Context, id string, rs RenewSubscription) (Tenant, error) {
	orig, err := svc.repo.GetTenantByID(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	orig.SubscriptionEnd = rs.SubscriptionEnd.UTC()
	if rs.SubscriptionType != "" {
		orig.SubscriptionType = rs.SubscriptionType
	}
	orig.UpdatedAt = time.Now().UTC()
	isActive := true
	updated, err := svc.repo.UpdateTenant(ctx, orig, &isActive)
	if err != nil {
		return Tenant{}, err
	}
	svc.invalidateDomains(ctx, updated)
	return updated, nil
}

// Disable soft-disables a tenant; its data is retained.
func (svc *Service) Disable(ctx context.Context, id string) (Tenant, error) {
	orig, err := svc.repo.GetTenantByID(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	orig.UpdatedAt = time.Now().UTC()
	isActive := false
	updated, err := svc.repo.UpdateTenant(ctx, orig, &isActive)
	if err != nil {
		return Tenant{}, err
	}
	svc.invalidateDomains(ctx, updated)
	return updated, nil
}

func (svc *Service) AddDomain(ctx context.Context, tenantID string, nd NewDomain) (Domain, error) {
	if err := svc.repo.CheckTenantUniqueness(ctx, "", "", nd.Host); err != nil {
		if err == ErrDomainExists {
			return Domain{}, core.NewValidationError(err, core.FieldError{Field: "host", Error: err.Error()})
		}
		return Domain{}, err
	}
	d := Domain{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Host:     nd.Host,
	}
	created, err := svc.repo.CreateDomain(ctx, d)
	if err != nil {
		return Domain{}, err
	}
	if nd.IsPrimary {
		if err = svc.repo.SetPrimaryDomain(ctx, tenantID, nd.Host); err != nil {
			return Domain{}, err
		}
		created.IsPrimary = true
	}
	return created, nil
}

func (svc *Service) RemoveDomain(ctx context.Context, tenantID, host string) error {
	host = core.CleanString(host, true /* lower */)
	if err := svc.repo.DeleteDomain(ctx, tenantID, host); err != nil {
		if err == ErrPrimaryDomain {
			return core.NewValidationError(err, core.FieldError{Field: "host", Error: err.Error()})
		}
		return err
	}
	if svc.cache != nil {
		_ = svc.cache.Delete(ctx, domainCacheKey(host))
	}
	return nil
}

func (svc *Service) SetPrimaryDomain(ctx context.Context, tenantID, host string) error {
	if err := svc.repo.SetPrimaryDomain(ctx, tenantID, core.CleanString(host, true /* lower */)); err != nil {
		return err
	}
	// the demoted and promoted hosts both resolve stale until dropped
	if t, err := svc.repo.GetTenantByID(ctx, tenantID); err == nil {
		svc.invalidateDomains(ctx, t)
	}
	return nil
}

// invalidateDomains drops cached lookups for all of a tenant's hostnames
// so subscription and profile changes take effect immediately.
func (svc *Service) invalidateDomains(ctx context.Context, t Tenant) {
	if svc.cache == nil {
		return
	}
	keys := make([]string, 0, len(t.Domains))
	for _, d := range t.Domains {
		keys = append(keys, domainCacheKey(d.Host))
	}
	if len(keys) > 0 {
		_ = svc.cache.Delete(ctx, keys...)
	}
}

func domainCacheKey(host string) string {
	return "tenant:domain:" + host
}
