package inmemdb

import (
	"context"
	"sort"

	"github.com/shuleapp/shule/core/tenant"
)

type tenantRepository struct {
	db *DB
}

var _ tenant.Repository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(db *DB) *tenantRepository {
	return &tenantRepository{db: db}
}

func (repo *tenantRepository) CheckTenantUniqueness(ctx context.Context, name, slug, host string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, t := range repo.db.tenants {
		if name != "" && t.Name == name {
			return tenant.ErrNameExists
		}
		if slug != "" && t.Slug == slug {
			return tenant.ErrSlugExists
		}
	}
	if host != "" {
		if _, ok := repo.db.domains[host]; ok {
			return tenant.ErrDomainExists
		}
	}
	return nil
}

func (repo *tenantRepository) CreateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := t
	stored.Domains = nil
	repo.db.tenants[t.ID] = &stored
	for _, d := range t.Domains {
		d := d
		repo.db.domains[d.Host] = &d
	}
	return t, nil
}

// domainsFor returns the tenant's domains, primary first. Callers must hold the lock.
func (repo *tenantRepository) domainsFor(tenantID string) []tenant.Domain {
	var ds []tenant.Domain
	for _, d := range repo.db.domains {
		if d.TenantID == tenantID {
			ds = append(ds, *d)
		}
	}
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].IsPrimary != ds[j].IsPrimary {
			return ds[i].IsPrimary
		}
		return ds[i].Host < ds[j].Host
	})
	return ds
}

func (repo *tenantRepository) GetTenantByID(ctx context.Context, id string) (tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.tenants[id]; ok {
		res := *t
		res.Domains = repo.domainsFor(t.ID)
		return res, nil
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) GetTenantBySlug(ctx context.Context, slug string) (tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, t := range repo.db.tenants {
		if t.Slug == slug {
			res := *t
			res.Domains = repo.domainsFor(t.ID)
			return res, nil
		}
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) GetTenantByDomain(ctx context.Context, host string) (tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	d, ok := repo.db.domains[host]
	if !ok {
		return tenant.Tenant{}, tenant.ErrDomainNotFound
	}
	t, ok := repo.db.tenants[d.TenantID]
	if !ok {
		return tenant.Tenant{}, tenant.ErrDomainNotFound
	}
	res := *t
	res.Domains = repo.domainsFor(t.ID)
	return res, nil
}

func (repo *tenantRepository) QueryAllTenants(ctx context.Context) ([]tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tenants := make([]tenant.Tenant, 0, len(repo.db.tenants))
	for _, t := range repo.db.tenants {
		res := *t
		res.Domains = repo.domainsFor(t.ID)
		tenants = append(tenants, res)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Name < tenants[j].Name })
	return tenants, nil
}

func (repo *tenantRepository) UpdateTenant(ctx context.Context, t tenant.Tenant, isActive *bool) (tenant.Tenant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// only save set fields
	orig, ok := repo.db.tenants[t.ID]
	if !ok {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	if t.Name != "" {
		orig.Name = t.Name
	}
	if t.Email != "" {
		orig.Email = t.Email
	}
	if t.PrimaryColor != "" {
		orig.PrimaryColor = t.PrimaryColor
	}
	orig.Description = t.Description
	orig.Phone = t.Phone
	orig.Address = t.Address
	orig.City = t.City
	orig.Country = t.Country
	orig.PostalCode = t.PostalCode
	if t.SubscriptionType != "" {
		orig.SubscriptionType = t.SubscriptionType
	}
	if !t.SubscriptionEnd.IsZero() {
		orig.SubscriptionEnd = t.SubscriptionEnd
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	orig.UpdatedAt = t.UpdatedAt

	res := *orig
	res.Domains = repo.domainsFor(orig.ID)
	return res, nil
}

func (repo *tenantRepository) CreateDomain(ctx context.Context, d tenant.Domain) (tenant.Domain, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.domains[d.Host]; ok {
		return tenant.Domain{}, tenant.ErrDomainExists
	}
	repo.db.domains[d.Host] = &d
	return d, nil
}

func (repo *tenantRepository) DeleteDomain(ctx context.Context, tenantID, host string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	d, ok := repo.db.domains[host]
	if !ok || d.TenantID != tenantID {
		return tenant.ErrDomainNotFound
	}
	if d.IsPrimary {
		return tenant.ErrPrimaryDomain
	}
	delete(repo.db.domains, host)
	return nil
}

func (repo *tenantRepository) SetPrimaryDomain(ctx context.Context, tenantID, host string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	next, ok := repo.db.domains[host]
	if !ok || next.TenantID != tenantID {
		return tenant.ErrDomainNotFound
	}
	for _, d := range repo.db.domains {
		if d.TenantID == tenantID {
			d.IsPrimary = false
		}
	}
	next.IsPrimary = true
	return nil
}
