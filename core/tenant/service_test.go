package tenant_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/tenant"
	"github.com/shuleapp/shule/storage/cache"
	inmemdb "github.com/shuleapp/shule/storage/database/inmem"
)

func newTestService() *tenant.Service {
	return tenant.NewService(inmemdb.NewTenantRepository(inmemdb.NewDB()), cache.NewInMem())
}

func createTenant(t *testing.T, svc *tenant.Service, name, host string) tenant.Tenant {
	t.Helper()
	validate, _ := core.NewValidator()
	nt := tenant.NewTenant{Name: name, Email: "contact@" + host, Domain: host}
	if err := nt.Validate(validate, svc); err != nil {
		t.Fatalf("Validate(): %v", err)
	}
	tnt, err := svc.Create(context.Background(), nt)
	if err != nil {
		t.Fatalf("Create(): %v", err)
	}
	return tnt
}

func TestService_Create(t *testing.T) {
	svc := newTestService()
	validate, _ := core.NewValidator()

	tnt := createTenant(t, svc, "Umoja School", "umoja.test")
	if tnt.Slug != "umoja-school" {
		t.Errorf("slug = %q; want %q", tnt.Slug, "umoja-school")
	}
	if !tnt.IsActive {
		t.Error("new tenants must be active")
	}
	if tnt.PrimaryDomain() != "umoja.test" {
		t.Errorf("primary domain = %q; want %q", tnt.PrimaryDomain(), "umoja.test")
	}
	// trial window
	if !tnt.SubscriptionValid(time.Now().UTC()) {
		t.Error("new tenants must have a valid subscription")
	}

	// names, slugs and domains are global
	tests := []struct {
		name string
		nt   tenant.NewTenant
	}{
		{name: "duplicate name", nt: tenant.NewTenant{Name: "Umoja School", Email: "x@x.test", Domain: "x.test"}},
		{name: "duplicate slug", nt: tenant.NewTenant{Name: "UMOJA school", Email: "x@x.test", Domain: "x.test"}},
		{name: "duplicate domain", nt: tenant.NewTenant{Name: "Other School", Email: "x@x.test", Domain: "umoja.test"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nt := tt.nt
			if err := nt.Validate(validate, svc); err == nil {
				t.Error("Validate() must reject duplicates")
			}
		})
	}
}

func TestService_Update(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	validate, _ := core.NewValidator()

	tnt := createTenant(t, svc, "Umoja School", "umoja.test")

	ut := tenant.UpdateTenant{Phone: "+254700000000"}
	if err := ut.Validate(validate, tnt); err != nil {
		t.Fatalf("Validate(): %v", err)
	}
	updated, err := svc.Update(ctx, tnt.ID, ut)
	if err != nil {
		t.Fatalf("Update(): %v", err)
	}
	if updated.Phone != "+254700000000" {
		t.Errorf("Phone = %q; want %q", updated.Phone, "+254700000000")
	}
	if updated.Name != tnt.Name {
		t.Errorf("Name = %q; want %q", updated.Name, tnt.Name)
	}
	// a profile update must not touch the subscription window
	if !updated.SubscriptionEnd.Equal(tnt.SubscriptionEnd) {
		t.Errorf("SubscriptionEnd = %v; want %v", updated.SubscriptionEnd, tnt.SubscriptionEnd)
	}
	if updated.SubscriptionType != tnt.SubscriptionType {
		t.Errorf("SubscriptionType = %q; want %q", updated.SubscriptionType, tnt.SubscriptionType)
	}
}

func TestService_ResolveDomain(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	tnt := createTenant(t, svc, "Umoja School", "umoja.test")

	resolved, err := svc.ResolveDomain(ctx, "umoja.test")
	if err != nil {
		t.Fatalf("ResolveDomain(): %v", err)
	}
	if resolved.ID != tnt.ID {
		t.Errorf("ID = %q; want %q", resolved.ID, tnt.ID)
	}

	// hostnames normalize; ports and case do not matter to callers
	if _, err = svc.ResolveDomain(ctx, "UMOJA.test"); err != nil {
		t.Errorf("ResolveDomain(): %v", err)
	}

	if _, err = svc.ResolveDomain(ctx, "nowhere.test"); err != tenant.ErrDomainNotFound {
		t.Errorf("ResolveDomain() error = %v; want %v", err, tenant.ErrDomainNotFound)
	}
	if _, err = svc.ResolveDomain(ctx, ""); err != tenant.ErrDomainNotFound {
		t.Errorf("ResolveDomain() error = %v; want %v", err, tenant.ErrDomainNotFound)
	}
}

func TestService_ResolveDomain_invalidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	validate, _ := core.NewValidator()

	tnt := createTenant(t, svc, "Umoja School", "umoja.test")

	// prime the cache
	if _, err := svc.ResolveDomain(ctx, "umoja.test"); err != nil {
		t.Fatalf("ResolveDomain(): %v", err)
	}

	// disabling must take effect immediately, not after the cache TTL
	if _, err := svc.Disable(ctx, tnt.ID); err != nil {
		t.Fatalf("Disable(): %v", err)
	}
	resolved, err := svc.ResolveDomain(ctx, "umoja.test")
	if err != nil {
		t.Fatalf("ResolveDomain(): %v", err)
	}
	if resolved.IsActive {
		t.Error("cached lookup must be dropped on disable")
	}

	// removed domains stop resolving
	nd := tenant.NewDomain{Host: "portal.umoja.test"}
	if err = nd.Validate(validate); err != nil {
		t.Fatalf("Validate(): %v", err)
	}
	if _, err = svc.AddDomain(ctx, tnt.ID, nd); err != nil {
		t.Fatalf("AddDomain(): %v", err)
	}
	if _, err = svc.ResolveDomain(ctx, "portal.umoja.test"); err != nil {
		t.Fatalf("ResolveDomain(): %v", err)
	}
	if err = svc.RemoveDomain(ctx, tnt.ID, "portal.umoja.test"); err != nil {
		t.Fatalf("RemoveDomain(): %v", err)
	}
	if _, err = svc.ResolveDomain(ctx, "portal.umoja.test"); err != tenant.ErrDomainNotFound {
		t.Errorf("ResolveDomain() error = %v; want %v", err, tenant.ErrDomainNotFound)
	}
}

func TestService_domains(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	validate, _ := core.NewValidator()

	tnt := createTenant(t, svc, "Umoja School", "umoja.test")

	// a taken hostname cannot be attached to another school
	nd := tenant.NewDomain{Host: "umoja.test"}
	if err := nd.Validate(validate); err != nil {
		t.Fatalf("Validate(): %v", err)
	}
	if _, err := svc.AddDomain(ctx, tnt.ID, nd); err == nil {
		t.Error("AddDomain() must reject a duplicate host")
	}

	// the primary domain cannot be removed; callers get a field error,
	// not a not-found
	err := svc.RemoveDomain(ctx, tnt.ID, "umoja.test")
	var verr *core.ValidationError
	if !errors.As(err, &verr) || verr.Err != tenant.ErrPrimaryDomain {
		t.Errorf("RemoveDomain() error = %v; want %v", err, tenant.ErrPrimaryDomain)
	}

	// promotion moves the primary flag atomically
	nd = tenant.NewDomain{Host: "portal.umoja.test"}
	if err := nd.Validate(validate); err != nil {
		t.Fatalf("Validate(): %v", err)
	}
	if _, err := svc.AddDomain(ctx, tnt.ID, nd); err != nil {
		t.Fatalf("AddDomain(): %v", err)
	}
	// prime the cache with the old primary before promoting
	if _, err := svc.ResolveDomain(ctx, "umoja.test"); err != nil {
		t.Fatalf("ResolveDomain(): %v", err)
	}
	if err := svc.SetPrimaryDomain(ctx, tnt.ID, "portal.umoja.test"); err != nil {
		t.Fatalf("SetPrimaryDomain(): %v", err)
	}
	// promotion drops cached lookups for every hostname of the tenant
	resolved, err := svc.ResolveDomain(ctx, "umoja.test")
	if err != nil {
		t.Fatalf("ResolveDomain(): %v", err)
	}
	if resolved.PrimaryDomain() != "portal.umoja.test" {
		t.Errorf("resolved primary domain = %q; want %q", resolved.PrimaryDomain(), "portal.umoja.test")
	}
	refreshed, err := svc.GetByID(ctx, tnt.ID)
	if err != nil {
		t.Fatalf("GetByID(): %v", err)
	}
	if refreshed.PrimaryDomain() != "portal.umoja.test" {
		t.Errorf("primary domain = %q; want %q", refreshed.PrimaryDomain(), "portal.umoja.test")
	}
	var primaries int
	for _, d := range refreshed.Domains {
		if d.IsPrimary {
			primaries++
		}
	}
	if primaries != 1 {
		t.Errorf("primaries = %d; want exactly 1", primaries)
	}
}
