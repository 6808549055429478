package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core/tenant"
)

type dbTenant struct {
	ID                string    `db:"id"`
	Name              string    `db:"name"`
	Slug              string    `db:"slug"`
	Description       string    `db:"description"`
	Email             string    `db:"email"`
	Phone             string    `db:"phone"`
	Address           string    `db:"address"`
	City              string    `db:"city"`
	Country           string    `db:"country"`
	PostalCode        string    `db:"postal_code"`
	PrimaryColor      string    `db:"primary_color"`
	SubscriptionType  string    `db:"subscription_type"`
	SubscriptionStart time.Time `db:"subscription_start"`
	SubscriptionEnd   time.Time `db:"subscription_end"`
	IsActive          bool      `db:"is_active"`
	MaxStudents       int       `db:"max_students"`
	MaxStaff          int       `db:"max_staff"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (t dbTenant) unmarshal() tenant.Tenant {
	return tenant.Tenant{
		ID:                t.ID,
		Name:              t.Name,
		Slug:              t.Slug,
		Description:       t.Description,
		Email:             t.Email,
		Phone:             t.Phone,
		Address:           t.Address,
		City:              t.City,
		Country:           t.Country,
		PostalCode:        t.PostalCode,
		PrimaryColor:      t.PrimaryColor,
		SubscriptionType:  t.SubscriptionType,
		SubscriptionStart: t.SubscriptionStart.UTC(),
		SubscriptionEnd:   t.SubscriptionEnd.UTC(),
		IsActive:          t.IsActive,
		MaxStudents:       t.MaxStudents,
		MaxStaff:          t.MaxStaff,
		CreatedAt:         t.CreatedAt.UTC(),
		UpdatedAt:         t.UpdatedAt.UTC(),
	}
}

type dbDomain struct {
	ID        string `db:"id"`
	TenantID  string `db:"tenant_id"`
	Host      string `db:"host"`
	IsPrimary bool   `db:"is_primary"`
}

func (d dbDomain) unmarshal() tenant.Domain {
	return tenant.Domain(d)
}

type tenantRepository struct {
	db *sqlx.DB
}

var _ tenant.Repository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(db *sqlx.DB) *tenantRepository {
	return &tenantRepository{db: db}
}

func (repo tenantRepository) CheckTenantUniqueness(ctx context.Context, name, slug, host string) error {
	if name != "" {
		var exists bool
		if err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM tenant WHERE name = $1)`, name); err != nil {
			return errors.Wrap(err, "checking tenant name")
		}
		if exists {
			return tenant.ErrNameExists
		}
	}
	if slug != "" {
		var exists bool
		if err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM tenant WHERE slug = $1)`, slug); err != nil {
			return errors.Wrap(err, "checking tenant slug")
		}
		if exists {
			return tenant.ErrSlugExists
		}
	}
	if host != "" {
		var exists bool
		if err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM domain WHERE host = $1)`, host); err != nil {
			return errors.Wrap(err, "checking domain host")
		}
		if exists {
			return tenant.ErrDomainExists
		}
	}
	return nil
}

func (repo tenantRepository) CreateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO tenant (id, name, slug, description, email, phone, address, city, country, postal_code,
		                    primary_color, subscription_type, subscription_start, subscription_end,
		                    is_active, max_students, max_staff, created_at, updated_at)
		VALUES (:id, :name, :slug, :description, :email, :phone, :address, :city, :country, :postal_code,
		        :primary_color, :subscription_type, :subscription_start, :subscription_end,
		        :is_active, :max_students, :max_staff, :created_at, :updated_at)`,
		marshalTenant(t))
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "creating tenant")
	}

	for _, d := range t.Domains {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO domain (id, tenant_id, host, is_primary)
			VALUES (:id, :tenant_id, :host, :is_primary)`, dbDomain(d))
		if err != nil {
			return tenant.Tenant{}, errors.Wrap(err, "creating domain")
		}
	}

	if err = tx.Commit(); err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "committing tenant")
	}
	return t, nil
}

func marshalTenant(t tenant.Tenant) dbTenant {
	return dbTenant{
		ID:                t.ID,
		Name:              t.Name,
		Slug:              t.Slug,
		Description:       t.Description,
		Email:             t.Email,
		Phone:             t.Phone,
		Address:           t.Address,
		City:              t.City,
		Country:           t.Country,
		PostalCode:        t.PostalCode,
		PrimaryColor:      t.PrimaryColor,
		SubscriptionType:  t.SubscriptionType,
		SubscriptionStart: t.SubscriptionStart.UTC(),
		SubscriptionEnd:   t.SubscriptionEnd.UTC(),
		IsActive:          t.IsActive,
		MaxStudents:       t.MaxStudents,
		MaxStaff:          t.MaxStaff,
		CreatedAt:         t.CreatedAt.UTC(),
		UpdatedAt:         t.UpdatedAt.UTC(),
	}
}

func (repo tenantRepository) loadDomains(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	var ds []dbDomain
	if err := repo.db.SelectContext(ctx, &ds, `SELECT * FROM domain WHERE tenant_id = $1 ORDER BY is_primary DESC, host`, t.ID); err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "loading domains")
	}
	t.Domains = make([]tenant.Domain, 0, len(ds))
	for _, d := range ds {
		t.Domains = append(t.Domains, d.unmarshal())
	}
	return t, nil
}

func (repo tenantRepository) getTenant(ctx context.Context, q string, arg interface{}) (tenant.Tenant, error) {
	var t dbTenant
	err := repo.db.GetContext(ctx, &t, q, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return tenant.Tenant{}, tenant.ErrNotFound
		}
		return tenant.Tenant{}, errors.Wrap(err, "getting tenant")
	}
	return repo.loadDomains(ctx, t.unmarshal())
}

func (repo tenantRepository) GetTenantByID(ctx context.Context, id string) (tenant.Tenant, error) {
	return repo.getTenant(ctx, `SELECT * FROM tenant WHERE id = $1`, id)
}

func (repo tenantRepository) GetTenantBySlug(ctx context.Context, slug string) (tenant.Tenant, error) {
	return repo.getTenant(ctx, `SELECT * FROM tenant WHERE slug = $1`, slug)
}

func (repo tenantRepository) GetTenantByDomain(ctx context.Context, host string) (tenant.Tenant, error) {
	var t dbTenant
	err := repo.db.GetContext(ctx, &t, `
		SELECT t.* FROM tenant t
		JOIN domain d ON d.tenant_id = t.id
		WHERE d.host = $1`, host)
	if err != nil {
		if err == sql.ErrNoRows {
			return tenant.Tenant{}, tenant.ErrDomainNotFound
		}
		return tenant.Tenant{}, errors.Wrap(err, "getting tenant by domain")
	}
	return repo.loadDomains(ctx, t.unmarshal())
}

func (repo tenantRepository) QueryAllTenants(ctx context.Context) ([]tenant.Tenant, error) {
	var ts []dbTenant
	if err := repo.db.SelectContext(ctx, &ts, `SELECT * FROM tenant ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "querying tenants")
	}
	res := make([]tenant.Tenant, 0, len(ts))
	for _, t := range ts {
		loaded, err := repo.loadDomains(ctx, t.unmarshal())
		if err != nil {
			return nil, err
		}
		res = append(res, loaded)
	}
	return res, nil
}

func (repo tenantRepository) UpdateTenant(ctx context.Context, t tenant.Tenant, isActive *bool) (tenant.Tenant, error) {
	q := `UPDATE tenant SET updated_at = :updated_at,
	        description = :description, phone = :phone, address = :address, city = :city,
	        country = :country, postal_code = :postal_code`
	if t.Name != "" {
		q += `, name = :name`
	}
	if t.Email != "" {
		q += `, email = :email`
	}
	if t.PrimaryColor != "" {
		q += `, primary_color = :primary_color`
	}
	if t.SubscriptionType != "" {
		q += `, subscription_type = :subscription_type`
	}
	if !t.SubscriptionEnd.IsZero() {
		q += `, subscription_end = :subscription_end`
	}
	arg := map[string]interface{}{
		"id":                t.ID,
		"updated_at":        t.UpdatedAt.UTC(),
		"name":              t.Name,
		"description":       t.Description,
		"email":             t.Email,
		"phone":             t.Phone,
		"address":           t.Address,
		"city":              t.City,
		"country":           t.Country,
		"postal_code":       t.PostalCode,
		"primary_color":     t.PrimaryColor,
		"subscription_type": t.SubscriptionType,
		"subscription_end":  t.SubscriptionEnd.UTC(),
	}
	if isActive != nil {
		q += `, is_active = :is_active`
		arg["is_active"] = *isActive
	}
	q += ` WHERE id = :id`

	res, err := repo.db.NamedExecContext(ctx, q, arg)
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "updating tenant")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	return repo.GetTenantByID(ctx, t.ID)
}

func (repo tenantRepository) CreateDomain(ctx context.Context, d tenant.Domain) (tenant.Domain, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO domain (id, tenant_id, host, is_primary)
		VALUES (:id, :tenant_id, :host, :is_primary)`, dbDomain(d))
	if err != nil {
		return tenant.Domain{}, errors.Wrap(err, "creating domain")
	}
	return d, nil
}

func (repo tenantRepository) DeleteDomain(ctx context.Context, tenantID, host string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM domain WHERE tenant_id = $1 AND host = $2 AND NOT is_primary`, tenantID, host)
	if err != nil {
		return errors.Wrap(err, "deleting domain")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var isPrimary bool
		err = repo.db.GetContext(ctx, &isPrimary, `SELECT is_primary FROM domain WHERE tenant_id = $1 AND host = $2`, tenantID, host)
		if err == nil && isPrimary {
			return tenant.ErrPrimaryDomain
		}
		return tenant.ErrDomainNotFound
	}
	return nil
}

func (repo tenantRepository) SetPrimaryDomain(ctx context.Context, tenantID, host string) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `UPDATE domain SET is_primary = FALSE WHERE tenant_id = $1 AND is_primary`, tenantID); err != nil {
		return errors.Wrap(err, "clearing primary domain")
	}
	res, err := tx.ExecContext(ctx, `UPDATE domain SET is_primary = TRUE WHERE tenant_id = $1 AND host = $2`, tenantID, host)
	if err != nil {
		return errors.Wrap(err, "setting primary domain")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tenant.ErrDomainNotFound
	}
	return errors.Wrap(tx.Commit(), "committing primary domain")
}
