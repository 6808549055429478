package tenant

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shuleapp/shule/core"
)

// Subscription types
const (
	SubscriptionMonthly = "monthly"
	SubscriptionYearly  = "yearly"
)

// Tenant is one school and its isolated data partition.
// Tenants are never hard-deleted; expired or cancelled schools are
// soft-disabled via IsActive.
type Tenant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`

	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`

	PrimaryColor string `json:"primary_color,omitempty"`

	SubscriptionType  string    `json:"subscription_type"`
	SubscriptionStart time.Time `json:"subscription_start"`
	SubscriptionEnd   time.Time `json:"subscription_end"`
	IsActive          bool      `json:"is_active"`
	MaxStudents       int       `json:"max_students"`
	MaxStaff          int       `json:"max_staff"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC

	Domains []Domain `json:"domains,omitempty"`
}

// SubscriptionValid reports whether the tenant may serve requests at `now`.
func (t *Tenant) SubscriptionValid(now time.Time) bool {
	return t.IsActive && !now.After(t.SubscriptionEnd)
}

// PrimaryDomain returns the primary Domain host or "" when none is loaded.
func (t *Tenant) PrimaryDomain() string {
	for _, d := range t.Domains {
		if d.IsPrimary {
			return d.Host
		}
	}
	return ""
}

// Domain maps a hostname to exactly one Tenant.
// One Tenant may have several Domains; exactly one is primary.
type Domain struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Host      string `json:"host"`
	IsPrimary bool   `json:"is_primary"`
}

// NewTenant contains information needed to register a new school.
type NewTenant struct {
	Name        string `json:"name" validate:"required"`
	Slug        string `json:"slug" validate:"omitempty,slug_"`
	Description string `json:"description"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Country     string `json:"country"`
	PostalCode  string `json:"postal_code"`

	Domain           string `json:"domain" validate:"required,hostname_"`
	SubscriptionType string `json:"subscription_type" validate:"omitempty,oneof=monthly yearly"`
	MaxStudents      int    `json:"max_students" validate:"omitempty,min=1"`
	MaxStaff         int    `json:"max_staff" validate:"omitempty,min=1"`
}

func (nt *NewTenant) Validate(validate *validator.Validate, svc *Service) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Domain = core.CleanString(nt.Domain, true /* lower */)
	if nt.Slug == "" {
		nt.Slug = core.Slugify(nt.Name)
	}
	if nt.SubscriptionType == "" {
		nt.SubscriptionType = SubscriptionMonthly
	}
	if nt.MaxStudents == 0 {
		nt.MaxStudents = 500
	}
	if nt.MaxStaff == 0 {
		nt.MaxStaff = 50
	}

	if err := validate.Struct(nt); err != nil {
		return err
	}
	return svc.checkUniqueness(nt.Name, nt.Slug, nt.Domain)
}

// UpdateTenant defines what information may be provided to modify a school.
type UpdateTenant struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	City         string `json:"city"`
	Country      string `json:"country"`
	PostalCode   string `json:"postal_code"`
	PrimaryColor string `json:"primary_color" validate:"omitempty,hexcolor"`
}

func (ut *UpdateTenant) Validate(validate *validator.Validate, orig Tenant) error {
	if name := core.CleanString(ut.Name); name != "" {
		ut.Name = name
	} else {
		ut.Name = orig.Name
	}
	if email := core.CleanString(ut.Email, true /* lower */); email != "" {
		ut.Email = email
	} else {
		ut.Email = orig.Email
	}
	return validate.Struct(ut)
}

// NewDomain attaches an extra hostname to a tenant.
type NewDomain struct {
	Host      string `json:"host" validate:"required,hostname_"`
	IsPrimary bool   `json:"is_primary"`
}

func (nd *NewDomain) Validate(validate *validator.Validate) error {
	nd.Host = core.CleanString(nd.Host, true /* lower */)
	return validate.Struct(nd)
}

// RenewSubscription extends a tenant's subscription window.
type RenewSubscription struct {
	SubscriptionType string    `json:"subscription_type" validate:"omitempty,oneof=monthly yearly"`
	SubscriptionEnd  time.Time `json:"subscription_end" validate:"required"`
}

func (rs *RenewSubscription) Validate(validate *validator.Validate) error {
	return validate.Struct(rs)
}
