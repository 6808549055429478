package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/event"
	"github.com/shuleapp/shule/core/library"
	"github.com/shuleapp/shule/core/tenant"
	"github.com/shuleapp/shule/core/user"
)

// NewConfig returns a config suitable for tests; no external services,
// rate limiting off.
func NewConfig() *core.Config {
	return &core.Config{
		Env:                       "TEST",
		TestMode:                  true,
		AppName:                   "Shule",
		SecretKey:                 "t3st-s3cr3t-k3y",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          "noreply@localhost",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		OTPTimeoutDelta:           10 * time.Minute,
		Server: core.ServerConfig{
			JWTExpirationDelta:        30 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			RateLimitWindow:           time.Minute,
		},
	}
}

func CreateTenant(t *testing.T, repo tenant.Repository, name, host string, isActive bool, subEnd ...time.Time) tenant.Tenant {
	now := time.Now().UTC()
	end := now.AddDate(0, 1, 0)
	if len(subEnd) > 0 {
		end = subEnd[0].UTC()
	}
	tnt := tenant.Tenant{
		ID:                uuid.New().String(),
		Name:              name,
		Slug:              core.Slugify(name),
		Email:             "contact@" + host,
		SubscriptionType:  tenant.SubscriptionMonthly,
		SubscriptionStart: now,
		SubscriptionEnd:   end,
		IsActive:          isActive,
		MaxStudents:       500,
		MaxStaff:          50,
		CreatedAt:         now,
		UpdatedAt:         now,
		Domains: []tenant.Domain{
			{ID: uuid.New().String(), Host: host, IsPrimary: true},
		},
	}
	for i := range tnt.Domains {
		tnt.Domains[i].TenantID = tnt.ID
	}
	tnt, err := repo.CreateTenant(context.Background(), tnt)
	if err != nil {
		t.Fatalf("CreateTenant(): %v", err)
	}
	return tnt
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	tenantID, name, uname, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func CreateSuperuser(t *testing.T, repo user.Repository, name, uname, email, pwd string) user.User {
	now := time.Now().UTC()
	usr := user.User{
		ID:          uuid.New().String(),
		Name:        name,
		Username:    uname,
		Email:       email,
		Role:        user.RoleAdmin,
		IsActive:    true,
		IsSuperuser: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateSuperuser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateSuperuser(): %v", err)
	}
	return usr
}

func CreateBook(t *testing.T, repo library.Repository, tenantID, title, author string, copies int) library.Book {
	now := time.Now().UTC()
	book, err := repo.CreateBook(context.Background(), library.Book{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		Title:           title,
		Author:          author,
		CopiesTotal:     copies,
		CopiesAvailable: copies,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("CreateBook(): %v", err)
	}
	return book
}

func CreateEvent(t *testing.T, repo event.Repository, tenantID, title string, startsAt time.Time, audience string, remind bool) event.Event {
	now := time.Now().UTC()
	ev, err := repo.CreateEvent(context.Background(), event.Event{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		Title:          title,
		StartsAt:       startsAt.UTC(),
		TargetAudience: audience,
		SendReminder:   remind,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("CreateEvent(): %v", err)
	}
	return ev
}
