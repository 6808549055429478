package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an event does not exist within the tenant.
var ErrNotFound = errors.New("event not found")

type (
	Repository interface {
		CreateEvent(ctx context.Context, ev Event) (Event, error)
		GetEventByID(ctx context.Context, tenantID, id string) (Event, error)
		QueryEvents(ctx context.Context, tenantID string, from, to time.Time) ([]Event, error)
		UpdateEvent(ctx context.Context, ev Event) (Event, error)
		DeleteEvent(ctx context.Context, tenantID, id string) error
		// QueryEventsDueForReminder returns unreminded events starting
		// within [from, to) across all tenants.
		QueryEventsDueForReminder(ctx context.Context, from, to time.Time) ([]Event, error)
		MarkReminderSent(ctx context.Context, tenantID, id string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, tenantID, createdBy string, ne NewEvent) (Event, error) {
	now := time.Now().UTC()
	sendReminder := true
	if ne.SendReminder != nil {
		sendReminder = *ne.SendReminder
	}
	ev := Event{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		Title:          ne.Title,
		Description:    ne.Description,
		Location:       ne.Location,
		StartsAt:       ne.StartsAt.UTC(),
		EndsAt:         ne.EndsAt.UTC(),
		TargetAudience: ne.TargetAudience,
		SendReminder:   sendReminder,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return svc.repo.CreateEvent(ctx, ev)
}

func (svc *Service) GetByID(ctx context.Context, tenantID, id string) (Event, error) {
	return svc.repo.GetEventByID(ctx, tenantID, id)
}

func (svc *Service) Query(ctx context.Context, tenantID string, from, to time.Time) ([]Event, error) {
	return svc.repo.QueryEvents(ctx, tenantID, from, to)
}

func (svc *Service) Update(ctx context.Context, tenantID, id string, ue UpdateEvent) (Event, error) {
	orig, err := svc.repo.GetEventByID(ctx, tenantID, id)
	if err != nil {
		return Event{}, err
	}
	orig.Title = ue.Title
	orig.Description = ue.Description
	orig.Location = ue.Location
	orig.StartsAt = ue.StartsAt.UTC()
	if !ue.EndsAt.IsZero() {
		orig.EndsAt = ue.EndsAt.UTC()
	}
	orig.TargetAudience = ue.TargetAudience
	if ue.SendReminder != nil {
		orig.SendReminder = *ue.SendReminder
		if *ue.SendReminder {
			orig.ReminderSent = false
		}
	}
	orig.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateEvent(ctx, orig)
}

func (svc *Service) Delete(ctx context.Context, tenantID, id string) error {
	return svc.repo.DeleteEvent(ctx, tenantID, id)
}

// DueForReminder returns events starting within the next day that still
// need a reminder. The sweep runs across tenants; each returned event
// carries its own tenant key.
func (svc *Service) DueForReminder(ctx context.Context, now time.Time) ([]Event, error) {
	from := now.UTC()
	return svc.repo.QueryEventsDueForReminder(ctx, from, from.Add(24*time.Hour))
}

func (svc *Service) MarkReminderSent(ctx context.Context, tenantID, id string) error {
	return svc.repo.MarkReminderSent(ctx, tenantID, id)
}
