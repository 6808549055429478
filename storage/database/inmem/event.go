package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/shuleapp/shule/core/event"
)

type eventRepository struct {
	db *DB
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *DB) *eventRepository {
	return &eventRepository{db: db}
}

func (repo *eventRepository) CreateEvent(ctx context.Context, ev event.Event) (event.Event, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.events[ev.ID] = &ev
	return ev, nil
}

func (repo *eventRepository) GetEventByID(ctx context.Context, tenantID, id string) (event.Event, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ev, ok := repo.db.events[id]; ok && ev.TenantID == tenantID {
		return *ev, nil
	}
	return event.Event{}, event.ErrNotFound
}

func (repo *eventRepository) QueryEvents(ctx context.Context, tenantID string, from, to time.Time) ([]event.Event, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var events []event.Event
	for _, ev := range repo.db.events {
		if ev.TenantID != tenantID {
			continue
		}
		if !from.IsZero() && ev.StartsAt.Before(from) {
			continue
		}
		if !to.IsZero() && !ev.StartsAt.Before(to) {
			continue
		}
		events = append(events, *ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartsAt.Before(events[j].StartsAt) })
	return events, nil
}

func (repo *eventRepository) UpdateEvent(ctx context.Context, ev event.Event) (event.Event, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.events[ev.ID]
	if !ok || orig.TenantID != ev.TenantID {
		return event.Event{}, event.ErrNotFound
	}
	reminderSent := orig.ReminderSent
	*orig = ev
	orig.ReminderSent = reminderSent
	return *orig, nil
}

func (repo *eventRepository) DeleteEvent(ctx context.Context, tenantID, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if ev, ok := repo.db.events[id]; ok && ev.TenantID == tenantID {
		delete(repo.db.events, id)
		return nil
	}
	return event.ErrNotFound
}

func (repo *eventRepository) QueryEventsDueForReminder(ctx context.Context, from, to time.Time) ([]event.Event, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var events []event.Event
	for _, ev := range repo.db.events {
		if !ev.SendReminder || ev.ReminderSent {
			continue
		}
		if ev.StartsAt.Before(from) || !ev.StartsAt.Before(to) {
			continue
		}
		events = append(events, *ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartsAt.Before(events[j].StartsAt) })
	return events, nil
}

func (repo *eventRepository) MarkReminderSent(ctx context.Context, tenantID, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if ev, ok := repo.db.events[id]; ok && ev.TenantID == tenantID {
		ev.ReminderSent = true
		return nil
	}
	return event.ErrNotFound
}
