package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core/event"
)

type dbEvent struct {
	ID             string         `db:"id"`
	TenantID       string         `db:"tenant_id"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	Location       string         `db:"location"`
	StartsAt       time.Time      `db:"starts_at"`
	EndsAt         sql.NullTime   `db:"ends_at"`
	TargetAudience string         `db:"target_audience"`
	SendReminder   bool           `db:"send_reminder"`
	ReminderSent   bool           `db:"reminder_sent"`
	CreatedBy      sql.NullString `db:"created_by"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (e dbEvent) unmarshal() event.Event {
	ev := event.Event{
		ID:             e.ID,
		TenantID:       e.TenantID,
		Title:          e.Title,
		Description:    e.Description,
		Location:       e.Location,
		StartsAt:       e.StartsAt.UTC(),
		TargetAudience: e.TargetAudience,
		SendReminder:   e.SendReminder,
		ReminderSent:   e.ReminderSent,
		CreatedBy:      e.CreatedBy.String,
		CreatedAt:      e.CreatedAt.UTC(),
		UpdatedAt:      e.UpdatedAt.UTC(),
	}
	if e.EndsAt.Valid {
		ev.EndsAt = e.EndsAt.Time.UTC()
	}
	return ev
}

func marshalEvent(ev event.Event) dbEvent {
	return dbEvent{
		ID:             ev.ID,
		TenantID:       ev.TenantID,
		Title:          ev.Title,
		Description:    ev.Description,
		Location:       ev.Location,
		StartsAt:       ev.StartsAt.UTC(),
		EndsAt:         sql.NullTime{Time: ev.EndsAt.UTC(), Valid: !ev.EndsAt.IsZero()},
		TargetAudience: ev.TargetAudience,
		SendReminder:   ev.SendReminder,
		ReminderSent:   ev.ReminderSent,
		CreatedBy:      sql.NullString{String: ev.CreatedBy, Valid: ev.CreatedBy != ""},
		CreatedAt:      ev.CreatedAt.UTC(),
		UpdatedAt:      ev.UpdatedAt.UTC(),
	}
}

type eventRepository struct {
	db *sqlx.DB
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *sqlx.DB) *eventRepository {
	return &eventRepository{db: db}
}

func (repo eventRepository) CreateEvent(ctx context.Context, ev event.Event) (event.Event, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO event (id, tenant_id, title, description, location, starts_at, ends_at,
		                   target_audience, send_reminder, reminder_sent, created_by, created_at, updated_at)
		VALUES (:id, :tenant_id, :title, :description, :location, :starts_at, :ends_at,
		        :target_audience, :send_reminder, :reminder_sent, :created_by, :created_at, :updated_at)`,
		marshalEvent(ev))
	if err != nil {
		return event.Event{}, errors.Wrap(err, "creating event")
	}
	return ev, nil
}

func (repo eventRepository) GetEventByID(ctx context.Context, tenantID, id string) (event.Event, error) {
	var e dbEvent
	err := repo.db.GetContext(ctx, &e, `SELECT * FROM event WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, errors.Wrap(err, "getting event")
	}
	return e.unmarshal(), nil
}

func (repo eventRepository) QueryEvents(ctx context.Context, tenantID string, from, to time.Time) ([]event.Event, error) {
	q := `SELECT * FROM event WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if !from.IsZero() {
		q += ` AND starts_at >= $2`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		q += fmt.Sprintf(` AND starts_at < $%d`, len(args)+1)
		args = append(args, to.UTC())
	}
	q += ` ORDER BY starts_at`

	var es []dbEvent
	if err := repo.db.SelectContext(ctx, &es, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	res := make([]event.Event, 0, len(es))
	for _, e := range es {
		res = append(res, e.unmarshal())
	}
	return res, nil
}

func (repo eventRepository) UpdateEvent(ctx context.Context, ev event.Event) (event.Event, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE event SET title = :title, description = :description, location = :location,
		                 starts_at = :starts_at, ends_at = :ends_at, target_audience = :target_audience,
		                 send_reminder = :send_reminder, reminder_sent = :reminder_sent, updated_at = :updated_at
		WHERE tenant_id = :tenant_id AND id = :id`, marshalEvent(ev))
	if err != nil {
		return event.Event{}, errors.Wrap(err, "updating event")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return event.Event{}, event.ErrNotFound
	}
	return ev, nil
}

func (repo eventRepository) DeleteEvent(ctx context.Context, tenantID, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM event WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return errors.Wrap(err, "deleting event")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return event.ErrNotFound
	}
	return nil
}

func (repo eventRepository) QueryEventsDueForReminder(ctx context.Context, from, to time.Time) ([]event.Event, error) {
	var es []dbEvent
	err := repo.db.SelectContext(ctx, &es, `
		SELECT * FROM event
		WHERE send_reminder AND NOT reminder_sent
		  AND starts_at >= $1 AND starts_at < $2
		ORDER BY tenant_id, starts_at`, from.UTC(), to.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "querying events due for reminder")
	}
	res := make([]event.Event, 0, len(es))
	for _, e := range es {
		res = append(res, e.unmarshal())
	}
	return res, nil
}

func (repo eventRepository) MarkReminderSent(ctx context.Context, tenantID, id string) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE event SET reminder_sent = TRUE WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return errors.Wrap(err, "marking reminder sent")
}
