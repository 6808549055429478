package event

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shuleapp/shule/core"
)

// Target audiences
const (
	AudienceAll      = "all"
	AudienceStudents = "students"
	AudienceParents  = "parents"
	AudienceStaff    = "staff"
)

// Event is a school event announcement. Reminder emails go out to the
// target audience the day before StartsAt.
type Event struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Location       string    `json:"location,omitempty"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at,omitempty"`
	TargetAudience string    `json:"target_audience"`
	SendReminder   bool      `json:"send_reminder"`
	ReminderSent   bool      `json:"reminder_sent"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

// NewEvent contains information needed to create an Event.
type NewEvent struct {
	Title          string    `json:"title" validate:"required"`
	Description    string    `json:"description"`
	Location       string    `json:"location"`
	StartsAt       time.Time `json:"starts_at" validate:"required"`
	EndsAt         time.Time `json:"ends_at" validate:"omitempty,gtfield=StartsAt"`
	TargetAudience string    `json:"target_audience" validate:"omitempty,oneof=all students parents staff"`
	SendReminder   *bool     `json:"send_reminder"`
}

func (ne *NewEvent) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	if ne.TargetAudience == "" {
		ne.TargetAudience = AudienceAll
	}
	return validate.Struct(ne)
}

// UpdateEvent defines what may be modified on an existing Event.
type UpdateEvent struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Location       string    `json:"location"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	TargetAudience string    `json:"target_audience" validate:"omitempty,oneof=all students parents staff"`
	SendReminder   *bool     `json:"send_reminder"`
}

func (ue *UpdateEvent) Validate(validate *validator.Validate, orig Event) error {
	if title := core.CleanString(ue.Title); title != "" {
		ue.Title = title
	} else {
		ue.Title = orig.Title
	}
	if ue.StartsAt.IsZero() {
		ue.StartsAt = orig.StartsAt
	}
	if ue.TargetAudience == "" {
		ue.TargetAudience = orig.TargetAudience
	}
	return validate.Struct(ue)
}
