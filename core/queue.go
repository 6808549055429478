package core

import (
	"context"
	"encoding/json"
)

// Task names.
const (
	TaskSendEmail      = "send_email"
	TaskEventReminders = "event_reminders"
	TaskOverdueSweep   = "library_overdue_sweep"
	TaskActivityReport = "activity_report"
)

// Task is a unit of deferred work handed off to the background worker.
// Attempt counts deliveries; it starts at 1 on first publish.
type Task struct {
	Name     string          `json:"name"`
	TenantID string          `json:"tenant_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Attempt  int             `json:"attempt"`
}

// TaskQueue is any service that can enqueue background tasks.
// Execution is at-least-once; the request path never blocks on it.
type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) error
}

// NewTask marshals payload into a Task. A nil payload is allowed.
func NewTask(name, tenantID string, payload interface{}) (Task, error) {
	t := Task{Name: name, TenantID: tenantID, Attempt: 1}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Task{}, err
		}
		t.Payload = data
	}
	return t, nil
}
