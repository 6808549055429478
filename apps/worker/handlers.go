package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/mail"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/event"
	"github.com/shuleapp/shule/core/library"
	"github.com/shuleapp/shule/core/tenant"
	"github.com/shuleapp/shule/core/user"
)

type taskHandlers struct {
	conf       *core.Config
	logger     core.Logger
	mailSvc    core.EmailService
	queue      core.TaskQueue
	tenantSvc  *tenant.Service
	userSvc    *user.Service
	eventSvc   *event.Service
	librarySvc *library.Service
}

// Handle dispatches one task by name. Unknown names are an error so the
// queue never silently swallows a misrouted task.
func (h *taskHandlers) Handle(ctx context.Context, task core.Task) error {
	switch task.Name {
	case core.TaskSendEmail:
		return h.sendEmail(ctx, task)
	case core.TaskEventReminders:
		return h.eventReminders(ctx)
	case core.TaskOverdueSweep:
		return h.overdueSweep(ctx)
	case core.TaskActivityReport:
		return h.activityReport(ctx, task)
	default:
		return errors.Errorf("unknown task %q", task.Name)
	}
}

func (h *taskHandlers) sendEmail(_ context.Context, task core.Task) error {
	var msg core.EmailMessage
	if err := json.Unmarshal(task.Payload, &msg); err != nil {
		return errors.Wrap(err, "unmarshaling email payload")
	}
	if !msg.HasRecipients() {
		return nil
	}
	h.mailSvc.SendMessages(&msg)
	return nil
}

// eventReminders emails every audience member of events starting within
// the next day, then marks them so the sweep never mails twice.
func (h *taskHandlers) eventReminders(ctx context.Context) error {
	events, err := h.eventSvc.DueForReminder(ctx, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "querying due events")
	}

	for _, ev := range events {
		tnt, err := h.tenantSvc.GetByID(ctx, ev.TenantID)
		if err != nil {
			return errors.Wrapf(err, "loading tenant %s", ev.TenantID)
		}
		recipients, err := h.recipientsFor(ctx, ev.TenantID, ev.TargetAudience)
		if err != nil {
			return errors.Wrapf(err, "resolving audience for event %s", ev.ID)
		}

		body := fmt.Sprintf("Reminder: %s starts on %s.", ev.Title, ev.StartsAt.Format("Mon, 02 Jan 2006 15:04"))
		if ev.Location != "" {
			body += fmt.Sprintf("\nLocation: %s", ev.Location)
		}
		for _, usr := range recipients {
			h.enqueueEmail(ctx, ev.TenantID, core.EmailMessage{
				To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
				Subject: fmt.Sprintf("[%s] Upcoming event: %s", tnt.Name, ev.Title),
				Body:    fmt.Sprintf("Dear %s,\n\n%s", usr.Name, body),
			})
		}

		if err = h.eventSvc.MarkReminderSent(ctx, ev.TenantID, ev.ID); err != nil {
			return errors.Wrapf(err, "marking reminder sent for event %s", ev.ID)
		}
	}
	return nil
}

// overdueSweep flips open loans past their due date and emails the
// borrowers.
func (h *taskHandlers) overdueSweep(ctx context.Context) error {
	records, err := h.librarySvc.MarkOverdue(ctx, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "marking overdue loans")
	}

	for _, rec := range records {
		usr, err := h.userSvc.GetByID(ctx, rec.UserID)
		if err != nil {
			h.logger.Warn(fmt.Sprintf("overdue sweep: borrower %s not found", rec.UserID), err)
			continue
		}
		book, err := h.librarySvc.GetBook(ctx, rec.TenantID, rec.BookID)
		if err != nil {
			h.logger.Warn(fmt.Sprintf("overdue sweep: book %s not found", rec.BookID), err)
			continue
		}
		tnt, err := h.tenantSvc.GetByID(ctx, rec.TenantID)
		if err != nil {
			return errors.Wrapf(err, "loading tenant %s", rec.TenantID)
		}

		h.enqueueEmail(ctx, rec.TenantID, core.EmailMessage{
			To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject: fmt.Sprintf("[%s] Overdue book: %s", tnt.Name, book.Title),
			Body: fmt.Sprintf("Dear %s,\n\n%q was due on %s. Please return it to the library.",
				usr.Name, book.Title, rec.DueDate.Format("Mon, 02 Jan 2006")),
		})
	}
	return nil
}

// activityReport emails a CSV summary of the tenant's activity to its
// direction and admin staff.
func (h *taskHandlers) activityReport(ctx context.Context, task core.Task) error {
	tnt, err := h.tenantSvc.GetByID(ctx, task.TenantID)
	if err != nil {
		return errors.Wrapf(err, "loading tenant %s", task.TenantID)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"metric", "value"})
	for _, role := range user.AllRoles {
		n, err := h.userSvc.Count(ctx, tnt.ID, role)
		if err != nil {
			return errors.Wrapf(err, "counting %s users", role)
		}
		_ = w.Write([]string{role + "s", strconv.Itoa(n)})
	}
	events, err := h.eventSvc.Query(ctx, tnt.ID, time.Time{}, time.Time{})
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	_ = w.Write([]string{"events", strconv.Itoa(len(events))})
	loans, err := h.librarySvc.QueryBorrows(ctx, tnt.ID, "")
	if err != nil {
		return errors.Wrap(err, "querying loans")
	}
	_ = w.Write([]string{"loans", strconv.Itoa(len(loans))})
	w.Flush()

	recipients, err := h.recipientsFor(ctx, tnt.ID, event.AudienceStaff)
	if err != nil {
		return errors.Wrap(err, "resolving staff recipients")
	}
	to := make([]mail.Address, 0, len(recipients))
	for _, usr := range recipients {
		if usr.IsDirection() || usr.IsAdmin() {
			to = append(to, mail.Address{Name: usr.Name, Address: usr.Email})
		}
	}

	h.enqueueEmail(ctx, tnt.ID, core.EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("[%s] Activity report", tnt.Name),
		Body:    fmt.Sprintf("Activity summary as of %s:\n\n%s", time.Now().UTC().Format("2006-01-02"), buf.String()),
	})
	return nil
}

// recipientsFor resolves a target audience to its active users.
func (h *taskHandlers) recipientsFor(ctx context.Context, tenantID, audience string) ([]user.User, error) {
	var roles []string
	switch audience {
	case event.AudienceStudents:
		roles = []string{user.RoleStudent}
	case event.AudienceParents:
		roles = []string{user.RoleParent}
	case event.AudienceStaff:
		roles = user.StaffRoles
	default:
		roles = []string{""} // all roles
	}

	active := true
	var recipients []user.User
	for _, role := range roles {
		users, err := h.userSvc.Filter(ctx, tenantID, user.QueryFilter{Role: role, IsActive: &active})
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, users...)
	}
	return recipients, nil
}

func (h *taskHandlers) enqueueEmail(ctx context.Context, tenantID string, msg core.EmailMessage) {
	task, err := core.NewTask(core.TaskSendEmail, tenantID, msg)
	if err != nil {
		h.logger.Warn("marshaling email task failed", err)
		return
	}
	if err = h.queue.Enqueue(ctx, task); err != nil {
		h.logger.Warn("enqueueing email task failed", err)
	}
}
