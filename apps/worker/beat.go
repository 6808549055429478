package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/tenant"
)

// beat periodically enqueues the sweep tasks. It replaces an external
// scheduler; intervals come from Worker config.
type beat struct {
	conf      *core.Config
	logger    core.Logger
	queue     core.TaskQueue
	tenantSvc *tenant.Service
}

func (b *beat) Run(ctx context.Context) {
	reminders := time.NewTicker(b.conf.Worker.EventReminderInterval)
	overdue := time.NewTicker(b.conf.Worker.OverdueSweepInterval)
	reports := time.NewTicker(b.conf.Worker.ActivityReportInterval)
	defer reminders.Stop()
	defer overdue.Stop()
	defer reports.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reminders.C:
			b.enqueue(ctx, core.TaskEventReminders, "")
		case <-overdue.C:
			b.enqueue(ctx, core.TaskOverdueSweep, "")
		case <-reports.C:
			b.enqueueReports(ctx)
		}
	}
}

func (b *beat) enqueue(ctx context.Context, name, tenantID string) {
	task, err := core.NewTask(name, tenantID, nil)
	if err != nil {
		b.logger.Warn(fmt.Sprintf("beat: building task %q failed", name), err)
		return
	}
	if err = b.queue.Enqueue(ctx, task); err != nil {
		b.logger.Warn(fmt.Sprintf("beat: enqueueing task %q failed", name), err)
	}
}

// enqueueReports fans one activity report task out per active tenant.
func (b *beat) enqueueReports(ctx context.Context) {
	tenants, err := b.tenantSvc.QueryAll(ctx)
	if err != nil {
		b.logger.Warn("beat: querying tenants failed", err)
		return
	}
	for _, t := range tenants {
		if !t.IsActive {
			continue
		}
		b.enqueue(ctx, core.TaskActivityReport, t.ID)
	}
}
