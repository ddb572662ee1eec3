package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docwallet-hq/agent/pkg/command"
	"github.com/docwallet-hq/agent/pkg/model"
)

// scheduleHorizon bounds how far ahead nextRun probes, minute by
// minute, for a cron expression's next occurrence.
const scheduleHorizon = 366 * 24 * time.Hour

// ScheduleTick re-emits every due Schedule as a fresh, pre-approved
// Command (spec §4.7.6). Scheduled commands skip the approval gate
// since the schedule itself was approved at creation time.
func (c *Context) ScheduleTick(ctx context.Context) error {
	now := time.Now()
	due, err := c.Repo.ListDueSchedules(ctx, now)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}
	for _, s := range due {
		if err := c.fireSchedule(ctx, s, now); err != nil {
			c.Logger.Error("schedule: fire failed", "schedule_id", s.ID, "error", err)
		}
	}
	return nil
}

func (c *Context) fireSchedule(ctx context.Context, s *model.Schedule, now time.Time) error {
	kind := command.Kind(s.Kind)
	args, err := command.Parse(kind, s.Args)
	if err != nil {
		// The repository has no method to flip Schedule.Enabled directly;
		// pushing next_run_at a century out is the practical disable.
		c.Logger.Error("schedule: inner command no longer parses, disabling", "schedule_id", s.ID, "error", err)
		return c.Repo.MarkScheduleRun(ctx, s.ID, now, now.AddDate(100, 0, 0))
	}

	raw, err := command.Format(kind, args)
	if err != nil {
		raw = s.Kind
	}

	cmd := &model.Command{
		ID:         model.CommandID(uuid.NewString()),
		DocumentID: s.DocumentID,
		TableName:  TableCommands,
		RowIndex:   -(int(now.UnixNano()%1_000_000) + 1),
		Kind:       s.Kind,
		RawText:    fmt.Sprintf("[SCHED:%s#%d] %s", s.ID, now.Unix(), raw),
		Args:       s.Args,
		Status:     model.StatusApproved,
		Channel:    "scheduler",
	}
	if err := c.Repo.CreateCommand(ctx, cmd); err != nil {
		return fmt.Errorf("create scheduled command: %w", err)
	}
	c.Metrics.SchedulesEmitted.Inc()
	_ = c.Audit.LogScheduleEmit(ctx, string(s.DocumentID), string(s.ID), string(cmd.ID))

	if doc, err := c.Repo.GetDocument(ctx, s.DocumentID); err == nil {
		_ = c.Adapter.AppendActivity(ctx, doc.ExternalDocID, "schedule fired: "+raw)
	}

	return c.Repo.MarkScheduleRun(ctx, s.ID, now, c.nextRun(s, now))
}

// nextRun computes a schedule's next firing time: the cron expression's
// next due minute if one is set, otherwise a fixed interval offset.
// adhocore/gronx exposes IsDue but no direct "next occurrence after X"
// function, so a cron schedule's next run is found by probing forward
// minute by minute (cron expressions have minute granularity), capped
// at scheduleHorizon as a safety backstop against
// a cron expression that can never be due again.
func (c *Context) nextRun(s *model.Schedule, from time.Time) time.Time {
	if s.CronExpr == "" {
		interval := s.Interval
		if interval <= 0 {
			interval = time.Hour
		}
		return from.Add(interval)
	}

	t := from.Truncate(time.Minute).Add(time.Minute)
	deadline := from.Add(scheduleHorizon)
	for t.Before(deadline) {
		if due, err := c.cron.IsDue(s.CronExpr, t); err == nil && due {
			return t
		}
		t = t.Add(time.Minute)
	}
	c.Logger.Error("schedule: cron expression never came due within horizon", "schedule_id", s.ID, "cron", s.CronExpr)
	return from.Add(24 * time.Hour)
}
