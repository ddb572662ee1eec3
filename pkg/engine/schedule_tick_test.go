package engine

import (
	"context"
	"testing"
	"time"

	"github.com/docwallet-hq/agent/pkg/command"
	"github.com/docwallet-hq/agent/pkg/model"
)

func TestScheduleTick_EmitsCommandForDueSchedule(t *testing.T) {
	c, _ := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-sched")

	s := &model.Schedule{
		ID:         "sched-1",
		DocumentID: doc.ID,
		Kind:       string(command.KindBalanceCheck),
		Args:       mustJSON(t, command.BalanceCheckArgs{Asset: "USDC"}),
		Interval:   time.Hour,
		NextRunAt:  time.Now().Add(-time.Minute),
		Enabled:    true,
	}
	if err := c.Repo.CreateSchedule(ctx, s); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	if err := c.ScheduleTick(ctx); err != nil {
		t.Fatalf("ScheduleTick: %v", err)
	}

	cmds, err := c.Repo.ListCommandsByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListCommandsByDocument: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("expected one emitted command, got %d", len(cmds))
	}
	if cmds[0].Status != model.StatusApproved {
		t.Fatalf("expected the scheduled command to be pre-approved, got %s", cmds[0].Status)
	}
}

func TestScheduleTick_DisablesUnparseableSchedule(t *testing.T) {
	c, _ := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-sched-bad")

	s := &model.Schedule{
		ID:         "sched-2",
		DocumentID: doc.ID,
		Kind:       "not_a_real_kind",
		Args:       mustJSON(t, map[string]string{}),
		Interval:   time.Hour,
		NextRunAt:  time.Now().Add(-time.Minute),
		Enabled:    true,
	}
	if err := c.Repo.CreateSchedule(ctx, s); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	if err := c.ScheduleTick(ctx); err != nil {
		t.Fatalf("ScheduleTick: %v", err)
	}

	due, err := c.Repo.ListDueSchedules(ctx, time.Now().AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("ListDueSchedules: %v", err)
	}
	for _, s := range due {
		if s.ID == "sched-2" {
			t.Fatal("expected the unparseable schedule to be pushed out of the near-term due window")
		}
	}
}

func TestNextRun_CronExpressionAdvancesByMinute(t *testing.T) {
	c, _ := newTestContext(t)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &model.Schedule{CronExpr: "* * * * *"}

	next := c.nextRun(s, from)
	if !next.After(from) {
		t.Fatalf("expected next run to be after %v, got %v", from, next)
	}
	if next.Sub(from) > 2*time.Minute {
		t.Fatalf("expected a wildcard cron to fire within a couple minutes, got %v later", next.Sub(from))
	}
}
