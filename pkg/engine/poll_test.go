package engine

import (
	"context"
	"testing"

	"github.com/docwallet-hq/agent/pkg/docadapter"
	"github.com/docwallet-hq/agent/pkg/model"
)

func TestPollTick_CreatesPendingCommandFromNewRow(t *testing.T) {
	c, adapter := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-a")
	adapter.Seed("doc-a", TableCommands, []docadapter.Row{
		{TableName: TableCommands, RowIndex: 0, Text: "transfer 10 USDC to 0xabc"},
	})

	if err := c.PollTick(ctx); err != nil {
		t.Fatalf("PollTick: %v", err)
	}

	cmd, err := c.Repo.FindCommandByCell(ctx, doc.ID, TableCommands, 0)
	if err != nil {
		t.Fatalf("FindCommandByCell: %v", err)
	}
	if cmd.Status != model.StatusPending {
		t.Fatalf("expected pending status, got %s", cmd.Status)
	}
	if cmd.Kind != "transfer" {
		t.Fatalf("expected transfer kind, got %s", cmd.Kind)
	}
}

func TestPollTick_AutoApprovesReadOnlyCommand(t *testing.T) {
	c, adapter := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-b")
	adapter.Seed("doc-b", TableCommands, []docadapter.Row{
		{TableName: TableCommands, RowIndex: 0, Text: "balance USDC"},
	})

	if err := c.PollTick(ctx); err != nil {
		t.Fatalf("PollTick: %v", err)
	}

	cmd, err := c.Repo.FindCommandByCell(ctx, doc.ID, TableCommands, 0)
	if err != nil {
		t.Fatalf("FindCommandByCell: %v", err)
	}
	if cmd.Status != model.StatusApproved {
		t.Fatalf("expected balance_check to auto-approve, got %s", cmd.Status)
	}
}

func TestPollTick_SkipsReconciliationWhenHashUnchanged(t *testing.T) {
	c, adapter := newTestContext(t)
	ctx := context.Background()
	newTestDocument(t, c, "doc-c")
	adapter.Seed("doc-c", TableCommands, []docadapter.Row{
		{TableName: TableCommands, RowIndex: 0, Text: "balance USDC"},
	})

	if err := c.PollTick(ctx); err != nil {
		t.Fatalf("first PollTick: %v", err)
	}
	if err := c.PollTick(ctx); err != nil {
		t.Fatalf("second PollTick: %v", err)
	}

	cmds, err := c.Repo.ListCommandsByDocument(ctx, model.DocumentID("doc-c-id"))
	if err != nil {
		t.Fatalf("ListCommandsByDocument: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("expected exactly one command after a no-op re-poll, got %d", len(cmds))
	}
}

func TestPollTick_CellEditApprovesPendingCommand(t *testing.T) {
	c, adapter := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-d")
	adapter.Seed("doc-d", TableCommands, []docadapter.Row{
		{TableName: TableCommands, RowIndex: 0, Text: "transfer 10 USDC to 0xabc"},
	})
	if err := c.PollTick(ctx); err != nil {
		t.Fatalf("first PollTick: %v", err)
	}

	adapter.Seed("doc-d", TableCommands, []docadapter.Row{
		{TableName: TableCommands, RowIndex: 0, Text: "transfer 10 USDC to 0xabc APPROVED"},
	})
	if err := c.PollTick(ctx); err != nil {
		t.Fatalf("second PollTick: %v", err)
	}

	cmd, err := c.Repo.FindCommandByCell(ctx, doc.ID, TableCommands, 0)
	if err != nil {
		t.Fatalf("FindCommandByCell: %v", err)
	}
	if cmd.Status != model.StatusApproved {
		t.Fatalf("expected cell edit to approve the command, got %s", cmd.Status)
	}
}
