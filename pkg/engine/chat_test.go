package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/docwallet-hq/agent/pkg/docadapter"
	"github.com/docwallet-hq/agent/pkg/model"
)

func TestChatTick_SuggestsExecutePrefixForBareCommand(t *testing.T) {
	c, adapter := newTestContext(t)
	ctx := context.Background()
	newTestDocument(t, c, "doc-chat-a")
	adapter.Seed("doc-chat-a", TableChat, []docadapter.Row{
		{TableName: TableChat, RowIndex: 0, Text: "balance USDC"},
	})

	if err := c.ChatTick(ctx); err != nil {
		t.Fatalf("ChatTick: %v", err)
	}

	snap, err := adapter.Poll(ctx, "doc-chat-a")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	reply := findRow(snap.Rows, TableChat, 0)
	if reply == nil {
		t.Fatal("expected a reply written back to the chat row")
	}
	if !strings.Contains(strings.ToLower(reply.Text), "!execute") {
		t.Fatalf("expected a suggestion to use !execute, got %q", reply.Text)
	}
}

func TestChatTick_ExecutePrefixQueuesCommand(t *testing.T) {
	c, adapter := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-chat-b")
	adapter.Seed("doc-chat-b", TableChat, []docadapter.Row{
		{TableName: TableChat, RowIndex: 0, Text: "!execute balance USDC"},
	})

	if err := c.ChatTick(ctx); err != nil {
		t.Fatalf("ChatTick: %v", err)
	}

	queued := nextChatCommandRow(0)
	cmd, err := c.Repo.FindCommandByCell(ctx, doc.ID, TableCommands, queued)
	if err != nil {
		t.Fatalf("expected a queued command at the derived chat row: %v", err)
	}
	if cmd.Kind != "balance_check" {
		t.Fatalf("expected balance_check kind, got %s", cmd.Kind)
	}
}

func TestChatTick_DoesNotReprocessSameRow(t *testing.T) {
	c, adapter := newTestContext(t)
	ctx := context.Background()
	newTestDocument(t, c, "doc-chat-c")
	adapter.Seed("doc-chat-c", TableChat, []docadapter.Row{
		{TableName: TableChat, RowIndex: 0, Text: "!execute balance USDC"},
	})

	if err := c.ChatTick(ctx); err != nil {
		t.Fatalf("first ChatTick: %v", err)
	}
	if err := c.ChatTick(ctx); err != nil {
		t.Fatalf("second ChatTick: %v", err)
	}

	queued := nextChatCommandRow(0)
	cmds, err := c.Repo.ListCommandsByDocument(ctx, model.DocumentID("doc-chat-c-id"))
	if err != nil {
		t.Fatalf("ListCommandsByDocument: %v", err)
	}
	count := 0
	for _, cmd := range cmds {
		if cmd.TableName == TableCommands && cmd.RowIndex == queued {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected the chat row to queue exactly one command, got %d", count)
	}
}

func findRow(rows []docadapter.Row, table string, idx int) *docadapter.Row {
	for i := range rows {
		if rows[i].TableName == table && rows[i].RowIndex == idx {
			return &rows[i]
		}
	}
	return nil
}
