package engine

import (
	"context"
	"testing"
	"time"

	"github.com/docwallet-hq/agent/pkg/advisor"
	"github.com/docwallet-hq/agent/pkg/model"
)

type fakeAdvisor struct {
	resp *advisor.Response
}

func (f *fakeAdvisor) Advise(_ context.Context, _ advisor.Request) (*advisor.Response, error) {
	return f.resp, nil
}

func TestAgentDecisionTick_NoAdvisorIsNoop(t *testing.T) {
	c, _ := newTestContext(t)
	doc := newTestDocument(t, c, "doc-ad-a")

	if err := c.AgentDecisionTick(context.Background()); err != nil {
		t.Fatalf("AgentDecisionTick: %v", err)
	}

	cmds, err := c.Repo.ListCommandsByDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("ListCommandsByDocument: %v", err)
	}
	if len(cmds) != 0 {
		t.Fatalf("expected no commands without an advisor, got %d", len(cmds))
	}
}

func TestAgentDecisionTick_EnqueuesConfidentProposal(t *testing.T) {
	c, _ := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-ad-b")
	c.Advisor = &fakeAdvisor{resp: &advisor.Response{
		Summary: "balances look stable",
		Proposals: []advisor.Proposal{
			{Kind: "transfer", Reason: "rebalance idle cash", Confidence: 0.9, RawCommand: "transfer 100 USDC to 0xabc"},
		},
	}}

	if err := c.AgentDecisionTick(ctx); err != nil {
		t.Fatalf("AgentDecisionTick: %v", err)
	}

	cmds, err := c.Repo.ListCommandsByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListCommandsByDocument: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("expected one proposal command, got %d", len(cmds))
	}
	if cmds[0].Status != model.StatusPending {
		t.Fatalf("expected proposal to be pending approval, got %s", cmds[0].Status)
	}
}

func TestAgentDecisionTick_DropsLowConfidenceProposal(t *testing.T) {
	c, _ := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-ad-c")
	c.Advisor = &fakeAdvisor{resp: &advisor.Response{
		Proposals: []advisor.Proposal{
			{Kind: "transfer", Reason: "weak signal", Confidence: 0.1, RawCommand: "transfer 100 USDC to 0xabc"},
		},
	}}

	if err := c.AgentDecisionTick(ctx); err != nil {
		t.Fatalf("AgentDecisionTick: %v", err)
	}

	cmds, err := c.Repo.ListCommandsByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListCommandsByDocument: %v", err)
	}
	if len(cmds) != 0 {
		t.Fatalf("expected low-confidence proposal to be dropped, got %d commands", len(cmds))
	}
}

func TestAgentDecisionTick_AlertsStalePendingCommand(t *testing.T) {
	c, _ := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-ad-d")

	cmd := &model.Command{
		ID: "cmd-stale-pending", DocumentID: doc.ID, TableName: TableCommands, RowIndex: 0,
		Kind: "noop", RawText: "old command", Status: model.StatusPending,
	}
	if err := c.Repo.CreateCommand(ctx, cmd); err != nil {
		t.Fatalf("CreateCommand: %v", err)
	}
	// The in-memory repository stores the same *model.Command pointer it
	// was given, so backdating it here simulates a command that has sat
	// pending for longer than the alert threshold.
	cmd.CreatedAt = time.Now().Add(-48 * time.Hour)

	c.alertStaleCommands(ctx, doc)

	events, err := c.Repo.ListAuditEvents(ctx, doc.ID, 10)
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	found := false
	for _, e := range events {
		if e.Level == model.AuditWarn {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a stale-pending-command warning audit event")
	}
}
