package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docwallet-hq/agent/pkg/advisor"
	"github.com/docwallet-hq/agent/pkg/command"
	"github.com/docwallet-hq/agent/pkg/model"
)

// agentProposalCooldown bounds how often the same proposal kind can be
// re-enqueued for one document (spec §4.7.8: proposals are "subject to
// per-proposal cooldowns and deduplication").
const agentProposalCooldown = 10 * time.Minute

// staleCommandAlertAfter is how long a PENDING command sits unapproved
// before the tick raises an audit alert about it.
const staleCommandAlertAfter = 24 * time.Hour

// minProposalConfidence is the floor below which an advisor proposal is
// logged in its summary but not enqueued as a command.
const minProposalConfidence = 0.5

// AgentDecisionTick runs deterministic heuristics and, if an Advisor
// backend is configured, consults it for rebalance/alert proposals
// (spec §4.7.8). It never executes anything itself: proposals are
// enqueued PENDING like any other document-originated command.
func (c *Context) AgentDecisionTick(ctx context.Context) error {
	docs, err := c.trackedDocuments(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := c.decideForDocument(ctx, doc); err != nil {
			c.Logger.Error("agent-decision: document failed", "document_id", doc.ID, "error", err)
		}
	}
	return nil
}

func (c *Context) decideForDocument(ctx context.Context, doc *model.Document) error {
	c.alertStaleCommands(ctx, doc)

	if c.Advisor == nil {
		return nil
	}

	recent, err := c.Repo.ListRecentActivity(ctx, doc.ID, 20)
	if err != nil {
		return fmt.Errorf("list recent activity: %w", err)
	}
	req := advisor.Request{DocumentID: string(doc.ID)}
	for _, r := range recent {
		req.RecentActivity = append(req.RecentActivity, fmt.Sprintf("%s %s: %s", r.Kind, r.Status, r.Summary))
	}

	resp, err := c.Advisor.Advise(ctx, req)
	if err != nil {
		return fmt.Errorf("advise: %w", err)
	}
	if resp.Summary != "" {
		_ = c.Repo.AppendAuditEvent(ctx, &model.AuditEvent{DocumentID: doc.ID, Level: model.AuditInfo, Source: "agent-decision", Message: resp.Summary})
	}

	for _, p := range resp.Proposals {
		c.enqueueProposal(ctx, doc, p)
	}
	return nil
}

func (c *Context) enqueueProposal(ctx context.Context, doc *model.Document, p advisor.Proposal) {
	if p.Confidence < minProposalConfidence {
		return
	}

	key := string(doc.ID) + "|" + p.Kind
	c.mu.Lock()
	last, seen := c.proposalCooldowns[key]
	if seen && time.Since(last) < agentProposalCooldown {
		c.mu.Unlock()
		return
	}
	c.proposalCooldowns[key] = time.Now()
	c.mu.Unlock()

	kind, args, ok, _ := command.ParseText(p.RawCommand)
	if !ok {
		c.Logger.Warn("agent-decision: advisor proposal did not parse, dropping", "document_id", doc.ID, "raw", p.RawCommand)
		return
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		c.Logger.Error("agent-decision: marshal proposal args failed", "error", err)
		return
	}

	cmd := &model.Command{
		ID:         model.CommandID(uuid.NewString()),
		DocumentID: doc.ID,
		TableName:  TableCommands,
		RowIndex:   -(int(time.Now().UnixNano()%1_000_000) + 1),
		Kind:       string(kind),
		RawText:    fmt.Sprintf("[ADVISOR] %s (%s)", p.RawCommand, p.Reason),
		Args:       argsJSON,
		Status:     model.StatusPending,
		Channel:    "advisor",
	}
	if err := c.Repo.CreateCommand(ctx, cmd); err != nil {
		c.Logger.Error("agent-decision: create proposal command failed", "document_id", doc.ID, "error", err)
		return
	}
	_ = c.Repo.AppendAuditEvent(ctx, &model.AuditEvent{DocumentID: doc.ID, CommandID: cmd.ID, Level: model.AuditInfo, Source: "agent-decision", Message: "advisor proposal: " + p.Reason})
}

func (c *Context) alertStaleCommands(ctx context.Context, doc *model.Document) {
	cmds, err := c.Repo.ListCommandsByDocument(ctx, doc.ID)
	if err != nil {
		return
	}
	for _, cmd := range cmds {
		if cmd.Status != model.StatusPending {
			continue
		}
		if time.Since(cmd.CreatedAt) < staleCommandAlertAfter {
			continue
		}
		_ = c.Repo.AppendAuditEvent(ctx, &model.AuditEvent{
			DocumentID: doc.ID, CommandID: cmd.ID, Level: model.AuditWarn,
			Source: "agent-decision", Message: "command pending approval for over 24h",
		})
	}
}
