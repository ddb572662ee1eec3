package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docwallet-hq/agent/pkg/command"
	"github.com/docwallet-hq/agent/pkg/docadapter"
	"github.com/docwallet-hq/agent/pkg/model"
	"github.com/docwallet-hq/agent/pkg/repository"
)

// maxPollFailures is how many consecutive poll failures a document
// tolerates before it is archived (spec §4.7.2).
const maxPollFailures = 10

// PollTick polls every tracked document's Commands table and reconciles
// any row whose text changed since the last poll (spec §4.7.2, I4).
func (c *Context) PollTick(ctx context.Context) error {
	docs, err := c.trackedDocuments(ctx)
	if err != nil {
		return err
	}

	c.Metrics.PollRuns.Inc()
	for _, doc := range docs {
		if err := c.pollDocument(ctx, doc); err != nil {
			c.Metrics.PollErrors.Inc()
			c.Logger.Error("poll: document failed", "document_id", doc.ID, "error", err)
			_ = c.Audit.LogPollFailure(ctx, string(doc.ID), err)
			c.bumpPollFailure(ctx, doc)
			continue
		}
		c.resetPollFailure(doc.ID)
	}
	return nil
}

func (c *Context) pollDocument(ctx context.Context, doc *model.Document) error {
	snap, err := c.Adapter.Poll(ctx, doc.ExternalDocID)
	if err != nil {
		return fmt.Errorf("poll adapter: %w", err)
	}

	if snap.CommandsHash == doc.LastUserHash {
		return c.Repo.UpdateDocumentPollState(ctx, doc.ID, snap.CommandsHash, snap.RevisionID, time.Now())
	}
	c.Metrics.HashMismatches.Inc()

	cfg := c.configFor(ctx, doc.ID)
	for _, row := range snap.Rows {
		if row.TableName != TableCommands {
			continue
		}
		if err := c.reconcileRow(ctx, doc, cfg, row); err != nil {
			c.Logger.Error("poll: reconcile row failed", "document_id", doc.ID, "row", row.RowIndex, "error", err)
		}
	}

	return c.Repo.UpdateDocumentPollState(ctx, doc.ID, snap.CommandsHash, snap.RevisionID, time.Now())
}

func (c *Context) reconcileRow(ctx context.Context, doc *model.Document, cfg *model.DocConfig, row docadapter.Row) error {
	text := strings.TrimSpace(row.Text)

	existing, err := c.Repo.FindCommandByCell(ctx, doc.ID, row.TableName, row.RowIndex)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.createCommandFromRow(ctx, doc, cfg, row, text)
		}
		return fmt.Errorf("find command by cell: %w", err)
	}

	switch {
	case existing.Status == model.StatusExecuting || existing.Status.IsTerminal():
		if text != strings.TrimSpace(existing.RawText) {
			return c.Adapter.WriteResult(ctx, doc.ExternalDocID, row.TableName, row.RowIndex, existing.Status,
				"edit ignored: command is already "+string(existing.Status))
		}
		return nil

	case existing.Status == model.StatusPending:
		upper := strings.ToUpper(text)
		switch {
		case strings.Contains(upper, "APPROVED"):
			return c.Repo.SetCommandStatus(ctx, existing.ID, model.StatusApproved, repository.CommandStatusFields{ApprovedBy: "document-edit"})
		case strings.Contains(upper, "REJECTED"):
			return c.Repo.SetCommandStatus(ctx, existing.ID, model.StatusRejected, repository.CommandStatusFields{ApprovedBy: "document-edit"})
		case text != strings.TrimSpace(existing.RawText):
			return c.reparseCommand(ctx, cfg, existing, text)
		default:
			return nil
		}

	case existing.Status == model.StatusInvalid:
		if text == strings.TrimSpace(existing.RawText) {
			return nil
		}
		return c.reparseCommand(ctx, cfg, existing, text)

	default: // draft, approved: leave row text alone until claimed
		return nil
	}
}

func (c *Context) createCommandFromRow(ctx context.Context, doc *model.Document, cfg *model.DocConfig, row docadapter.Row, text string) error {
	kind, args, ok, err := command.ParseText(text)
	if err != nil {
		// A "DW ..." prefixed row that failed to parse is a genuine
		// attempt at a command, not inert text (spec §4.7.2, §7): surface
		// it as an INVALID command rather than silently dropping the row.
		return c.createInvalidCommand(ctx, doc, row, text, err)
	}
	if !ok {
		return nil // not a recognized command (header, comment, blank row)
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}

	status := model.StatusPending
	if command.IsAutoApproved(kind, cfg.AutoApprove) {
		status = model.StatusApproved
		c.Metrics.CommandsAutoApproved.Inc()
	}

	cmd := &model.Command{
		ID:         model.CommandID(uuid.NewString()),
		DocumentID: doc.ID,
		TableName:  row.TableName,
		RowIndex:   row.RowIndex,
		Kind:       string(kind),
		RawText:    text,
		Args:       argsJSON,
		Status:     status,
		Channel:    "document",
		RequestedBy: row.EditedBy,
	}
	if err := c.Repo.CreateCommand(ctx, cmd); err != nil {
		return fmt.Errorf("create command: %w", err)
	}
	c.Metrics.CommandsParsed.Inc()
	c.Metrics.RowsDiscovered.Inc()

	return c.Adapter.WriteResult(ctx, doc.ExternalDocID, row.TableName, row.RowIndex, status, "awaiting "+string(status))
}

// createInvalidCommand records a parse failure as a Command row in
// StatusInvalid instead of silently dropping it, so the operator sees
// the attempted command and the reason it didn't parse (spec §4.7.2,
// §7). It is not terminal: editing the row re-enters reconcileRow's
// StatusInvalid case and reparses it.
func (c *Context) createInvalidCommand(ctx context.Context, doc *model.Document, row docadapter.Row, text string, cause error) error {
	cmd := &model.Command{
		ID:          model.CommandID(uuid.NewString()),
		DocumentID:  doc.ID,
		TableName:   row.TableName,
		RowIndex:    row.RowIndex,
		Kind:        string(command.KindNoop),
		RawText:     text,
		Args:        json.RawMessage(`{}`),
		Status:      model.StatusInvalid,
		Channel:     "document",
		RequestedBy: row.EditedBy,
		ErrorText:   cause.Error(),
	}
	if err := c.Repo.CreateCommand(ctx, cmd); err != nil {
		return fmt.Errorf("create invalid command: %w", err)
	}
	c.Metrics.RowsDiscovered.Inc()
	return c.Adapter.WriteResult(ctx, doc.ExternalDocID, row.TableName, row.RowIndex, model.StatusInvalid, "invalid command: "+cause.Error())
}

// reparseCommand re-evaluates a pending or invalid row whose text
// changed. The repository has no method to update a command's stored
// Kind/Args/RawText in place (SetCommandStatus only transitions
// status), so a re-parse that resolves to the same status as before is
// a no-op; only a status change (e.g. the edit now reads auto-approved,
// or a previously invalid row now parses) is persisted.
func (c *Context) reparseCommand(ctx context.Context, cfg *model.DocConfig, existing *model.Command, text string) error {
	kind, _, ok, err := command.ParseText(text)
	if err != nil {
		if existing.Status == model.StatusInvalid {
			return nil
		}
		return c.Repo.SetCommandStatus(ctx, existing.ID, model.StatusInvalid, repository.CommandStatusFields{ErrorText: err.Error()})
	}
	if !ok {
		return nil
	}

	newStatus := model.StatusPending
	if command.IsAutoApproved(kind, cfg.AutoApprove) {
		newStatus = model.StatusApproved
	}
	if newStatus == existing.Status {
		return nil
	}
	return c.Repo.SetCommandStatus(ctx, existing.ID, newStatus, repository.CommandStatusFields{})
}

func (c *Context) bumpPollFailure(ctx context.Context, doc *model.Document) {
	c.mu.Lock()
	c.pollFailures[doc.ID]++
	n := c.pollFailures[doc.ID]
	c.mu.Unlock()

	if n < maxPollFailures {
		return
	}
	doc.Archived = true
	doc.UpdatedAt = time.Now()
	if err := c.Repo.UpsertDocument(ctx, doc); err != nil {
		c.Logger.Error("poll: archive after repeated failures failed", "document_id", doc.ID, "error", err)
		return
	}
	c.Logger.Warn("poll: archived document after repeated poll failures", "document_id", doc.ID, "failures", n)
	c.mu.Lock()
	delete(c.pollFailures, doc.ID)
	c.mu.Unlock()
}

func (c *Context) resetPollFailure(docID model.DocumentID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pollFailures, docID)
}
