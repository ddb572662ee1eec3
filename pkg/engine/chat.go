package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/docwallet-hq/agent/pkg/command"
	"github.com/docwallet-hq/agent/pkg/docadapter"
	"github.com/docwallet-hq/agent/pkg/model"
	"github.com/docwallet-hq/agent/pkg/repository"
)

// chatExecutePrefix is the opt-in marker a chat message must carry before
// an auto-detected command becomes a real, approval-bound command row
// rather than a cosmetic suggestion (spec §4.7.4).
const chatExecutePrefix = "!execute"

// ChatTick scans each tracked document's Chat table for unprocessed
// messages, turning "!execute ..." messages that parse as a known
// command into a queued Commands-table row, and echoing a suggestion
// for any other message that happens to look like a command.
func (c *Context) ChatTick(ctx context.Context) error {
	docs, err := c.trackedDocuments(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := c.chatForDocument(ctx, doc); err != nil {
			c.Logger.Error("chat: document failed", "document_id", doc.ID, "error", err)
		}
	}
	return nil
}

func (c *Context) chatForDocument(ctx context.Context, doc *model.Document) error {
	cfg := c.configFor(ctx, doc.ID)

	snap, err := c.Adapter.Poll(ctx, doc.ExternalDocID)
	if err != nil {
		return fmt.Errorf("poll adapter: %w", err)
	}

	for _, row := range snap.Rows {
		if row.TableName != TableChat {
			continue
		}
		text := strings.TrimSpace(row.Text)
		if text == "" {
			continue
		}

		_, err := c.Repo.FindCommandByCell(ctx, doc.ID, TableChat, row.RowIndex)
		if err == nil {
			continue // already processed this chat row
		}
		if !errors.Is(err, repository.ErrNotFound) {
			c.Logger.Error("chat: find command by cell failed", "document_id", doc.ID, "row", row.RowIndex, "error", err)
			continue
		}

		if err := c.respondToChatRow(ctx, doc, cfg, row, text); err != nil {
			c.Logger.Error("chat: respond failed", "document_id", doc.ID, "row", row.RowIndex, "error", err)
		}
	}
	return nil
}

func (c *Context) respondToChatRow(ctx context.Context, doc *model.Document, cfg *model.DocConfig, row docadapter.Row, text string) error {
	executeRequested := strings.HasPrefix(strings.ToLower(text), chatExecutePrefix)
	body := text
	if executeRequested {
		body = strings.TrimSpace(text[len(chatExecutePrefix):])
	}

	kind, args, ok, _ := command.ParseText(body)

	trackerStatus := model.StatusDone
	trackerText := text
	var reply string

	switch {
	case !ok:
		reply = "noted"

	case executeRequested:
		argsJSON, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshal args: %w", err)
		}
		status := model.StatusPending
		if command.IsAutoApproved(kind, cfg.AutoApprove) {
			status = model.StatusApproved
		}
		actionable := &model.Command{
			ID:          model.CommandID(uuid.NewString()),
			DocumentID:  doc.ID,
			TableName:   TableCommands,
			RowIndex:    nextChatCommandRow(row.RowIndex),
			Kind:        string(kind),
			RawText:     body,
			Args:        argsJSON,
			Status:      status,
			Channel:     "chat",
			RequestedBy: row.EditedBy,
		}
		if err := c.Repo.CreateCommand(ctx, actionable); err != nil {
			return fmt.Errorf("create actionable command: %w", err)
		}
		reply = fmt.Sprintf("queued as command, status %s", status)

	default:
		reply = fmt.Sprintf("looks like a %s command; prefix with %q to run it", kind, chatExecutePrefix)
	}

	tracker := &model.Command{
		ID:         model.CommandID(uuid.NewString()),
		DocumentID: doc.ID,
		TableName:  TableChat,
		RowIndex:   row.RowIndex,
		Kind:       string(command.KindNoop),
		RawText:    trackerText,
		Args:       json.RawMessage(`{}`),
		Status:     trackerStatus,
		Channel:    "chat",
	}
	if err := c.Repo.CreateCommand(ctx, tracker); err != nil {
		return fmt.Errorf("create chat tracker: %w", err)
	}

	return c.Adapter.WriteResult(ctx, doc.ExternalDocID, TableChat, row.RowIndex, trackerStatus, reply)
}

// nextChatCommandRow maps a Chat table row index to a synthetic negative
// row index in the Commands table, keeping chat-originated commands out
// of the real Commands-table row-index space.
func nextChatCommandRow(chatRow int) int {
	return -(chatRow + 1)
}
