package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docwallet-hq/agent/pkg/docadapter"
	"github.com/docwallet-hq/agent/pkg/model"
	"github.com/docwallet-hq/agent/pkg/rbac"
	"github.com/docwallet-hq/agent/pkg/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, repository.Repository, *model.Document) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	adapter := docadapter.NewTemplateAdapter()

	doc := &model.Document{ID: "doc-1", ExternalDocID: "ext-1"}
	if err := repo.UpsertDocument(context.Background(), doc); err != nil {
		t.Fatalf("upsert document: %v", err)
	}
	adapter.Seed("ext-1", "commands", []docadapter.Row{{TableName: "commands", RowIndex: 0, Text: "DW BALANCE USDC"}})

	s := New(testLogger(), repo, adapter, nil, "https://agent.example.com")
	return s, repo, doc
}

func createPendingCommand(t *testing.T, repo repository.Repository, doc *model.Document) *model.Command {
	t.Helper()
	cmd := &model.Command{
		ID:         "cmd-1",
		DocumentID: doc.ID,
		TableName:  "commands",
		RowIndex:   0,
		Kind:       "balance_check",
		RawText:    "DW BALANCE USDC",
		Status:     model.StatusPending,
	}
	if err := repo.CreateCommand(context.Background(), cmd); err != nil {
		t.Fatalf("create command: %v", err)
	}
	return cmd
}

func TestApprovalURL_BuildsExpectedLink(t *testing.T) {
	s, _, _ := newTestServer(t)
	got := s.ApprovalURL("doc-1", "cmd-1")
	want := "https://agent.example.com/cmd/doc-1/cmd-1"
	if got != want {
		t.Fatalf("ApprovalURL = %q, want %q", got, want)
	}
}

func TestHandleCommandPage_RendersPendingCommand(t *testing.T) {
	s, repo, doc := newTestServer(t)
	cmd := createPendingCommand(t, repo, doc)

	req := httptest.NewRequest(http.MethodGet, "/cmd/"+string(doc.ID)+"/"+string(cmd.ID), nil)
	req.SetPathValue("docID", string(doc.ID))
	req.SetPathValue("cmdID", string(cmd.ID))
	rec := httptest.NewRecorder()

	s.handleCommandPage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("DW BALANCE USDC")) {
		t.Fatalf("expected page to contain the raw command text, got: %s", rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("Approve")) {
		t.Fatalf("expected a pending command's page to offer an approve action, got: %s", rec.Body.String())
	}
}

func TestHandleCommandPage_UnknownCommandReturns404(t *testing.T) {
	s, _, doc := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/cmd/"+string(doc.ID)+"/missing", nil)
	req.SetPathValue("docID", string(doc.ID))
	req.SetPathValue("cmdID", "missing")
	rec := httptest.NewRecorder()

	s.handleCommandPage(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleCommandDecision_ApprovesAndMirrorsToCell(t *testing.T) {
	s, repo, doc := newTestServer(t)
	cmd := createPendingCommand(t, repo, doc)

	body, _ := json.Marshal(commandDecisionRequest{DocID: string(doc.ID), CmdID: string(cmd.ID), Decision: "APPROVED"})
	req := httptest.NewRequest(http.MethodPost, "/api/command-decision", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.handleCommandDecision(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	updated, err := repo.GetCommand(context.Background(), cmd.ID)
	if err != nil {
		t.Fatalf("get command: %v", err)
	}
	if updated.Status != model.StatusApproved {
		t.Fatalf("status = %s, want approved", updated.Status)
	}

	snap, err := s.Adapter.(*docadapter.TemplateAdapter).Poll(context.Background(), doc.ExternalDocID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	found := false
	for _, row := range snap.Rows {
		if row.RowIndex == 0 && bytes.Contains([]byte(row.Text), []byte("approved")) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the approval decision to be mirrored into the document cell, rows: %+v", snap.Rows)
	}
}

func TestHandleCommandDecision_RejectsUnknownDecisionValue(t *testing.T) {
	s, repo, doc := newTestServer(t)
	cmd := createPendingCommand(t, repo, doc)

	body, _ := json.Marshal(commandDecisionRequest{DocID: string(doc.ID), CmdID: string(cmd.ID), Decision: "MAYBE"})
	req := httptest.NewRequest(http.MethodPost, "/api/command-decision", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.handleCommandDecision(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleCommandDecision_DeniedByGuard(t *testing.T) {
	s, repo, doc := newTestServer(t)
	cmd := createPendingCommand(t, repo, doc)

	enforcer := rbac.NewEnforcer(nil)
	s.Guard = rbac.NewCommandGuard(enforcer, true)

	body, _ := json.Marshal(commandDecisionRequest{DocID: string(doc.ID), CmdID: string(cmd.ID), Decision: "APPROVED"})
	req := httptest.NewRequest(http.MethodPost, "/api/command-decision", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.handleCommandDecision(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body=%s", rec.Code, rec.Body.String())
	}

	unchanged, err := repo.GetCommand(context.Background(), cmd.ID)
	if err != nil {
		t.Fatalf("get command: %v", err)
	}
	if unchanged.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending (decision should have been denied)", unchanged.Status)
	}
}

func TestHandleStatus_CountsByStatus(t *testing.T) {
	s, repo, doc := newTestServer(t)
	createPendingCommand(t, repo, doc)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Counts[model.StatusPending] != 1 {
		t.Fatalf("pending count = %d, want 1", resp.Counts[model.StatusPending])
	}
}

func TestHandleDocs_ListsTrackedDocuments(t *testing.T) {
	s, _, doc := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/docs", nil)
	rec := httptest.NewRecorder()
	s.handleDocs(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var docs []docSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &docs); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != doc.ID {
		t.Fatalf("expected one tracked document %s, got %+v", doc.ID, docs)
	}
}

func TestNotifyCommandTerminal_DeliversToSubscriber(t *testing.T) {
	s, _, _ := newTestServer(t)
	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	s.NotifyCommandTerminal("doc-1", "cmd-1", "done")

	select {
	case ev := <-ch:
		if ev.Type != "command" || ev.Status != "done" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected an event to be queued for the subscriber")
	}
}
