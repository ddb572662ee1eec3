package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/docwallet-hq/agent/pkg/model"
	"github.com/docwallet-hq/agent/pkg/rbac"
	"github.com/docwallet-hq/agent/pkg/repository"
)

var commandPageTemplate = template.Must(template.New("command").Parse(`<!doctype html>
<html><head><title>Approve command {{.ID}}</title></head>
<body>
<h1>Command {{.ID}}</h1>
<p><strong>Document:</strong> {{.DocumentID}}</p>
<p><strong>Raw:</strong> {{.RawText}}</p>
<p><strong>Status:</strong> {{.Status}}</p>
{{if .Pending}}
<form method="post" action="/api/command-decision">
<input type="hidden" name="docId" value="{{.DocumentID}}">
<input type="hidden" name="cmdId" value="{{.ID}}">
<button name="decision" value="APPROVED">Approve</button>
<button name="decision" value="REJECTED">Reject</button>
</form>
{{end}}
</body></html>`))

func (s *Server) requestUser(r *http.Request) rbac.UserID {
	senderID := r.Header.Get("X-User-ID")
	if senderID == "" {
		senderID = "anonymous"
	}
	if s.Guard == nil {
		return rbac.UserID(senderID)
	}
	return s.Guard.ResolveUser("http", senderID)
}

func (s *Server) handleCommandPage(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("docID")
	cmdID := r.PathValue("cmdID")

	cmd, err := s.Repo.GetCommand(r.Context(), model.CommandID(cmdID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if string(cmd.DocumentID) != docID {
		http.NotFound(w, r)
		return
	}

	view := struct {
		ID         model.CommandID
		DocumentID model.DocumentID
		RawText    string
		Status     model.CommandStatus
		Pending    bool
	}{
		ID:         cmd.ID,
		DocumentID: cmd.DocumentID,
		RawText:    cmd.RawText,
		Status:     cmd.Status,
		Pending:    cmd.Status == model.StatusPending,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := commandPageTemplate.Execute(w, view); err != nil {
		s.Logger.Error("approval: render command page failed", "error", err)
	}
}

// commandDecisionRequest is the body of POST /api/command-decision.
type commandDecisionRequest struct {
	DocID    string `json:"docId"`
	CmdID    string `json:"cmdId"`
	Decision string `json:"decision"` // "APPROVED" or "REJECTED"
}

type commandDecisionResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleCommandDecision(w http.ResponseWriter, r *http.Request) {
	var req commandDecisionRequest

	switch {
	case isJSONRequest(r):
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, commandDecisionResponse{Error: "invalid request body"})
			return
		}
	default:
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, commandDecisionResponse{Error: "invalid form body"})
			return
		}
		req.DocID = r.FormValue("docId")
		req.CmdID = r.FormValue("cmdId")
		req.Decision = r.FormValue("decision")
	}

	var to model.CommandStatus
	switch req.Decision {
	case "APPROVED":
		to = model.StatusApproved
	case "REJECTED":
		to = model.StatusRejected
	default:
		writeJSON(w, http.StatusBadRequest, commandDecisionResponse{Error: fmt.Sprintf("unrecognized decision %q", req.Decision)})
		return
	}

	user := s.requestUser(r)
	if s.Guard != nil {
		if err := s.Guard.CheckApproval(r.Context(), user, req.DocID, req.CmdID, to == model.StatusApproved); err != nil {
			writeJSON(w, http.StatusForbidden, commandDecisionResponse{Error: err.Error()})
			return
		}
	}

	cmd, err := s.Repo.GetCommand(r.Context(), model.CommandID(req.CmdID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, commandDecisionResponse{Error: "command not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, commandDecisionResponse{Error: err.Error()})
		return
	}
	if string(cmd.DocumentID) != req.DocID {
		writeJSON(w, http.StatusNotFound, commandDecisionResponse{Error: "command not found"})
		return
	}

	if err := s.Repo.SetCommandStatus(r.Context(), cmd.ID, to, repository.CommandStatusFields{ApprovedBy: string(user)}); err != nil {
		writeJSON(w, http.StatusConflict, commandDecisionResponse{Error: err.Error()})
		return
	}

	if s.Adapter != nil {
		doc, err := s.Repo.GetDocument(r.Context(), cmd.DocumentID)
		if err == nil {
			if werr := s.Adapter.WriteResult(r.Context(), doc.ExternalDocID, cmd.TableName, cmd.RowIndex, to, "decision recorded via approval link"); werr != nil {
				s.Logger.Error("approval: mirror decision to cell failed", "command_id", cmd.ID, "error", werr)
			}
		}
	}

	if to.IsTerminal() {
		s.NotifyCommandTerminal(req.DocID, req.CmdID, string(to))
	}

	writeJSON(w, http.StatusOK, commandDecisionResponse{OK: true, Status: string(to)})
}

// statusResponse is the JSON body of GET /api/status: a per-status count
// of every command across every tracked document.
type statusResponse struct {
	Counts map[model.CommandStatus]int `json:"counts"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts := make(map[model.CommandStatus]int)
	for _, status := range []model.CommandStatus{
		model.StatusDraft, model.StatusInvalid, model.StatusPending, model.StatusApproved, model.StatusRejected,
		model.StatusExecuting, model.StatusDone, model.StatusFailed, model.StatusExpired,
	} {
		cmds, err := s.Repo.ListCommandsByStatus(r.Context(), status)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		counts[status] = len(cmds)
	}
	writeJSON(w, http.StatusOK, statusResponse{Counts: counts})
}

// docSummary is one row of GET /api/docs.
type docSummary struct {
	ID            model.DocumentID `json:"id"`
	ExternalDocID string            `json:"external_doc_id"`
	Title         string            `json:"title"`
	LastPolledAt  string            `json:"last_polled_at,omitempty"`
	Archived      bool              `json:"archived"`
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	docs, err := s.Repo.ListDocuments(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]docSummary, 0, len(docs))
	for _, d := range docs {
		summary := docSummary{
			ID:            d.ID,
			ExternalDocID: d.ExternalDocID,
			Title:         d.Title,
			Archived:      d.Archived,
		}
		if !d.LastPolledAt.IsZero() {
			summary.LastPolledAt = d.LastPolledAt.Format("2006-01-02T15:04:05Z07:00")
		}
		out = append(out, summary)
	}
	writeJSON(w, http.StatusOK, out)
}

func isJSONRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return len(ct) >= 16 && ct[:16] == "application/json"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
