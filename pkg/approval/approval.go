// Package approval implements the HTTP approval surface (spec §6): the
// external collaborator a human uses to approve or reject a pending
// command without editing the document directly, plus the small set of
// read-only status endpoints the TUI and any external dashboard poll.
// It follows the same minimal net/http server shape as pkg/health.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/docwallet-hq/agent/pkg/docadapter"
	"github.com/docwallet-hq/agent/pkg/rbac"
	"github.com/docwallet-hq/agent/pkg/repository"
)

// Server exposes the approval decision endpoints and status surface over
// HTTP. Beyond what's needed to build approval URLs it holds only the
// /ws/status hub and its own http.Server; every decision reads and
// writes through Repo.
type Server struct {
	Logger  *slog.Logger
	Repo    repository.Repository
	Adapter docadapter.Adapter
	Guard   *rbac.CommandGuard
	BaseURL string // e.g. "https://agent.example.com", used to build approval links

	hub *statusHub

	srv *http.Server
}

// New builds a Server. baseURL is the PUBLIC_BASE_URL config value
// (scheme + host, no trailing slash); it is combined with each command's
// document/command IDs to build the link written to the Commands table's
// APPROVAL_URL cell.
func New(logger *slog.Logger, repo repository.Repository, adapter docadapter.Adapter, guard *rbac.CommandGuard, baseURL string) *Server {
	return &Server{
		Logger:  logger,
		Repo:    repo,
		Adapter: adapter,
		Guard:   guard,
		BaseURL: baseURL,
		hub:     newStatusHub(),
	}
}

// ApprovalURL builds the link to a single command's approval page.
func (s *Server) ApprovalURL(docID, cmdID string) string {
	return fmt.Sprintf("%s/cmd/%s/%s", s.BaseURL, docID, cmdID)
}

// NotifyTick publishes a tick-completion event to every connected
// /ws/status client. Safe to call from any goroutine.
func (s *Server) NotifyTick(tickName string) {
	s.hub.broadcast(statusEvent{Type: "tick", Tick: tickName, At: time.Now()})
}

// NotifyCommandTerminal publishes a command's terminal status transition
// to every connected /ws/status client.
func (s *Server) NotifyCommandTerminal(docID, cmdID, status string) {
	s.hub.broadcast(statusEvent{Type: "command", DocumentID: docID, CommandID: cmdID, Status: status, At: time.Now()})
}

// Start begins serving in the background on addr (host:port). Call Stop
// to shut it down.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cmd/{docID}/{cmdID}", s.handleCommandPage)
	mux.HandleFunc("POST /api/command-decision", s.handleCommandDecision)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/docs", s.handleDocs)
	mux.HandleFunc("GET /ws/status", s.handleWSStatus)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Logger.Error("approval: server exited", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server and closes every open status feed.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.closeAll()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
