// Package health provides liveness and readiness HTTP endpoints for the
// treasury agent, following the same minimal net/http server shape used
// throughout the rest of the service.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Check is a single named readiness probe result.
type Check struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse is the JSON body returned by both endpoints.
type StatusResponse struct {
	Status string           `json:"status"`
	Uptime string           `json:"uptime"`
	Checks map[string]Check `json:"checks,omitempty"`
}

// Server exposes /healthz (liveness) and /readyz (readiness) over HTTP.
type Server struct {
	host string
	port int

	mu     sync.RWMutex
	ready  bool
	checks map[string]func() (bool, string)

	startedAt time.Time
	srv       *http.Server
}

// NewServer builds a Server bound to host:port. It is not ready until
// SetReady(true) is called, and starts with no registered checks.
func NewServer(host string, port int) *Server {
	return &Server{
		host:      host,
		port:      port,
		checks:    make(map[string]func() (bool, string)),
		startedAt: time.Now(),
	}
}

// SetReady flips the overall readiness flag, independent of registered checks.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// RegisterCheck adds a named readiness probe. All registered checks must
// pass, in addition to SetReady(true), for /readyz to report ready.
func (s *Server) RegisterCheck(name string, fn func() (bool, string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = fn
}

// Start begins serving in the background. Call Stop to shut it down.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.HandleFunc("/readyz", s.readyHandler)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}
	go func() {
		_ = s.srv.ListenAndServe()
	}()
	return nil
}

// Stop gracefully shuts down the server and marks it not ready.
func (s *Server) Stop(ctx context.Context) error {
	s.SetReady(false)
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status: "ok",
		Uptime: time.Since(s.startedAt).String(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ready := s.ready
	checkFns := make(map[string]func() (bool, string), len(s.checks))
	for name, fn := range s.checks {
		checkFns[name] = fn
	}
	s.mu.RUnlock()

	checks := make(map[string]Check, len(checkFns))
	allPass := true
	for name, fn := range checkFns {
		ok, msg := fn()
		if !ok {
			allPass = false
		}
		checks[name] = Check{
			Name:      name,
			Status:    statusString(ok),
			Message:   msg,
			Timestamp: time.Now(),
		}
	}

	resp := StatusResponse{
		Uptime: time.Since(s.startedAt).String(),
		Checks: checks,
	}

	if ready && allPass {
		resp.Status = "ready"
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Status = "not ready"
	writeJSON(w, http.StatusServiceUnavailable, resp)
}

func statusString(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
