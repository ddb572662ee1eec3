// Package repository is the single source of truth and single writer for
// treasury agent state: documents, commands, schedules, conditional
// orders, price history, per-document config/secrets, and the audit
// trail. All mutation of Command.Status flows through SetCommandStatus,
// which enforces the allowed state-transition table centrally so no
// caller can hand-roll an invalid jump.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/docwallet-hq/agent/pkg/model"
)

// Repository is the storage interface every backend (memory, SQLite,
// Postgres) implements identically.
type Repository interface {
	// Documents
	UpsertDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id model.DocumentID) (*model.Document, error)
	ListDocuments(ctx context.Context) ([]*model.Document, error)
	UpdateDocumentPollState(ctx context.Context, id model.DocumentID, hash, revID string, polledAt time.Time) error

	// Commands
	CreateCommand(ctx context.Context, cmd *model.Command) error
	GetCommand(ctx context.Context, id model.CommandID) (*model.Command, error)
	ListCommandsByDocument(ctx context.Context, docID model.DocumentID) ([]*model.Command, error)
	ListCommandsByStatus(ctx context.Context, status model.CommandStatus) ([]*model.Command, error)
	FindCommandByCell(ctx context.Context, docID model.DocumentID, table string, row int) (*model.Command, error)
	// SetCommandStatus performs a validated transition. It returns
	// ErrInvalidTransition if from->to is not allowed, and ErrTerminal if
	// the command is already in a terminal state.
	SetCommandStatus(ctx context.Context, id model.CommandID, to model.CommandStatus, fields CommandStatusFields) error
	// ClaimForExecution atomically transitions approved->executing and
	// stamps ExecutionHash, failing if the command is not in 'approved'
	// or already carries a hash. This is the at-most-once execution gate.
	ClaimForExecution(ctx context.Context, id model.CommandID, executionHash string) (bool, error)

	// Schedules
	CreateSchedule(ctx context.Context, s *model.Schedule) error
	ListDueSchedules(ctx context.Context, asOf time.Time) ([]*model.Schedule, error)
	ListSchedulesByDocument(ctx context.Context, docID model.DocumentID) ([]*model.Schedule, error)
	MarkScheduleRun(ctx context.Context, id model.ScheduleID, ranAt, nextAt time.Time) error

	// Conditional orders
	CreateOrder(ctx context.Context, o *model.ConditionalOrder) error
	ListActiveOrders(ctx context.Context, docID model.DocumentID) ([]*model.ConditionalOrder, error)
	// TriggerOrder atomically marks an order triggered exactly once.
	// Returns false if the order was already triggered.
	TriggerOrder(ctx context.Context, id model.OrderID, at time.Time) (bool, error)

	// Prices
	RecordPrice(ctx context.Context, p *model.PriceSnapshot) error
	LatestPrice(ctx context.Context, asset string) (*model.PriceSnapshot, error)

	// Config / secrets
	GetConfig(ctx context.Context, docID model.DocumentID) (*model.DocConfig, error)
	PutConfig(ctx context.Context, cfg *model.DocConfig) error
	GetSecrets(ctx context.Context, docID model.DocumentID) (*model.DocSecrets, error)
	PutSecrets(ctx context.Context, s *model.DocSecrets) error

	// Audit / activity
	AppendAuditEvent(ctx context.Context, e *model.AuditEvent) error
	ListAuditEvents(ctx context.Context, docID model.DocumentID, limit int) ([]*model.AuditEvent, error)
	RecordActivity(ctx context.Context, a *model.RecentActivity) error
	ListRecentActivity(ctx context.Context, docID model.DocumentID, limit int) ([]*model.RecentActivity, error)

	Close() error
}

// CommandStatusFields carries the optional fields a status transition may
// set alongside the status itself (e.g. ApprovedBy on approve, ResultText
// on done).
type CommandStatusFields struct {
	ApprovedBy string
	ResultText string
	ErrorText  string
}

// ErrInvalidTransition is returned by SetCommandStatus for a disallowed
// from->to pair.
type ErrInvalidTransition struct {
	From, To model.CommandStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid command status transition: %s -> %s", e.From, e.To)
}

// ErrTerminal is returned by SetCommandStatus when the command is already
// in a terminal state (I2: terminal states are write-once).
type ErrTerminal struct {
	Status model.CommandStatus
}

func (e *ErrTerminal) Error() string {
	return fmt.Sprintf("command already in terminal state %s", e.Status)
}

// ErrNotFound is returned by Get/Find lookups that miss.
var ErrNotFound = fmt.Errorf("not found")

// allowedFrom maps each CommandStatus to the set of states it may
// transition into. This is the single enforced transition table (I1):
//
//	draft     -> pending, invalid
//	invalid   -> pending, approved (re-parse after a document edit)
//	pending   -> approved, rejected, expired
//	approved  -> executing, rejected (revoked before claim), failed (stale sweep)
//	executing -> done, failed, approved (inline dispatch failure, retried by the executor)
//
// All other states are terminal and accept no further transitions.
var allowedFrom = map[model.CommandStatus]map[model.CommandStatus]bool{
	model.StatusDraft:     {model.StatusPending: true, model.StatusInvalid: true},
	model.StatusInvalid:   {model.StatusPending: true, model.StatusApproved: true},
	model.StatusPending:   {model.StatusApproved: true, model.StatusRejected: true, model.StatusExpired: true},
	model.StatusApproved:  {model.StatusExecuting: true, model.StatusRejected: true, model.StatusFailed: true},
	model.StatusExecuting: {model.StatusDone: true, model.StatusFailed: true, model.StatusApproved: true},
}

// allowedTransition is the single pure function consulted by every backend's
// SetCommandStatus implementation, so the rule lives in exactly one place.
func allowedTransition(from, to model.CommandStatus) error {
	if from.IsTerminal() {
		return &ErrTerminal{Status: from}
	}
	if allowedFrom[from][to] {
		return nil
	}
	return &ErrInvalidTransition{From: from, To: to}
}
