// Package model defines the shared domain types for the treasury agent:
// tracked documents, commands, schedules, conditional orders, and the
// audit trail that accompanies them.
package model

import (
	"encoding/json"
	"time"
)

// DocumentID identifies a tracked word-processing document.
type DocumentID string

// CommandID identifies a single parsed command row within a document.
type CommandID string

// ScheduleID identifies a recurring command definition.
type ScheduleID string

// OrderID identifies a conditional (trigger-based) order.
type OrderID string

// CommandStatus is the command lifecycle state. See allowedTransition in
// package repository for the enforced transition table.
type CommandStatus string

const (
	StatusDraft     CommandStatus = "draft"
	StatusInvalid   CommandStatus = "invalid"   // parse failed; surfaced to the user, not terminal
	StatusPending   CommandStatus = "pending"   // parsed, awaiting approval
	StatusApproved  CommandStatus = "approved"  // approved, awaiting execution
	StatusRejected  CommandStatus = "rejected"  // terminal
	StatusExecuting CommandStatus = "executing" // claimed by the dispatcher
	StatusDone      CommandStatus = "done"      // terminal, success
	StatusFailed    CommandStatus = "failed"    // terminal, failure
	StatusExpired   CommandStatus = "expired"   // terminal, approval window lapsed
)

// IsTerminal reports whether status is a terminal state (write-once per I2).
func (s CommandStatus) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusDone, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// Document tracks one shared word-processing document under polling.
type Document struct {
	ID              DocumentID `json:"id"`
	ExternalDocID   string     `json:"external_doc_id"`
	Title           string     `json:"title"`
	LastUserHash    string     `json:"last_user_hash"`
	LastPolledAt    time.Time  `json:"last_polled_at"`
	LastSeenRevID   string     `json:"last_seen_rev_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Archived        bool       `json:"archived"`

	// PrimaryAddress/SecondaryAddress are generated on first SETUP and
	// reseeded on ROTATE_KEYS; empty until then (I6).
	PrimaryAddress   string `json:"primary_address,omitempty"`
	SecondaryAddress string `json:"secondary_address,omitempty"`
}

// Command is a single parsed command row, addressed by its table/row
// coordinates within the owning document.
type Command struct {
	ID            CommandID       `json:"id"`
	DocumentID    DocumentID      `json:"document_id"`
	TableName     string          `json:"table_name"`
	RowIndex      int             `json:"row_index"`
	Kind          string          `json:"kind"`
	RawText       string          `json:"raw_text"`
	Args          json.RawMessage `json:"args"`
	Status        CommandStatus   `json:"status"`
	Channel       string          `json:"channel"`
	RequestedBy   string          `json:"requested_by"`
	ApprovedBy    string          `json:"approved_by,omitempty"`
	ResultText    string          `json:"result_text,omitempty"`
	ErrorText     string          `json:"error_text,omitempty"`
	ExecutionHash string          `json:"execution_hash,omitempty"` // idempotency key, set once at first execution claim
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	ApprovalTTL   time.Duration   `json:"approval_ttl,omitempty"`
}

// Schedule is a recurring command definition: either a fixed interval or a
// cron expression, both re-emitting the same command template each time.
type Schedule struct {
	ID         ScheduleID      `json:"id"`
	DocumentID DocumentID      `json:"document_id"`
	Kind       string          `json:"kind"`
	Args       json.RawMessage `json:"args"`
	CronExpr   string          `json:"cron_expr,omitempty"` // empty means fixed Interval is used
	Interval   time.Duration   `json:"interval,omitempty"`
	NextRunAt  time.Time       `json:"next_run_at"`
	LastRunAt  time.Time       `json:"last_run_at,omitempty"`
	Enabled    bool            `json:"enabled"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ConditionalOrder fires a command once a market-data condition is met.
type ConditionalOrder struct {
	ID         OrderID         `json:"id"`
	DocumentID DocumentID      `json:"document_id"`
	Kind       string          `json:"kind"`
	Args       json.RawMessage `json:"args"`
	Asset      string          `json:"asset"`
	Comparator string          `json:"comparator"` // "gte", "lte"
	Threshold  float64         `json:"threshold"`
	Triggered  bool            `json:"triggered"`
	TriggeredAt time.Time      `json:"triggered_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PriceSnapshot records one observed market price for an asset.
type PriceSnapshot struct {
	Asset     string    `json:"asset"`
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
}

// DocConfig holds per-document operating parameters (auto-approve policy,
// executor budget, demo mode, payout defaults, alert thresholds,
// auto-rebalance).
type DocConfig struct {
	DocumentID      DocumentID         `json:"document_id"`
	AutoApprove     []string           `json:"auto_approve"` // command kinds that skip the approval gate
	ExecutorBudget  int                `json:"executor_budget"`
	DemoMode        bool               `json:"demo_mode"`
	PayoutDefaults  json.RawMessage    `json:"payout_defaults,omitempty"`
	AlertThresholds map[string]float64 `json:"alert_thresholds,omitempty"`
	AutoRebalance   bool               `json:"auto_rebalance"`
}

// DocSecrets holds the encrypted credential bundle for one document's
// integrations. Ciphertext is opaque to this package; see pkg/vault.
type DocSecrets struct {
	DocumentID DocumentID `json:"document_id"`
	Ciphertext []byte     `json:"ciphertext"`
	Nonce      []byte     `json:"nonce"`
	CreatedAt  time.Time  `json:"created_at"`
	RotatedAt  time.Time  `json:"rotated_at,omitempty"`
}

// AuditLevel classifies an AuditEvent's severity.
type AuditLevel string

const (
	AuditInfo  AuditLevel = "info"
	AuditWarn  AuditLevel = "warn"
	AuditError AuditLevel = "error"
)

// AuditEvent is one append-only entry in a document's audit trail.
type AuditEvent struct {
	DocumentID DocumentID `json:"document_id"`
	CommandID  CommandID  `json:"command_id,omitempty"`
	Level      AuditLevel `json:"level"`
	Source     string     `json:"source"` // tick or component name that emitted it
	Message    string     `json:"message"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// RecentActivity is a denormalized, capped-length feed row shown in status
// surfaces (the approval UI and the TUI dashboard).
type RecentActivity struct {
	DocumentID DocumentID `json:"document_id"`
	CommandID  CommandID  `json:"command_id"`
	Kind       string     `json:"kind"`
	Status     CommandStatus `json:"status"`
	Summary    string     `json:"summary"`
	OccurredAt time.Time  `json:"occurred_at"`
}
