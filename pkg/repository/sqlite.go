// SQLite-backed durable repository, suitable for single-node deployments.
// For multi-node HA, use PostgresRepository instead.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/docwallet-hq/agent/pkg/model"
)

// SQLiteRepository implements Repository atop a single SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (and migrates) a SQLite-backed repository.
// Use ":memory:" for an ephemeral database in tests.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRepository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			external_doc_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			last_user_hash TEXT NOT NULL DEFAULT '',
			last_polled_at DATETIME,
			last_seen_rev_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			archived INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS commands (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			table_name TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			kind TEXT NOT NULL,
			raw_text TEXT NOT NULL DEFAULT '',
			args TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			channel TEXT NOT NULL DEFAULT '',
			requested_by TEXT NOT NULL DEFAULT '',
			approved_by TEXT NOT NULL DEFAULT '',
			result_text TEXT NOT NULL DEFAULT '',
			error_text TEXT NOT NULL DEFAULT '',
			execution_hash TEXT NOT NULL DEFAULT '',
			approval_ttl INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_document ON commands(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_status ON commands(status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_commands_cell ON commands(document_id, table_name, row_index)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			args TEXT NOT NULL DEFAULT '{}',
			cron_expr TEXT NOT NULL DEFAULT '',
			interval_ns INTEGER NOT NULL DEFAULT 0,
			next_run_at DATETIME,
			last_run_at DATETIME,
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_document ON schedules(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(next_run_at)`,
		`CREATE TABLE IF NOT EXISTS conditional_orders (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			args TEXT NOT NULL DEFAULT '{}',
			asset TEXT NOT NULL,
			comparator TEXT NOT NULL,
			threshold REAL NOT NULL,
			triggered INTEGER NOT NULL DEFAULT 0,
			triggered_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_document ON conditional_orders(document_id)`,
		`CREATE TABLE IF NOT EXISTS prices (
			asset TEXT PRIMARY KEY,
			price REAL NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			observed_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS doc_configs (
			document_id TEXT PRIMARY KEY,
			auto_approve TEXT NOT NULL DEFAULT '[]',
			executor_budget INTEGER NOT NULL DEFAULT 5,
			demo_mode INTEGER NOT NULL DEFAULT 1,
			payout_defaults TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS doc_secrets (
			document_id TEXT PRIMARY KEY,
			ciphertext BLOB NOT NULL,
			nonce BLOB NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			rotated_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id TEXT NOT NULL,
			command_id TEXT NOT NULL DEFAULT '',
			level TEXT NOT NULL DEFAULT 'info',
			source TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_document ON audit_events(document_id)`,
		`CREATE TABLE IF NOT EXISTS recent_activity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id TEXT NOT NULL,
			command_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_document ON recent_activity(document_id)`,
	}
	for _, m := range migrations {
		if _, err := r.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

func (r *SQLiteRepository) Close() error { return r.db.Close() }

func (r *SQLiteRepository) UpsertDocument(ctx context.Context, doc *model.Document) error {
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (id, external_doc_id, title, last_user_hash, last_polled_at, last_seen_rev_id, created_at, updated_at, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			external_doc_id=excluded.external_doc_id,
			title=excluded.title,
			updated_at=excluded.updated_at,
			archived=excluded.archived`,
		doc.ID, doc.ExternalDocID, doc.Title, doc.LastUserHash, doc.LastPolledAt, doc.LastSeenRevID, doc.CreatedAt, doc.UpdatedAt, boolToInt(doc.Archived))
	return err
}

func (r *SQLiteRepository) GetDocument(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, external_doc_id, title, last_user_hash, last_polled_at, last_seen_rev_id, created_at, updated_at, archived FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

func (r *SQLiteRepository) ListDocuments(ctx context.Context) ([]*model.Document, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, external_doc_id, title, last_user_hash, last_polled_at, last_seen_rev_id, created_at, updated_at, archived FROM documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateDocumentPollState(ctx context.Context, id model.DocumentID, hash, revID string, polledAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE documents SET last_user_hash=?, last_seen_rev_id=?, last_polled_at=?, updated_at=? WHERE id=?`,
		hash, revID, polledAt, time.Now(), id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) CreateCommand(ctx context.Context, cmd *model.Command) error {
	now := time.Now()
	cmd.CreatedAt = now
	cmd.UpdatedAt = now
	args, err := marshalArgs(cmd.Args)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO commands (id, document_id, table_name, row_index, kind, raw_text, args, status, channel, requested_by, approved_by, result_text, error_text, execution_hash, approval_ttl, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cmd.ID, cmd.DocumentID, cmd.TableName, cmd.RowIndex, cmd.Kind, cmd.RawText, args, cmd.Status, cmd.Channel,
		cmd.RequestedBy, cmd.ApprovedBy, cmd.ResultText, cmd.ErrorText, cmd.ExecutionHash, int64(cmd.ApprovalTTL), cmd.CreatedAt, cmd.UpdatedAt)
	return err
}

const commandColumns = `id, document_id, table_name, row_index, kind, raw_text, args, status, channel, requested_by, approved_by, result_text, error_text, execution_hash, approval_ttl, created_at, updated_at`

func (r *SQLiteRepository) GetCommand(ctx context.Context, id model.CommandID) (*model.Command, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+commandColumns+` FROM commands WHERE id = ?`, id)
	return scanCommand(row)
}

func (r *SQLiteRepository) ListCommandsByDocument(ctx context.Context, docID model.DocumentID) ([]*model.Command, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+commandColumns+` FROM commands WHERE document_id = ? ORDER BY row_index`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCommands(rows)
}

func (r *SQLiteRepository) ListCommandsByStatus(ctx context.Context, status model.CommandStatus) ([]*model.Command, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+commandColumns+` FROM commands WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCommands(rows)
}

func (r *SQLiteRepository) FindCommandByCell(ctx context.Context, docID model.DocumentID, table string, row int) (*model.Command, error) {
	result := r.db.QueryRowContext(ctx, `SELECT `+commandColumns+` FROM commands WHERE document_id = ? AND table_name = ? AND row_index = ?`, docID, table, row)
	return scanCommand(result)
}

func (r *SQLiteRepository) SetCommandStatus(ctx context.Context, id model.CommandID, to model.CommandStatus, fields CommandStatusFields) error {
	cur, err := r.GetCommand(ctx, id)
	if err != nil {
		return err
	}
	if err := allowedTransition(cur.Status, to); err != nil {
		return err
	}
	query := `UPDATE commands SET status=?, updated_at=?`
	args := []any{to, time.Now()}
	if fields.ApprovedBy != "" {
		query += `, approved_by=?`
		args = append(args, fields.ApprovedBy)
	}
	if fields.ResultText != "" {
		query += `, result_text=?`
		args = append(args, fields.ResultText)
	}
	if fields.ErrorText != "" {
		query += `, error_text=?`
		args = append(args, fields.ErrorText)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, cur.Status)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ClaimForExecution(ctx context.Context, id model.CommandID, executionHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE commands SET status=?, execution_hash=?, updated_at=?
		WHERE id = ? AND status = ? AND execution_hash = ''`,
		model.StatusExecuting, executionHash, time.Now(), id, model.StatusApproved)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SQLiteRepository) CreateSchedule(ctx context.Context, s *model.Schedule) error {
	s.CreatedAt = time.Now()
	args, err := marshalArgs(s.Args)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedules (id, document_id, kind, args, cron_expr, interval_ns, next_run_at, last_run_at, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.DocumentID, s.Kind, args, s.CronExpr, int64(s.Interval), s.NextRunAt, nullableTime(s.LastRunAt), boolToInt(s.Enabled), s.CreatedAt)
	return err
}

const scheduleColumns = `id, document_id, kind, args, cron_expr, interval_ns, next_run_at, last_run_at, enabled, created_at`

func (r *SQLiteRepository) ListDueSchedules(ctx context.Context, asOf time.Time) ([]*model.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE enabled = 1 AND next_run_at <= ?`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

func (r *SQLiteRepository) ListSchedulesByDocument(ctx context.Context, docID model.DocumentID) ([]*model.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE document_id = ?`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

func (r *SQLiteRepository) MarkScheduleRun(ctx context.Context, id model.ScheduleID, ranAt, nextAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE schedules SET last_run_at=?, next_run_at=? WHERE id=?`, ranAt, nextAt, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) CreateOrder(ctx context.Context, o *model.ConditionalOrder) error {
	o.CreatedAt = time.Now()
	args, err := marshalArgs(o.Args)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO conditional_orders (id, document_id, kind, args, asset, comparator, threshold, triggered, triggered_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.DocumentID, o.Kind, args, o.Asset, o.Comparator, o.Threshold, boolToInt(o.Triggered), nullableTime(o.TriggeredAt), o.CreatedAt)
	return err
}

func (r *SQLiteRepository) ListActiveOrders(ctx context.Context, docID model.DocumentID) ([]*model.ConditionalOrder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, document_id, kind, args, asset, comparator, threshold, triggered, triggered_at, created_at
		FROM conditional_orders WHERE document_id = ? AND triggered = 0`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ConditionalOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) TriggerOrder(ctx context.Context, id model.OrderID, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE conditional_orders SET triggered=1, triggered_at=? WHERE id=? AND triggered=0`, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SQLiteRepository) RecordPrice(ctx context.Context, p *model.PriceSnapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO prices (asset, price, source, observed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(asset) DO UPDATE SET price=excluded.price, source=excluded.source, observed_at=excluded.observed_at`,
		p.Asset, p.Price, p.Source, p.ObservedAt)
	return err
}

func (r *SQLiteRepository) LatestPrice(ctx context.Context, asset string) (*model.PriceSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT asset, price, source, observed_at FROM prices WHERE asset = ?`, asset)
	p := &model.PriceSnapshot{}
	if err := row.Scan(&p.Asset, &p.Price, &p.Source, &p.ObservedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, docID model.DocumentID) (*model.DocConfig, error) {
	row := r.db.QueryRowContext(ctx, `SELECT document_id, auto_approve, executor_budget, demo_mode, payout_defaults FROM doc_configs WHERE document_id = ?`, docID)
	c := &model.DocConfig{}
	var autoApprove, payout string
	var demoMode int
	if err := row.Scan(&c.DocumentID, &autoApprove, &c.ExecutorBudget, &demoMode, &payout); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.DemoMode = demoMode != 0
	if err := json.Unmarshal([]byte(autoApprove), &c.AutoApprove); err != nil {
		return nil, fmt.Errorf("decode auto_approve: %w", err)
	}
	c.PayoutDefaults = json.RawMessage(payout)
	return c, nil
}

func (r *SQLiteRepository) PutConfig(ctx context.Context, cfg *model.DocConfig) error {
	autoApprove, err := json.Marshal(cfg.AutoApprove)
	if err != nil {
		return err
	}
	payout, err := marshalArgs(cfg.PayoutDefaults)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO doc_configs (document_id, auto_approve, executor_budget, demo_mode, payout_defaults)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			auto_approve=excluded.auto_approve, executor_budget=excluded.executor_budget,
			demo_mode=excluded.demo_mode, payout_defaults=excluded.payout_defaults`,
		cfg.DocumentID, string(autoApprove), cfg.ExecutorBudget, boolToInt(cfg.DemoMode), payout)
	return err
}

func (r *SQLiteRepository) GetSecrets(ctx context.Context, docID model.DocumentID) (*model.DocSecrets, error) {
	row := r.db.QueryRowContext(ctx, `SELECT document_id, ciphertext, nonce, created_at, rotated_at FROM doc_secrets WHERE document_id = ?`, docID)
	s := &model.DocSecrets{}
	var rotated sql.NullTime
	if err := row.Scan(&s.DocumentID, &s.Ciphertext, &s.Nonce, &s.CreatedAt, &rotated); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if rotated.Valid {
		s.RotatedAt = rotated.Time
	}
	return s, nil
}

func (r *SQLiteRepository) PutSecrets(ctx context.Context, s *model.DocSecrets) error {
	existing, err := r.GetSecrets(ctx, s.DocumentID)
	now := time.Now()
	if err == nil {
		s.CreatedAt = existing.CreatedAt
		s.RotatedAt = now
	} else {
		s.CreatedAt = now
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO doc_secrets (document_id, ciphertext, nonce, created_at, rotated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			ciphertext=excluded.ciphertext, nonce=excluded.nonce, rotated_at=excluded.rotated_at`,
		s.DocumentID, s.Ciphertext, s.Nonce, s.CreatedAt, nullableTime(s.RotatedAt))
	return err
}

func (r *SQLiteRepository) AppendAuditEvent(ctx context.Context, e *model.AuditEvent) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (document_id, command_id, level, source, message, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.DocumentID, e.CommandID, e.Level, e.Source, e.Message, e.OccurredAt)
	return err
}

func (r *SQLiteRepository) ListAuditEvents(ctx context.Context, docID model.DocumentID, limit int) ([]*model.AuditEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT document_id, command_id, level, source, message, occurred_at FROM audit_events
		WHERE document_id = ? ORDER BY id DESC LIMIT ?`, docID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.AuditEvent
	for rows.Next() {
		e := &model.AuditEvent{}
		if err := rows.Scan(&e.DocumentID, &e.CommandID, &e.Level, &e.Source, &e.Message, &e.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) RecordActivity(ctx context.Context, a *model.RecentActivity) error {
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recent_activity (document_id, command_id, kind, status, summary, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.DocumentID, a.CommandID, a.Kind, a.Status, a.Summary, a.OccurredAt)
	return err
}

func (r *SQLiteRepository) ListRecentActivity(ctx context.Context, docID model.DocumentID, limit int) ([]*model.RecentActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT document_id, command_id, kind, status, summary, occurred_at FROM recent_activity
		WHERE document_id = ? ORDER BY id DESC LIMIT ?`, docID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.RecentActivity
	for rows.Next() {
		a := &model.RecentActivity{}
		if err := rows.Scan(&a.DocumentID, &a.CommandID, &a.Kind, &a.Status, &a.Summary, &a.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- scanning / marshaling helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*model.Document, error) {
	d := &model.Document{}
	var archived int
	var polledAt sql.NullTime
	if err := row.Scan(&d.ID, &d.ExternalDocID, &d.Title, &d.LastUserHash, &polledAt, &d.LastSeenRevID, &d.CreatedAt, &d.UpdatedAt, &archived); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d.Archived = archived != 0
	if polledAt.Valid {
		d.LastPolledAt = polledAt.Time
	}
	return d, nil
}

func scanCommand(row scanner) (*model.Command, error) {
	c := &model.Command{}
	var argsRaw string
	var ttlNS int64
	if err := row.Scan(&c.ID, &c.DocumentID, &c.TableName, &c.RowIndex, &c.Kind, &c.RawText, &argsRaw, &c.Status, &c.Channel,
		&c.RequestedBy, &c.ApprovedBy, &c.ResultText, &c.ErrorText, &c.ExecutionHash, &ttlNS, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Args = json.RawMessage(argsRaw)
	c.ApprovalTTL = time.Duration(ttlNS)
	return c, nil
}

func scanCommands(rows *sql.Rows) ([]*model.Command, error) {
	var out []*model.Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanSchedules(rows *sql.Rows) ([]*model.Schedule, error) {
	var out []*model.Schedule
	for rows.Next() {
		s := &model.Schedule{}
		var argsRaw string
		var intervalNS int64
		var lastRun sql.NullTime
		var enabled int
		if err := rows.Scan(&s.ID, &s.DocumentID, &s.Kind, &argsRaw, &s.CronExpr, &intervalNS, &s.NextRunAt, &lastRun, &enabled, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Args = json.RawMessage(argsRaw)
		s.Interval = time.Duration(intervalNS)
		s.Enabled = enabled != 0
		if lastRun.Valid {
			s.LastRunAt = lastRun.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanOrder(rows *sql.Rows) (*model.ConditionalOrder, error) {
	o := &model.ConditionalOrder{}
	var argsRaw string
	var triggered int
	var triggeredAt sql.NullTime
	if err := rows.Scan(&o.ID, &o.DocumentID, &o.Kind, &argsRaw, &o.Asset, &o.Comparator, &o.Threshold, &triggered, &triggeredAt, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Args = json.RawMessage(argsRaw)
	o.Triggered = triggered != 0
	if triggeredAt.Valid {
		o.TriggeredAt = triggeredAt.Time
	}
	return o, nil
}

func marshalArgs(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "{}", nil
	}
	return string(raw), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
