// PostgreSQL-backed durable repository for multi-instance HA deployments
// of the treasury agent (multiple dispatcher/approval-surface replicas
// sharing one database).
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/docwallet-hq/agent/pkg/model"
)

// PostgresConfig holds connection parameters for PostgreSQL.
type PostgresConfig struct {
	Host     string `json:"host"     env:"DOCWALLET_PG_HOST"`
	Port     int    `json:"port"     env:"DOCWALLET_PG_PORT"`
	User     string `json:"user"     env:"DOCWALLET_PG_USER"`
	Password string `json:"password" env:"DOCWALLET_PG_PASSWORD"`
	Database string `json:"database" env:"DOCWALLET_PG_DATABASE"`
	SSLMode  string `json:"ssl_mode" env:"DOCWALLET_PG_SSLMODE"`
}

// DSN returns a PostgreSQL connection string.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.Database, sslMode)
}

// PostgresRepository implements Repository atop PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository opens a connection pool and runs migrations.
func NewPostgresRepository(cfg PostgresConfig) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PostgresRepository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *PostgresRepository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			external_doc_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			last_user_hash TEXT NOT NULL DEFAULT '',
			last_polled_at TIMESTAMPTZ,
			last_seen_rev_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			archived BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS commands (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			table_name TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			kind TEXT NOT NULL,
			raw_text TEXT NOT NULL DEFAULT '',
			args JSONB NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			channel TEXT NOT NULL DEFAULT '',
			requested_by TEXT NOT NULL DEFAULT '',
			approved_by TEXT NOT NULL DEFAULT '',
			result_text TEXT NOT NULL DEFAULT '',
			error_text TEXT NOT NULL DEFAULT '',
			execution_hash TEXT NOT NULL DEFAULT '',
			approval_ttl BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (document_id, table_name, row_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_document ON commands(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_status ON commands(status)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			args JSONB NOT NULL DEFAULT '{}',
			cron_expr TEXT NOT NULL DEFAULT '',
			interval_ns BIGINT NOT NULL DEFAULT 0,
			next_run_at TIMESTAMPTZ,
			last_run_at TIMESTAMPTZ,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(next_run_at)`,
		`CREATE TABLE IF NOT EXISTS conditional_orders (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			args JSONB NOT NULL DEFAULT '{}',
			asset TEXT NOT NULL,
			comparator TEXT NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			triggered BOOLEAN NOT NULL DEFAULT FALSE,
			triggered_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS prices (
			asset TEXT PRIMARY KEY,
			price DOUBLE PRECISION NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			observed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS doc_configs (
			document_id TEXT PRIMARY KEY,
			auto_approve JSONB NOT NULL DEFAULT '[]',
			executor_budget INTEGER NOT NULL DEFAULT 5,
			demo_mode BOOLEAN NOT NULL DEFAULT TRUE,
			payout_defaults JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS doc_secrets (
			document_id TEXT PRIMARY KEY,
			ciphertext BYTEA NOT NULL,
			nonce BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			rotated_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id BIGSERIAL PRIMARY KEY,
			document_id TEXT NOT NULL,
			command_id TEXT NOT NULL DEFAULT '',
			level TEXT NOT NULL DEFAULT 'info',
			source TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_document ON audit_events(document_id)`,
		`CREATE TABLE IF NOT EXISTS recent_activity (
			id BIGSERIAL PRIMARY KEY,
			document_id TEXT NOT NULL,
			command_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, m := range migrations {
		if _, err := r.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

func (r *PostgresRepository) Close() error { return r.db.Close() }

func (r *PostgresRepository) UpsertDocument(ctx context.Context, doc *model.Document) error {
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (id, external_doc_id, title, last_user_hash, last_polled_at, last_seen_rev_id, created_at, updated_at, archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT(id) DO UPDATE SET
			external_doc_id=EXCLUDED.external_doc_id, title=EXCLUDED.title,
			updated_at=EXCLUDED.updated_at, archived=EXCLUDED.archived`,
		doc.ID, doc.ExternalDocID, doc.Title, doc.LastUserHash, doc.LastPolledAt, doc.LastSeenRevID, doc.CreatedAt, doc.UpdatedAt, doc.Archived)
	return err
}

func (r *PostgresRepository) GetDocument(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, external_doc_id, title, last_user_hash, last_polled_at, last_seen_rev_id, created_at, updated_at, archived FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

func (r *PostgresRepository) ListDocuments(ctx context.Context) ([]*model.Document, error) {
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

func (r *PostgresRepository) UpdateDocumentPollState(ctx context.Context, id model.DocumentID, hash, revID string, polledAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE documents SET last_user_hash=$1, last_seen_rev_id=$2, last_polled_at=$3, updated_at=$4 WHERE id=$5`,
		hash, revID, polledAt, time.Now(), id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

const pgCommandColumns = `id, document_id, table_name, row_index, kind, raw_text, args, status, channel, requested_by, approved_by, result_text, error_text, execution_hash, approval_ttl, created_at, updated_at`

func (r *PostgresRepository) CreateCommand(ctx context.Context, cmd *model.Command) error {
	now := time.Now()
	cmd.CreatedAt = now
	cmd.UpdatedAt = now
	args, err := marshalArgs(cmd.Args)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO commands (`+pgCommandColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		cmd.ID, cmd.DocumentID, cmd.TableName, cmd.RowIndex, cmd.Kind, cmd.RawText, args, cmd.Status, cmd.Channel,
		cmd.RequestedBy, cmd.ApprovedBy, cmd.ResultText, cmd.ErrorText, cmd.ExecutionHash, int64(cmd.ApprovalTTL), cmd.CreatedAt, cmd.UpdatedAt)
	return err
}

func (r *PostgresRepository) GetCommand(ctx context.Context, id model.CommandID) (*model.Command, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+pgCommandColumns+` FROM commands WHERE id = $1`, id)
	return scanCommand(row)
}

func (r *PostgresRepository) ListCommandsByDocument(ctx context.Context, docID model.DocumentID) ([]*model.Command, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+pgCommandColumns+` FROM commands WHERE document_id = $1 ORDER BY row_index`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCommands(rows)
}

func (r *PostgresRepository) ListCommandsByStatus(ctx context.Context, status model.CommandStatus) ([]*model.Command, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+pgCommandColumns+` FROM commands WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCommands(rows)
}

func (r *PostgresRepository) FindCommandByCell(ctx context.Context, docID model.DocumentID, table string, row int) (*model.Command, error) {
	result := r.db.QueryRowContext(ctx, `SELECT `+pgCommandColumns+` FROM commands WHERE document_id = $1 AND table_name = $2 AND row_index = $3`, docID, table, row)
	return scanCommand(result)
}

func (r *PostgresRepository) SetCommandStatus(ctx context.Context, id model.CommandID, to model.CommandStatus, fields CommandStatusFields) error {
	cur, err := r.GetCommand(ctx, id)
	if err != nil {
		return err
	}
	if err := allowedTransition(cur.Status, to); err != nil {
		return err
	}
	approvedBy, resultText, errorText := cur.ApprovedBy, cur.ResultText, cur.ErrorText
	if fields.ApprovedBy != "" {
		approvedBy = fields.ApprovedBy
	}
	if fields.ResultText != "" {
		resultText = fields.ResultText
	}
	if fields.ErrorText != "" {
		errorText = fields.ErrorText
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE commands SET status=$1, approved_by=$2, result_text=$3, error_text=$4, updated_at=$5
		WHERE id = $6 AND status = $7`,
		to, approvedBy, resultText, errorText, time.Now(), id, cur.Status)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *PostgresRepository) ClaimForExecution(ctx context.Context, id model.CommandID, executionHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE commands SET status=$1, execution_hash=$2, updated_at=$3
		WHERE id = $4 AND status = $5 AND execution_hash = ''`,
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

func (r *PostgresRepository) CreateSchedule(ctx context.Context, s *model.Schedule) error {
	s.CreatedAt = time.Now()
	args, err := marshalArgs(s.Args)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedules (id, document_id, kind, args, cron_expr, interval_ns, next_run_at, last_run_at, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.DocumentID, s.Kind, args, s.CronExpr, int64(s.Interval), s.NextRunAt, nullableTime(s.LastRunAt), s.Enabled, s.CreatedAt)
	return err
}

func (r *PostgresRepository) ListDueSchedules(ctx context.Context, asOf time.Time) ([]*model.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, document_id, kind, args, cron_expr, interval_ns, next_run_at, last_run_at, enabled, created_at
		FROM schedules WHERE enabled = TRUE AND next_run_at <= $1`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

func (r *PostgresRepository) ListSchedulesByDocument(ctx context.Context, docID model.DocumentID) ([]*model.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, document_id, kind, args, cron_expr, interval_ns, next_run_at, last_run_at, enabled, created_at
		FROM schedules WHERE document_id = $1`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

func (r *PostgresRepository) MarkScheduleRun(ctx context.Context, id model.ScheduleID, ranAt, nextAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE schedules SET last_run_at=$1, next_run_at=$2 WHERE id=$3`, ranAt, nextAt, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.ConditionalOrder) error {
	o.CreatedAt = time.Now()
	args, err := marshalArgs(o.Args)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO conditional_orders (id, document_id, kind, args, asset, comparator, threshold, triggered, triggered_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.DocumentID, o.Kind, args, o.Asset, o.Comparator, o.Threshold, o.Triggered, nullableTime(o.TriggeredAt), o.CreatedAt)
	return err
}

func (r *PostgresRepository) ListActiveOrders(ctx context.Context, docID model.DocumentID) ([]*model.ConditionalOrder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, document_id, kind, args, asset, comparator, threshold, triggered, triggered_at, created_at
		FROM conditional_orders WHERE document_id = $1 AND triggered = FALSE`, docID)
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

func (r *PostgresRepository) TriggerOrder(ctx context.Context, id model.OrderID, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE conditional_orders SET triggered=TRUE, triggered_at=$1 WHERE id=$2 AND triggered=FALSE`, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) RecordPrice(ctx context.Context, p *model.PriceSnapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO prices (asset, price, source, observed_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT(asset) DO UPDATE SET price=EXCLUDED.price, source=EXCLUDED.source, observed_at=EXCLUDED.observed_at`,
		p.Asset, p.Price, p.Source, p.ObservedAt)
	return err
}

func (r *PostgresRepository) LatestPrice(ctx context.Context, asset string) (*model.PriceSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT asset, price, source, observed_at FROM prices WHERE asset = $1`, asset)
	p := &model.PriceSnapshot{}
	if err := row.Scan(&p.Asset, &p.Price, &p.Source, &p.ObservedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) GetConfig(ctx context.Context, docID model.DocumentID) (*model.DocConfig, error) {
	row := r.db.QueryRowContext(ctx, `SELECT document_id, auto_approve, executor_budget, demo_mode, payout_defaults FROM doc_configs WHERE document_id = $1`, docID)
	c := &model.DocConfig{}
	var autoApprove, payout string
	if err := row.Scan(&c.DocumentID, &autoApprove, &c.ExecutorBudget, &c.DemoMode, &payout); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(autoApprove), &c.AutoApprove); err != nil {
		return nil, fmt.Errorf("decode auto_approve: %w", err)
	}
	c.PayoutDefaults = json.RawMessage(payout)
	return c, nil
}

func (r *PostgresRepository) PutConfig(ctx context.Context, cfg *model.DocConfig) error {
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
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(document_id) DO UPDATE SET
			auto_approve=EXCLUDED.auto_approve, executor_budget=EXCLUDED.executor_budget,
			demo_mode=EXCLUDED.demo_mode, payout_defaults=EXCLUDED.payout_defaults`,
		cfg.DocumentID, string(autoApprove), cfg.ExecutorBudget, cfg.DemoMode, payout)
	return err
}

func (r *PostgresRepository) GetSecrets(ctx context.Context, docID model.DocumentID) (*model.DocSecrets, error) {
	row := r.db.QueryRowContext(ctx, `SELECT document_id, ciphertext, nonce, created_at, rotated_at FROM doc_secrets WHERE document_id = $1`, docID)
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

func (r *PostgresRepository) PutSecrets(ctx context.Context, s *model.DocSecrets) error {
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
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(document_id) DO UPDATE SET
			ciphertext=EXCLUDED.ciphertext, nonce=EXCLUDED.nonce, rotated_at=EXCLUDED.rotated_at`,
		s.DocumentID, s.Ciphertext, s.Nonce, s.CreatedAt, nullableTime(s.RotatedAt))
	return err
}

func (r *PostgresRepository) AppendAuditEvent(ctx context.Context, e *model.AuditEvent) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (document_id, command_id, level, source, message, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.DocumentID, e.CommandID, e.Level, e.Source, e.Message, e.OccurredAt)
	return err
}

func (r *PostgresRepository) ListAuditEvents(ctx context.Context, docID model.DocumentID, limit int) ([]*model.AuditEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT document_id, command_id, level, source, message, occurred_at FROM audit_events
		WHERE document_id = $1 ORDER BY id DESC LIMIT $2`, docID, limit)
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

func (r *PostgresRepository) RecordActivity(ctx context.Context, a *model.RecentActivity) error {
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recent_activity (document_id, command_id, kind, status, summary, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.DocumentID, a.CommandID, a.Kind, a.Status, a.Summary, a.OccurredAt)
	return err
}

func (r *PostgresRepository) ListRecentActivity(ctx context.Context, docID model.DocumentID, limit int) ([]*model.RecentActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT document_id, command_id, kind, status, summary, occurred_at FROM recent_activity
		WHERE document_id = $1 ORDER BY id DESC LIMIT $2`, docID, limit)
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
