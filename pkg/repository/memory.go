package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/docwallet-hq/agent/pkg/model"
)

// MemoryRepository is an in-process repository for development and tests.
// For production, use SQLiteRepository or PostgresRepository.
type MemoryRepository struct {
	mu         sync.RWMutex
	documents  map[model.DocumentID]*model.Document
	commands   map[model.CommandID]*model.Command
	schedules  map[model.ScheduleID]*model.Schedule
	orders     map[model.OrderID]*model.ConditionalOrder
	prices     map[string]*model.PriceSnapshot
	configs    map[model.DocumentID]*model.DocConfig
	secrets    map[model.DocumentID]*model.DocSecrets
	audit      map[model.DocumentID][]*model.AuditEvent
	activity   map[model.DocumentID][]*model.RecentActivity
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		documents: make(map[model.DocumentID]*model.Document),
		commands:  make(map[model.CommandID]*model.Command),
		schedules: make(map[model.ScheduleID]*model.Schedule),
		orders:    make(map[model.OrderID]*model.ConditionalOrder),
		prices:    make(map[string]*model.PriceSnapshot),
		configs:   make(map[model.DocumentID]*model.DocConfig),
		secrets:   make(map[model.DocumentID]*model.DocSecrets),
		audit:     make(map[model.DocumentID][]*model.AuditEvent),
		activity:  make(map[model.DocumentID][]*model.RecentActivity),
	}
}

func (r *MemoryRepository) UpsertDocument(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}
	r.documents[doc.ID] = doc
	return nil
}

func (r *MemoryRepository) GetDocument(_ context.Context, id model.DocumentID) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (r *MemoryRepository) ListDocuments(_ context.Context) ([]*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Document, 0, len(r.documents))
	for _, d := range r.documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) UpdateDocumentPollState(_ context.Context, id model.DocumentID, hash, revID string, polledAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.documents[id]
	if !ok {
		return ErrNotFound
	}
	d.LastUserHash = hash
	d.LastSeenRevID = revID
	d.LastPolledAt = polledAt
	d.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) CreateCommand(_ context.Context, cmd *model.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	cmd.CreatedAt = now
	cmd.UpdatedAt = now
	r.commands[cmd.ID] = cmd
	return nil
}

func (r *MemoryRepository) GetCommand(_ context.Context, id model.CommandID) (*model.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepository) ListCommandsByDocument(_ context.Context, docID model.DocumentID) ([]*model.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Command
	for _, c := range r.commands {
		if c.DocumentID == docID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowIndex < out[j].RowIndex })
	return out, nil
}

func (r *MemoryRepository) ListCommandsByStatus(_ context.Context, status model.CommandStatus) ([]*model.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Command
	for _, c := range r.commands {
		if c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) FindCommandByCell(_ context.Context, docID model.DocumentID, table string, row int) (*model.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.commands {
		if c.DocumentID == docID && c.TableName == table && c.RowIndex == row {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) SetCommandStatus(_ context.Context, id model.CommandID, to model.CommandStatus, fields CommandStatusFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commands[id]
	if !ok {
		return ErrNotFound
	}
	if err := allowedTransition(c.Status, to); err != nil {
		return err
	}
	c.Status = to
	if fields.ApprovedBy != "" {
		c.ApprovedBy = fields.ApprovedBy
	}
	if fields.ResultText != "" {
		c.ResultText = fields.ResultText
	}
	if fields.ErrorText != "" {
		c.ErrorText = fields.ErrorText
	}
	c.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) ClaimForExecution(_ context.Context, id model.CommandID, executionHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commands[id]
	if !ok {
		return false, ErrNotFound
	}
	if c.Status != model.StatusApproved || c.ExecutionHash != "" {
		return false, nil
	}
	if err := allowedTransition(c.Status, model.StatusExecuting); err != nil {
		return false, err
	}
	c.Status = model.StatusExecuting
	c.ExecutionHash = executionHash
	c.UpdatedAt = time.Now()
	return true, nil
}

func (r *MemoryRepository) CreateSchedule(_ context.Context, s *model.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.CreatedAt = time.Now()
	r.schedules[s.ID] = s
	return nil
}

func (r *MemoryRepository) ListDueSchedules(_ context.Context, asOf time.Time) ([]*model.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Schedule
	for _, s := range r.schedules {
		if s.Enabled && !s.NextRunAt.After(asOf) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListSchedulesByDocument(_ context.Context, docID model.DocumentID) ([]*model.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Schedule
	for _, s := range r.schedules {
		if s.DocumentID == docID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkScheduleRun(_ context.Context, id model.ScheduleID, ranAt, nextAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return ErrNotFound
	}
	s.LastRunAt = ranAt
	s.NextRunAt = nextAt
	return nil
}

func (r *MemoryRepository) CreateOrder(_ context.Context, o *model.ConditionalOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.CreatedAt = time.Now()
	r.orders[o.ID] = o
	return nil
}

func (r *MemoryRepository) ListActiveOrders(_ context.Context, docID model.DocumentID) ([]*model.ConditionalOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.ConditionalOrder
	for _, o := range r.orders {
		if o.DocumentID == docID && !o.Triggered {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *MemoryRepository) TriggerOrder(_ context.Context, id model.OrderID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Triggered {
		return false, nil
	}
	o.Triggered = true
	o.TriggeredAt = at
	return true, nil
}

func (r *MemoryRepository) RecordPrice(_ context.Context, p *model.PriceSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[p.Asset] = p
	return nil
}

func (r *MemoryRepository) LatestPrice(_ context.Context, asset string) (*model.PriceSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prices[asset]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepository) GetConfig(_ context.Context, docID model.DocumentID) (*model.DocConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.configs[docID]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepository) PutConfig(_ context.Context, cfg *model.DocConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.DocumentID] = cfg
	return nil
}

func (r *MemoryRepository) GetSecrets(_ context.Context, docID model.DocumentID) (*model.DocSecrets, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.secrets[docID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepository) PutSecrets(_ context.Context, s *model.DocSecrets) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	} else {
		s.RotatedAt = time.Now()
	}
	r.secrets[s.DocumentID] = s
	return nil
}

func (r *MemoryRepository) AppendAuditEvent(_ context.Context, e *model.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	r.audit[e.DocumentID] = append(r.audit[e.DocumentID], e)
	return nil
}

func (r *MemoryRepository) ListAuditEvents(_ context.Context, docID model.DocumentID, limit int) ([]*model.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := r.audit[docID]
	return tailEvents(events, limit), nil
}

func (r *MemoryRepository) RecordActivity(_ context.Context, a *model.RecentActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now()
	}
	const maxActivity = 200
	list := append(r.activity[a.DocumentID], a)
	if len(list) > maxActivity {
		list = list[len(list)-maxActivity:]
	}
	r.activity[a.DocumentID] = list
	return nil
}

func (r *MemoryRepository) ListRecentActivity(_ context.Context, docID model.DocumentID, limit int) ([]*model.RecentActivity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.activity[docID]
	if limit <= 0 || limit >= len(list) {
		out := make([]*model.RecentActivity, len(list))
		copy(out, list)
		return out, nil
	}
	return append([]*model.RecentActivity(nil), list[len(list)-limit:]...), nil
}

func (r *MemoryRepository) Close() error { return nil }

func tailEvents(events []*model.AuditEvent, limit int) []*model.AuditEvent {
	if limit <= 0 || limit >= len(events) {
		out := make([]*model.AuditEvent, len(events))
		copy(out, events)
		return out
	}
	return append([]*model.AuditEvent(nil), events[len(events)-limit:]...)
}
