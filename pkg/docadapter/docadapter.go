// Package docadapter is the boundary between the engine and the shared
// word-processing document itself. It is specified only at its
// interface: the real backend (Google Docs, a wiki, a CRDT store) is an
// external collaborator. TemplateAdapter is an in-memory reference
// implementation used for local development and tests.
package docadapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/docwallet-hq/agent/pkg/model"
)

// Row is one raw cell row from a tracked table, addressed by its
// position. Adapters must always re-resolve (TableName, RowIndex) fresh
// from the live document on every call rather than caching row
// identity, since rows can be inserted/removed between polls.
type Row struct {
	TableName string
	RowIndex  int
	Text      string
	EditedBy  string
}

// Snapshot is everything the poll tick needs from one pass over a
// document: every user-editable command row, plus a hash that changes
// if and only if the user-editable surface changed (I4: reconciliation
// skips a document whose hash matches the last seen one).
type Snapshot struct {
	Rows         []Row
	CommandsHash string
	RevisionID   string
}

// Adapter is the document backend boundary. All methods take the
// document's external ID, not the internal model.DocumentID, since the
// adapter has no knowledge of the repository's identifiers.
type Adapter interface {
	// Poll returns the current snapshot of a document's command tables.
	Poll(ctx context.Context, externalDocID string) (*Snapshot, error)
	// WriteResult writes a command's outcome back into its cell,
	// re-resolving (table, row) fresh rather than trusting a cached
	// position.
	WriteResult(ctx context.Context, externalDocID, table string, row int, status model.CommandStatus, resultText string) error
	// AppendActivity appends a line to the document's activity/log
	// section, if the document template defines one.
	AppendActivity(ctx context.Context, externalDocID, line string) error
}

// TemplateAdapter is an in-memory Adapter backed by a fixed set of table
// templates, suitable for demos and tests. Each "document" is simply a
// named set of command tables held in memory.
type TemplateAdapter struct {
	mu      sync.Mutex
	tables  map[string]map[string][]Row // externalDocID -> tableName -> rows
	revSeq  map[string]int
}

// NewTemplateAdapter creates an empty in-memory document store.
func NewTemplateAdapter() *TemplateAdapter {
	return &TemplateAdapter{
		tables: make(map[string]map[string][]Row),
		revSeq: make(map[string]int),
	}
}

// Seed installs or replaces the rows of a table within a document,
// simulating a user editing the shared document between polls.
func (a *TemplateAdapter) Seed(externalDocID, table string, rows []Row) {
	a.mu.Lock()
	defer a.mu.Unlock()
	doc, ok := a.tables[externalDocID]
	if !ok {
		doc = make(map[string][]Row)
		a.tables[externalDocID] = doc
	}
	doc[table] = rows
	a.revSeq[externalDocID]++
}

func (a *TemplateAdapter) Poll(_ context.Context, externalDocID string) (*Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	doc := a.tables[externalDocID]
	var rows []Row
	var tableNames []string
	for t := range doc {
		tableNames = append(tableNames, t)
	}
	sort.Strings(tableNames)
	for _, t := range tableNames {
		rows = append(rows, doc[t]...)
	}

	return &Snapshot{
		Rows:         rows,
		CommandsHash: userEditableCommandsHash(rows),
		RevisionID:   fmt.Sprintf("rev-%d", a.revSeq[externalDocID]),
	}, nil
}

func (a *TemplateAdapter) WriteResult(_ context.Context, externalDocID, table string, row int, status model.CommandStatus, resultText string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	doc, ok := a.tables[externalDocID]
	if !ok {
		return fmt.Errorf("document %s not found", externalDocID)
	}
	rows, ok := doc[table]
	if !ok {
		return fmt.Errorf("table %s not found in document %s", table, externalDocID)
	}
	for i := range rows {
		if rows[i].RowIndex == row {
			rows[i].Text = fmt.Sprintf("%s [%s: %s]", rows[i].Text, status, resultText)
			return nil
		}
	}
	return fmt.Errorf("row %d not found in table %s", row, table)
}

func (a *TemplateAdapter) AppendActivity(_ context.Context, externalDocID, line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	doc, ok := a.tables[externalDocID]
	if !ok {
		doc = make(map[string][]Row)
		a.tables[externalDocID] = doc
	}
	activity := doc["activity_log"]
	activity = append(activity, Row{TableName: "activity_log", RowIndex: len(activity), Text: line})
	doc["activity_log"] = activity
	return nil
}

// userEditableCommandsHash hashes the (table, row, text) triples of every
// row so that edits, insertions, and deletions all change the hash, but
// re-polling an untouched document reproduces it exactly (I4/P4).
func userEditableCommandsHash(rows []Row) string {
	h := sha256.New()
	for _, r := range rows {
		fmt.Fprintf(h, "%s\x00%d\x00%s\x00", r.TableName, r.RowIndex, strings.TrimSpace(r.Text))
	}
	return hex.EncodeToString(h.Sum(nil))
}
