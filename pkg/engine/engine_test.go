package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/docwallet-hq/agent/pkg/audit"
	"github.com/docwallet-hq/agent/pkg/dispatcher"
	"github.com/docwallet-hq/agent/pkg/docadapter"
	"github.com/docwallet-hq/agent/pkg/model"
	"github.com/docwallet-hq/agent/pkg/observability"
	"github.com/docwallet-hq/agent/pkg/ports"
	"github.com/docwallet-hq/agent/pkg/repository"
	"github.com/docwallet-hq/agent/pkg/resilience"
)

// newTestContext builds an engine Context backed entirely by in-memory
// implementations, suitable for exercising tick logic without a real
// document backend or blockchain client.
func newTestContext(t *testing.T) (*Context, *docadapter.TemplateAdapter) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo := repository.NewMemoryRepository()
	adapter := docadapter.NewTemplateAdapter()

	auditStore := audit.NewFileStore(t.TempDir())
	auditLog := audit.NewLogger(auditStore, "test")

	disp := dispatcher.New(logger, auditLog, ports.NewBreakerSet(), resilience.NewRateLimiterRegistry(100, 10))

	c := New(logger, repo, adapter, nil, disp, nil, nil, auditLog, observability.NewAgentMetrics())
	return c, adapter
}

func newTestDocument(t *testing.T, c *Context, externalID string) *model.Document {
	t.Helper()
	doc := &model.Document{
		ID:            model.DocumentID(externalID + "-id"),
		ExternalDocID: externalID,
	}
	if err := c.Repo.UpsertDocument(context.Background(), doc); err != nil {
		t.Fatalf("upsert document: %v", err)
	}
	return doc
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
