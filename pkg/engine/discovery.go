package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docwallet-hq/agent/pkg/model"
)

// discoveryBatchSize is how many discovered documents the discovery
// tick handles per batch (spec §5 backpressure). Every document the
// source returns is still handled in the same tick, batch after batch.
const discoveryBatchSize = 4

// DiscoveredDocument is one entry returned by a DiscoverySource: a
// document that exists in the backend, whether or not it is already
// tracked.
type DiscoveredDocument struct {
	ExternalID string
	Title      string
}

// DiscoverySource enumerates the documents available to this agent. It
// is specified only at its interface — listing documents in a real
// backend (a Drive folder, a wiki space) is an external collaborator,
// the same boundary docadapter.Adapter and the integration ports sit
// behind.
type DiscoverySource interface {
	ListDocuments(ctx context.Context) ([]DiscoveredDocument, error)
}

// DiscoveryTick enumerates the backend's documents, tracks any that are
// new, and archives any previously-tracked document the backend no
// longer returns (spec §4.7.1). It is a no-op if no DiscoverySource is
// wired.
func (c *Context) DiscoveryTick(ctx context.Context) error {
	if c.Discovery == nil {
		return nil
	}

	found, err := c.Discovery.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	seen := make(map[string]bool, len(found))
	for _, d := range found {
		seen[d.ExternalID] = true
	}

	for i := 0; i < len(found); i += discoveryBatchSize {
		end := i + discoveryBatchSize
		if end > len(found) {
			end = len(found)
		}
		for _, d := range found[i:end] {
			if err := c.ensureTracked(ctx, d); err != nil {
				c.Logger.Error("discovery: track document failed", "external_id", d.ExternalID, "error", err)
			}
		}
	}

	return c.archiveUntracked(ctx, seen)
}

func (c *Context) ensureTracked(ctx context.Context, d DiscoveredDocument) error {
	all, err := c.Repo.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, existing := range all {
		if existing.ExternalDocID == d.ExternalID {
			if existing.Title == d.Title && !existing.Archived {
				return nil
			}
			existing.Title = d.Title
			existing.Archived = false
			existing.UpdatedAt = time.Now()
			return c.Repo.UpsertDocument(ctx, existing)
		}
	}

	now := time.Now()
	doc := &model.Document{
		ID:            model.DocumentID(uuid.NewString()),
		ExternalDocID: d.ExternalID,
		Title:         d.Title,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.Repo.UpsertDocument(ctx, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	c.Logger.Info("discovery: tracking new document", "document_id", doc.ID, "external_id", d.ExternalID)
	return nil
}

func (c *Context) archiveUntracked(ctx context.Context, seen map[string]bool) error {
	tracked, err := c.trackedDocuments(ctx)
	if err != nil {
		return err
	}
	for _, doc := range tracked {
		if seen[doc.ExternalDocID] {
			continue
		}
		doc.Archived = true
		doc.UpdatedAt = time.Now()
		if err := c.Repo.UpsertDocument(ctx, doc); err != nil {
			c.Logger.Error("discovery: archive document failed", "document_id", doc.ID, "error", err)
			continue
		}
		c.Logger.Info("discovery: archived untracked document", "document_id", doc.ID)
	}
	return nil
}
