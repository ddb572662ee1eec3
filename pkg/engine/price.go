package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docwallet-hq/agent/pkg/command"
	"github.com/docwallet-hq/agent/pkg/model"
	"github.com/docwallet-hq/agent/pkg/ports"
)

// priceAssets mirrors balanceAssets: spec.md leaves the tracked asset
// universe unspecified, so the tick watches the same fixed set the demo
// stubs ship with.
var priceAssets = []string{"BTC", "ETH", "USDC"}

// PriceTick refreshes the cached price for every tracked asset and
// evaluates each document's active conditional orders against it (spec
// §4.7.7).
func (c *Context) PriceTick(ctx context.Context) error {
	docs, err := c.trackedDocuments(ctx)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		registry := c.RegistryFor(doc.ID)
		if registry.MarketData == nil {
			continue
		}
		for _, asset := range priceAssets {
			c.refreshPrice(ctx, registry, asset)
		}
	}

	for _, doc := range docs {
		if err := c.evaluateOrders(ctx, doc); err != nil {
			c.Logger.Error("price: evaluate orders failed", "document_id", doc.ID, "error", err)
		}
	}
	return nil
}

// refreshPrice reads the primary MarketData port and falls back to the
// demo reference prices if the primary source errors or returns zero,
// so conditional orders can still be evaluated against a sane price
// while a real feed is degraded.
func (c *Context) refreshPrice(ctx context.Context, registry *ports.Registry, asset string) {
	price, err := registry.MarketData.Price(ctx, asset)
	source := "primary"
	if err != nil || price == 0 {
		c.Logger.Warn("price: primary source failed, falling back to reference price", "asset", asset, "error", err)
		fallback := ports.NewDemoMarketData()
		price, err = fallback.Price(ctx, asset)
		source = "fallback"
		if err != nil {
			c.Logger.Error("price: fallback source also failed", "asset", asset, "error", err)
			return
		}
	}
	if err := c.Repo.RecordPrice(ctx, &model.PriceSnapshot{Asset: asset, Price: price, Source: source, ObservedAt: time.Now()}); err != nil {
		c.Logger.Error("price: record failed", "asset", asset, "error", err)
	}
}

func (c *Context) evaluateOrders(ctx context.Context, doc *model.Document) error {
	orders, err := c.Repo.ListActiveOrders(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("list active orders: %w", err)
	}

	for _, o := range orders {
		snap, err := c.Repo.LatestPrice(ctx, o.Asset)
		if err != nil {
			continue
		}
		if !conditionMet(o.Comparator, snap.Price, o.Threshold) {
			continue
		}
		c.triggerOrder(ctx, doc, o, snap.Price)
	}
	return nil
}

func conditionMet(comparator string, observed, threshold float64) bool {
	switch comparator {
	case "gte":
		return observed >= threshold
	case "lte":
		return observed <= threshold
	default:
		return false
	}
}

func (c *Context) triggerOrder(ctx context.Context, doc *model.Document, o *model.ConditionalOrder, observed float64) {
	triggered, err := c.Repo.TriggerOrder(ctx, o.ID, time.Now())
	if err != nil {
		c.Logger.Error("price: trigger order failed", "order_id", o.ID, "error", err)
		return
	}
	if !triggered {
		return // already triggered by a concurrent evaluation
	}
	c.Metrics.OrdersTriggered.Inc()
	_ = c.Audit.LogOrderTrigger(ctx, string(doc.ID), string(o.ID), observed)

	kind := command.Kind(o.Kind)
	args, err := command.Parse(kind, o.Args)
	if err != nil {
		c.Logger.Error("price: parse triggered order args failed", "order_id", o.ID, "error", err)
		return
	}
	raw, err := command.Format(kind, args)
	if err != nil {
		raw = o.Kind
	}

	cmd := &model.Command{
		ID:         model.CommandID(uuid.NewString()),
		DocumentID: doc.ID,
		TableName:  TableCommands,
		RowIndex:   -(int(time.Now().UnixNano()%1_000_000) + 1),
		Kind:       o.Kind,
		RawText:    fmt.Sprintf("[ORDER:%s] %s", o.ID, raw),
		Args:       o.Args,
		Status:     model.StatusApproved,
		Channel:    "conditional_order",
	}
	if err := c.Repo.CreateCommand(ctx, cmd); err != nil {
		c.Logger.Error("price: create triggered command failed", "order_id", o.ID, "error", err)
		return
	}

	// Attempt immediate execution rather than waiting for the next
	// executor pass, so a triggered order settles promptly. A dispatch
	// failure reverts the command to APPROVED instead of FAILED, since a
	// conditional order is pre-approved and has no human to re-approve
	// it; the next executor tick retries it.
	c.executeInline(ctx, cmd)
}
