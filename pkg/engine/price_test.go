package engine

import (
	"context"
	"testing"
	"time"

	"github.com/docwallet-hq/agent/pkg/command"
	"github.com/docwallet-hq/agent/pkg/model"
)

func TestPriceTick_RecordsPriceForTrackedAssets(t *testing.T) {
	c, _ := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-price")
	c.SetRegistry(doc.ID, DemoRegistry())

	if err := c.PriceTick(ctx); err != nil {
		t.Fatalf("PriceTick: %v", err)
	}

	snap, err := c.Repo.LatestPrice(ctx, "BTC")
	if err != nil {
		t.Fatalf("LatestPrice: %v", err)
	}
	if snap.Price <= 0 {
		t.Fatalf("expected a positive recorded price, got %v", snap.Price)
	}
}

func TestPriceTick_TriggersOrderOnceAndExecutes(t *testing.T) {
	c, _ := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-order")
	c.SetRegistry(doc.ID, DemoRegistry())

	if err := c.Repo.RecordPrice(ctx, &model.PriceSnapshot{Asset: "BTC", Price: 50000, Source: "test", ObservedAt: time.Now()}); err != nil {
		t.Fatalf("RecordPrice: %v", err)
	}

	order := &model.ConditionalOrder{
		ID:         "order-1",
		DocumentID: doc.ID,
		Kind:       string(command.KindBalanceCheck),
		Args:       mustJSON(t, command.BalanceCheckArgs{Asset: "BTC"}),
		Asset:      "BTC",
		Comparator: "gte",
		Threshold:  40000,
	}
	if err := c.Repo.CreateOrder(ctx, order); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if err := c.PriceTick(ctx); err != nil {
		t.Fatalf("first PriceTick: %v", err)
	}
	if err := c.PriceTick(ctx); err != nil {
		t.Fatalf("second PriceTick: %v", err)
	}

	cmds, err := c.Repo.ListCommandsByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListCommandsByDocument: %v", err)
	}
	triggered := 0
	for _, cmd := range cmds {
		if cmd.Channel == "conditional_order" {
			triggered++
			if cmd.Status != model.StatusDone && cmd.Status != model.StatusFailed {
				t.Fatalf("expected the triggered command to have been executed, got %s", cmd.Status)
			}
		}
	}
	if triggered != 1 {
		t.Fatalf("expected the order to trigger exactly once across two ticks, got %d", triggered)
	}
}

func TestConditionMet(t *testing.T) {
	cases := []struct {
		comparator       string
		observed, thresh float64
		want             bool
	}{
		{"gte", 10, 5, true},
		{"gte", 4, 5, false},
		{"lte", 4, 5, true},
		{"lte", 10, 5, false},
		{"unknown", 10, 5, false},
	}
	for _, tc := range cases {
		if got := conditionMet(tc.comparator, tc.observed, tc.thresh); got != tc.want {
			t.Errorf("conditionMet(%q, %v, %v) = %v, want %v", tc.comparator, tc.observed, tc.thresh, got, tc.want)
		}
	}
}
