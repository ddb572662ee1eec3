package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/docwallet-hq/agent/pkg/model"
)

func TestPayoutRulesTick_ExecutesDueRule(t *testing.T) {
	c, _ := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-payout")
	c.SetRegistry(doc.ID, DemoRegistry())

	rules := []payoutRule{
		{Recipient: "0xabc", Asset: "USDC", Amount: 50, IntervalDays: 7, NextRun: time.Now().Add(-time.Minute)},
	}
	cfg := &model.DocConfig{DocumentID: doc.ID, PayoutDefaults: mustJSON(t, rules)}
	if err := c.Repo.PutConfig(ctx, cfg); err != nil {
		t.Fatalf("PutConfig: %v", err)
	}

	if err := c.PayoutRulesTick(ctx); err != nil {
		t.Fatalf("PayoutRulesTick: %v", err)
	}

	updated, err := c.Repo.GetConfig(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	var got []payoutRule
	if err := json.Unmarshal(updated.PayoutDefaults, &got); err != nil {
		t.Fatalf("unmarshal payout rules: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one rule, got %d", len(got))
	}
	if got[0].LastTx == "" {
		t.Fatal("expected the due rule to have recorded a transaction hash")
	}
	if !got[0].NextRun.After(time.Now()) {
		t.Fatal("expected NextRun to advance into the future after execution")
	}
}

func TestPayoutRulesTick_SkipsRuleNotYetDue(t *testing.T) {
	c, _ := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-payout-future")
	c.SetRegistry(doc.ID, DemoRegistry())

	rules := []payoutRule{
		{Recipient: "0xabc", Asset: "USDC", Amount: 50, IntervalDays: 7, NextRun: time.Now().Add(24 * time.Hour)},
	}
	cfg := &model.DocConfig{DocumentID: doc.ID, PayoutDefaults: mustJSON(t, rules)}
	if err := c.Repo.PutConfig(ctx, cfg); err != nil {
		t.Fatalf("PutConfig: %v", err)
	}

	if err := c.PayoutRulesTick(ctx); err != nil {
		t.Fatalf("PayoutRulesTick: %v", err)
	}

	activity, err := c.Repo.ListRecentActivity(ctx, doc.ID, 10)
	if err != nil {
		t.Fatalf("ListRecentActivity: %v", err)
	}
	if len(activity) != 0 {
		t.Fatalf("expected no payout activity before the rule is due, got %d", len(activity))
	}
}

func TestPayoutRulesTick_SkipsInvalidRule(t *testing.T) {
	c, _ := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-payout-invalid")
	c.SetRegistry(doc.ID, DemoRegistry())

	rules := []payoutRule{
		{Recipient: "", Asset: "USDC", Amount: 50, NextRun: time.Now().Add(-time.Minute)},
	}
	cfg := &model.DocConfig{DocumentID: doc.ID, PayoutDefaults: mustJSON(t, rules)}
	if err := c.Repo.PutConfig(ctx, cfg); err != nil {
		t.Fatalf("PutConfig: %v", err)
	}

	if err := c.PayoutRulesTick(ctx); err != nil {
		t.Fatalf("PayoutRulesTick: %v", err)
	}

	activity, err := c.Repo.ListRecentActivity(ctx, doc.ID, 10)
	if err != nil {
		t.Fatalf("ListRecentActivity: %v", err)
	}
	if len(activity) != 0 {
		t.Fatalf("expected no activity recorded for a rule with no recipient, got %d", len(activity))
	}
}
