package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docwallet-hq/agent/pkg/audit"
	"github.com/docwallet-hq/agent/pkg/model"
)

// payoutRule is one standing payout policy, stored as an element of
// DocConfig.PayoutDefaults JSON (SPEC_FULL §4.7.9's PayoutRules table).
// Rules were approved at creation time (via a KindPayoutRule command),
// so the tick executes them directly against the chain port without
// routing through the approval queue again.
type payoutRule struct {
	Recipient    string    `json:"recipient"`
	Asset        string    `json:"asset"`
	Amount       float64   `json:"amount"`
	IntervalDays int       `json:"interval_days"`
	NextRun      time.Time `json:"next_run"`
	LastTx       string    `json:"last_tx,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

func (r payoutRule) interval() time.Duration {
	if r.IntervalDays <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(r.IntervalDays) * 24 * time.Hour
}

// PayoutRulesTick executes every due standing payout policy (spec
// §4.7.9).
func (c *Context) PayoutRulesTick(ctx context.Context) error {
	docs, err := c.trackedDocuments(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := c.payoutsForDocument(ctx, doc); err != nil {
			c.Logger.Error("payout-rules: document failed", "document_id", doc.ID, "error", err)
		}
	}
	return nil
}

func (c *Context) payoutsForDocument(ctx context.Context, doc *model.Document) error {
	cfg := c.configFor(ctx, doc.ID)
	if len(cfg.PayoutDefaults) == 0 {
		return nil
	}

	var rules []payoutRule
	if err := json.Unmarshal(cfg.PayoutDefaults, &rules); err != nil {
		return fmt.Errorf("decode payout rules: %w", err)
	}

	registry := c.RegistryFor(doc.ID)
	if registry.Chain == nil {
		return nil
	}

	now := time.Now()
	changed := false
	for i := range rules {
		r := &rules[i]
		if r.NextRun.After(now) {
			continue
		}
		if r.Amount <= 0 || r.Recipient == "" {
			c.Logger.Warn("payout-rules: invalid rule skipped", "document_id", doc.ID, "recipient", r.Recipient)
			continue
		}

		txHash, err := registry.Chain.Transfer(ctx, r.Recipient, r.Asset, r.Amount)
		changed = true
		if err != nil {
			r.LastError = err.Error()
			_ = c.Audit.LogCommandExecute(ctx, string(doc.ID), "", "payout_rule", &audit.EventResult{Status: "failure", Error: err.Error()})
			continue
		}

		r.LastTx = txHash
		r.LastError = ""
		r.NextRun = now.Add(r.interval())
		_ = c.Audit.LogCommandExecute(ctx, string(doc.ID), "", "payout_rule", &audit.EventResult{Status: "success", TxHash: txHash})
		_ = c.Repo.RecordActivity(ctx, &model.RecentActivity{
			DocumentID: doc.ID, Kind: "payout_rule", Status: model.StatusDone,
			Summary: fmt.Sprintf("paid %g %s to %s", r.Amount, r.Asset, r.Recipient), OccurredAt: now,
		})
	}

	if !changed {
		return nil
	}
	encoded, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode payout rules: %w", err)
	}
	cfg.PayoutDefaults = encoded
	return c.Repo.PutConfig(ctx, cfg)
}
