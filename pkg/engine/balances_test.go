package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/docwallet-hq/agent/pkg/vault"
)

func TestBalancesTick_AppendsActivityLine(t *testing.T) {
	c, adapter := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-bal")
	c.SetRegistry(doc.ID, DemoRegistry())

	v, err := vault.New(make([]byte, 32))
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	c.Vault = v
	secrets, err := v.Seal(doc.ID, vault.CredentialBundle{Extra: map[string]string{"primary_address": "0xdemo"}})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := c.Repo.PutSecrets(ctx, secrets); err != nil {
		t.Fatalf("PutSecrets: %v", err)
	}

	if err := c.BalancesTick(ctx); err != nil {
		t.Fatalf("BalancesTick: %v", err)
	}

	snap, err := adapter.Poll(ctx, "doc-bal")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	found := false
	for _, row := range snap.Rows {
		if row.TableName == "activity_log" && strings.Contains(row.Text, "balances:") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an activity_log row reporting balances")
	}
}

func TestBalancesTick_SkipsDocumentWithoutSecrets(t *testing.T) {
	c, adapter := newTestContext(t)
	ctx := context.Background()
	doc := newTestDocument(t, c, "doc-bal-none")
	c.SetRegistry(doc.ID, DemoRegistry())

	if err := c.BalancesTick(ctx); err != nil {
		t.Fatalf("BalancesTick: %v", err)
	}

	snap, err := adapter.Poll(ctx, "doc-bal-none")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(snap.Rows) != 0 {
		t.Fatalf("expected no activity written without configured secrets, got %d rows", len(snap.Rows))
	}
	_ = doc
}
