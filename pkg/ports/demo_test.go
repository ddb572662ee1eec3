package ports

import (
	"context"
	"testing"
)

func TestDemoChainTransferAndBalance(t *testing.T) {
	d := NewDemoChain()
	ctx := context.Background()
	if _, err := d.Transfer(ctx, "0xabc", "USDC", 50); err != nil {
		t.Fatal(err)
	}
	bal, err := d.Balance(ctx, "0xabc", "USDC")
	if err != nil {
		t.Fatal(err)
	}
	if bal != 50 {
		t.Fatalf("expected balance 50, got %v", bal)
	}
}

func TestDemoChainRedeemInsufficientFunds(t *testing.T) {
	d := NewDemoChain()
	ctx := context.Background()
	if _, err := d.Redeem(ctx, "0xabc", "USDC", 10); err == nil {
		t.Fatal("expected error redeeming from empty balance")
	}
}

func TestDemoMarketDataDefaults(t *testing.T) {
	d := NewDemoMarketData()
	price, err := d.Price(context.Background(), "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if price <= 0 {
		t.Fatalf("expected positive price, got %v", price)
	}
}

func TestDemoMarketDataSetPrice(t *testing.T) {
	d := NewDemoMarketData()
	d.SetPrice("BTC", 70000)
	price, _ := d.Price(context.Background(), "BTC")
	if price != 70000 {
		t.Fatalf("expected updated price 70000, got %v", price)
	}
}
