package ports

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// DemoChain is a deterministic in-memory ChainA/Stablecoin/Bridge/
// StateChannel/Faucet stub used when DocConfig.DemoMode is set. It never
// talks to a real chain; balances and prices live entirely in process
// memory and reset on restart.
type DemoChain struct {
	mu       sync.Mutex
	balances map[string]float64 // "address:asset" -> amount
	channels map[string]bool
}

// NewDemoChain creates an empty demo chain with no balances.
func NewDemoChain() *DemoChain {
	return &DemoChain{
		balances: make(map[string]float64),
		channels: make(map[string]bool),
	}
}

func balanceKey(address, asset string) string { return address + ":" + asset }

func (d *DemoChain) Balance(_ context.Context, address, asset string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.balances[balanceKey(address, asset)], nil
}

func (d *DemoChain) Transfer(_ context.Context, to, asset string, amount float64) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.balances[balanceKey(to, asset)] += amount
	return randomTxHash(), nil
}

func (d *DemoChain) Swap(_ context.Context, fromAsset, toAsset string, amount float64, _ int) (string, error) {
	return randomTxHash(), nil
}

// ContractCall simulates both state-changing calls and read-only queries.
// A method name beginning with "get" or "read" is treated as a read and
// returns no transaction hash.
func (d *DemoChain) ContractCall(_ context.Context, contract, method string, args []string) (string, string, error) {
	result := fmt.Sprintf("demo-result:%s.%s(%s)", contract, method, strings.Join(args, ","))
	lower := strings.ToLower(method)
	if strings.HasPrefix(lower, "get") || strings.HasPrefix(lower, "read") {
		return result, "", nil
	}
	return result, randomTxHash(), nil
}

func (d *DemoChain) Mint(_ context.Context, to, asset string, amount float64) (string, error) {
	return d.Transfer(context.Background(), to, asset, amount)
}

func (d *DemoChain) Redeem(_ context.Context, from, asset string, amount float64) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := balanceKey(from, asset)
	if d.balances[key] < amount {
		return "", fmt.Errorf("insufficient demo balance for %s: have %.4f, want %.4f", key, d.balances[key], amount)
	}
	d.balances[key] -= amount
	return randomTxHash(), nil
}

func (d *DemoChain) Bridge(_ context.Context, asset string, amount float64, fromChain, toChain, destination string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.balances[balanceKey(destination, asset)] += amount
	return randomTxHash(), nil
}

func (d *DemoChain) OpenChannel(_ context.Context, counterparty, asset string, deposit float64) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := "chan-" + randomTxHash()[:10]
	d.channels[id] = true
	return id, nil
}

func (d *DemoChain) CloseChannel(_ context.Context, channelID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.channels[channelID] {
		return fmt.Errorf("channel %s not open", channelID)
	}
	delete(d.channels, channelID)
	return nil
}

// RequestFunds credits the demo faucet amount. Callers are responsible
// for gating this on DocConfig.DemoMode; this type does not check it
// itself since it has no access to document config.
func (d *DemoChain) RequestFunds(_ context.Context, address, asset string, amount float64) (string, error) {
	if amount <= 0 {
		amount = 100
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.balances[balanceKey(address, asset)] += amount
	return randomTxHash(), nil
}

func randomTxHash() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return "0x" + hex.EncodeToString(b)
}

// DemoMarketData serves fixed reference prices, one per asset, suitable
// for deterministic demo runs. Real price discovery comes from a wired
// MarketData implementation instead.
type DemoMarketData struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewDemoMarketData seeds a market data stub with reasonable defaults.
func NewDemoMarketData() *DemoMarketData {
	return &DemoMarketData{prices: map[string]float64{
		"BTC":  65000,
		"ETH":  3200,
		"USDC": 1,
	}}
}

func (d *DemoMarketData) Price(_ context.Context, asset string) (float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.prices[asset]
	if !ok {
		return 0, fmt.Errorf("no demo price for asset %s", asset)
	}
	return p, nil
}

// SetPrice updates the stub's reference price, letting tests and demo
// scripts simulate market moves that trip conditional orders.
func (d *DemoMarketData) SetPrice(asset string, price float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prices[asset] = price
}
