// Package ports declares the Integration Ports: the optional capability
// interfaces through which the dispatcher reaches external blockchain
// and payment systems. Each port is specified only at its interface —
// the real clients (a chain RPC client, a stablecoin issuer API, a
// bridge relayer) are external collaborators. The demo stubs in this
// package exist for local development under DocConfig.DemoMode and are
// never the production path.
package ports

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docwallet-hq/agent/pkg/resilience"
)

// ChainA is the primary settlement chain client capability.
type ChainA interface {
	Balance(ctx context.Context, address, asset string) (float64, error)
	Transfer(ctx context.Context, to, asset string, amount float64) (txHash string, err error)
	Swap(ctx context.Context, fromAsset, toAsset string, amount float64, maxSlippageBps int) (txHash string, err error)
	// ContractCall invokes a contract method, covering both state-changing
	// calls and read-only queries; txHash is empty for a read.
	ContractCall(ctx context.Context, contract, method string, args []string) (result string, txHash string, err error)
}

// Stablecoin is an issuer-side capability for stablecoin-specific flows
// that don't fit the general ChainA interface (e.g. redemption).
type Stablecoin interface {
	Mint(ctx context.Context, to, asset string, amount float64) (txHash string, err error)
	Redeem(ctx context.Context, from, asset string, amount float64) (txHash string, err error)
}

// Bridge moves assets across chains.
type Bridge interface {
	Bridge(ctx context.Context, asset string, amount float64, fromChain, toChain, destination string) (txHash string, err error)
}

// MarketData supplies price observations.
type MarketData interface {
	Price(ctx context.Context, asset string) (float64, error)
}

// StateChannel opens and closes off-chain payment channels.
type StateChannel interface {
	OpenChannel(ctx context.Context, counterparty, asset string, deposit float64) (channelID string, err error)
	CloseChannel(ctx context.Context, channelID string) error
}

// Faucet issues test funds. Callers must gate use of this port strictly
// on DocConfig.DemoMode; it has no place in a production flow.
type Faucet interface {
	RequestFunds(ctx context.Context, address, asset string, amount float64) (txHash string, err error)
}

// Registry holds the set of ports wired for one document. A nil field
// means that capability is unavailable and the dispatcher should fail
// any command that needs it with ErrPortUnavailable.
type Registry struct {
	Chain        ChainA
	Stablecoin   Stablecoin
	Bridge       Bridge
	MarketData   MarketData
	StateChannel StateChannel
	Faucet       Faucet
}

// ErrPortUnavailable is returned by the dispatcher when a command needs
// a port this registry doesn't have wired.
type ErrPortUnavailable struct{ Port string }

func (e *ErrPortUnavailable) Error() string {
	return fmt.Sprintf("integration port %q is not configured for this document", e.Port)
}

// Wrap builds a resilience.Pipeline around a single port call, matching
// the composition every port call goes through in production: rate
// limit, then retry, with each attempt passing through the circuit
// breaker under a timeout.
func Wrap(logger *slog.Logger, name string, registry *resilience.RateLimiterRegistry, breakers *BreakerSet) *resilience.Pipeline {
	cb := breakers.Get(name)
	rl := registry.Get(name)
	return resilience.NewPipeline(logger,
		resilience.WithRateLimit(rl),
		resilience.WithCircuitBreaker(cb),
		resilience.WithRetry(resilience.DefaultRetryConfig()),
		resilience.WithPipelineTimeout(15*time.Second),
	)
}

// BreakerSet lazily creates one CircuitBreaker per port name so every
// call site shares the same breaker instance for that port.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// NewBreakerSet creates an empty, concurrency-safe circuit breaker registry.
func NewBreakerSet() *BreakerSet {
	return &BreakerSet{breakers: make(map[string]*resilience.CircuitBreaker)}
}

func (b *BreakerSet) Get(name string) *resilience.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[name]; ok {
		return cb
	}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: name})
	b.breakers[name] = cb
	return cb
}
