// Package dispatcher implements the Execution Dispatcher (spec §4.5):
// given a parsed command and a document's decrypted credential bundle,
// it invokes the right integration port and returns a result or a
// failure. The dispatcher never mutates repository state itself — the
// executor tick does that with the value this package returns.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/docwallet-hq/agent/pkg/audit"
	"github.com/docwallet-hq/agent/pkg/command"
	"github.com/docwallet-hq/agent/pkg/model"
	"github.com/docwallet-hq/agent/pkg/ports"
	"github.com/docwallet-hq/agent/pkg/resilience"
	"github.com/docwallet-hq/agent/pkg/vault"
)

// Result is the dispatcher's successful output (spec §4.5).
type Result struct {
	ResultText string
	TxRef      string
}

// Dispatcher executes one parsed command against a document's wired
// integration ports.
type Dispatcher struct {
	logger   *slog.Logger
	auditLog *audit.Logger
	breakers *ports.BreakerSet
	limiters *resilience.RateLimiterRegistry

	mu        sync.Mutex
	channels  map[model.DocumentID]string // provisioned state-channel IDs, keyed by doc for auto-provisioning idempotency
}

// New builds a Dispatcher. breakers/limiters are shared across every
// document so all calls to the same port name reuse one breaker.
func New(logger *slog.Logger, auditLog *audit.Logger, breakers *ports.BreakerSet, limiters *resilience.RateLimiterRegistry) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		auditLog: auditLog,
		breakers: breakers,
		limiters: limiters,
		channels: make(map[model.DocumentID]string),
	}
}

// Execute dispatches on args.Kind() (spec §4.5: "Dispatches on
// parsedCommand.type. Each arm is independent."). registry holds the
// ports wired for this document; bundle is the decrypted secret bundle
// (may be zero-value if the document has never completed setup).
func (d *Dispatcher) Execute(ctx context.Context, docID model.DocumentID, cmdID model.CommandID, kind command.Kind, args command.Args, registry *ports.Registry, bundle vault.CredentialBundle) (*Result, error) {
	switch a := args.(type) {
	case *command.TransferArgs:
		return d.execTransfer(ctx, registry, a)
	case *command.SwapArgs:
		return d.execSwap(ctx, registry, a)
	case *command.BridgeArgs:
		return d.execBridge(ctx, registry, a)
	case *command.BalanceCheckArgs:
		return d.execBalanceCheck(ctx, registry, a)
	case *command.PriceCheckArgs:
		return d.execPriceCheck(ctx, registry, a)
	case *command.FaucetRequestArgs:
		return d.execFaucet(ctx, registry, a)
	case *command.StateChannelOpenArgs:
		return d.execChannelOpen(ctx, docID, registry, a)
	case *command.StateChannelCloseArgs:
		return d.execChannelClose(ctx, registry, a)
	case *command.ScheduleArgs, *command.CancelScheduleArgs, *command.ConditionalArgs, *command.CancelOrderArgs:
		// Scheduling/order-management kinds are handled by the scheduler
		// and price ticks directly against the repository; they never
		// reach the dispatcher as an executable command.
		return nil, fmt.Errorf("dispatcher: kind %s is managed by the scheduler, not the executor", kind)
	case *command.SetupArgs, *command.RotateKeysArgs, *command.AlertThresholdArgs, *command.AutoRebalanceArgs,
		*command.StopLossArgs, *command.TakeProfitArgs, *command.StatusArgs, *command.TreasuryArgs:
		// These kinds need the owning Document (address, config) and the
		// vault, neither of which this package holds; the engine
		// intercepts and handles them before a command of this kind
		// ever reaches Execute.
		return nil, fmt.Errorf("dispatcher: kind %s is handled by the engine, not the dispatcher", kind)
	case *command.RebalanceArgs:
		return d.execRebalance(ctx, registry, a)
	case *command.ContractCallArgs:
		return d.execContractCall(ctx, registry, a)
	case *command.ContractReadArgs:
		return d.execContractRead(ctx, registry, a)
	case *command.ConnectedAppSignArgs:
		return d.ConnectedAppSign(ctx, a.ConfigJSON)
	case *command.PayoutRuleArgs:
		return d.execPayoutRule(ctx, registry, a)
	case *command.NotifyArgs:
		return &Result{ResultText: a.Message}, nil
	case *command.NoopArgs:
		return &Result{ResultText: ""}, nil
	default:
		return nil, fmt.Errorf("dispatcher: unhandled args type %T for kind %s", args, kind)
	}
}

func (d *Dispatcher) execTransfer(ctx context.Context, registry *ports.Registry, a *command.TransferArgs) (*Result, error) {
	if registry == nil || registry.Chain == nil {
		return nil, &ports.ErrPortUnavailable{Port: "chain"}
	}
	var txHash string
	err := d.wrap(ctx, "chain.transfer", func(ctx context.Context) error {
		h, err := registry.Chain.Transfer(ctx, a.To, a.Asset, a.Amount)
		txHash = h
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("transfer %g %s to %s: %w", a.Amount, a.Asset, a.To, err)
	}
	return &Result{ResultText: fmt.Sprintf("transferred %g %s to %s", a.Amount, a.Asset, a.To), TxRef: txHash}, nil
}

func (d *Dispatcher) execSwap(ctx context.Context, registry *ports.Registry, a *command.SwapArgs) (*Result, error) {
	if registry == nil || registry.Chain == nil {
		return nil, &ports.ErrPortUnavailable{Port: "chain"}
	}
	var txHash string
	err := d.wrap(ctx, "chain.swap", func(ctx context.Context) error {
		h, err := registry.Chain.Swap(ctx, a.FromAsset, a.ToAsset, a.Amount, a.MaxSlippageBps)
		txHash = h
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("swap %g %s for %s: %w", a.Amount, a.FromAsset, a.ToAsset, err)
	}
	return &Result{ResultText: fmt.Sprintf("swapped %g %s for %s", a.Amount, a.FromAsset, a.ToAsset), TxRef: txHash}, nil
}

func (d *Dispatcher) execBridge(ctx context.Context, registry *ports.Registry, a *command.BridgeArgs) (*Result, error) {
	if registry == nil || registry.Bridge == nil {
		return nil, &ports.ErrPortUnavailable{Port: "bridge"}
	}
	var txHash string
	err := d.wrap(ctx, "bridge", func(ctx context.Context) error {
		h, err := registry.Bridge.Bridge(ctx, a.Asset, a.Amount, a.FromChain, a.ToChain, a.Destination)
		txHash = h
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bridge %g %s %s->%s: %w", a.Amount, a.Asset, a.FromChain, a.ToChain, err)
	}
	return &Result{ResultText: fmt.Sprintf("bridged %g %s to %s on %s", a.Amount, a.Asset, a.Destination, a.ToChain), TxRef: txHash}, nil
}

func (d *Dispatcher) execBalanceCheck(ctx context.Context, registry *ports.Registry, a *command.BalanceCheckArgs) (*Result, error) {
	if registry == nil || registry.Chain == nil {
		return nil, &ports.ErrPortUnavailable{Port: "chain"}
	}
	var bal float64
	err := d.wrap(ctx, "chain.balance", func(ctx context.Context) error {
		b, err := registry.Chain.Balance(ctx, a.Address, a.Asset)
		bal = b
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("balance check %s: %w", a.Asset, err)
	}
	return &Result{ResultText: fmt.Sprintf("%s balance: %g", a.Asset, bal)}, nil
}

func (d *Dispatcher) execPriceCheck(ctx context.Context, registry *ports.Registry, a *command.PriceCheckArgs) (*Result, error) {
	if registry == nil || registry.MarketData == nil {
		return nil, &ports.ErrPortUnavailable{Port: "market_data"}
	}
	var price float64
	err := d.wrap(ctx, "market_data.price", func(ctx context.Context) error {
		p, err := registry.MarketData.Price(ctx, a.Asset)
		price = p
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("price check %s: %w", a.Asset, err)
	}
	return &Result{ResultText: fmt.Sprintf("%s price: %g", a.Asset, price)}, nil
}

func (d *Dispatcher) execFaucet(ctx context.Context, registry *ports.Registry, a *command.FaucetRequestArgs) (*Result, error) {
	if registry == nil || registry.Faucet == nil {
		return nil, &ports.ErrPortUnavailable{Port: "faucet"}
	}
	var txHash string
	err := d.wrap(ctx, "faucet", func(ctx context.Context) error {
		h, err := registry.Faucet.RequestFunds(ctx, "", a.Asset, a.Amount)
		txHash = h
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("faucet request %s: %w", a.Asset, err)
	}
	return &Result{ResultText: fmt.Sprintf("faucet funded %s", a.Asset), TxRef: txHash}, nil
}

func (d *Dispatcher) execChannelOpen(ctx context.Context, docID model.DocumentID, registry *ports.Registry, a *command.StateChannelOpenArgs) (*Result, error) {
	if registry == nil || registry.StateChannel == nil {
		return nil, &ports.ErrPortUnavailable{Port: "state_channel"}
	}

	// Auto-provisioning: re-check for an already-open channel before
	// opening a new one, so a retried tick is idempotent (spec §4.5).
	d.mu.Lock()
	if existing, ok := d.channels[docID]; ok {
		d.mu.Unlock()
		return &Result{ResultText: fmt.Sprintf("channel already open: %s", existing), TxRef: existing}, nil
	}
	d.mu.Unlock()

	var channelID string
	err := d.wrap(ctx, "state_channel.open", func(ctx context.Context) error {
		id, err := registry.StateChannel.OpenChannel(ctx, a.Counterparty, a.Asset, a.Deposit)
		channelID = id
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open channel with %s: %w", a.Counterparty, err)
	}

	d.mu.Lock()
	d.channels[docID] = channelID
	d.mu.Unlock()
	_ = d.auditLog.LogCommandExecute(ctx, string(docID), "", string(command.KindStateChannelOpen), &audit.EventResult{Status: "provisioned", TxHash: channelID})

	return &Result{ResultText: fmt.Sprintf("opened channel %s", channelID), TxRef: channelID}, nil
}

func (d *Dispatcher) execChannelClose(ctx context.Context, registry *ports.Registry, a *command.StateChannelCloseArgs) (*Result, error) {
	if registry == nil || registry.StateChannel == nil {
		return nil, &ports.ErrPortUnavailable{Port: "state_channel"}
	}
	err := d.wrap(ctx, "state_channel.close", func(ctx context.Context) error {
		return registry.StateChannel.CloseChannel(ctx, a.ChannelID)
	})
	if err != nil {
		return nil, fmt.Errorf("close channel %s: %w", a.ChannelID, err)
	}
	return &Result{ResultText: fmt.Sprintf("closed channel %s", a.ChannelID)}, nil
}

func (d *Dispatcher) execPayoutRule(ctx context.Context, registry *ports.Registry, a *command.PayoutRuleArgs) (*Result, error) {
	if registry == nil || registry.Chain == nil {
		return nil, &ports.ErrPortUnavailable{Port: "chain"}
	}
	var txHash string
	err := d.wrap(ctx, "chain.transfer", func(ctx context.Context) error {
		h, err := registry.Chain.Transfer(ctx, a.Recipient, a.Asset, a.Threshold*a.Percent/100)
		txHash = h
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("payout rule %s->%s: %w", a.Asset, a.Recipient, err)
	}
	return &Result{ResultText: fmt.Sprintf("paid out %g%% of %s to %s", a.Percent, a.Asset, a.Recipient), TxRef: txHash}, nil
}

func (d *Dispatcher) execRebalance(ctx context.Context, registry *ports.Registry, a *command.RebalanceArgs) (*Result, error) {
	if registry == nil || registry.Chain == nil {
		return nil, &ports.ErrPortUnavailable{Port: "chain"}
	}
	var txHash string
	err := d.wrap(ctx, "chain.transfer", func(ctx context.Context) error {
		h, err := registry.Chain.Transfer(ctx, a.SinkAddress, a.Asset, a.TargetAmount)
		txHash = h
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("rebalance %s to %s: %w", a.Asset, a.SinkAddress, err)
	}
	return &Result{ResultText: fmt.Sprintf("rebalanced %g %s to %s", a.TargetAmount, a.Asset, a.SinkAddress), TxRef: txHash}, nil
}

func (d *Dispatcher) execContractCall(ctx context.Context, registry *ports.Registry, a *command.ContractCallArgs) (*Result, error) {
	if registry == nil || registry.Chain == nil {
		return nil, &ports.ErrPortUnavailable{Port: "chain"}
	}
	var result, txHash string
	err := d.wrap(ctx, "chain.contract_call", func(ctx context.Context) error {
		r, h, err := registry.Chain.ContractCall(ctx, a.Contract, a.Method, a.Args)
		result, txHash = r, h
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("contract call %s.%s: %w", a.Contract, a.Method, err)
	}
	return &Result{ResultText: result, TxRef: txHash}, nil
}

func (d *Dispatcher) execContractRead(ctx context.Context, registry *ports.Registry, a *command.ContractReadArgs) (*Result, error) {
	if registry == nil || registry.Chain == nil {
		return nil, &ports.ErrPortUnavailable{Port: "chain"}
	}
	var result string
	err := d.wrap(ctx, "chain.contract_read", func(ctx context.Context) error {
		r, _, err := registry.Chain.ContractCall(ctx, a.Contract, a.Method, a.Args)
		result = r
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("contract read %s.%s: %w", a.Contract, a.Method, err)
	}
	return &Result{ResultText: result}, nil
}

// wrap runs fn through the standard per-port resilience pipeline (rate
// limit, retry, circuit breaker, timeout), matching the composition
// every port call goes through in production (ports.Wrap).
func (d *Dispatcher) wrap(ctx context.Context, portName string, fn func(ctx context.Context) error) error {
	pipeline := ports.Wrap(d.logger, portName, d.limiters, d.breakers)
	return pipeline.Execute(ctx, fn)
}

// ConnectedAppSign signs a request on behalf of a document's connected
// application using an OAuth2 client-credentials flow (SPEC_FULL
// §4.5). The client ID, client secret and token URL are taken as-is
// from cfgJSON; nothing is decrypted here.
func (d *Dispatcher) ConnectedAppSign(ctx context.Context, cfgJSON json.RawMessage) (*Result, error) {
	var cfg struct {
		ClientID     string `json:"oauth_client_id"`
		ClientSecret string `json:"oauth_client_secret"`
		TokenURL     string `json:"oauth_token_url"`
		Scopes       []string `json:"scopes,omitempty"`
	}
	if err := json.Unmarshal(cfgJSON, &cfg); err != nil {
		return nil, fmt.Errorf("connected-app sign: decode config: %w", err)
	}

	ccCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	token, err := ccCfg.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("connected-app sign: token exchange: %w", err)
	}
	return &Result{ResultText: "connected-app token issued", TxRef: token.TokenType}, nil
}
