// Package engine implements the Nine Ticks (spec §4.7): the orchestration
// functions a Scheduler invokes to discover documents, poll and reconcile
// their command cells, execute approved commands, and drive chat,
// balances, scheduling, pricing, advisory, and payout behavior. Every
// tick closes over a single shared Context value rather than package
// globals (spec §9's "cyclic/shared references" design note).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/docwallet-hq/agent/pkg/advisor"
	"github.com/docwallet-hq/agent/pkg/audit"
	"github.com/docwallet-hq/agent/pkg/bus"
	"github.com/docwallet-hq/agent/pkg/dispatcher"
	"github.com/docwallet-hq/agent/pkg/docadapter"
	"github.com/docwallet-hq/agent/pkg/model"
	"github.com/docwallet-hq/agent/pkg/observability"
	"github.com/docwallet-hq/agent/pkg/ports"
	"github.com/docwallet-hq/agent/pkg/repository"
	"github.com/docwallet-hq/agent/pkg/vault"
)

// Document table names the ticks read and write. Per spec §5, only one
// tick type ever writes a given table's system-owned cells: Poll and
// Executor own Commands, Balances owns Balances, Chat owns Chat.
const (
	TableCommands = "commands"
	TableChat     = "chat"
	TableBalances = "balances"
)

// Context is the value every tick function takes: the repository,
// document adapter, wired integration ports, vault, dispatcher, chat
// bus, advisor, audit log, and metrics for one running agent process.
type Context struct {
	Logger     *slog.Logger
	Repo       repository.Repository
	Adapter    docadapter.Adapter
	Vault      *vault.Vault
	Dispatcher *dispatcher.Dispatcher
	Bus        *bus.MessageBus
	Advisor    advisor.Advisor
	Audit      *audit.Logger
	Metrics    *observability.AgentMetrics
	Discovery  DiscoverySource

	ExecutorBudget     int
	StaleApprovedAfter time.Duration

	cron gronx.Gronx

	mu                sync.Mutex
	registries        map[model.DocumentID]*ports.Registry
	pollFailures      map[model.DocumentID]int
	proposalCooldowns map[string]time.Time
}

// New builds a Context with the spec's default executor budget (5) and
// stale-approval threshold (1h).
func New(
	logger *slog.Logger,
	repo repository.Repository,
	adapter docadapter.Adapter,
	v *vault.Vault,
	disp *dispatcher.Dispatcher,
	b *bus.MessageBus,
	adv advisor.Advisor,
	auditLog *audit.Logger,
	metrics *observability.AgentMetrics,
) *Context {
	return &Context{
		Logger:             logger,
		Repo:               repo,
		Adapter:            adapter,
		Vault:              v,
		Dispatcher:         disp,
		Bus:                b,
		Advisor:            adv,
		Audit:              auditLog,
		Metrics:            metrics,
		ExecutorBudget:     5,
		StaleApprovedAfter: time.Hour,
		cron:               gronx.New(),
		registries:         make(map[model.DocumentID]*ports.Registry),
		pollFailures:       make(map[model.DocumentID]int),
		proposalCooldowns:  make(map[string]time.Time),
	}
}

// SetRegistry wires the integration ports available to one document.
func (c *Context) SetRegistry(docID model.DocumentID, r *ports.Registry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registries[docID] = r
}

// RegistryFor returns the ports wired for docID, or an empty Registry
// (every port reporting ErrPortUnavailable) if none was wired.
func (c *Context) RegistryFor(docID model.DocumentID) *ports.Registry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.registries[docID]; ok {
		return r
	}
	return &ports.Registry{}
}

// DemoRegistry builds a Registry backed entirely by the in-memory demo
// stubs, for documents operating under DocConfig.DemoMode.
func DemoRegistry() *ports.Registry {
	demo := ports.NewDemoChain()
	return &ports.Registry{
		Chain:        demo,
		Stablecoin:   demo,
		Bridge:       demo,
		MarketData:   ports.NewDemoMarketData(),
		StateChannel: demo,
		Faucet:       demo,
	}
}

// Instrument wraps a tick function with the generic scheduler metrics
// (docwallet_tick_* series), for use when registering ticks with
// pkg/scheduler.Scheduler.
func (c *Context) Instrument(fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		start := time.Now()
		c.Metrics.TickRuns.Inc()
		err := fn(ctx)
		c.Metrics.TickLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			c.Metrics.TickErrors.Inc()
		}
		return err
	}
}

// trackedDocuments returns every non-archived tracked document.
func (c *Context) trackedDocuments(ctx context.Context) ([]*model.Document, error) {
	all, err := c.Repo.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]*model.Document, 0, len(all))
	for _, d := range all {
		if !d.Archived {
			out = append(out, d)
		}
	}
	return out, nil
}

// notify publishes an outbound chat message for delivery by whatever
// transport adapter is subscribed to the bus for this channel.
func (c *Context) notify(channel, chatID, content string) {
	if c.Bus == nil || channel == "" {
		return
	}
	c.Bus.PublishOutbound(bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: content})
}

// configFor returns a document's config, or a zero-value DocConfig (not
// an error) if none has been set, so callers can apply defaults
// unconditionally.
func (c *Context) configFor(ctx context.Context, docID model.DocumentID) *model.DocConfig {
	cfg, err := c.Repo.GetConfig(ctx, docID)
	if err != nil {
		return &model.DocConfig{DocumentID: docID}
	}
	return cfg
}

// credentialsFor decrypts a document's secret bundle, returning a
// zero-value bundle (not an error) if the document has never completed
// setup; dispatcher calls that need a missing credential surface that as
// ErrPortUnavailable instead.
func (c *Context) credentialsFor(ctx context.Context, docID model.DocumentID) (vault.CredentialBundle, error) {
	secrets, err := c.Repo.GetSecrets(ctx, docID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return vault.CredentialBundle{}, nil
		}
		return vault.CredentialBundle{}, fmt.Errorf("load secrets: %w", err)
	}
	bundle, err := c.Vault.Open(secrets)
	if err != nil {
		c.Metrics.VaultErrors.Inc()
		return vault.CredentialBundle{}, fmt.Errorf("open secrets: %w", err)
	}
	c.Metrics.VaultOpens.Inc()
	return bundle, nil
}
