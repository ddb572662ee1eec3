package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docwallet-hq/agent/pkg/audit"
	"github.com/docwallet-hq/agent/pkg/command"
	"github.com/docwallet-hq/agent/pkg/dispatcher"
	"github.com/docwallet-hq/agent/pkg/model"
	"github.com/docwallet-hq/agent/pkg/ports"
	"github.com/docwallet-hq/agent/pkg/repository"
	"github.com/docwallet-hq/agent/pkg/vault"
)

// ExecutorTick claims up to ExecutorBudget approved commands (oldest
// first) and dispatches each exactly once (I3), after first sweeping
// away approvals that have gone stale (spec §4.7.3).
func (c *Context) ExecutorTick(ctx context.Context) error {
	if err := c.staleSweep(ctx); err != nil {
		c.Logger.Error("executor: stale sweep failed", "error", err)
	}

	approved, err := c.Repo.ListCommandsByStatus(ctx, model.StatusApproved)
	if err != nil {
		return fmt.Errorf("list approved commands: %w", err)
	}

	budget := c.ExecutorBudget
	if budget <= 0 {
		budget = 5
	}
	if len(approved) > budget {
		approved = approved[:budget]
	}

	for _, cmd := range approved {
		c.executeOne(ctx, cmd)
	}
	return nil
}

// executeOne runs the normal executor-tick path: a dispatch failure is
// terminal (the command ends FAILED and a human must resubmit).
func (c *Context) executeOne(ctx context.Context, cmd *model.Command) {
	c.runClaimed(ctx, cmd, true)
}

// executeInline runs a command claimed outside the executor tick (a
// conditional order firing immediately on price.go's trigger path). A
// conditional order is pre-approved with no human to re-approve it, so
// a dispatch failure here reverts the command to APPROVED instead of
// going terminal, leaving it for the next executor tick to retry
// (spec §4.5, §4.7.7).
func (c *Context) executeInline(ctx context.Context, cmd *model.Command) {
	c.runClaimed(ctx, cmd, false)
}

func (c *Context) runClaimed(ctx context.Context, cmd *model.Command, terminalOnFailure bool) {
	claimed, err := c.Repo.ClaimForExecution(ctx, cmd.ID, uuid.NewString())
	if err != nil {
		c.Logger.Error("executor: claim failed", "command_id", cmd.ID, "error", err)
		return
	}
	if !claimed {
		return // lost the race to another executor pass; at-most-once holds
	}

	doc, err := c.Repo.GetDocument(ctx, cmd.DocumentID)
	if err != nil {
		c.onExecuteFailure(ctx, cmd, fmt.Errorf("load document: %w", err), terminalOnFailure)
		return
	}

	kind := command.Kind(cmd.Kind)
	args, err := command.Parse(kind, cmd.Args)
	if err != nil {
		c.onExecuteFailure(ctx, cmd, fmt.Errorf("parse args: %w", err), terminalOnFailure)
		return
	}

	bundle, err := c.credentialsFor(ctx, cmd.DocumentID)
	if err != nil {
		c.onExecuteFailure(ctx, cmd, fmt.Errorf("load credentials: %w", err), terminalOnFailure)
		return
	}

	registry := c.RegistryFor(cmd.DocumentID)
	start := time.Now()
	result, err := c.dispatch(ctx, doc, cmd, kind, args, registry, bundle)
	c.Metrics.ExecutionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		c.onExecuteFailure(ctx, cmd, err, terminalOnFailure)
		return
	}

	c.completeCommand(ctx, doc, cmd, result)
}

// dispatch routes a claimed command either to the document-state
// handlers that need direct Repo/Vault access (setup, key rotation,
// alert thresholds, auto-rebalance toggles, stop-loss/take-profit order
// registration, status, treasury) or, for everything else, to the
// Dispatcher (spec §4.5). The Dispatcher package intentionally never
// mutates repository state itself, so any kind that must do so is
// intercepted here first.
func (c *Context) dispatch(ctx context.Context, doc *model.Document, cmd *model.Command, kind command.Kind, args command.Args, registry *ports.Registry, bundle vault.CredentialBundle) (*dispatcher.Result, error) {
	switch a := args.(type) {
	case *command.SetupArgs:
		return c.executeSetup(ctx, doc)
	case *command.RotateKeysArgs:
		return c.executeRotateKeys(ctx, doc)
	case *command.AlertThresholdArgs:
		return c.executeAlertThreshold(ctx, doc, a)
	case *command.AutoRebalanceArgs:
		return c.executeAutoRebalance(ctx, doc, a)
	case *command.StopLossArgs:
		return c.executeConditionalRegistration(ctx, doc, a.Asset, "lte", a.Threshold, "stop_loss")
	case *command.TakeProfitArgs:
		return c.executeConditionalRegistration(ctx, doc, a.Asset, "gte", a.Threshold, "take_profit")
	case *command.StatusArgs:
		return c.executeStatus(ctx, doc)
	case *command.TreasuryArgs:
		return c.executeTreasury(ctx, doc, registry)
	default:
		return c.Dispatcher.Execute(ctx, cmd.DocumentID, cmd.ID, kind, args, registry, bundle)
	}
}

func (c *Context) completeCommand(ctx context.Context, doc *model.Document, cmd *model.Command, result *dispatcher.Result) {
	if err := c.Repo.SetCommandStatus(ctx, cmd.ID, model.StatusDone, repository.CommandStatusFields{ResultText: result.ResultText}); err != nil {
		c.Logger.Error("executor: set done failed", "command_id", cmd.ID, "error", err)
	}
	if err := c.Adapter.WriteResult(ctx, doc.ExternalDocID, cmd.TableName, cmd.RowIndex, model.StatusDone, result.ResultText); err != nil {
		c.Logger.Error("executor: write result failed", "command_id", cmd.ID, "error", err)
	}
	_ = c.Repo.RecordActivity(ctx, &model.RecentActivity{
		DocumentID: cmd.DocumentID, CommandID: cmd.ID, Kind: cmd.Kind, Status: model.StatusDone,
		Summary: result.ResultText, OccurredAt: time.Now(),
	})
	_ = c.Audit.LogCommandExecute(ctx, string(cmd.DocumentID), string(cmd.ID), cmd.Kind, &audit.EventResult{Status: "success", TxHash: result.TxRef})
	c.Metrics.CommandsExecuted.Inc()
	c.notify(cmd.Channel, string(cmd.DocumentID), fmt.Sprintf("%s: %s", cmd.Kind, result.ResultText))
}

// onExecuteFailure routes a dispatch failure either to the terminal
// FAILED path (failCommand) or, for an inline conditional-order trigger,
// back to APPROVED so the next executor tick retries it.
func (c *Context) onExecuteFailure(ctx context.Context, cmd *model.Command, cause error, terminal bool) {
	if terminal {
		c.failCommand(ctx, cmd, cause)
		return
	}
	if err := c.Repo.SetCommandStatus(ctx, cmd.ID, model.StatusApproved, repository.CommandStatusFields{ErrorText: cause.Error()}); err != nil {
		c.Logger.Error("executor: revert to approved failed", "command_id", cmd.ID, "error", err)
	}
	_ = c.Repo.RecordActivity(ctx, &model.RecentActivity{
		DocumentID: cmd.DocumentID, CommandID: cmd.ID, Kind: cmd.Kind, Status: model.StatusApproved,
		Summary: "inline execution failed, left approved for retry: " + cause.Error(), OccurredAt: time.Now(),
	})
	_ = c.Audit.LogCommandExecute(ctx, string(cmd.DocumentID), string(cmd.ID), cmd.Kind, &audit.EventResult{Status: "retry", Error: cause.Error()})
}

func (c *Context) failCommand(ctx context.Context, cmd *model.Command, cause error) {
	if err := c.Repo.SetCommandStatus(ctx, cmd.ID, model.StatusFailed, repository.CommandStatusFields{ErrorText: cause.Error()}); err != nil {
		c.Logger.Error("executor: set failed status failed", "command_id", cmd.ID, "error", err)
	}
	if doc, err := c.Repo.GetDocument(ctx, cmd.DocumentID); err == nil {
		_ = c.Adapter.WriteResult(ctx, doc.ExternalDocID, cmd.TableName, cmd.RowIndex, model.StatusFailed, cause.Error())
	}
	_ = c.Repo.RecordActivity(ctx, &model.RecentActivity{
		DocumentID: cmd.DocumentID, CommandID: cmd.ID, Kind: cmd.Kind, Status: model.StatusFailed,
		Summary: cause.Error(), OccurredAt: time.Now(),
	})
	_ = c.Audit.LogCommandExecute(ctx, string(cmd.DocumentID), string(cmd.ID), cmd.Kind, &audit.EventResult{Status: "failure", Error: cause.Error()})
	c.Metrics.CommandsFailed.Inc()
}

// staleSweep force-fails approvals that have sat unclaimed past
// StaleApprovedAfter, so a dispatcher outage doesn't leave a stale
// approval eligible for execution indefinitely once service resumes.
func (c *Context) staleSweep(ctx context.Context) error {
	threshold := c.StaleApprovedAfter
	if threshold <= 0 {
		threshold = time.Hour
	}

	approved, err := c.Repo.ListCommandsByStatus(ctx, model.StatusApproved)
	if err != nil {
		return fmt.Errorf("list approved commands: %w", err)
	}

	cutoff := time.Now().Add(-threshold)
	for _, cmd := range approved {
		if cmd.UpdatedAt.After(cutoff) {
			continue
		}
		if err := c.Repo.SetCommandStatus(ctx, cmd.ID, model.StatusFailed, repository.CommandStatusFields{ErrorText: "approval expired before execution"}); err != nil {
			c.Logger.Error("executor: stale sweep transition failed", "command_id", cmd.ID, "error", err)
			continue
		}
		c.Metrics.CommandsFailed.Inc()
	}
	return nil
}

// executeSetup provisions a document's wallet keys exactly once,
// sealing a fresh CredentialBundle with the vault and stamping the
// generated addresses onto the document (spec §4.5, I6). A document
// that already completed setup reports its existing addresses instead
// of re-provisioning; use ROTATE_KEYS to force new keys.
func (c *Context) executeSetup(ctx context.Context, doc *model.Document) (*dispatcher.Result, error) {
	existing, err := c.credentialsFor(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("check existing setup: %w", err)
	}
	if !existing.IsZero() {
		return &dispatcher.Result{ResultText: fmt.Sprintf("already set up: primary=%s", doc.PrimaryAddress)}, nil
	}
	return c.provisionCredentials(ctx, doc, "setup complete")
}

// executeRotateKeys reseeds a document's credential bundle and
// addresses unconditionally (spec §4.5).
func (c *Context) executeRotateKeys(ctx context.Context, doc *model.Document) (*dispatcher.Result, error) {
	return c.provisionCredentials(ctx, doc, "keys rotated")
}

func (c *Context) provisionCredentials(ctx context.Context, doc *model.Document, verb string) (*dispatcher.Result, error) {
	bundle := vault.CredentialBundle{
		WalletPrivKey: randomHex(32),
		ChainRPCToken: randomHex(16),
	}
	secrets, err := c.Vault.Seal(doc.ID, bundle)
	if err != nil {
		return nil, fmt.Errorf("seal credentials: %w", err)
	}
	now := time.Now()
	secrets.CreatedAt = now
	secrets.RotatedAt = now
	if err := c.Repo.PutSecrets(ctx, secrets); err != nil {
		return nil, fmt.Errorf("store secrets: %w", err)
	}

	doc.PrimaryAddress = "0x" + randomHex(20)
	doc.SecondaryAddress = "0x" + randomHex(20)
	doc.UpdatedAt = now
	if err := c.Repo.UpsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("store document addresses: %w", err)
	}
	return &dispatcher.Result{ResultText: fmt.Sprintf("%s: primary=%s secondary=%s", verb, doc.PrimaryAddress, doc.SecondaryAddress)}, nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// executeAlertThreshold records a per-asset alert threshold in the
// document's config (spec §4.5). executeTreasury reports balances for
// the assets that carry one; no tick compares balances against it.
func (c *Context) executeAlertThreshold(ctx context.Context, doc *model.Document, a *command.AlertThresholdArgs) (*dispatcher.Result, error) {
	cfg := c.configFor(ctx, doc.ID)
	if cfg.AlertThresholds == nil {
		cfg.AlertThresholds = make(map[string]float64)
	}
	cfg.AlertThresholds[a.Asset] = a.Amount
	if err := c.Repo.PutConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("store alert threshold: %w", err)
	}
	return &dispatcher.Result{ResultText: fmt.Sprintf("alert threshold set: %s below %g", a.Asset, a.Amount)}, nil
}

// executeAutoRebalance toggles the document's auto-rebalance policy
// (spec §4.5), stored as DocConfig.AutoRebalance; no tick reads the
// setting.
func (c *Context) executeAutoRebalance(ctx context.Context, doc *model.Document, a *command.AutoRebalanceArgs) (*dispatcher.Result, error) {
	cfg := c.configFor(ctx, doc.ID)
	cfg.AutoRebalance = a.Enabled
	if err := c.Repo.PutConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("store auto-rebalance setting: %w", err)
	}
	state := "disabled"
	if a.Enabled {
		state = "enabled"
	}
	return &dispatcher.Result{ResultText: fmt.Sprintf("auto-rebalance %s", state)}, nil
}

// executeConditionalRegistration registers a STOP_LOSS/TAKE_PROFIT
// command as a model.ConditionalOrder with a fixed comparator, wiring
// it into the same evaluateOrders/triggerOrder machinery price.go uses
// for explicit CONDITIONAL orders (spec §4.5, §4.7.7). The order fires
// a KindNotify command rather than re-running the original command, to
// avoid the rotate/stop_loss verbs ever looping back on themselves.
func (c *Context) executeConditionalRegistration(ctx context.Context, doc *model.Document, asset, comparator string, threshold float64, label string) (*dispatcher.Result, error) {
	notifyArgs, err := json.Marshal(command.NotifyArgs{Message: fmt.Sprintf("%s triggered for %s at %g", label, asset, threshold)})
	if err != nil {
		return nil, fmt.Errorf("marshal notify args: %w", err)
	}
	order := &model.ConditionalOrder{
		ID:         model.OrderID(uuid.NewString()),
		DocumentID: doc.ID,
		Kind:       string(command.KindNotify),
		Args:       notifyArgs,
		Asset:      asset,
		Comparator: comparator,
		Threshold:  threshold,
		CreatedAt:  time.Now(),
	}
	if err := c.Repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("register %s order: %w", label, err)
	}
	return &dispatcher.Result{ResultText: fmt.Sprintf("%s order registered for %s at %g", label, asset, threshold)}, nil
}

// executeStatus reports whether a document has completed setup and, if
// so, its primary address (spec §4.5's STATUS verb).
func (c *Context) executeStatus(ctx context.Context, doc *model.Document) (*dispatcher.Result, error) {
	bundle, err := c.credentialsFor(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if bundle.IsZero() {
		return &dispatcher.Result{ResultText: "not set up: run DW SETUP first"}, nil
	}
	return &dispatcher.Result{ResultText: fmt.Sprintf("ready: primary=%s secondary=%s", doc.PrimaryAddress, doc.SecondaryAddress)}, nil
}

// executeTreasury reports the chain balance of the document's primary
// address for every asset carrying an alert threshold, falling back to
// the tracked priceAssets universe when none are configured (spec
// §4.5's TREASURY verb).
func (c *Context) executeTreasury(ctx context.Context, doc *model.Document, registry *ports.Registry) (*dispatcher.Result, error) {
	if doc.PrimaryAddress == "" {
		return nil, fmt.Errorf("treasury report requires a completed setup first")
	}
	if registry == nil || registry.Chain == nil {
		return nil, &ports.ErrPortUnavailable{Port: "chain"}
	}

	cfg := c.configFor(ctx, doc.ID)
	assets := make([]string, 0, len(cfg.AlertThresholds))
	for asset := range cfg.AlertThresholds {
		assets = append(assets, asset)
	}
	if len(assets) == 0 {
		assets = priceAssets
	}
	sort.Strings(assets)

	var sb strings.Builder
	for _, asset := range assets {
		bal, err := registry.Chain.Balance(ctx, doc.PrimaryAddress, asset)
		if err != nil {
			c.Logger.Warn("treasury: balance lookup failed", "asset", asset, "error", err)
			continue
		}
		fmt.Fprintf(&sb, "%s=%g ", asset, bal)
	}
	return &dispatcher.Result{ResultText: "treasury: " + strings.TrimSpace(sb.String())}, nil
}
