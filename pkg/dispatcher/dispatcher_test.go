package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/docwallet-hq/agent/pkg/audit"
	"github.com/docwallet-hq/agent/pkg/command"
	"github.com/docwallet-hq/agent/pkg/ports"
	"github.com/docwallet-hq/agent/pkg/resilience"
	"github.com/docwallet-hq/agent/pkg/vault"
)

type fakeChain struct {
	balance   float64
	txHash    string
	transferErr error
}

func (f *fakeChain) Balance(ctx context.Context, address, asset string) (float64, error) {
	return f.balance, nil
}

func (f *fakeChain) Transfer(ctx context.Context, to, asset string, amount float64) (string, error) {
	if f.transferErr != nil {
		return "", f.transferErr
	}
	return f.txHash, nil
}

func (f *fakeChain) Swap(ctx context.Context, fromAsset, toAsset string, amount float64, maxSlippageBps int) (string, error) {
	return f.txHash, nil
}

func (f *fakeChain) ContractCall(ctx context.Context, contract, method string, args []string) (string, string, error) {
	if f.transferErr != nil {
		return "", "", f.transferErr
	}
	return "result:" + method, f.txHash, nil
}

type fakeStateChannel struct {
	channelID string
	opened    int
}

func (f *fakeStateChannel) OpenChannel(ctx context.Context, counterparty, asset string, deposit float64) (string, error) {
	f.opened++
	return f.channelID, nil
}

func (f *fakeStateChannel) CloseChannel(ctx context.Context, channelID string) error {
	return nil
}

func testDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLog := audit.NewLogger(audit.NewFileStore(t.TempDir()), "test")
	limiters := resilience.NewRateLimiterRegistry(1000, 1000)
	return New(logger, auditLog, ports.NewBreakerSet(), limiters)
}

func TestExecute_TransferSucceeds(t *testing.T) {
	d := testDispatcher(t)
	registry := &ports.Registry{Chain: &fakeChain{txHash: "0xabc"}}

	res, err := d.Execute(context.Background(), "doc-1", "cmd-1", command.KindTransfer,
		&command.TransferArgs{Asset: "USDC", Amount: 10, To: "0xdead"}, registry, vault.CredentialBundle{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.TxRef != "0xabc" {
		t.Fatalf("TxRef = %q, want 0xabc", res.TxRef)
	}
}

func TestExecute_TransferMissingChainPortFails(t *testing.T) {
	d := testDispatcher(t)
	registry := &ports.Registry{}

	_, err := d.Execute(context.Background(), "doc-1", "cmd-1", command.KindTransfer,
		&command.TransferArgs{Asset: "USDC", Amount: 10, To: "0xdead"}, registry, vault.CredentialBundle{})
	var unavailable *ports.ErrPortUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrPortUnavailable, got %v", err)
	}
}

func TestExecute_BalanceCheckReturnsFormattedResult(t *testing.T) {
	d := testDispatcher(t)
	registry := &ports.Registry{Chain: &fakeChain{balance: 42.5}}

	res, err := d.Execute(context.Background(), "doc-1", "cmd-1", command.KindBalanceCheck,
		&command.BalanceCheckArgs{Asset: "USDC"}, registry, vault.CredentialBundle{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.ResultText != "USDC balance: 42.5" {
		t.Fatalf("ResultText = %q", res.ResultText)
	}
}

func TestExecute_StateChannelOpenIsIdempotentPerDocument(t *testing.T) {
	d := testDispatcher(t)
	fsc := &fakeStateChannel{channelID: "chan-1"}
	registry := &ports.Registry{StateChannel: fsc}
	args := &command.StateChannelOpenArgs{Counterparty: "alice", Asset: "USDC", Deposit: 100}

	res1, err := d.Execute(context.Background(), "doc-1", "cmd-1", command.KindStateChannelOpen, args, registry, vault.CredentialBundle{})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	res2, err := d.Execute(context.Background(), "doc-1", "cmd-2", command.KindStateChannelOpen, args, registry, vault.CredentialBundle{})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if fsc.opened != 1 {
		t.Fatalf("OpenChannel called %d times, want 1 (should be idempotent per document)", fsc.opened)
	}
	if res1.TxRef != res2.TxRef {
		t.Fatalf("expected same channel ID returned both times, got %q and %q", res1.TxRef, res2.TxRef)
	}
}

func TestExecute_ScheduleKindRejectedByDispatcher(t *testing.T) {
	d := testDispatcher(t)
	_, err := d.Execute(context.Background(), "doc-1", "cmd-1", command.KindSchedule,
		&command.ScheduleArgs{}, &ports.Registry{}, vault.CredentialBundle{})
	if err == nil {
		t.Fatal("expected an error, schedule kinds are managed by the scheduler tick, not the dispatcher")
	}
}

func TestExecute_NotifyKindEchoesMessage(t *testing.T) {
	d := testDispatcher(t)
	res, err := d.Execute(context.Background(), "doc-1", "cmd-1", command.KindNotify,
		&command.NotifyArgs{Message: "hello"}, &ports.Registry{}, vault.CredentialBundle{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.ResultText != "hello" {
		t.Fatalf("ResultText = %q, want hello", res.ResultText)
	}
}

func TestExecute_ContractCallUsesChainPort(t *testing.T) {
	d := testDispatcher(t)
	registry := &ports.Registry{Chain: &fakeChain{txHash: "0xccc"}}

	res, err := d.Execute(context.Background(), "doc-1", "cmd-1", command.KindContractCall,
		&command.ContractCallArgs{Contract: "0xcontract", Method: "deposit", Args: []string{"100"}}, registry, vault.CredentialBundle{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.TxRef != "0xccc" {
		t.Fatalf("TxRef = %q, want 0xccc", res.TxRef)
	}
}

func TestExecute_SetupKindRejectedByDispatcher(t *testing.T) {
	d := testDispatcher(t)
	_, err := d.Execute(context.Background(), "doc-1", "cmd-1", command.KindSetup,
		&command.SetupArgs{}, &ports.Registry{}, vault.CredentialBundle{})
	if err == nil {
		t.Fatal("expected an error, setup is handled by the engine, not the dispatcher")
	}
}

func TestExecute_TransferPortErrorIsWrapped(t *testing.T) {
	d := testDispatcher(t)
	portErr := errors.New("rpc timeout")
	registry := &ports.Registry{Chain: &fakeChain{transferErr: portErr}}

	_, err := d.Execute(context.Background(), "doc-1", "cmd-1", command.KindTransfer,
		&command.TransferArgs{Asset: "USDC", Amount: 1, To: "0xdead"}, registry, vault.CredentialBundle{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, portErr) {
		t.Fatalf("expected the port error to be wrapped, got %v", err)
	}
}
