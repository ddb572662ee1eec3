package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/docwallet-hq/agent/pkg/bus"
)

type fakeNotifier struct {
	channel string
	sent    []bus.OutboundMessage
	err     error
}

func (f *fakeNotifier) Channel() string { return f.channel }

func (f *fakeNotifier) Send(_ context.Context, msg bus.OutboundMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeNotifier) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFanout_SendRoutesByChannel(t *testing.T) {
	f := NewFanout(testLogger(), Config{})
	discord := &fakeNotifier{channel: "discord"}
	slack := &fakeNotifier{channel: "slack"}
	f.Register(discord)
	f.Register(slack)

	msg := bus.OutboundMessage{Channel: "slack", ChatID: "C123", Content: "execution failed"}
	if err := f.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(slack.sent) != 1 {
		t.Fatalf("expected slack notifier to receive the message, got %d sends", len(slack.sent))
	}
	if len(discord.sent) != 0 {
		t.Fatalf("expected discord notifier to receive nothing, got %d sends", len(discord.sent))
	}
}

func TestFanout_SendUnconfiguredChannelIsNoop(t *testing.T) {
	f := NewFanout(testLogger(), Config{})
	err := f.Send(context.Background(), bus.OutboundMessage{Channel: "telegram", Content: "hi"})
	if err != nil {
		t.Fatalf("expected no error for an unconfigured channel, got %v", err)
	}
}

func TestFanout_SendWrapsBackendError(t *testing.T) {
	f := NewFanout(testLogger(), Config{})
	broken := &fakeNotifier{channel: "discord", err: errors.New("rate limited")}
	f.Register(broken)

	err := f.Send(context.Background(), bus.OutboundMessage{Channel: "discord", Content: "hi"})
	if err == nil {
		t.Fatal("expected an error from the broken backend to propagate")
	}
	if !errors.Is(err, broken.err) {
		t.Fatalf("expected the backend error to be wrapped, got %v", err)
	}
}

func TestFanout_RunDeliversUntilBusCloses(t *testing.T) {
	f := NewFanout(testLogger(), Config{})
	fake := &fakeNotifier{channel: "slack"}
	f.Register(fake)

	b := bus.NewMessageBus()
	done := make(chan struct{})
	go func() {
		f.Run(context.Background(), b)
		close(done)
	}()

	b.PublishOutbound(bus.OutboundMessage{Channel: "slack", ChatID: "C1", Content: "first"})
	b.PublishOutbound(bus.OutboundMessage{Channel: "slack", ChatID: "C1", Content: "second"})

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the bus closed")
	}

	if len(fake.sent) != 2 {
		t.Fatalf("expected 2 messages delivered, got %d", len(fake.sent))
	}
}

func TestFanout_CloseClosesEveryBackend(t *testing.T) {
	f := NewFanout(testLogger(), Config{})
	f.Register(&fakeNotifier{channel: "discord"})
	f.Register(&fakeNotifier{channel: "slack"})
	f.Close() // must not panic
}
