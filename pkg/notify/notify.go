// Package notify fans outbound alerts out to whichever chat backends a
// deployment has configured, and feeds any chat traffic those backends
// receive back into the engine's pkg/bus MessageBus. A Notifier only
// ever delivers OutboundMessages that ticks already decided to publish
// (the executor tick publishes one for each command it completes); it
// never originates a command itself.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docwallet-hq/agent/pkg/bus"
)

// ErrUnsupported is returned by a Notifier whose backend has no
// general-purpose "send an unsolicited message" capability.
var ErrUnsupported = errors.New("notify: backend does not support unsolicited sends")

// Notifier delivers one OutboundMessage to a single chat backend.
type Notifier interface {
	// Channel is the bus channel name this notifier handles.
	Channel() string
	// Send delivers msg.Content to msg.ChatID. Implementations should
	// treat an empty ChatID as "use the backend's configured default
	// destination" where the backend has one.
	Send(ctx context.Context, msg bus.OutboundMessage) error
	// Close releases any connection the notifier holds open.
	Close() error
}

// Config carries the credentials for every backend a deployment may
// enable. An empty field disables that backend; Fanout wires only the
// backends with non-empty configuration.
type Config struct {
	DiscordBotToken string

	SlackBotToken string
	SlackAppToken string // xapp- token, required for Socket Mode

	TelegramBotToken string

	LarkAppID     string
	LarkAppSecret string

	DingTalkClientID     string
	DingTalkClientSecret string

	QQAppID    string
	QQBotToken string
}

// Fanout holds every configured Notifier, keyed by channel name, and
// pumps pkg/bus outbound traffic to them.
type Fanout struct {
	logger    *slog.Logger
	notifiers map[string]Notifier
}

// NewFanout constructs every backend for which cfg supplies credentials.
// A backend whose credentials are absent is simply omitted; Send for an
// unconfigured channel is a no-op logged at debug level, not an error,
// since most deployments only enable one or two chat surfaces.
func NewFanout(logger *slog.Logger, cfg Config) *Fanout {
	f := &Fanout{logger: logger, notifiers: make(map[string]Notifier)}

	if cfg.DiscordBotToken != "" {
		if n, err := newDiscordNotifier(cfg.DiscordBotToken); err != nil {
			logger.Error("notify: discord setup failed", "error", err)
		} else {
			f.notifiers[n.Channel()] = n
		}
	}
	if cfg.SlackBotToken != "" {
		n := newSlackNotifier(cfg.SlackBotToken, cfg.SlackAppToken, logger)
		f.notifiers[n.Channel()] = n
	}
	if cfg.TelegramBotToken != "" {
		if n, err := newTelegramNotifier(cfg.TelegramBotToken); err != nil {
			logger.Error("notify: telegram setup failed", "error", err)
		} else {
			f.notifiers[n.Channel()] = n
		}
	}
	if cfg.LarkAppID != "" && cfg.LarkAppSecret != "" {
		n := newLarkNotifier(cfg.LarkAppID, cfg.LarkAppSecret)
		f.notifiers[n.Channel()] = n
	}
	if cfg.DingTalkClientID != "" && cfg.DingTalkClientSecret != "" {
		n := newDingTalkNotifier(cfg.DingTalkClientID, cfg.DingTalkClientSecret, logger)
		f.notifiers[n.Channel()] = n
	}
	if cfg.QQAppID != "" && cfg.QQBotToken != "" {
		n := newQQNotifier(cfg.QQAppID, cfg.QQBotToken)
		f.notifiers[n.Channel()] = n
	}

	return f
}

// Register adds or replaces a Notifier, primarily for tests to install a
// fake backend without real credentials.
func (f *Fanout) Register(n Notifier) {
	f.notifiers[n.Channel()] = n
}

// Send routes msg to the notifier registered for msg.Channel.
func (f *Fanout) Send(ctx context.Context, msg bus.OutboundMessage) error {
	n, ok := f.notifiers[msg.Channel]
	if !ok {
		f.logger.Debug("notify: no backend configured for channel, dropping", "channel", msg.Channel)
		return nil
	}
	if err := n.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify %s: %w", msg.Channel, err)
	}
	return nil
}

// Run drains b's outbound queue until ctx is cancelled or the bus is
// closed, delivering each message through Send. Errors are logged, not
// returned, so one backend's outage never stalls delivery to the rest.
func (f *Fanout) Run(ctx context.Context, b *bus.MessageBus) {
	for {
		msg, ok := b.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if err := f.Send(ctx, msg); err != nil {
			f.logger.Error("notify: delivery failed", "channel", msg.Channel, "error", err)
		}
	}
}

// Close shuts down every configured backend.
func (f *Fanout) Close() {
	for _, n := range f.notifiers {
		if err := n.Close(); err != nil {
			f.logger.Warn("notify: close backend failed", "channel", n.Channel(), "error", err)
		}
	}
}
