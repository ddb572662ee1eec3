package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/docwallet-hq/agent/pkg/bus"
)

const telegramChannel = "telegram"

type telegramNotifier struct {
	bot *telego.Bot
}

func newTelegramNotifier(botToken string) (*telegramNotifier, error) {
	bot, err := telego.NewBot(botToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &telegramNotifier{bot: bot}, nil
}

func (n *telegramNotifier) Channel() string { return telegramChannel }

// Send delivers msg.Content to the chat identified by msg.ChatID, a
// numeric Telegram chat ID.
func (n *telegramNotifier) Send(_ context.Context, msg bus.OutboundMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("telegram: chat id is required")
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: chat id %q is not numeric: %w", msg.ChatID, err)
	}
	_, err = n.bot.SendMessage(tu.Message(tu.ID(chatID), msg.Content))
	return err
}

func (n *telegramNotifier) Close() error { return nil }
