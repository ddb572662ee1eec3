package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/docwallet-hq/agent/pkg/bus"
)

const discordChannel = "discord"

// discordNotifier delivers alerts to a Discord channel over a bot
// session opened once at startup and kept alive for the process
// lifetime, matching discordgo's own connection model.
type discordNotifier struct {
	session *discordgo.Session
}

func newDiscordNotifier(botToken string) (*discordNotifier, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("open discord session: %w", err)
	}
	return &discordNotifier{session: session}, nil
}

func (n *discordNotifier) Channel() string { return discordChannel }

// Send posts msg.Content to the Discord channel named by msg.ChatID
// (a Discord channel ID, not a user-facing name).
func (n *discordNotifier) Send(_ context.Context, msg bus.OutboundMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("discord: chat id (channel id) is required")
	}
	_, err := n.session.ChannelMessageSend(msg.ChatID, msg.Content)
	return err
}

func (n *discordNotifier) Close() error {
	return n.session.Close()
}
