package notify

import (
	"context"
	"fmt"
	"log/slog"

	dingclient "github.com/open-dingtalk/dingtalk-stream-sdk-go/client"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"

	"github.com/docwallet-hq/agent/pkg/bus"
)

const dingTalkChannel = "dingtalk"

// dingTalkNotifier ingests chat commands over DingTalk's Stream Mode
// long-lived connection. DingTalk's stream SDK is built around
// replying to an inbound message's per-session webhook, not a
// standing "send to conversation X" API, so Send here only supports
// replying inside an already-open session (ChatID carrying that
// session's webhook URL); a truly unsolicited alert has no DingTalk
// destination to reply into and returns ErrUnsupported.
type dingTalkNotifier struct {
	clientID     string
	clientSecret string
	logger       *slog.Logger
	stream       *dingclient.StreamClient
}

func newDingTalkNotifier(clientID, clientSecret string, logger *slog.Logger) *dingTalkNotifier {
	return &dingTalkNotifier{clientID: clientID, clientSecret: clientSecret, logger: logger}
}

func (n *dingTalkNotifier) Channel() string { return dingTalkChannel }

func (n *dingTalkNotifier) Send(_ context.Context, msg bus.OutboundMessage) error {
	if msg.ChatID == "" {
		return ErrUnsupported
	}
	return chatbot.ReplyMarkdown(msg.ChatID, "alert", msg.Content)
}

func (n *dingTalkNotifier) Close() error {
	if n.stream == nil {
		return nil
	}
	n.stream.Close()
	return nil
}

// Listen opens the Stream Mode connection and forwards every chatbot
// message to b as an InboundMessage, using the message's session
// webhook as the ChatID so a later Send can reply within that session.
func (n *dingTalkNotifier) Listen(ctx context.Context, b *bus.MessageBus) error {
	handler := func(_ context.Context, msg *chatbot.ChatbotMessage) ([]byte, error) {
		b.PublishInbound(bus.InboundMessage{
			Channel:  dingTalkChannel,
			SenderID: msg.SenderId,
			ChatID:   msg.SessionWebhook,
			Content:  msg.Text.Content,
		})
		return []byte(""), nil
	}

	n.stream = dingclient.NewStreamClient(
		dingclient.WithAppCredential(dingclient.NewAppCredentialConfig(n.clientID, n.clientSecret)),
	)
	n.stream.RegisterChatBotCallbackRouter(chatbot.NewChatBotFrameCallbackHandler(handler))

	if err := n.stream.Start(ctx); err != nil {
		return fmt.Errorf("start dingtalk stream client: %w", err)
	}
	<-ctx.Done()
	return nil
}
