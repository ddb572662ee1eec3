package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/slack-go/slack"

	"github.com/docwallet-hq/agent/pkg/bus"
)

const slackChannel = "slack"

// slackConnectionsOpenURL is Slack's Socket Mode handshake endpoint: a
// POST with the app-level (xapp-) token returns a short-lived WSS URL to
// dial, per Slack's documented Socket Mode protocol.
const slackConnectionsOpenURL = "https://slack.com/api/apps.connections.open"

// slackNotifier posts alerts via the Web API and, when an app-level
// token is configured, maintains a Socket Mode connection so the same
// backend can also ingest chat commands without exposing a public HTTP
// endpoint for Slack's Events API.
type slackNotifier struct {
	client   *slack.Client
	appToken string
	logger   *slog.Logger
}

func newSlackNotifier(botToken, appToken string, logger *slog.Logger) *slackNotifier {
	return &slackNotifier{client: slack.New(botToken), appToken: appToken, logger: logger}
}

func (n *slackNotifier) Channel() string { return slackChannel }

// Send posts msg.Content to the Slack conversation named by msg.ChatID
// (a channel or DM ID).
func (n *slackNotifier) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("slack: chat id (conversation id) is required")
	}
	_, _, err := n.client.PostMessageContext(ctx, msg.ChatID, slack.MsgOptionText(msg.Content, false))
	return err
}

func (n *slackNotifier) Close() error { return nil }

// ListenSocketMode opens a Socket Mode connection and forwards every
// incoming event to b as an InboundMessage, acknowledging each envelope
// as Slack's protocol requires. It blocks until ctx is cancelled.
func (n *slackNotifier) ListenSocketMode(ctx context.Context, b *bus.MessageBus) error {
	if n.appToken == "" {
		return fmt.Errorf("slack: socket mode requires an app-level token")
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wsURL, err := n.openSocketModeConnection(ctx)
		if err != nil {
			n.logger.Error("slack: open socket mode connection failed", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if err := n.runSocketModeSession(ctx, wsURL, b); err != nil {
			n.logger.Warn("slack: socket mode session ended, reconnecting", "error", err)
		}
	}
}

type slackConnectionsOpenResponse struct {
	OK    bool   `json:"ok"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

func (n *slackNotifier) openSocketModeConnection(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slackConnectionsOpenURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+n.appToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body slackConnectionsOpenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode apps.connections.open response: %w", err)
	}
	if !body.OK {
		return "", fmt.Errorf("apps.connections.open: %s", body.Error)
	}
	return body.URL, nil
}

// slackEnvelope is the minimal Socket Mode event envelope: a type, an
// id to acknowledge, and the raw inner payload (events_api, slash
// commands, and interactive payloads all differ beyond this).
type slackEnvelope struct {
	Type      string          `json:"type"`
	EnvelopeID string         `json:"envelope_id"`
	Payload   json.RawMessage `json:"payload"`
}

func (n *slackNotifier) runSocketModeSession(ctx context.Context, wsURL string, b *bus.MessageBus) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial socket mode url: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var env slackEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		if env.EnvelopeID != "" {
			ack := map[string]string{"envelope_id": env.EnvelopeID}
			if err := conn.WriteJSON(ack); err != nil {
				return fmt.Errorf("ack envelope: %w", err)
			}
		}
		if env.Type != "events_api" {
			continue
		}
		b.PublishInbound(bus.InboundMessage{Channel: slackChannel, Content: string(env.Payload)})
	}
}
