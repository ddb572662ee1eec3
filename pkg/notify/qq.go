package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/tencent-connect/botgo/dto"
	"github.com/tencent-connect/botgo/openapi"
	"github.com/tencent-connect/botgo/token"

	"github.com/docwallet-hq/agent/pkg/bus"
)

const qqChannel = "qq"

// qqNotifier posts alerts to a QQ guild channel via the botgo OpenAPI
// client. QQ's bot platform distinguishes guild channels from direct
// messages; this backend only targets channels (msg.ChatID is a
// channel ID), matching the alert-broadcast use case the other tick
// failures need.
type qqNotifier struct {
	api openapi.OpenAPI
}

func newQQNotifier(appID, botToken string) *qqNotifier {
	tk := token.New(token.TypeBot)
	tk.AppID = appID
	tk.AccessToken = botToken
	api := openapi.NewOpenAPI(tk).WithTimeout(5 * time.Second)
	return &qqNotifier{api: api}
}

func (n *qqNotifier) Channel() string { return qqChannel }

func (n *qqNotifier) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("qq: channel id is required")
	}
	_, err := n.api.PostMessage(ctx, msg.ChatID, &dto.MessageToCreate{Content: msg.Content})
	if err != nil {
		return fmt.Errorf("qq post message: %w", err)
	}
	return nil
}

func (n *qqNotifier) Close() error { return nil }
