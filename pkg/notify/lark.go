package notify

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/docwallet-hq/agent/pkg/bus"
)

const larkChannel = "lark"

type larkNotifier struct {
	client *lark.Client
}

func newLarkNotifier(appID, appSecret string) *larkNotifier {
	return &larkNotifier{client: lark.NewClient(appID, appSecret)}
}

func (n *larkNotifier) Channel() string { return larkChannel }

// larkTextContent is the JSON body a "text" message type expects.
type larkTextContent struct {
	Text string `json:"text"`
}

// Send posts msg.Content as a text message to the Lark/Feishu chat
// named by msg.ChatID.
func (n *larkNotifier) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("lark: chat id is required")
	}
	content, err := json.Marshal(larkTextContent{Text: msg.Content})
	if err != nil {
		return fmt.Errorf("encode lark message content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(msg.ChatID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := n.client.Im.V1.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("lark send message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("lark send message failed: %s", resp.Msg)
	}
	return nil
}

func (n *larkNotifier) Close() error { return nil }
