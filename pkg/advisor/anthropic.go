package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicAdvisor struct {
	client anthropic.Client
}

func newAnthropicAdvisor(apiKey string) *anthropicAdvisor {
	return &anthropicAdvisor{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (a *anthropicAdvisor) Advise(ctx context.Context, req Request) (*Response, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.ModelClaude3_5HaikuLatest,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: advisorSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(renderAdvisorPrompt(req))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic advise: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return parseAdvisorOutput(text.String())
}

// advisorSystemPrompt instructs the model to reply with the fixed JSON
// shape parseAdvisorOutput expects, shared by every backend.
const advisorSystemPrompt = `You advise a treasury automation agent. Reply ONLY with JSON of the shape
{"summary": "...", "proposals": [{"kind": "...", "reason": "...", "confidence": 0.0, "raw_command": "DW ..."}]}.
Never suggest an action outside the agent's existing command vocabulary.`

func renderAdvisorPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "document: %s\n", req.DocumentID)
	fmt.Fprintf(&b, "recent activity:\n")
	for _, a := range req.RecentActivity {
		fmt.Fprintf(&b, "- %s\n", a)
	}
	fmt.Fprintf(&b, "balances:\n")
	for _, bal := range req.Balances {
		fmt.Fprintf(&b, "- %s\n", bal)
	}
	fmt.Fprintf(&b, "outstanding alerts:\n")
	for _, al := range req.OutstandingAlerts {
		fmt.Fprintf(&b, "- %s\n", al)
	}
	return b.String()
}

func parseAdvisorOutput(raw string) (*Response, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("parse advisor output: %w", err)
	}
	return &resp, nil
}
