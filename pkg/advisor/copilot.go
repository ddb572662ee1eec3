package advisor

import (
	"context"
	"fmt"

	copilot "github.com/github/copilot-sdk/go"
)

// copilotAdvisor is the tertiary advisor backend, selected when the
// configured backend is "copilot".
type copilotAdvisor struct {
	client *copilot.Client
}

func newCopilotAdvisor(apiKey string) *copilotAdvisor {
	return &copilotAdvisor{client: copilot.NewClient(apiKey)}
}

func (a *copilotAdvisor) Advise(ctx context.Context, req Request) (*Response, error) {
	reply, err := a.client.Complete(ctx, &copilot.CompletionRequest{
		System: advisorSystemPrompt,
		Prompt: renderAdvisorPrompt(req),
	})
	if err != nil {
		return nil, fmt.Errorf("copilot advise: %w", err)
	}
	return parseAdvisorOutput(reply.Text)
}
