package advisor

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type openAIAdvisor struct {
	client openai.Client
}

func newOpenAIAdvisor(apiKey string) *openAIAdvisor {
	return &openAIAdvisor{client: openai.NewClient(option.WithAPIKey(apiKey))}
}

func (a *openAIAdvisor) Advise(ctx context.Context, req Request) (*Response, error) {
	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(advisorSystemPrompt),
			openai.UserMessage(renderAdvisorPrompt(req)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai advise: %w", err)
	}
	if len(completion.Choices) == 0 {
		return &Response{}, nil
	}
	return parseAdvisorOutput(completion.Choices[0].Message.Content)
}
