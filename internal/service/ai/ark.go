package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ArkModel adapts an eino chat model to the Inferencer contract. It is the
// alternative backend for deployments without a Workers-AI-style endpoint.
type ArkModel struct {
	chatModel model.ChatModel
}

// NewArkModel wraps an eino chat model.
func NewArkModel(chatModel model.ChatModel) *ArkModel {
	return &ArkModel{chatModel: chatModel}
}

// Infer maps the prompt onto eino schema messages and runs one generation.
func (m *ArkModel) Infer(ctx context.Context, messages []Message, opts Options) (string, error) {
	prompt := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			prompt = append(prompt, schema.SystemMessage(msg.Content))
		case "assistant":
			prompt = append(prompt, schema.AssistantMessage(msg.Content, nil))
		default:
			prompt = append(prompt, schema.UserMessage(msg.Content))
		}
	}

	response, err := m.chatModel.Generate(ctx, prompt,
		model.WithTemperature(float32(opts.Temperature)),
		model.WithMaxTokens(opts.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("ark generate: %w", err)
	}
	return response.Content, nil
}
