// Package llm wraps an OpenAI-compatible chat-completions endpoint for
// the dialogue model, including function-tool calls.
package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/securebank/fraudcall/internal/agent"
)

// DefaultBaseURL targets Cerebras' OpenAI-compatible API.
const DefaultBaseURL = "https://api.cerebras.ai/v1"

// Client generates replies via an OpenAI-compatible chat-completions
// API, advertising the fraud tool surface on every request.
type Client struct {
	api         *openai.Client
	model       string
	tools       []openai.Tool
	temperature float32
}

// NewClient builds a client for the given endpoint. baseURL and model
// fall back to the Cerebras defaults when empty.
func NewClient(apiKey, baseURL, model string, tools []openai.Tool) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = "gpt-oss-120b"
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{
		api:         openai.NewClientWithConfig(cfg),
		model:       model,
		tools:       tools,
		temperature: 0.5,
	}
}

// Generate implements agent.LLM.
func (c *Client) Generate(ctx context.Context, conversation []agent.Turn) (agent.Reply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(conversation))
	for _, t := range conversation {
		msg := openai.ChatCompletionMessage{
			Role:       t.Role,
			Content:    t.Text,
			ToolCallID: t.ToolCallID,
		}
		for _, tc := range t.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		messages = append(messages, msg)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Tools:       c.tools,
		Temperature: c.temperature,
	})
	if err != nil {
		return agent.Reply{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return agent.Reply{}, fmt.Errorf("chat completion: empty choices")
	}
	msg := resp.Choices[0].Message

	reply := agent.Reply{Text: strings.TrimSpace(msg.Content)}
	for _, tc := range msg.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, agent.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return reply, nil
}
