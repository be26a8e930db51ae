// Package providers contains language-model backends for the agent runtime.
package providers

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haldis/strand/internal/agent"
	"github.com/haldis/strand/internal/tools"
	"github.com/haldis/strand/pkg/models"
)

const openaiDefaultMaxTokens = 2048

// OpenAIProvider implements agent.Provider over the OpenAI chat completions
// API with function calling.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a provider for the given model (e.g. "gpt-4o").
func NewOpenAI(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewOpenAIWithBaseURL targets an OpenAI-compatible endpoint.
func NewOpenAIWithBaseURL(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (p *OpenAIProvider) Decide(ctx context.Context, req *agent.Request) (*agent.Decision, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: convertTurnsOpenAI(req.System, req.Turns),
		Tools:    convertToolsOpenAI(req.Tools),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	} else {
		chatReq.MaxTokens = openaiDefaultMaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		// Malformed response; the loop treats an empty decision as end.
		return &agent.Decision{}, nil
	}

	msg := resp.Choices[0].Message
	dec := &agent.Decision{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		input := tc.Function.Arguments
		if input == "" {
			input = "{}"
		}
		dec.ToolCalls = append(dec.ToolCalls, models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(input),
		})
	}
	return dec, nil
}

func convertTurnsOpenAI(system string, turns []models.Turn) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, turn := range turns {
		switch turn.Role {
		case models.RoleUser:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: turn.Content,
			})

		case models.RoleAssistant:
			msg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: turn.Content,
			}
			for _, call := range turn.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Input),
					},
				})
			}
			out = append(out, msg)

		case models.RoleTool:
			// Each tool result becomes its own tool-role message.
			for _, res := range turn.ToolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    res.Content,
					ToolCallID: res.ToolCallID,
				})
			}
		}
	}
	return out
}

func convertToolsOpenAI(bound []tools.Tool) []openai.Tool {
	var out []openai.Tool
	for _, t := range bound {
		var schema map[string]any
		if err := json.Unmarshal(t.Schema(), &schema); err != nil {
			continue
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  schema,
			},
		})
	}
	return out
}
