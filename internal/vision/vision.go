// Package vision is the image-understanding boundary. The runtime depends
// only on the Describer interface; the backing model is an external service
// reached over an OpenAI-compatible chat completions API, which covers both
// hosted vision models and a local Ollama endpoint.
package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Describer produces a natural-language description of an image.
type Describer interface {
	// Describe analyzes the image at imageURL guided by prompt. Errors keep
	// backend detail so the tool layer can classify them.
	Describe(ctx context.Context, imageURL, prompt string) (string, error)
}

// Client is a Describer over an OpenAI-compatible vision endpoint.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient targets the endpoint at baseURL with the given vision model
// (e.g. "llava" for a local Ollama server, "gpt-4o" for OpenAI).
func NewClient(baseURL, apiKey, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (c *Client) Describe(ctx context.Context, imageURL, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
				},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vision: describe image: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("vision: model returned no choices")
	}
	description := strings.TrimSpace(resp.Choices[0].Message.Content)
	if description == "" {
		return "", errors.New("vision: model returned an empty description")
	}
	return description, nil
}
