// Package ai wraps the OpenAI-compatible chat completions API behind the
// single text-generation capability the recommendation flow needs.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/sirupsen/logrus"

	"github.com/vestra/vestra/internal/config"
)

var (
	// ErrEmptyPrompt is returned when Generate is called with an empty prompt.
	ErrEmptyPrompt = errors.New("ai: prompt is empty")
	// ErrEmptyResponse is returned when the API answers with no choices.
	ErrEmptyResponse = errors.New("ai: no completion in response")
)

// Client calls a chat completions endpoint via the official SDK. A custom
// base URL lets deployments point at any OpenAI-compatible gateway.
type Client struct {
	sdk       openaisdk.Client
	model     string
	maxTokens int
	logger    *logrus.Logger
}

func NewClient(cfg *config.AIConfig, logger *logrus.Logger) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		sdk:       openaisdk.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
}

// Generate sends one prompt and returns the raw completion text. Parsing the
// answer is the caller's concern; the model does not reliably honor format
// instructions.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(c.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(prompt),
		},
		MaxTokens: param.NewOpt(int64(c.maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := resp.Choices[0].Message.Content
	c.logger.WithFields(logrus.Fields{
		"model":          c.model,
		"prompt_chars":   len(prompt),
		"response_chars": len(content),
	}).Debug("Chat completion returned")

	return content, nil
}
