// Package llm talks to the language-model server.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/llamacli/llamacli/internal/history"
	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// SystemPrompt instructs the model to answer with commands only.
const SystemPrompt = "You are a linux terminal assistant, the user will ask you how to perform specific tasks using bash script and your job is to only give him the commands he has to use without any unnecessary comments."

// ErrEmptyResponse is returned when the server answers without any choice.
var ErrEmptyResponse = errors.New("llm: model returned no choices")

// Client sends a new user turn, with the prior conversation as context, and
// returns the model's reply verbatim. It does not modify the history.
type Client interface {
	Send(ctx context.Context, userInput string, messages []history.Message) (string, error)
}

// Options configures an OllamaClient.
type Options struct {
	// BaseURL is the OpenAI-compatible endpoint, e.g. http://localhost:11434/v1.
	BaseURL string
	Model   string
	APIKey  string

	// Timeout bounds each call. Zero means no timeout.
	Timeout time.Duration

	Logger *zap.Logger
}

// OllamaClient implements Client against Ollama's OpenAI-compatible API.
type OllamaClient struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewOllamaClient creates a client for the server described by opts.
func NewOllamaClient(opts Options) (*OllamaClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("llm: base URL is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = opts.BaseURL

	return &OllamaClient{
		api:     openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		timeout: opts.Timeout,
		logger:  logger,
	}, nil
}

// Send implements Client.
func (c *OllamaClient) Send(ctx context.Context, userInput string, messages []history.Message) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: BuildMessages(userInput, messages),
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Debug("chat completion failed",
			zap.String("model", c.model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return "", fmt.Errorf("llm: chat completion failed: %w", err)
	}

	c.logger.Debug("chat completion",
		zap.String("model", c.model),
		zap.Int("turns", len(req.Messages)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// BuildMessages lays out the prompt: the system instruction, every prior
// turn in order, then the new user turn.
func BuildMessages(userInput string, messages []history.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+2)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt,
	})
	out = append(out, lo.Map(messages, func(m history.Message, _ int) openai.ChatCompletionMessage {
		return openai.ChatCompletionMessage{
			Role:    chatRole(m.Role),
			Content: m.Content,
		}
	})...)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userInput,
	})
	return out
}

func chatRole(role history.Role) string {
	if role == history.AI {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}
