// Package clients holds thin adapters to external collaborators. The plot
// core only ever sees the raw string a generator returns; everything behind
// that string (provider, model, prompt templates) is opaque to it.
package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// TextGenerator produces raw model output for a prompt pair. Output may be
// arbitrarily malformed or truncated; callers must tolerate that.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// UnavailableGenerator is installed when no provider is configured; every
// call fails with a clear error instead of a nil dereference.
type UnavailableGenerator struct{}

func (UnavailableGenerator) Generate(context.Context, string, string) (string, error) {
	return "", errors.New("text generation is not configured")
}

// Config configures the OpenAI-compatible client.
type Config struct {
	APIKey     string
	BaseURL    string // optional, for OpenAI-compatible gateways
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Compile-time check
var _ TextGenerator = (*OpenAIGenerator)(nil)

// OpenAIGenerator calls an OpenAI-compatible chat completion API with a
// per-attempt timeout and bounded exponential backoff between attempts.
type OpenAIGenerator struct {
	client     *openai.Client
	model      string
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger
}

// NewOpenAIGenerator validates cfg and builds the client.
func NewOpenAIGenerator(cfg Config, logger *zap.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("text generation API key is not set")
	}
	if cfg.Model == "" {
		return nil, errors.New("text generation model is not set")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		logger:     logger.Named("TextGen"),
	}, nil
}

// Generate runs one chat completion, retrying transient failures.
func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			g.logger.Warn("Retrying text generation",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		resp, err := g.client.CreateChatCompletion(attemptCtx, openai.ChatCompletionRequest{
			Model:    g.model,
			Messages: messages,
		})
		cancel()
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("completion returned no choices")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("text generation failed after %d attempts: %w", g.maxRetries, lastErr)
}
