// Package clients builds the language model used by the research loop.
package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/mikeboe/research-loop/pkg/config"
)

var ErrUnknownProvider = errors.New("unknown llm provider")

const defaultRetries = 3

// New returns the model configured by cfg.LLMProvider, wrapped so every call
// carries the configured temperature and token limit and is retried on failure.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	var (
		model llms.Model
		err   error
	)

	switch cfg.LLMProvider {
	case "", "google":
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.GoogleApiKey),
			googleai.WithDefaultModel(cfg.ReasoningModel),
			googleai.WithDefaultTemperature(cfg.Temperature),
			googleai.WithDefaultMaxTokens(cfg.MaxTokens),
		)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.ReasoningModel)}
		if cfg.LLMBaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.LLMBaseURL))
		}
		model, err = ollama.New(opts...)
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.OpenAIApiKey), openai.WithModel(cfg.ReasoningModel)}
		if cfg.LLMBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLMBaseURL))
		}
		model, err = openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithToken(cfg.AnthropicApiKey), anthropic.WithModel(cfg.ReasoningModel)}
		if cfg.LLMBaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.LLMBaseURL))
		}
		model, err = anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.LLMProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.LLMProvider, err)
	}

	return Wrap(model,
		llms.WithTemperature(cfg.Temperature),
		llms.WithMaxTokens(cfg.MaxTokens),
	), nil
}

// Client decorates a model with default call options and retries.
type Client struct {
	Model    llms.Model
	Defaults []llms.CallOption
	Retries  int
	Logger   *slog.Logger
	// Backoff returns the pause before the given retry attempt.
	Backoff func(attempt int) time.Duration
}

func Wrap(model llms.Model, defaults ...llms.CallOption) *Client {
	return &Client{
		Model:    model,
		Defaults: defaults,
		Retries:  defaultRetries,
		Logger:   slog.Default(),
		Backoff:  func(attempt int) time.Duration { return time.Second * time.Duration(attempt) },
	}
}

// GenerateContent calls the model up to Retries times with linear backoff.
// An empty choice list counts as a failure.
func (c *Client) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := append(append([]llms.CallOption{}, c.Defaults...), options...)
	retries := max(c.Retries, 1)

	var lastErr error
	for i := 0; i < retries; i++ {
		if i > 0 {
			c.Logger.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			if c.Backoff != nil {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(c.Backoff(i)):
				}
			}
		}

		resp, err := c.Model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("llm returned no choices")
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("operation failed after %d retries: %w", retries, lastErr)
}

func (c *Client) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c, prompt, options...)
}
