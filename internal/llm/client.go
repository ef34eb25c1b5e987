package llm

import (
	"context"
	"fmt"
	"time"
)

// Client is a synchronous text-generation service.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Embedder turns text into a fixed-size vector for similarity lookups.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CompletionRequest is a single-turn prompt.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// JSONMode asks backends that support it to return a JSON object.
	JSONMode bool
}

// Completion is the text returned by the service.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Config holds configuration for LLM clients
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
	Retry     RetryConfig
}

// APIError is a non-2xx response from a generative service.
type APIError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d (%s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
}

// NewClient builds the client named by cfg.Provider.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "", "claude":
		return NewClaudeClient(cfg)
	case "openai":
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (must be 'claude' or 'openai')", cfg.Provider)
	}
}
