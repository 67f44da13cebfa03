// Package ai talks to hosted and local language models and turns their
// replies into classifications, reports and chat answers.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/IshaanNene/ShopSense/internal/config"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion request.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// JSONSchema asks for structured output when the backend supports it.
	JSONSchema map[string]any
}

// Response is a completion result.
type Response struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// Provider is an LLM backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Name() string
	Model() string
}

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// NewProvider builds the backend named by cfg.Provider.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "groq":
		if cfg.BaseURL == "" {
			cfg.BaseURL = GroqBaseURL
		}
		return NewOpenAIProvider("groq", cfg)
	case "openai":
		return NewOpenAIProvider("openai", cfg)
	case "anthropic":
		return NewAnthropicProvider(cfg)
	case "ollama":
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
