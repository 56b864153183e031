// Package llm adapts remote text generation services (Gemini, OpenAI, Ollama)
// behind a single Provider interface used by ONLINE mode and by the
// connectivity probe's service check.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxErrorBodySize limits how much of an error response body is read.
const MaxErrorBodySize = 1 * 1024 * 1024

var (
	// ErrNoAPIKey is returned by providers that need a key and have none.
	ErrNoAPIKey = errors.New("api key not configured")
	// ErrEmptyResponse is returned when a service answers with no text.
	ErrEmptyResponse = errors.New("empty response from remote service")
)

// readLimitedBody reads up to maxBytes from r.
func readLimitedBody(r io.Reader, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBytes))
}

// Provider defines the interface for remote generation services.
type Provider interface {
	// Chat sends a request and returns the generated reply.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier.
	Name() string

	// Available reports whether the provider is configured (credentials
	// present). It does not touch the network.
	Available() bool
}

// ChatRequest represents a generation request.
type ChatRequest struct {
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	Temperature  float64   `json:"temperature,omitempty"`
}

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatResponse contains the generated reply.
type ChatResponse struct {
	Content          string        `json:"content"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	Duration         time.Duration `json:"duration"`
	FinishReason     string        `json:"finish_reason,omitempty"`
}

// Complete sends prompt as a single user turn and returns the trimmed reply.
// A blank reply is reported as ErrEmptyResponse.
func Complete(ctx context.Context, p Provider, prompt string) (string, error) {
	resp, err := p.Chat(ctx, &ChatRequest{
		Messages: []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// ProviderConfig contains configuration for a provider.
type ProviderConfig struct {
	// Name identifies the provider (gemini, openai, ollama).
	Name        string
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration
}

// DefaultConfig returns defaults for a provider.
func DefaultConfig(name string) *ProviderConfig {
	switch name {
	case "gemini":
		return &ProviderConfig{
			Name:        "gemini",
			Endpoint:    "https://generativelanguage.googleapis.com/v1beta",
			Model:       "gemini-1.5-flash",
			MaxTokens:   1024,
			Temperature: 0.7,
			Timeout:     30 * time.Second,
		}
	case "openai":
		return &ProviderConfig{
			Name:        "openai",
			Endpoint:    "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.7,
			Timeout:     30 * time.Second,
		}
	case "ollama":
		return &ProviderConfig{
			Name:        "ollama",
			Endpoint:    "http://127.0.0.1:11434",
			Model:       "llama3",
			MaxTokens:   1024,
			Temperature: 0.7,
			Timeout:     time.Minute,
		}
	default:
		return &ProviderConfig{
			Name:        name,
			MaxTokens:   1024,
			Temperature: 0.7,
			Timeout:     30 * time.Second,
		}
	}
}

// withDefaults fills unset fields of cfg from DefaultConfig(name).
func withDefaults(cfg *ProviderConfig, name string) *ProviderConfig {
	out := DefaultConfig(name)
	if cfg == nil {
		return out
	}

	merged := *cfg
	merged.Name = name
	if merged.Endpoint == "" {
		merged.Endpoint = out.Endpoint
	}
	if merged.Model == "" {
		merged.Model = out.Model
	}
	if merged.MaxTokens == 0 {
		merged.MaxTokens = out.MaxTokens
	}
	if merged.Temperature == 0 {
		merged.Temperature = out.Temperature
	}
	if merged.Timeout == 0 {
		merged.Timeout = out.Timeout
	}
	return &merged
}

// ═══════════════════════════════════════════════════════════════════════════════
// BASE PROVIDER (shared by HTTP-based providers)
// ═══════════════════════════════════════════════════════════════════════════════

type baseProvider struct {
	config *ProviderConfig
	client *http.Client
}

func newBaseProvider(cfg *ProviderConfig, name string) baseProvider {
	cfg = withDefaults(cfg, name)
	return baseProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider identifier.
func (b *baseProvider) Name() string {
	return b.config.Name
}

// Available checks if the API key is configured.
func (b *baseProvider) Available() bool {
	return b.config.APIKey != ""
}

// Model returns the default model.
func (b *baseProvider) Model() string {
	return b.config.Model
}

func (b *baseProvider) pick(model string, maxTokens int, temperature float64) (string, int, float64) {
	if model == "" {
		model = b.config.Model
	}
	if maxTokens == 0 {
		maxTokens = b.config.MaxTokens
	}
	if temperature == 0 {
		temperature = b.config.Temperature
	}
	return model, maxTokens, temperature
}

// statusError formats a non-2xx reply.
func statusError(provider string, resp *http.Response) error {
	body, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
	return fmt.Errorf("%s error (status %d): %s", provider, resp.StatusCode, strings.TrimSpace(string(body)))
}
