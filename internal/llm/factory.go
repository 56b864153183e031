package llm

import (
	"fmt"
	"os"
)

// New creates a provider by name. An empty cfg.APIKey falls back to the
// provider's standard environment variable.
func New(name string, cfg *ProviderConfig) (Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig(name)
	}
	if cfg.APIKey == "" {
		c := *cfg
		c.APIKey = apiKeyFromEnv(name)
		cfg = &c
	}

	switch name {
	case "gemini":
		return NewGeminiProvider(cfg), nil
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "ollama":
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

func apiKeyFromEnv(name string) string {
	switch name {
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}
