package llm

import (
	"fmt"
	"strings"
)

type Config struct {
	Provider  string
	Model     string
	APIKey    string
	APIURL    string
	MaxTokens int
}

func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return NewOpenAIProvider(cfg), nil
	case "ollama":
		// Ollama serves the OpenAI-compatible endpoint under /v1.
		if cfg.APIURL == "" {
			cfg.APIURL = "http://localhost:11434/v1"
		}
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
