package llm

import (
	"fmt"
	"strings"

	"github.com/agentra/factcheck/internal/model"
)

// NewProvider creates a reasoning provider from configuration. An empty
// provider name returns nil (reasoning disabled; the pipeline will refuse
// to run jobs without it).
func NewProvider(config model.LLMConfig) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "ollama":
		// Ollama exposes an OpenAI-compatible API.
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434/v1"
		}
		if config.APIKey == "" {
			config.APIKey = "ollama"
		}
		return NewOpenAIProvider(config)

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, ollama)", config.Provider)
	}
}
