// Package llm holds the text-generation backends used to rephrase titles.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blacktop/rxpost/internal/variant"
	"github.com/blacktop/rxpost/internal/xpost"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config selects and tunes a backend. An empty APIKey is read from the environment.
type Config struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// Providers lists the supported backend names.
func Providers() []string {
	return []string{ProviderOpenAI, ProviderGemini}
}

// New constructs the Completer named by cfg.Provider.
func New(ctx context.Context, cfg Config) (variant.Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		key, err := apiKey(cfg.APIKey, ProviderOpenAI, "RXPOST_OPENAI_API_KEY", "OPENAI_API_KEY")
		if err != nil {
			return nil, err
		}
		return NewOpenAI(key, cfg.Model, cfg.BaseURL), nil
	case ProviderGemini:
		key, err := apiKey(cfg.APIKey, ProviderGemini, "RXPOST_GEMINI_API_KEY", "GEMINI_API_KEY")
		if err != nil {
			return nil, err
		}
		return NewGemini(ctx, key, cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported generator provider %q", cfg.Provider)
	}
}

func apiKey(explicit, provider string, vars ...string) (string, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, nil
	}
	for _, v := range vars {
		if key := strings.TrimSpace(os.Getenv(v)); key != "" {
			return key, nil
		}
	}
	return "", xpost.MissingEnvError{Provider: provider, Variables: vars}
}
