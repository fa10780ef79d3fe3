package ai

import (
	"fmt"
	"time"

	"github.com/jurisoracle/vrag/core"
)

// NewClient builds a core.AIClient from the registered provider matching
// the given options. When no provider is set explicitly (or it is left at
// ProviderAuto), the best available provider is chosen by environment
// detection via the same registry providers register themselves into
// through Register/MustRegister.
func NewClient(opts ...AIOption) (core.AIClient, error) {
	config := &AIConfig{
		Provider:    string(ProviderAuto),
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		Temperature: 0.7,
		MaxTokens:   1000,
	}
	for _, opt := range opts {
		opt(config)
	}

	name := config.Provider
	if name == "" || name == string(ProviderAuto) {
		detected, err := detectBestProvider(config.Logger)
		if err != nil {
			return nil, fmt.Errorf("ai: no provider available: %w", err)
		}
		name = detected
	}

	factory, ok := GetProvider(name)
	if !ok {
		return nil, fmt.Errorf("ai: unknown provider %q (registered: %v)", name, ListProviders())
	}

	return factory.Create(config), nil
}
