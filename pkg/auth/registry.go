package auth

import (
	"encoding/json"
	"fmt"
	"sync"
)

// ProviderConfig contains provider-specific configuration
type ProviderConfig struct {
	Type   string          `yaml:"type" json:"type"`
	Config json.RawMessage `yaml:"config" json:"config"`
}

// SourceFactory creates credential sources from configuration
type SourceFactory func(config json.RawMessage) (CredentialSource, error)

var (
	registry = make(map[string]SourceFactory)
	mu       sync.RWMutex
)

// RegisterProvider registers a credential source factory for a provider type
func RegisterProvider(providerType string, factory SourceFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[providerType] = factory
}

// NewSource creates a credential source from provider configuration
func NewSource(providerConfig ProviderConfig) (CredentialSource, error) {
	mu.RLock()
	factory, ok := registry[providerConfig.Type]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown auth provider type: %s", providerConfig.Type)
	}

	return factory(providerConfig.Config)
}

// ListProviders returns registered provider types
func ListProviders() []string {
	mu.RLock()
	defer mu.RUnlock()

	providers := make([]string, 0, len(registry))
	for name := range registry {
		providers = append(providers, name)
	}
	return providers
}
