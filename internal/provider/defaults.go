package provider

import (
	"fmt"
	"net/http"
	"time"

	"horse.fit/chatsense/internal/config"
)

// Built-in roster. Lower priority runs first; rate limits are per minute.
var defaultSettings = map[string]Settings{
	GoogleTranslateID: {Priority: 1, RateLimit: 100, Window: time.Minute, CostHint: 2},
	AzureTranslatorID: {Priority: 2, RateLimit: 500, Window: time.Minute, CostHint: 1},
	LibreTranslateID:  {Priority: 3, RateLimit: 0, Window: time.Minute, CostHint: 0},
	LLMTranslatorID:   {Priority: 4, RateLimit: 0, Window: time.Minute, CostHint: 0},

	AzureTextID: {Priority: 1, RateLimit: 1000, Window: time.Minute, CostHint: 1},
	GoogleNLID:  {Priority: 2, RateLimit: 600, Window: time.Minute, CostHint: 1},
	OpenAIID:    {Priority: 3, RateLimit: 3000, Window: time.Minute, CostHint: 3},
}

// DefaultSettings returns the built-in settings for a provider ID.
func DefaultSettings(id string) Settings {
	return defaultSettings[normalizeProviderID(id)]
}

// NewRegistryFromConfig registers every known adapter with the configured
// credentials and applies the optional PROVIDERS_FILE overrides.
func NewRegistryFromConfig(cfg *config.Config, client *http.Client) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	overrides, err := LoadOverrides(cfg.ProvidersFile)
	if err != nil {
		return nil, err
	}
	client = orDefaultClient(client)

	adapters := []Provider{
		NewGoogleTranslate(cfg.GoogleTranslateAPIKey, "", client),
		NewAzureTranslator(cfg.AzureTranslatorKey, cfg.AzureTranslatorRegion, "", client),
		NewLibreTranslate(cfg.LibreTranslateURL, cfg.LibreTranslateAPIKey, client),
		NewLLMTranslator(cfg.TranslationEndpoint, cfg.TranslationModel, client),
		NewAzureText(cfg.AzureTextAnalyticsKey, cfg.AzureTextAnalyticsEndpoint, client),
		NewGoogleNL(cfg.GoogleCloudAPIKey, "", client),
		NewOpenAIEmotion(cfg.OpenAIAPIKey, "", cfg.OpenAIModel, client),
	}

	registry := NewRegistry()
	for _, p := range adapters {
		settings := overrides.Apply(p.ID(), DefaultSettings(p.ID()))
		if err := registry.Register(p, settings); err != nil {
			return nil, err
		}
	}
	for id := range overrides.Providers {
		if _, ok := registry.Get(id); !ok {
			return nil, fmt.Errorf("providers file names unknown provider %q", id)
		}
	}
	return registry, nil
}
