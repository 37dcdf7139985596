package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
)

// testConnectionAttempts bounds the lenient diagnostic retry. Generation
// requests are never retried; connection tests are cheap and may hit
// transient network noise, so one retry is allowed.
const testConnectionAttempts = 2

// New constructs the adapter for a provider config. Unknown kinds fail
// with an unsupported-provider error.
func New(config Config) (Provider, error) {
	switch config.Vendor {
	case models.ProviderOpenAI:
		return NewOpenAIProvider(config)
	case models.ProviderAnthropic:
		return NewAnthropicProvider(config)
	case models.ProviderGoogle:
		return NewGoogleProvider(config)
	case models.ProviderGroq:
		return NewGroqProvider(config)
	case models.ProviderCustom:
		return NewCustomProvider(config)
	case models.ProviderHuggingFace:
		return NewHuggingFaceProvider(config)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.Vendor)
	}
}

// SupportedTypes returns the provider kinds the factory can construct
func SupportedTypes() []models.ProviderType {
	return models.ProviderTypes
}

// FromModel builds an adapter config from a model row
func FromModel(model *models.ModelConfig, timeout time.Duration) Config {
	return Config{
		ModelID:     model.ID,
		Vendor:      models.ProviderType(model.Provider),
		VendorModel: model.VendorModel,
		Settings:    model.Configuration,
		Timeout:     timeout,
	}
}

// Test constructs an adapter for the config and checks connectivity.
// Any construction or connection error collapses to false; this is a
// lenient diagnostic helper, not the strict per-adapter TestConnection.
func Test(ctx context.Context, config Config) bool {
	provider, err := New(config)
	if err != nil {
		return false
	}
	defer provider.Close()

	for attempt := 0; attempt < testConnectionAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, time.Second); err != nil {
				return false
			}
		}
		if err := provider.TestConnection(ctx); err == nil {
			return true
		}
	}

	return false
}
