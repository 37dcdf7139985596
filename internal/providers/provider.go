package providers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
)

// Defaults applied when a model config does not set its own values.
const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
	DefaultTimeout     = 60 * time.Second
)

// GenerateOptions carries per-request parameters for text generation.
// A nil Temperature means the adapter default applies.
type GenerateOptions struct {
	Model       string
	MaxTokens   int
	Temperature *float64
}

// ImageOptions carries per-request parameters for image generation
type ImageOptions struct {
	Model   string
	Size    string
	Quality string
	Style   string
}

// Result is a normalized generation result. ID is the vendor's response
// identifier when one exists; callers must not expose it to participants.
type Result struct {
	ID           string
	Content      string
	ImageURL     string
	Model        string
	Vendor       models.ProviderType
	Tokens       int
	FinishReason string
	Metadata     map[string]any
}

// Config holds what an adapter needs to talk to its vendor.
// Settings is the model row's configuration object.
type Config struct {
	ModelID     uuid.UUID
	Vendor      models.ProviderType
	VendorModel string
	Settings    map[string]any
	Timeout     time.Duration
}

// Provider is implemented by each vendor adapter
type Provider interface {
	// Type returns the vendor this adapter talks to
	Type() models.ProviderType

	// GenerateText sends a prompt and returns the normalized result
	GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (*Result, error)

	// TestConnection verifies credentials and reachability
	TestConnection(ctx context.Context) error

	// Close performs cleanup when the adapter is no longer needed
	Close() error
}

// ImageGenerator is implemented by adapters that can produce images
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*Result, error)
}

// resolveAPIKey reads the adapter's API key from the environment. A model
// config may name its own env var via api_key_env; otherwise defaultEnv
// applies. An unset or empty variable is a configuration error.
func resolveAPIKey(settings map[string]any, defaultEnv string) (string, error) {
	envName := defaultEnv
	if custom := settingString(settings, "api_key_env"); custom != "" {
		envName = custom
	}

	key := os.Getenv(envName)
	if key == "" {
		return "", &ConfigurationError{
			Reason: fmt.Sprintf("environment variable %s is not set", envName),
		}
	}

	return key, nil
}

// settingString reads a string setting, returning "" when absent
func settingString(settings map[string]any, key string) string {
	if settings == nil {
		return ""
	}
	if v, ok := settings[key].(string); ok {
		return v
	}
	return ""
}

// settingFloat reads a numeric setting, returning (0, false) when absent
func settingFloat(settings map[string]any, key string) (float64, bool) {
	if settings == nil {
		return 0, false
	}
	switch v := settings[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// newHTTPClient builds the shared HTTP client shape used by all adapters
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// effectiveTemperature applies the option > model config > adapter default
// precedence shared by all text adapters.
func effectiveTemperature(opts GenerateOptions, settings map[string]any, adapterDefault float64) float64 {
	if opts.Temperature != nil {
		return *opts.Temperature
	}
	if v, ok := settingFloat(settings, "temperature"); ok {
		return v
	}
	return adapterDefault
}

// effectiveMaxTokens applies the option > model config > default precedence
func effectiveMaxTokens(opts GenerateOptions, settings map[string]any) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	if v, ok := settingFloat(settings, "max_tokens"); ok && v > 0 {
		return int(v)
	}
	return DefaultMaxTokens
}
