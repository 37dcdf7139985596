package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ProviderType enumerates supported AI vendor kinds.
type ProviderType string

const (
	ProviderOpenAI      ProviderType = "openai"
	ProviderAnthropic   ProviderType = "anthropic"
	ProviderGoogle      ProviderType = "google"
	ProviderGroq        ProviderType = "groq"
	ProviderCustom      ProviderType = "custom"
	ProviderHuggingFace ProviderType = "huggingface"
)

// ProviderTypes lists every supported provider kind.
var ProviderTypes = []ProviderType{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGoogle,
	ProviderGroq,
	ProviderCustom,
	ProviderHuggingFace,
}

// Valid reports whether t is one of the enumerated provider kinds.
func (t ProviderType) Valid() bool {
	for _, known := range ProviderTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Capability names an operation a model backend supports.
type Capability string

const (
	CapabilityText  Capability = "text"
	CapabilityImage Capability = "image"
)

// ModelConfig represents one configured AI backend (models table).
//
// Configuration holds vendor-specific settings such as "endpoint",
// "api_key_env" (the NAME of the environment variable carrying the
// credential — never the credential itself), "temperature" and
// "max_tokens" defaults.
type ModelConfig struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	Provider      string         `db:"provider" json:"provider"`
	VendorModel   string         `db:"vendor_model" json:"vendor_model"`
	Configuration JSONB          `db:"configuration" json:"configuration,omitempty"`
	Capabilities  pq.StringArray `db:"capabilities" json:"capabilities,omitempty"`
	IsActive      bool           `db:"is_active" json:"is_active"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// HasCapability reports whether the model declares the given capability.
func (m *ModelConfig) HasCapability(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == string(c) {
			return true
		}
	}
	return false
}

// ConfigString returns a string setting from the configuration map.
func (m *ModelConfig) ConfigString(key string) string {
	if m.Configuration == nil {
		return ""
	}
	if v, ok := m.Configuration[key].(string); ok {
		return v
	}
	return ""
}

// ConfigFloat returns a numeric setting from the configuration map.
// JSON numbers decode as float64.
func (m *ModelConfig) ConfigFloat(key string) (float64, bool) {
	if m.Configuration == nil {
		return 0, false
	}
	switch v := m.Configuration[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// ConfigInt returns an integer setting from the configuration map.
func (m *ModelConfig) ConfigInt(key string) (int, bool) {
	f, ok := m.ConfigFloat(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Validate checks the invariants an administrator-saved config must hold:
// the provider kind is enumerated, and custom providers carry an endpoint.
func (m *ModelConfig) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if !ProviderType(m.Provider).Valid() {
		return fmt.Errorf("unknown provider %q", m.Provider)
	}
	if ProviderType(m.Provider) == ProviderCustom && m.ConfigString("endpoint") == "" {
		return fmt.Errorf("custom provider requires a non-empty endpoint")
	}
	return nil
}
