package models

import (
	"testing"

	"github.com/lib/pq"
)

func TestModelConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		model   ModelConfig
		wantErr bool
	}{
		{
			name:  "valid openai model",
			model: ModelConfig{Name: "GPT-4o", Provider: "openai", VendorModel: "gpt-4o"},
		},
		{
			name:  "valid anthropic model",
			model: ModelConfig{Name: "Claude", Provider: "anthropic", VendorModel: "claude-sonnet-4-5"},
		},
		{
			name:  "valid google model",
			model: ModelConfig{Name: "Gemini", Provider: "google", VendorModel: "gemini-2.0-flash"},
		},
		{
			name:  "valid groq model",
			model: ModelConfig{Name: "Llama", Provider: "groq", VendorModel: "llama-3.3-70b-versatile"},
		},
		{
			name:  "valid huggingface model",
			model: ModelConfig{Name: "SDXL", Provider: "huggingface", VendorModel: "stable-diffusion-xl"},
		},
		{
			name: "valid custom model with endpoint",
			model: ModelConfig{
				Name:     "Internal",
				Provider: "custom",
				Configuration: JSONB{
					"endpoint":    "https://llm.internal.example.com/v1",
					"api_key_env": "INTERNAL_LLM_KEY",
				},
			},
		},
		{
			name:    "custom model without endpoint",
			model:   ModelConfig{Name: "Internal", Provider: "custom"},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			model:   ModelConfig{Name: "Mystery", Provider: "telepathy"},
			wantErr: true,
		},
		{
			name:    "empty name",
			model:   ModelConfig{Provider: "openai"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.model.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestProviderType_Valid(t *testing.T) {
	for _, known := range ProviderTypes {
		if !known.Valid() {
			t.Errorf("Expected %s to be valid", known)
		}
	}
	if ProviderType("telepathy").Valid() {
		t.Error("Expected unknown provider to be invalid")
	}
}

func TestModelConfig_HasCapability(t *testing.T) {
	model := ModelConfig{Capabilities: pq.StringArray{"text", "image"}}

	if !model.HasCapability(CapabilityText) {
		t.Error("Expected text capability")
	}
	if !model.HasCapability(CapabilityImage) {
		t.Error("Expected image capability")
	}

	textOnly := ModelConfig{Capabilities: pq.StringArray{"text"}}
	if textOnly.HasCapability(CapabilityImage) {
		t.Error("Did not expect image capability")
	}

	var empty ModelConfig
	if empty.HasCapability(CapabilityText) {
		t.Error("Did not expect capabilities on zero value")
	}
}

func TestModelConfig_ConfigAccessors(t *testing.T) {
	model := ModelConfig{
		Configuration: JSONB{
			"endpoint":    "https://example.com",
			"temperature": 0.5,
			"max_tokens":  float64(2000), // JSON numbers decode as float64
		},
	}

	if got := model.ConfigString("endpoint"); got != "https://example.com" {
		t.Errorf("Unexpected endpoint %q", got)
	}
	if got := model.ConfigString("missing"); got != "" {
		t.Errorf("Expected empty string for missing key, got %q", got)
	}
	if got := model.ConfigString("temperature"); got != "" {
		t.Errorf("Expected empty string for non-string value, got %q", got)
	}

	if temp, ok := model.ConfigFloat("temperature"); !ok || temp != 0.5 {
		t.Errorf("Expected temperature 0.5, got %v (ok=%v)", temp, ok)
	}
	if _, ok := model.ConfigFloat("endpoint"); ok {
		t.Error("Expected miss for non-numeric value")
	}

	if tokens, ok := model.ConfigInt("max_tokens"); !ok || tokens != 2000 {
		t.Errorf("Expected max_tokens 2000, got %v (ok=%v)", tokens, ok)
	}

	var empty ModelConfig
	if got := empty.ConfigString("anything"); got != "" {
		t.Error("Expected empty string on nil configuration")
	}
	if _, ok := empty.ConfigFloat("anything"); ok {
		t.Error("Expected miss on nil configuration")
	}
}
