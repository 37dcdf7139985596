package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
)

func TestGoogle_GenerateText(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "test-key")

	var gotReq googleGenerateRequest
	var gotPath, gotKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotReq)

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{
					"content": map[string]any{
						"role":  "model",
						"parts": []map[string]string{{"text": "generated reply"}},
					},
					"finishReason": "STOP",
				},
			},
			"usageMetadata": map[string]int{
				"promptTokenCount":     7,
				"candidatesTokenCount": 3,
				"totalTokenCount":      10,
			},
		})
	}))
	defer server.Close()

	provider, err := NewGoogleProvider(Config{
		Vendor:      models.ProviderGoogle,
		VendorModel: "gemini-2.0-flash",
		Settings:    map[string]any{"base_url": server.URL},
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	defer provider.Close()

	result, err := provider.GenerateText(context.Background(), "hi", GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}

	// The model name is part of the URL, not the body
	if !strings.HasSuffix(gotPath, "/models/gemini-2.0-flash:generateContent") {
		t.Errorf("Unexpected path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("Expected x-goog-api-key header, got %q", gotKey)
	}

	// Token and temperature limits travel in generationConfig
	if gotReq.GenerationConfig.MaxOutputTokens != DefaultMaxTokens {
		t.Errorf("Expected generationConfig max tokens, got %d", gotReq.GenerationConfig.MaxOutputTokens)
	}
	if gotReq.GenerationConfig.Temperature != DefaultTemperature {
		t.Errorf("Expected generationConfig temperature, got %v", gotReq.GenerationConfig.Temperature)
	}

	if result.Content != "generated reply" {
		t.Errorf("Expected content from candidates[0].content.parts[0].text, got %q", result.Content)
	}
	if result.Tokens != 10 {
		t.Errorf("Expected totalTokenCount 10, got %d", result.Tokens)
	}
}

func TestGoogle_EmptyCandidatesIsError(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "test-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer server.Close()

	provider, err := NewGoogleProvider(Config{
		Vendor:      models.ProviderGoogle,
		VendorModel: "gemini-2.0-flash",
		Settings:    map[string]any{"base_url": server.URL},
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	defer provider.Close()

	if _, err := provider.GenerateText(context.Background(), "hi", GenerateOptions{}); err == nil {
		t.Fatal("Expected error for empty candidates")
	}
}
