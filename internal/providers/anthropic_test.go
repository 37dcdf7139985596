package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
)

func newAnthropicTestProvider(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewAnthropicProvider(Config{
		Vendor:      models.ProviderAnthropic,
		VendorModel: "claude-sonnet-4-5",
		Settings:    map[string]any{"base_url": server.URL},
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	t.Cleanup(func() { provider.Close() })

	return provider
}

func TestAnthropic_GenerateText(t *testing.T) {
	var gotReq anthropicMessagesRequest
	var gotKey, gotVersion string

	provider := newAnthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		json.NewDecoder(r.Body).Decode(&gotReq)

		json.NewEncoder(w).Encode(map[string]any{
			"id":    "msg_abc",
			"model": "claude-sonnet-4-5",
			"content": []map[string]string{
				{"type": "text", "text": "response text"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 12, "output_tokens": 8},
		})
	})

	result, err := provider.GenerateText(context.Background(), "hi", GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}

	// Credentials go in x-api-key, not Authorization, and the version
	// header is mandatory
	if gotKey != "test-key" {
		t.Errorf("Expected x-api-key header, got %q", gotKey)
	}
	if gotVersion != anthropicAPIVersion {
		t.Errorf("Expected anthropic-version %q, got %q", anthropicAPIVersion, gotVersion)
	}

	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Error("Expected a single user message")
	}
	if gotReq.MaxTokens != DefaultMaxTokens {
		t.Errorf("Expected default max tokens, got %d", gotReq.MaxTokens)
	}

	if result.Content != "response text" {
		t.Errorf("Expected content from content[0].text, got %q", result.Content)
	}
	if result.Tokens != 20 {
		t.Errorf("Expected input+output token sum 20, got %d", result.Tokens)
	}
	if result.FinishReason != "end_turn" {
		t.Errorf("Unexpected finish reason %q", result.FinishReason)
	}
}

func TestAnthropic_ErrorEnvelope(t *testing.T) {
	provider := newAnthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"type":    "invalid_request_error",
				"message": "max_tokens is required",
			},
		})
	})

	_, err := provider.GenerateText(context.Background(), "hi", GenerateOptions{})

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if provErr.Code != "invalid_request_error" {
		t.Errorf("Expected vendor error type as code, got %q", provErr.Code)
	}
	if provErr.Vendor != string(models.ProviderAnthropic) {
		t.Errorf("Unexpected vendor %q", provErr.Vendor)
	}
}

func TestAnthropic_TestConnectionSendsOneToken(t *testing.T) {
	var gotReq anthropicMessagesRequest

	provider := newAnthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "msg_ping",
			"content": []map[string]string{{"type": "text", "text": "p"}},
		})
	})

	if err := provider.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection failed: %v", err)
	}
	if gotReq.MaxTokens != 1 {
		t.Errorf("Expected 1-token probe, got max_tokens=%d", gotReq.MaxTokens)
	}
}
