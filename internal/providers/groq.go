package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
)

const (
	groqDefaultBaseURL = "https://api.groq.com/openai/v1"
	groqDefaultKeyEnv  = "GROQ_API_KEY"

	// Groq models run at a lower default temperature than the other
	// chat vendors.
	groqDefaultTemperature = 0.3
)

// GroqProvider implements the Provider interface for Groq. Groq exposes an
// OpenAI-compatible API, so the wire structs are shared with the OpenAI
// adapter.
type GroqProvider struct {
	config  Config
	apiKey  string
	client  *http.Client
	baseURL string
}

// NewGroqProvider creates a new Groq adapter
func NewGroqProvider(config Config) (*GroqProvider, error) {
	apiKey, err := resolveAPIKey(config.Settings, groqDefaultKeyEnv)
	if err != nil {
		return nil, err
	}

	baseURL := groqDefaultBaseURL
	if url := settingString(config.Settings, "base_url"); url != "" {
		baseURL = url
	}

	return &GroqProvider{
		config:  config,
		apiKey:  apiKey,
		client:  newHTTPClient(config.Timeout),
		baseURL: baseURL,
	}, nil
}

// Type returns the provider type
func (p *GroqProvider) Type() models.ProviderType {
	return models.ProviderGroq
}

// GenerateText sends a chat completion request
func (p *GroqProvider) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (*Result, error) {
	model := opts.Model
	if model == "" {
		model = p.config.VendorModel
	}

	reqBody := openAIChatRequest{
		Model: model,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   effectiveMaxTokens(opts, p.config.Settings),
		Temperature: effectiveTemperature(opts, p.config.Settings, groqDefaultTemperature),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, openAIError(string(models.ProviderGroq), resp.StatusCode, respBody)
	}

	var chatResp openAIChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, &ProviderError{
			Vendor:     string(models.ProviderGroq),
			StatusCode: http.StatusOK,
			Message:    "response contained no choices",
		}
	}

	return &Result{
		ID:           chatResp.ID,
		Content:      chatResp.Choices[0].Message.Content,
		Model:        chatResp.Model,
		Vendor:       models.ProviderGroq,
		Tokens:       chatResp.Usage.TotalTokens,
		FinishReason: chatResp.Choices[0].FinishReason,
	}, nil
}

// TestConnection checks credentials against the models endpoint
func (p *GroqProvider) TestConnection(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return openAIError(string(models.ProviderGroq), resp.StatusCode, body)
	}

	return nil
}

// Close cleans up resources
func (p *GroqProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
