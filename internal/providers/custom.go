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

// CustomProvider implements the Provider interface for self-hosted or
// third-party endpoints that speak the OpenAI chat schema. Unlike the
// named vendors, both the endpoint and the API key env var name must be
// set explicitly in the model configuration.
type CustomProvider struct {
	config   Config
	apiKey   string
	client   *http.Client
	endpoint string
}

// NewCustomProvider creates a new custom endpoint adapter
func NewCustomProvider(config Config) (*CustomProvider, error) {
	endpoint := settingString(config.Settings, "endpoint")
	if endpoint == "" {
		return nil, &ConfigurationError{Reason: "custom provider requires an endpoint"}
	}

	envName := settingString(config.Settings, "api_key_env")
	if envName == "" {
		return nil, &ConfigurationError{Reason: "custom provider requires api_key_env"}
	}

	apiKey, err := resolveAPIKey(config.Settings, envName)
	if err != nil {
		return nil, err
	}

	return &CustomProvider{
		config:   config,
		apiKey:   apiKey,
		client:   newHTTPClient(config.Timeout),
		endpoint: endpoint,
	}, nil
}

// Type returns the provider type
func (p *CustomProvider) Type() models.ProviderType {
	return models.ProviderCustom
}

// GenerateText sends an OpenAI-style chat completion request to the
// configured endpoint
func (p *CustomProvider) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (*Result, error) {
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
		Temperature: effectiveTemperature(opts, p.config.Settings, DefaultTemperature),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
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
		return nil, openAIError(string(models.ProviderCustom), resp.StatusCode, respBody)
	}

	var chatResp openAIChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, &ProviderError{
			Vendor:     string(models.ProviderCustom),
			StatusCode: http.StatusOK,
			Message:    "response contained no choices",
		}
	}

	return &Result{
		ID:           chatResp.ID,
		Content:      chatResp.Choices[0].Message.Content,
		Model:        chatResp.Model,
		Vendor:       models.ProviderCustom,
		Tokens:       chatResp.Usage.TotalTokens,
		FinishReason: chatResp.Choices[0].FinishReason,
	}, nil
}

// TestConnection sends a minimal completion to verify the endpoint
func (p *CustomProvider) TestConnection(ctx context.Context) error {
	opts := GenerateOptions{MaxTokens: 1}
	_, err := p.GenerateText(ctx, "ping", opts)
	return err
}

// Close cleans up resources
func (p *CustomProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
