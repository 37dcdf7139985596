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
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicDefaultKeyEnv  = "ANTHROPIC_API_KEY"
	anthropicAPIVersion     = "2023-06-01"
)

// AnthropicProvider implements the Provider interface for Anthropic
type AnthropicProvider struct {
	config  Config
	apiKey  string
	client  *http.Client
	baseURL string
}

// NewAnthropicProvider creates a new Anthropic adapter
func NewAnthropicProvider(config Config) (*AnthropicProvider, error) {
	apiKey, err := resolveAPIKey(config.Settings, anthropicDefaultKeyEnv)
	if err != nil {
		return nil, err
	}

	baseURL := anthropicDefaultBaseURL
	if url := settingString(config.Settings, "base_url"); url != "" {
		baseURL = url
	}

	return &AnthropicProvider{
		config:  config,
		apiKey:  apiKey,
		client:  newHTTPClient(config.Timeout),
		baseURL: baseURL,
	}, nil
}

// Type returns the provider type
func (p *AnthropicProvider) Type() models.ProviderType {
	return models.ProviderAnthropic
}

// anthropicMessagesRequest is the v1/messages request body
type anthropicMessagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicMessagesResponse is the v1/messages response body
type anthropicMessagesResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// anthropicErrorResponse is the vendor error envelope
type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateText sends a messages request
func (p *AnthropicProvider) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (*Result, error) {
	model := opts.Model
	if model == "" {
		model = p.config.VendorModel
	}

	reqBody := anthropicMessagesRequest{
		Model:       model,
		MaxTokens:   effectiveMaxTokens(opts, p.config.Settings),
		Temperature: effectiveTemperature(opts, p.config.Settings, DefaultTemperature),
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	respBody, err := p.post(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	var msgResp anthropicMessagesResponse
	if err := json.Unmarshal(respBody, &msgResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(msgResp.Content) == 0 {
		return nil, &ProviderError{
			Vendor:     string(models.ProviderAnthropic),
			StatusCode: http.StatusOK,
			Message:    "response contained no content blocks",
		}
	}

	return &Result{
		ID:           msgResp.ID,
		Content:      msgResp.Content[0].Text,
		Model:        msgResp.Model,
		Vendor:       models.ProviderAnthropic,
		Tokens:       msgResp.Usage.InputTokens + msgResp.Usage.OutputTokens,
		FinishReason: msgResp.StopReason,
	}, nil
}

// post sends a messages request and returns the raw body
func (p *AnthropicProvider) post(ctx context.Context, reqBody any) ([]byte, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

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
		return nil, anthropicError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// TestConnection sends a minimal one-token message to verify credentials
func (p *AnthropicProvider) TestConnection(ctx context.Context) error {
	reqBody := anthropicMessagesRequest{
		Model:     p.config.VendorModel,
		MaxTokens: 1,
		Messages: []anthropicMessage{
			{Role: "user", Content: "ping"},
		},
	}

	_, err := p.post(ctx, reqBody)
	return err
}

// Close cleans up resources
func (p *AnthropicProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// anthropicError builds a ProviderError from an Anthropic error body
func anthropicError(statusCode int, body []byte) *ProviderError {
	var errResp anthropicErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &ProviderError{
			Vendor:     string(models.ProviderAnthropic),
			StatusCode: statusCode,
			Code:       errResp.Error.Type,
			Message:    errResp.Error.Message,
		}
	}
	return &ProviderError{
		Vendor:     string(models.ProviderAnthropic),
		StatusCode: statusCode,
		Message:    string(body),
	}
}
