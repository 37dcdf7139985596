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
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultKeyEnv  = "OPENAI_API_KEY"
)

// OpenAIProvider implements the Provider interface for OpenAI
type OpenAIProvider struct {
	config  Config
	apiKey  string
	client  *http.Client
	baseURL string
}

// NewOpenAIProvider creates a new OpenAI adapter
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	apiKey, err := resolveAPIKey(config.Settings, openAIDefaultKeyEnv)
	if err != nil {
		return nil, err
	}

	baseURL := openAIDefaultBaseURL
	if url := settingString(config.Settings, "base_url"); url != "" {
		baseURL = url
	}

	return &OpenAIProvider{
		config:  config,
		apiKey:  apiKey,
		client:  newHTTPClient(config.Timeout),
		baseURL: baseURL,
	}, nil
}

// Type returns the provider type
func (p *OpenAIProvider) Type() models.ProviderType {
	return models.ProviderOpenAI
}

// openAIChatRequest is the chat/completions request body
type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIChatResponse is the chat/completions response body
type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// openAIErrorResponse is the vendor error envelope
type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// GenerateText sends a chat completion request
func (p *OpenAIProvider) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (*Result, error) {
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

	respBody, err := p.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return nil, err
	}

	var chatResp openAIChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, &ProviderError{
			Vendor:     string(models.ProviderOpenAI),
			StatusCode: http.StatusOK,
			Message:    "response contained no choices",
		}
	}

	return &Result{
		ID:           chatResp.ID,
		Content:      chatResp.Choices[0].Message.Content,
		Model:        chatResp.Model,
		Vendor:       models.ProviderOpenAI,
		Tokens:       chatResp.Usage.TotalTokens,
		FinishReason: chatResp.Choices[0].FinishReason,
	}, nil
}

// openAIImageRequest is the images/generations request body
type openAIImageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
}

// openAIImageResponse is the images/generations response body
type openAIImageResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// GenerateImage sends an image generation request
func (p *OpenAIProvider) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*Result, error) {
	model := opts.Model
	if model == "" {
		model = p.config.VendorModel
	}

	reqBody := openAIImageRequest{
		Model:   model,
		Prompt:  prompt,
		N:       1,
		Size:    opts.Size,
		Quality: opts.Quality,
		Style:   opts.Style,
	}

	respBody, err := p.post(ctx, "/images/generations", reqBody)
	if err != nil {
		return nil, err
	}

	var imgResp openAIImageResponse
	if err := json.Unmarshal(respBody, &imgResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(imgResp.Data) == 0 {
		return nil, &ProviderError{
			Vendor:     string(models.ProviderOpenAI),
			StatusCode: http.StatusOK,
			Message:    "response contained no images",
		}
	}

	result := &Result{
		ImageURL: imgResp.Data[0].URL,
		Model:    model,
		Vendor:   models.ProviderOpenAI,
	}
	if imgResp.Data[0].RevisedPrompt != "" {
		result.Metadata = map[string]any{"revised_prompt": imgResp.Data[0].RevisedPrompt}
	}

	return result, nil
}

// post sends a JSON POST and returns the raw body, mapping non-2xx
// statuses to ProviderError.
func (p *OpenAIProvider) post(ctx context.Context, path string, reqBody any) ([]byte, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
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
		return nil, openAIError(string(models.ProviderOpenAI), resp.StatusCode, respBody)
	}

	return respBody, nil
}

// TestConnection checks credentials against the models endpoint
func (p *OpenAIProvider) TestConnection(ctx context.Context) error {
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
		return openAIError(string(models.ProviderOpenAI), resp.StatusCode, body)
	}

	return nil
}

// Close cleans up resources
func (p *OpenAIProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// openAIError builds a ProviderError from an OpenAI-style error body.
// Shared with the Groq and custom adapters, which speak the same schema.
func openAIError(vendor string, statusCode int, body []byte) *ProviderError {
	var errResp openAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &ProviderError{
			Vendor:     vendor,
			StatusCode: statusCode,
			Code:       errResp.Error.Code,
			Message:    errResp.Error.Message,
		}
	}
	return &ProviderError{
		Vendor:     vendor,
		StatusCode: statusCode,
		Message:    string(body),
	}
}
