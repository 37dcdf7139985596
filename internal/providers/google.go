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
	googleDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	googleDefaultKeyEnv  = "GOOGLE_API_KEY"
)

// GoogleProvider implements the Provider interface for the Gemini API
type GoogleProvider struct {
	config  Config
	apiKey  string
	client  *http.Client
	baseURL string
}

// NewGoogleProvider creates a new Google adapter
func NewGoogleProvider(config Config) (*GoogleProvider, error) {
	apiKey, err := resolveAPIKey(config.Settings, googleDefaultKeyEnv)
	if err != nil {
		return nil, err
	}

	baseURL := googleDefaultBaseURL
	if url := settingString(config.Settings, "base_url"); url != "" {
		baseURL = url
	}

	return &GoogleProvider{
		config:  config,
		apiKey:  apiKey,
		client:  newHTTPClient(config.Timeout),
		baseURL: baseURL,
	}, nil
}

// Type returns the provider type
func (p *GoogleProvider) Type() models.ProviderType {
	return models.ProviderGoogle
}

// googleGenerateRequest is the generateContent request body
type googleGenerateRequest struct {
	Contents         []googleContent        `json:"contents"`
	GenerationConfig googleGenerationConfig `json:"generationConfig"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

// googleGenerateResponse is the generateContent response body
type googleGenerateResponse struct {
	Candidates []struct {
		Content      googleContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// googleErrorResponse is the vendor error envelope
type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateText sends a generateContent request
func (p *GoogleProvider) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (*Result, error) {
	model := opts.Model
	if model == "" {
		model = p.config.VendorModel
	}

	reqBody := googleGenerateRequest{
		Contents: []googleContent{
			{Role: "user", Parts: []googlePart{{Text: prompt}}},
		},
		GenerationConfig: googleGenerationConfig{
			MaxOutputTokens: effectiveMaxTokens(opts, p.config.Settings),
			Temperature:     effectiveTemperature(opts, p.config.Settings, DefaultTemperature),
		},
	}

	respBody, err := p.post(ctx, model, reqBody)
	if err != nil {
		return nil, err
	}

	var genResp googleGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return nil, &ProviderError{
			Vendor:     string(models.ProviderGoogle),
			StatusCode: http.StatusOK,
			Message:    "response contained no candidates",
		}
	}

	return &Result{
		Content:      genResp.Candidates[0].Content.Parts[0].Text,
		Model:        model,
		Vendor:       models.ProviderGoogle,
		Tokens:       genResp.UsageMetadata.TotalTokenCount,
		FinishReason: genResp.Candidates[0].FinishReason,
	}, nil
}

// post sends a generateContent request for the given model
func (p *GoogleProvider) post(ctx context.Context, model string, reqBody any) ([]byte, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

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
		return nil, googleError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// TestConnection sends a minimal generation request to verify credentials
func (p *GoogleProvider) TestConnection(ctx context.Context) error {
	reqBody := googleGenerateRequest{
		Contents: []googleContent{
			{Role: "user", Parts: []googlePart{{Text: "ping"}}},
		},
		GenerationConfig: googleGenerationConfig{
			MaxOutputTokens: 1,
		},
	}

	_, err := p.post(ctx, p.config.VendorModel, reqBody)
	return err
}

// Close cleans up resources
func (p *GoogleProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// googleError builds a ProviderError from a Google error body
func googleError(statusCode int, body []byte) *ProviderError {
	var errResp googleErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &ProviderError{
			Vendor:     string(models.ProviderGoogle),
			StatusCode: statusCode,
			Code:       errResp.Error.Status,
			Message:    errResp.Error.Message,
		}
	}
	return &ProviderError{
		Vendor:     string(models.ProviderGoogle),
		StatusCode: statusCode,
		Message:    string(body),
	}
}
