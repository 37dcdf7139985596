package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
)

const (
	huggingFaceDefaultBaseURL = "https://api-inference.huggingface.co"
	huggingFaceDefaultKeyEnv  = "HUGGINGFACE_API_KEY"

	hfDefaultPollInterval    = 1 * time.Second
	hfDefaultMaxPollAttempts = 30

	// hfTextRefusal is returned verbatim for text requests. The adapter
	// only fronts image pipelines.
	hfTextRefusal = "This model only supports image generation. Please use the image endpoint."
)

// Task states for the submit-then-poll flow.
const (
	hfTaskSucceeded = "succeeded"
	hfTaskFailed    = "failed"
	hfTaskPending   = "pending"
	hfTaskRunning   = "running"
)

// HuggingFaceProvider implements the Provider interface as an image-only
// shim. Text requests get a fixed refusal rather than an error so the
// conversation surface stays usable; image requests go through a
// submit-then-poll task flow.
type HuggingFaceProvider struct {
	config  Config
	apiKey  string
	client  *http.Client
	baseURL string

	// Polling knobs, overridable in tests
	pollInterval    time.Duration
	maxPollAttempts int
	sleep           func(ctx context.Context, d time.Duration) error
}

// NewHuggingFaceProvider creates a new Hugging Face adapter
func NewHuggingFaceProvider(config Config) (*HuggingFaceProvider, error) {
	apiKey, err := resolveAPIKey(config.Settings, huggingFaceDefaultKeyEnv)
	if err != nil {
		return nil, err
	}

	baseURL := huggingFaceDefaultBaseURL
	if url := settingString(config.Settings, "base_url"); url != "" {
		baseURL = url
	}

	return &HuggingFaceProvider{
		config:          config,
		apiKey:          apiKey,
		client:          newHTTPClient(config.Timeout),
		baseURL:         baseURL,
		pollInterval:    hfDefaultPollInterval,
		maxPollAttempts: hfDefaultMaxPollAttempts,
		sleep:           sleepContext,
	}, nil
}

// Type returns the provider type
func (p *HuggingFaceProvider) Type() models.ProviderType {
	return models.ProviderHuggingFace
}

// GenerateText answers with a fixed refusal. This adapter only fronts
// image pipelines; the refusal is a normal result, not an error.
func (p *HuggingFaceProvider) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (*Result, error) {
	return &Result{
		Content:      hfTextRefusal,
		Model:        p.config.VendorModel,
		Vendor:       models.ProviderHuggingFace,
		FinishReason: "refused",
	}, nil
}

// hfSubmitRequest is the task submission body
type hfSubmitRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
}

// hfSubmitResponse is the task submission response
type hfSubmitResponse struct {
	TaskID string `json:"task_id"`
}

// hfTaskStatus is the poll response
type hfTaskStatus struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	ImageURL string `json:"image_url"`
	Error    string `json:"error"`
}

// GenerateImage submits an image task and polls it to completion. Polling
// uses a fixed interval and a hard attempt ceiling; hitting the ceiling is
// a PollTimeoutError carrying the task id, distinct from task failure.
func (p *HuggingFaceProvider) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*Result, error) {
	model := opts.Model
	if model == "" {
		model = p.config.VendorModel
	}

	taskID, err := p.submitTask(ctx, model, prompt, opts)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < p.maxPollAttempts; attempt++ {
		if err := p.sleep(ctx, p.pollInterval); err != nil {
			return nil, err
		}

		status, err := p.pollTask(ctx, taskID)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case hfTaskSucceeded:
			return &Result{
				ID:       taskID,
				ImageURL: status.ImageURL,
				Model:    model,
				Vendor:   models.ProviderHuggingFace,
				Metadata: map[string]any{"task_id": taskID},
			}, nil
		case hfTaskFailed:
			return nil, &ProviderError{
				Vendor:     string(models.ProviderHuggingFace),
				StatusCode: http.StatusOK,
				Code:       hfTaskFailed,
				Message:    status.Error,
			}
		case hfTaskPending, hfTaskRunning:
			// keep polling
		default:
			return nil, &ProviderError{
				Vendor:     string(models.ProviderHuggingFace),
				StatusCode: http.StatusOK,
				Message:    fmt.Sprintf("unknown task status %q", status.Status),
			}
		}
	}

	return nil, &PollTimeoutError{
		Vendor:   string(models.ProviderHuggingFace),
		TaskID:   taskID,
		Attempts: p.maxPollAttempts,
	}
}

// submitTask creates an image generation task and returns its id
func (p *HuggingFaceProvider) submitTask(ctx context.Context, model, prompt string, opts ImageOptions) (string, error) {
	reqBody := hfSubmitRequest{
		Model:  model,
		Prompt: prompt,
		Size:   opts.Size,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/tasks", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", &ProviderError{
			Vendor:     string(models.ProviderHuggingFace),
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	var submitResp hfSubmitResponse
	if err := json.Unmarshal(respBody, &submitResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if submitResp.TaskID == "" {
		return "", &ProviderError{
			Vendor:     string(models.ProviderHuggingFace),
			StatusCode: resp.StatusCode,
			Message:    "submission returned no task id",
		}
	}

	return submitResp.TaskID, nil
}

// pollTask fetches the current status of a task
func (p *HuggingFaceProvider) pollTask(ctx context.Context, taskID string) (*hfTaskStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

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
		return nil, &ProviderError{
			Vendor:     string(models.ProviderHuggingFace),
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	var status hfTaskStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &status, nil
}

// TestConnection checks API reachability without submitting a task
func (p *HuggingFaceProvider) TestConnection(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/status", nil)
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
		return &ProviderError{
			Vendor:     string(models.ProviderHuggingFace),
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	return nil
}

// Close cleans up resources
func (p *HuggingFaceProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// sleepContext waits for d or until the context is cancelled
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
