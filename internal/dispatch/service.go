// Package dispatch orchestrates blind generation requests: it resolves
// the target model, enforces the exercise assignment boundary, calls the
// vendor adapter, records the interaction, and masks the response.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/somos-red-teaming/somosportal-sub000/internal/blind"
	"github.com/somos-red-teaming/somosportal-sub000/internal/imagestore"
	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
	"github.com/somos-red-teaming/somosportal-sub000/internal/providers"
	"github.com/somos-red-teaming/somosportal-sub000/internal/utils"
)

// recordTimeout bounds the best-effort interaction enqueue. The enqueue
// runs on a fresh context so a cancelled request context cannot lose an
// already-billed generation.
const recordTimeout = 5 * time.Second

// ModelStore resolves model ids
type ModelStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ModelConfig, error)
}

// ProviderSource yields the adapter for a model
type ProviderSource interface {
	For(model *models.ModelConfig) (providers.Provider, error)
}

// InteractionRecorder accepts interaction logs for async persistence
type InteractionRecorder interface {
	Enqueue(ctx context.Context, interaction *models.Interaction) error
}

// Request is a text generation request. ModelID has already been
// resolved from the participant's blind label by the transport layer.
type Request struct {
	ExerciseID     uuid.UUID
	ModelID        uuid.UUID
	Prompt         string
	SessionID      string
	ConversationID string
	MaxTokens      int
	Temperature    *float64
}

// ImageRequest is an image generation request
type ImageRequest struct {
	ExerciseID     uuid.UUID
	ModelID        uuid.UUID
	Prompt         string
	SessionID      string
	ConversationID string
	Size           string
	Quality        string
	Style          string
}

// Response is the masked, participant-facing result. ID is the portal's
// own interaction id; Model is the blind label; Provider is always the
// opaque sentinel.
type Response struct {
	ID             string `json:"id"`
	Content        string `json:"content,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	Model          string `json:"model"`
	Provider       string `json:"provider"`
	Tokens         int    `json:"tokens,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Service coordinates one generation request end to end
type Service struct {
	models       ModelStore
	blind        *blind.Engine
	providers    ProviderSource
	interactions InteractionRecorder
	images       imagestore.Store
	logger       *utils.Logger
}

// NewService creates a dispatch service
func NewService(modelStore ModelStore, engine *blind.Engine, source ProviderSource, recorder InteractionRecorder, images imagestore.Store) *Service {
	if images == nil {
		images = imagestore.NoopStore{}
	}
	return &Service{
		models:       modelStore,
		blind:        engine,
		providers:    source,
		interactions: recorder,
		images:       images,
		logger:       utils.NewLogger("dispatch"),
	}
}

// GenerateText runs the text generation flow: validate, resolve config,
// resolve blind binding, dispatch, record, mask.
func (s *Service) GenerateText(ctx context.Context, req Request) (*Response, error) {
	model, assignment, err := s.resolveTarget(ctx, req.ExerciseID, req.ModelID, req.Prompt)
	if err != nil {
		return nil, err
	}

	provider, err := s.providers.For(model)
	if err != nil {
		return nil, err
	}

	opts := providers.GenerateOptions{
		MaxTokens:   req.MaxTokens,
		Temperature: effectiveTemperature(req.Temperature, assignment),
	}

	// Vendor calls are never retried; attempts may be billed.
	result, err := provider.GenerateText(ctx, req.Prompt, opts)
	if err != nil {
		return nil, err
	}

	interactionID := uuid.New()
	s.record(&models.Interaction{
		ID:             interactionID,
		ExerciseID:     req.ExerciseID,
		ModelID:        model.ID,
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
		Kind:           models.InteractionText,
		Prompt:         req.Prompt,
		Response:       result.Content,
		Tokens:         result.Tokens,
		Metadata:       resultMetadata(result),
	})

	return &Response{
		ID:             interactionID.String(),
		Content:        result.Content,
		Model:          assignment.BlindName,
		Provider:       MaskedProvider,
		Tokens:         result.Tokens,
		ConversationID: req.ConversationID,
	}, nil
}

// GenerateImage runs the image flow. Beyond the text skeleton it checks
// that both the model config and the adapter declare image support.
func (s *Service) GenerateImage(ctx context.Context, req ImageRequest) (*Response, error) {
	model, assignment, err := s.resolveTarget(ctx, req.ExerciseID, req.ModelID, req.Prompt)
	if err != nil {
		return nil, err
	}

	if !model.HasCapability(models.CapabilityImage) {
		return nil, &providers.CapabilityError{Vendor: assignment.BlindName, Operation: "image generation"}
	}

	provider, err := s.providers.For(model)
	if err != nil {
		return nil, err
	}

	imageGen, ok := provider.(providers.ImageGenerator)
	if !ok {
		return nil, &providers.CapabilityError{Vendor: assignment.BlindName, Operation: "image generation"}
	}

	opts := providers.ImageOptions{
		Size:    req.Size,
		Quality: req.Quality,
		Style:   req.Style,
	}

	result, err := imageGen.GenerateImage(ctx, req.Prompt, opts)
	if err != nil {
		return nil, err
	}

	interactionID := uuid.New()

	// Archival is best-effort like persistence: a failed archive keeps
	// the vendor URL as the reference.
	imageRef := result.ImageURL
	if ref, err := s.images.Save(ctx, req.ExerciseID, interactionID, result.ImageURL); err != nil {
		s.logger.Warn("Failed to archive image", "interaction_id", interactionID, "error", err)
	} else {
		imageRef = ref
	}

	s.record(&models.Interaction{
		ID:             interactionID,
		ExerciseID:     req.ExerciseID,
		ModelID:        model.ID,
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
		Kind:           models.InteractionImage,
		Prompt:         req.Prompt,
		ImageRef:       imageRef,
		Metadata:       resultMetadata(result),
	})

	return &Response{
		ID:             interactionID.String(),
		ImageURL:       result.ImageURL,
		Model:          assignment.BlindName,
		Provider:       MaskedProvider,
		ConversationID: req.ConversationID,
	}, nil
}

// resolveTarget runs the shared validate / resolve-config / resolve-binding
// steps of both flows.
func (s *Service) resolveTarget(ctx context.Context, exerciseID, modelID uuid.UUID, prompt string) (*models.ModelConfig, *models.AssignedModel, error) {
	if exerciseID == uuid.Nil {
		return nil, nil, &ValidationError{Field: "exercise_id", Message: "required"}
	}
	if modelID == uuid.Nil {
		return nil, nil, &ValidationError{Field: "model_id", Message: "required"}
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, nil, &ValidationError{Field: "prompt", Message: "required"}
	}

	model, err := s.models.GetByID(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	if !model.IsActive {
		return nil, nil, ErrModelInactive
	}

	assignment, err := s.blind.AssignmentFor(ctx, exerciseID, modelID)
	if err != nil {
		return nil, nil, ErrNotAssigned
	}

	return model, assignment, nil
}

// record enqueues an interaction log. Failures are logged and swallowed:
// the generation already succeeded and is not retracted over a logging
// failure.
func (s *Service) record(interaction *models.Interaction) {
	if s.interactions == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := s.interactions.Enqueue(ctx, interaction); err != nil {
		s.logger.Warn("Failed to record interaction",
			"interaction_id", interaction.ID,
			"exercise_id", interaction.ExerciseID,
			"error", err,
		)
	}
}

// effectiveTemperature applies the request > exercise override precedence.
// A nil result defers to the model config and adapter defaults.
func effectiveTemperature(requested *float64, assignment *models.AssignedModel) *float64 {
	if requested != nil {
		return requested
	}
	return assignment.TemperatureOverride
}

// resultMetadata collects vendor identifiers for the admin-only log.
// These never appear in participant-facing responses.
func resultMetadata(result *providers.Result) models.JSONB {
	metadata := models.JSONB{
		"vendor":       string(result.Vendor),
		"vendor_model": result.Model,
	}
	if result.ID != "" {
		metadata["vendor_response_id"] = result.ID
	}
	if result.FinishReason != "" {
		metadata["finish_reason"] = result.FinishReason
	}
	for k, v := range result.Metadata {
		metadata[k] = v
	}
	return metadata
}
