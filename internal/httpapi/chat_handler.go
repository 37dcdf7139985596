package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/somos-red-teaming/somosportal-sub000/internal/blind"
	"github.com/somos-red-teaming/somosportal-sub000/internal/dispatch"
	"github.com/somos-red-teaming/somosportal-sub000/internal/providers"
	"github.com/somos-red-teaming/somosportal-sub000/internal/storage"
	"github.com/somos-red-teaming/somosportal-sub000/internal/utils"
)

// ChatHandler serves the participant-facing endpoints. Everything it
// returns is masked: blind labels only, never vendor or model names.
type ChatHandler struct {
	engine   *blind.Engine
	dispatch *dispatch.Service
	logger   *utils.Logger
}

// NewChatHandler creates a new participant chat handler
func NewChatHandler(engine *blind.Engine, service *dispatch.Service) *ChatHandler {
	return &ChatHandler{
		engine:   engine,
		dispatch: service,
		logger:   utils.NewLogger("chat-handler"),
	}
}

// BlindModelResponse is one entry of the participant model list
type BlindModelResponse struct {
	Name           string `json:"name"`
	SupportsImages bool   `json:"supports_images"`
}

// ChatRequest is the participant text generation request. Model is the
// blind label shown in the exercise grid.
type ChatRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	SessionID      string   `json:"session_id,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
}

// ImageGenRequest is the participant image generation request
type ImageGenRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	SessionID      string `json:"session_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
}

// ServeHTTP routes /api/exercises/{id}/... requests
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected: api / exercises / {id} / models|chat|images
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[0] != "api" || parts[1] != "exercises" {
		utils.RespondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	exerciseID, err := uuid.Parse(parts[2])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid exercise ID")
		return
	}

	switch {
	case parts[3] == "models" && r.Method == http.MethodGet:
		h.listModels(w, r, exerciseID)
	case parts[3] == "chat" && r.Method == http.MethodPost:
		h.chat(w, r, exerciseID)
	case parts[3] == "images" && r.Method == http.MethodPost:
		h.image(w, r, exerciseID)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// listModels returns the blind model grid for an exercise. An exercise
// with no assignments returns an empty list, not an error.
func (h *ChatHandler) listModels(w http.ResponseWriter, r *http.Request, exerciseID uuid.UUID) {
	assigned, err := h.engine.ListForExercise(r.Context(), exerciseID, true)
	if err != nil {
		h.logger.Error("Failed to list assignments", "exercise_id", exerciseID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list models")
		return
	}

	response := make([]BlindModelResponse, 0, len(assigned))
	for _, a := range assigned {
		response = append(response, BlindModelResponse{
			Name:           a.BlindName,
			SupportsImages: a.SupportsImage,
		})
	}

	utils.RespondWithJSON(w, http.StatusOK, response)
}

// chat handles POST /api/exercises/{id}/chat
func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request, exerciseID uuid.UUID) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	assignment, ok := h.resolveBlind(w, r, exerciseID, req.Model)
	if !ok {
		return
	}

	response, err := h.dispatch.GenerateText(r.Context(), dispatch.Request{
		ExerciseID:     exerciseID,
		ModelID:        assignment.ModelID,
		Prompt:         req.Prompt,
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
		MaxTokens:      req.MaxTokens,
		Temperature:    req.Temperature,
	})
	if err != nil {
		h.respondDispatchError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, response)
}

// image handles POST /api/exercises/{id}/images
func (h *ChatHandler) image(w http.ResponseWriter, r *http.Request, exerciseID uuid.UUID) {
	var req ImageGenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	assignment, ok := h.resolveBlind(w, r, exerciseID, req.Model)
	if !ok {
		return
	}

	response, err := h.dispatch.GenerateImage(r.Context(), dispatch.ImageRequest{
		ExerciseID:     exerciseID,
		ModelID:        assignment.ModelID,
		Prompt:         req.Prompt,
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
		Size:           req.Size,
		Quality:        req.Quality,
		Style:          req.Style,
	})
	if err != nil {
		h.respondDispatchError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, response)
}

// resolveBlind maps a blind label to its assignment, writing the error
// response itself when resolution fails.
func (h *ChatHandler) resolveBlind(w http.ResponseWriter, r *http.Request, exerciseID uuid.UUID, blindName string) (*assignmentRef, bool) {
	if strings.TrimSpace(blindName) == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Model name is required")
		return nil, false
	}

	assigned, err := h.engine.Resolve(r.Context(), exerciseID, blindName)
	if err != nil {
		if errors.Is(err, storage.ErrAssignmentNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Model not found")
			return nil, false
		}
		h.logger.Error("Failed to resolve blind name", "exercise_id", exerciseID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to resolve model")
		return nil, false
	}

	return &assignmentRef{ModelID: assigned.ModelID}, true
}

type assignmentRef struct {
	ModelID uuid.UUID
}

// respondDispatchError maps dispatch errors to participant-safe HTTP
// responses. Vendor details never reach the participant; provider and
// configuration failures collapse to an opaque 502.
func (h *ChatHandler) respondDispatchError(w http.ResponseWriter, err error) {
	var validationErr *dispatch.ValidationError
	var capErr *providers.CapabilityError
	var provErr *providers.ProviderError
	var confErr *providers.ConfigurationError
	var pollErr *providers.PollTimeoutError

	switch {
	case errors.As(err, &validationErr):
		utils.RespondWithError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, dispatch.ErrNotAssigned):
		utils.RespondWithError(w, http.StatusNotFound, "Model not found")
	case errors.Is(err, dispatch.ErrModelInactive), errors.Is(err, storage.ErrModelNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Model not found")
	case errors.As(err, &capErr):
		utils.RespondWithError(w, http.StatusBadRequest, "This model does not support image generation")
	case errors.As(err, &pollErr):
		h.logger.Error("Image generation timed out", "error", err)
		utils.RespondWithError(w, http.StatusGatewayTimeout, "Image generation timed out")
	case errors.As(err, &provErr), errors.As(err, &confErr):
		h.logger.Error("Generation failed", "error", err)
		utils.RespondWithError(w, http.StatusBadGateway, "Model backend error")
	default:
		h.logger.Error("Generation failed", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Generation failed")
	}
}
