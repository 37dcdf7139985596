package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
	"github.com/somos-red-teaming/somosportal-sub000/internal/providers"
	"github.com/somos-red-teaming/somosportal-sub000/internal/storage"
	"github.com/somos-red-teaming/somosportal-sub000/internal/utils"
)

// AdminModelsHandler handles model management endpoints. Admin views are
// the one place real vendor and model names appear.
type AdminModelsHandler struct {
	db       *storage.DB
	registry *providers.Manager
}

// NewAdminModelsHandler creates a new admin models handler
func NewAdminModelsHandler(db *storage.DB, registry *providers.Manager) *AdminModelsHandler {
	return &AdminModelsHandler{
		db:       db,
		registry: registry,
	}
}

// CreateModelRequest represents the request to create a model config
type CreateModelRequest struct {
	Name          string         `json:"name"`
	Provider      string         `json:"provider"`
	VendorModel   string         `json:"vendor_model"`
	Configuration map[string]any `json:"configuration,omitempty"`
	Capabilities  []string       `json:"capabilities,omitempty"`
	IsActive      *bool          `json:"is_active,omitempty"`
}

// UpdateModelRequest represents the request to update a model config
type UpdateModelRequest struct {
	Name          *string         `json:"name,omitempty"`
	Provider      *string         `json:"provider,omitempty"`
	VendorModel   *string         `json:"vendor_model,omitempty"`
	Configuration *map[string]any `json:"configuration,omitempty"`
	Capabilities  *[]string       `json:"capabilities,omitempty"`
	IsActive      *bool           `json:"is_active,omitempty"`
}

// TestProviderResponse reports the result of a connection test
type TestProviderResponse struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// ServeHTTP routes /admin/models requests
func (h *AdminModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected: admin / models [/ {id} [/ test]]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "admin" || parts[1] != "models" {
		utils.RespondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	switch len(parts) {
	case 2:
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	case 3:
		id, err := uuid.Parse(parts[2])
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid model ID")
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodPut:
			h.update(w, r, id)
		case http.MethodDelete:
			h.delete(w, r, id)
		default:
			utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	case 4:
		if parts[3] != "test" || r.Method != http.MethodPost {
			utils.RespondWithError(w, http.StatusNotFound, "Not found")
			return
		}
		id, err := uuid.Parse(parts[2])
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid model ID")
			return
		}
		h.test(w, r, id)
	default:
		utils.RespondWithError(w, http.StatusNotFound, "Not found")
	}
}

// list handles GET /admin/models
func (h *AdminModelsHandler) list(w http.ResponseWriter, r *http.Request) {
	repo := storage.NewModelRepository(h.db)

	activeOnly := r.URL.Query().Get("active") == "true"
	modelsList, err := repo.List(r.Context(), activeOnly)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list models")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, modelsList)
}

// get handles GET /admin/models/{id}
func (h *AdminModelsHandler) get(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	repo := storage.NewModelRepository(h.db)

	model, err := repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrModelNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get model")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, model)
}

// create handles POST /admin/models
func (h *AdminModelsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	model := &models.ModelConfig{
		Name:          req.Name,
		Provider:      req.Provider,
		VendorModel:   req.VendorModel,
		Configuration: req.Configuration,
		Capabilities:  pq.StringArray(req.Capabilities),
		IsActive:      true,
	}
	if req.IsActive != nil {
		model.IsActive = *req.IsActive
	}

	if err := model.Validate(); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	repo := storage.NewModelRepository(h.db)
	if err := repo.Create(r.Context(), model); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create model")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, model)
}

// update handles PUT /admin/models/{id}
func (h *AdminModelsHandler) update(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req UpdateModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	repo := storage.NewModelRepository(h.db)
	model, err := repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrModelNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get model")
		return
	}

	// Work on a copy so a failed validation leaves the cache untouched
	updated := *model
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.Provider != nil {
		updated.Provider = *req.Provider
	}
	if req.VendorModel != nil {
		updated.VendorModel = *req.VendorModel
	}
	if req.Configuration != nil {
		updated.Configuration = *req.Configuration
	}
	if req.Capabilities != nil {
		updated.Capabilities = pq.StringArray(*req.Capabilities)
	}
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}

	if err := updated.Validate(); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := repo.Update(r.Context(), &updated); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update model")
		return
	}

	// The cached adapter was built from the old configuration
	h.registry.Invalidate(id)

	utils.RespondWithJSON(w, http.StatusOK, &updated)
}

// delete handles DELETE /admin/models/{id}
func (h *AdminModelsHandler) delete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	repo := storage.NewModelRepository(h.db)

	if err := repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrModelNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete model")
		return
	}

	h.registry.Invalidate(id)

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// test handles POST /admin/models/{id}/test. Unlike participant-facing
// errors, the admin gets the real failure detail.
func (h *AdminModelsHandler) test(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	repo := storage.NewModelRepository(h.db)

	model, err := repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrModelNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get model")
		return
	}

	provider, err := h.registry.For(model)
	if err != nil {
		utils.RespondWithJSON(w, http.StatusOK, TestProviderResponse{OK: false, Detail: err.Error()})
		return
	}

	if err := provider.TestConnection(r.Context()); err != nil {
		utils.RespondWithJSON(w, http.StatusOK, TestProviderResponse{OK: false, Detail: err.Error()})
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, TestProviderResponse{OK: true})
}
