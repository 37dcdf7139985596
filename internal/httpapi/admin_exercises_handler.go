package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/somos-red-teaming/somosportal-sub000/internal/blind"
	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
	"github.com/somos-red-teaming/somosportal-sub000/internal/storage"
	"github.com/somos-red-teaming/somosportal-sub000/internal/utils"
)

// AdminExercisesHandler handles exercise management endpoints
type AdminExercisesHandler struct {
	db     *storage.DB
	engine *blind.Engine
}

// NewAdminExercisesHandler creates a new admin exercises handler
func NewAdminExercisesHandler(db *storage.DB, engine *blind.Engine) *AdminExercisesHandler {
	return &AdminExercisesHandler{
		db:     db,
		engine: engine,
	}
}

// ExerciseRequest represents a create/update exercise payload
type ExerciseRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

// AssignModelsRequest replaces an exercise's model set. Order matters:
// position i gets the pool label at index i.
type AssignModelsRequest struct {
	Models []blind.Target `json:"models"`
}

// InteractionListResponse is the paginated interaction log view
type InteractionListResponse struct {
	Interactions []*models.Interaction `json:"interactions"`
	TotalCount   int                   `json:"total_count"`
	Page         int                   `json:"page"`
	PageSize     int                   `json:"page_size"`
}

// ServeHTTP routes /admin/exercises requests
func (h *AdminExercisesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected: admin / exercises [/ {id} [/ models|interactions]]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "admin" || parts[1] != "exercises" {
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
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid exercise ID")
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
		id, err := uuid.Parse(parts[2])
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid exercise ID")
			return
		}
		switch parts[3] {
		case "models":
			switch r.Method {
			case http.MethodGet:
				h.listAssignments(w, r, id)
			case http.MethodPut:
				h.assignModels(w, r, id)
			default:
				utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		case "interactions":
			if r.Method != http.MethodGet {
				utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			h.listInteractions(w, r, id)
		default:
			utils.RespondWithError(w, http.StatusNotFound, "Not found")
		}
	default:
		utils.RespondWithError(w, http.StatusNotFound, "Not found")
	}
}

// list handles GET /admin/exercises
func (h *AdminExercisesHandler) list(w http.ResponseWriter, r *http.Request) {
	repo := storage.NewExerciseRepository(h.db)

	activeOnly := r.URL.Query().Get("active") == "true"
	exercises, err := repo.List(r.Context(), activeOnly)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list exercises")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, exercises)
}

// get handles GET /admin/exercises/{id}
func (h *AdminExercisesHandler) get(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	repo := storage.NewExerciseRepository(h.db)

	exercise, err := repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrExerciseNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Exercise not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get exercise")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, exercise)
}

// create handles POST /admin/exercises
func (h *AdminExercisesHandler) create(w http.ResponseWriter, r *http.Request) {
	var req ExerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Exercise name is required")
		return
	}

	exercise := &models.Exercise{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    true,
	}
	if req.IsActive != nil {
		exercise.IsActive = *req.IsActive
	}

	repo := storage.NewExerciseRepository(h.db)
	if err := repo.Create(r.Context(), exercise); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create exercise")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, exercise)
}

// update handles PUT /admin/exercises/{id}
func (h *AdminExercisesHandler) update(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req ExerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	repo := storage.NewExerciseRepository(h.db)
	exercise, err := repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrExerciseNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Exercise not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get exercise")
		return
	}

	if req.Name != "" {
		exercise.Name = req.Name
	}
	if req.Description != "" {
		exercise.Description = req.Description
	}
	if req.IsActive != nil {
		exercise.IsActive = *req.IsActive
	}

	if err := repo.Update(r.Context(), exercise); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update exercise")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, exercise)
}

// delete handles DELETE /admin/exercises/{id}
func (h *AdminExercisesHandler) delete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	repo := storage.NewExerciseRepository(h.db)

	if err := repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrExerciseNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Exercise not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete exercise")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// listAssignments handles GET /admin/exercises/{id}/models. This is the
// admin view: real model names and blind labels side by side.
func (h *AdminExercisesHandler) listAssignments(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	assigned, err := h.engine.ListForExercise(r.Context(), id, false)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list assignments")
		return
	}

	type adminAssignment struct {
		*models.AssignedModel
		ModelName string `json:"model_name"`
		Provider  string `json:"provider"`
		IsActive  bool   `json:"is_active"`
	}

	response := make([]adminAssignment, 0, len(assigned))
	for _, a := range assigned {
		response = append(response, adminAssignment{
			AssignedModel: a,
			ModelName:     a.ModelName,
			Provider:      a.Provider,
			IsActive:      a.IsActive,
		})
	}

	utils.RespondWithJSON(w, http.StatusOK, response)
}

// assignModels handles PUT /admin/exercises/{id}/models
func (h *AdminExercisesHandler) assignModels(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req AssignModelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	repo := storage.NewExerciseRepository(h.db)
	if _, err := repo.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrExerciseNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Exercise not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get exercise")
		return
	}

	assignments, err := h.engine.Assign(r.Context(), id, req.Models)
	if err != nil {
		if errors.Is(err, storage.ErrModelNotFound) {
			utils.RespondWithError(w, http.StatusBadRequest, "One or more models do not exist")
			return
		}
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, assignments)
}

// listInteractions handles GET /admin/exercises/{id}/interactions
func (h *AdminExercisesHandler) listInteractions(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	filters := storage.InteractionFilters{
		SessionID: r.URL.Query().Get("session_id"),
		Kind:      r.URL.Query().Get("kind"),
	}

	if raw := r.URL.Query().Get("model_id"); raw != "" {
		modelID, err := uuid.Parse(raw)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid model ID filter")
			return
		}
		filters.ModelID = modelID
	}

	filters.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filters.PageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 50
	}

	repo := storage.NewInteractionRepository(h.db)

	interactions, err := repo.ListByExercise(r.Context(), id, filters)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list interactions")
		return
	}

	totalCount, err := repo.CountByExercise(r.Context(), id)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to count interactions")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, InteractionListResponse{
		Interactions: interactions,
		TotalCount:   totalCount,
		Page:         filters.Page,
		PageSize:     filters.PageSize,
	})
}
