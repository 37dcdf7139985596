package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/somos-red-teaming/somosportal-sub000/internal/blind"
	"github.com/somos-red-teaming/somosportal-sub000/internal/utils"
)

// AdminAssignmentsHandler serves assignment preview. Preview is pure: it
// shows which blind label each model would receive without persisting.
type AdminAssignmentsHandler struct {
	engine *blind.Engine
}

// NewAdminAssignmentsHandler creates a new assignments handler
func NewAdminAssignmentsHandler(engine *blind.Engine) *AdminAssignmentsHandler {
	return &AdminAssignmentsHandler{engine: engine}
}

// PreviewRequest is the ordered model list to preview
type PreviewRequest struct {
	Models []blind.Target `json:"models"`
}

// ServeHTTP handles POST /admin/assignments/preview
func (h *AdminAssignmentsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, h.engine.Preview(req.Models))
}
