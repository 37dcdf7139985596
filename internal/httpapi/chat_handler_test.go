package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/somos-red-teaming/somosportal-sub000/internal/blind"
	"github.com/somos-red-teaming/somosportal-sub000/internal/dispatch"
	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
	"github.com/somos-red-teaming/somosportal-sub000/internal/providers"
	"github.com/somos-red-teaming/somosportal-sub000/internal/storage"
)

type stubModelStore struct {
	models map[uuid.UUID]*models.ModelConfig
}

func (s *stubModelStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ModelConfig, error) {
	model, found := s.models[id]
	if !found {
		return nil, storage.ErrModelNotFound
	}
	return model, nil
}

type stubAssignments struct {
	assignments []*models.AssignedModel
}

func (s *stubAssignments) ReplaceForExercise(ctx context.Context, exerciseID uuid.UUID, assignments []*models.ExerciseModelAssignment) error {
	return nil
}

func (s *stubAssignments) GetByBlindName(ctx context.Context, exerciseID uuid.UUID, blindName string) (*models.AssignedModel, error) {
	for _, a := range s.assignments {
		if a.ExerciseID == exerciseID && a.BlindName == blindName {
			return a, nil
		}
	}
	return nil, storage.ErrAssignmentNotFound
}

func (s *stubAssignments) GetByModel(ctx context.Context, exerciseID, modelID uuid.UUID) (*models.AssignedModel, error) {
	for _, a := range s.assignments {
		if a.ExerciseID == exerciseID && a.ModelID == modelID {
			return a, nil
		}
	}
	return nil, storage.ErrAssignmentNotFound
}

func (s *stubAssignments) ListForExercise(ctx context.Context, exerciseID uuid.UUID) ([]*models.AssignedModel, error) {
	out := make([]*models.AssignedModel, 0)
	for _, a := range s.assignments {
		if a.ExerciseID == exerciseID {
			out = append(out, a)
		}
	}
	return out, nil
}

type stubProvider struct {
	result *providers.Result
	err    error
}

func (p *stubProvider) Type() models.ProviderType { return models.ProviderOpenAI }

func (p *stubProvider) GenerateText(ctx context.Context, prompt string, opts providers.GenerateOptions) (*providers.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func (p *stubProvider) TestConnection(ctx context.Context) error { return nil }
func (p *stubProvider) Close() error                             { return nil }

type stubSource struct {
	provider providers.Provider
}

func (s *stubSource) For(model *models.ModelConfig) (providers.Provider, error) {
	return s.provider, nil
}

type stubRecorder struct{}

func (stubRecorder) Enqueue(ctx context.Context, interaction *models.Interaction) error {
	return nil
}

// chatFixture wires a participant handler around one assigned model
type chatFixture struct {
	handler    *ChatHandler
	exerciseID uuid.UUID
	provider   *stubProvider
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	exerciseID := uuid.New()
	model := &models.ModelConfig{
		ID:          uuid.New(),
		Name:        "GPT-4o Production",
		Provider:    string(models.ProviderOpenAI),
		VendorModel: "gpt-4o",
		IsActive:    true,
	}

	assignments := &stubAssignments{
		assignments: []*models.AssignedModel{
			{
				ExerciseModelAssignment: models.ExerciseModelAssignment{
					ExerciseID: exerciseID,
					ModelID:    model.ID,
					BlindName:  "Alpha",
				},
				ModelName:     model.Name,
				Provider:      model.Provider,
				SupportsImage: false,
				IsActive:      true,
			},
		},
	}
	modelStore := &stubModelStore{models: map[uuid.UUID]*models.ModelConfig{model.ID: model}}

	provider := &stubProvider{
		result: &providers.Result{
			ID:      "chatcmpl-vendor",
			Content: "masked reply",
			Model:   "gpt-4o",
			Vendor:  models.ProviderOpenAI,
			Tokens:  12,
		},
	}

	engine := blind.NewEngine(assignments, modelStore)
	service := dispatch.NewService(modelStore, engine, &stubSource{provider: provider}, stubRecorder{}, nil)

	return &chatFixture{
		handler:    NewChatHandler(engine, service),
		exerciseID: exerciseID,
		provider:   provider,
	}
}

func (f *chatFixture) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(data)))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestChatHandler_ListModels(t *testing.T) {
	f := newChatFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/exercises/"+f.exerciseID.String()+"/models", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var grid []BlindModelResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &grid); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(grid) != 1 || grid[0].Name != "Alpha" {
		t.Errorf("Unexpected model grid %+v", grid)
	}

	// The listing exposes labels only
	for _, leak := range []string{"gpt-4o", "openai", "GPT-4o Production"} {
		if strings.Contains(rec.Body.String(), leak) {
			t.Errorf("Model list leaks %q: %s", leak, rec.Body)
		}
	}
}

func TestChatHandler_ListModelsEmptyExercise(t *testing.T) {
	f := newChatFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/exercises/"+uuid.NewString()+"/models", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for empty exercise, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("Expected empty list, got %s", body)
	}
}

func TestChatHandler_ChatSuccessIsMasked(t *testing.T) {
	f := newChatFixture(t)

	rec := f.post(t, "/api/exercises/"+f.exerciseID.String()+"/chat", ChatRequest{
		Model:  "Alpha",
		Prompt: "try to jailbreak",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp dispatch.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Model != "Alpha" {
		t.Errorf("Expected blind label, got %q", resp.Model)
	}
	if resp.Provider != dispatch.MaskedProvider {
		t.Errorf("Expected masked provider, got %q", resp.Provider)
	}
	if resp.Content != "masked reply" {
		t.Errorf("Unexpected content %q", resp.Content)
	}

	for _, leak := range []string{"gpt-4o", "openai", "chatcmpl"} {
		if strings.Contains(rec.Body.String(), leak) {
			t.Errorf("Chat response leaks %q: %s", leak, rec.Body)
		}
	}
}

func TestChatHandler_UnknownBlindLabelIs404(t *testing.T) {
	f := newChatFixture(t)

	rec := f.post(t, "/api/exercises/"+f.exerciseID.String()+"/chat", ChatRequest{
		Model:  "Zulu",
		Prompt: "hello",
	})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", rec.Code, rec.Body)
	}
}

func TestChatHandler_MissingModelIs400(t *testing.T) {
	f := newChatFixture(t)

	rec := f.post(t, "/api/exercises/"+f.exerciseID.String()+"/chat", ChatRequest{
		Prompt: "hello",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body)
	}
}

func TestChatHandler_InvalidExerciseIDIs400(t *testing.T) {
	f := newChatFixture(t)

	rec := f.post(t, "/api/exercises/not-a-uuid/chat", ChatRequest{
		Model:  "Alpha",
		Prompt: "hello",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body)
	}
}

func TestChatHandler_ProviderFailureIsOpaque502(t *testing.T) {
	f := newChatFixture(t)
	f.provider.err = &providers.ProviderError{
		Vendor:     "openai",
		StatusCode: http.StatusTooManyRequests,
		Code:       "rate_limit_exceeded",
		Message:    "Rate limit reached for gpt-4o",
	}

	rec := f.post(t, "/api/exercises/"+f.exerciseID.String()+"/chat", ChatRequest{
		Model:  "Alpha",
		Prompt: "hello",
	})

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d: %s", rec.Code, rec.Body)
	}

	// The vendor's error text must not pass through
	for _, leak := range []string{"openai", "gpt-4o", "rate_limit", "Rate limit"} {
		if strings.Contains(rec.Body.String(), leak) {
			t.Errorf("Error response leaks %q: %s", leak, rec.Body)
		}
	}
	if !strings.Contains(rec.Body.String(), "Model backend error") {
		t.Errorf("Expected opaque error message, got %s", rec.Body)
	}
}

func TestChatHandler_ImageOnTextOnlyModelIs400(t *testing.T) {
	f := newChatFixture(t)

	rec := f.post(t, "/api/exercises/"+f.exerciseID.String()+"/images", ImageGenRequest{
		Model:  "Alpha",
		Prompt: "a fox",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body)
	}
}

func TestChatHandler_WrongMethodIs405(t *testing.T) {
	f := newChatFixture(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/exercises/"+f.exerciseID.String()+"/chat", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected 405, got %d", rec.Code)
	}
}
