package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/somos-red-teaming/somosportal-sub000/internal/blind"
	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
	"github.com/somos-red-teaming/somosportal-sub000/internal/providers"
	"github.com/somos-red-teaming/somosportal-sub000/internal/storage"
)

// fakeModelStore serves model rows from a map
type fakeModelStore struct {
	models map[uuid.UUID]*models.ModelConfig
}

func (s *fakeModelStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ModelConfig, error) {
	model, found := s.models[id]
	if !found {
		return nil, storage.ErrModelNotFound
	}
	return model, nil
}

// fakeAssignments serves assignments keyed by model id
type fakeAssignments struct {
	byModel map[uuid.UUID]*models.AssignedModel
}

func (s *fakeAssignments) ReplaceForExercise(ctx context.Context, exerciseID uuid.UUID, assignments []*models.ExerciseModelAssignment) error {
	return nil
}

func (s *fakeAssignments) GetByBlindName(ctx context.Context, exerciseID uuid.UUID, blindName string) (*models.AssignedModel, error) {
	for _, a := range s.byModel {
		if a.BlindName == blindName {
			return a, nil
		}
	}
	return nil, storage.ErrAssignmentNotFound
}

func (s *fakeAssignments) GetByModel(ctx context.Context, exerciseID, modelID uuid.UUID) (*models.AssignedModel, error) {
	a, found := s.byModel[modelID]
	if !found {
		return nil, storage.ErrAssignmentNotFound
	}
	return a, nil
}

func (s *fakeAssignments) ListForExercise(ctx context.Context, exerciseID uuid.UUID) ([]*models.AssignedModel, error) {
	out := make([]*models.AssignedModel, 0, len(s.byModel))
	for _, a := range s.byModel {
		out = append(out, a)
	}
	return out, nil
}

// fakeProvider records calls and replays a canned result
type fakeProvider struct {
	result      *providers.Result
	imageResult *providers.Result
	err         error
	lastOpts    providers.GenerateOptions
	calls       int
}

func (p *fakeProvider) Type() models.ProviderType { return models.ProviderOpenAI }

func (p *fakeProvider) GenerateText(ctx context.Context, prompt string, opts providers.GenerateOptions) (*providers.Result, error) {
	p.calls++
	p.lastOpts = opts
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func (p *fakeProvider) GenerateImage(ctx context.Context, prompt string, opts providers.ImageOptions) (*providers.Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.imageResult, nil
}

func (p *fakeProvider) TestConnection(ctx context.Context) error { return nil }
func (p *fakeProvider) Close() error                             { return nil }

// textOnlyProvider implements Provider but not ImageGenerator
type textOnlyProvider struct{}

func (textOnlyProvider) Type() models.ProviderType { return models.ProviderAnthropic }
func (textOnlyProvider) GenerateText(ctx context.Context, prompt string, opts providers.GenerateOptions) (*providers.Result, error) {
	return &providers.Result{Content: "text"}, nil
}
func (textOnlyProvider) TestConnection(ctx context.Context) error { return nil }
func (textOnlyProvider) Close() error                             { return nil }

type fakeSource struct {
	provider providers.Provider
	err      error
}

func (s *fakeSource) For(model *models.ModelConfig) (providers.Provider, error) {
	return s.provider, s.err
}

type fakeRecorder struct {
	recorded []*models.Interaction
	err      error
}

func (r *fakeRecorder) Enqueue(ctx context.Context, interaction *models.Interaction) error {
	if r.err != nil {
		return r.err
	}
	r.recorded = append(r.recorded, interaction)
	return nil
}

type failingImageStore struct{}

func (failingImageStore) Save(ctx context.Context, exerciseID, interactionID uuid.UUID, imageURL string) (string, error) {
	return "", errors.New("bucket unavailable")
}

// fixture wires a service around one assigned model
type fixture struct {
	service    *Service
	exerciseID uuid.UUID
	model      *models.ModelConfig
	provider   *fakeProvider
	recorder   *fakeRecorder
}

func newFixture(t *testing.T, capabilities []string) *fixture {
	t.Helper()

	exerciseID := uuid.New()
	model := &models.ModelConfig{
		ID:           uuid.New(),
		Name:         "GPT-4o Production",
		Provider:     string(models.ProviderOpenAI),
		VendorModel:  "gpt-4o",
		Capabilities: capabilities,
		IsActive:     true,
	}

	assignment := &models.AssignedModel{
		ExerciseModelAssignment: models.ExerciseModelAssignment{
			ID:         uuid.New(),
			ExerciseID: exerciseID,
			ModelID:    model.ID,
			BlindName:  "Alpha",
		},
		ModelName: model.Name,
		Provider:  model.Provider,
		IsActive:  true,
	}

	modelStore := &fakeModelStore{models: map[uuid.UUID]*models.ModelConfig{model.ID: model}}
	assignments := &fakeAssignments{byModel: map[uuid.UUID]*models.AssignedModel{model.ID: assignment}}

	provider := &fakeProvider{
		result: &providers.Result{
			ID:           "chatcmpl-vendor-id",
			Content:      "generated text",
			Model:        "gpt-4o",
			Vendor:       models.ProviderOpenAI,
			Tokens:       42,
			FinishReason: "stop",
		},
		imageResult: &providers.Result{
			ImageURL: "https://vendor.example.com/img.png",
			Model:    "gpt-4o",
			Vendor:   models.ProviderOpenAI,
		},
	}
	recorder := &fakeRecorder{}

	engine := blind.NewEngine(assignments, modelStore)
	service := NewService(modelStore, engine, &fakeSource{provider: provider}, recorder, nil)

	return &fixture{
		service:    service,
		exerciseID: exerciseID,
		model:      model,
		provider:   provider,
		recorder:   recorder,
	}
}

func (f *fixture) textRequest() Request {
	return Request{
		ExerciseID:     f.exerciseID,
		ModelID:        f.model.ID,
		Prompt:         "try to jailbreak",
		SessionID:      "sess-1",
		ConversationID: "conv-1",
	}
}

func TestGenerateText_MasksModelIdentity(t *testing.T) {
	f := newFixture(t, []string{"text"})

	resp, err := f.service.GenerateText(context.Background(), f.textRequest())
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}

	if resp.Model != "Alpha" {
		t.Errorf("Expected blind label, got %q", resp.Model)
	}
	if resp.Provider != MaskedProvider {
		t.Errorf("Expected masked provider, got %q", resp.Provider)
	}
	if resp.ID == "chatcmpl-vendor-id" {
		t.Error("Vendor response id must not be the outward id")
	}
	if _, err := uuid.Parse(resp.ID); err != nil {
		t.Errorf("Expected outward id to be the interaction uuid, got %q", resp.ID)
	}

	// Nothing in the serialized response may identify the backend
	body, _ := json.Marshal(resp)
	for _, leak := range []string{"gpt-4o", "GPT-4o Production", "openai", "chatcmpl"} {
		if strings.Contains(string(body), leak) {
			t.Errorf("Response leaks %q: %s", leak, body)
		}
	}
}

func TestGenerateText_RecordsInteractionWithVendorMetadata(t *testing.T) {
	f := newFixture(t, []string{"text"})

	resp, err := f.service.GenerateText(context.Background(), f.textRequest())
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}

	if len(f.recorder.recorded) != 1 {
		t.Fatalf("Expected 1 recorded interaction, got %d", len(f.recorder.recorded))
	}

	interaction := f.recorder.recorded[0]
	if interaction.ID.String() != resp.ID {
		t.Error("Interaction id must match the outward response id")
	}
	if interaction.Kind != models.InteractionText {
		t.Errorf("Unexpected kind %q", interaction.Kind)
	}
	if interaction.Prompt != "try to jailbreak" || interaction.Response != "generated text" {
		t.Error("Interaction must carry the full prompt and response")
	}

	// The admin-only log keeps what the participant never sees
	if interaction.Metadata["vendor"] != "openai" {
		t.Errorf("Expected vendor in metadata, got %v", interaction.Metadata["vendor"])
	}
	if interaction.Metadata["vendor_response_id"] != "chatcmpl-vendor-id" {
		t.Error("Expected vendor response id in metadata")
	}
}

func TestGenerateText_PersistenceFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t, []string{"text"})
	f.recorder.err = errors.New("queue full")

	resp, err := f.service.GenerateText(context.Background(), f.textRequest())
	if err != nil {
		t.Fatalf("Expected success despite recording failure, got %v", err)
	}
	if resp.Content != "generated text" {
		t.Errorf("Unexpected content %q", resp.Content)
	}
}

func TestGenerateText_ProviderErrorIsNotRecorded(t *testing.T) {
	f := newFixture(t, []string{"text"})
	f.provider.err = &providers.ProviderError{Vendor: "openai", StatusCode: 500, Message: "boom"}

	if _, err := f.service.GenerateText(context.Background(), f.textRequest()); err == nil {
		t.Fatal("Expected provider error to propagate")
	}

	if f.provider.calls != 1 {
		t.Errorf("Expected exactly 1 vendor call, got %d", f.provider.calls)
	}
	if len(f.recorder.recorded) != 0 {
		t.Error("Failed generations must not be recorded")
	}
}

func TestGenerateText_UnassignedModelIsRejected(t *testing.T) {
	f := newFixture(t, []string{"text"})

	// Active and configured, but not assigned to this exercise
	other := &models.ModelConfig{ID: uuid.New(), Name: "Claude", Provider: "anthropic", IsActive: true}
	f.service.models.(*fakeModelStore).models[other.ID] = other

	req := f.textRequest()
	req.ModelID = other.ID

	if _, err := f.service.GenerateText(context.Background(), req); !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("Expected ErrNotAssigned, got %v", err)
	}
	if f.provider.calls != 0 {
		t.Error("No vendor call may happen for an unassigned model")
	}
}

func TestGenerateText_InactiveModelIsRejected(t *testing.T) {
	f := newFixture(t, []string{"text"})
	f.model.IsActive = false

	if _, err := f.service.GenerateText(context.Background(), f.textRequest()); !errors.Is(err, ErrModelInactive) {
		t.Fatalf("Expected ErrModelInactive, got %v", err)
	}
}

func TestGenerateText_ValidatesInput(t *testing.T) {
	f := newFixture(t, []string{"text"})

	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"missing exercise", func(r *Request) { r.ExerciseID = uuid.Nil }, "exercise_id"},
		{"missing model", func(r *Request) { r.ModelID = uuid.Nil }, "model_id"},
		{"blank prompt", func(r *Request) { r.Prompt = "   " }, "prompt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.textRequest()
			tt.mutate(&req)

			_, err := f.service.GenerateText(context.Background(), req)

			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if valErr.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, valErr.Field)
			}
		})
	}
}

func TestGenerateText_TemperaturePrecedence(t *testing.T) {
	override := 0.2
	requested := 0.9

	tests := []struct {
		name      string
		requested *float64
		override  *float64
		want      *float64
	}{
		{"request wins over override", &requested, &override, &requested},
		{"override applies when request is silent", nil, &override, &override},
		{"nothing set defers to adapter", nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, []string{"text"})
			f.service.blind = blind.NewEngine(&fakeAssignments{
				byModel: map[uuid.UUID]*models.AssignedModel{
					f.model.ID: {
						ExerciseModelAssignment: models.ExerciseModelAssignment{
							ModelID:             f.model.ID,
							BlindName:           "Alpha",
							TemperatureOverride: tt.override,
						},
						IsActive: true,
					},
				},
			}, nil)

			req := f.textRequest()
			req.Temperature = tt.requested

			if _, err := f.service.GenerateText(context.Background(), req); err != nil {
				t.Fatalf("GenerateText failed: %v", err)
			}

			got := f.provider.lastOpts.Temperature
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("Temperature pointer mismatch: got %v, want %v", got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("Expected temperature %v, got %v", *tt.want, *got)
			}
		})
	}
}

func TestGenerateImage_RequiresImageCapability(t *testing.T) {
	f := newFixture(t, []string{"text"})

	req := ImageRequest{ExerciseID: f.exerciseID, ModelID: f.model.ID, Prompt: "a fox"}
	_, err := f.service.GenerateImage(context.Background(), req)

	var capErr *providers.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("Expected CapabilityError, got %v", err)
	}

	// Even the error names the model only by its blind label
	if capErr.Vendor != "Alpha" {
		t.Errorf("Capability error must carry the blind label, got %q", capErr.Vendor)
	}
	if f.provider.calls != 0 {
		t.Error("No vendor call may happen without the capability")
	}
}

func TestGenerateImage_AdapterWithoutImageSupportIsRejected(t *testing.T) {
	// The model config claims the capability but the adapter cannot
	// generate images
	f := newFixture(t, []string{"text", "image"})
	f.service.providers = &fakeSource{provider: textOnlyProvider{}}

	req := ImageRequest{ExerciseID: f.exerciseID, ModelID: f.model.ID, Prompt: "a fox"}
	_, err := f.service.GenerateImage(context.Background(), req)

	var capErr *providers.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("Expected CapabilityError, got %v", err)
	}
	if capErr.Vendor != "Alpha" {
		t.Errorf("Capability error must carry the blind label, got %q", capErr.Vendor)
	}
}

func TestGenerateImage_Success(t *testing.T) {
	f := newFixture(t, []string{"text", "image"})

	req := ImageRequest{ExerciseID: f.exerciseID, ModelID: f.model.ID, Prompt: "a fox", Size: "1024x1024"}
	resp, err := f.service.GenerateImage(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateImage failed: %v", err)
	}

	if resp.ImageURL != "https://vendor.example.com/img.png" {
		t.Errorf("Unexpected image URL %q", resp.ImageURL)
	}
	if resp.Model != "Alpha" || resp.Provider != MaskedProvider {
		t.Error("Image responses are masked like text responses")
	}

	if len(f.recorder.recorded) != 1 || f.recorder.recorded[0].Kind != models.InteractionImage {
		t.Fatal("Expected one recorded image interaction")
	}
}

func TestGenerateImage_ArchiveFailureKeepsVendorURL(t *testing.T) {
	f := newFixture(t, []string{"image"})
	f.service.images = failingImageStore{}

	req := ImageRequest{ExerciseID: f.exerciseID, ModelID: f.model.ID, Prompt: "a fox"}
	resp, err := f.service.GenerateImage(context.Background(), req)
	if err != nil {
		t.Fatalf("Expected success despite archive failure, got %v", err)
	}

	if resp.ImageURL != "https://vendor.example.com/img.png" {
		t.Errorf("Unexpected image URL %q", resp.ImageURL)
	}
	if f.recorder.recorded[0].ImageRef != "https://vendor.example.com/img.png" {
		t.Error("Failed archival keeps the vendor URL as the reference")
	}
}
