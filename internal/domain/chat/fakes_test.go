package chat

import (
	"context"
	"sync"

	"bastion-server/internal/domain/files"
	"bastion-server/internal/domain/model"
	"bastion-server/internal/utils/platformerrors"
)

// memoryRepository is an in-memory ChatRepository.
type memoryRepository struct {
	mu       sync.Mutex
	chats    map[string]Chat
	messages map[string][]Message
	turns    []Turn
	saveErr  error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{chats: map[string]Chat{}, messages: map[string][]Message{}}
}

func (r *memoryRepository) seed(chat Chat, messages ...Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats[chat.ID] = chat
	r.messages[chat.ID] = append([]Message(nil), messages...)
}

func (r *memoryRepository) FindByID(ctx context.Context, chatID string) (*Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "chat not found", nil, "")
	}
	return &chat, nil
}

func (r *memoryRepository) ListMessages(_ context.Context, chatID string) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages[chatID]...), nil
}

func (r *memoryRepository) SaveTurn(_ context.Context, turn Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if turn.CreateChat {
		if _, ok := r.chats[turn.Chat.ID]; !ok {
			r.chats[turn.Chat.ID] = turn.Chat
		}
	}
	history := r.messages[turn.Chat.ID]
	if turn.RegenerateFromID != "" {
		for i, msg := range history {
			if msg.ID == turn.RegenerateFromID {
				history = history[:i]
				break
			}
		}
	}
	if turn.UserMessage != nil {
		history = append(history, *turn.UserMessage)
	}
	r.messages[turn.Chat.ID] = append(history, turn.Assistant)
	r.turns = append(r.turns, turn)
	return nil
}

func (r *memoryRepository) savedTurns() []Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Turn(nil), r.turns...)
}

type MockBackend struct {
	mu             sync.Mutex
	streamCalls    []StepRequest
	StreamStepFunc func(ctx context.Context, req StepRequest, onDelta func(StreamDelta) error) (*StepResult, error)
	CompleteFunc   func(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

func (m *MockBackend) StreamStep(ctx context.Context, req StepRequest, onDelta func(StreamDelta) error) (*StepResult, error) {
	m.mu.Lock()
	m.streamCalls = append(m.streamCalls, req)
	m.mu.Unlock()
	if m.StreamStepFunc != nil {
		return m.StreamStepFunc(ctx, req, onDelta)
	}
	return &StepResult{FinishReason: finishReasonStop}, nil
}

func (m *MockBackend) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResult{}, nil
}

func (m *MockBackend) calls() []StepRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StepRequest(nil), m.streamCalls...)
}

type MockImageGenerator struct {
	mu                sync.Mutex
	prompts           []string
	GenerateImageFunc func(ctx context.Context, m model.Model, prompt, size string) (*GeneratedImage, error)
}

func (m *MockImageGenerator) GenerateImage(ctx context.Context, mdl model.Model, prompt, size string) (*GeneratedImage, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.GenerateImageFunc != nil {
		return m.GenerateImageFunc(ctx, mdl, prompt, size)
	}
	return &GeneratedImage{Data: []byte("png"), MediaType: "image/png"}, nil
}

func (m *MockImageGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

type MockTitleGenerator struct {
	GenerateTitleFunc func(ctx context.Context, firstMessage string, m model.Model) (string, error)
}

func (m *MockTitleGenerator) GenerateTitle(ctx context.Context, firstMessage string, mdl model.Model) (string, error) {
	if m.GenerateTitleFunc != nil {
		return m.GenerateTitleFunc(ctx, firstMessage, mdl)
	}
	return "", nil
}

type MockRelatedQuestions struct {
	GenerateFunc func(ctx context.Context, m model.Model, messages []ModelMessage) (*RelatedQuestions, error)
}

func (m *MockRelatedQuestions) Generate(ctx context.Context, mdl model.Model, messages []ModelMessage) (*RelatedQuestions, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, mdl, messages)
	}
	return nil, context.Canceled
}

type MockFileStore struct {
	enabled   bool
	ReadFunc  func(ctx context.Context, input files.ReadInput) (*files.ReadResult, error)
	WriteFunc func(ctx context.Context, input files.WriteInput) (*files.WriteResult, error)
}

func (m *MockFileStore) Enabled() bool { return m.enabled }

func (m *MockFileStore) Read(ctx context.Context, input files.ReadInput) (*files.ReadResult, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, input)
	}
	return &files.ReadResult{State: files.StateOK}, nil
}

func (m *MockFileStore) Write(ctx context.Context, input files.WriteInput) (*files.WriteResult, error) {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, input)
	}
	key := input.UserID + "/chats/" + input.ChatID + "/1-" + input.Filename
	return &files.WriteResult{State: files.StateOK, Key: key, URL: "https://files.example.com/" + key, MediaType: input.MediaType}, nil
}

// recordingWriter collects every part written to the client.
type recordingWriter struct {
	mu    sync.Mutex
	parts []StreamPart
}

func (w *recordingWriter) Write(part StreamPart) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.parts = append(w.parts, part)
	return nil
}

func (w *recordingWriter) types() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	types := make([]string, len(w.parts))
	for i, part := range w.parts {
		types[i] = part.Type
	}
	return types
}

func (w *recordingWriter) ofType(partType string) []StreamPart {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []StreamPart
	for _, part := range w.parts {
		if part.Type == partType {
			out = append(out, part)
		}
	}
	return out
}

func (w *recordingWriter) text() string {
	var text string
	for _, part := range w.ofType(StreamPartTextDelta) {
		text += part.Delta
	}
	return text
}

var (
	testTextModel  = model.Model{ID: "gpt-5-mini", Name: "GPT-5 mini", Provider: "OpenAI", ProviderID: model.ProviderOpenAI, ContextWindow: 128000, Enabled: true, Default: true}
	testImageModel = model.Model{ID: "gpt-image-1", Name: "GPT Image", Provider: "OpenAI", ProviderID: model.ProviderOpenAI, Image: true, Enabled: true}
	testSmallModel = model.Model{ID: "tiny", Name: "Tiny", Provider: "OpenAI", ProviderID: model.ProviderOpenAI, ContextWindow: 40, Enabled: true}
)

type testDeps struct {
	repo    *memoryRepository
	backend *MockBackend
	images  *MockImageGenerator
	files   *MockFileStore
	titles  *MockTitleGenerator
	related *MockRelatedQuestions
}

func newTestService() (*Service, *testDeps) {
	deps := &testDeps{
		repo:    newMemoryRepository(),
		backend: &MockBackend{},
		images:  &MockImageGenerator{},
		files:   &MockFileStore{},
		titles:  &MockTitleGenerator{},
		related: &MockRelatedQuestions{},
	}
	catalog := model.NewCatalogService([]model.Model{testTextModel, testImageModel, testSmallModel}, nil)
	svc := NewService(deps.repo, catalog, deps.backend, deps.images, deps.files, ServiceConfig{})
	svc.titles = deps.titles
	svc.related = deps.related
	return svc, deps
}

func userMessage(id, text string) *Message {
	return &Message{ID: id, Role: RoleUser, Parts: []Part{{Type: PartTypeText, Text: text}}}
}

func textMessage(id string, role Role, text string) Message {
	return Message{ID: id, Role: role, Parts: []Part{{Type: PartTypeText, Text: text}}}
}

func streamText(chunks ...string) func(ctx context.Context, req StepRequest, onDelta func(StreamDelta) error) (*StepResult, error) {
	return func(ctx context.Context, req StepRequest, onDelta func(StreamDelta) error) (*StepResult, error) {
		full := ""
		for _, chunk := range chunks {
			if err := onDelta(StreamDelta{Text: chunk}); err != nil {
				return nil, err
			}
			full += chunk
		}
		return &StepResult{Text: full, FinishReason: finishReasonStop, Usage: &Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil
	}
}

func int64Ptr(v int64) *int64 { return &v }

func stringPtr(v string) *string { return &v }
