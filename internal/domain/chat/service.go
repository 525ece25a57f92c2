package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bastion-server/internal/domain/model"
	"bastion-server/internal/infrastructure/logger"
	"bastion-server/internal/infrastructure/metrics"
	"bastion-server/internal/infrastructure/observability"
	"bastion-server/internal/utils/idgen"
	"bastion-server/internal/utils/platformerrors"
	"bastion-server/internal/utils/stringutils"
)

// ServiceConfig selects the models used for background tasks. Empty values fall back to the
// request model, or to the catalog default when the request model only generates images.
type ServiceConfig struct {
	TitleModel            string
	RelatedQuestionsModel string
}

// StreamRequest is one chat turn as received from the client.
type StreamRequest struct {
	ChatID     string
	UserID     string
	Model      model.Selector
	MessageID  string
	Trigger    Trigger
	Message    *Message
	SearchMode SearchMode
	IsNewChat  bool
}

type Service struct {
	repo       ChatRepository
	catalog    *model.CatalogService
	images     ImageGenerator
	titles     TitleGenerator
	related    RelatedQuestionsGenerator
	files      FileStore
	researcher *Researcher
	cfg        ServiceConfig
	log        zerolog.Logger
}

func NewService(
	repo ChatRepository,
	catalog *model.CatalogService,
	backend ModelBackend,
	images ImageGenerator,
	fileStore FileStore,
	cfg ServiceConfig,
) *Service {
	log := logger.Component("chat")
	return &Service{
		repo:       repo,
		catalog:    catalog,
		images:     images,
		titles:     NewCompletionTitleGenerator(backend),
		related:    NewCompletionRelatedQuestions(backend),
		files:      fileStore,
		researcher: NewResearcher(backend, log),
		cfg:        cfg,
		log:        log,
	}
}

// turn is the state of one request shared by the branches and the finalizer.
type turn struct {
	req            StreamRequest
	model          model.Model
	chat           *Chat
	userMessage    *Message
	regenerateFrom string
	prepared       []ModelMessage
	stream         *assistantStream

	title    *TitleTask
	result   *ResearchResult
	finalize sync.Once
}

func (t *turn) isNewChat() bool {
	return t.chat == nil
}

// CreateChatStreamResponse streams the assistant response for one turn to writer. Errors are
// returned only while nothing has been written; once streaming starts failures are reported as an
// error part and the turn is still persisted.
func (s *Service) CreateChatStreamResponse(ctx context.Context, req StreamRequest, writer StreamWriter) error {
	t, err := s.prepareTurn(ctx, req)
	if err != nil {
		return err
	}

	ctx, span := observability.StartSpan(ctx, "chat.stream", trace.WithAttributes(
		attribute.String("chat.id", req.ChatID),
		attribute.String("chat.trigger", string(req.Trigger)),
		attribute.String("model.id", t.model.ID),
		attribute.String("model.provider", t.model.ProviderID),
		attribute.Bool("chat.new", t.isNewChat()),
	))
	defer span.End()

	metrics.IncrementActiveStreams(t.model.ID)
	defer metrics.DecrementActiveStreams(t.model.ID)

	t.stream = newAssistantStream(writer, idgen.NewMessageID())
	defer s.finalizeTurn(ctx, t)

	metadata := map[string]any{
		"searchMode": string(t.req.SearchMode),
		"modelId":    t.model.ID,
	}
	if traceID := observability.GetTraceID(ctx); traceID != "" {
		metadata["traceId"] = traceID
	}
	if err := t.stream.Start(metadata); err != nil {
		s.log.Debug().Err(err).Str("chat_id", req.ChatID).Msg("client went away before the stream started")
		return nil
	}

	branch, outcome := "research", "success"
	if t.model.Image {
		branch = "image"
		outcome = s.runImage(ctx, t)
	} else if err := s.runResearch(ctx, t); err != nil {
		outcome = "error"
		if ctx.Err() != nil {
			outcome = "cancelled"
		}
		observability.RecordError(ctx, err)
	}
	metrics.RecordChatTurn(branch, outcome)

	if ctx.Err() == nil {
		_ = t.stream.Finish(finishReasonStop)
	}
	return nil
}

// prepareTurn runs every check that must fail before streaming and builds the model input.
func (s *Service) prepareTurn(ctx context.Context, req StreamRequest) (*turn, error) {
	req.ChatID = strings.TrimSpace(req.ChatID)
	if req.ChatID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "chatId is required", nil, "e8279b14-d2b5-45c2-a33e-1cc6ec2894c9")
	}
	if req.Trigger == "" {
		req.Trigger = TriggerSubmitMessage
	}
	req.SearchMode = req.SearchMode.Normalize()

	t := &turn{req: req}
	if !req.IsNewChat {
		stored, err := s.repo.FindByID(ctx, req.ChatID)
		switch {
		case err == nil:
			if stored.UserID != req.UserID {
				return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "chat belongs to another user", nil, "2fd82f1b-1f5c-4884-9565-dc9eb5a927bd", map[string]any{"chat_id": req.ChatID})
			}
			t.chat = stored
		case platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound):
		default:
			return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load chat")
		}
	}

	m, err := s.catalog.Resolve(ctx, req.Model)
	if err != nil {
		return nil, err
	}
	t.model = m

	messages, err := s.collectMessages(ctx, t)
	if err != nil {
		return nil, err
	}

	prepared := ConvertToModelMessages(FilterReasoningParts(messages))
	if ShouldTruncate(prepared, m) {
		before := len(prepared)
		prepared = TruncateMessages(prepared, MaxAllowedTokens(m), m.ID)
		metrics.RecordTruncation(m.ID)
		s.log.Info().Str("chat_id", req.ChatID).Str("model", m.Key()).Int("before", before).Int("after", len(prepared)).Msg("truncated chat history to fit the context window")
	}
	t.prepared = prepared
	return t, nil
}

// collectMessages returns the UI messages the model sees and records what the finalizer must
// persist for the trigger.
func (s *Service) collectMessages(ctx context.Context, t *turn) ([]Message, error) {
	var history []Message
	if t.chat != nil {
		stored, err := s.repo.ListMessages(ctx, t.chat.ID)
		if err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load chat messages")
		}
		history = stored
	}

	switch t.req.Trigger {
	case TriggerSubmitMessage:
		if t.req.Message == nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "message is required", nil, "3cc6aaf2-3ccd-4e55-a281-6058c30e76b3")
		}
		userMessage := normalizeUserMessage(*t.req.Message)
		t.userMessage = &userMessage
		return append(history, userMessage), nil

	case TriggerRegenerateMessage:
		if t.req.MessageID == "" {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "messageId is required to regenerate", nil, "c03b41f6-c0f3-401a-afc7-2e680a9f1265")
		}
		idx := -1
		for i, msg := range history {
			if msg.ID == t.req.MessageID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "message to regenerate not found", nil, "b0ae7bb9-929b-44d8-8a30-298c56650e60", map[string]any{"message_id": t.req.MessageID})
		}
		t.regenerateFrom = t.req.MessageID

		kept := history[:idx]
		if target := history[idx]; target.Role == RoleUser {
			// Regenerating from a user message replays it, optionally edited by the client.
			userMessage := target
			if t.req.Message != nil && t.req.Message.Role == RoleUser {
				userMessage = normalizeUserMessage(*t.req.Message)
				userMessage.ID = target.ID
			}
			t.userMessage = &userMessage
			return append(kept, userMessage), nil
		}
		return kept, nil

	default:
		return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "unsupported trigger", nil, "3cd8aced-239b-45e0-a9ab-d05292174364", map[string]any{"trigger": string(t.req.Trigger)})
	}
}

func normalizeUserMessage(msg Message) Message {
	normalized := msg
	normalized.Role = RoleUser
	if normalized.ID == "" {
		normalized.ID = idgen.NewMessageID()
	}
	normalized.Parts = make([]Part, len(msg.Parts))
	for i, part := range msg.Parts {
		if part.Type == PartTypeText {
			part.Text = stringutils.NormalizeUserText(part.Text)
		}
		normalized.Parts[i] = part
	}
	return normalized
}

// startTitle begins title generation for a chat that does not exist yet.
func (s *Service) startTitle(ctx context.Context, t *turn) {
	if !t.isNewChat() || t.title != nil {
		return
	}
	first := lastUserText(t.prepared)
	if first == "" {
		return
	}
	t.title = StartTitleTask(ctx, s.titles, first, s.backgroundModel(ctx, s.cfg.TitleModel, t.model), s.log)
}

// backgroundModel resolves a configured selector, falling back to the request model.
func (s *Service) backgroundModel(ctx context.Context, configured string, requested model.Model) model.Model {
	if configured != "" {
		if sel, err := model.ParseSelector(configured); err == nil {
			if m, err := s.catalog.Resolve(ctx, sel); err == nil && !m.Image {
				return m
			}
		}
	}
	if !requested.Image {
		return requested
	}
	if m, ok := s.catalog.Default(); ok {
		return m
	}
	return requested
}

func (s *Service) runResearch(ctx context.Context, t *turn) error {
	s.startTitle(ctx, t)

	var tools toolSet
	if s.files != nil && s.files.Enabled() && t.req.UserID != "" {
		tools = newToolSet(NewFileTools(s.files))
	}

	result, err := s.researcher.run(ctx, researchRun{
		model:       t.model,
		messages:    t.prepared,
		searchMode:  t.req.SearchMode,
		tools:       tools,
		toolContext: ToolContext{UserID: t.req.UserID, ChatID: t.req.ChatID},
		stream:      t.stream,
	})
	t.result = result
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error().Err(err).Str("chat_id", t.req.ChatID).Str("model", t.model.Key()).Msg("chat response failed")
			_ = t.stream.Error(errorText(err))
		}
		return err
	}

	s.emitRelatedQuestions(ctx, t, result)
	return nil
}

// emitRelatedQuestions runs after every primary part has been written.
func (s *Service) emitRelatedQuestions(ctx context.Context, t *turn, result *ResearchResult) {
	if s.related == nil || len(result.ResponseMessages) == 0 || ctx.Err() != nil {
		return
	}

	input := make([]ModelMessage, 0, len(result.ResponseMessages)+1)
	for i := len(t.prepared) - 1; i >= 0; i-- {
		if t.prepared[i].Role == RoleUser {
			input = append(input, t.prepared[i])
			break
		}
	}
	input = append(input, result.ResponseMessages...)

	questions, err := s.related.Generate(ctx, s.backgroundModel(ctx, s.cfg.RelatedQuestionsModel, t.model), input)
	if err != nil {
		s.log.Warn().Err(err).Str("chat_id", t.req.ChatID).Msg("related questions generation failed")
		metrics.RecordBackgroundFailure("related_questions")
		return
	}
	if err := t.stream.Data(RelatedQuestionsPartType, questions); err != nil {
		s.log.Debug().Err(err).Str("chat_id", t.req.ChatID).Msg("failed to write related questions")
	}
}

// errorText is the message shown to the user for a failed turn.
func errorText(err error) string {
	if pe := platformerrors.GetPlatformError(err); pe != nil {
		return pe.Message
	}
	return err.Error()
}

// GetChat returns a chat and its messages. Private chats are only visible to their owner.
func (s *Service) GetChat(ctx context.Context, chatID, userID string) (*Chat, error) {
	chat, err := s.repo.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.Visibility != VisibilityPublic && chat.UserID != userID {
		return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "chat is private", nil, "d7804f99-60ec-4bef-8f93-4cd7366e201f", map[string]any{"chat_id": chatID})
	}
	messages, err := s.repo.ListMessages(ctx, chatID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load chat messages")
	}
	chat.Messages = messages
	return chat, nil
}
