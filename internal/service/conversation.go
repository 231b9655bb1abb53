package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"estate-assistant/internal/metrics"
	"estate-assistant/internal/model"
	"estate-assistant/internal/session"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ConversationOptions tunes prompt size and collaborator timeouts
type ConversationOptions struct {
	PromptWindow int
	CallTimeout  time.Duration
}

// ConversationService runs one turn at a time per user: it records the
// utterance, extracts filters, searches, and answers either with the fixed
// property templates or with generated text.
type ConversationService struct {
	extractor *FilterExtractor
	gateway   *PropertySearchGateway
	generator Generator
	history   *HistoryStore
	cache     *ResultCache
	convLog   ConversationLog
	locks     *session.KeyedMutex
	guard     callGuard
	window    int
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// NewConversationService wires a conversation service. convLog may be nil.
func NewConversationService(
	extractor *FilterExtractor,
	gateway *PropertySearchGateway,
	generator Generator,
	history *HistoryStore,
	cache *ResultCache,
	convLog ConversationLog,
	opts ConversationOptions,
	m *metrics.Metrics,
	log zerolog.Logger,
) *ConversationService {
	if generator == nil {
		generator = disabledGenerator{}
	}
	if opts.PromptWindow <= 0 {
		opts.PromptWindow = 5
	}
	return &ConversationService{
		extractor: extractor,
		gateway:   gateway,
		generator: generator,
		history:   history,
		cache:     cache,
		convLog:   convLog,
		locks:     session.NewKeyedMutex(),
		guard:     callGuard{timeout: opts.CallTimeout, metrics: m},
		window:    opts.PromptWindow,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// ProcessQuery answers one utterance. It never fails: when every path is
// unavailable the reply carries ApologyText. The turn runs to completion even
// if ctx is cancelled, so a dropped client cannot leave half-written state.
func (s *ConversationService) ProcessQuery(ctx context.Context, userID, text string) model.Reply {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)
	log := s.log.With().Str("user_id", userID).Logger()

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("failed to acquire session lock")
		s.metrics.ObserveTurn(metrics.OutcomeApology, time.Since(start))
		return model.Reply{Text: ApologyText, Properties: []model.PropertyRecord{}}
	}
	defer unlock()

	reply, outcome := s.process(ctx, log, userID, text)
	s.metrics.ObserveTurn(outcome, time.Since(start))
	log.Info().
		Str("outcome", outcome).
		Int("properties", len(reply.Properties)).
		Dur("took", time.Since(start)).
		Msg("turn processed")
	return reply
}

func (s *ConversationService) process(ctx context.Context, log zerolog.Logger, userID, text string) (model.Reply, string) {
	previous, err := s.loadHistory(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load history")
	}
	if err := s.appendTurn(ctx, userID, model.RoleUser, text); err != nil {
		log.Warn().Err(err).Msg("failed to record user turn")
	}

	filters, isFollowup := s.extractor.Extract(text)
	reply := model.Reply{
		Filters:    filters,
		IsFollowup: isFollowup,
		Properties: []model.PropertyRecord{},
	}

	outcome := ""
	searchFailed := false
	if !filters.IsEmpty() {
		result := s.gateway.Search(ctx, filters, userID, isFollowup)
		switch {
		case result.Found():
			reply.Text = FormatResults(result.Records)
			reply.Properties = result.Records
			reply.Strategy = string(result.Strategy)
			outcome = metrics.OutcomeResults
		case !result.AllFailed():
			reply.Text = FormatNoResults(filters)
			outcome = metrics.OutcomeNoResults
		default:
			searchFailed = true
		}
	}

	if reply.Text == "" {
		prompt := BuildPrompt(PromptInput{
			History:      previous,
			Query:        text,
			Filters:      filters,
			SearchFailed: searchFailed,
			Window:       s.window,
		})
		generated, err := s.generate(ctx, prompt)
		if err != nil {
			log.Error().Err(err).Msg("failed to generate reply")
			reply.Text = ApologyText
			outcome = metrics.OutcomeApology
		} else {
			reply.Text = generated
			outcome = metrics.OutcomeGenerated
		}
	}

	if err := s.appendTurn(ctx, userID, model.RoleAssistant, reply.Text); err != nil {
		log.Warn().Err(err).Msg("failed to record assistant turn")
	}
	s.saveLog(ctx, log, userID, text, reply)
	return reply, outcome
}

func (s *ConversationService) generate(ctx context.Context, prompt string) (string, error) {
	text, err := guarded(ctx, s.guard, metrics.CollaboratorGenerator, func(ctx context.Context) (string, error) {
		return s.generator.Generate(ctx, prompt)
	})
	if err == nil && text == "" {
		err = errors.New("generator returned no text")
	}
	return text, err
}

func (s *ConversationService) loadHistory(ctx context.Context, userID string) ([]model.Turn, error) {
	return guarded(ctx, s.guard, metrics.CollaboratorSession, func(ctx context.Context) ([]model.Turn, error) {
		return s.history.Get(ctx, userID)
	})
}

func (s *ConversationService) appendTurn(ctx context.Context, userID string, role model.Role, text string) error {
	turn := model.Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	return s.guard.do(ctx, metrics.CollaboratorSession, func(ctx context.Context) error {
		_, err := s.history.Append(ctx, userID, turn)
		return err
	})
}

func (s *ConversationService) saveLog(ctx context.Context, log zerolog.Logger, userID, text string, reply model.Reply) {
	if s.convLog == nil {
		return
	}
	entry := model.ConversationLogEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Transcript:  text,
		AIResponse:  reply.Text,
		PropertyIDs: model.PropertyIDs(reply.Properties),
		CreatedAt:   s.now().UTC(),
	}
	err := s.guard.do(ctx, metrics.CollaboratorLog, func(ctx context.Context) error {
		return s.convLog.SaveConversation(ctx, entry)
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to save conversation log")
	}
}

// History returns the user's turns, oldest first
func (s *ConversationService) History(ctx context.Context, userID string) ([]model.Turn, error) {
	turns, err := s.loadHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if turns == nil {
		turns = []model.Turn{}
	}
	return turns, nil
}

// ErrNoHistory is returned when summarizing a user with no turns
var ErrNoHistory = errors.New("no conversation history")

// Summary asks the generator to summarize the user's conversation so far
func (s *ConversationService) Summary(ctx context.Context, userID string) (string, error) {
	turns, err := s.loadHistory(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}
	if len(turns) == 0 {
		return "", ErrNoHistory
	}

	summary, err := s.generate(ctx, BuildSummaryPrompt(turns))
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}
	return summary, nil
}

// EndSession forgets the user's history and cached results
func (s *ConversationService) EndSession(ctx context.Context, userID string) error {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to acquire session lock: %w", err)
	}
	defer unlock()

	err = s.guard.do(ctx, metrics.CollaboratorSession, func(ctx context.Context) error {
		return errors.Join(s.history.Clear(ctx, userID), s.cache.Clear(ctx, userID))
	})
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	s.log.Info().Str("user_id", userID).Msg("session ended")
	return nil
}
