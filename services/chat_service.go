package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"backend/config"
	"backend/models"
	"backend/utils"

	"go.uber.org/zap"
)

// ChatEvent is one frame of a turn's output stream: zero or more text
// fragments, then exactly one terminal frame (done or error).
type ChatEvent struct {
	Text      string        `json:"text,omitempty"`
	Done      bool          `json:"done,omitempty"`
	MessageID uint          `json:"message_id,omitempty"`
	Changes   []models.Edit `json:"changes,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// TokenUsage is the generation backend's deferred usage report.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GenerationRequest is everything the backend needs for one turn.
type GenerationRequest struct {
	Meal     *models.Meal
	History  []models.ChatMessage
	UserText string
}

// Generator streams one response. The contract: fragments arrive in order
// and the channel closes on exhaustion; at most one error is sent before
// the error channel closes; the usage channel resolves (or closes empty)
// only after the fragment channel has closed.
type Generator interface {
	StreamChat(ctx context.Context, req GenerationRequest) (<-chan string, <-chan TokenUsage, <-chan error)
}

// MessageStore persists chat messages. GORM-backed in production; a narrow
// interface so a turn can run against an in-memory store in tests.
type MessageStore interface {
	SaveMessage(m *models.ChatMessage) error
	History(mealID uint) ([]models.ChatMessage, error)
}

// UsageRecorder persists per-turn token accounting.
type UsageRecorder interface {
	RecordUsage(userID, mealID uint, u TokenUsage) error
}

type turnState string

const (
	turnAwaitingGeneration turnState = "awaiting_generation"
	turnStreaming          turnState = "streaming"
	turnFinalizing         turnState = "finalizing"
	turnComplete           turnState = "complete"
	turnFailed             turnState = "failed"
)

// ChatService runs one meal-refinement turn end to end: persist the user
// message, stream the generated response through to the caller, then
// extract directives, persist the assistant message, and account usage.
type ChatService struct {
	gen   Generator
	store MessageStore
	usage UsageRecorder
	log   *zap.Logger
}

func NewChatService(gen Generator, store MessageStore, usage UsageRecorder) *ChatService {
	logger := config.Log
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{gen: gen, store: store, usage: usage, log: logger}
}

// NewDefaultChatService wires the production collaborators.
func NewDefaultChatService() *ChatService {
	return NewChatService(NewLLMService(), GormMessageStore{}, NewUsageService())
}

// RefineMeal starts one turn. The user message is persisted before any
// generation is requested; on error nothing has been streamed. The returned
// channel yields the turn's events and closes after the terminal one.
//
// ctx governs only event forwarding: if the caller goes away the turn keeps
// draining the generator and still finalizes, so persisted history matches
// what the model actually produced.
func (s *ChatService) RefineMeal(ctx context.Context, meal *models.Meal, userText string) (<-chan ChatEvent, error) {
	// prior history only; the new user message travels separately
	history, err := s.store.History(meal.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	userMsg := &models.ChatMessage{
		MealID:  meal.ID,
		Role:    models.ChatRoleUser,
		Content: userText,
	}
	if err := s.store.SaveMessage(userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	events := make(chan ChatEvent, 16)
	go s.runTurn(ctx, meal, history, userText, events)
	return events, nil
}

func (s *ChatService) runTurn(ctx context.Context, meal *models.Meal, history []models.ChatMessage, userText string, events chan<- ChatEvent) {
	defer close(events)

	state := turnAwaitingGeneration
	s.logState(state, meal.ID)

	// the generator gets a detached context: the turn outlives a
	// disconnected caller (see RefineMeal doc)
	fragments, usage, errs := s.gen.StreamChat(context.Background(), GenerationRequest{
		Meal:     meal,
		History:  history,
		UserText: userText,
	})

	state = turnStreaming
	s.logState(state, meal.ID)

	var full strings.Builder
	forwarding := true
	for frag := range fragments {
		full.WriteString(frag)
		if !forwarding {
			continue
		}
		select {
		case events <- ChatEvent{Text: frag}:
		case <-ctx.Done():
			forwarding = false
		}
	}

	// the generator sends any mid-stream failure before closing errs
	if err := <-errs; err != nil {
		state = turnFailed
		s.logState(state, meal.ID)
		s.log.Warn("generation failed mid-stream", zap.Uint("meal_id", meal.ID), zap.Error(err))
		if forwarding {
			events <- ChatEvent{Error: err.Error()}
		}
		return
	}

	state = turnFinalizing
	s.logState(state, meal.ID)

	text := full.String()
	edits := utils.ExtractEdits(text)
	display := utils.StripDirectives(text)

	msg := &models.ChatMessage{
		MealID:  meal.ID,
		Role:    models.ChatRoleAssistant,
		Content: display,
	}
	if len(edits) > 0 {
		if raw, err := json.Marshal(edits); err == nil {
			msg.AppliedChanges = raw
		}
	}
	if err := s.store.SaveMessage(msg); err != nil {
		state = turnFailed
		s.logState(state, meal.ID)
		s.log.Error("persist assistant message", zap.Uint("meal_id", meal.ID), zap.Error(err))
		if forwarding {
			events <- ChatEvent{Error: "failed to save assistant message"}
		}
		return
	}

	if forwarding {
		events <- ChatEvent{Done: true, MessageID: msg.ID, Changes: edits}
	}

	// usage accounting runs strictly after the assistant message is saved;
	// its failure never affects the turn outcome
	if u, ok := <-usage; ok {
		if err := s.usage.RecordUsage(meal.UserID, meal.ID, u); err != nil {
			s.log.Warn("record usage", zap.Uint("meal_id", meal.ID), zap.Error(err))
		}
	}

	state = turnComplete
	s.logState(state, meal.ID)
}

func (s *ChatService) logState(st turnState, mealID uint) {
	s.log.Debug("chat turn", zap.String("state", string(st)), zap.Uint("meal_id", mealID))
}

// GormMessageStore is the production MessageStore.
type GormMessageStore struct{}

func (GormMessageStore) SaveMessage(m *models.ChatMessage) error {
	return config.DB.Create(m).Error
}

func (GormMessageStore) History(mealID uint) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := config.DB.
		Where("meal_id = ?", mealID).
		Order("created_at ASC").
		Find(&msgs).Error
	return msgs, err
}
