package services

import (
	"context"
	"errors"
	"testing"

	"backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator plays back a scripted fragment stream.
type fakeGenerator struct {
	fragments []string
	err       error // delivered after the fragments, as a mid-stream failure
	usage     TokenUsage

	// observed when StreamChat is called
	sawHistory  int
	sawUserText string
	storeAtCall int // messages persisted before generation started
	store       *fakeStore
}

func (g *fakeGenerator) StreamChat(ctx context.Context, req GenerationRequest) (<-chan string, <-chan TokenUsage, <-chan error) {
	g.sawHistory = len(req.History)
	g.sawUserText = req.UserText
	if g.store != nil {
		g.storeAtCall = len(g.store.messages)
	}

	frags := make(chan string, len(g.fragments))
	usage := make(chan TokenUsage, 1)
	errs := make(chan error, 1)
	go func() {
		for _, f := range g.fragments {
			frags <- f
		}
		close(frags)
		if g.err != nil {
			errs <- g.err
		}
		close(errs)
		if g.err == nil {
			usage <- g.usage
		}
		close(usage)
	}()
	return frags, usage, errs
}

// fakeStore is an in-memory MessageStore that records operation order.
type fakeStore struct {
	messages []*models.ChatMessage
	ops      *[]string
	saveErr  error
	nextID   uint
}

func (s *fakeStore) SaveMessage(m *models.ChatMessage) error {
	if s.saveErr != nil && m.Role == models.ChatRoleAssistant {
		return s.saveErr
	}
	s.nextID++
	m.ID = s.nextID
	s.messages = append(s.messages, m)
	if s.ops != nil {
		*s.ops = append(*s.ops, "save:"+string(m.Role))
	}
	return nil
}

func (s *fakeStore) History(mealID uint) ([]models.ChatMessage, error) {
	out := make([]models.ChatMessage, 0, len(s.messages))
	for _, m := range s.messages {
		if m.MealID == mealID {
			out = append(out, *m)
		}
	}
	return out, nil
}

type fakeUsageRecorder struct {
	records []TokenUsage
	ops     *[]string
	err     error
}

func (r *fakeUsageRecorder) RecordUsage(userID, mealID uint, u TokenUsage) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, u)
	if r.ops != nil {
		*r.ops = append(*r.ops, "usage")
	}
	return nil
}

func collect(events <-chan ChatEvent) []ChatEvent {
	var out []ChatEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func testMeal() *models.Meal {
	m := &models.Meal{UserID: 7, Type: models.MealTypeLunch}
	m.ID = 42
	return m
}

func TestRefineMealSuccess(t *testing.T) {
	var ops []string
	store := &fakeStore{ops: &ops}
	gen := &fakeGenerator{
		fragments: []string{
			"ご飯を追加",
			"します。[CHANGE: {\"action\": \"add\", \"food\": ",
			"{\"name\": \"ご飯\", \"portion\": \"medium\", \"calories\": 250}}]",
		},
		usage: TokenUsage{PromptTokens: 120, CompletionTokens: 40, TotalTokens: 160},
		store: store,
	}
	usage := &fakeUsageRecorder{ops: &ops}
	svc := NewChatService(gen, store, usage)

	events, err := svc.RefineMeal(context.Background(), testMeal(), "ご飯も食べました")
	require.NoError(t, err)
	got := collect(events)

	// three text events in order, then one terminal done
	require.Len(t, got, 4)
	assert.Equal(t, "ご飯を追加", got[0].Text)
	assert.Equal(t, "します。[CHANGE: {\"action\": \"add\", \"food\": ", got[1].Text)
	terminal := got[3]
	assert.True(t, terminal.Done)
	require.Len(t, terminal.Changes, 1)
	assert.Equal(t, models.EditActionAdd, terminal.Changes[0].Action)
	assert.Equal(t, "ご飯", *terminal.Changes[0].Food.Name)

	// user message persisted before generation started
	assert.Equal(t, 1, gen.storeAtCall)
	assert.Zero(t, gen.sawHistory) // fresh conversation
	assert.Equal(t, "ご飯も食べました", gen.sawUserText)

	// assistant message: filtered display text + applied changes
	require.Len(t, store.messages, 2)
	asst := store.messages[1]
	assert.Equal(t, models.ChatRoleAssistant, asst.Role)
	assert.Equal(t, "ご飯を追加します。", asst.Content)
	assert.NotEmpty(t, asst.AppliedChanges)
	assert.Equal(t, asst.ID, terminal.MessageID)

	// usage recorded, strictly after the assistant message
	require.Len(t, usage.records, 1)
	assert.Equal(t, 160, usage.records[0].TotalTokens)
	assert.Equal(t, []string{"save:user", "save:assistant", "usage"}, ops)
}

func TestRefineMealMidStreamFailure(t *testing.T) {
	store := &fakeStore{}
	gen := &fakeGenerator{
		fragments: []string{"a", "b", "c"},
		err:       errors.New("connection reset"),
	}
	svc := NewChatService(gen, store, &fakeUsageRecorder{})

	events, err := svc.RefineMeal(context.Background(), testMeal(), "hi")
	require.NoError(t, err)
	got := collect(events)

	// exactly the three fragments, then one terminal error
	require.Len(t, got, 4)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].Text, got[1].Text, got[2].Text})
	assert.Equal(t, "connection reset", got[3].Error)
	assert.False(t, got[3].Done)

	// only the user message survives a failed turn
	require.Len(t, store.messages, 1)
	assert.Equal(t, models.ChatRoleUser, store.messages[0].Role)
}

func TestRefineMealNoDirectives(t *testing.T) {
	store := &fakeStore{}
	gen := &fakeGenerator{fragments: []string{"いい感じですね。"}}
	svc := NewChatService(gen, store, &fakeUsageRecorder{})

	events, err := svc.RefineMeal(context.Background(), testMeal(), "どう思う？")
	require.NoError(t, err)
	got := collect(events)

	terminal := got[len(got)-1]
	assert.True(t, terminal.Done)
	assert.Empty(t, terminal.Changes)

	require.Len(t, store.messages, 2)
	assert.Empty(t, store.messages[1].AppliedChanges)
}

func TestRefineMealUsageFailureDoesNotFailTurn(t *testing.T) {
	store := &fakeStore{}
	gen := &fakeGenerator{fragments: []string{"ok"}, usage: TokenUsage{TotalTokens: 5}}
	svc := NewChatService(gen, store, &fakeUsageRecorder{err: errors.New("usage db down")})

	events, err := svc.RefineMeal(context.Background(), testMeal(), "hi")
	require.NoError(t, err)
	got := collect(events)

	assert.True(t, got[len(got)-1].Done)
	assert.Len(t, store.messages, 2)
}

func TestRefineMealAssistantPersistFailure(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("db down")}
	gen := &fakeGenerator{fragments: []string{"追加しました。"}}
	svc := NewChatService(gen, store, &fakeUsageRecorder{})

	events, err := svc.RefineMeal(context.Background(), testMeal(), "hi")
	require.NoError(t, err)
	got := collect(events)

	terminal := got[len(got)-1]
	assert.False(t, terminal.Done)
	assert.NotEmpty(t, terminal.Error)

	// the user message from step 1 survives; no assistant row
	require.Len(t, store.messages, 1)
	assert.Equal(t, models.ChatRoleUser, store.messages[0].Role)
}

func TestRefineMealUserMessagePersistErrorAbortsBeforeGeneration(t *testing.T) {
	// History works but the user-message save fails
	store := &failingStore{}
	gen := &fakeGenerator{fragments: []string{"never"}}
	svc := NewChatService(gen, store, &fakeUsageRecorder{})

	_, err := svc.RefineMeal(context.Background(), testMeal(), "hi")
	require.Error(t, err)
	assert.Zero(t, gen.sawUserText) // generation never started
}

type failingStore struct{}

func (failingStore) SaveMessage(m *models.ChatMessage) error { return errors.New("db down") }
func (failingStore) History(mealID uint) ([]models.ChatMessage, error) {
	return nil, nil
}

func TestRefineMealCancelledCallerStillFinalizes(t *testing.T) {
	store := &fakeStore{}
	gen := &fakeGenerator{
		fragments: []string{"追加します。", "[CHANGE: {\"action\": \"remove\", \"foodItemId\": \"x\"}]"},
	}
	svc := NewChatService(gen, store, &fakeUsageRecorder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // caller is already gone

	events, err := svc.RefineMeal(ctx, testMeal(), "取り消して")
	require.NoError(t, err)
	collect(events) // wait for the turn to finish

	// the assistant message exists and reflects the full generated text
	require.Len(t, store.messages, 2)
	asst := store.messages[1]
	assert.Equal(t, models.ChatRoleAssistant, asst.Role)
	assert.Equal(t, "追加します。", asst.Content)
	assert.NotEmpty(t, asst.AppliedChanges)
}

func TestRefineMealSecondTurnSeesHistory(t *testing.T) {
	store := &fakeStore{}
	gen := &fakeGenerator{fragments: []string{"了解です。"}}
	svc := NewChatService(gen, store, &fakeUsageRecorder{})

	meal := testMeal()
	events, err := svc.RefineMeal(context.Background(), meal, "一つ目")
	require.NoError(t, err)
	collect(events)

	events, err = svc.RefineMeal(context.Background(), meal, "二つ目")
	require.NoError(t, err)
	collect(events)

	// prior turn's user + assistant messages, not the new user message
	assert.Equal(t, 2, gen.sawHistory)
}
