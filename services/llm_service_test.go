package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, lines []string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
		}
	}))
}

func testLLM(url string) *LLMService {
	return &LLMService{
		apiKey:  "test-key",
		baseURL: url,
		model:   "test-model",
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func drainStream(t *testing.T, s *LLMService, req GenerationRequest) ([]string, TokenUsage, bool, error) {
	t.Helper()
	fragments, usageCh, errs := s.StreamChat(context.Background(), req)
	var frags []string
	for f := range fragments {
		frags = append(frags, f)
	}
	err := <-errs
	u, ok := <-usageCh
	return frags, u, ok, err
}

func TestLLMStreamChat(t *testing.T) {
	var gotReq llmRequest
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"ご飯"}}]}`,
		`{"choices":[{"delta":{"content":"を追加しました。"}}]}`,
		`{"choices":[],"usage":{"prompt_tokens":100,"completion_tokens":20,"total_tokens":120}}`,
		`[DONE]`,
	}, func(r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
	})
	defer srv.Close()

	meal := &models.Meal{Type: models.MealTypeDinner, AteAt: time.Now()}
	meal.Items = []models.FoodItem{{ID: "item-1", Name: "みそ汁", Portion: "small", Calories: 50}}

	frags, usage, ok, err := drainStream(t, testLLM(srv.URL), GenerationRequest{
		Meal:     meal,
		History:  []models.ChatMessage{{Role: models.ChatRoleUser, Content: "前の発言"}},
		UserText: "ご飯も食べた",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"ご飯", "を追加しました。"}, frags)
	require.True(t, ok)
	assert.Equal(t, 120, usage.TotalTokens)
	assert.Equal(t, 100, usage.PromptTokens)

	// request shape: streaming with usage, system + history + user message
	assert.True(t, gotReq.Stream)
	require.NotNil(t, gotReq.StreamOptions)
	assert.True(t, gotReq.StreamOptions.IncludeUsage)
	require.Len(t, gotReq.Messages, 3)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Contains(t, gotReq.Messages[0].Content, "item-1") // items are addressable
	assert.Equal(t, "前の発言", gotReq.Messages[1].Content)
	assert.Equal(t, "ご飯も食べた", gotReq.Messages[2].Content)
}

func TestLLMStreamChatAPIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	frags, _, ok, err := drainStream(t, testLLM(srv.URL), GenerationRequest{Meal: &models.Meal{}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Empty(t, frags)
	assert.False(t, ok) // no usage on failure
}

func TestLLMStreamChatMidStreamErrorChunk(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"部分"}}]}`,
		`{"error":{"message":"backend exploded"}}`,
	}, nil)
	defer srv.Close()

	frags, _, ok, err := drainStream(t, testLLM(srv.URL), GenerationRequest{Meal: &models.Meal{}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend exploded")
	assert.Equal(t, []string{"部分"}, frags) // fragments before the failure still arrived
	assert.False(t, ok)
}

func TestLLMStreamChatMissingAPIKey(t *testing.T) {
	s := &LLMService{client: http.DefaultClient}
	_, _, ok, err := drainStream(t, s, GenerationRequest{Meal: &models.Meal{}})
	require.Error(t, err)
	assert.False(t, ok)
}
