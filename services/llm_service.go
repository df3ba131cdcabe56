package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"backend/models"
	"backend/utils"
)

// LLMService streams chat completions from an OpenAI-compatible backend.
// It implements Generator.
type LLMService struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewLLMService initializes the client from the environment.
func NewLLMService() *LLMService {
	baseURL := os.Getenv("LLM_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &LLMService{
		apiKey:  os.Getenv("LLM_API_KEY"),
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type llmMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type llmStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type llmRequest struct {
	Model         string            `json:"model"`
	Messages      []llmMessage      `json:"messages"`
	MaxTokens     int               `json:"max_tokens,omitempty"`
	Temperature   float64           `json:"temperature"`
	Stream        bool              `json:"stream"`
	StreamOptions *llmStreamOptions `json:"stream_options,omitempty"`
}

type llmChunk struct {
	Choices []struct {
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// StreamChat sends one turn and streams back fragments. See the Generator
// contract for channel ordering.
func (s *LLMService) StreamChat(ctx context.Context, req GenerationRequest) (<-chan string, <-chan TokenUsage, <-chan error) {
	fragments := make(chan string, 64)
	usageCh := make(chan TokenUsage, 1)
	errs := make(chan error, 1)

	go func() {
		usage, err := s.stream(ctx, req, fragments)
		close(fragments)
		if err != nil {
			errs <- err
		}
		close(errs)
		if err == nil {
			usageCh <- usage
		}
		close(usageCh)
	}()

	return fragments, usageCh, errs
}

func (s *LLMService) stream(ctx context.Context, req GenerationRequest, fragments chan<- string) (TokenUsage, error) {
	var usage TokenUsage

	if s.apiKey == "" {
		return usage, fmt.Errorf("LLM_API_KEY not configured")
	}

	messages := []llmMessage{{Role: "system", Content: buildSystemPrompt(req.Meal)}}
	for _, m := range req.History {
		messages = append(messages, llmMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, llmMessage{Role: "user", Content: req.UserText})

	body, err := json.Marshal(llmRequest{
		Model:         s.model,
		Messages:      messages,
		MaxTokens:     2048,
		Temperature:   0.2,
		Stream:        true,
		StreamOptions: &llmStreamOptions{IncludeUsage: true},
	})
	if err != nil {
		return usage, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return usage, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return usage, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return usage, fmt.Errorf("llm API error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return usage, nil
		}

		var chunk llmChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return usage, fmt.Errorf("llm API error: %s", chunk.Error.Message)
		}
		if chunk.Usage != nil {
			usage = TokenUsage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				select {
				case fragments <- delta:
				case <-ctx.Done():
					return usage, ctx.Err()
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return usage, fmt.Errorf("stream interrupted: %w", err)
	}
	return usage, nil
}

// buildSystemPrompt describes the meal being refined and the directive
// format the model must use for edits.
func buildSystemPrompt(meal *models.Meal) string {
	var b strings.Builder
	b.WriteString("You are a nutrition assistant helping a user refine a logged meal through conversation.\n")
	b.WriteString("Reply in the user's language.\n\n")
	b.WriteString("Current meal:\n")
	fmt.Fprintf(&b, "- type: %s\n- eaten at: %s\n- items:\n", meal.Type, meal.AteAt.Format(time.RFC3339))
	for _, it := range meal.Items {
		fmt.Fprintf(&b, "  - id=%s name=%q portion=%s calories=%d protein=%.1f fat=%.1f carbs=%.1f\n",
			it.ID, it.Name, it.Portion, it.Calories, it.Protein, it.Fat, it.Carbs)
	}
	b.WriteString("\nWhen the user asks to change the meal, include one directive per change inline in your reply, ")
	b.WriteString("using exactly this format (the surrounding prose is shown to the user, the directive is not):\n")
	b.WriteString(utils.DirectiveMarker + ` {"action": "add", "food": {"name": "...", "portion": "small|medium|large", "calories": 0, "protein": 0.0, "fat": 0.0, "carbs": 0.0}}]` + "\n")
	b.WriteString(utils.DirectiveMarker + ` {"action": "update", "foodItemId": "...", "food": {"calories": 0}}]` + "\n")
	b.WriteString(utils.DirectiveMarker + ` {"action": "remove", "foodItemId": "..."}]` + "\n")
	b.WriteString("Only reference foodItemId values listed above. Estimate nutrition for new foods yourself.\n")
	return b.String()
}
