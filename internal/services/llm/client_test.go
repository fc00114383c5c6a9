package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"millwork/internal/config"
	"millwork/internal/services"
	"millwork/internal/services/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *llm.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return llm.NewClient(config.LLM{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test/model",
	}, llm.WithSleeper(func(time.Duration) {}))
}

func completionBody(content string, promptTokens, completionTokens int) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
		"usage": map[string]int{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
	encoded, _ := json.Marshal(payload)
	return string(encoded)
}

func TestCompleteReturnsContentAndUsage(t *testing.T) {
	var gotModel string
	var gotMaxTokens int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = req.Model
		gotMaxTokens = req.MaxTokens
		w.Write([]byte(completionBody("drafted article", 100, 250)))
	})

	completion, err := client.Complete(context.Background(), llm.Request{
		SystemPrompt: "You write articles.",
		UserPrompt:   "Write about roof repair.",
		Model:        "persona/override",
		MaxTokens:    4000,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completion.Content != "drafted article" {
		t.Fatalf("unexpected content: %q", completion.Content)
	}
	if completion.Usage.InputTokens != 100 || completion.Usage.OutputTokens != 250 || completion.Usage.TotalTokens != 350 {
		t.Fatalf("unexpected usage: %+v", completion.Usage)
	}
	if gotModel != "persona/override" {
		t.Fatalf("expected per-request model override, got %q", gotModel)
	}
	if gotMaxTokens != 4000 {
		t.Fatalf("expected max_tokens forwarded, got %d", gotMaxTokens)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(completionBody("second try", 10, 20)))
	})

	completion, err := client.Complete(context.Background(), llm.Request{
		SystemPrompt: "sys",
		UserPrompt:   "user",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if completion.Content != "second try" {
		t.Fatalf("unexpected content: %q", completion.Content)
	}
}

func TestCompleteSurfacesRateLimitAfterRetries(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "1")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := client.Complete(context.Background(), llm.Request{
		SystemPrompt: "sys",
		UserPrompt:   "user",
	})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !services.IsRateLimited(err) {
		t.Fatalf("expected rate-limited classification, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestCompleteRejectsMissingAPIKey(t *testing.T) {
	client := llm.NewClient(config.LLM{BaseURL: "http://127.0.0.1:1", Model: "m"})
	_, err := client.Complete(context.Background(), llm.Request{SystemPrompt: "s", UserPrompt: "u"})
	if !services.IsFatal(err) {
		t.Fatalf("expected fatal configuration error, got %v", err)
	}
}

func TestCompleteJSONDecodesFencedPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("```json\n{\"passed\":true,\"score\":88}\n```", 5, 15)))
	})

	var verdict struct {
		Passed bool `json:"passed"`
		Score  int  `json:"score"`
	}
	usage, err := client.CompleteJSON(context.Background(), llm.Request{
		SystemPrompt: "sys",
		UserPrompt:   "user",
	}, &verdict)
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if !verdict.Passed || verdict.Score != 88 {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
	if usage.TotalTokens != 20 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestDecodeLLMJSONHandlesProseWrapping(t *testing.T) {
	var payload struct {
		Keyword string `json:"keyword"`
	}
	content := "Here is the result you asked for: {\"keyword\":\"roof repair\"} Hope that helps!"
	if err := llm.DecodeLLMJSON(content, &payload); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if payload.Keyword != "roof repair" {
		t.Fatalf("unexpected keyword: %q", payload.Keyword)
	}
}
