package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/polisight/backend/pkg/ai"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "test-model",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": %q}
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
}`

func newTestServer(t *testing.T, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			_ = json.Unmarshal(body, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, strings.Replace(completionBody, "%q", mustQuote(content), 1))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGenerateCompletionWithFormat(t *testing.T) {
	var seen map[string]any
	srv := newTestServer(t, "```json\n{\"intent\": \"politician-query\", \"confidence\": 0.9}\n```", &seen)

	client := NewGraphOpenAIClient(NewGraphOpenAIClientParams{
		ChatModel: "test-model",
		ChatURL:   srv.URL + "/v1/",
		ChatKey:   "test",
	})

	var out struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	err := client.GenerateCompletionWithFormat(context.Background(), "intent", "Intent classification", "Tell me about Jane", &out)
	if err != nil {
		t.Fatalf("GenerateCompletionWithFormat() error = %v", err)
	}
	if out.Intent != "politician-query" || out.Confidence != 0.9 {
		t.Fatalf("unexpected output %+v", out)
	}

	format, _ := seen["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Fatalf("expected json_schema response format, got %v", seen["response_format"])
	}
	if seen["model"] != "test-model" {
		t.Fatalf("extraction model should default to chat model, got %v", seen["model"])
	}

	m := client.GetMetrics()
	if m.TotalTokens != 16 || m.Requests != 1 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	client.ResetMetrics()
	if client.GetMetrics().TotalTokens != 0 {
		t.Fatal("metrics not reset")
	}
}

func TestGenerateChatSendsHistory(t *testing.T) {
	var seen map[string]any
	srv := newTestServer(t, "Jane Smith sponsors the Privacy Act.", &seen)

	client := NewGraphOpenAIClient(NewGraphOpenAIClientParams{
		ChatModel: "test-model",
		ChatURL:   srv.URL + "/v1/",
		ChatKey:   "test",
	})

	reply, err := client.GenerateChat(context.Background(), []ai.ChatMessage{
		{Role: "user", Message: "Who is Jane Smith?"},
		{Role: "assistant", Message: "A senator."},
		{Role: "user", Message: "What did she sponsor?"},
	}, ai.WithSystemPrompts("be brief"))
	if err != nil {
		t.Fatalf("GenerateChat() error = %v", err)
	}
	if reply != "Jane Smith sponsors the Privacy Act." {
		t.Fatalf("unexpected reply %q", reply)
	}

	msgs, _ := seen["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("expected system prompt plus 3 messages, got %d", len(msgs))
	}
}
