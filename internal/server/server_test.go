package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rabbitmq/amqp091-go"

	"github.com/polisight/backend/internal/app"
	"github.com/polisight/backend/internal/queue"
	mid "github.com/polisight/backend/internal/server/middleware"
	"github.com/polisight/backend/pkg/pipeline"
)

type fakePublisher struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (f *fakePublisher) Publish(_, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.bodies = append(f.bodies, msg.Body)
	return nil
}

func newTestApp(t *testing.T) *mid.App {
	t.Helper()
	svc, err := app.Build(context.Background(), app.Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return &mid.App{Service: svc}
}

func do(t *testing.T, a *mid.App, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	New(a).ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestApp(t), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestProcessDocument(t *testing.T) {
	a := newTestApp(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{name: "valid", body: `{"id":"doc1","text":"Senator Jane Smith sponsored the Privacy Act."}`, wantCode: http.StatusOK},
		{name: "missing text", body: `{"id":"doc2"}`, wantCode: http.StatusBadRequest},
		{name: "malformed", body: `{"id":`, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, a, http.MethodPost, "/api/documents", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp struct {
				Result pipeline.Result `json:"result"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Result.Status != pipeline.Persisted || resp.Result.EntityCount != 2 || resp.Result.RelationshipCount != 1 {
				t.Errorf("result = %+v", resp.Result)
			}
		})
	}
}

func TestProcessBatchSynchronous(t *testing.T) {
	a := newTestApp(t)
	body := `{"documents":[{"id":"a","text":"Senator Jane Smith sponsored the Privacy Act."},{"id":"b","text":"The Senate adjourned."}]}`

	rec := do(t, a, http.MethodPost, "/api/documents/batch", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Results []pipeline.Result `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	got := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		got[i] = r.DocumentID + ":" + string(r.Status)
	}
	want := []string{"a:" + string(pipeline.Persisted), "b:" + string(pipeline.Persisted)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}

	if rec := do(t, a, http.MethodPost, "/api/documents/batch", `{"document_ids":["x"]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("ids without source: status = %d", rec.Code)
	}
	if rec := do(t, a, http.MethodPost, "/api/documents/batch", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty batch: status = %d", rec.Code)
	}
}

func TestProcessBatchQueued(t *testing.T) {
	a := newTestApp(t)
	pub := &fakePublisher{}
	a.Queue = pub

	rec := do(t, a, http.MethodPost, "/api/documents/batch", `{"document_ids":["doc1","doc2"]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if diff := cmp.Diff([]string{queue.IndexQueue}, pub.keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	var msg queue.IndexMessage
	if err := json.Unmarshal(pub.bodies[0], &msg); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"doc1", "doc2"}, msg.DocumentIDs); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	a.Queue = &fakePublisher{err: errors.New("channel closed")}
	if rec := do(t, a, http.MethodPost, "/api/documents/batch", `{"document_ids":["doc1"]}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("publish failure: status = %d", rec.Code)
	}
}

func TestConversationRoutes(t *testing.T) {
	a := newTestApp(t)
	do(t, a, http.MethodPost, "/api/documents", `{"id":"doc1","text":"Senator Jane Smith sponsored the Privacy Act."}`)

	rec := do(t, a, http.MethodPost, "/api/conversations/conv1/messages", `{"text":"Tell me about Senator Jane Smith"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var reply struct {
		ConversationID  string   `json:"conversation_id"`
		Intent          string   `json:"intent"`
		CascadeStepsRun []string `json:"cascade_steps_run"`
		Reply           string   `json:"reply"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatal(err)
	}
	if reply.ConversationID != "conv1" || reply.Intent != "politician-query" || len(reply.CascadeStepsRun) != 3 || reply.Reply == "" {
		t.Errorf("reply = %+v", reply)
	}

	if rec := do(t, a, http.MethodPost, "/api/conversations/conv1/messages", `{"text":"  "}`); rec.Code != http.StatusBadRequest {
		t.Errorf("blank text: status = %d", rec.Code)
	}

	rec = do(t, a, http.MethodGet, "/api/conversations/conv1", "")
	var history struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatal(err)
	}
	if len(history.Messages) != 2 || history.Messages[0].Content != "Tell me about Senator Jane Smith" || history.Messages[1].Role != "assistant" {
		t.Errorf("history = %+v", history.Messages)
	}

	if rec := do(t, a, http.MethodDelete, "/api/conversations/conv1", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = do(t, a, http.MethodGet, "/api/conversations/conv1", "")
	history.Messages = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatal(err)
	}
	if len(history.Messages) != 0 {
		t.Errorf("history after delete = %+v", history.Messages)
	}
}
