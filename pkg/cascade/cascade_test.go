package cascade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/polisight/backend/pkg/ai"
	"github.com/polisight/backend/pkg/analysis"
	"github.com/polisight/backend/pkg/analysis/heuristic"
	"github.com/polisight/backend/pkg/analysis/model"
	"github.com/polisight/backend/pkg/conversation"
	"github.com/polisight/backend/pkg/graphstore"
	"github.com/polisight/backend/pkg/graphstore/memory"
	"github.com/polisight/backend/pkg/schema"
)

type failingModel struct {
	model.Model
	kinds map[string]bool
}

func (m failingModel) Invoke(ctx context.Context, kind string, input model.Input, out any) error {
	if m.kinds == nil || m.kinds[kind] {
		return fmt.Errorf("%s model offline", kind)
	}
	return m.Model.Invoke(ctx, kind, input, out)
}

type fixedClassifier Classification

func (c fixedClassifier) Classify(context.Context, string) (Classification, error) {
	return Classification(c), nil
}

// fakeAI answers structured requests with format and chats with chat.
type fakeAI struct {
	format  string
	chat    string
	chatErr error

	mu       sync.Mutex
	messages []ai.ChatMessage
}

func (f *fakeAI) GenerateCompletion(context.Context, string, ...ai.GenerateOption) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeAI) GenerateCompletionWithFormat(_ context.Context, _, _, _ string, out any, _ ...ai.GenerateOption) error {
	return json.Unmarshal([]byte(f.format), out)
}

func (f *fakeAI) GenerateChat(_ context.Context, messages []ai.ChatMessage, _ ...ai.GenerateOption) (string, error) {
	f.mu.Lock()
	f.messages = messages
	f.mu.Unlock()
	return f.chat, f.chatErr
}

func (f *fakeAI) ResetMetrics()               {}
func (f *fakeAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func newRunner(t *testing.T, m model.Model) *analysis.Runner {
	t.Helper()
	if m == nil {
		m = heuristic.New()
	}
	client, err := graphstore.NewClient(graphstore.NewClientParams{Backend: memory.New(), Registry: schema.Default()})
	if err != nil {
		t.Fatal(err)
	}
	catalogue, err := analysis.NewDefaultCatalogue(m, client, schema.Default())
	if err != nil {
		t.Fatal(err)
	}
	return analysis.NewRunner(catalogue, 5*time.Second)
}

func newOrchestrator(t *testing.T, params NewParams) (*Orchestrator, conversation.Store) {
	t.Helper()
	if params.Runner == nil {
		params.Runner = newRunner(t, nil)
	}
	if params.Store == nil {
		params.Store = conversation.NewMemory(conversation.NewMemoryParams{})
	}
	o, err := New(params)
	if err != nil {
		t.Fatal(err)
	}
	return o, params.Store
}

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"Tell me about Senator Jane Smith", PoliticianQuery},
		{"Who is the governor?", PoliticianQuery},
		{"What does the Privacy Act do?", LegislationQuery},
		{"How is Jane Smith connected to the Green Party?", RelationshipQuery},
		{"Is this speech biased? Check the sentiment.", AnalysisRequest},
		{"Good morning!", GeneralQuery},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := KeywordClassifier{}.Classify(context.Background(), tt.text)
			if err != nil {
				t.Fatal(err)
			}
			if got.Intent != tt.want {
				t.Errorf("Classify(%q) = %+v, want %s", tt.text, got, tt.want)
			}
			if got.Confidence < DefaultMinConfidence {
				t.Errorf("Classify(%q) confidence = %.2f", tt.text, got.Confidence)
			}
		})
	}
}

func TestNewPathTable(t *testing.T) {
	catalogue := newRunner(t, nil).Catalogue()

	table, err := NewPathTable(DefaultPaths(), catalogue)
	if err != nil {
		t.Fatal(err)
	}
	want := Path{analysis.EntityExtraction, analysis.PoliticianProfiling, analysis.RelationshipInference}
	for range 3 {
		if diff := cmp.Diff(want, table.Lookup(PoliticianQuery)); diff != "" {
			t.Fatalf("Lookup() mismatch (-want +got):\n%s", diff)
		}
	}
	if diff := cmp.Diff(Path{analysis.EntityExtraction}, table.Lookup("unknown")); diff != "" {
		t.Errorf("Lookup(unknown) mismatch (-want +got):\n%s", diff)
	}

	badStage := DefaultPaths()
	badStage[GeneralQuery] = Path{"summarize"}
	missing := DefaultPaths()
	delete(missing, AnalysisRequest)
	extra := DefaultPaths()
	extra["chit-chat"] = Path{analysis.EntityExtraction}

	for name, paths := range map[string]map[Intent]Path{"unknown stage": badStage, "missing intent": missing, "unknown intent": extra} {
		t.Run(name, func(t *testing.T) {
			if _, err := NewPathTable(paths, catalogue); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestProcessMessageScenario(t *testing.T) {
	ctx := context.Background()
	var (
		mu     sync.Mutex
		states []State
	)
	o, store := newOrchestrator(t, NewParams{Observer: func(tr Transition) {
		mu.Lock()
		states = append(states, tr.State)
		mu.Unlock()
	}})

	reply, err := o.ProcessMessage(ctx, "conv1", "Tell me about Senator Jane Smith")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Intent != PoliticianQuery {
		t.Errorf("intent = %s, want %s", reply.Intent, PoliticianQuery)
	}
	wantSteps := []analysis.StageName{analysis.EntityExtraction, analysis.PoliticianProfiling, analysis.RelationshipInference}
	if diff := cmp.Diff(wantSteps, reply.CascadeStepsRun); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	if len(reply.FailedSteps) != 0 {
		t.Errorf("failed steps = %v", reply.FailedSteps)
	}
	if !strings.Contains(reply.Reply, "Jane Smith") {
		t.Errorf("reply does not mention Jane Smith: %q", reply.Reply)
	}
	if len(reply.Suggestions) == 0 || len(reply.Suggestions) > MaxSuggestions {
		t.Errorf("suggestions = %v", reply.Suggestions)
	}
	if _, ok := reply.PerStageResults[analysis.PoliticianProfiling]; !ok {
		t.Error("profiling result missing")
	}

	wantStates := []State{Received, IntentClassified, Executing, Executing, Executing, Synthesizing, Delivered}
	if diff := cmp.Diff(wantStates, states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}

	if _, err := o.ProcessMessage(ctx, "conv1", "What does the Privacy Act do?"); err != nil {
		t.Fatal(err)
	}
	history, err := store.History(ctx, "conv1")
	if err != nil {
		t.Fatal(err)
	}
	var roles, users []string
	for _, m := range history {
		roles = append(roles, m.Role)
		if m.Role == conversation.RoleUser {
			users = append(users, m.Content)
		}
	}
	if diff := cmp.Diff([]string{"user", "assistant", "user", "assistant"}, roles); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Tell me about Senator Jane Smith", "What does the Privacy Act do?"}, users); diff != "" {
		t.Errorf("user messages mismatch (-want +got):\n%s", diff)
	}

	if err := store.Clear(ctx, "conv1"); err != nil {
		t.Fatal(err)
	}
	history, _ = store.History(ctx, "conv1")
	if len(history) != 0 {
		t.Errorf("history after clear has %d messages", len(history))
	}
}

func TestProcessMessageRemembersEntities(t *testing.T) {
	ctx := context.Background()
	o, _ := newOrchestrator(t, NewParams{})

	if _, err := o.ProcessMessage(ctx, "conv1", "Tell me about Senator Jane Smith"); err != nil {
		t.Fatal(err)
	}
	reply, err := o.ProcessMessage(ctx, "conv1", "Who is she?")
	if err != nil {
		t.Fatal(err)
	}
	profiles, ok := reply.PerStageResults[analysis.PoliticianProfiling].(analysis.ProfileResult)
	if !ok || len(profiles.Profiles) != 1 || profiles.Profiles[0].Name != "Jane Smith" {
		t.Fatalf("profiles = %+v", reply.PerStageResults[analysis.PoliticianProfiling])
	}

	o.Forget("conv1")
	reply, err = o.ProcessMessage(ctx, "conv1", "Who is she?")
	if err != nil {
		t.Fatal(err)
	}
	profiles = reply.PerStageResults[analysis.PoliticianProfiling].(analysis.ProfileResult)
	if len(profiles.Profiles) != 0 {
		t.Errorf("profiles after Forget = %+v", profiles.Profiles)
	}
}

func TestProcessMessagePartialFailure(t *testing.T) {
	runner := newRunner(t, failingModel{Model: heuristic.New(), kinds: map[string]bool{model.KindBias: true}})
	o, _ := newOrchestrator(t, NewParams{Runner: runner})

	reply, err := o.ProcessMessage(context.Background(), "conv1", "Analyze the bias and sentiment of: We will fight for working families.")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Intent != AnalysisRequest {
		t.Fatalf("intent = %s, want %s", reply.Intent, AnalysisRequest)
	}
	if diff := cmp.Diff([]analysis.StageName{analysis.BiasAnalysis}, reply.FailedSteps); diff != "" {
		t.Errorf("failed steps mismatch (-want +got):\n%s", diff)
	}
	if len(reply.CascadeStepsRun) != 4 || !reply.Steps[0].Failed || reply.Steps[0].Error == "" {
		t.Errorf("steps = %+v", reply.Steps)
	}
	if !strings.Contains(reply.Reply, "bias-analysis") || !strings.Contains(reply.Reply, "sentiment") {
		t.Errorf("reply = %q", reply.Reply)
	}
}

func TestProcessMessageAllStagesFail(t *testing.T) {
	o, store := newOrchestrator(t, NewParams{Runner: newRunner(t, failingModel{Model: heuristic.New()})})

	reply, err := o.ProcessMessage(context.Background(), "conv1", "Good morning!")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Reply != Apology {
		t.Errorf("reply = %q, want apology", reply.Reply)
	}
	if diff := cmp.Diff([]analysis.StageName{analysis.EntityExtraction}, reply.FailedSteps); diff != "" {
		t.Errorf("failed steps mismatch (-want +got):\n%s", diff)
	}
	history, _ := store.History(context.Background(), "conv1")
	if len(history) != 2 || history[1].Content != Apology {
		t.Errorf("history = %+v", history)
	}
}

func TestProcessMessageLowConfidence(t *testing.T) {
	o, _ := newOrchestrator(t, NewParams{Classifier: fixedClassifier{Intent: PoliticianQuery, Confidence: 0.2}})

	reply, err := o.ProcessMessage(context.Background(), "conv1", "Tell me about Senator Jane Smith")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Intent != GeneralQuery {
		t.Errorf("intent = %s, want %s", reply.Intent, GeneralQuery)
	}
	if diff := cmp.Diff([]analysis.StageName{analysis.EntityExtraction}, reply.CascadeStepsRun); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessMessageCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o, store := newOrchestrator(t, NewParams{Observer: func(tr Transition) {
		if tr.State == Executing && tr.Step == 2 {
			cancel()
		}
	}})

	_, err := o.ProcessMessage(ctx, "conv1", "Tell me about Senator Jane Smith")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	history, err := store.History(context.Background(), "conv1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Role != conversation.RoleUser {
		t.Errorf("history = %+v, want only the user message", history)
	}
}

func TestProcessMessageConcurrent(t *testing.T) {
	o, store := newOrchestrator(t, NewParams{})
	const n = 20

	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			if _, err := o.ProcessMessage(context.Background(), "conv1", fmt.Sprintf("Message %d", i)); err != nil {
				t.Error(err)
			}
		})
	}
	wg.Wait()

	history, err := store.History(context.Background(), "conv1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2*n {
		t.Fatalf("history has %d messages, want %d", len(history), 2*n)
	}
	seen := make(map[string]bool)
	for _, m := range history {
		if m.Role == conversation.RoleUser {
			seen[m.Content] = true
		}
	}
	if len(seen) != n {
		t.Errorf("%d distinct user messages, want %d", len(seen), n)
	}
}

func TestLLMClassifier(t *testing.T) {
	tests := []struct {
		format string
		want   Classification
	}{
		{`{"intent":"legislation-query","confidence":0.9}`, Classification{Intent: LegislationQuery, Confidence: 0.9}},
		{`{"intent":"Politician-Query","confidence":1.7}`, Classification{Intent: PoliticianQuery, Confidence: 1}},
		{`{"intent":"weather","confidence":0.99}`, Classification{Intent: GeneralQuery, Confidence: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got, err := NewLLMClassifier(&fakeAI{format: tt.format}, "").Classify(context.Background(), "text")
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Classify() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLLMSynthesizer(t *testing.T) {
	actx := analysis.NewContext(string(GeneralQuery), "Hi")
	actx.Results[analysis.EntityExtraction] = analysis.EntityResult{}
	in := SynthesisInput{
		Text:    "Hi",
		Intent:  GeneralQuery,
		Context: actx,
		Steps:   []StepRun{{Stage: analysis.EntityExtraction}},
		History: []conversation.Message{conversation.NewMessage(conversation.RoleUser, "Hi")},
	}

	client := &fakeAI{chat: "  Hello!\n- What is the Privacy Act?  "}
	got, err := NewLLMSynthesizer(client, "", nil).Synthesize(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hello!\n- What is the Privacy Act?" {
		t.Errorf("Synthesize() = %q", got)
	}
	if len(client.messages) != 1 || client.messages[0].Role != conversation.RoleUser {
		t.Errorf("chat messages = %+v", client.messages)
	}

	fallback, err := NewLLMSynthesizer(&fakeAI{chatErr: errors.New("rate limited")}, "", nil).Synthesize(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := TemplateSynthesizer{}.Synthesize(context.Background(), in)
	if fallback != want {
		t.Errorf("fallback = %q, want template reply %q", fallback, want)
	}
}

func TestExtractSuggestions(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{
			name:  "list items",
			reply: "Jane Smith is a senator.\n\nYou could also ask:\n- What legislation has Jane Smith sponsored?\n- Who is Jane Smith connected to?",
			want:  []string{"What legislation has Jane Smith sponsored?", "Who is Jane Smith connected to?"},
		},
		{
			name:  "bounded and deduplicated",
			reply: "Answer.\n1. A?\n2. A?\n3. B?\n4. C?\n5. D?",
			want:  []string{"A?", "B?", "C?"},
		},
		{
			name:  "question in first line is the answer",
			reply: "Did you mean the Privacy Act?",
			want:  []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ExtractSuggestions(tt.reply)); diff != "" {
				t.Errorf("ExtractSuggestions() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
