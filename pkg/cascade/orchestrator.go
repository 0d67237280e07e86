package cascade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/polisight/backend/pkg/analysis"
	"github.com/polisight/backend/pkg/conversation"
	"github.com/polisight/backend/pkg/logger"
)

// State is a step of the message state machine.
type State string

const (
	Received         State = "received"
	IntentClassified State = "intent_classified"
	Executing        State = "executing"
	Synthesizing     State = "synthesizing"
	Delivered        State = "delivered"
	Failed           State = "failed"
)

const (
	// HistoryWindow is the number of recent messages handed to synthesis.
	HistoryWindow = 5
	// DefaultMinConfidence is the classification confidence below which a
	// message is treated as a general query.
	DefaultMinConfidence = 0.5
	// maxRememberedEntities bounds the entities carried between turns.
	maxRememberedEntities = 10
)

// Transition is reported to the Observer on every state change. Step and
// Steps are set while Executing.
type Transition struct {
	ConversationID string
	State          State
	Stage          analysis.StageName
	Step           int
	Steps          int
}

// StepRun is the outcome of one stage of the cascade.
type StepRun struct {
	Stage  analysis.StageName `json:"stage"`
	Failed bool               `json:"failed"`
	Error  string             `json:"error,omitempty"`
}

// Reply is the answer to one message.
type Reply struct {
	ConversationID  string                                 `json:"conversation_id"`
	Intent          Intent                                 `json:"intent"`
	Confidence      float64                                `json:"confidence"`
	Reply           string                                 `json:"reply"`
	CascadeStepsRun []analysis.StageName                   `json:"cascade_steps_run"`
	Steps           []StepRun                              `json:"steps"`
	PerStageResults map[analysis.StageName]analysis.Result `json:"per_stage_results"`
	FailedSteps     []analysis.StageName                   `json:"failed_steps"`
	Suggestions     []string                               `json:"suggestions"`
}

// Orchestrator processes conversation messages. It is safe for concurrent
// use; messages of different conversations run in parallel.
//
// An Orchestrator should be created using New.
type Orchestrator struct {
	runner        *analysis.Runner
	paths         *PathTable
	store         conversation.Store
	classifier    Classifier
	synthesizer   Synthesizer
	minConfidence float64
	observer      func(Transition)

	entitiesMu sync.Mutex
	entities   map[string][]analysis.Entity
}

// NewParams defines the configuration for creating an Orchestrator.
//
// Paths defaults to DefaultPaths, Classifier to KeywordClassifier and
// Synthesizer to TemplateSynthesizer. MinConfidence defaults to
// DefaultMinConfidence.
type NewParams struct {
	Runner        *analysis.Runner
	Store         conversation.Store
	Paths         map[Intent]Path
	Classifier    Classifier
	Synthesizer   Synthesizer
	MinConfidence float64
	Observer      func(Transition)
}

// New creates an Orchestrator and validates its path table against the
// runner's catalogue.
//
// Example:
//
//	o, err := cascade.New(cascade.NewParams{
//		Runner: runner,
//		Store:  conversation.NewMemory(conversation.NewMemoryParams{}),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	reply, err := o.ProcessMessage(ctx, "conv1", "Tell me about Senator Jane Smith")
func New(params NewParams) (*Orchestrator, error) {
	if params.Runner == nil || params.Store == nil {
		return nil, fmt.Errorf("runner and conversation store are required")
	}
	paths := params.Paths
	if paths == nil {
		paths = DefaultPaths()
	}
	table, err := NewPathTable(paths, params.Runner.Catalogue())
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		runner:        params.Runner,
		paths:         table,
		store:         params.Store,
		classifier:    params.Classifier,
		synthesizer:   params.Synthesizer,
		minConfidence: params.MinConfidence,
		observer:      params.Observer,
		entities:      make(map[string][]analysis.Entity),
	}
	if o.classifier == nil {
		o.classifier = KeywordClassifier{}
	}
	if o.synthesizer == nil {
		o.synthesizer = TemplateSynthesizer{}
	}
	if o.minConfidence <= 0 {
		o.minConfidence = DefaultMinConfidence
	}
	return o, nil
}

// Path returns the cascade path of intent.
func (o *Orchestrator) Path(intent Intent) Path {
	return o.paths.Lookup(intent)
}

func (o *Orchestrator) enter(t Transition) {
	if o.observer != nil {
		o.observer(t)
	}
}

// ProcessMessage appends text to the conversation, runs the cascade for its
// intent and appends the synthesized reply. Stage failures degrade the
// reply but do not fail the call. If ctx is cancelled between stages the
// user message stays in the history and ctx's error is returned.
func (o *Orchestrator) ProcessMessage(ctx context.Context, conversationID, text string) (Reply, error) {
	start := time.Now()
	if conversationID == "" {
		return Reply{}, conversation.ErrInvalidID
	}
	if text == "" {
		return Reply{}, fmt.Errorf("message text is required")
	}

	o.enter(Transition{ConversationID: conversationID, State: Received})
	if err := o.store.Append(ctx, conversationID, conversation.NewMessage(conversation.RoleUser, text)); err != nil {
		return Reply{}, o.fail(conversationID, fmt.Errorf("failed to store message: %w", err))
	}

	class := o.classify(ctx, text)
	path := o.paths.Lookup(class.Intent)
	o.enter(Transition{ConversationID: conversationID, State: IntentClassified})

	actx := analysis.NewContext(string(class.Intent), text)
	actx.Seed = o.remembered(conversationID)

	steps := make([]StepRun, 0, len(path))
	for i, name := range path {
		if err := ctx.Err(); err != nil {
			return Reply{}, o.fail(conversationID, err)
		}
		o.enter(Transition{ConversationID: conversationID, State: Executing, Stage: name, Step: i + 1, Steps: len(path)})

		_, err := o.runner.RunStage(ctx, name, actx)
		var stageErr *analysis.StageError
		switch {
		case err == nil:
			steps = append(steps, StepRun{Stage: name})
		case errors.As(err, &stageErr):
			steps = append(steps, StepRun{Stage: name, Failed: true, Error: stageErr.Err.Error()})
		default:
			return Reply{}, o.fail(conversationID, err)
		}
	}
	o.remember(conversationID, actx)

	o.enter(Transition{ConversationID: conversationID, State: Synthesizing})
	reply, err := o.synthesize(ctx, conversationID, text, class.Intent, actx, steps)
	if err != nil {
		return Reply{}, o.fail(conversationID, err)
	}

	if err := o.store.Append(ctx, conversationID, conversation.NewMessage(conversation.RoleAssistant, reply)); err != nil {
		return Reply{}, o.fail(conversationID, fmt.Errorf("failed to store reply: %w", err))
	}
	o.enter(Transition{ConversationID: conversationID, State: Delivered})

	out := Reply{
		ConversationID:  conversationID,
		Intent:          class.Intent,
		Confidence:      class.Confidence,
		Reply:           reply,
		CascadeStepsRun: make([]analysis.StageName, len(steps)),
		Steps:           steps,
		PerStageResults: actx.Results,
		FailedSteps:     []analysis.StageName{},
		Suggestions:     ExtractSuggestions(reply),
	}
	for i, s := range steps {
		out.CascadeStepsRun[i] = s.Stage
		if s.Failed {
			out.FailedSteps = append(out.FailedSteps, s.Stage)
		}
	}

	logger.Info("[Cascade] Message answered",
		"conversation_id", conversationID,
		"intent", class.Intent,
		"confidence", class.Confidence,
		"failed_steps", len(out.FailedSteps),
		"duration", time.Since(start),
	)
	return out, nil
}

// classify never fails: classifier errors and low confidence fall back to
// the general-query intent.
func (o *Orchestrator) classify(ctx context.Context, text string) Classification {
	class, err := o.classifier.Classify(ctx, text)
	if err != nil {
		logger.Warn("[Cascade] Intent classification failed", "err", err)
		return Classification{Intent: GeneralQuery}
	}
	if _, ok := ParseIntent(string(class.Intent)); !ok || class.Confidence < o.minConfidence {
		logger.Debug("[Cascade] Low confidence intent", "intent", class.Intent, "confidence", class.Confidence)
		return Classification{Intent: GeneralQuery, Confidence: class.Confidence}
	}
	return class
}

func (o *Orchestrator) synthesize(ctx context.Context, conversationID, text string, intent Intent, actx *analysis.Context, steps []StepRun) (string, error) {
	succeeded := 0
	for _, s := range steps {
		if !s.Failed {
			succeeded++
		}
	}
	if succeeded == 0 {
		return Apology, nil
	}

	history, err := o.store.Recent(ctx, conversationID, HistoryWindow)
	if err != nil {
		logger.Warn("[Cascade] History unavailable for synthesis", "conversation_id", conversationID, "err", err)
		history = nil
	}
	reply, err := o.synthesizer.Synthesize(ctx, SynthesisInput{
		Text:    text,
		Intent:  intent,
		Context: actx,
		Steps:   steps,
		History: history,
	})
	if err != nil {
		return "", fmt.Errorf("failed to synthesize reply: %w", err)
	}
	return reply, nil
}

func (o *Orchestrator) fail(conversationID string, err error) error {
	o.enter(Transition{ConversationID: conversationID, State: Failed})
	logger.Error("[Cascade] Message failed", "conversation_id", conversationID, "err", err)
	return err
}

// remembered returns the entities of earlier turns without their spans,
// which refer to earlier messages.
func (o *Orchestrator) remembered(conversationID string) []analysis.Entity {
	o.entitiesMu.Lock()
	defer o.entitiesMu.Unlock()
	prev := o.entities[conversationID]
	out := make([]analysis.Entity, len(prev))
	copy(out, prev)
	return out
}

// remember keeps the newest entities of a turn for the next one.
func (o *Orchestrator) remember(conversationID string, actx *analysis.Context) {
	res, ok := analysis.ResultOf[analysis.EntityResult](actx, analysis.EntityExtraction)
	if !ok || len(res.Entities) == 0 {
		return
	}

	o.entitiesMu.Lock()
	defer o.entitiesMu.Unlock()
	merged := make([]analysis.Entity, 0, maxRememberedEntities)
	seen := make(map[string]struct{})
	for _, group := range [][]analysis.Entity{res.Entities, o.entities[conversationID]} {
		for _, e := range group {
			e.Span = analysis.Span{}
			if _, ok := seen[analysis.NodeKey(e)]; ok || len(merged) == maxRememberedEntities {
				continue
			}
			seen[analysis.NodeKey(e)] = struct{}{}
			merged = append(merged, e)
		}
	}
	o.entities[conversationID] = merged
}

// Forget drops the entities remembered for a conversation. It is called
// when the conversation is cleared.
func (o *Orchestrator) Forget(conversationID string) {
	o.entitiesMu.Lock()
	delete(o.entities, conversationID)
	o.entitiesMu.Unlock()
}
