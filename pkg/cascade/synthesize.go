package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/polisight/backend/pkg/ai"
	"github.com/polisight/backend/pkg/analysis"
	"github.com/polisight/backend/pkg/conversation"
	"github.com/polisight/backend/pkg/logger"
)

// MaxSuggestions bounds the follow-up suggestions of a reply.
const MaxSuggestions = 3

// Apology is the reply when every stage of the cascade failed.
const Apology = "Sorry, I could not analyze your message right now. Please try again in a moment."

// SynthesisInput is everything a Synthesizer may use.
type SynthesisInput struct {
	Text    string
	Intent  Intent
	Context *analysis.Context
	Steps   []StepRun
	// History holds the most recent messages, oldest first, ending with the
	// current user message.
	History []conversation.Message
}

func (in SynthesisInput) failed() []string {
	var out []string
	for _, s := range in.Steps {
		if s.Failed {
			out = append(out, string(s.Stage))
		}
	}
	return out
}

// Synthesizer turns stage results into a reply.
type Synthesizer interface {
	Synthesize(ctx context.Context, in SynthesisInput) (string, error)
}

// TemplateSynthesizer writes a reply from fixed sentence templates.
type TemplateSynthesizer struct{}

func (TemplateSynthesizer) Synthesize(ctx context.Context, in SynthesisInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	actx := in.Context

	var parts []string
	if profiles, ok := analysis.ResultOf[analysis.ProfileResult](actx, analysis.PoliticianProfiling); ok {
		for _, p := range profiles.Profiles {
			parts = append(parts, describeProfile(p))
		}
	}
	if rels, ok := analysis.ResultOf[analysis.RelationshipResult](actx, analysis.RelationshipExtraction); ok && len(rels.Relationships) > 0 {
		var lines []string
		for _, r := range rels.Relationships {
			lines = append(lines, fmt.Sprintf("%s %s %s (confidence %.2f)",
				r.Source, strings.ToLower(strings.ReplaceAll(r.Predicate, "_", " ")), r.Target, r.Confidence))
		}
		parts = append(parts, "Relationships mentioned: "+strings.Join(lines, "; ")+".")
	}
	if inf, ok := analysis.ResultOf[analysis.InferenceResult](actx, analysis.RelationshipInference); ok {
		for _, i := range inf.Inferences {
			parts = append(parts, fmt.Sprintf("%s may be related to %s: they share %d connection(s) in the graph (confidence %.2f).",
				i.Source, i.Target, i.SharedNeighbors, i.Confidence))
		}
	}
	if bias, ok := analysis.ResultOf[analysis.BiasResult](actx, analysis.BiasAnalysis); ok {
		parts = append(parts, fmt.Sprintf("Political bias leans %s (strength %.2f of 1, variance %.2f across %d perspectives).",
			bias.Direction, bias.Score, bias.Variance, len(bias.Scorers)))
	}
	if s, ok := analysis.ResultOf[analysis.SentimentResult](actx, analysis.SentimentAnalysis); ok {
		parts = append(parts, fmt.Sprintf("The sentiment is %s (polarity %.2f).", s.Label, s.Polarity))
	}
	if f, ok := analysis.ResultOf[analysis.FactCheckResult](actx, analysis.FactCheck); ok {
		sentence := fmt.Sprintf("Estimated factual accuracy is %.0f%%.", f.FactualAccuracy*100)
		if len(f.FlaggedClaims) > 0 {
			sentence += fmt.Sprintf(" Claims worth verifying: %s.", strings.Join(f.FlaggedClaims, "; "))
		}
		parts = append(parts, sentence)
	}
	if h, ok := analysis.ResultOf[analysis.HateSpeechResult](actx, analysis.HateSpeechDetection); ok {
		if h.HasHateSpeech {
			parts = append(parts, fmt.Sprintf("Hate speech detected (%s severity: %s).", h.Severity, strings.Join(h.Categories, ", ")))
		} else {
			parts = append(parts, "No hate speech detected.")
		}
	}

	entities := actx.Entities()
	if len(parts) == 0 {
		if len(entities) > 0 {
			names := make([]string, len(entities))
			for i, e := range entities {
				names[i] = fmt.Sprintf("%s (%s)", e.Text, strings.ToLower(strings.ReplaceAll(string(e.Label), "_", " ")))
			}
			parts = append(parts, "I recognized "+strings.Join(names, ", ")+".")
		} else {
			parts = append(parts, "I could not find anything specific to look up in your message.")
		}
	}
	if failed := in.failed(); len(failed) > 0 {
		parts = append(parts, "Some steps could not be completed ("+strings.Join(failed, ", ")+"), so this answer may be incomplete.")
	}

	reply := strings.Join(parts, "\n")
	if questions := followUps(entities); len(questions) > 0 {
		reply += "\n\nYou could also ask:\n- " + strings.Join(questions, "\n- ")
	}
	return reply, nil
}

func describeProfile(p analysis.Profile) string {
	if !p.Found {
		return fmt.Sprintf("%s is not in the knowledge graph yet.", p.Name)
	}
	s := fmt.Sprintf("%s has sponsored %d bill(s), has %d recorded vote(s) and %d affiliation(s).",
		p.Name, p.Sponsored, p.Votes, p.Affiliations)
	if len(p.Memberships) > 0 {
		s += fmt.Sprintf(" Member of: %s.", strings.Join(p.Memberships, ", "))
	}
	return s
}

// followUps proposes questions about the entities of the message.
func followUps(entities []analysis.Entity) []string {
	var out []string
	for _, e := range entities {
		switch e.Label {
		case analysis.LabelPerson:
			out = append(out,
				fmt.Sprintf("What legislation has %s sponsored?", e.Text),
				fmt.Sprintf("Who is %s connected to?", e.Text))
		case analysis.LabelLegislation:
			out = append(out, fmt.Sprintf("Who sponsored the %s?", e.Text))
		case analysis.LabelOrganization, analysis.LabelGovernmentBody:
			out = append(out, fmt.Sprintf("Who is a member of the %s?", e.Text))
		}
		if len(out) >= MaxSuggestions {
			break
		}
	}
	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out
}

// LLMSynthesizer writes the reply with a chat model and falls back to its
// Fallback synthesizer when the model fails.
type LLMSynthesizer struct {
	client   ai.GraphAIClient
	model    string
	fallback Synthesizer
}

// NewLLMSynthesizer creates an LLMSynthesizer. A nil fallback uses
// TemplateSynthesizer.
func NewLLMSynthesizer(client ai.GraphAIClient, model string, fallback Synthesizer) *LLMSynthesizer {
	if fallback == nil {
		fallback = TemplateSynthesizer{}
	}
	return &LLMSynthesizer{client: client, model: model, fallback: fallback}
}

func (s *LLMSynthesizer) Synthesize(ctx context.Context, in SynthesisInput) (string, error) {
	results, err := json.MarshalIndent(in.Context.Results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode stage results: %w", err)
	}
	failed := "none"
	if f := in.failed(); len(f) > 0 {
		failed = strings.Join(f, ", ")
	}

	messages := make([]ai.ChatMessage, 0, len(in.History))
	for _, m := range in.History {
		messages = append(messages, ai.ChatMessage{Role: m.Role, Message: m.Content})
	}
	if len(messages) == 0 {
		messages = append(messages, ai.ChatMessage{Role: conversation.RoleUser, Message: in.Text})
	}

	opts := []ai.GenerateOption{ai.WithSystemPrompts(fmt.Sprintf(ai.SynthesisPrompt, results, failed))}
	if s.model != "" {
		opts = append(opts, ai.WithModel(s.model))
	}

	reply, err := s.client.GenerateChat(ctx, messages, opts...)
	if err == nil && strings.TrimSpace(reply) != "" {
		return strings.TrimSpace(reply), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	logger.Warn("[Cascade] Model synthesis failed, using template", "err", err)
	return s.fallback.Synthesize(ctx, in)
}

// ExtractSuggestions returns up to MaxSuggestions distinct follow-up
// questions found in reply: list items or lines ending with a question
// mark, skipping the first line.
func ExtractSuggestions(reply string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	lines := strings.Split(reply, "\n")
	for i, line := range lines {
		if i == 0 {
			continue
		}
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• ")
		line = strings.TrimLeft(line, "0123456789.) ")
		if !strings.HasSuffix(line, "?") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}
