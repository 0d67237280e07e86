package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/polisight/backend/pkg/ai"
)

// LLM serves every invocation kind through an ai.GraphAIClient with
// structured output.
type LLM struct {
	client    ai.GraphAIClient
	model     string
	encoder   string
	maxTokens int
}

// NewLLMParams configures an LLM model.
//
// Model overrides the client's extraction model when set. Input text is
// truncated to MaxInputTokens under the TokenEncoder encoding.
type NewLLMParams struct {
	Client         ai.GraphAIClient
	Model          string
	TokenEncoder   string
	MaxInputTokens int
}

// NewLLM creates an LLM model.
func NewLLM(params NewLLMParams) *LLM {
	return &LLM{
		client:    params.Client,
		model:     params.Model,
		encoder:   params.TokenEncoder,
		maxTokens: params.MaxInputTokens,
	}
}

type promptSpec struct {
	name        string
	description string
	build       func(text string, input Input) string
}

var prompts = map[string]promptSpec{
	KindEntities: {
		name:        "entities",
		description: "Named entities found in a political document",
		build: func(text string, _ Input) string {
			return fmt.Sprintf(ai.EntityExtractionPrompt, text)
		},
	},
	KindRelationships: {
		name:        "relationships",
		description: "Relationships between known political entities",
		build: func(text string, input Input) string {
			var list strings.Builder
			for _, e := range input.Entities {
				fmt.Fprintf(&list, "- %s (%s)\n", e.Text, e.Label)
			}
			return fmt.Sprintf(ai.RelationshipExtractionPrompt, text, list.String())
		},
	},
	KindBias: {
		name:        "bias_score",
		description: "Strength of political slant from 0 to 1 and its direction",
		build: func(text string, input Input) string {
			perspective := input.Perspective
			if perspective == "" {
				perspective = "neutral"
			}
			return fmt.Sprintf(ai.BiasAnalysisPrompt, perspective, text)
		},
	},
	KindSentiment: {
		name:        "sentiment",
		description: "Sentiment label and polarity",
		build: func(text string, _ Input) string {
			return fmt.Sprintf(ai.SentimentAnalysisPrompt, text)
		},
	},
	KindFactCheck: {
		name:        "fact_check",
		description: "Factual accuracy and flagged claims",
		build: func(text string, _ Input) string {
			return fmt.Sprintf(ai.FactCheckPrompt, text)
		},
	},
	KindHateSpeech: {
		name:        "hate_speech",
		description: "Hate speech screening result",
		build: func(text string, _ Input) string {
			return fmt.Sprintf(ai.HateSpeechPrompt, text)
		},
	},
}

// Invoke implements Model.
func (m *LLM) Invoke(ctx context.Context, kind string, input Input, out any) error {
	p, ok := prompts[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}

	text, err := ai.TruncateTokens(input.Text, m.encoder, m.maxTokens)
	if err != nil {
		return fmt.Errorf("failed to truncate model input: %w", err)
	}

	var opts []ai.GenerateOption
	if m.model != "" {
		opts = append(opts, ai.WithModel(m.model))
	}
	return m.client.GenerateCompletionWithFormat(ctx, p.name, p.description, p.build(text, input), out, opts...)
}
