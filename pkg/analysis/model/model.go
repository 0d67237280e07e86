// Package model defines the contract between analysis stages and whatever
// produces their raw judgements: a deterministic heuristic model or an LLM.
package model

import (
	"context"
	"errors"
)

// Kinds of model invocations. They match the analysis stage names.
const (
	KindEntities      = "entity-extraction"
	KindRelationships = "relationship-extraction"
	KindBias          = "bias-analysis"
	KindSentiment     = "sentiment-analysis"
	KindFactCheck     = "fact-check"
	KindHateSpeech    = "hate-speech-detection"
)

// ErrUnsupportedKind is returned for an invocation kind a model cannot serve.
var ErrUnsupportedKind = errors.New("unsupported model invocation")

// Input is what a stage hands to the model.
//
// Perspective selects one scorer of an ensemble, e.g. a bias perspective.
type Input struct {
	Text        string
	Entities    []Entity
	Perspective string
}

// Model produces the raw output of one analysis kind into out, which must
// be a pointer to the output type documented for that kind.
type Model interface {
	Invoke(ctx context.Context, kind string, input Input, out any) error
}

// Entity is a named entity as reported by a model.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Entities is the output of KindEntities.
type Entities struct {
	Entities []Entity `json:"entities"`
}

// Relationship is a relationship as reported by a model.
type Relationship struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Predicate  string  `json:"predicate"`
	Confidence float64 `json:"confidence"`
}

// Relationships is the output of KindRelationships.
type Relationships struct {
	Relationships []Relationship `json:"relationships"`
}

// BiasScore is the output of KindBias for a single perspective. Score is
// the strength of the slant on [0, 1]; Direction is "left", "right" or
// "center".
type BiasScore struct {
	Score     float64 `json:"score"`
	Direction string  `json:"direction"`
}

// Sentiment is the output of KindSentiment.
type Sentiment struct {
	Label    string  `json:"label"`
	Polarity float64 `json:"polarity"`
}

// FactCheck is the output of KindFactCheck.
type FactCheck struct {
	FactualAccuracy float64  `json:"factual_accuracy"`
	FlaggedClaims   []string `json:"flagged_claims"`
}

// HateSpeech is the output of KindHateSpeech.
type HateSpeech struct {
	HasHateSpeech bool     `json:"has_hate_speech"`
	Categories    []string `json:"categories"`
	Severity      string   `json:"severity"`
	Toxicity      float64  `json:"toxicity"`
}
