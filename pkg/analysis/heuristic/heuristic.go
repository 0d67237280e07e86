// Package heuristic implements model.Model with deterministic patterns and
// lexicons. It needs no network access and serves as the offline default.
package heuristic

import (
	"context"
	"fmt"

	"github.com/polisight/backend/pkg/analysis/model"
)

// Model is a rule-based model.Model. The zero value is ready to use.
type Model struct{}

// New returns a heuristic model.
func New() *Model {
	return &Model{}
}

func (m *Model) Invoke(ctx context.Context, kind string, input model.Input, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch kind {
	case model.KindEntities:
		return assign(out, model.Entities{Entities: extractEntities(input.Text)})
	case model.KindRelationships:
		return assign(out, model.Relationships{Relationships: extractRelationships(input.Text, input.Entities)})
	case model.KindBias:
		return assign(out, scoreBias(input.Text, input.Perspective))
	case model.KindSentiment:
		return assign(out, scoreSentiment(input.Text))
	case model.KindFactCheck:
		return assign(out, checkFacts(input.Text))
	case model.KindHateSpeech:
		return assign(out, detectHateSpeech(input.Text))
	default:
		return fmt.Errorf("%w: %s", model.ErrUnsupportedKind, kind)
	}
}

func assign[T any](out any, v T) error {
	p, ok := out.(*T)
	if !ok || p == nil {
		return fmt.Errorf("heuristic: expected *%T output, got %T", v, out)
	}
	*p = v
	return nil
}
