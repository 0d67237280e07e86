package analysis

import (
	"context"
	"strings"

	"github.com/polisight/backend/pkg/analysis/model"
)

// SentimentStage labels the sentiment of the text.
type SentimentStage struct {
	model model.Model
}

func NewSentimentStage(m model.Model) *SentimentStage {
	return &SentimentStage{model: m}
}

func (s *SentimentStage) Name() StageName { return SentimentAnalysis }
func (s *SentimentStage) Reads() []Key    { return []Key{KeyText} }
func (s *SentimentStage) Writes() []Key   { return []Key{KeySentiment} }

func (s *SentimentStage) Run(ctx context.Context, actx *Context) (Result, error) {
	var out model.Sentiment
	if err := s.model.Invoke(ctx, model.KindSentiment, model.Input{Text: actx.Text}, &out); err != nil {
		return nil, err
	}

	polarity := clamp(out.Polarity, -1, 1)
	label := strings.ToLower(strings.TrimSpace(out.Label))
	switch label {
	case "positive", "negative", "neutral":
	default:
		label = SentimentLabel(polarity)
	}
	return SentimentResult{Label: label, Polarity: polarity}, nil
}

// SentimentLabel derives a label from a polarity.
func SentimentLabel(polarity float64) string {
	switch {
	case polarity > 0.1:
		return "positive"
	case polarity < -0.1:
		return "negative"
	default:
		return "neutral"
	}
}

// FactCheckStage estimates factual accuracy and flags dubious claims.
type FactCheckStage struct {
	model model.Model
}

func NewFactCheckStage(m model.Model) *FactCheckStage {
	return &FactCheckStage{model: m}
}

func (s *FactCheckStage) Name() StageName { return FactCheck }
func (s *FactCheckStage) Reads() []Key    { return []Key{KeyText, KeyEntities} }
func (s *FactCheckStage) Writes() []Key   { return []Key{KeyFactCheck} }

func (s *FactCheckStage) Run(ctx context.Context, actx *Context) (Result, error) {
	var out model.FactCheck
	input := model.Input{Text: actx.Text, Entities: toModelEntities(actx.Entities())}
	if err := s.model.Invoke(ctx, model.KindFactCheck, input, &out); err != nil {
		return nil, err
	}

	claims := make([]string, 0, len(out.FlaggedClaims))
	for _, c := range out.FlaggedClaims {
		if c = strings.TrimSpace(c); c != "" {
			claims = append(claims, c)
		}
	}
	return FactCheckResult{
		FactualAccuracy: clamp(out.FactualAccuracy, 0, 1),
		FlaggedClaims:   claims,
	}, nil
}

// HateSpeechStage screens the text for hate speech and toxicity.
type HateSpeechStage struct {
	model model.Model
}

func NewHateSpeechStage(m model.Model) *HateSpeechStage {
	return &HateSpeechStage{model: m}
}

func (s *HateSpeechStage) Name() StageName { return HateSpeechDetection }
func (s *HateSpeechStage) Reads() []Key    { return []Key{KeyText} }
func (s *HateSpeechStage) Writes() []Key   { return []Key{KeyHateSpeech} }

var severities = map[string]struct{}{"none": {}, "low": {}, "medium": {}, "high": {}}

func (s *HateSpeechStage) Run(ctx context.Context, actx *Context) (Result, error) {
	var out model.HateSpeech
	if err := s.model.Invoke(ctx, model.KindHateSpeech, model.Input{Text: actx.Text}, &out); err != nil {
		return nil, err
	}

	categories := make([]string, 0, len(out.Categories))
	for _, c := range out.Categories {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			categories = append(categories, c)
		}
	}

	severity := strings.ToLower(strings.TrimSpace(out.Severity))
	if _, ok := severities[severity]; !ok {
		severity = "none"
		if out.HasHateSpeech {
			severity = "medium"
		}
	}
	if !out.HasHateSpeech && severity != "none" && len(categories) == 0 {
		severity = "none"
	}

	return HateSpeechResult{
		HasHateSpeech: out.HasHateSpeech,
		Categories:    categories,
		Severity:      severity,
		Toxicity:      clamp(out.Toxicity, 0, 1),
	}, nil
}
