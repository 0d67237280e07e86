package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/polisight/backend/pkg/analysis/model"
	"github.com/polisight/backend/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// DefaultBiasPerspectives are the independent scorers of the bias ensemble.
var DefaultBiasPerspectives = []string{"progressive", "conservative", "centrist"}

// directionThreshold is the mean signed lean beyond which text counts as
// slanted.
const directionThreshold = 0.1

// BiasStage scores political bias with an ensemble of independent scorers
// run concurrently. Failing scorers are left out of the aggregate; the stage
// fails only if every scorer fails.
type BiasStage struct {
	model        model.Model
	perspectives []string
}

func NewBiasStage(m model.Model, perspectives ...string) *BiasStage {
	if len(perspectives) == 0 {
		perspectives = DefaultBiasPerspectives
	}
	return &BiasStage{model: m, perspectives: perspectives}
}

func (s *BiasStage) Name() StageName { return BiasAnalysis }
func (s *BiasStage) Reads() []Key    { return []Key{KeyText} }
func (s *BiasStage) Writes() []Key   { return []Key{KeyBias} }

func (s *BiasStage) Run(ctx context.Context, actx *Context) (Result, error) {
	var (
		mu     sync.Mutex
		scores = make(map[string]float64, len(s.perspectives))
		leans  = make(map[string]float64, len(s.perspectives))
		errs   []error
	)

	// scorer errors are collected, not propagated, so one failure does not
	// cancel the others
	g, gCtx := errgroup.WithContext(ctx)
	for _, perspective := range s.perspectives {
		g.Go(func() error {
			var out model.BiasScore
			err := s.model.Invoke(gCtx, model.KindBias, model.Input{Text: actx.Text, Perspective: perspective}, &out)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Debug("[Analysis] Bias scorer failed", "perspective", perspective, "err", err)
				errs = append(errs, fmt.Errorf("%s: %w", perspective, err))
				return nil
			}
			score := clamp(out.Score, 0, 1)
			scores[perspective] = score
			leans[perspective] = score * directionSign(out.Direction)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("all bias scorers failed: %w", errors.Join(errs...))
	}

	mean, variance := meanVariance(scores)
	lean, _ := meanVariance(leans)
	return BiasResult{
		Score:     mean,
		Variance:  variance,
		Direction: biasDirection(lean),
		Scorers:   scores,
	}, nil
}

func meanVariance(scores map[string]float64) (float64, float64) {
	n := float64(len(scores))
	var sum float64
	for _, v := range scores {
		sum += v
	}
	mean := sum / n

	var sq float64
	for _, v := range scores {
		sq += (v - mean) * (v - mean)
	}
	return mean, sq / n
}

func directionSign(direction string) float64 {
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "left":
		return -1
	case "right":
		return 1
	default:
		return 0
	}
}

func biasDirection(lean float64) string {
	switch {
	case lean <= -directionThreshold:
		return "left"
	case lean >= directionThreshold:
		return "right"
	default:
		return "center"
	}
}
