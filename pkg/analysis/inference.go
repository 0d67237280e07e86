package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/polisight/backend/pkg/analysis/text"
	"github.com/polisight/backend/pkg/graphstore"
	"github.com/polisight/backend/pkg/logger"
	"github.com/polisight/backend/pkg/schema"
)

// SharedNeighborSaturation is the number of shared neighbors at which an
// inferred relationship reaches full confidence.
const SharedNeighborSaturation = 3

// InferenceStage proposes RELATED_TO relationships between co-occurring
// entities that are not directly connected but share graph neighbors.
// Proposals are written as they are found and never merged with existing
// relationships.
type InferenceStage struct {
	store graphstore.Store
}

func NewInferenceStage(store graphstore.Store) *InferenceStage {
	return &InferenceStage{store: store}
}

func (s *InferenceStage) Name() StageName { return RelationshipInference }
func (s *InferenceStage) Reads() []Key    { return []Key{KeyText, KeyEntities, KeyGraph} }
func (s *InferenceStage) Writes() []Key   { return []Key{KeyInferences, KeyGraph} }

type resolvedEntity struct {
	entity   Entity
	ref      graphstore.NodeRef
	sentence int
}

func (s *InferenceStage) Run(ctx context.Context, actx *Context) (Result, error) {
	resolved, err := s.resolve(ctx, actx)
	if err != nil {
		return nil, err
	}

	inferences := []Inference{}
	seen := make(map[[2]string]struct{})

	for i := 0; i < len(resolved); i++ {
		for j := i + 1; j < len(resolved); j++ {
			a, b := resolved[i], resolved[j]
			if a.ref.ID == b.ref.ID || !coOccur(a, b) {
				continue
			}
			pair := [2]string{a.ref.ID, b.ref.ID}
			if pair[0] > pair[1] {
				pair[0], pair[1] = pair[1], pair[0]
			}
			if _, ok := seen[pair]; ok {
				continue
			}
			seen[pair] = struct{}{}

			if err := ctx.Err(); err != nil {
				return nil, err
			}
			inf, ok, err := s.infer(ctx, a, b)
			if err != nil {
				return nil, fmt.Errorf("infer %q - %q: %w", a.entity.Text, b.entity.Text, err)
			}
			if ok {
				inferences = append(inferences, inf)
			}
		}
	}

	return InferenceResult{Inferences: inferences}, nil
}

// resolve maps entities to graph nodes and to the sentence they occur in.
// Entities not in the graph take no part in inference.
func (s *InferenceStage) resolve(ctx context.Context, actx *Context) ([]resolvedEntity, error) {
	sentences := text.Sentences(actx.Text)

	var resolved []resolvedEntity
	for _, e := range actx.Entities() {
		ref, ok, err := resolveNode(ctx, s.store, actx, e)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", e.Text, err)
		}
		if !ok {
			continue
		}
		sentence := -1
		if e.Span.End > e.Span.Start {
			sentence = text.Of(sentences, e.Span.Start, e.Span.End)
		}
		resolved = append(resolved, resolvedEntity{entity: e, ref: ref, sentence: sentence})
	}
	return resolved, nil
}

// coOccur reports whether two entities share a sentence. An entity without
// a position in the text, such as a seed entity, co-occurs with all others.
func coOccur(a, b resolvedEntity) bool {
	if a.sentence < 0 || b.sentence < 0 {
		return true
	}
	return a.sentence == b.sentence
}

func (s *InferenceStage) infer(ctx context.Context, a, b resolvedEntity) (Inference, bool, error) {
	params := map[string]any{"a": a.ref.ID, "b": b.ref.ID}

	direct, err := s.store.Query(ctx, graphstore.QueryDirectRelationships, params)
	if err != nil {
		return Inference{}, false, err
	}
	if len(direct) > 0 {
		return Inference{}, false, nil
	}

	rows, err := s.store.Query(ctx, graphstore.QuerySharedNeighbors, params)
	if err != nil {
		return Inference{}, false, err
	}
	shared := 0
	if len(rows) > 0 {
		shared = graphstore.IntValue(rows[0], "shared")
	}
	if shared < 1 {
		return Inference{}, false, nil
	}

	confidence := InferenceConfidence(shared)
	rel, err := s.store.CreateRelationship(ctx, schema.RelatedTo, a.ref, b.ref, map[string]any{
		"confidence":       confidence,
		"shared_neighbors": shared,
		"inferred":         true,
	})
	if err != nil {
		return Inference{}, false, err
	}

	logger.Debug("[Analysis] Inferred relationship", "source", a.entity.Text, "target", b.entity.Text, "shared", shared)
	return Inference{
		Source:          a.entity.Text,
		Target:          b.entity.Text,
		RelationshipID:  rel.ID,
		SharedNeighbors: shared,
		Confidence:      confidence,
	}, true, nil
}

// InferenceConfidence is min(1, shared/SharedNeighborSaturation).
func InferenceConfidence(shared int) float64 {
	return math.Min(1, float64(shared)/SharedNeighborSaturation)
}
