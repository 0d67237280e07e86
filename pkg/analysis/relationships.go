package analysis

import (
	"context"
	"strings"

	"github.com/polisight/backend/pkg/analysis/model"
	"github.com/polisight/backend/pkg/schema"
)

// ExtractablePredicates are the relationship types a model may report.
// MENTIONS and RELATED_TO are produced by the system itself.
var ExtractablePredicates = []string{
	schema.Sponsors,
	schema.VotedOn,
	schema.MemberOf,
	schema.AffiliatedWith,
	schema.MadeStatement,
	schema.AppearedIn,
	schema.Posted,
}

// RelationshipStage extracts relationships between the known entities.
type RelationshipStage struct {
	model    model.Model
	registry *schema.Registry
}

func NewRelationshipStage(m model.Model, registry *schema.Registry) *RelationshipStage {
	if registry == nil {
		registry = schema.Default()
	}
	return &RelationshipStage{model: m, registry: registry}
}

func (s *RelationshipStage) Name() StageName { return RelationshipExtraction }
func (s *RelationshipStage) Reads() []Key    { return []Key{KeyText, KeyEntities} }
func (s *RelationshipStage) Writes() []Key   { return []Key{KeyRelationships} }

func (s *RelationshipStage) Run(ctx context.Context, actx *Context) (Result, error) {
	entities := actx.Entities()
	if len(entities) < 2 {
		return RelationshipResult{Relationships: []Relationship{}}, nil
	}

	var out model.Relationships
	input := model.Input{Text: actx.Text, Entities: toModelEntities(entities)}
	if err := s.model.Invoke(ctx, model.KindRelationships, input, &out); err != nil {
		return nil, err
	}

	byName := make(map[string]Entity, len(entities))
	for _, e := range entities {
		if _, ok := byName[strings.ToLower(e.Text)]; !ok {
			byName[strings.ToLower(e.Text)] = e
		}
	}

	rels := make([]Relationship, 0, len(out.Relationships))
	seen := make(map[string]struct{})
	for _, r := range out.Relationships {
		source, ok := byName[strings.ToLower(strings.TrimSpace(r.Source))]
		if !ok {
			continue
		}
		target, ok := byName[strings.ToLower(strings.TrimSpace(r.Target))]
		if !ok || NodeKey(source) == NodeKey(target) {
			continue
		}
		predicate := strings.ToUpper(strings.TrimSpace(r.Predicate))
		if !isExtractable(predicate) {
			continue
		}

		// models sometimes report the passive direction
		if !s.accepts(predicate, source, target) {
			if !s.accepts(predicate, target, source) {
				continue
			}
			source, target = target, source
		}

		key := predicate + "|" + NodeKey(source) + "|" + NodeKey(target)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		rels = append(rels, Relationship{
			Source:      source.Text,
			SourceLabel: source.Label,
			Target:      target.Text,
			TargetLabel: target.Label,
			Predicate:   predicate,
			Confidence:  clamp(r.Confidence, 0, 1),
		})
	}

	return RelationshipResult{Relationships: rels}, nil
}

func (s *RelationshipStage) accepts(predicate string, from, to Entity) bool {
	fromType, ok := from.Label.NodeType()
	if !ok {
		return false
	}
	toType, ok := to.Label.NodeType()
	if !ok {
		return false
	}
	return s.registry.AcceptsEndpoints(predicate, fromType, toType)
}

func isExtractable(predicate string) bool {
	for _, p := range ExtractablePredicates {
		if p == predicate {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
