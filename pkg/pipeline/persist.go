package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/polisight/backend/pkg/analysis"
	"github.com/polisight/backend/pkg/graphstore"
	"github.com/polisight/backend/pkg/logger"
	"github.com/polisight/backend/pkg/schema"
)

type extraction struct {
	entities      int
	relationships int
}

// entityLocks serializes find-or-create of the same entity across
// concurrently processed documents. Keys are striped over a fixed set of
// mutexes.
type entityLocks [64]sync.Mutex

func (l *entityLocks) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &l[h.Sum32()%uint32(len(l))]
	mu.Lock()
	return mu.Unlock
}

// fatal reports whether a write error must fail the document. Validation
// errors only drop the offending element.
func fatal(err error) bool {
	return !errors.Is(err, graphstore.ErrValidationFailed)
}

// persistExtraction writes extracted entities and relationships. Entities
// reuse an existing node with the exact same name; a relationship already
// present between the same nodes is reused as well.
func (r *run) persistExtraction(ctx context.Context) (extraction, error) {
	var counts extraction
	now := time.Now().UTC().Format(time.RFC3339)

	for _, e := range r.actx.Entities() {
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		ref, err := r.upsertEntity(ctx, e, now)
		if err != nil {
			if fatal(err) {
				return counts, fmt.Errorf("persist entity %q: %w", e.Text, err)
			}
			logger.Warn("[Pipeline] Entity rejected", "document_id", r.doc.ID, "entity", e.Text, "label", e.Label, "err", err)
			continue
		}
		r.actx.SetNode(e, ref)
		counts.entities++
	}

	for _, rel := range r.actx.Relationships() {
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		from, ok := r.actx.Node(analysis.Entity{Text: rel.Source, Label: rel.SourceLabel})
		if !ok {
			continue
		}
		to, ok := r.actx.Node(analysis.Entity{Text: rel.Target, Label: rel.TargetLabel})
		if !ok {
			continue
		}

		err := r.ensureRelationship(ctx, rel.Predicate, from, to, map[string]any{
			"confidence":      rel.Confidence,
			"source_document": r.doc.ID,
			"created_at":      now,
		})
		if err != nil {
			if fatal(err) {
				return counts, fmt.Errorf("persist %s relationship: %w", rel.Predicate, err)
			}
			logger.Warn("[Pipeline] Relationship rejected", "document_id", r.doc.ID, "type", rel.Predicate, "err", err)
			continue
		}
		counts.relationships++
	}

	logger.Debug("[Pipeline] Extraction persisted", "document_id", r.doc.ID, "entities", counts.entities, "relationships", counts.relationships)
	return counts, nil
}

func (r *run) upsertEntity(ctx context.Context, e analysis.Entity, now string) (graphstore.NodeRef, error) {
	nodeType, ok := e.Label.NodeType()
	if !ok {
		return graphstore.NodeRef{}, fmt.Errorf("%w: unknown label %s", graphstore.ErrValidationFailed, e.Label)
	}

	unlock := r.p.locks.lock(nodeType + ":" + e.Text)
	defer unlock()

	ref, found, err := r.p.store.FindNode(ctx, nodeType, e.Text)
	if err != nil || found {
		return ref, err
	}
	return r.p.store.CreateNode(ctx, nodeType, map[string]any{
		"name":            e.Text,
		"source_document": r.doc.ID,
		"created_at":      now,
	})
}

// ensureRelationship creates relType from -> to unless one exists already.
func (r *run) ensureRelationship(ctx context.Context, relType string, from, to graphstore.NodeRef, attrs map[string]any) error {
	existing, err := r.p.store.Query(ctx, graphstore.QueryDirectRelationships, map[string]any{"a": from.ID, "b": to.ID})
	if err != nil {
		return err
	}
	for _, rec := range existing {
		if graphstore.StringValue(rec, "type") == relType {
			return nil
		}
	}
	_, err = r.p.store.CreateRelationship(ctx, relType, from, to, attrs)
	return err
}

// persistDocument upserts the Document node with the derived scores and
// links it to every entity of the document. Any failure is fatal.
func (r *run) persistDocument(ctx context.Context, counts extraction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attrs := documentAttributes(r, counts)

	ref, found, err := r.p.store.FindNode(ctx, schema.Document, r.doc.ID)
	if err != nil {
		return fmt.Errorf("find document node: %w", err)
	}
	if found {
		if _, err := r.p.store.UpdateNode(ctx, schema.Document, ref.ID, attrs); err != nil {
			return fmt.Errorf("update document node: %w", err)
		}
	} else {
		maps.DeleteFunc(attrs, func(_ string, v any) bool { return v == nil })
		attrs["id"] = r.doc.ID
		attrs["created_at"] = time.Now().UTC().Format(time.RFC3339)
		ref, err = r.p.store.CreateNode(ctx, schema.Document, attrs)
		if err != nil {
			return fmt.Errorf("create document node: %w", err)
		}
	}

	seen := make(map[string]struct{})
	for _, e := range r.actx.Entities() {
		node, ok := r.actx.Node(e)
		if !ok {
			continue
		}
		if _, ok := seen[node.ID]; ok {
			continue
		}
		seen[node.ID] = struct{}{}

		mentions := max(1, strings.Count(r.doc.Text, e.Text))
		if err := r.ensureRelationship(ctx, schema.Mentions, ref, node, map[string]any{"count": mentions}); err != nil {
			return fmt.Errorf("link %q: %w", e.Text, err)
		}
	}
	return nil
}

func documentAttributes(r *run, counts extraction) map[string]any {
	attrs := map[string]any{
		"entity_count":       counts.entities,
		"relationship_count": counts.relationships,
	}
	if r.doc.SourceType != "" {
		attrs["source_type"] = r.doc.SourceType
	}
	if title := r.doc.Title(); title != "" {
		attrs["title"] = title
	}

	// A stage that failed on this run clears what an earlier run stored, so
	// a re-ingested document never keeps a stale score.
	actx := r.actx
	if bias, ok := analysis.ResultOf[analysis.BiasResult](actx, analysis.BiasAnalysis); ok {
		attrs["bias_score"] = bias.Score
		attrs["bias_variance"] = bias.Variance
		attrs["bias_direction"] = bias.Direction
	} else {
		clearAttributes(attrs, "bias_score", "bias_variance", "bias_direction")
	}
	if s, ok := analysis.ResultOf[analysis.SentimentResult](actx, analysis.SentimentAnalysis); ok {
		attrs["sentiment_label"] = s.Label
		attrs["sentiment_polarity"] = s.Polarity
	} else {
		clearAttributes(attrs, "sentiment_label", "sentiment_polarity")
	}
	if f, ok := analysis.ResultOf[analysis.FactCheckResult](actx, analysis.FactCheck); ok {
		attrs["factual_accuracy"] = f.FactualAccuracy
		attrs["flagged_claims"] = f.FlaggedClaims
	} else {
		clearAttributes(attrs, "factual_accuracy", "flagged_claims")
	}
	if h, ok := analysis.ResultOf[analysis.HateSpeechResult](actx, analysis.HateSpeechDetection); ok {
		attrs["has_hate_speech"] = h.HasHateSpeech
		attrs["hate_speech_severity"] = h.Severity
		attrs["toxicity"] = h.Toxicity
	} else {
		clearAttributes(attrs, "has_hate_speech", "hate_speech_severity", "toxicity")
	}
	return attrs
}

// clearAttributes marks keys for removal. UpdateNode drops nil attributes.
func clearAttributes(attrs map[string]any, keys ...string) {
	for _, k := range keys {
		attrs[k] = nil
	}
}
