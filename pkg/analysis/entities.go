package analysis

import (
	"context"
	"sort"
	"strings"

	"github.com/polisight/backend/internal/util"
	"github.com/polisight/backend/pkg/analysis/model"
)

// EntityStage extracts named entities from the text.
type EntityStage struct {
	model model.Model
}

func NewEntityStage(m model.Model) *EntityStage {
	return &EntityStage{model: m}
}

func (s *EntityStage) Name() StageName { return EntityExtraction }
func (s *EntityStage) Reads() []Key    { return []Key{KeyText} }
func (s *EntityStage) Writes() []Key   { return []Key{KeyEntities} }

func (s *EntityStage) Run(ctx context.Context, actx *Context) (Result, error) {
	var out model.Entities
	if err := s.model.Invoke(ctx, model.KindEntities, model.Input{Text: actx.Text}, &out); err != nil {
		return nil, err
	}
	return EntityResult{Entities: locateEntities(actx.Text, out.Entities)}, nil
}

// ParseLabel normalizes a model label such as "government body".
func ParseLabel(raw string) (Label, bool) {
	l := Label(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), " ", "_"))
	_, ok := l.NodeType()
	return l, ok
}

// locateEntities maps model entities onto the text. Entities with an unknown
// label or not found in the text are dropped, duplicates keep the first
// mention.
func locateEntities(text string, found []model.Entity) []Entity {
	seen := make(map[string]struct{}, len(found))
	entities := make([]Entity, 0, len(found))

	for _, e := range found {
		label, ok := ParseLabel(e.Label)
		if !ok {
			continue
		}
		name := util.CollapseWhitespace(e.Text)
		if name == "" {
			continue
		}
		start := strings.Index(text, name)
		if start < 0 {
			continue
		}

		ent := Entity{Text: name, Label: label, Span: Span{Start: start, End: start + len(name)}}
		key := NodeKey(ent)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		entities = append(entities, ent)
	}

	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Span.Start < entities[j].Span.Start
	})
	return entities
}

func toModelEntities(entities []Entity) []model.Entity {
	out := make([]model.Entity, len(entities))
	for i, e := range entities {
		out[i] = model.Entity{Text: e.Text, Label: string(e.Label)}
	}
	return out
}
