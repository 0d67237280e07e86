package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/polisight/backend/pkg/graphstore"
	"github.com/polisight/backend/pkg/schema"
)

type queryFunc func(b *Backend, params map[string]any) ([]graphstore.Record, error)

var namedQueries = map[string]queryFunc{
	graphstore.NormalizeQuery(graphstore.QueryDirectRelationships): directRelationships,
	graphstore.NormalizeQuery(graphstore.QuerySharedNeighbors):     sharedNeighbors,
	graphstore.NormalizeQuery(graphstore.QueryRelationshipCounts):  relationshipCounts,
	graphstore.NormalizeQuery(graphstore.QueryMemberships):         memberships,
}

// Query evaluates one of the named graphstore queries. Any other expression
// fails with graphstore.ErrQuerySyntax.
func (b *Backend) Query(ctx context.Context, expr string, params map[string]any) ([]graphstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fn, ok := namedQueries[graphstore.NormalizeQuery(expr)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported expression", graphstore.ErrQuerySyntax)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	return fn(b, params)
}

func stringParam(params map[string]any, name string) (string, error) {
	v, ok := params[name].(string)
	if !ok {
		return "", fmt.Errorf("%w: missing parameter $%s", graphstore.ErrQuerySyntax, name)
	}
	return v, nil
}

// neighbor returns the id on the other end of rel as seen from id.
func (r *Relationship) neighbor(id string) string {
	if r.From == id {
		return r.To
	}
	return r.From
}

func directRelationships(b *Backend, params map[string]any) ([]graphstore.Record, error) {
	a, err := stringParam(params, "a")
	if err != nil {
		return nil, err
	}
	other, err := stringParam(params, "b")
	if err != nil {
		return nil, err
	}

	records := []graphstore.Record{}
	for _, idx := range b.adj[a] {
		r := b.rels[idx]
		if r.neighbor(a) != other {
			continue
		}
		records = append(records, graphstore.Record{"id": r.ID, "type": r.Type})
	}
	return records, nil
}

func sharedNeighbors(b *Backend, params map[string]any) ([]graphstore.Record, error) {
	a, err := stringParam(params, "a")
	if err != nil {
		return nil, err
	}
	other, err := stringParam(params, "b")
	if err != nil {
		return nil, err
	}

	neighborsOf := func(id string) map[string]struct{} {
		set := make(map[string]struct{})
		for _, idx := range b.adj[id] {
			n := b.rels[idx].neighbor(id)
			if n == a || n == other {
				continue
			}
			if node, ok := b.nodes[n]; ok && node.Type == schema.Document {
				continue
			}
			set[n] = struct{}{}
		}
		return set
	}

	left := neighborsOf(a)
	shared := 0
	for n := range neighborsOf(other) {
		if _, ok := left[n]; ok {
			shared++
		}
	}
	return []graphstore.Record{{"shared": int64(shared)}}, nil
}

func relationshipCounts(b *Backend, params map[string]any) ([]graphstore.Record, error) {
	id, err := stringParam(params, "id")
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, idx := range b.adj[id] {
		r := b.rels[idx]
		if r.From == id {
			counts[r.Type]++
		}
	}

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	records := make([]graphstore.Record, 0, len(types))
	for _, t := range types {
		records = append(records, graphstore.Record{"type": t, "count": counts[t]})
	}
	return records, nil
}

func memberships(b *Backend, params map[string]any) ([]graphstore.Record, error) {
	id, err := stringParam(params, "id")
	if err != nil {
		return nil, err
	}

	records := []graphstore.Record{}
	for _, idx := range b.adj[id] {
		r := b.rels[idx]
		if r.From != id || r.Type != schema.MemberOf {
			continue
		}
		body, ok := b.nodes[r.To]
		if !ok || body.Type != schema.GovernmentBody {
			continue
		}
		name, _ := body.Attrs["name"].(string)
		records = append(records, graphstore.Record{"id": body.ID, "name": name})
	}
	sort.Slice(records, func(i, j int) bool {
		return graphstore.StringValue(records[i], "name") < graphstore.StringValue(records[j], "name")
	})
	return records, nil
}
