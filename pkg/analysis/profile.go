package analysis

import (
	"context"
	"fmt"

	"github.com/polisight/backend/pkg/graphstore"
	"github.com/polisight/backend/pkg/schema"
)

// ProfileStage builds a profile for every unique person entity from what the
// graph already knows about them.
type ProfileStage struct {
	store graphstore.Store
}

func NewProfileStage(store graphstore.Store) *ProfileStage {
	return &ProfileStage{store: store}
}

func (s *ProfileStage) Name() StageName { return PoliticianProfiling }
func (s *ProfileStage) Reads() []Key    { return []Key{KeyEntities, KeyGraph} }
func (s *ProfileStage) Writes() []Key   { return []Key{KeyProfiles} }

func (s *ProfileStage) Run(ctx context.Context, actx *Context) (Result, error) {
	profiles := []Profile{}
	seen := make(map[string]struct{})

	for _, e := range actx.Entities() {
		if e.Label != LabelPerson {
			continue
		}
		if _, ok := seen[e.Text]; ok {
			continue
		}
		seen[e.Text] = struct{}{}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := s.profile(ctx, actx, e)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", e.Text, err)
		}
		profiles = append(profiles, p)
	}

	return ProfileResult{Profiles: profiles}, nil
}

func (s *ProfileStage) profile(ctx context.Context, actx *Context, e Entity) (Profile, error) {
	p := Profile{Name: e.Text, Memberships: []string{}}

	ref, ok, err := resolveNode(ctx, s.store, actx, e)
	if err != nil || !ok {
		return p, err
	}
	p.NodeID = ref.ID
	p.Found = true

	counts, err := s.store.Query(ctx, graphstore.QueryRelationshipCounts, map[string]any{"id": ref.ID})
	if err != nil {
		return p, err
	}
	for _, rec := range counts {
		n := graphstore.IntValue(rec, "count")
		switch graphstore.StringValue(rec, "type") {
		case schema.Sponsors:
			p.Sponsored = n
		case schema.VotedOn:
			p.Votes = n
		case schema.AffiliatedWith:
			p.Affiliations = n
		}
	}

	bodies, err := s.store.Query(ctx, graphstore.QueryMemberships, map[string]any{"id": ref.ID})
	if err != nil {
		return p, err
	}
	for _, rec := range bodies {
		if name := graphstore.StringValue(rec, "name"); name != "" {
			p.Memberships = append(p.Memberships, name)
		}
	}
	return p, nil
}

// resolveNode finds the graph node of an entity: first the node written
// during this run, then an existing node with the same unique key.
func resolveNode(ctx context.Context, store graphstore.Store, actx *Context, e Entity) (graphstore.NodeRef, bool, error) {
	if ref, ok := actx.Node(e); ok {
		return ref, true, nil
	}
	nodeType, ok := e.Label.NodeType()
	if !ok {
		return graphstore.NodeRef{}, false, nil
	}
	return store.FindNode(ctx, nodeType, e.Text)
}
