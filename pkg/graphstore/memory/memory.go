// Package memory is an in-process graph backend. It evaluates the named
// traversal queries of package graphstore natively and can persist the whole
// graph as a JSON snapshot.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/polisight/backend/pkg/graphstore"
)

// Node is a stored node.
type Node struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs"`
}

// Relationship is a stored directed relationship.
type Relationship struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	From  string         `json:"from"`
	To    string         `json:"to"`
	Attrs map[string]any `json:"attrs"`
}

// Backend implements graphstore.Backend with maps guarded by a RWMutex.
type Backend struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
	rels  []*Relationship
	// adjacency by node id, indexes into rels
	adj map[string][]int
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		nodes: make(map[string]*Node),
		adj:   make(map[string][]int),
	}
}

func (b *Backend) InsertNode(ctx context.Context, nodeType, id string, attrs map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.nodes[id]; ok {
		return fmt.Errorf("%w: node %q already exists", graphstore.ErrValidationFailed, id)
	}
	b.nodes[id] = &Node{ID: id, Type: nodeType, Attrs: maps.Clone(attrs)}
	b.order = append(b.order, id)
	return nil
}

func (b *Backend) InsertRelationship(ctx context.Context, relType, id string, from, to graphstore.NodeRef, attrs map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.nodes[from.ID]; !ok {
		return fmt.Errorf("%w: node %q", graphstore.ErrNotFound, from.ID)
	}
	if _, ok := b.nodes[to.ID]; !ok {
		return fmt.Errorf("%w: node %q", graphstore.ErrNotFound, to.ID)
	}

	b.rels = append(b.rels, &Relationship{
		ID:    id,
		Type:  relType,
		From:  from.ID,
		To:    to.ID,
		Attrs: maps.Clone(attrs),
	})
	idx := len(b.rels) - 1
	b.adj[from.ID] = append(b.adj[from.ID], idx)
	if to.ID != from.ID {
		b.adj[to.ID] = append(b.adj[to.ID], idx)
	}
	return nil
}

func (b *Backend) MergeNode(ctx context.Context, nodeType, id string, partial map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[id]
	if !ok || n.Type != nodeType {
		return fmt.Errorf("%w: %s node %q", graphstore.ErrNotFound, nodeType, id)
	}
	if n.Attrs == nil {
		n.Attrs = make(map[string]any, len(partial))
	}
	for k, v := range partial {
		if v == nil {
			delete(n.Attrs, k)
			continue
		}
		n.Attrs[k] = v
	}
	return nil
}

func (b *Backend) NodeType(ctx context.Context, id string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	n, ok := b.nodes[id]
	if !ok {
		return "", false, nil
	}
	return n.Type, true, nil
}

func (b *Backend) LookupNode(ctx context.Context, nodeType, field, value string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, id := range b.order {
		n := b.nodes[id]
		if n.Type != nodeType {
			continue
		}
		if v, ok := n.Attrs[field].(string); ok && v == value {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (b *Backend) Close(context.Context) error {
	return nil
}

// Nodes returns copies of the stored nodes of the given type in insertion
// order. An empty type returns every node.
func (b *Backend) Nodes(nodeType string) []Node {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Node
	for _, id := range b.order {
		n := b.nodes[id]
		if nodeType != "" && n.Type != nodeType {
			continue
		}
		out = append(out, Node{ID: n.ID, Type: n.Type, Attrs: maps.Clone(n.Attrs)})
	}
	return out
}

// Relationships returns copies of the stored relationships of the given type
// in insertion order. An empty type returns every relationship.
func (b *Backend) Relationships(relType string) []Relationship {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Relationship
	for _, r := range b.rels {
		if relType != "" && r.Type != relType {
			continue
		}
		cp := *r
		cp.Attrs = maps.Clone(r.Attrs)
		out = append(out, cp)
	}
	return out
}

// Node returns a copy of the node with the given id.
func (b *Backend) Node(id string) (Node, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n, ok := b.nodes[id]
	if !ok {
		return Node{}, false
	}
	return Node{ID: n.ID, Type: n.Type, Attrs: maps.Clone(n.Attrs)}, true
}

var _ graphstore.Backend = (*Backend)(nil)
