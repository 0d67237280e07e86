package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type snapshot struct {
	Nodes         []Node         `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}

// Snapshot writes the whole graph as JSON.
func (b *Backend) Snapshot(w io.Writer) error {
	snap := snapshot{
		Nodes:         b.Nodes(""),
		Relationships: b.Relationships(""),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// Restore replaces the graph with the content of a JSON snapshot.
// Relationships referencing unknown nodes are rejected.
func (b *Backend) Restore(r io.Reader) error {
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode graph snapshot: %w", err)
	}

	nodes := make(map[string]*Node, len(snap.Nodes))
	order := make([]string, 0, len(snap.Nodes))
	for i := range snap.Nodes {
		n := snap.Nodes[i]
		if n.ID == "" {
			return fmt.Errorf("graph snapshot: node %d has no id", i)
		}
		if _, ok := nodes[n.ID]; ok {
			return fmt.Errorf("graph snapshot: duplicate node %q", n.ID)
		}
		nodes[n.ID] = &n
		order = append(order, n.ID)
	}

	rels := make([]*Relationship, 0, len(snap.Relationships))
	adj := make(map[string][]int)
	for i := range snap.Relationships {
		r := snap.Relationships[i]
		if _, ok := nodes[r.From]; !ok {
			return fmt.Errorf("graph snapshot: relationship %q references unknown node %q", r.ID, r.From)
		}
		if _, ok := nodes[r.To]; !ok {
			return fmt.Errorf("graph snapshot: relationship %q references unknown node %q", r.ID, r.To)
		}
		rels = append(rels, &r)
		adj[r.From] = append(adj[r.From], i)
		if r.To != r.From {
			adj[r.To] = append(adj[r.To], i)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes = nodes
	b.order = order
	b.rels = rels
	b.adj = adj
	return nil
}

// LoadFile restores the graph from path. A missing file leaves the graph empty.
func (b *Backend) LoadFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return b.Restore(f)
}

// SaveFile writes a snapshot to path, replacing it atomically.
func (b *Backend) SaveFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".graph-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := b.Snapshot(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
