// Package source defines the document collaborator of the pipeline: where
// ingested documents come from and how raw files become Documents.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when a source has no document with the given id.
var ErrNotFound = errors.New("document not found")

// Document is an ingested political document. The pipeline only reads it.
type Document struct {
	ID         string         `json:"id" validate:"required"`
	Text       string         `json:"text" validate:"required"`
	SourceType string         `json:"source_type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Title returns the "title" metadata entry, if any.
func (d Document) Title() string {
	t, _ := d.Metadata["title"].(string)
	return t
}

// Source fetches documents by id.
type Source interface {
	Fetch(ctx context.Context, id string) (Document, error)
}

// Store is a Source that also keeps documents handed to it.
type Store interface {
	Source
	Save(ctx context.Context, doc Document) error
}

// Cached wraps a Source, remembering fetched documents and collapsing
// concurrent fetches of the same id.
type Cached struct {
	source Source

	cache   map[string]Document
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewCached wraps source with an in-process cache.
func NewCached(source Source) *Cached {
	return &Cached{
		source: source,
		cache:  make(map[string]Document),
	}
}

func (c *Cached) Fetch(ctx context.Context, id string) (Document, error) {
	c.cacheMu.RLock()
	if doc, ok := c.cache[id]; ok {
		c.cacheMu.RUnlock()
		return doc, nil
	}
	c.cacheMu.RUnlock()

	result, err, _ := c.group.Do(id, func() (any, error) {
		doc, err := c.source.Fetch(ctx, id)
		if err != nil {
			return Document{}, err
		}
		c.cacheMu.Lock()
		c.cache[id] = doc
		c.cacheMu.Unlock()
		return doc, nil
	})
	return result.(Document), err
}

// FetchAll fetches ids with at most limit concurrent requests. Documents are
// returned in the order of ids; missing or failing documents are skipped and
// reported in the joined error.
func FetchAll(ctx context.Context, src Source, ids []string, limit int) ([]Document, error) {
	docs := make([]Document, len(ids))
	errs := make([]error, len(ids))

	g, gCtx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, id := range ids {
		g.Go(func() error {
			doc, err := src.Fetch(gCtx, id)
			if err != nil {
				errs[i] = fmt.Errorf("fetch %s: %w", id, err)
				return nil
			}
			docs[i] = doc
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Document, 0, len(ids))
	for i := range ids {
		if errs[i] == nil {
			out = append(out, docs[i])
		}
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, errors.Join(errs...)
}

// Memory is a Store backed by a map.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemory creates a Memory store holding docs.
func NewMemory(docs ...Document) *Memory {
	m := &Memory{docs: make(map[string]Document, len(docs))}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return m
}

func (m *Memory) Fetch(ctx context.Context, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, nil
}

func (m *Memory) Save(ctx context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}
