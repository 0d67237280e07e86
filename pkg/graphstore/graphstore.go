// Package graphstore defines the knowledge graph contract used by the
// analysis stages and the pipeline, and a Client that enforces the schema
// registry in front of a pluggable Backend.
package graphstore

import (
	"context"
	"errors"
)

var (
	ErrValidationFailed   = errors.New("graph validation failed")
	ErrBackendUnavailable = errors.New("graph backend unavailable")
	ErrNotFound           = errors.New("graph element not found")
	ErrQuerySyntax        = errors.New("graph query syntax error")
)

// NodeRef identifies a stored node.
type NodeRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// RelRef identifies a stored relationship.
type RelRef struct {
	ID   string  `json:"id"`
	Type string  `json:"type"`
	From NodeRef `json:"from"`
	To   NodeRef `json:"to"`
}

// Record is one row returned by Query, keyed by the RETURN aliases.
type Record map[string]any

// Store is the graph contract consumed by stages and the pipeline.
type Store interface {
	CreateNode(ctx context.Context, nodeType string, attrs map[string]any) (NodeRef, error)
	CreateRelationship(ctx context.Context, relType string, from, to NodeRef, attrs map[string]any) (RelRef, error)
	UpdateNode(ctx context.Context, nodeType, id string, partial map[string]any) (NodeRef, error)
	Query(ctx context.Context, expr string, params map[string]any) ([]Record, error)
	FindNode(ctx context.Context, nodeType, key string) (NodeRef, bool, error)
}

// Backend is the storage driver behind a Client. Backends receive input
// that already passed schema validation and must be safe for concurrent use.
// Transport failures are reported wrapped in ErrBackendUnavailable.
type Backend interface {
	InsertNode(ctx context.Context, nodeType, id string, attrs map[string]any) error
	InsertRelationship(ctx context.Context, relType, id string, from, to NodeRef, attrs map[string]any) error
	// MergeNode sets the attributes of partial on the node and removes
	// those whose value is nil.
	MergeNode(ctx context.Context, nodeType, id string, partial map[string]any) error
	// NodeType returns the type of the node with the given id.
	NodeType(ctx context.Context, id string) (string, bool, error)
	// LookupNode returns the id of the node of nodeType whose attribute
	// field equals value.
	LookupNode(ctx context.Context, nodeType, field, value string) (string, bool, error)
	Query(ctx context.Context, expr string, params map[string]any) ([]Record, error)
	Close(ctx context.Context) error
}
