package graphstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/polisight/backend/internal/util"
	"github.com/polisight/backend/pkg/logger"
	"github.com/polisight/backend/pkg/schema"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Client validates every write against the schema registry before handing
// it to the Backend, and retries backend outages with exponential backoff.
//
// A Client should be created using NewClient.
type Client struct {
	backend   Backend
	registry  *schema.Registry
	maxTries  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewClientParams defines the configuration for creating a Client.
//
// MaxRetries is the number of attempts made for a call failing with
// ErrBackendUnavailable (default 3). BaseDelay is the first backoff delay
// and doubles on each retry up to MaxDelay.
type NewClientParams struct {
	Backend    Backend
	Registry   *schema.Registry
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// NewClient creates a Client over the given backend.
//
// Example:
//
//	client, err := graphstore.NewClient(graphstore.NewClientParams{
//		Backend:  memory.New(),
//		Registry: schema.Default(),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewClient(params NewClientParams) (*Client, error) {
	if params.Backend == nil {
		return nil, fmt.Errorf("graph backend is required")
	}
	registry := params.Registry
	if registry == nil {
		registry = schema.Default()
	}
	maxTries := params.MaxRetries
	if maxTries <= 0 {
		maxTries = 3
	}
	baseDelay := params.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	maxDelay := params.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	return &Client{
		backend:   params.Backend,
		registry:  registry,
		maxTries:  maxTries,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
	}, nil
}

// Registry returns the schema registry the client validates against.
func (c *Client) Registry() *schema.Registry {
	return c.registry
}

// Close releases the backend.
func (c *Client) Close(ctx context.Context) error {
	return c.backend.Close(ctx)
}

// CreateNode validates attrs against nodeType and stores a new node. An "id"
// attribute supplied by the caller is used as the node id, otherwise one is
// generated.
func (c *Client) CreateNode(ctx context.Context, nodeType string, attrs map[string]any) (NodeRef, error) {
	if !c.registry.ValidateNode(nodeType, attrs) {
		return NodeRef{}, fmt.Errorf("%w: invalid %s node", ErrValidationFailed, nodeType)
	}

	props := maps.Clone(attrs)
	id, _ := props["id"].(string)
	if id == "" {
		generated, err := gonanoid.New()
		if err != nil {
			return NodeRef{}, fmt.Errorf("failed to generate node id: %w", err)
		}
		id = generated
		props["id"] = id
	}

	err := c.retry(ctx, func(ctx context.Context) error {
		return c.backend.InsertNode(ctx, nodeType, id, props)
	})
	if err != nil {
		return NodeRef{}, err
	}
	return NodeRef{ID: id, Type: nodeType}, nil
}

// CreateRelationship stores a relationship between two existing nodes.
// Endpoint existence is checked first and reported as ErrNotFound even when
// attrs are invalid.
func (c *Client) CreateRelationship(ctx context.Context, relType string, from, to NodeRef, attrs map[string]any) (RelRef, error) {
	fromType, err := c.nodeType(ctx, from)
	if err != nil {
		return RelRef{}, err
	}
	toType, err := c.nodeType(ctx, to)
	if err != nil {
		return RelRef{}, err
	}

	if !c.registry.ValidateRelationship(relType, attrs) {
		return RelRef{}, fmt.Errorf("%w: invalid %s relationship", ErrValidationFailed, relType)
	}
	if !c.registry.AcceptsEndpoints(relType, fromType, toType) {
		return RelRef{}, fmt.Errorf("%w: %s does not connect %s to %s", ErrValidationFailed, relType, fromType, toType)
	}

	props := maps.Clone(attrs)
	if props == nil {
		props = map[string]any{}
	}
	id, err := gonanoid.New()
	if err != nil {
		return RelRef{}, fmt.Errorf("failed to generate relationship id: %w", err)
	}
	props["id"] = id

	from.Type = fromType
	to.Type = toType
	err = c.retry(ctx, func(ctx context.Context) error {
		return c.backend.InsertRelationship(ctx, relType, id, from, to, props)
	})
	if err != nil {
		return RelRef{}, err
	}
	return RelRef{ID: id, Type: relType, From: from, To: to}, nil
}

// UpdateNode merges partial into the node with the given id. Only attributes
// allowed on nodeType may be set. A nil value removes the attribute.
func (c *Client) UpdateNode(ctx context.Context, nodeType, id string, partial map[string]any) (NodeRef, error) {
	if !c.registry.ValidatePartial(nodeType, partial) {
		return NodeRef{}, fmt.Errorf("%w: invalid update of %s node", ErrValidationFailed, nodeType)
	}
	if v, ok := partial["id"]; ok && v != id {
		return NodeRef{}, fmt.Errorf("%w: node id cannot change", ErrValidationFailed)
	}

	actual, err := c.nodeType(ctx, NodeRef{ID: id})
	if err != nil {
		return NodeRef{}, err
	}
	if actual != nodeType {
		return NodeRef{}, fmt.Errorf("%w: node %s is a %s", ErrNotFound, id, actual)
	}

	err = c.retry(ctx, func(ctx context.Context) error {
		return c.backend.MergeNode(ctx, nodeType, id, maps.Clone(partial))
	})
	if err != nil {
		return NodeRef{}, err
	}
	return NodeRef{ID: id, Type: nodeType}, nil
}

// Query runs a declarative expression against the backend.
func (c *Client) Query(ctx context.Context, expr string, params map[string]any) ([]Record, error) {
	var records []Record
	err := c.retry(ctx, func(ctx context.Context) error {
		var err error
		records, err = c.backend.Query(ctx, expr, params)
		return err
	})
	return records, err
}

// FindNode looks up a node of nodeType by exact match on the type's unique key.
func (c *Client) FindNode(ctx context.Context, nodeType, key string) (NodeRef, bool, error) {
	nt, ok := c.registry.LookupNodeType(nodeType)
	if !ok || nt.UniqueKey == "" {
		return NodeRef{}, false, fmt.Errorf("%w: %s has no unique key", ErrValidationFailed, nodeType)
	}

	var (
		id    string
		found bool
	)
	err := c.retry(ctx, func(ctx context.Context) error {
		var err error
		id, found, err = c.backend.LookupNode(ctx, nodeType, nt.UniqueKey, key)
		return err
	})
	if err != nil || !found {
		return NodeRef{}, false, err
	}
	return NodeRef{ID: id, Type: nodeType}, true, nil
}

func (c *Client) nodeType(ctx context.Context, ref NodeRef) (string, error) {
	var (
		nodeType string
		found    bool
	)
	err := c.retry(ctx, func(ctx context.Context) error {
		var err error
		nodeType, found, err = c.backend.NodeType(ctx, ref.ID)
		return err
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: node %q", ErrNotFound, ref.ID)
	}
	return nodeType, nil
}

func (c *Client) retry(ctx context.Context, fn func(context.Context) error) error {
	attempt := 0
	_, err := util.RetryWithBackoff(ctx, util.BackoffOptions{
		MaxTries:  c.maxTries,
		BaseDelay: c.baseDelay,
		MaxDelay:  c.maxDelay,
		Retryable: func(err error) bool { return errors.Is(err, ErrBackendUnavailable) },
	}, func(ctx context.Context) (struct{}, error) {
		attempt++
		err := fn(ctx)
		if err != nil && errors.Is(err, ErrBackendUnavailable) && attempt < c.maxTries {
			logger.Warn("[Graph] Backend unavailable, retrying", "attempt", attempt, "err", err)
		}
		return struct{}{}, err
	})
	return err
}
