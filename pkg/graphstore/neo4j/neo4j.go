// Package neo4j implements graphstore.Backend on a Neo4j database.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/polisight/backend/pkg/graphstore"
	"github.com/polisight/backend/pkg/logger"

	driver "github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Backend stores nodes with their type as label and every attribute,
// including the id, as a property.
type Backend struct {
	driver   driver.DriverWithContext
	database string
}

// Params configures a Neo4j connection.
type Params struct {
	URI         string
	User        string
	Password    string
	Database    string
	MaxPoolSize int
	Timeout     time.Duration
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, params Params) (*Backend, error) {
	if params.URI == "" {
		return nil, fmt.Errorf("neo4j uri is required")
	}
	user := params.User
	if user == "" {
		user = "neo4j"
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxPool := params.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}

	auth := driver.BasicAuth(user, params.Password, "")
	d, err := driver.NewDriverWithContext(params.URI, auth, func(cfg *driver.Config) {
		cfg.MaxConnectionPoolSize = maxPool
		cfg.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := d.VerifyConnectivity(verifyCtx); err != nil {
		_ = d.Close(ctx)
		return nil, fmt.Errorf("%w: %v", graphstore.ErrBackendUnavailable, err)
	}

	return &Backend{driver: d, database: params.Database}, nil
}

// EnsureConstraints creates a uniqueness constraint on id for every node
// type. Failures are logged and ignored.
func (b *Backend) EnsureConstraints(ctx context.Context, nodeTypes []string) {
	session := b.session(ctx, driver.AccessModeWrite)
	defer session.Close(ctx)

	for _, nodeType := range nodeTypes {
		q := fmt.Sprintf(
			"CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
			strings.ToLower(nodeType), quoteIdent(nodeType),
		)
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			logger.Warn("[Neo4j] Schema init failed (continuing)", "type", nodeType, "err", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func (b *Backend) InsertNode(ctx context.Context, nodeType, id string, attrs map[string]any) error {
	q := fmt.Sprintf("CREATE (n:%s) SET n = $props", quoteIdent(nodeType))
	_, err := b.write(ctx, q, map[string]any{"props": properties(attrs)})
	return err
}

func (b *Backend) InsertRelationship(ctx context.Context, relType, id string, from, to graphstore.NodeRef, attrs map[string]any) error {
	q := fmt.Sprintf(`MATCH (a:%s {id: $from}), (b:%s {id: $to})
CREATE (a)-[r:%s]->(b)
SET r = $props
RETURN r.id AS id`, quoteIdent(from.Type), quoteIdent(to.Type), quoteIdent(relType))

	records, err := b.write(ctx, q, map[string]any{
		"from":  from.ID,
		"to":    to.ID,
		"props": properties(attrs),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: endpoint of %s", graphstore.ErrNotFound, id)
	}
	return nil
}

func (b *Backend) MergeNode(ctx context.Context, nodeType, id string, partial map[string]any) error {
	q := fmt.Sprintf("MATCH (n:%s {id: $id}) SET n += $props RETURN n.id AS id", quoteIdent(nodeType))
	records, err := b.write(ctx, q, map[string]any{"id": id, "props": properties(partial)})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: %s node %q", graphstore.ErrNotFound, nodeType, id)
	}
	return nil
}

func (b *Backend) NodeType(ctx context.Context, id string) (string, bool, error) {
	records, err := b.Query(ctx, "MATCH (n {id: $id}) RETURN labels(n)[0] AS type LIMIT 1", map[string]any{"id": id})
	if err != nil || len(records) == 0 {
		return "", false, err
	}
	return graphstore.StringValue(records[0], "type"), true, nil
}

func (b *Backend) LookupNode(ctx context.Context, nodeType, field, value string) (string, bool, error) {
	q := fmt.Sprintf("MATCH (n:%s) WHERE n.%s = $value RETURN n.id AS id LIMIT 1", quoteIdent(nodeType), quoteIdent(field))
	records, err := b.Query(ctx, q, map[string]any{"value": value})
	if err != nil || len(records) == 0 {
		return "", false, err
	}
	return graphstore.StringValue(records[0], "id"), true, nil
}

// Query runs expr in a read transaction.
func (b *Backend) Query(ctx context.Context, expr string, params map[string]any) ([]graphstore.Record, error) {
	session := b.session(ctx, driver.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx driver.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, expr, params)
		if err != nil {
			return nil, err
		}
		return collect(ctx, res)
	})
	if err != nil {
		return nil, translate(err)
	}
	return out.([]graphstore.Record), nil
}

func (b *Backend) Close(ctx context.Context) error {
	return b.driver.Close(ctx)
}

func (b *Backend) write(ctx context.Context, q string, params map[string]any) ([]graphstore.Record, error) {
	session := b.session(ctx, driver.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx driver.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, params)
		if err != nil {
			return nil, err
		}
		return collect(ctx, res)
	})
	if err != nil {
		return nil, translate(err)
	}
	return out.([]graphstore.Record), nil
}

func (b *Backend) session(ctx context.Context, mode driver.AccessMode) driver.SessionWithContext {
	return b.driver.NewSession(ctx, driver.SessionConfig{
		AccessMode:   mode,
		DatabaseName: b.database,
	})
}

func collect(ctx context.Context, res driver.ResultWithContext) ([]graphstore.Record, error) {
	records := []graphstore.Record{}
	for res.Next(ctx) {
		records = append(records, graphstore.Record(res.Record().AsMap()))
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// translate maps driver errors onto the graphstore sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if driver.IsConnectivityError(err) {
		return fmt.Errorf("%w: %v", graphstore.ErrBackendUnavailable, err)
	}

	var neoErr *driver.Neo4jError
	if errors.As(err, &neoErr) {
		switch {
		case strings.Contains(neoErr.Code, "Statement.SyntaxError"),
			strings.Contains(neoErr.Code, "Statement.ParameterMissing"):
			return fmt.Errorf("%w: %s", graphstore.ErrQuerySyntax, neoErr.Msg)
		case strings.Contains(neoErr.Code, "ConstraintValidationFailed"):
			return fmt.Errorf("%w: %s", graphstore.ErrValidationFailed, neoErr.Msg)
		case strings.HasPrefix(neoErr.Code, "Neo.TransientError"):
			return fmt.Errorf("%w: %s", graphstore.ErrBackendUnavailable, neoErr.Msg)
		}
	}
	return err
}

// properties converts attribute values into types the driver accepts.
// Nested maps are not valid property values and are dropped.
func properties(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		switch t := v.(type) {
		case map[string]any:
			continue
		case int:
			out[k] = int64(t)
		case time.Time:
			out[k] = t.UTC().Format(time.RFC3339)
		default:
			out[k] = v
		}
	}
	return out
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var _ graphstore.Backend = (*Backend)(nil)
