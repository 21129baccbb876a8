package repo

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Result is the part of a neo4j result the repository reads.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// Runner is the part of a neo4j session the repository uses.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	Close(ctx context.Context) error
}

// SessionFunc opens a Runner.
type SessionFunc func(ctx context.Context) Runner

// Neo4jRepo stores one node label keyed by a single property.
type Neo4jRepo[T any, ID comparable] struct {
	label      string
	idKey      string
	idOf       func(T) ID
	toMap      func(T) map[string]any
	fromRecord func(*neo4j.Record) (T, error)
	session    SessionFunc
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the property used as the id (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// WithSession replaces the driver-backed session factory.
func WithSession[T any, ID comparable](fn SessionFunc) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.session = fn }
}

// NewNeo4jRepo creates a repository for label. idOf extracts the key Save
// merges on; toMap produces the full property map stored on the node.
func NewNeo4jRepo[T any, ID comparable](
	driver neo4j.DriverWithContext,
	label string,
	idOf func(T) ID,
	toMap func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		label:      label,
		idKey:      "id",
		idOf:       idOf,
		toMap:      toMap,
		fromRecord: fromRecord,
		session:    DriverSession(driver),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

// DriverSession returns a SessionFunc backed by driver.
func DriverSession(driver neo4j.DriverWithContext) SessionFunc {
	return func(ctx context.Context) Runner {
		return &sessionAdapter{sess: driver.NewSession(ctx, neo4j.SessionConfig{})}
	}
}

// sessionAdapter adapts neo4j.SessionWithContext to Runner.
type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n", r.label, r.idKey)
	result, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return zero, err
	}
	if !result.Next(ctx) {
		return zero, fmt.Errorf("%s %v: %w", r.label, id, ErrNotFound)
	}
	return r.fromRecord(result.Record())
}

func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	cypher := fmt.Sprintf("MATCH (n:%s) RETURN n ORDER BY n.%s SKIP $offset LIMIT $limit", r.label, r.idKey)
	result, err := sess.Run(ctx, cypher, map[string]any{"offset": int64(opts.Offset), "limit": int64(limit)})
	if err != nil {
		return nil, err
	}

	var items []T
	for result.Next(ctx) {
		item, err := r.fromRecord(result.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Save merges on the id property and replaces every other property.
func (r *Neo4jRepo[T, ID]) Save(ctx context.Context, entity T) error {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n = $props", r.label, r.idKey)
	_, err := sess.Run(ctx, cypher, map[string]any{"id": r.idOf(entity), "props": r.toMap(entity)})
	return err
}

func (r *Neo4jRepo[T, ID]) Delete(ctx context.Context, id ID) error {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) DETACH DELETE n", r.label, r.idKey)
	_, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	return err
}

func (r *Neo4jRepo[T, ID]) Count(ctx context.Context) (int, error) {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS c", r.label)
	result, err := sess.Run(ctx, cypher, nil)
	if err != nil {
		return 0, err
	}
	if !result.Next(ctx) {
		return 0, nil
	}
	v, _ := result.Record().Get("c")
	n, _ := v.(int64)
	return int(n), nil
}
