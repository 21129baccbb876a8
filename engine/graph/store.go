package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/engine/fingerprint"
	"github.com/WessleyAI/congress-qa/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

const (
	fingerprintLabel = "Fingerprint"
	termLabel        = "Term"
)

// FingerprintStore is a Neo4j-backed fingerprint.Index.
type FingerprintStore struct {
	opener SessionOpener
	nodes  *repo.Neo4jRepo[domain.SemanticFingerprint, string]
	logger *slog.Logger
}

var _ fingerprint.Index = (*FingerprintStore)(nil)

// New creates a FingerprintStore on driver.
func New(driver neo4j.DriverWithContext, logger *slog.Logger) *FingerprintStore {
	return NewWithOpener(driverOpener{driver: driver}, logger)
}

// NewWithOpener creates a FingerprintStore on a custom session opener.
func NewWithOpener(opener SessionOpener, logger *slog.Logger) *FingerprintStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FingerprintStore{
		opener: opener,
		nodes: repo.NewNeo4jRepo[domain.SemanticFingerprint, string](
			nil, fingerprintLabel,
			func(fp domain.SemanticFingerprint) string { return fp.Key.String() },
			fingerprintToMap,
			fingerprintFromRecord,
			repo.WithIDKey[domain.SemanticFingerprint, string]("key"),
			repo.WithSession[domain.SemanticFingerprint, string](repoSession(opener)),
		),
		logger: logger,
	}
}

// EnsureSchema creates the uniqueness constraints the store relies on.
func (g *FingerprintStore) EnsureSchema(ctx context.Context) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	for _, cypher := range []string{
		`CREATE CONSTRAINT fingerprint_key IF NOT EXISTS FOR (f:Fingerprint) REQUIRE f.key IS UNIQUE`,
		`CREATE CONSTRAINT term_kind_value IF NOT EXISTS FOR (t:Term) REQUIRE (t.kind, t.value) IS UNIQUE`,
	} {
		if _, err := sess.Run(ctx, cypher, nil); err != nil {
			return fmt.Errorf("graph: schema: %w", err)
		}
	}
	return nil
}

// Upsert replaces the fingerprint node and its term edges in one transaction.
func (g *FingerprintStore) Upsert(ctx context.Context, fp domain.SemanticFingerprint) error {
	fp = fp.Normalize()
	if fp.UpdatedAt.IsZero() {
		fp.UpdatedAt = time.Now().UTC()
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		if _, err := tx.Run(ctx,
			`MERGE (f:Fingerprint {key: $key}) SET f = $props
			 WITH f OPTIONAL MATCH (f)-[r:HAS_TERM]->() DELETE r`,
			map[string]any{"key": fp.Key.String(), "props": fingerprintToMap(fp)},
		); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx,
			`MATCH (f:Fingerprint {key: $key})
			 UNWIND $terms AS t
			 MERGE (term:Term {kind: t.kind, value: t.value})
			 MERGE (f)-[:HAS_TERM]->(term)`,
			map[string]any{"key": fp.Key.String(), "terms": termParams(fp)},
		)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graph: upsert %s: %w", fp.Key, err)
	}
	return nil
}

// Candidates implements fingerprint.Index.
func (g *FingerprintStore) Candidates(ctx context.Context, probe domain.SemanticFingerprint, limit int) ([]domain.SemanticFingerprint, error) {
	params := termParams(probe.Normalize())
	if len(params) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx,
		`UNWIND $terms AS t
		 MATCH (:Term {kind: t.kind, value: t.value})<-[:HAS_TERM]-(n:Fingerprint)
		 WITH n, count(*) AS shared
		 RETURN n ORDER BY shared DESC, n.key LIMIT $limit`,
		map[string]any{"terms": params, "limit": int64(limit)},
	)
	if err != nil {
		return nil, fmt.Errorf("graph: candidates: %w", err)
	}
	var out []domain.SemanticFingerprint
	for result.Next(ctx) {
		fp, err := fingerprintFromRecord(result.Record())
		if err != nil {
			g.logger.Warn("graph: skipping unreadable fingerprint", "err", err)
			continue
		}
		out = append(out, fp)
	}
	return out, nil
}

// Len implements fingerprint.Index.
func (g *FingerprintStore) Len(ctx context.Context) (int, error) {
	return g.nodes.Count(ctx)
}

// Get returns the fingerprint stored for key.
func (g *FingerprintStore) Get(ctx context.Context, key domain.Key) (domain.SemanticFingerprint, bool, error) {
	fp, err := g.nodes.Get(ctx, key.String())
	if errors.Is(err, repo.ErrNotFound) {
		return domain.SemanticFingerprint{}, false, nil
	}
	if err != nil {
		return domain.SemanticFingerprint{}, false, err
	}
	return fp, true, nil
}

// Delete removes the fingerprint for key. Orphaned terms are left for Prune.
func (g *FingerprintStore) Delete(ctx context.Context, key domain.Key) error {
	return g.nodes.Delete(ctx, key.String())
}

// Prune removes terms no fingerprint references and reports how many.
func (g *FingerprintStore) Prune(ctx context.Context) (int, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx,
		`MATCH (t:Term) WHERE NOT (t)<-[:HAS_TERM]-() DELETE t RETURN count(t) AS c`, nil)
	if err != nil {
		return 0, err
	}
	if !result.Next(ctx) {
		return 0, nil
	}
	return int(int64Prop(result.Record(), "c")), nil
}

func termParams(fp domain.SemanticFingerprint) []map[string]any {
	var out []map[string]any
	for kind, vals := range fp.Terms() {
		for _, v := range vals {
			out = append(out, map[string]any{"kind": kind, "value": v})
		}
	}
	return out
}

func fingerprintToMap(fp domain.SemanticFingerprint) map[string]any {
	return map[string]any{
		"key":          fp.Key.String(),
		"entity_type":  string(fp.Key.Type),
		"entity_id":    fp.Key.ID,
		"topics":       nonNil(fp.Topics),
		"entities":     nonNil(fp.Entities),
		"policy_areas": nonNil(fp.PolicyAreas),
		"keywords":     nonNil(fp.Keywords),
		"themes":       nonNil(fp.Themes),
		"sentiment":    string(fp.Sentiment),
		"urgency":      string(fp.Urgency),
		"scope":        string(fp.Scope),
		"source_text":  fp.SourceText,
		"updated_at":   fp.UpdatedAt,
	}
}

func fingerprintFromRecord(rec *neo4j.Record) (domain.SemanticFingerprint, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.SemanticFingerprint{}, err
	}
	return fingerprintFromProps(node.Props)
}

func fingerprintFromProps(props map[string]any) (domain.SemanticFingerprint, error) {
	et, ok := domain.ParseEntityType(strProp(props, "entity_type"))
	if !ok {
		return domain.SemanticFingerprint{}, fmt.Errorf("fingerprint %q: %w", strProp(props, "key"), domain.ErrUnknownEntityType)
	}
	id, _ := props["entity_id"].(int64)
	fp := domain.SemanticFingerprint{
		Key:         domain.Key{Type: et, ID: id},
		Topics:      listProp(props, "topics"),
		Entities:    listProp(props, "entities"),
		PolicyAreas: listProp(props, "policy_areas"),
		Keywords:    listProp(props, "keywords"),
		Themes:      listProp(props, "themes"),
		Sentiment:   domain.Sentiment(strProp(props, "sentiment")),
		Urgency:     domain.Urgency(strProp(props, "urgency")),
		Scope:       domain.Scope(strProp(props, "scope")),
		SourceText:  strProp(props, "source_text"),
	}
	if t, ok := props["updated_at"].(time.Time); ok {
		fp.UpdatedAt = t
	}
	return fp, nil
}

func strProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

// listProp reads a string list; the driver returns lists as []any.
func listProp(props map[string]any, key string) []string {
	switch v := props[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
}

func int64Prop(rec *neo4j.Record, key string) int64 {
	v, _ := rec.Get(key)
	n, _ := v.(int64)
	return n
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
