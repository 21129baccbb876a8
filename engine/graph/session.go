// Package graph stores semantic fingerprints in Neo4j as a term graph:
// (:Fingerprint)-[:HAS_TERM]->(:Term {kind, value}). Candidate lookup walks
// shared terms instead of scanning every fingerprint.
package graph

import (
	"context"

	"github.com/WessleyAI/congress-qa/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// CypherResult is the part of a neo4j result the store reads.
type CypherResult = repo.Result

// CypherRunner runs a single statement.
type CypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error)
}

// CypherSession is a closable runner with managed write transactions.
type CypherSession interface {
	CypherRunner
	Close(ctx context.Context) error
	ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error)
}

// SessionOpener opens sessions. Tests substitute an in-memory fake.
type SessionOpener interface {
	OpenSession(ctx context.Context) CypherSession
}

type driverOpener struct {
	driver neo4j.DriverWithContext
}

func (o driverOpener) OpenSession(ctx context.Context) CypherSession {
	return &driverSession{sess: o.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

type driverSession struct {
	sess neo4j.SessionWithContext
}

func (s *driverSession) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	return s.sess.Run(ctx, cypher, params)
}

func (s *driverSession) Close(ctx context.Context) error { return s.sess.Close(ctx) }

func (s *driverSession) ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	return s.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(txRunner{tx})
	})
}

type txRunner struct {
	tx neo4j.ManagedTransaction
}

func (t txRunner) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	return t.tx.Run(ctx, cypher, params)
}

// repoSession lets pkg/repo share the store's opener.
func repoSession(o SessionOpener) repo.SessionFunc {
	return func(ctx context.Context) repo.Runner { return o.OpenSession(ctx) }
}
