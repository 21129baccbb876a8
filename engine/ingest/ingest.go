// Package ingest re-embeds stored congressional records. A run pages through
// the structured store, embeds each page, upserts the vectors, and optionally
// extracts semantic fingerprints. Every write is an upsert, so runs can be
// repeated safely.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/WessleyAI/congress-qa/engine/congress"
	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/engine/fingerprint"
	"github.com/WessleyAI/congress-qa/engine/semantic"
	"github.com/WessleyAI/congress-qa/pkg/fn"
	"github.com/WessleyAI/congress-qa/pkg/metrics"
)

const (
	// DefaultPageSize is the number of records listed per page.
	DefaultPageSize = 100
	// MaxPageSize bounds a caller-supplied page size.
	MaxPageSize = 1000
	// FingerprintWorkers bounds concurrent fingerprint extractions per page.
	FingerprintWorkers = 4
)

// ErrRunning is returned when a run is requested while another is active.
var ErrRunning = errors.New("ingest: reindex already running")

// Lister pages through stored records.
type Lister interface {
	ListForEmbedding(ctx context.Context, et domain.EntityType, afterID int64, limit int) ([]congress.Document, error)
}

// Embedder turns texts into vectors, one slot per input, nil on failure.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) [][]float32
}

// Extractor builds a semantic fingerprint for one entity.
type Extractor interface {
	Extract(ctx context.Context, key domain.Key, text string) (domain.SemanticFingerprint, error)
}

// Deps holds the collaborators of a Reindexer. Extractor and Fingerprints are
// only needed for fingerprint runs.
type Deps struct {
	Store        Lister
	Embedder     Embedder
	Vectors      semantic.VectorStore
	Extractor    Extractor
	Fingerprints fingerprint.Index

	// ListRetry retries a failed page listing. The zero value tries once.
	ListRetry fn.RetryOpts
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Reindexer runs bulk re-embedding. One run is active at a time.
type Reindexer struct {
	deps     Deps
	logger   *slog.Logger
	progress counters
	running  atomic.Bool
}

// New creates a Reindexer.
func New(deps Deps) *Reindexer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reindexer{deps: deps, logger: logger}
}

// Snapshot returns the counters of the current or most recent run.
func (r *Reindexer) Snapshot() Progress { return r.progress.snapshot() }

// Running reports whether a run is in progress.
func (r *Reindexer) Running() bool { return r.running.Load() }

// FingerprintsEnabled reports whether fingerprint runs are possible.
func (r *Reindexer) FingerprintsEnabled() bool {
	return r.deps.Extractor != nil && r.deps.Fingerprints != nil
}

// --- Pipeline Stages ---

// NewEmbed creates a stage that embeds every document of a page in one batch.
func NewEmbed(e Embedder) fn.Stage[Page, EmbeddedPage] {
	return func(ctx context.Context, p Page) fn.Result[EmbeddedPage] {
		texts := make([]string, len(p.Docs))
		for i, d := range p.Docs {
			texts[i] = d.Text
		}
		vecs := e.EmbedBatch(ctx, texts)
		if err := ctx.Err(); err != nil {
			return fn.Err[EmbeddedPage](fmt.Errorf("embed page: %w", err))
		}
		if len(vecs) != len(p.Docs) {
			return fn.Err[EmbeddedPage](fmt.Errorf("embed page: got %d vectors for %d documents", len(vecs), len(p.Docs)))
		}
		return fn.Ok(EmbeddedPage{Page: p, Vectors: vecs})
	}
}

// NewStore creates a stage that upserts every embedded document.
func NewStore(vs semantic.VectorStore, log *slog.Logger) fn.Stage[EmbeddedPage, PageResult] {
	return func(ctx context.Context, p EmbeddedPage) fn.Result[PageResult] {
		out := PageResult{Page: p.Page, OK: make([]bool, len(p.Docs))}
		for i, doc := range p.Docs {
			if p.Vectors[i] == nil {
				log.Warn("ingest: no vector", "key", doc.Key.String())
				continue
			}
			err := vs.Upsert(ctx, domain.EmbeddingRecord{
				Key:        doc.Key,
				Vector:     p.Vectors[i],
				SourceText: doc.Text,
				Metadata:   doc.Metadata,
				UpdatedAt:  doc.UpdatedAt,
			})
			if err != nil {
				log.Warn("ingest: vector upsert", "key", doc.Key.String(), "err", err)
				continue
			}
			out.OK[i] = true
		}
		return fn.Ok(out)
	}
}

// NewFingerprint creates a stage that extracts and stores a fingerprint for
// every document of a page. A document whose fingerprint fails is marked
// failed even when its vector was stored.
func NewFingerprint(ex Extractor, idx fingerprint.Index, log *slog.Logger) fn.Stage[PageResult, PageResult] {
	return func(ctx context.Context, p PageResult) fn.Result[PageResult] {
		results := fn.ParMapResult(p.Docs, FingerprintWorkers, func(doc congress.Document) fn.Result[domain.Key] {
			fp, err := ex.Extract(ctx, doc.Key, doc.Text)
			if err != nil {
				return fn.Err[domain.Key](err)
			}
			if err := idx.Upsert(ctx, fp); err != nil {
				return fn.Err[domain.Key](fmt.Errorf("fingerprint upsert: %w", err))
			}
			return fn.Ok(doc.Key)
		})
		ok := make([]bool, len(p.OK))
		for i, res := range results {
			if _, err := res.Unwrap(); err != nil {
				log.Warn("ingest: fingerprint", "key", p.Docs[i].Key.String(), "err", err)
				continue
			}
			ok[i] = p.OK[i]
		}
		p.OK = ok
		return fn.Ok(p)
	}
}

// LoggedTap returns a stage that logs entry and exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Debug("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Debug("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// pipeline composes Embed, Store and, when requested, Fingerprint.
func (r *Reindexer) pipeline(fingerprints bool) fn.Stage[Page, PageResult] {
	log := r.logger
	embedded := fn.Then(LoggedTap[Page]("embed", log), NewEmbed(r.deps.Embedder))
	stored := fn.Then(embedded, fn.Then(LoggedTap[EmbeddedPage]("store", log), NewStore(r.deps.Vectors, log)))
	if !fingerprints {
		return stored
	}
	return fn.Then(stored, fn.Then(LoggedTap[PageResult]("fingerprint", log), NewFingerprint(r.deps.Extractor, r.deps.Fingerprints, log)))
}

// Run re-embeds every record of the requested entity types. Per-entity
// failures are counted, not returned; an error means the run stopped early
// because listing failed or ctx ended.
func (r *Reindexer) Run(ctx context.Context, req Request) (Progress, error) {
	req, err := req.normalize()
	if err != nil {
		return Progress{}, err
	}
	if req.Fingerprints && !r.FingerprintsEnabled() {
		return Progress{}, errors.New("ingest: fingerprints requested but no extractor or index is configured")
	}
	if !r.running.CompareAndSwap(false, true) {
		return r.Snapshot(), ErrRunning
	}
	defer r.running.Store(false)
	r.progress.reset()

	start := time.Now()
	r.logger.Info("ingest: reindex started", "types", req.EntityTypes, "fingerprints", req.Fingerprints, "page_size", req.PageSize)
	pipeline := fn.TracedStage("ingest.page", r.pipeline(req.Fingerprints))

	for _, et := range req.EntityTypes {
		if err := r.runType(ctx, et, req, pipeline); err != nil {
			snap := r.Snapshot()
			r.logger.Error("ingest: reindex stopped", "type", et, "err", err, "processed", snap.Processed)
			return snap, err
		}
	}

	snap := r.Snapshot()
	r.logger.Info("ingest: reindex finished",
		"processed", snap.Processed,
		"success", snap.Success,
		"failed", snap.Failed,
		"duration", time.Since(start),
	)
	return snap, nil
}

func (r *Reindexer) runType(ctx context.Context, et domain.EntityType, req Request, pipeline fn.Stage[Page, PageResult]) error {
	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingest: reindex %s: %w", et, err)
		}
		docs, err := fn.Retry(ctx, r.deps.ListRetry, func(ctx context.Context) fn.Result[[]congress.Document] {
			return fn.FromPair(r.deps.Store.ListForEmbedding(ctx, et, after, req.PageSize))
		}).Unwrap()
		if err != nil {
			return fmt.Errorf("ingest: list %s after %d: %w", et, after, err)
		}
		if len(docs) == 0 {
			return nil
		}

		var success, failed int
		res, err := pipeline(ctx, Page{Type: et, Docs: docs}).Unwrap()
		if err != nil {
			r.logger.Warn("ingest: page failed", "type", et, "after", after, "err", err)
			failed = len(docs)
		} else {
			success, failed = res.counts()
		}
		r.progress.add(success, failed)
		r.deps.Metrics.Reindexed(success, failed)
		if req.Report != nil {
			req.Report(r.Snapshot())
		}

		after = docs[len(docs)-1].ID
		if len(docs) < req.PageSize {
			return nil
		}
	}
}
