// Package app wires the answering pipeline from configuration. Both the API
// server and the reindex CLI build their collaborators here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/congress-qa/engine/congress"
	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/engine/embedding"
	"github.com/WessleyAI/congress-qa/engine/fingerprint"
	"github.com/WessleyAI/congress-qa/engine/graph"
	"github.com/WessleyAI/congress-qa/engine/ingest"
	"github.com/WessleyAI/congress-qa/engine/intent"
	"github.com/WessleyAI/congress-qa/engine/qa"
	"github.com/WessleyAI/congress-qa/engine/rag"
	"github.com/WessleyAI/congress-qa/engine/retrieval"
	"github.com/WessleyAI/congress-qa/engine/semantic"
	"github.com/WessleyAI/congress-qa/pkg/fn"
	"github.com/WessleyAI/congress-qa/pkg/llm"
	"github.com/WessleyAI/congress-qa/pkg/llm/anthropic"
	"github.com/WessleyAI/congress-qa/pkg/llm/openai"
	"github.com/WessleyAI/congress-qa/pkg/metrics"
	"github.com/WessleyAI/congress-qa/pkg/ollama"
)

// Backend names.
const (
	BackendMemory    = "memory"
	BackendQdrant    = "qdrant"
	BackendPgvector  = "pgvector"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
	ProviderClaude   = "anthropic"
	fingerprintRetry = 30 * time.Second
)

// storeRetry retries only unreachable stores; a bad DSN or query fails at once.
var storeRetry = fn.DefaultRetry.When(func(err error) bool {
	return errors.Is(err, domain.ErrStoreUnavailable)
})

// Config selects and addresses every collaborator. Empty addresses fall back
// to in-memory implementations.
type Config struct {
	DatabaseURL string `help:"Postgres DSN for the congress tables. Empty uses an in-memory store." env:"DATABASE_URL"`

	VectorBackend    string `help:"Vector store backend." enum:"memory,qdrant,pgvector" default:"memory" env:"VECTOR_BACKEND"`
	QdrantAddr       string `help:"Qdrant gRPC address." default:"localhost:6334" env:"QDRANT_ADDR"`
	QdrantCollection string `help:"Qdrant collection name." default:"congress" env:"QDRANT_COLLECTION"`

	Neo4jURL  string `help:"Neo4j URL for the fingerprint graph. Empty uses an in-memory index." env:"NEO4J_URL"`
	Neo4jUser string `help:"Neo4j user." default:"neo4j" env:"NEO4J_USER"`
	Neo4jPass string `help:"Neo4j password." env:"NEO4J_PASS"`

	EmbedProvider string `help:"Embedding provider." enum:"openai,ollama" default:"openai" env:"EMBED_PROVIDER"`
	EmbedModel    string `help:"Embedding model. Empty picks the provider default." env:"EMBED_MODEL"`
	EmbedDims     int    `help:"Embedding dimensions. 0 picks the provider default." env:"EMBED_DIMS"`

	GenProvider string `help:"Generation provider." enum:"anthropic,openai,ollama" default:"anthropic" env:"GEN_PROVIDER"`
	GenModel    string `help:"Generation model. Empty picks the provider default." env:"GEN_MODEL"`

	OpenAIKey    string `help:"OpenAI API key." env:"OPENAI_API_KEY"`
	AnthropicKey string `help:"Anthropic API key." env:"ANTHROPIC_API_KEY"`
	OllamaURL    string `help:"Ollama base URL." default:"http://localhost:11434" env:"OLLAMA_URL"`
}

var (
	defaultEmbedModels = map[string]string{ProviderOpenAI: "text-embedding-3-small", ProviderOllama: "nomic-embed-text"}
	defaultEmbedDims   = map[string]int{ProviderOpenAI: 1536, ProviderOllama: 768}
	defaultGenModels   = map[string]string{
		ProviderClaude: "claude-3-5-haiku-latest",
		ProviderOpenAI: "gpt-4o-mini",
		ProviderOllama: "llama3.1",
	}
)

// App holds the built collaborators.
type App struct {
	Store        congress.Store
	Vectors      semantic.VectorStore
	Embedder     *embedding.Gateway
	Generator    llm.Generator
	Fingerprints *fn.Lazy[fingerprint.Index]
	Retrieval    *retrieval.Orchestrator
	QA           *qa.Service
	Reindexer    *ingest.Reindexer
	// Collaborators names the implementation chosen for each collaborator.
	Collaborators map[string]string

	closers []func() error
}

// Close releases every connection Build opened, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Graph returns the neo4j fingerprint store once it has been connected.
func (a *App) Graph() (*graph.FingerprintStore, bool) {
	idx, ok := a.Fingerprints.Peek()
	if !ok {
		return nil, false
	}
	g, ok := idx.(*graph.FingerprintStore)
	return g, ok
}

// Build connects and wires every collaborator described by cfg.
func Build(ctx context.Context, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Collaborators: make(map[string]string)}
	fail := func(err error) (*App, error) {
		a.Close()
		return nil, err
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = fn.Retry(ctx, storeRetry, func(ctx context.Context) fn.Result[*sql.DB] {
			return fn.FromPair(congress.Open(ctx, cfg.DatabaseURL))
		}).Unwrap()
		if err != nil {
			return fail(fmt.Errorf("app: postgres: %w", err))
		}
		a.closers = append(a.closers, db.Close)
		a.Store = congress.NewPostgresStore(db, congress.DefaultOptions(), logger)
		a.Collaborators["store"] = "postgres"
	} else {
		a.Store = congress.NewMemoryStore()
		a.Collaborators["store"] = BackendMemory
		logger.Warn("app: DATABASE_URL not set, using an empty in-memory store")
	}

	provider, err := embedProvider(cfg)
	if err != nil {
		return fail(err)
	}
	a.Embedder = embedding.New(provider, embedding.DefaultOptions(), logger, m)
	a.Collaborators["embedding"] = a.Embedder.Model()

	if a.Vectors, err = vectorStore(ctx, cfg, db, a, logger); err != nil {
		return fail(err)
	}
	a.Collaborators["vectors"] = cfg.VectorBackend

	if a.Generator, err = generator(cfg); err != nil {
		return fail(err)
	}
	a.Collaborators["generation"] = a.Generator.Name()

	a.Fingerprints = fingerprintIndex(cfg, a, logger)
	if cfg.Neo4jURL != "" {
		a.Collaborators["fingerprints"] = "neo4j"
	} else {
		a.Collaborators["fingerprints"] = BackendMemory
	}

	a.Retrieval = retrieval.New(retrieval.Deps{
		Embedder:     a.Embedder,
		Vectors:      a.Vectors,
		Store:        a.Store,
		Fingerprints: a.Fingerprints,
	}, retrieval.DefaultOptions(), logger, m)
	synth := rag.New(a.Generator, rag.DefaultOptions(), logger, m)
	a.QA = qa.New(intent.New(intent.DefaultOptions()), a.Retrieval, synth, qa.DefaultOptions(), logger, m)

	a.Reindexer = ingest.New(ingest.Deps{
		Store:        a.Store,
		Embedder:     a.Embedder,
		Vectors:      a.Vectors,
		Extractor:    fingerprint.NewExtractor(a.Generator, logger, m),
		Fingerprints: fingerprint.Deferred(a.Fingerprints),
		ListRetry:    storeRetry,
		Logger:       logger,
		Metrics:      m,
	})
	logger.Info("app: collaborators ready", "collaborators", a.Collaborators)
	return a, nil
}

func embedProvider(cfg Config) (embedding.Provider, error) {
	model := cfg.EmbedModel
	if model == "" {
		model = defaultEmbedModels[cfg.EmbedProvider]
	}
	dims := cfg.EmbedDims
	if dims == 0 && cfg.EmbedModel == "" {
		dims = defaultEmbedDims[cfg.EmbedProvider]
	}
	switch cfg.EmbedProvider {
	case ProviderOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, errors.New("app: OPENAI_API_KEY is required for openai embeddings")
		}
		return openai.NewEmbedder(openai.Options{APIKey: cfg.OpenAIKey, EmbeddingModel: model, EmbeddingDims: dims}), nil
	case ProviderOllama:
		return ollama.NewEmbedClient(cfg.OllamaURL, model, dims), nil
	default:
		return nil, fmt.Errorf("app: unknown embedding provider %q", cfg.EmbedProvider)
	}
}

func generator(cfg Config) (llm.Generator, error) {
	model := cfg.GenModel
	if model == "" {
		model = defaultGenModels[cfg.GenProvider]
	}
	switch cfg.GenProvider {
	case ProviderClaude:
		if cfg.AnthropicKey == "" {
			return nil, errors.New("app: ANTHROPIC_API_KEY is required for anthropic generation")
		}
		return anthropic.New(anthropic.Options{APIKey: cfg.AnthropicKey, Model: model, MaxRetries: 2}), nil
	case ProviderOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, errors.New("app: OPENAI_API_KEY is required for openai generation")
		}
		return openai.NewGenerator(openai.Options{APIKey: cfg.OpenAIKey, Model: model}), nil
	case ProviderOllama:
		return ollama.NewChatClient(cfg.OllamaURL, model), nil
	default:
		return nil, fmt.Errorf("app: unknown generation provider %q", cfg.GenProvider)
	}
}

func vectorStore(ctx context.Context, cfg Config, db *sql.DB, a *App, logger *slog.Logger) (semantic.VectorStore, error) {
	switch cfg.VectorBackend {
	case BackendMemory, "":
		return semantic.NewMemoryStore(logger), nil
	case BackendQdrant:
		q, err := semantic.NewQdrant(cfg.QdrantAddr, cfg.QdrantCollection, logger)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, q.Close)
		if dims := a.Embedder.Dimensions(); dims > 0 {
			if err := q.EnsureCollection(ctx, dims); err != nil {
				return nil, fmt.Errorf("app: qdrant collection: %w", err)
			}
		}
		return q, nil
	case BackendPgvector:
		if db == nil {
			return nil, errors.New("app: the pgvector backend needs DATABASE_URL")
		}
		p := semantic.NewPostgresStore(db, logger)
		if err := p.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("app: pgvector schema: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("app: unknown vector backend %q", cfg.VectorBackend)
	}
}

// fingerprintIndex defers the neo4j connection to first use so the service
// starts, and answers below the fingerprint tier, while neo4j is down.
func fingerprintIndex(cfg Config, a *App, logger *slog.Logger) *fn.Lazy[fingerprint.Index] {
	if cfg.Neo4jURL == "" {
		mem := fingerprint.NewMemoryIndex()
		return fn.NewLazy(func(context.Context) (fingerprint.Index, error) { return mem, nil }, 0)
	}
	var (
		mu     sync.Mutex
		driver neo4j.DriverWithContext
	)
	a.closers = append(a.closers, func() error {
		mu.Lock()
		defer mu.Unlock()
		if driver == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return driver.Close(ctx)
	})
	return fn.NewLazy(func(ctx context.Context) (fingerprint.Index, error) {
		d, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return nil, fmt.Errorf("neo4j driver: %w", err)
		}
		if err := d.VerifyConnectivity(ctx); err != nil {
			d.Close(ctx)
			return nil, fmt.Errorf("neo4j connect: %w", err)
		}
		g := graph.New(d, logger)
		if err := g.EnsureSchema(ctx); err != nil {
			d.Close(ctx)
			return nil, fmt.Errorf("neo4j schema: %w", err)
		}
		mu.Lock()
		driver = d
		mu.Unlock()
		logger.Info("app: fingerprint graph connected", "url", cfg.Neo4jURL)
		return g, nil
	}, fingerprintRetry)
}
