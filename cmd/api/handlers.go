package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/engine/graph"
	"github.com/WessleyAI/congress-qa/engine/ingest"
	"github.com/WessleyAI/congress-qa/pkg/metrics"
	"github.com/WessleyAI/congress-qa/pkg/mid"
	"github.com/WessleyAI/congress-qa/pkg/natsutil"
)

const (
	maxBodyBytes  = 64 << 10
	adminTimeout  = 10 * time.Second
	defaultTopN   = 20
	reindexLocal  = "local"
	reindexQueued = "nats"
)

// answerer is the answering facade.
type answerer interface {
	Answer(ctx context.Context, question string, history []domain.Turn) domain.AnswerEnvelope
}

// reindexer runs bulk re-embeds in process.
type reindexer interface {
	Run(ctx context.Context, req ingest.Request) (ingest.Progress, error)
	Snapshot() ingest.Progress
	Running() bool
	FingerprintsEnabled() bool
}

// graphStats reports on the fingerprint graph.
type graphStats interface {
	NodeCounts(ctx context.Context) (map[string]int64, error)
	TopTerms(ctx context.Context, kind string, limit int) ([]graph.TermStats, error)
}

// server holds the handler dependencies. pub and graph are optional.
type server struct {
	qa                answerer
	reindex           reindexer
	pub               natsutil.Publisher
	graph             func() (graphStats, bool)
	fingerprintsReady func(context.Context) bool
	collaborators     map[string]string

	askTimeout time.Duration
	limiter    *rate.Limiter
	// bg bounds background reindex runs; it ends at shutdown.
	bg      context.Context
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// routes registers every endpoint and wraps the mux in the middleware chain.
func (s *server) routes(corsOrigin string) http.Handler {
	admin := mid.Timeout(adminTimeout)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.Handle("GET /api/health", admin(http.HandlerFunc(s.handleHealth)))
	mux.Handle("POST /api/admin/reindex", admin(http.HandlerFunc(s.handleReindex)))
	mux.Handle("GET /api/admin/reindex", admin(http.HandlerFunc(s.handleReindexStatus)))
	mux.Handle("GET /api/admin/fingerprints", admin(http.HandlerFunc(s.handleFingerprints)))
	mux.Handle("GET /metrics", s.metrics.Handler())

	return mid.Chain(mux,
		mid.Recover(s.logger),
		mid.RequestID(),
		mid.OTel("congress-qa"),
		mid.Logger(s.logger),
		mid.CORS(corsOrigin),
		mid.Metrics(s.metrics),
	)
}

// --- Handlers ---

// AskRequest is the JSON body for POST /api/ask.
type AskRequest struct {
	Question string        `json:"question"`
	History  []domain.Turn `json:"history,omitempty"`
}

func (s *server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	// The facade answers from static knowledge once the deadline passes, so
	// the deadline is applied here rather than by a timeout handler.
	ctx, cancel := context.WithTimeout(r.Context(), s.askTimeout)
	defer cancel()
	env := s.qa.Answer(ctx, req.Question, req.History)
	if len(env.Errors) > 0 {
		s.logger.Warn("ask: degraded answer", "method", env.Method, "errors", env.Errors, "request_id", mid.RequestIDFrom(r.Context()))
	}
	writeJSON(w, http.StatusOK, env)
}

// HealthResponse is the JSON response for GET /api/health.
type HealthResponse struct {
	Status            string            `json:"status"`
	Collaborators     map[string]string `json:"collaborators"`
	FingerprintsReady bool              `json:"fingerprints_ready"`
	Reindex           ReindexStatus     `json:"reindex"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:            "ok",
		Collaborators:     s.collaborators,
		FingerprintsReady: s.fingerprintsReady(r.Context()),
		Reindex:           s.reindexStatus(),
	})
}

// ReindexRequest is the JSON body for POST /api/admin/reindex. Mode "local"
// runs in this process; "nats" queues the run for a worker.
type ReindexRequest struct {
	Mode string `json:"mode,omitempty"`
	ingest.Request
}

// ReindexStatus reports the current or most recent in-process run.
type ReindexStatus struct {
	Running  bool            `json:"running"`
	Progress ingest.Progress `json:"progress"`
}

func (s *server) reindexStatus() ReindexStatus {
	return ReindexStatus{Running: s.reindex.Running(), Progress: s.reindex.Snapshot()}
}

func (s *server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "reindex requested too often")
		return
	}
	var req ReindexRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, et := range req.EntityTypes {
		if _, ok := domain.ParseEntityType(string(et)); !ok {
			writeError(w, http.StatusBadRequest, "unknown entity type "+strconv.Quote(string(et)))
			return
		}
	}

	switch req.Mode {
	case "", reindexLocal:
		s.startLocal(w, req.Request)
	case reindexQueued:
		if s.pub == nil {
			writeError(w, http.StatusServiceUnavailable, "NATS is not configured")
			return
		}
		if err := natsutil.Publish(r.Context(), s.pub, ingest.ReindexSubject, req.Request); err != nil {
			s.logger.Error("reindex: publish failed", "err", err)
			writeError(w, http.StatusBadGateway, "could not queue reindex")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "subject": ingest.ReindexSubject})
	default:
		writeError(w, http.StatusBadRequest, "mode must be local or nats")
	}
}

func (s *server) startLocal(w http.ResponseWriter, req ingest.Request) {
	if req.Fingerprints && !s.reindex.FingerprintsEnabled() {
		writeError(w, http.StatusBadRequest, "fingerprint extraction is not configured")
		return
	}
	if s.reindex.Running() {
		writeJSON(w, http.StatusConflict, s.reindexStatus())
		return
	}
	go func() {
		prog, err := s.reindex.Run(s.bg, req)
		switch {
		case errors.Is(err, ingest.ErrRunning):
			s.logger.Info("reindex: run already active")
		case err != nil:
			s.logger.Error("reindex: run failed", "err", err, "processed", prog.Processed)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *server) handleReindexStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.reindexStatus())
}

// FingerprintsResponse is the JSON response for GET /api/admin/fingerprints.
type FingerprintsResponse struct {
	Nodes    map[string]int64  `json:"nodes"`
	TopTerms []graph.TermStats `json:"top_terms"`
}

func (s *server) handleFingerprints(w http.ResponseWriter, r *http.Request) {
	g, ok := s.graph()
	if !ok {
		writeError(w, http.StatusNotFound, "fingerprint graph is not connected")
		return
	}
	limit := defaultTopN
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	nodes, err := g.NodeCounts(r.Context())
	if err != nil {
		s.logger.Error("fingerprints: node counts", "err", err)
		writeError(w, http.StatusBadGateway, "fingerprint graph query failed")
		return
	}
	terms, err := g.TopTerms(r.Context(), r.URL.Query().Get("kind"), limit)
	if err != nil {
		s.logger.Error("fingerprints: top terms", "err", err)
		writeError(w, http.StatusBadGateway, "fingerprint graph query failed")
		return
	}
	writeJSON(w, http.StatusOK, FingerprintsResponse{Nodes: nodes, TopTerms: terms})
}

// --- Helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
