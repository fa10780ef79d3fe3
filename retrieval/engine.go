// Package retrieval implements the Hybrid Retrieval Engine (spec §4.7):
// per-backend search, query expansion against the administrative-law
// thesaurus, score-fused hybrid search, batched concurrent search, and
// LLM-based reranking.
package retrieval

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jurisoracle/vrag/backend"
	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/model"
	"github.com/jurisoracle/vrag/resilience"
	"github.com/jurisoracle/vrag/thesaurus"
)

// retryConfig matches spec §4.7's stated backoff schedule: up to 3
// attempts, 100ms -> 400ms -> 1600ms.
func retryConfig() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      1600 * time.Millisecond,
		BackoffFactor: 4.0,
	}
}

// Engine ties the Polyglot Data Facade to the fusion and reranking logic
// a query actually needs. A nil field in Backends is treated the same as
// a backend that is present but always degraded (spec §4.11).
type Engine struct {
	Backends   *backend.Facade
	Thesaurus  *thesaurus.Thesaurus
	Reranker   Reranker
	Logger     core.Logger
	Telemetry  core.Telemetry
}

// New builds an Engine. thesaurusSource may be nil, in which case
// expand_query degrades to returning only the original query.
func New(backends *backend.Facade, th *thesaurus.Thesaurus, reranker Reranker, logger core.Logger, telemetry core.Telemetry) *Engine {
	return &Engine{Backends: backends, Thesaurus: th, Reranker: reranker, Logger: logger, Telemetry: telemetry}
}

// VectorSearch delegates to the vector backend with retry, returning an
// empty, non-error result (plus a diagnostic) when the backend is absent
// or exhausts its retries.
func (e *Engine) VectorSearch(ctx context.Context, embedding []float32, topK int) ([]model.Document, model.BackendDiagnostic) {
	if e.Backends == nil || e.Backends.Vector == nil {
		return nil, degradedDiagnostic(model.SourceVector, "backend not configured")
	}
	start := time.Now()
	var docs []model.Document
	err := resilience.Retry(ctx, retryConfig(), func() error {
		var searchErr error
		docs, searchErr = e.Backends.Vector.Search(ctx, embedding, topK)
		return searchErr
	})
	if err != nil {
		return nil, model.BackendDiagnostic{
			Backend: model.SourceVector, Degraded: true,
			Reason: err.Error(), Latency: time.Since(start).String(),
		}
	}
	return docs, model.BackendDiagnostic{Backend: model.SourceVector, ResultCount: len(docs), Latency: time.Since(start).String()}
}

// GraphSearch delegates to the graph backend with queryText as the start
// vertex and a 1-hop expansion; the ArangoDB backend does no substring
// matching over vertex content or name. The engine applies
// retry/degradation and truncates the result to topK.
func (e *Engine) GraphSearch(ctx context.Context, queryText string, topK int) ([]model.Document, model.BackendDiagnostic) {
	if e.Backends == nil || e.Backends.Graph == nil {
		return nil, degradedDiagnostic(model.SourceGraph, "backend not configured")
	}
	start := time.Now()
	var docs []model.Document
	err := resilience.Retry(ctx, retryConfig(), func() error {
		var searchErr error
		docs, searchErr = e.Backends.Graph.Search(ctx, queryText, 1)
		return searchErr
	})
	if err != nil {
		return nil, model.BackendDiagnostic{
			Backend: model.SourceGraph, Degraded: true,
			Reason: err.Error(), Latency: time.Since(start).String(),
		}
	}
	if len(docs) > topK {
		docs = docs[:topK]
	}
	return docs, model.BackendDiagnostic{Backend: model.SourceGraph, ResultCount: len(docs), Latency: time.Since(start).String()}
}

// KeywordSearch delegates to the relational backend when available.
func (e *Engine) KeywordSearch(ctx context.Context, queryText string, topK int) ([]model.Document, model.BackendDiagnostic) {
	if e.Backends == nil || e.Backends.Relational == nil {
		return nil, degradedDiagnostic(model.SourceKeyword, "backend not configured")
	}
	start := time.Now()
	var docs []model.Document
	query := `SELECT id, content, metadata, score FROM search_documents($1) LIMIT $2`
	err := resilience.Retry(ctx, retryConfig(), func() error {
		var searchErr error
		docs, searchErr = e.Backends.Relational.Search(ctx, query, queryText, topK)
		return searchErr
	})
	if err != nil {
		return nil, model.BackendDiagnostic{
			Backend: model.SourceKeyword, Degraded: true,
			Reason: err.Error(), Latency: time.Since(start).String(),
		}
	}
	return docs, model.BackendDiagnostic{Backend: model.SourceKeyword, ResultCount: len(docs), Latency: time.Since(start).String()}
}

func degradedDiagnostic(src model.SourceBackend, reason string) model.BackendDiagnostic {
	return model.BackendDiagnostic{Backend: src, Degraded: true, Reason: reason}
}

// HybridRequest parameterises a single hybrid_search call.
type HybridRequest struct {
	QueryText string
	Embedding []float32
	TopK      int
	Weights   map[model.SourceBackend]float64 // used only by weighted_sum
	Strategy  model.FusionStrategy
	GraphDepth int
}

// HybridSearch runs every configured backend concurrently and fuses their
// per-backend ranked lists per req.Strategy. It never returns an error:
// an all-backends-absent run yields an empty result with diagnostics,
// per spec §4.7 ("It is allowed for all backends to be absent").
func (e *Engine) HybridSearch(ctx context.Context, req HybridRequest) model.HybridResult {
	if req.TopK <= 0 {
		req.TopK = 10
	}
	if req.Strategy == "" {
		req.Strategy = model.FusionRRF
	}

	type lane struct {
		docs []model.Document
		diag model.BackendDiagnostic
	}

	var mu sync.Mutex
	lanes := make(map[model.SourceBackend]lane)
	g, gctx := errgroup.WithContext(ctx)

	if len(req.Embedding) > 0 {
		g.Go(func() error {
			docs, diag := e.VectorSearch(gctx, req.Embedding, req.TopK)
			mu.Lock()
			lanes[model.SourceVector] = lane{docs, diag}
			mu.Unlock()
			return nil
		})
	}
	if req.QueryText != "" {
		depth := req.GraphDepth
		if depth <= 0 {
			depth = 1
		}
		g.Go(func() error {
			docs, diag := e.GraphSearch(gctx, req.QueryText, req.TopK)
			mu.Lock()
			lanes[model.SourceGraph] = lane{docs, diag}
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			docs, diag := e.KeywordSearch(gctx, req.QueryText, req.TopK)
			mu.Lock()
			lanes[model.SourceKeyword] = lane{docs, diag}
			mu.Unlock()
			return nil
		})
	}

	// Backend-level errors are already folded into diagnostics by the
	// per-backend helpers above; g.Wait() never actually returns an
	// error from those goroutines, but we still respect ctx cancellation.
	_ = g.Wait()

	ranked := make(map[model.SourceBackend][]model.Document, len(lanes))
	diagnostics := make([]model.BackendDiagnostic, 0, len(lanes))
	for src, l := range lanes {
		ranked[src] = l.docs
		diagnostics = append(diagnostics, l.diag)
	}
	sort.Slice(diagnostics, func(i, j int) bool { return diagnostics[i].Backend < diagnostics[j].Backend })

	fused := Fuse(ranked, req.Weights, req.Strategy)
	if len(fused) > req.TopK {
		fused = fused[:req.TopK]
	}

	return model.HybridResult{Results: fused, Diagnostics: diagnostics, Strategy: req.Strategy}
}

// BatchSearch runs every query concurrently; if ctx is cancelled, all
// outstanding work is cancelled and partial results for already-completed
// queries are still returned in request order.
func (e *Engine) BatchSearch(ctx context.Context, reqs []HybridRequest) []model.HybridResult {
	results := make([]model.HybridResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i] = e.HybridSearch(gctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Rerank reorders docs against query using e.Reranker. With no reranker
// configured it returns docs unchanged, since reranking is a refinement
// step, not a required one (spec §4.7).
func (e *Engine) Rerank(ctx context.Context, query string, docs []model.Document, mode RerankMode) ([]model.Document, error) {
	if e.Reranker == nil {
		return docs, nil
	}
	return e.Reranker.Rerank(ctx, query, docs, mode)
}

// ExpandQuery generates synonym variants of q from the administrative-law
// thesaurus. The original query is always present (round-trip property,
// spec §8); max bounds the total variant count including the original.
func (e *Engine) ExpandQuery(q string, max int) []string {
	if e.Thesaurus == nil {
		return []string{q}
	}
	return e.Thesaurus.Expand(q, max)
}
