package model

// SourceBackend names which Polyglot Data Facade backend produced a
// SearchResult.
type SourceBackend string

const (
	SourceVector  SourceBackend = "vector"
	SourceGraph   SourceBackend = "graph"
	SourceKeyword SourceBackend = "keyword"
)

// Document is a single retrieved unit of evidence. Score is normalised
// into [0,1] once the result leaves the owning backend; the backend's
// raw, un-normalised score is preserved separately for diagnostics.
type Document struct {
	ID          string                 `json:"id"`
	Content     string                 `json:"content"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Score       float64                `json:"score"`
	RawScore    float64                `json:"raw_score"`
	Source      SourceBackend          `json:"source_backend"`
	RelatedDocs []string               `json:"related_docs,omitempty"`
}

// SearchResult is an alias kept for readability at call sites that deal
// strictly with single-backend results rather than fused ones.
type SearchResult = Document

// BackendDiagnostic reports the outcome of querying one backend during a
// hybrid search: how many results it contributed, whether it degraded,
// and why.
type BackendDiagnostic struct {
	Backend      SourceBackend `json:"backend"`
	ResultCount  int           `json:"result_count"`
	Degraded     bool          `json:"degraded"`
	Reason       string        `json:"reason,omitempty"`
	Latency      string        `json:"latency,omitempty"`
}

// FusionStrategy names one of the supported ways of combining per-backend
// ranked lists into a single ranking.
type FusionStrategy string

const (
	FusionRRF         FusionStrategy = "reciprocal_rank_fusion"
	FusionWeightedSum FusionStrategy = "weighted_sum"
	FusionBordaCount  FusionStrategy = "borda_count"
)

// HybridResult is the deduplicated, fused output of a hybrid_search call,
// along with enough diagnostics to explain how it was produced.
type HybridResult struct {
	Results     []Document          `json:"results"`
	Diagnostics []BackendDiagnostic `json:"diagnostics"`
	Strategy    FusionStrategy      `json:"strategy"`
}
