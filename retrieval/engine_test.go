package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/jurisoracle/vrag/backend"
	"github.com/jurisoracle/vrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVectorBackend struct {
	docs []model.Document
	err  error
}

func (f *fakeVectorBackend) Search(ctx context.Context, embedding []float32, topK int) ([]model.Document, error) {
	return f.docs, f.err
}
func (f *fakeVectorBackend) Health(ctx context.Context) backend.Status {
	return backend.Status{State: backend.HealthOK}
}

type fakeGraphBackend struct {
	docs []model.Document
	err  error
}

func (f *fakeGraphBackend) Search(ctx context.Context, entity string, depth int) ([]model.Document, error) {
	return f.docs, f.err
}
func (f *fakeGraphBackend) Health(ctx context.Context) backend.Status {
	return backend.Status{State: backend.HealthOK}
}

func TestEngine_VectorSearch_AbsentBackendDegradesNotErrors(t *testing.T) {
	e := &Engine{}
	docs, diag := e.VectorSearch(context.Background(), []float32{0.1}, 5)
	assert.Empty(t, docs)
	assert.True(t, diag.Degraded)
	assert.Equal(t, model.SourceVector, diag.Backend)
}

func TestEngine_VectorSearch_ReturnsBackendDocs(t *testing.T) {
	e := &Engine{Backends: &backend.Facade{Vector: &fakeVectorBackend{docs: docs("a", "b")}}}
	got, diag := e.VectorSearch(context.Background(), []float32{0.1}, 5)
	require.Len(t, got, 2)
	assert.False(t, diag.Degraded)
	assert.Equal(t, 2, diag.ResultCount)
}

func TestEngine_GraphSearch_ErrorYieldsDegradedDiagnosticNoErrorReturn(t *testing.T) {
	e := &Engine{Backends: &backend.Facade{Graph: &fakeGraphBackend{err: errors.New("timeout")}}}
	got, diag := e.GraphSearch(context.Background(), "Baugenehmigung", 5)
	assert.Empty(t, got)
	assert.True(t, diag.Degraded)
	assert.Contains(t, diag.Reason, "timeout")
}

func TestEngine_HybridSearch_AllBackendsAbsentReturnsEmptyNotError(t *testing.T) {
	e := &Engine{}
	result := e.HybridSearch(context.Background(), HybridRequest{QueryText: "Baugenehmigung"})
	assert.Empty(t, result.Results)
	assert.Equal(t, model.FusionRRF, result.Strategy)
}

func TestEngine_HybridSearch_FusesAcrossConfiguredBackends(t *testing.T) {
	e := &Engine{Backends: &backend.Facade{
		Graph: &fakeGraphBackend{docs: docs("a", "b")},
	}}
	result := e.HybridSearch(context.Background(), HybridRequest{QueryText: "Baugenehmigung", TopK: 10})
	require.Len(t, result.Results, 2)
	assert.Len(t, result.Diagnostics, 2) // graph + keyword lanes both ran
}

func TestEngine_ExpandQuery_NoThesaurusReturnsOriginalOnly(t *testing.T) {
	e := &Engine{}
	assert.Equal(t, []string{"Baugenehmigung"}, e.ExpandQuery("Baugenehmigung", 5))
}

func TestEngine_Rerank_NoRerankerIsNoOp(t *testing.T) {
	e := &Engine{}
	in := docs("a", "b")
	out, err := e.Rerank(context.Background(), "q", in, RerankRelevance)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEngine_BatchSearch_PreservesRequestOrder(t *testing.T) {
	e := &Engine{Backends: &backend.Facade{Vector: &fakeVectorBackend{docs: docs("a")}}}
	reqs := []HybridRequest{
		{Embedding: []float32{0.1}},
		{Embedding: []float32{0.2}},
		{Embedding: []float32{0.3}},
	}
	results := e.BatchSearch(context.Background(), reqs)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Len(t, r.Results, 1)
	}
}
