package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/llmjson"
	"github.com/jurisoracle/vrag/model"
)

// RerankMode selects what the LLM is asked to judge when scoring a
// candidate document against the query, per spec §4.7.
type RerankMode string

const (
	RerankRelevance       RerankMode = "relevance"
	RerankInformativeness RerankMode = "informativeness"
	RerankCombined        RerankMode = "combined"
)

// rerankBatchSize bounds how many documents go into a single LLM call, per
// spec §4.7 ("batch size <= 5 documents").
const rerankBatchSize = 5

// Reranker reorders a candidate list against a query. Implementations
// must be safe to call concurrently from BatchSearch.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []model.Document, mode RerankMode) ([]model.Document, error)
}

// LLMReranker scores documents in small batches with an AIClient, asking
// it for a relevance/informativeness score per document and resorting by
// the result. A batch that fails to parse falls back to its original
// (pre-rerank) order rather than failing the whole request, since a
// reordering is an optimisation, not a correctness requirement.
type LLMReranker struct {
	Client core.AIClient
	Logger core.Logger
}

// NewLLMReranker builds a Reranker backed by client.
func NewLLMReranker(client core.AIClient, logger core.Logger) *LLMReranker {
	return &LLMReranker{Client: client, Logger: logger}
}

type rerankScore struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type rerankResponse struct {
	Scores []rerankScore `json:"scores"`
}

// Rerank scores docs in batches of rerankBatchSize and returns them sorted
// highest-score-first. Scores are relative to the batch, not globally
// comparable across batches, but batches are assembled from docs' existing
// fused order so the overall shuffle stays local to nearby-ranked items.
func (r *LLMReranker) Rerank(ctx context.Context, query string, docs []model.Document, mode RerankMode) ([]model.Document, error) {
	if r.Client == nil || len(docs) == 0 {
		return docs, nil
	}

	out := make([]model.Document, 0, len(docs))
	for start := 0; start < len(docs); start += rerankBatchSize {
		end := start + rerankBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		scored, err := r.rerankBatch(ctx, query, batch, mode)
		if err != nil {
			if r.Logger != nil {
				r.Logger.Warn("rerank batch failed, keeping original order", map[string]interface{}{
					"error": err.Error(),
					"batch": fmt.Sprintf("%d-%d", start, end),
				})
			}
			out = append(out, batch...)
			continue
		}
		out = append(out, scored...)
	}
	return out, nil
}

func (r *LLMReranker) rerankBatch(ctx context.Context, query string, batch []model.Document, mode RerankMode) ([]model.Document, error) {
	prompt := buildRerankPrompt(query, batch, mode)
	resp, err := r.Client.GenerateResponse(ctx, prompt, &core.AIOptions{Temperature: 0, MaxTokens: 512})
	if err != nil {
		return nil, core.NewFrameworkError("retrieval.Rerank", core.KindLLMBackendErr, err)
	}

	var parsed rerankResponse
	if err := llmjson.ParseInto(resp.Content, &parsed); err != nil {
		return nil, err
	}

	scoreByID := make(map[string]float64, len(parsed.Scores))
	for _, s := range parsed.Scores {
		scoreByID[s.ID] = s.Score
	}

	rescored := make([]model.Document, len(batch))
	copy(rescored, batch)
	for i, d := range rescored {
		if s, ok := scoreByID[d.ID]; ok {
			rescored[i].Score = s
		}
	}

	for i := 1; i < len(rescored); i++ {
		for j := i; j > 0 && rescored[j-1].Score < rescored[j].Score; j-- {
			rescored[j-1], rescored[j] = rescored[j], rescored[j-1]
		}
	}
	return rescored, nil
}

func buildRerankPrompt(query string, batch []model.Document, mode RerankMode) string {
	var criterion string
	switch mode {
	case RerankInformativeness:
		criterion = "how much substantive legal information each document provides, independent of whether it directly answers the question"
	case RerankCombined:
		criterion = "both how directly each document answers the question and how much substantive legal information it provides"
	default:
		criterion = "how directly each document answers the question"
	}

	var b strings.Builder
	b.WriteString("Score each of the following documents from 0.0 to 1.0 on ")
	b.WriteString(criterion)
	b.WriteString(".\n\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\n\nDocuments:\n")
	for _, d := range batch {
		b.WriteString(fmt.Sprintf("id=%s: %s\n", d.ID, truncate(d.Content, 500)))
	}
	b.WriteString("\nRespond with only a JSON object: {\"scores\": [{\"id\": \"...\", \"score\": 0.0}, ...]}")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
