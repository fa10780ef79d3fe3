// Command vrag wires the Intent Classifier, Token Budget Calculator,
// Hypothesis Generator, Agent Registry, Hybrid Retrieval Engine, Process
// Executor and Response Planner into a single runnable service, the way
// the teacher's core/cmd/example wires a BaseAgent together.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jurisoracle/vrag/ai"
	_ "github.com/jurisoracle/vrag/ai/providers/bedrock"
	_ "github.com/jurisoracle/vrag/ai/providers/mock"
	"github.com/jurisoracle/vrag/backend"
	"github.com/jurisoracle/vrag/budget"
	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/hypothesis"
	"github.com/jurisoracle/vrag/intent"
	"github.com/jurisoracle/vrag/model"
	"github.com/jurisoracle/vrag/planner"
	"github.com/jurisoracle/vrag/process"
	"github.com/jurisoracle/vrag/progress"
	"github.com/jurisoracle/vrag/registry"
	"github.com/jurisoracle/vrag/retrieval"
	"github.com/jurisoracle/vrag/telemetry"
	"github.com/jurisoracle/vrag/thesaurus"
)

func main() {
	cfg, err := core.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "vrag: config: %v\n", err)
		os.Exit(1)
	}

	logger := core.NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)

	var telemetryProvider core.Telemetry = &core.NoOpTelemetry{}
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.EnableTelemetry(cfg.Name, cfg.Telemetry.Endpoint, logger)
		if err != nil {
			logger.Warn("telemetry disabled", map[string]interface{}{"error": err.Error()})
		} else {
			telemetryProvider = provider
		}
	}

	aiClient, err := newAIClient(cfg, logger)
	if err != nil {
		logger.Error("no AI provider available", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	backends := wireBackends(cfg, logger)
	th := thesaurus.Load()
	reranker := retrieval.NewLLMReranker(aiClient, logger)
	engine := retrieval.New(backends, th, reranker, logger, telemetryProvider)

	agents := registry.New()

	classifier := intent.New(aiClient, logger, cfg.AI.Model)
	generator := hypothesis.New(aiClient, logger, cfg.AI.Model)
	plannerRunner := planner.New(aiClient, logger)

	executor := process.New(agents, engine, plannerRunner, logger, telemetryProvider)
	executor.MaxParallel = cfg.Execution.MaxParallel

	stream := progress.New()
	defer stream.Close()

	query := model.Query{
		Text:       defaultQuery(),
		SessionID:  uuid.NewString(),
		Options:    model.QueryOptions{EnableRAG: true, EnableExpansion: cfg.Retrieval.ExpandQueries, MaxParallel: cfg.Execution.MaxParallel},
		ReceivedAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Execution.StepTimeout*4)
	defer cancel()

	classified := classifier.Classify(ctx, query.Text)
	genHypothesis := generator.Generate(ctx, query.Text, nil)
	tokenBudget := budget.Compute(budget.Input{
		QueryText:      query.Text,
		Hypothesis:     genHypothesis,
		Intent:         classified.Intent,
		AgentCount:     0,
		ChunkCount:     0,
		ModelContext:   cfg.Budget.ModelContextWindow,
		ReservedPrompt: cfg.Budget.ReservedForResponse,
	})

	tree := buildTree(query, genHypothesis, tokenBudget)

	logger.Info("executing query", map[string]interface{}{
		"session_id": query.SessionID,
		"intent":     classified.Intent,
		"confidence": classified.Confidence,
	})

	result := executor.Execute(ctx, tree, stream)

	logger.Info("query complete", map[string]interface{}{
		"session_id": query.SessionID,
		"degraded":   result.IsDegraded,
		"summary":    result.Summary,
	})
}

// newAIClient builds the concrete core.AIClient backing the Intent
// Classifier's LLM tier, the Hypothesis Generator, the Hybrid Retrieval
// Engine's rerank step and the Response Planner's generation call (spec
// §4.1, §4.4, §4.7, §4.9). When Development.MockAI is set, or when no
// real provider is detected in the environment, it uses the mock
// provider rather than failing startup.
func newAIClient(cfg *core.Config, logger core.Logger) (core.AIClient, error) {
	opts := []ai.AIOption{
		ai.WithModel(cfg.AI.Model),
		ai.WithAPIKey(cfg.AI.APIKey),
		ai.WithTemperature(cfg.AI.Temperature),
		ai.WithMaxTokens(cfg.AI.MaxTokens),
		ai.WithTimeout(cfg.AI.Timeout),
		ai.WithMaxRetries(cfg.AI.RetryAttempts),
		ai.WithLogger(logger),
	}

	if cfg.Development.MockAI {
		return ai.NewClient(append(opts, ai.WithProvider("mock"))...)
	}

	if cfg.AI.Provider != "" && cfg.AI.Provider != string(ai.ProviderAuto) {
		client, err := ai.NewClient(append(opts, ai.WithProvider(cfg.AI.Provider))...)
		if err == nil {
			return client, nil
		}
		logger.Warn("configured AI provider unavailable, falling back to auto-detect", map[string]interface{}{
			"provider": cfg.AI.Provider,
			"error":    err.Error(),
		})
	}

	client, err := ai.NewClient(opts...)
	if err != nil {
		logger.Warn("no AI provider detected in environment, falling back to mock", map[string]interface{}{"error": err.Error()})
		return ai.NewClient(append(opts, ai.WithProvider("mock"))...)
	}
	return client, nil
}

// wireBackends constructs whichever backends are enabled and reachable.
// A backend that fails to dial is logged and left nil: the facade (and
// every downstream caller) already treats a nil backend as a degraded
// one, per spec §4.7/§4.11.
func wireBackends(cfg *core.Config, logger core.Logger) *backend.Facade {
	facade := &backend.Facade{}

	if cfg.Backends.VectorEnabled {
		vec, err := backend.NewQdrantBackend(cfg.Backends.QdrantURL, cfg.Backends.QdrantAPIKey, cfg.Backends.QdrantCollection, logger)
		if err != nil {
			logger.Warn("vector backend unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			facade.Vector = vec
		}
	}

	if cfg.Backends.GraphEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Backends.DialTimeout)
		graph, err := backend.NewArangoBackend(ctx, cfg.Backends.ArangoURL, cfg.Backends.ArangoUser, cfg.Backends.ArangoPass, cfg.Backends.ArangoDB, logger)
		cancel()
		if err != nil {
			logger.Warn("graph backend unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			facade.Graph = graph
		}
	}

	if cfg.Backends.RelationalEnabled && cfg.Backends.PostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Backends.DialTimeout)
		rel, err := backend.NewPostgresBackend(ctx, cfg.Backends.PostgresDSN, logger)
		cancel()
		if err != nil {
			logger.Warn("relational backend unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			facade.Relational = rel
		}
	}

	return facade
}

// buildTree assembles a representative ProcessTree for one query: two
// parallel SEARCH steps feeding an AGGREGATE step, which in turn feeds
// the root LLM step the Response Planner answers (spec §4.8).
func buildTree(query model.Query, hyp model.Hypothesis, tokenBudget model.TokenBudget) *model.ProcessTree {
	retryPolicy := model.RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond}

	vectorSearch := &model.ProcessStep{
		ID:          "search.vector",
		Type:        model.StepSearch,
		Inputs:      map[string]interface{}{"query_text": query.Text, "top_k": 10},
		RetryPolicy: retryPolicy,
		OnFailure:   model.OnFailureContinue,
	}
	graphSearch := &model.ProcessStep{
		ID:             "search.graph",
		Type:           model.StepSearch,
		Inputs:         map[string]interface{}{"query_text": query.Text, "top_k": 10},
		FusionStrategy: string(model.FusionRRF),
		RetryPolicy:    retryPolicy,
		OnFailure:      model.OnFailureContinue,
	}
	aggregate := &model.ProcessStep{
		ID:        "aggregate",
		Type:      model.StepAggregate,
		DependsOn: []string{vectorSearch.ID, graphSearch.ID},
		OnFailure: model.OnFailureContinue,
	}
	root := &model.ProcessStep{
		ID:        "respond",
		Type:      model.StepLLM,
		DependsOn: []string{aggregate.ID},
		Inputs: map[string]interface{}{
			"hypothesis": hyp,
			"budget":     tokenBudget,
		},
		OnFailure: model.OnFailureAbortPlan,
	}

	tree := &model.ProcessTree{
		ID:     uuid.NewString(),
		Query:  query,
		RootID: root.ID,
		Steps: map[string]*model.ProcessStep{
			vectorSearch.ID: vectorSearch,
			graphSearch.ID:  graphSearch,
			aggregate.ID:    aggregate,
			root.ID:         root,
		},
	}
	return tree
}

func defaultQuery() string {
	if q := os.Getenv("VRAG_QUERY"); q != "" {
		return q
	}
	return "Welche Fristen gelten für den Widerspruch gegen einen Bescheid?"
}
