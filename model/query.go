// Package model defines the data shared by every subsystem of the
// retrieval-and-response pipeline: the incoming query, the hypothesis
// produced about it, token budgets, the process tree executed to answer
// it, documents and citations gathered along the way, and the progress
// events streamed while that happens.
//
// Nothing in this package talks to a backend or an LLM. Components
// receive and return these types by value or by immutable pointer;
// ownership of the mutable pieces (ProcessStep status, progress sequence
// numbers) belongs exclusively to the process executor.
package model

import "time"

// QueryOptions carries the caller-tunable knobs from the ingress request.
type QueryOptions struct {
	Model             string `json:"model,omitempty"`
	MaxTokens         int    `json:"max_tokens,omitempty"`
	EnableRAG         bool   `json:"enable_rag"`
	EnableAgents      bool   `json:"enable_agents"`
	EnableExpansion   bool   `json:"enable_expansion"`
	EnableReranking   bool   `json:"enable_reranking"`
	MaxParallel       int    `json:"max_parallel,omitempty"`
	TimeoutMS         int    `json:"timeout_ms,omitempty"`
}

// Query is the immutable input to a single pipeline run.
type Query struct {
	Text        string       `json:"text"`
	SessionID   string       `json:"session_id,omitempty"`
	Options     QueryOptions `json:"options"`
	ReceivedAt  time.Time    `json:"received_at"`
}
