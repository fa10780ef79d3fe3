package model

import "time"

// ResponseMetadata is the diagnostic envelope attached to every
// UnifiedResponse, regardless of whether the plan succeeded.
type ResponseMetadata struct {
	Model          string      `json:"model"`
	Mode           string      `json:"mode,omitempty"`
	DurationMS     int64       `json:"duration_ms"`
	TokensUsed     int         `json:"tokens_used"`
	SourcesCount   int         `json:"sources_count"`
	Complexity     int         `json:"complexity"`
	Domain         string      `json:"domain,omitempty"`
	AgentsInvolved []string    `json:"agents_involved,omitempty"`
	SearchMethod   string      `json:"search_method,omitempty"`
	QualityScore   float64     `json:"quality_score"`
	Confidence     ConfidenceLevel `json:"confidence,omitempty"`
	Hypothesis     *Hypothesis `json:"hypothesis,omitempty"`
}

// TokenBudgetReport is the client-facing view of a TokenBudget, with the
// internal boost fields folded into a generic breakdown map so the wire
// schema doesn't need to change every time a new boost is added.
type TokenBudgetReport struct {
	Allocated    int            `json:"allocated"`
	Base         int            `json:"base"`
	Ceiling      int            `json:"ceiling"`
	ModelContext int            `json:"model_context"`
	Breakdown    map[string]int `json:"breakdown"`
}

// ReportFrom converts a TokenBudget into its wire representation.
func ReportFrom(b TokenBudget) TokenBudgetReport {
	return TokenBudgetReport{
		Allocated:    b.Allocated,
		Base:         b.Base,
		Ceiling:      b.Ceiling,
		ModelContext: b.ModelContext,
		Breakdown: map[string]int{
			"intent_boost":     b.IntentBoost,
			"complexity_boost": b.ComplexityBoost,
			"agent_boost":      b.AgentBoost,
			"chunk_boost":      b.ChunkBoost,
			"domain_boost":     b.DomainBoost,
		},
	}
}

// UnifiedResponse is the JSON object returned for a non-streaming query,
// and the payload referenced by the final event on a streaming one.
type UnifiedResponse struct {
	Content     string             `json:"content"`
	Sources     []Citation         `json:"sources"`
	Metadata    ResponseMetadata   `json:"metadata"`
	SessionID   string             `json:"session_id,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
	TokenBudget *TokenBudgetReport `json:"token_budget,omitempty"`
}
