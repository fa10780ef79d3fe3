// Package backend implements the Polyglot Data Facade (spec §4.11): three
// narrow sub-interfaces over the storage backends the retrieval engine
// draws on, plus a health aggregator. Credentials are sourced once, from
// Config, and never flow back into application code or logs.
package backend

import (
	"context"

	"github.com/jurisoracle/vrag/model"
)

// VectorBackend performs nearest-neighbour search over embedded document
// chunks.
type VectorBackend interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]model.Document, error)
	Health(ctx context.Context) Status
}

// GraphBackend performs graph traversal over related-entity edges (e.g.
// "which municipality office handles this permit type").
type GraphBackend interface {
	Search(ctx context.Context, entity string, depth int) ([]model.Document, error)
	Health(ctx context.Context) Status
}

// RelationalBackend performs structured lookups over canonical records
// (fee schedules, office directories, deadlines).
type RelationalBackend interface {
	Search(ctx context.Context, query string, args ...interface{}) ([]model.Document, error)
	Health(ctx context.Context) Status
}

// HealthState mirrors the three-value health taxonomy of spec §6's Health
// endpoint.
type HealthState string

const (
	HealthOK       HealthState = "ok"
	HealthDegraded HealthState = "degraded"
	HealthDown     HealthState = "down"
)

// Status is the per-backend health snapshot. Host is the bare host:port,
// never a full credentialed DSN.
type Status struct {
	State   HealthState `json:"status"`
	Host    string      `json:"host,omitempty"`
	Details string      `json:"details,omitempty"`
}

// Facade bundles the three backends the retrieval engine needs. Any field
// may be nil, meaning that path is disabled (spec §4.11: "the engine
// treats an absent backend the same as a degraded one").
type Facade struct {
	Vector     VectorBackend
	Graph      GraphBackend
	Relational RelationalBackend
}

// Health aggregates per-backend status; the overall status is the min
// (worst) over present components, per spec §6.
func (f *Facade) Health(ctx context.Context) map[string]Status {
	out := make(map[string]Status, 3)
	if f.Vector != nil {
		out["vector"] = f.Vector.Health(ctx)
	}
	if f.Graph != nil {
		out["graph"] = f.Graph.Health(ctx)
	}
	if f.Relational != nil {
		out["relational"] = f.Relational.Health(ctx)
	}
	return out
}

// Overall folds a health map down to the worst state present, defaulting
// to down when nothing is configured.
func Overall(statuses map[string]Status) HealthState {
	if len(statuses) == 0 {
		return HealthDown
	}
	worst := HealthOK
	for _, s := range statuses {
		switch {
		case s.State == HealthDown:
			return HealthDown
		case s.State == HealthDegraded:
			worst = HealthDegraded
		}
	}
	return worst
}
