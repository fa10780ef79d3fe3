// Package registry implements the Agent Registry (spec §4.6): an
// in-process, immutable-after-startup catalogue of agent descriptors,
// queryable by id and by capability tag.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/model"
)

// ExecuteFunc is the handle an agent registers to honour the
// execute-step contract (spec §9: "polymorphism is by explicit
// registration, not by inheritance").
type ExecuteFunc func(ctx context.Context, step *model.ProcessStep) (*model.StepResult, error)

// Descriptor describes one registered agent.
type Descriptor struct {
	ID              string
	Name            string
	Capabilities    []string // kept sorted
	RequiresDB      bool
	RequiresAPI     bool
	DefaultTimeout  time.Duration
	Execute         ExecuteFunc
}

// HealthStatus is the per-agent reachability snapshot returned by
// Health().
type HealthStatus struct {
	ID     string
	Status core.HealthStatus
}

// Registry is populated at startup via Register and is safe for
// concurrent reads thereafter. Register itself is guarded by a mutex
// but is not expected to be called once the pipeline is serving
// traffic.
type Registry struct {
	mu         sync.RWMutex
	byID       map[string]Descriptor
	byCapability map[string][]string // capability -> sorted agent ids
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byID:         make(map[string]Descriptor),
		byCapability: make(map[string][]string),
	}
}

// Register adds or replaces a descriptor. Capabilities are sorted for
// deterministic iteration.
func (r *Registry) Register(d Descriptor) error {
	if d.ID == "" {
		return core.NewFrameworkError("registry.Register", core.KindValidation, core.ErrValidation)
	}

	sorted := append([]string(nil), d.Capabilities...)
	sort.Strings(sorted)
	d.Capabilities = sorted

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[d.ID]; exists {
		r.removeCapabilityIndexLocked(d.ID)
	}
	r.byID[d.ID] = d
	for _, cap := range d.Capabilities {
		r.byCapability[cap] = insertSorted(r.byCapability[cap], d.ID)
	}
	return nil
}

func (r *Registry) removeCapabilityIndexLocked(id string) {
	existing := r.byID[id]
	for _, cap := range existing.Capabilities {
		r.byCapability[cap] = removeString(r.byCapability[cap], id)
	}
}

func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	if i < len(ids) && ids[i] == id {
		return ids
	}
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func removeString(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Lookup returns the descriptor for id. When id is unknown it returns a
// zero Descriptor and an error wrapping core.ErrAgentNotFound, per spec
// §4.6 failure semantics.
func (r *Registry) Lookup(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[id]
	if !ok {
		return Descriptor{}, core.NewFrameworkError("registry.Lookup", core.KindAgentNotFound, core.ErrAgentNotFound).WithID(id)
	}
	return d, nil
}

// ByCapability returns the sorted ids of agents advertising tag. An
// unknown capability yields an empty (not nil-panicking) slice, per
// spec §4.6.
func (r *Registry) ByCapability(tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byCapability[tag]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Health returns the health of every registered agent. This registry
// has no liveness signal of its own, so it reports HealthUnknown for
// every agent; a caller wiring in real health checks (e.g. backend
// pings) can build its own aggregation on top of Lookup/All.
func (r *Registry) Health() []HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]HealthStatus, 0, len(r.byID))
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, HealthStatus{ID: id, Status: core.HealthUnknown})
	}
	return out
}

// All returns every descriptor, sorted by id, for listing endpoints.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Descriptor, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}
