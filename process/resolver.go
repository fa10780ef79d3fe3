// Package process implements the Dependency Resolver and Process Executor
// (spec §4.5, §4.8): turning a ProcessTree's depends_on edges into
// ordered parallel waves, then running each wave with bounded
// concurrency, retry, and cooperative cancellation while streaming
// progress events.
package process

import (
	"sort"

	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/model"
)

// color tracks a step's state during the cycle-detection DFS.
type color int

const (
	white color = iota // unvisited
	gray               // on the current DFS stack
	black              // fully explored
)

// Plan computes the wave decomposition of tree: a topologically-ordered
// partition of step ids such that every edge u -> v (u depends on v) has
// waveIndex(v) < waveIndex(u), i.e. v's wave runs before u's.
//
// A cycle in depends_on, or a depends_on reference to an id absent from
// tree.Steps, is fatal: both return core.ErrCycleDetected /
// core.ErrValidation respectively, wrapped with KindCycleDetected /
// KindValidation so the caller can emit plan_failed before any step
// runs (spec §4.5 "Failure semantics").
func Plan(tree *model.ProcessTree) ([][]string, error) {
	if tree == nil || len(tree.Steps) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(tree.Steps))
	for id := range tree.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		for _, dep := range tree.Steps[id].DependsOn {
			if _, ok := tree.Steps[dep]; !ok {
				return nil, core.NewFrameworkError("process.Plan", core.KindValidation,
					core.ErrValidation).WithID(dep)
			}
		}
	}

	colors := make(map[string]color, len(ids))
	if err := detectCycle(tree, ids, colors); err != nil {
		return nil, err
	}

	depth := computeLevels(tree, ids)

	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	waves := make([][]string, maxDepth+1)
	for _, id := range ids {
		d := depth[id]
		waves[d] = append(waves[d], id)
	}
	for _, w := range waves {
		sort.Strings(w)
	}
	return waves, nil
}

// detectCycle runs three-coloured DFS over depends_on edges rooted at
// every id, in sorted order for deterministic error reporting. Any edge
// into a gray (on-stack) node is a back-edge, hence a cycle.
func detectCycle(tree *model.ProcessTree, ids []string, colors map[string]color) error {
	var visit func(id string) error
	visit = func(id string) error {
		colors[id] = gray
		for _, dep := range tree.Steps[id].DependsOn {
			switch colors[dep] {
			case gray:
				return core.NewFrameworkError("process.Plan", core.KindCycleDetected,
					core.ErrCycleDetected).WithID(id)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		colors[id] = black
		return nil
	}

	for _, id := range ids {
		if colors[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// computeLevels runs Kahn's algorithm over the depends_on DAG (already
// known acyclic) to assign each step a depth equal to the length of its
// longest dependency chain, which is the wave it belongs to.
func computeLevels(tree *model.ProcessTree, ids []string) map[string]int {
	// dependents[v] = steps that list v in their depends_on, i.e. edges
	// v -> dependent in the "runs before" direction.
	dependents := make(map[string][]string, len(ids))
	indegree := make(map[string]int, len(ids))
	for _, id := range ids {
		indegree[id] = len(tree.Steps[id].DependsOn)
		for _, dep := range tree.Steps[id].DependsOn {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	depth := make(map[string]int, len(ids))
	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if indegree[id] == 0 {
			queue = append(queue, id)
			depth[id] = 0
		}
	}
	sort.Strings(queue)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		next := append([]string(nil), dependents[id]...)
		sort.Strings(next)
		for _, dependent := range next {
			if depth[dependent] < depth[id]+1 {
				depth[dependent] = depth[id] + 1
			}
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	return depth
}
