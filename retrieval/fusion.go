package retrieval

import (
	"sort"

	"github.com/jurisoracle/vrag/model"
)

// rrfK is the rank-dampening constant from spec §4.7's reciprocal rank
// fusion formula: sum over backends of weight * 1/(k + rank).
const rrfK = 60.0

// Fuse combines per-backend ranked lists into a single deduplicated
// ranking per strategy. A backend absent from ranked contributes nothing
// to any document's score; this is what lets a query with only one
// backend configured still produce a sensible (degenerate) fusion.
//
// Dedup key is the document id. When two backends return the same id the
// surviving Document is the one with the highest per-backend Score, so it
// keeps that backend's Source and metadata. Which copy survives when the
// raw scores are equal is not defined.
func Fuse(ranked map[model.SourceBackend][]model.Document, weights map[model.SourceBackend]float64, strategy model.FusionStrategy) []model.Document {
	switch strategy {
	case model.FusionWeightedSum:
		return fuseWeightedSum(ranked, weights)
	case model.FusionBordaCount:
		return fuseBordaCount(ranked, weights)
	default:
		return fuseRRF(ranked, weights)
	}
}

type fusedEntry struct {
	doc   model.Document
	score float64
}

// weightOf returns the configured weight for src, defaulting to 1.0 when
// weights is nil or has no entry for src.
func weightOf(weights map[model.SourceBackend]float64, src model.SourceBackend) float64 {
	if weights == nil {
		return 1.0
	}
	if w, ok := weights[src]; ok {
		return w
	}
	return 1.0
}

func fuseRRF(ranked map[model.SourceBackend][]model.Document, weights map[model.SourceBackend]float64) []model.Document {
	entries := make(map[string]*fusedEntry)
	for src, docs := range ranked {
		w := weightOf(weights, src)
		for rank, doc := range docs {
			contribution := w * (1.0 / (rrfK + float64(rank+1)))
			upsertFused(entries, doc, contribution)
		}
	}
	return sortFused(entries)
}

// fuseWeightedSum normalises each backend's raw scores to [0,1] via
// min-max before combining, per spec §4.7, so that a backend whose raw
// score scale differs wildly from another's doesn't dominate the fusion.
func fuseWeightedSum(ranked map[model.SourceBackend][]model.Document, weights map[model.SourceBackend]float64) []model.Document {
	entries := make(map[string]*fusedEntry)
	for src, docs := range ranked {
		if len(docs) == 0 {
			continue
		}
		w := weightOf(weights, src)
		min, max := docs[0].Score, docs[0].Score
		for _, d := range docs {
			if d.Score < min {
				min = d.Score
			}
			if d.Score > max {
				max = d.Score
			}
		}
		spread := max - min
		for _, doc := range docs {
			normalized := 1.0
			if spread > 0 {
				normalized = (doc.Score - min) / spread
			}
			upsertFused(entries, doc, w*normalized)
		}
	}
	return sortFused(entries)
}

// fuseBordaCount awards each document n-rank points within its own
// backend's list (n = len(docs)), so the top result of a list of length n
// gets n points, the next n-1, and so on.
func fuseBordaCount(ranked map[model.SourceBackend][]model.Document, weights map[model.SourceBackend]float64) []model.Document {
	entries := make(map[string]*fusedEntry)
	for src, docs := range ranked {
		w := weightOf(weights, src)
		n := len(docs)
		for rank, doc := range docs {
			points := float64(n - rank)
			upsertFused(entries, doc, w*points)
		}
	}
	return sortFused(entries)
}

func upsertFused(entries map[string]*fusedEntry, doc model.Document, contribution float64) {
	existing, ok := entries[doc.ID]
	if !ok {
		copyDoc := doc
		entries[doc.ID] = &fusedEntry{doc: copyDoc, score: contribution}
		return
	}
	existing.score += contribution
	if doc.Score > existing.doc.Score {
		existing.doc = doc
	}
}

func sortFused(entries map[string]*fusedEntry) []model.Document {
	out := make([]model.Document, 0, len(entries))
	for _, e := range entries {
		doc := e.doc
		doc.Score = e.score
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
